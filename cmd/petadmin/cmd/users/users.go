package users

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/cmd/cmdutil"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/config"
)

var outputJSON bool

// UsersCmd is the parent command for user permission operations
var UsersCmd = &cobra.Command{
	Use:   "users",
	Short: "Inspect and resync user permissions",
	Long:  `Commands for inspecting effective permissions and re-applying provisioning rules directly from the server.`,
}

func init() {
	UsersCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Print JSON instead of a table")

	UsersCmd.AddCommand(listCmd)
	UsersCmd.AddCommand(effectiveCmd)
	UsersCmd.AddCommand(resyncCmd)
}

func openBundle() (*cmdutil.IAMServiceBundle, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cmdutil.NewIAMServiceBundle(cfg, slog.Default())
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
