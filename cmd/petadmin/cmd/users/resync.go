package users

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var resyncCmd = &cobra.Command{
	Use:   "resync <email|id>",
	Short: "Re-apply the matching provisioning rule to a user",
	Long: `Re-applies the provisioning rule that matches the user's email. Direct grants
and group memberships are replaced by the rule's; anything granted by hand
since the last sign-in is discarded.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bundle, err := openBundle()
		if err != nil {
			return err
		}
		defer bundle.Close()

		ctx := cmd.Context()
		user, err := bundle.Service.LookupUser(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to find user %q: %w", args[0], err)
		}
		res, err := bundle.Service.ResyncProvisioning(ctx, user.ID)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(cmd, res)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ Resynced %s with rule %q\n", user.Email, res.Rule)
		if res.PreviousRole != res.Role {
			fmt.Fprintf(out, "  role: %s → %s\n", res.PreviousRole, res.Role)
		} else {
			fmt.Fprintf(out, "  role: %s\n", res.Role)
		}
		fmt.Fprintf(out, "  permissions: %s\n", strings.Join(res.GrantedPermissionCodes, ", "))
		fmt.Fprintf(out, "  groups: %s\n", strings.Join(res.GroupNames, ", "))
		if len(res.CreatedGroups) > 0 {
			fmt.Fprintf(out, "  created groups: %s\n", strings.Join(res.CreatedGroups, ", "))
		}
		return nil
	},
}
