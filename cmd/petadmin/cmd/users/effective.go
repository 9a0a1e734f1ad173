package users

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var effectiveCmd = &cobra.Command{
	Use:   "effective <email|id>",
	Short: "Print a user's effective permissions and where each comes from",
	Args:  cobra.ExactArgs(1),
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
		perms, err := bundle.Service.ResolveEffectivePermissions(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("failed to resolve permissions: %w", err)
		}
		if outputJSON {
			return printJSON(cmd, perms)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s), role %s\n", user.Email, user.ID, user.Role)
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CATEGORY\tCODE\tNAME\tSOURCE\tEXPIRES")
		for _, p := range perms {
			expires := "-"
			if p.ExpiresAt != nil {
				expires = p.ExpiresAt.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.Category, p.Code, p.Name, p.Source, expires)
		}
		return w.Flush()
	},
}
