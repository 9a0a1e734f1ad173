package rules

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/models"
	provisioning "github.com/talpa/pet-management-sub001/cmd/petadmin/internal/rules"
)

// RulesCmd is the parent command for provisioning rule inspection
var RulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect the provisioning rule table",
	Long: `Commands for validating and inspecting the provisioning rule table applied
on federated login. The table is read from --rules (PETADMIN_RULES_PATH) or
the embedded default when unset.`,
}

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a rule file",
	Long: `Parses and validates a rule file against the rule schema. Permission codes
that are not part of the seeded catalog are reported as warnings, since
provisioning fails for codes missing from the catalog. Roles other than
admin, staff and user are reported too: the API rejects every request from
users holding them.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := viper.GetString("rules_path")
		if len(args) == 1 {
			path = args[0]
		}
		table, err := provisioning.Load(path)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ %d rules valid\n", table.Len())
		for _, code := range unknownCodes(table) {
			fmt.Fprintf(out, "warning: permission %q is not in the seeded catalog\n", code)
		}
		for _, r := range unknownRoles(table) {
			fmt.Fprintf(out, "warning: rule %q assigns role %q, which the API route policy does not know\n", r.Name, r.Role)
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the rule table in precedence order",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := provisioning.Load(viper.GetString("rules_path"))
		if err != nil {
			return err
		}
		printTable(cmd.OutOrStdout(), table.Rules())
		return nil
	},
}

var matchCmd = &cobra.Command{
	Use:   "match <email>",
	Short: "Show which rule a sign-in with email would receive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := provisioning.Load(viper.GetString("rules_path"))
		if err != nil {
			return err
		}
		rule, err := table.Match(provisioning.Identity{
			Email:    args[0],
			Provider: matchProvider,
		})
		if err != nil {
			return err
		}
		printTable(cmd.OutOrStdout(), []provisioning.Rule{rule})
		return nil
	},
}

var matchProvider string

func init() {
	matchCmd.Flags().StringVar(&matchProvider, "provider", "", "Provider name to evaluate rule conditions against")

	RulesCmd.AddCommand(validateCmd)
	RulesCmd.AddCommand(showCmd)
	RulesCmd.AddCommand(matchCmd)
}

func printTable(out io.Writer, rs []provisioning.Rule) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tMATCH\tROLE\tPERMISSIONS\tGROUPS\tCONDITION")
	for _, r := range rs {
		match := r.MatchDomain
		if r.MatchEmail != "" {
			match = r.MatchEmail
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Name,
			match,
			r.Role,
			strings.Join(r.Permissions, ", "),
			strings.Join(r.Groups, ", "),
			r.Condition,
		)
	}
	_ = w.Flush()
}

func unknownCodes(table *provisioning.Table) []string {
	known := make(map[string]struct{}, len(models.BootstrapCatalog))
	for _, p := range models.BootstrapCatalog {
		known[p.Code] = struct{}{}
	}
	var unknown []string
	for _, code := range table.PermissionCodes() {
		if _, ok := known[code]; !ok {
			unknown = append(unknown, code)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// unknownRoles returns the rules whose role has no entry in the route policy.
func unknownRoles(table *provisioning.Table) []provisioning.Rule {
	var out []provisioning.Rule
	for _, r := range table.Rules() {
		switch r.Role {
		case models.RoleAdmin, models.RoleStaff, models.RoleUser:
		default:
			out = append(out, r)
		}
	}
	return out
}
