package main

import (
	"fmt"

	"github.com/cuemby/rolesweep/pkg/types"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one reconciliation pass now",
	Long: `Run a single reconciliation pass over expired grants and print the
number of grants removed. Use --class and --role to narrow the pass.`,
	Example: `  rolesweep run
  rolesweep run --class premium
  rolesweep run --role 1122 --role 3344`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		filter, err := filterFromFlags(cmd)
		if err != nil {
			return err
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		removed, err := a.reconciler.Run(cmd.Context(), nil, filter)
		if err != nil {
			return fmt.Errorf("reconciliation failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired grant(s) [%s]\n", removed, filter.Key())
		return nil
	},
}

func init() {
	runCmd.Flags().String("class", "", "Only grants of this class: premium, mute, other")
	runCmd.Flags().StringSlice("role", nil, "Only grants for this role id (repeatable)")
}

func filterFromFlags(cmd *cobra.Command) (types.Filter, error) {
	class, _ := cmd.Flags().GetString("class")
	roles, _ := cmd.Flags().GetStringSlice("role")

	switch types.GrantClass(class) {
	case "", types.GrantClassPremium, types.GrantClassMute, types.GrantClassOther:
	default:
		return types.Filter{}, fmt.Errorf("unknown class %q", class)
	}
	return types.Filter{Class: types.GrantClass(class), RoleIDs: roles}, nil
}
