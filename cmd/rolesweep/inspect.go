package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/rolesweep/pkg/storage"
	"github.com/cuemby/rolesweep/pkg/types"
	"github.com/spf13/cobra"
)

var grantsCmd = &cobra.Command{
	Use:   "grants",
	Short: "Inspect persisted grants",
}

var grantsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted grants",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		expiredOnly, _ := cmd.Flags().GetBool("expired")

		store, err := storage.NewBoltStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer store.Close()

		var grants []types.Grant
		if expiredOnly {
			grants, err = store.ListExpired(cmd.Context(), time.Now(), types.Filter{})
		} else {
			grants, err = store.ListGrants(cmd.Context())
		}
		if err != nil {
			return fmt.Errorf("failed to list grants: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(grants) == 0 {
			fmt.Fprintln(out, "No grants found")
			return nil
		}
		fmt.Fprintf(out, "%-20s %-20s %-8s %s\n", "MEMBER", "ROLE", "CLASS", "EXPIRES")
		for _, g := range grants {
			fmt.Fprintf(out, "%-20s %-20s %-8s %s\n", g.MemberID, g.RoleID, g.Class, g.ExpiresAt.UTC().Format(time.RFC3339))
		}
		return nil
	},
}

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Inspect the notification ledger",
}

var notificationsLastCmd = &cobra.Command{
	Use:     "last MEMBER TAG",
	Short:   "Show when a member was last notified under a tag",
	Example: `  rolesweep notifications last 1234 premium_expired`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		store, err := storage.NewBoltStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer store.Close()

		rec, err := store.LastNotification(cmd.Context(), args[0], args[1])
		if errors.Is(err, storage.ErrNotFound) {
			fmt.Fprintf(cmd.OutOrStdout(), "No %s notification recorded for %s\n", args[1], args[0])
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", rec.MemberID, rec.Tag, rec.SentAt.UTC().Format(time.RFC3339))
		return nil
	},
}

func init() {
	grantsListCmd.Flags().Bool("expired", false, "Only show grants that have expired")
	grantsCmd.AddCommand(grantsListCmd)
	notificationsCmd.AddCommand(notificationsLastCmd)
}
