package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/writinggym/internal/entitlement"
	"github.com/dukerupert/writinggym/internal/store"
)

// NewEntitlementsCommand creates the entitlements command.
func NewEntitlementsCommand(rootOpts *RootOptions) *cobra.Command {
	var timezone string

	cmd := &cobra.Command{
		Use:   "entitlements <user-id>",
		Short: "Show what a user's plan allows this week",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := time.LoadLocation(timezone)
			if err != nil {
				return fmt.Errorf("load timezone: %w", err)
			}
			db, err := rootOpts.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			resolver := entitlement.NewResolver(store.NewPlanStore(db), store.NewSubscriptionStore(db), store.NewUsageStore(db),
				entitlement.WithLocation(loc))
			snap, err := resolver.Resolve(args[0])
			if err != nil {
				return err
			}
			if done, err := rootOpts.writeJSON(cmd.OutOrStdout(), snap); done || err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "plan:        %s (%s)\n", snap.PlanLabel, snap.PlanID)
			fmt.Fprintf(out, "week start:  %s\n", resolver.WeekStart().Format(time.RFC3339))
			fmt.Fprintf(out, "used:        %d of %s\n", snap.UsedThisWeek, limit(snap.WeeklyLimit))
			fmt.Fprintf(out, "allowed:     %t\n", snap.Allowed)
			fmt.Fprintf(out, "access:      %s\n", snap.ExtractAccess)
			fmt.Fprintf(out, "playground:  %t\n", snap.HasPlayground)
			fmt.Fprintf(out, "voice:       %t\n", snap.HasCustomVoice)
			return nil
		},
	}

	cmd.Flags().StringVar(&timezone, "timezone", "UTC", "timezone the quota week is counted in")
	return cmd
}
