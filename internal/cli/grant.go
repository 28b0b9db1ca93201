package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dukerupert/writinggym/internal/model"
	"github.com/dukerupert/writinggym/internal/store"
)

// NewGrantCommand creates the grant command. It writes an active
// subscription without going through Stripe, for comps and support cases.
func NewGrantCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "grant <user-id> <plan-id>",
		Short: "Give a user a plan without payment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := rootOpts.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			userID, planID := args[0], model.PlanID(args[1])
			plan, err := store.NewPlanStore(db).GetByID(planID)
			if err != nil {
				return err
			}
			if plan == nil {
				return fmt.Errorf("unknown plan %q", planID)
			}

			sub, err := store.NewSubscriptionStore(db).Upsert(model.Subscription{
				UserID: userID,
				PlanID: plan.ID,
				Status: model.StatusActive,
			})
			if err != nil {
				return err
			}
			if done, err := rootOpts.writeJSON(cmd.OutOrStdout(), sub); done || err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "granted %s to %s\n", plan.Label, userID)
			return nil
		},
	}
}
