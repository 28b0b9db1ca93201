package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dukerupert/writinggym/internal/store"
)

// NewPlansCommand creates the plans command.
func NewPlansCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "List the plan catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := rootOpts.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			plans, err := store.NewPlanStore(db).List()
			if err != nil {
				return err
			}
			if done, err := rootOpts.writeJSON(cmd.OutOrStdout(), plans); done || err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tLABEL\tPRICE\tWEEKLY LIMIT\tACCESS\tPLAYGROUND\tCUSTOM VOICE")
			for _, p := range plans {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\t%t\n",
					p.ID, p.Label, price(p.PriceMonthlyCents), limit(p.WeeklyAnalysisLimit),
					p.ExtractAccess, p.HasPlayground, p.HasCustomVoice)
			}
			return tw.Flush()
		},
	}
}

func price(cents int) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}

func limit(l *int) string {
	if l == nil {
		return "unlimited"
	}
	return fmt.Sprint(*l)
}
