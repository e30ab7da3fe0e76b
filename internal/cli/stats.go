package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/EnriquePaullada/gp-data-v4/internal/repository/mongodb"
)

var statsWindowHours int

var statsCmd = &cobra.Command{
	Use:   "stats [phone]",
	Short: "Show pipeline counts, or conversation stats for one lead",
	Example: `  leadctl stats
  leadctl stats +525512345678 --window 48`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStats,
}

func init() {
	statsCmd.Flags().IntVar(&statsWindowHours, "window", mongodb.DefaultResponseTimeHours, "Hours of history used for the average response time")
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withApp(ctx, func(a *app) error {
		if len(args) == 0 {
			counts, err := a.conversations.PipelineSnapshot(ctx)
			if err != nil {
				return err
			}
			return writeStageCounts(cmd.OutOrStdout(), counts)
		}

		leadID, err := a.leadID(args[0])
		if err != nil {
			return err
		}
		lead, err := a.leads.GetByPhone(ctx, leadID)
		if err != nil {
			return err
		}
		if lead == nil {
			return fmt.Errorf("lead %s not found", leadID)
		}

		count, err := a.messages.CountMessagesForLead(ctx, leadID)
		if err != nil {
			return err
		}
		tokens, err := a.messages.GetTotalTokensForLead(ctx, leadID)
		if err != nil {
			return err
		}
		avg, err := a.messages.GetAverageResponseTime(ctx, leadID, statsWindowHours)
		if err != nil {
			return err
		}

		return writeLeadStats(cmd.OutOrStdout(), leadStats{
			LeadID:              leadID,
			Stage:               string(lead.CurrentStage),
			Messages:            count,
			TotalTokens:         tokens,
			AvgResponseSeconds:  avg,
			ResponseWindowHours: statsWindowHours,
			NextFollowupAt:      lead.NextFollowupAt,
		})
	})
}
