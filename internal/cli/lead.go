package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var stageCmd = &cobra.Command{
	Use:     "stage <phone> <stage>",
	Short:   "Move a lead to another sales stage",
	Example: `  leadctl stage +525512345678 demo_scheduled`,
	Args:    cobra.ExactArgs(2),
	RunE:    runStage,
}

var (
	followupIn    time.Duration
	followupAt    string
	followupClear bool
)

var followupCmd = &cobra.Command{
	Use:   "followup <phone>",
	Short: "Schedule or clear a lead follow-up",
	Example: `  leadctl followup +525512345678 --in 24h
  leadctl followup +525512345678 --at 2024-06-01T15:00:00Z
  leadctl followup +525512345678 --clear`,
	Args: cobra.ExactArgs(1),
	RunE: runFollowup,
}

func init() {
	followupCmd.Flags().DurationVar(&followupIn, "in", 0, "Schedule the follow-up this far from now")
	followupCmd.Flags().StringVar(&followupAt, "at", "", "Schedule the follow-up at this RFC3339 time")
	followupCmd.Flags().BoolVar(&followupClear, "clear", false, "Remove the scheduled follow-up")
	followupCmd.MarkFlagsOneRequired("in", "at", "clear")
	followupCmd.MarkFlagsMutuallyExclusive("in", "at", "clear")
}

func runStage(cmd *cobra.Command, args []string) error {
	stage, err := parseStage(args[1])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	return withApp(ctx, func(a *app) error {
		leadID, err := a.leadID(args[0])
		if err != nil {
			return err
		}
		ok, err := a.leads.UpdateStage(ctx, leadID, stage)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("lead %s not found", leadID)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s moved to %s\n", leadID, stage)
		return nil
	})
}

// followupTime resolves the --in/--at flags against now
func followupTime(now time.Time) (time.Time, error) {
	if followupAt != "" {
		at, err := time.Parse(time.RFC3339, followupAt)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --at: %w", err)
		}
		return at.UTC(), nil
	}
	if followupIn <= 0 {
		return time.Time{}, errors.New("--in must be positive")
	}
	return now.Add(followupIn).UTC(), nil
}

func runFollowup(cmd *cobra.Command, args []string) error {
	var at time.Time
	if !followupClear {
		t, err := followupTime(time.Now())
		if err != nil {
			return err
		}
		at = t
	}

	ctx := cmd.Context()
	return withApp(ctx, func(a *app) error {
		leadID, err := a.leadID(args[0])
		if err != nil {
			return err
		}

		var ok bool
		if followupClear {
			ok, err = a.leads.ClearFollowup(ctx, leadID)
		} else {
			ok, err = a.leads.ScheduleFollowup(ctx, leadID, at)
		}
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("lead %s not found", leadID)
		}

		if followupClear {
			fmt.Fprintf(cmd.OutOrStdout(), "follow-up cleared for %s\n", leadID)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "follow-up for %s scheduled at %s\n", leadID, formatTime(&at))
		}
		return nil
	})
}
