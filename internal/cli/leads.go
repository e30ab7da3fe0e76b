package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/EnriquePaullada/gp-data-v4/internal/domain"
)

var (
	leadsStage      string
	leadsStaleDays  int
	leadsMinMessage int
	leadsDue        bool
	leadsLimit      int
	leadsSkip       int
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "List leads",
	Long: `List leads using exactly one selector:

  --stage        leads in a stage, most recently active first (pages with --skip)
  --stale        leads inactive for more than N days, excluding closed stages
  --high-intent  leads with at least N messages in qualified or demo stages
  --due          leads whose follow-up is due now`,
	Example: `  leadctl leads --stage qualified --limit 50 --skip 50
  leadctl leads --stale 7
  leadctl leads --high-intent 10
  leadctl leads --due`,
	Args: cobra.NoArgs,
	RunE: runLeads,
}

func init() {
	leadsCmd.Flags().StringVar(&leadsStage, "stage", "", "Sales stage ("+stageList()+")")
	leadsCmd.Flags().IntVar(&leadsStaleDays, "stale", 0, "Days of inactivity")
	leadsCmd.Flags().IntVar(&leadsMinMessage, "high-intent", 0, "Minimum message count")
	leadsCmd.Flags().BoolVar(&leadsDue, "due", false, "Follow-up due now")
	leadsCmd.Flags().IntVar(&leadsLimit, "limit", 100, "Maximum number of leads")
	leadsCmd.Flags().IntVar(&leadsSkip, "skip", 0, "Leads to skip (with --stage)")
	leadsCmd.MarkFlagsOneRequired("stage", "stale", "high-intent", "due")
	leadsCmd.MarkFlagsMutuallyExclusive("stage", "stale", "high-intent", "due")
}

func stageList() string {
	names := make([]string, len(domain.AllSalesStages))
	for i, s := range domain.AllSalesStages {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

func parseStage(raw string) (domain.SalesStage, error) {
	stage := domain.SalesStage(strings.ToLower(strings.TrimSpace(raw)))
	if !stage.IsValid() {
		return "", fmt.Errorf("unknown stage %q (want one of %s)", raw, stageList())
	}
	return stage, nil
}

func runLeads(cmd *cobra.Command, _ []string) error {
	var stage domain.SalesStage
	if leadsStage != "" {
		s, err := parseStage(leadsStage)
		if err != nil {
			return err
		}
		stage = s
	}
	if leadsSkip > 0 && stage == "" {
		return errors.New("--skip only applies to --stage")
	}

	ctx := cmd.Context()
	return withApp(ctx, func(a *app) error {
		var (
			leads []*domain.Lead
			err   error
		)
		switch {
		case stage != "":
			leads, err = a.leads.GetLeadsByStage(ctx, stage, leadsLimit, leadsSkip)
		case leadsStaleDays > 0:
			leads, err = a.leads.GetStaleLeads(ctx, leadsStaleDays, nil, leadsLimit)
		case leadsMinMessage > 0:
			leads, err = a.leads.GetHighIntentLeads(ctx, leadsMinMessage, nil, leadsLimit)
		default:
			leads, err = a.leads.GetLeadsNeedingFollowup(ctx, time.Time{}, leadsLimit)
		}
		if err != nil {
			return err
		}
		return writeLeads(cmd.OutOrStdout(), leads)
	})
}
