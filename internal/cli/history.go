package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/EnriquePaullada/gp-data-v4/internal/domain"
	"github.com/EnriquePaullada/gp-data-v4/internal/repository/mongodb"
)

var (
	historyLimit  int
	historyBefore string
	historyRole   string
	historySince  string
	historyUntil  string
	historyRecent bool
)

var historyCmd = &cobra.Command{
	Use:   "history <phone>",
	Short: "Print a lead's conversation, oldest first",
	Long: `Print a lead's conversation.

By default the newest --limit messages are printed in chronological order.
--before pages backwards from a timestamp, --role filters by sender and
--since/--until select a time range instead.`,
	Example: `  leadctl history +525512345678 --limit 20
  leadctl history +525512345678 --before 2024-05-01T00:00:00Z
  leadctl history +525512345678 --role user
  leadctl history +525512345678 --since 2024-05-01T00:00:00Z --until 2024-05-02T00:00:00Z`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", mongodb.DefaultHistoryLimit, "Maximum number of messages")
	historyCmd.Flags().StringVar(&historyBefore, "before", "", "Only messages strictly before this RFC3339 time")
	historyCmd.Flags().StringVar(&historyRole, "role", "", "Only messages from this role (user, assistant, system, human)")
	historyCmd.Flags().StringVar(&historySince, "since", "", "Range start, inclusive (RFC3339)")
	historyCmd.Flags().StringVar(&historyUntil, "until", "", "Range end, exclusive (RFC3339)")
	historyCmd.Flags().BoolVar(&historyRecent, "recent", false, "Print the newest messages (default 20) instead of the full window")
	historyCmd.MarkFlagsRequiredTogether("since", "until")
	historyCmd.MarkFlagsMutuallyExclusive("since", "before")
	historyCmd.MarkFlagsMutuallyExclusive("role", "since")
}

// historyQuery is the parsed form of the history flags
type historyQuery struct {
	role        domain.MessageRole
	before      *time.Time
	start, end  time.Time
	ranged      bool
	recent      bool
	limit       int
}

func parseHistoryQuery() (historyQuery, error) {
	q := historyQuery{limit: historyLimit, recent: historyRecent}

	if historyRole != "" {
		q.role = domain.MessageRole(historyRole)
		if !q.role.IsValid() {
			return q, fmt.Errorf("unknown role %q", historyRole)
		}
	}
	if historyBefore != "" {
		t, err := time.Parse(time.RFC3339, historyBefore)
		if err != nil {
			return q, fmt.Errorf("invalid --before: %w", err)
		}
		q.before = &t
	}
	if historySince != "" {
		start, err := time.Parse(time.RFC3339, historySince)
		if err != nil {
			return q, fmt.Errorf("invalid --since: %w", err)
		}
		end, err := time.Parse(time.RFC3339, historyUntil)
		if err != nil {
			return q, fmt.Errorf("invalid --until: %w", err)
		}
		q.start, q.end, q.ranged = start, end, true
	}
	return q, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	q, err := parseHistoryQuery()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	return withApp(ctx, func(a *app) error {
		leadID, err := a.leadID(args[0])
		if err != nil {
			return err
		}

		var msgs []*domain.Message
		switch {
		case q.ranged:
			msgs, err = a.messages.GetMessagesInTimeRange(ctx, leadID, q.start, q.end)
		case q.role != "":
			msgs, err = a.messages.GetMessagesByRole(ctx, leadID, q.role, q.limit)
			if err == nil {
				// newest first from storage
				for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
					msgs[i], msgs[j] = msgs[j], msgs[i]
				}
			}
		case q.recent:
			msgs, err = a.messages.GetRecentMessages(ctx, leadID, 0)
		default:
			msgs, err = a.messages.GetConversationHistory(ctx, leadID, q.limit, q.before)
		}
		if err != nil {
			return err
		}
		return writeMessages(cmd.OutOrStdout(), msgs)
	})
}
