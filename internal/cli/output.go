package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/EnriquePaullada/gp-data-v4/internal/domain"
)

const contentWidth = 60

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// stageRow is one line of the pipeline table
type stageRow struct {
	Stage string `json:"stage"`
	Count int64  `json:"count"`
}

// stageRows lists every known stage in pipeline order, then any unknown
// stages found in storage, alphabetically
func stageRows(counts map[domain.SalesStage]int64) []stageRow {
	rows := make([]stageRow, 0, len(counts))
	for _, stage := range domain.AllSalesStages {
		rows = append(rows, stageRow{Stage: string(stage), Count: counts[stage]})
	}

	var unknown []string
	for stage := range counts {
		if !stage.IsValid() {
			unknown = append(unknown, string(stage))
		}
	}
	sort.Strings(unknown)
	for _, stage := range unknown {
		rows = append(rows, stageRow{Stage: stage, Count: counts[domain.SalesStage(stage)]})
	}
	return rows
}

func writeStageCounts(w io.Writer, counts map[domain.SalesStage]int64) error {
	rows := stageRows(counts)
	if jsonOutput {
		return printJSON(w, rows)
	}

	var total int64
	tw := newTable(w)
	fmt.Fprintln(tw, "STAGE\tLEADS")
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%d\n", row.Stage, row.Count)
		total += row.Count
	}
	fmt.Fprintf(tw, "total\t%d\n", total)
	return tw.Flush()
}

func writeLeads(w io.Writer, leads []*domain.Lead) error {
	if jsonOutput {
		return printJSON(w, leads)
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "LEAD\tNAME\tSTAGE\tMESSAGES\tLAST INTERACTION\tNEXT FOLLOW-UP")
	for _, l := range leads {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			l.LeadID,
			deref(l.FullName),
			l.CurrentStage,
			l.MessageCount,
			formatTime(&l.LastInteractionAt),
			formatTime(l.NextFollowupAt),
		)
	}
	return tw.Flush()
}

func writeMessages(w io.Writer, msgs []*domain.Message) error {
	if jsonOutput {
		return printJSON(w, msgs)
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "TIME\tROLE\tTOKENS\tCONTENT")
	for _, m := range msgs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n",
			formatTime(&m.Timestamp),
			m.Role,
			m.Tokens,
			truncate(m.Content, contentWidth),
		)
	}
	return tw.Flush()
}

// leadStats summarizes one lead's conversation
type leadStats struct {
	LeadID              string     `json:"leadId"`
	Stage               string     `json:"stage"`
	Messages            int64      `json:"messages"`
	TotalTokens         int64      `json:"totalTokens"`
	AvgResponseSeconds  *float64   `json:"avgResponseSeconds"`
	ResponseWindowHours int        `json:"responseWindowHours"`
	NextFollowupAt      *time.Time `json:"nextFollowupAt,omitempty"`
}

func writeLeadStats(w io.Writer, s leadStats) error {
	if jsonOutput {
		return printJSON(w, s)
	}

	avg := "n/a"
	if s.AvgResponseSeconds != nil {
		avg = (time.Duration(*s.AvgResponseSeconds * float64(time.Second))).Round(time.Second).String()
	}

	tw := newTable(w)
	fmt.Fprintf(tw, "lead\t%s\n", s.LeadID)
	fmt.Fprintf(tw, "stage\t%s\n", s.Stage)
	fmt.Fprintf(tw, "messages\t%d\n", s.Messages)
	fmt.Fprintf(tw, "tokens\t%d\n", s.TotalTokens)
	fmt.Fprintf(tw, "avg response (%dh)\t%s\n", s.ResponseWindowHours, avg)
	fmt.Fprintf(tw, "next follow-up\t%s\n", formatTime(s.NextFollowupAt))
	return tw.Flush()
}

func writeIndexes(w io.Writer, indexes map[string][]string) error {
	if jsonOutput {
		return printJSON(w, indexes)
	}

	collections := make([]string, 0, len(indexes))
	for name := range indexes {
		collections = append(collections, name)
	}
	sort.Strings(collections)

	tw := newTable(w)
	fmt.Fprintln(tw, "COLLECTION\tINDEX")
	for _, coll := range collections {
		names := append([]string(nil), indexes[coll]...)
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(tw, "%s\t%s\n", coll, name)
		}
	}
	return tw.Flush()
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func deref(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
