package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/promptproof/promptproof/pkg/types"
)

// GenerateMarkdown writes a Markdown-formatted run report to w, suitable for
// a PR comment.
func GenerateMarkdown(w io.Writer, rep *RunReport) error {
	title := rep.Scenario
	if title == "" {
		title = "Prompt Validation Report"
	}

	if _, err := fmt.Fprintf(w, "## %s\n\n", title); err != nil {
		return err
	}

	if !rep.FinishedAt.IsZero() {
		if _, err := fmt.Fprintf(w, "**Run at:** %s\n\n", rep.FinishedAt.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}

	s := rep.Summary
	if _, err := fmt.Fprintf(w, "**Results:** %d total — %d passed, %d failed, %d ungraded\n\n",
		s.Total, s.Passed, s.Failed, s.Ungraded); err != nil {
		return err
	}

	if len(rep.Entries) == 0 {
		_, err := fmt.Fprintln(w, "_No prompts executed._")
		return err
	}

	if _, err := fmt.Fprintln(w, "| # | Prompt | Verdict | Tools | Reason |"); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, "|---|--------|---------|-------|--------|"); err != nil {
		return err
	}

	for i, e := range rep.Entries {
		verdict, reason := verdictCell(e)
		tools := strings.Join(e.Result.ToolNames(), ", ")
		if _, err := fmt.Fprintf(w, "| %d | %s | %s | %s | %s |\n",
			i+1, mdCell(e.Result.Prompt.Text, 60), verdict, mdCell(tools, 40), mdCell(reason, 100)); err != nil {
			return err
		}
	}

	return nil
}

func verdictCell(e Entry) (verdict, reason string) {
	switch {
	case e.Grade == nil:
		reason = e.Result.FailureReason
		return ":grey_question: ungraded", reason
	case e.Grade.Verdict == types.VerdictPass:
		return ":white_check_mark: pass", e.Grade.Reason
	default:
		return ":x: " + e.Grade.Verdict, e.Grade.Reason
	}
}

// mdCell escapes pipes and truncates long values so the table stays readable.
func mdCell(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "|", "\\|")
	if len(s) > max {
		s = s[:max-3] + "..."
	}
	return s
}
