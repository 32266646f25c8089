// Package grader turns raw prompt results into pass/fail grades by combining
// an external judgment call with a deterministic tool-match check.
package grader

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/promptproof/promptproof/pkg/types"
)

// Request is the input handed to the external judgment capability.
type Request struct {
	PromptText    string
	ExpectedTools []string
	ResponseText  string
	Invocations   []types.ToolInvocation
}

// Judgment is the external capability's opinion of one result.
type Judgment struct {
	Verdict  string
	Reason   string
	TaskDone bool
}

// Judge is the opaque external judgment capability. Transport, retries, and
// rate limits are the implementation's concern, not the grader's.
type Judge interface {
	Judge(ctx context.Context, req Request) (Judgment, error)
}

// Grader grades one PromptResult at a time. It holds no per-result state and
// is safe to share across sequential prompts of one run.
type Grader struct {
	judge  Judge
	logger *slog.Logger
}

// New creates a Grader delegating to the given judge.
func New(judge Judge, logger *slog.Logger) *Grader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Grader{judge: judge, logger: logger}
}

// Grade judges one result. It returns (nil, nil) when the prompt opted out of
// validation, and a types.ErrJudgmentUnavailable wrap when the external call
// fails — the result then stays ungraded rather than defaulting to a verdict.
//
// When the prompt names expected tools, a deterministic set-equality check
// against the observed invocations overrides the external judgment: a
// mismatch forces a fail verdict with the mismatch stated first in the
// reason. A probabilistic judge never gets the last word on a checkable fact.
func (g *Grader) Grade(ctx context.Context, res *types.PromptResult) (*types.Grade, error) {
	if !res.Prompt.ValidateResponse {
		return nil, nil
	}

	judgment, err := g.judge.Judge(ctx, Request{
		PromptText:    res.Prompt.Text,
		ExpectedTools: res.Prompt.ExpectedTools,
		ResponseText:  res.ResponseText,
		Invocations:   res.Invocations,
	})
	if err != nil {
		g.logger.Warn("judgment call failed, result stays ungraded",
			"prompt", res.Prompt.Text, "err", err)
		return nil, fmt.Errorf("judge %q: %v: %w", res.Prompt.Text, err, types.ErrJudgmentUnavailable)
	}

	grade := &types.Grade{
		Verdict:  judgment.Verdict,
		Reason:   judgment.Reason,
		TaskDone: judgment.TaskDone,
	}

	if len(res.Prompt.ExpectedTools) > 0 && !toolsMatch(res.Prompt.ExpectedTools, res.ToolNames()) {
		grade.Verdict = types.VerdictFail
		grade.Reason = fmt.Sprintf("tool mismatch: expected %v, observed %v; %s",
			res.Prompt.ExpectedTools, res.ToolNames(), judgment.Reason)
	}
	return grade, nil
}

// toolsMatch reports set equality between expected and actual tool names.
func toolsMatch(expected, actual []string) bool {
	return strings.Join(uniqueSorted(expected), "\x00") == strings.Join(uniqueSorted(actual), "\x00")
}

func uniqueSorted(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	var out []string
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
