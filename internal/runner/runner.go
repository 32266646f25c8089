// Package runner executes a scripted prompt sequence against one target
// session and assembles per-prompt results.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/promptproof/promptproof/internal/markers"
	"github.com/promptproof/promptproof/internal/stabilize"
	"github.com/promptproof/promptproof/internal/target"
	"github.com/promptproof/promptproof/pkg/types"
)

// Config holds all timing parameters for a run.
type Config struct {
	// Stabilization: reply text must hold identical for StabilizeRepeats
	// consecutive samples taken StabilizeInterval apart, within
	// StabilizeTimeout. Zero values take the stabilize package defaults.
	StabilizeInterval time.Duration
	StabilizeRepeats  int
	StabilizeTimeout  time.Duration

	// Marker resolution, passed through to the collector.
	MarkerTimeout      time.Duration
	MarkerPollInterval time.Duration

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Runner drives one target session. Prompts run strictly serially: each
// prompt's interpretation depends on the prior turn's UI state settling, so
// there is nothing to parallelize within a run.
type Runner struct {
	target    target.Handle
	collector *markers.Collector
	cfg       Config
}

// New creates a Runner over the given session handle.
func New(t target.Handle, cfg Config) *Runner {
	cfg = cfg.withDefaults()
	return &Runner{
		target: t,
		collector: markers.NewCollector(t, markers.Config{
			ResolveTimeout: cfg.MarkerTimeout,
			PollInterval:   cfg.MarkerPollInterval,
			Logger:         cfg.Logger,
		}),
		cfg: cfg,
	}
}

// Run executes prompts in order and returns one PromptResult per prompt
// attempted. Per-prompt failures are recorded and the run continues: a single
// bad prompt must not void the rest of the scripted scenario. Only ctx
// cancellation stops early — the in-flight prompt is finalized with a
// cancelled failure reason and unstarted prompts are omitted entirely.
func (r *Runner) Run(ctx context.Context, prompts []types.PromptSpec) []types.PromptResult {
	results := make([]types.PromptResult, 0, len(prompts))

	for i, p := range prompts {
		if ctx.Err() != nil {
			r.cfg.Logger.Info("run cancelled, omitting remaining prompts",
				"completed", len(results), "remaining", len(prompts)-i)
			break
		}

		res := r.runPrompt(ctx, p)
		results = append(results, res)

		if res.FailureReason == types.FailureCancelled {
			break
		}
		r.cfg.Logger.Info("prompt completed",
			"index", i, "task_done", res.TaskDone, "tools", len(res.Invocations))
	}
	return results
}

// runPrompt executes one turn: submit, stabilize, collect.
func (r *Runner) runPrompt(ctx context.Context, p types.PromptSpec) types.PromptResult {
	res := types.PromptResult{Prompt: p}
	defer func() {
		res.TaskDone = res.FailureReason == ""
	}()

	if err := r.target.Submit(ctx, p.Text); err != nil {
		if cancelled(ctx, err) {
			res.FailureReason = types.FailureCancelled
			return res
		}
		r.cfg.Logger.Error("prompt submission failed", "prompt", p.Text, "err", err)
		res.FailureReason = fmt.Sprintf("prompt submission failed: %v", err)
		return res
	}

	det, err := stabilize.Detect(ctx, r.target.SampleReply, stabilize.Options{
		Interval: r.cfg.StabilizeInterval,
		Repeats:  r.cfg.StabilizeRepeats,
		Timeout:  r.cfg.StabilizeTimeout,
	})
	res.ResponseText = det.Text
	if err != nil {
		switch {
		case cancelled(ctx, err):
			res.FailureReason = types.FailureCancelled
			return res
		case errors.Is(err, types.ErrTimeoutExceeded):
			// Keep the partial text; markers are still worth collecting.
			res.FailureReason = types.FailureNotStabilized
		default:
			r.cfg.Logger.Error("reply sampling failed", "prompt", p.Text, "err", err)
			res.FailureReason = fmt.Sprintf("reply could not be sampled: %v", err)
		}
	}

	invs, err := r.collector.Collect(ctx)
	res.Invocations = invs
	if err != nil {
		if cancelled(ctx, err) {
			res.FailureReason = types.FailureCancelled
			return res
		}
		r.cfg.Logger.Warn("tool marker collection incomplete", "prompt", p.Text, "err", err)
		if res.FailureReason == "" {
			res.FailureReason = fmt.Sprintf("collect tool markers: %v", err)
		}
	}
	return res
}

func cancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}
