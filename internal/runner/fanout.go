package runner

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/promptproof/promptproof/internal/grader"
	"github.com/promptproof/promptproof/internal/report"
	"github.com/promptproof/promptproof/internal/target"
	"github.com/promptproof/promptproof/pkg/types"
)

// Job is one scenario bound to one target session.
type Job struct {
	Name    string
	Target  target.Handle
	Prompts []types.PromptSpec
}

// Pipeline wires runner, grader, and aggregator for whole scenarios.
// Grader may be nil, in which case every entry stays ungraded.
type Pipeline struct {
	Grader *grader.Grader
	Config Config
}

// RunJob executes one scenario end to end and returns its finalized report.
// Grading failures leave the entry ungraded; they never abort the run.
func (p *Pipeline) RunJob(ctx context.Context, job Job) *report.RunReport {
	cfg := p.Config.withDefaults()
	r := New(job.Target, cfg)
	agg := report.NewAggregator(job.Name)

	for _, res := range r.Run(ctx, job.Prompts) {
		var grade *types.Grade
		if p.Grader != nil {
			var err error
			grade, err = p.Grader.Grade(ctx, &res)
			if err != nil && !errors.Is(err, types.ErrJudgmentUnavailable) {
				cfg.Logger.Error("grading failed", "prompt", res.Prompt.Text, "err", err)
			}
		}
		agg.Append(res, grade)
	}
	return agg.Finalize()
}

// RunAll executes independent jobs concurrently, one goroutine per target.
// Jobs share no mutable state: each gets its own Runner and Aggregator, so no
// locking is needed across them. Reports are returned in job order.
func (p *Pipeline) RunAll(ctx context.Context, jobs []Job) []*report.RunReport {
	reports := make([]*report.RunReport, len(jobs))

	var g errgroup.Group
	for i, job := range jobs {
		g.Go(func() error {
			reports[i] = p.RunJob(ctx, job)
			return nil
		})
	}
	// Jobs contain their own failures in their reports; Wait only joins.
	_ = g.Wait()
	return reports
}
