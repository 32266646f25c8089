// Package report accumulates per-prompt outcomes into a run report.
package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/promptproof/promptproof/pkg/types"
)

// Entry pairs one raw PromptResult with its optional Grade. Grade stays nil
// for prompts that opted out of validation or whose judgment was unavailable.
type Entry struct {
	Result types.PromptResult `json:"result"`
	Grade  *types.Grade       `json:"grade,omitempty"`
}

// Summary holds the tallies for a run. It is always derived from the entry
// sequence; there is no independent count to drift out of sync.
type Summary struct {
	Total    int `json:"total"`
	Passed   int `json:"passed"`
	Failed   int `json:"failed"`
	Ungraded int `json:"ungraded"`
}

// Aggregator collects entries for one run. Append-only during the run; a run
// owns its Aggregator exclusively, so no locking. The Aggregator never
// rejects an entry — failed and ungraded results are reflected as handed in.
type Aggregator struct {
	runID     string
	scenario  string
	startedAt time.Time
	entries   []Entry
}

// NewAggregator starts an empty aggregation for the named scenario.
func NewAggregator(scenario string) *Aggregator {
	return &Aggregator{
		runID:     uuid.NewString(),
		scenario:  scenario,
		startedAt: time.Now().UTC(),
	}
}

// RunID returns the run's unique identifier.
func (a *Aggregator) RunID() string { return a.runID }

// Append records one completed prompt. grade may be nil.
func (a *Aggregator) Append(res types.PromptResult, grade *types.Grade) {
	a.entries = append(a.entries, Entry{Result: res, Grade: grade})
}

// Len returns the number of entries recorded so far.
func (a *Aggregator) Len() int { return len(a.entries) }

// Tally recomputes the running summary from the entry sequence.
func (a *Aggregator) Tally() Summary {
	return tally(a.entries)
}

func tally(entries []Entry) Summary {
	s := Summary{Total: len(entries)}
	for _, e := range entries {
		switch {
		case e.Grade == nil:
			s.Ungraded++
		case e.Grade.Verdict == types.VerdictPass:
			s.Passed++
		default:
			s.Failed++
		}
	}
	return s
}

// RunReport is the immutable snapshot of a finished run.
type RunReport struct {
	RunID      string    `json:"run_id"`
	Scenario   string    `json:"scenario"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Entries    []Entry   `json:"entries"`
	Summary    Summary   `json:"summary"`
}

// Finalize snapshots the aggregation. The snapshot owns its own entry slice;
// later Appends do not leak into it.
func (a *Aggregator) Finalize() *RunReport {
	return &RunReport{
		RunID:      a.runID,
		Scenario:   a.scenario,
		StartedAt:  a.startedAt,
		FinishedAt: time.Now().UTC(),
		Entries:    append([]Entry(nil), a.entries...),
		Summary:    a.Tally(),
	}
}
