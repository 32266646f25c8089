package types

import "errors"

// Error taxonomy for a validation run. Per-prompt errors are contained at the
// runner boundary and recorded on the affected PromptResult; only a run-level
// cancellation or timeout stops remaining prompts.
var (
	// ErrSourceUnavailable means the target session could not be sampled or
	// queried at all, e.g. the reply region never appeared.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrTimeoutExceeded means a bounded wait (stabilization, marker
	// resolution, judgment call) elapsed before completion.
	ErrTimeoutExceeded = errors.New("timeout exceeded")

	// ErrMalformedInvocation means a tool marker could not be parsed into a
	// ToolInvocation. The entry is retained with an unparseable sentinel.
	ErrMalformedInvocation = errors.New("malformed invocation")

	// ErrJudgmentUnavailable means the external judgment call failed. The
	// PromptResult stays ungraded rather than defaulting to a verdict.
	ErrJudgmentUnavailable = errors.New("judgment unavailable")
)
