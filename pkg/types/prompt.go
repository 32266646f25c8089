package types

import "encoding/json"

const (
	VerdictPass = "pass"
	VerdictFail = "fail"
)

// Sentinel invocation outputs used when the real output could not be recovered.
const (
	OutputUnresolved  = "unresolved"
	OutputUnparseable = "unparseable"
)

// Failure reasons recorded on a PromptResult by the runner.
const (
	FailureNotStabilized = "response did not stabilize"
	FailureCancelled     = "cancelled"
)

// PromptSpec is one scripted step: the text to submit, the tools the agent is
// expected to invoke, and whether the response should be graded at all.
// Immutable once loaded.
type PromptSpec struct {
	Text             string   `json:"text" yaml:"text"`
	ExpectedTools    []string `json:"expected_tools,omitempty" yaml:"expected_tools"`
	ValidateResponse bool     `json:"validate_response" yaml:"validate_response"`
}

// ToolInvocation records one external action the agent took during a turn.
// Sequence is the observation index within the session; insertion order of a
// PromptResult's invocations equals temporal order of the underlying calls.
type ToolInvocation struct {
	ToolName string          `json:"tool_name"`
	Input    json.RawMessage `json:"input,omitempty"`
	Output   json.RawMessage `json:"output,omitempty"`
	Sequence int             `json:"sequence"`
}

// PromptResult is the raw record of one completed prompt turn. It is never
// mutated after the runner creates it; a Grade is attached alongside it, not
// merged into it.
type PromptResult struct {
	Prompt        PromptSpec       `json:"prompt"`
	ResponseText  string           `json:"response_text"`
	Invocations   []ToolInvocation `json:"invocations,omitempty"`
	TaskDone      bool             `json:"task_done"`
	FailureReason string           `json:"failure_reason,omitempty"`
}

// ToolNames returns the invoked tool names in observation order.
func (r *PromptResult) ToolNames() []string {
	if len(r.Invocations) == 0 {
		return nil
	}
	names := make([]string, len(r.Invocations))
	for i, inv := range r.Invocations {
		names[i] = inv.ToolName
	}
	return names
}

// Grade is the judged verdict for one PromptResult.
type Grade struct {
	Verdict  string `json:"verdict"`
	Reason   string `json:"reason"`
	TaskDone bool   `json:"task_done"`
}

// Passed reports whether the grade's verdict is a pass.
func (g *Grade) Passed() bool {
	return g != nil && g.Verdict == VerdictPass
}
