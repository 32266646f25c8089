// Package target defines the interactive session handle the runner drives.
// Session lifecycle (launching a browser, authentication, teardown) belongs to
// the caller; the handle only submits prompts and observes the rendered state.
package target

import "context"

// Marker states as rendered by the target. Running markers have not reached a
// terminal state yet; their output may still be empty.
const (
	MarkerStateRunning = "running"
	MarkerStateSuccess = "success"
	MarkerStateError   = "error"
)

// Marker is one tool-call marker as currently rendered alongside a reply.
type Marker struct {
	ToolName string
	Input    string
	Output   string
	State    string
}

// IsTerminal reports whether the marker has settled into a final state.
func (m Marker) IsTerminal() bool {
	return m.State == MarkerStateSuccess || m.State == MarkerStateError
}

// Handle is an open interactive session with the agent under test.
//
// SampleReply and ListMarkers observe mutable UI state and may be called
// repeatedly; both return the current snapshot without waiting for changes.
type Handle interface {
	// Submit sends the prompt text to the agent and returns once the
	// submission is acknowledged.
	Submit(ctx context.Context, text string) error

	// SampleReply returns the current text of the latest agent reply.
	// Wraps types.ErrSourceUnavailable when no reply region exists.
	SampleReply(ctx context.Context) (string, error)

	// ListMarkers returns every tool-call marker rendered so far in the
	// session, oldest first. The list is append-only within a session.
	ListMarkers(ctx context.Context) ([]Marker, error)
}
