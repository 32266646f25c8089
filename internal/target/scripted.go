package target

import (
	"context"
	"fmt"
	"sync"

	"github.com/promptproof/promptproof/pkg/types"
)

// ScriptedTurn describes how the fake target behaves after one Submit.
// Revisions are the successive values SampleReply returns for the turn; the
// last revision repeats once exhausted, emulating a reply that has stopped
// streaming. Markers are appended to the session-wide marker list.
type ScriptedTurn struct {
	Revisions []string
	Markers   []Marker

	// SubmitErr, when set, is returned by Submit for this turn.
	SubmitErr error

	// ResolveAfterLists holds this turn's markers in the running state until
	// ListMarkers has been called that many more times. Zero means markers
	// appear already terminal.
	ResolveAfterLists int
}

// ScriptedTarget is an in-memory Handle driven entirely by a script, used to
// test the runner and collector without a browser.
type ScriptedTarget struct {
	mu        sync.Mutex
	turns     []ScriptedTurn
	turnIdx   int
	sampleIdx int

	markers      []Marker
	pendingFrom  int
	pendingFinal []Marker
	resolveLeft  int

	// NeverReady makes SampleReply always fail as if the reply region never
	// rendered.
	NeverReady bool

	SubmitCount int
	SampleCount int
	ListCount   int
}

// NewScriptedTarget creates a target that plays the given turns in order.
func NewScriptedTarget(turns ...ScriptedTurn) *ScriptedTarget {
	return &ScriptedTarget{turns: turns}
}

func (s *ScriptedTarget) Submit(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.SubmitCount++
	if s.turnIdx >= len(s.turns) {
		return fmt.Errorf("scripted target: no turn scripted for submission %d: %w", s.SubmitCount, types.ErrSourceUnavailable)
	}

	turn := s.turns[s.turnIdx]
	s.turnIdx++
	s.sampleIdx = 0

	if turn.SubmitErr != nil {
		return turn.SubmitErr
	}

	s.pendingFrom = len(s.markers)
	s.pendingFinal = append([]Marker(nil), turn.Markers...)
	s.resolveLeft = turn.ResolveAfterLists
	for _, m := range turn.Markers {
		if turn.ResolveAfterLists > 0 {
			m.State = MarkerStateRunning
			m.Output = ""
		}
		s.markers = append(s.markers, m)
	}
	return nil
}

func (s *ScriptedTarget) SampleReply(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.SampleCount++
	if s.NeverReady || s.turnIdx == 0 {
		return "", fmt.Errorf("scripted target: reply region not rendered: %w", types.ErrSourceUnavailable)
	}

	turn := s.turns[s.turnIdx-1]
	if len(turn.Revisions) == 0 {
		return "", nil
	}
	idx := s.sampleIdx
	if idx >= len(turn.Revisions) {
		idx = len(turn.Revisions) - 1
	}
	s.sampleIdx++
	return turn.Revisions[idx], nil
}

func (s *ScriptedTarget) ListMarkers(ctx context.Context) ([]Marker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ListCount++
	if s.resolveLeft > 0 {
		s.resolveLeft--
		if s.resolveLeft == 0 {
			copy(s.markers[s.pendingFrom:], s.pendingFinal)
		}
	}
	return append([]Marker(nil), s.markers...), nil
}
