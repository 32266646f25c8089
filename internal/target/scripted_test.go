package target

import (
	"context"
	"errors"
	"testing"

	"github.com/promptproof/promptproof/pkg/types"
)

func TestScriptedTargetPlaysTurnsInOrder(t *testing.T) {
	st := NewScriptedTarget(
		ScriptedTurn{Revisions: []string{"first"}},
		ScriptedTurn{Revisions: []string{"sec", "second"}},
	)
	ctx := context.Background()

	if err := st.Submit(ctx, "one"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	got, err := st.SampleReply(ctx)
	if err != nil || got != "first" {
		t.Fatalf("SampleReply = %q, %v; want %q", got, err, "first")
	}

	if err := st.Submit(ctx, "two"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	for _, want := range []string{"sec", "second", "second"} {
		got, err := st.SampleReply(ctx)
		if err != nil || got != want {
			t.Fatalf("SampleReply = %q, %v; want %q", got, err, want)
		}
	}
}

func TestScriptedTargetSampleBeforeSubmit(t *testing.T) {
	st := NewScriptedTarget(ScriptedTurn{Revisions: []string{"hi"}})

	_, err := st.SampleReply(context.Background())
	if !errors.Is(err, types.ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
}

func TestScriptedTargetSubmitPastScript(t *testing.T) {
	st := NewScriptedTarget(ScriptedTurn{Revisions: []string{"only"}})
	ctx := context.Background()

	if err := st.Submit(ctx, "one"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := st.Submit(ctx, "two"); !errors.Is(err, types.ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
}

func TestScriptedTargetMarkersAccumulateAcrossTurns(t *testing.T) {
	st := NewScriptedTarget(
		ScriptedTurn{Revisions: []string{"a"}, Markers: []Marker{
			{ToolName: "create_issue", State: MarkerStateSuccess, Output: `{"issueId": 42}`},
		}},
		ScriptedTurn{Revisions: []string{"b"}, Markers: []Marker{
			{ToolName: "close_issue", State: MarkerStateSuccess},
		}},
	)
	ctx := context.Background()

	if err := st.Submit(ctx, "one"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := st.Submit(ctx, "two"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	markers, err := st.ListMarkers(ctx)
	if err != nil {
		t.Fatalf("ListMarkers: %v", err)
	}
	if len(markers) != 2 {
		t.Fatalf("got %d markers, want 2", len(markers))
	}
	if markers[0].ToolName != "create_issue" || markers[1].ToolName != "close_issue" {
		t.Fatalf("marker order wrong: %q, %q", markers[0].ToolName, markers[1].ToolName)
	}
}

func TestScriptedTargetDeferredResolution(t *testing.T) {
	st := NewScriptedTarget(ScriptedTurn{
		Revisions: []string{"done"},
		Markers: []Marker{
			{ToolName: "create_issue", State: MarkerStateSuccess, Output: `{"issueId": 7}`},
		},
		ResolveAfterLists: 2,
	})
	ctx := context.Background()

	if err := st.Submit(ctx, "go"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	markers, _ := st.ListMarkers(ctx)
	if markers[0].State != MarkerStateRunning {
		t.Fatalf("state after first list = %q, want running", markers[0].State)
	}
	markers, _ = st.ListMarkers(ctx)
	if markers[0].State != MarkerStateSuccess {
		t.Fatalf("state after second list = %q, want success", markers[0].State)
	}
	if markers[0].Output != `{"issueId": 7}` {
		t.Fatalf("output not restored on resolution: %q", markers[0].Output)
	}
}

func TestScriptedTargetHonorsCancellation(t *testing.T) {
	st := NewScriptedTarget(ScriptedTurn{Revisions: []string{"x"}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := st.Submit(ctx, "one"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Submit err = %v, want context.Canceled", err)
	}
	if _, err := st.SampleReply(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("SampleReply err = %v, want context.Canceled", err)
	}
	if _, err := st.ListMarkers(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("ListMarkers err = %v, want context.Canceled", err)
	}
}
