package grader

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/promptproof/promptproof/internal/llm"
	"github.com/promptproof/promptproof/pkg/types"
)

// stubJudge returns a fixed judgment or error and records the last request.
type stubJudge struct {
	judgment Judgment
	err      error
	calls    int
	lastReq  Request
}

func (s *stubJudge) Judge(_ context.Context, req Request) (Judgment, error) {
	s.calls++
	s.lastReq = req
	if s.err != nil {
		return Judgment{}, s.err
	}
	return s.judgment, nil
}

func TestGrade_SkipsWhenValidationDisabled(t *testing.T) {
	judge := &stubJudge{judgment: Judgment{Verdict: types.VerdictPass}}
	g := New(judge, nil)

	res := &types.PromptResult{
		Prompt: types.PromptSpec{Text: "setup step", ValidateResponse: false},
	}

	grade, err := g.Grade(context.Background(), res)
	if err != nil {
		t.Fatalf("Grade error: %v", err)
	}
	if grade != nil {
		t.Errorf("grade = %+v, want nil for validateResponse=false", grade)
	}
	if judge.calls != 0 {
		t.Errorf("judge called %d times, want 0", judge.calls)
	}
}

func TestGrade_ToolMismatchOverridesJudge(t *testing.T) {
	// The external judgment says pass; the deterministic check must win.
	judge := &stubJudge{judgment: Judgment{Verdict: types.VerdictPass, Reason: "looks great", TaskDone: true}}
	g := New(judge, nil)

	res := &types.PromptResult{
		Prompt: types.PromptSpec{
			Text:             "Create an issue",
			ExpectedTools:    []string{"create_issue"},
			ValidateResponse: true,
		},
		ResponseText: "Here are your issues",
		Invocations:  []types.ToolInvocation{{ToolName: "list_issues"}},
	}

	grade, err := g.Grade(context.Background(), res)
	if err != nil {
		t.Fatalf("Grade error: %v", err)
	}
	if grade.Verdict != types.VerdictFail {
		t.Errorf("Verdict = %q, want fail regardless of judge opinion", grade.Verdict)
	}
	if !strings.HasPrefix(grade.Reason, "tool mismatch") {
		t.Errorf("Reason = %q, want tool mismatch stated first", grade.Reason)
	}
	if !strings.Contains(grade.Reason, "looks great") {
		t.Errorf("Reason = %q, should retain the judge's reasoning", grade.Reason)
	}
}

func TestGrade_ToolMatchPasses(t *testing.T) {
	judge := &stubJudge{judgment: Judgment{Verdict: types.VerdictPass, Reason: "issue created", TaskDone: true}}
	g := New(judge, nil)

	res := &types.PromptResult{
		Prompt: types.PromptSpec{
			Text:             "Create an issue titled 'Test Issue'",
			ExpectedTools:    []string{"create_issue"},
			ValidateResponse: true,
		},
		ResponseText: "Created issue #42",
		Invocations: []types.ToolInvocation{
			{ToolName: "create_issue", Output: json.RawMessage(`{"issueId":42}`)},
		},
		TaskDone: true,
	}

	grade, err := g.Grade(context.Background(), res)
	if err != nil {
		t.Fatalf("Grade error: %v", err)
	}
	if grade.Verdict != types.VerdictPass {
		t.Errorf("Verdict = %q, want pass", grade.Verdict)
	}
	if !grade.TaskDone {
		t.Error("TaskDone = false, want true")
	}
}

func TestGrade_NoExpectedToolsDefersToJudge(t *testing.T) {
	judge := &stubJudge{judgment: Judgment{Verdict: types.VerdictFail, Reason: "reply off topic"}}
	g := New(judge, nil)

	res := &types.PromptResult{
		Prompt:       types.PromptSpec{Text: "Say hello", ValidateResponse: true},
		ResponseText: "42",
		Invocations:  []types.ToolInvocation{{ToolName: "random_tool"}},
	}

	grade, err := g.Grade(context.Background(), res)
	if err != nil {
		t.Fatalf("Grade error: %v", err)
	}
	if grade.Verdict != types.VerdictFail || grade.Reason != "reply off topic" {
		t.Errorf("grade = %+v, want the judge's verdict untouched", grade)
	}
}

func TestGrade_JudgmentUnavailable(t *testing.T) {
	judge := &stubJudge{err: errors.New("api: 503")}
	g := New(judge, nil)

	res := &types.PromptResult{
		Prompt: types.PromptSpec{Text: "anything", ValidateResponse: true},
	}

	grade, err := g.Grade(context.Background(), res)
	if !errors.Is(err, types.ErrJudgmentUnavailable) {
		t.Fatalf("err = %v, want ErrJudgmentUnavailable", err)
	}
	if grade != nil {
		t.Errorf("grade = %+v, want nil: a failed judge must not default to a verdict", grade)
	}
}

func TestToolsMatch(t *testing.T) {
	cases := []struct {
		name     string
		expected []string
		actual   []string
		want     bool
	}{
		{"exact", []string{"a"}, []string{"a"}, true},
		{"order ignored", []string{"a", "b"}, []string{"b", "a"}, true},
		{"duplicates collapse", []string{"a"}, []string{"a", "a"}, true},
		{"missing", []string{"a", "b"}, []string{"a"}, false},
		{"extra", []string{"a"}, []string{"a", "b"}, false},
		{"disjoint", []string{"create_issue"}, []string{"list_issues"}, false},
		{"both empty", nil, nil, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := toolsMatch(c.expected, c.actual); got != c.want {
				t.Errorf("toolsMatch(%v, %v) = %v, want %v", c.expected, c.actual, got, c.want)
			}
		})
	}
}

func TestLLMJudge_ParsesVerdict(t *testing.T) {
	mock := llm.NewMockProvider([]*llm.CompletionResponse{
		{Content: "```json\n{\"verdict\": \"pass\", \"reason\": \"did the thing\", \"task_done\": true}\n```"},
	}, nil)
	j := NewLLMJudge(mock)

	judgment, err := j.Judge(context.Background(), Request{
		PromptText:    "Create an issue",
		ExpectedTools: []string{"create_issue"},
		ResponseText:  "Created issue #42",
	})
	if err != nil {
		t.Fatalf("Judge error: %v", err)
	}
	if judgment.Verdict != types.VerdictPass {
		t.Errorf("Verdict = %q, want pass", judgment.Verdict)
	}
	if !judgment.TaskDone {
		t.Error("TaskDone = false, want true")
	}

	req := mock.LastRequest
	if req == nil {
		t.Fatal("no request recorded")
	}
	if !strings.Contains(req.Messages[0].Content, "create_issue") {
		t.Error("judge content does not mention expected tools")
	}
	if !strings.Contains(req.Messages[0].Content, "Created issue #42") {
		t.Error("judge content does not include the agent reply")
	}
}

func TestParseJudgment_Malformed(t *testing.T) {
	for _, content := range []string{
		"",
		"definitely a pass!",
		`{"verdict": "maybe", "reason": "?"}`,
	} {
		if _, err := ParseJudgment(content); err == nil {
			t.Errorf("ParseJudgment(%q): expected error", content)
		}
	}
}

func TestParseJudgment_CaseInsensitiveVerdict(t *testing.T) {
	judgment, err := ParseJudgment(`{"verdict": "PASS", "reason": "ok"}`)
	if err != nil {
		t.Fatalf("ParseJudgment error: %v", err)
	}
	if judgment.Verdict != types.VerdictPass {
		t.Errorf("Verdict = %q, want normalized pass", judgment.Verdict)
	}
}
