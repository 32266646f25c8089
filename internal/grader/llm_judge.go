package grader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/promptproof/promptproof/internal/llm"
	"github.com/promptproof/promptproof/pkg/types"
)

const judgeSystemPrompt = `You grade one turn of a scripted conversation with a tool-using agent.
You are given the user's prompt, the tools the scenario expected the agent to
invoke, the agent's final reply, and the tool invocations actually observed.

Judge whether the reply accomplishes what the prompt asked for. Respond with
exactly one JSON object and nothing else:
{"verdict": "pass" or "fail", "reason": "<one sentence>", "task_done": true or false}`

// LLMJudge implements Judge on top of an llm.Provider.
type LLMJudge struct {
	provider llm.Provider
	model    string
	timeout  time.Duration
}

// NewLLMJudge creates an LLMJudge using the provider's default model.
func NewLLMJudge(provider llm.Provider) *LLMJudge {
	return &LLMJudge{
		provider: provider,
		model:    provider.DefaultModel(),
		timeout:  judgeTimeout(),
	}
}

// judgeTimeout reads the judgment call timeout from PROMPTPROOF_JUDGE_TIMEOUT_S.
// Defaults to 30 seconds if unset or invalid.
func judgeTimeout() time.Duration {
	v := os.Getenv("PROMPTPROOF_JUDGE_TIMEOUT_S")
	if v == "" {
		return 30 * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 30 * time.Second
	}
	return time.Duration(n) * time.Second
}

func (j *LLMJudge) Judge(ctx context.Context, req Request) (Judgment, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	resp, err := j.provider.Complete(ctx, &llm.CompletionRequest{
		Model:        j.model,
		SystemPrompt: judgeSystemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: buildJudgeContent(req)}},
		Temperature:  0.0,
		MaxTokens:    256,
	})
	if err != nil {
		return Judgment{}, fmt.Errorf("judgment call: %w", err)
	}

	judgment, err := ParseJudgment(resp.Content)
	if err != nil {
		return Judgment{}, fmt.Errorf("parse judge response: %w", err)
	}
	return judgment, nil
}

// buildJudgeContent renders one judgment request as the user message.
func buildJudgeContent(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Prompt:\n%s\n\n", req.PromptText)
	if len(req.ExpectedTools) > 0 {
		fmt.Fprintf(&b, "Expected tools: %s\n\n", strings.Join(req.ExpectedTools, ", "))
	}
	fmt.Fprintf(&b, "Agent reply:\n%s\n\n", req.ResponseText)

	if len(req.Invocations) == 0 {
		b.WriteString("Observed tool invocations: none\n")
		return b.String()
	}
	b.WriteString("Observed tool invocations:\n")
	for _, inv := range req.Invocations {
		fmt.Fprintf(&b, "- %s input=%s output=%s\n", inv.ToolName, compactRaw(inv.Input), compactRaw(inv.Output))
	}
	return b.String()
}

func compactRaw(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

// judgeReply is the JSON shape the judge is instructed to return.
type judgeReply struct {
	Verdict  string `json:"verdict"`
	Reason   string `json:"reason"`
	TaskDone bool   `json:"task_done"`
}

// ParseJudgment extracts a Judgment from raw model output, tolerating
// surrounding code fences and whitespace.
func ParseJudgment(content string) (Judgment, error) {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var reply judgeReply
	if err := json.Unmarshal([]byte(trimmed), &reply); err != nil {
		return Judgment{}, fmt.Errorf("not a verdict object: %w", err)
	}

	verdict := strings.ToLower(strings.TrimSpace(reply.Verdict))
	if verdict != types.VerdictPass && verdict != types.VerdictFail {
		return Judgment{}, fmt.Errorf("unknown verdict %q", reply.Verdict)
	}
	return Judgment{Verdict: verdict, Reason: reply.Reason, TaskDone: reply.TaskDone}, nil
}
