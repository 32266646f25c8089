package target

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/promptproof/promptproof/pkg/types"
)

// Selectors locate the chat UI elements the handle interacts with. All values
// are CSS selectors; marker fields are read from data attributes on each
// marker root.
type Selectors struct {
	Input  string
	Send   string
	Reply  string
	Marker string

	MarkerNameAttr  string
	MarkerStateAttr string
	MarkerInputAttr string
	MarkerOutput    string
}

// DefaultSelectors matches the data-testid conventions of the reference
// chat UI.
func DefaultSelectors() Selectors {
	return Selectors{
		Input:           `[data-testid="chat-input"]`,
		Send:            `[data-testid="send-button"]`,
		Reply:           `[data-testid="message-assistant"]`,
		Marker:          `[data-testid="tool-call"]`,
		MarkerNameAttr:  "data-tool-name",
		MarkerStateAttr: "data-state",
		MarkerInputAttr: "data-tool-input",
		MarkerOutput:    `[data-testid="tool-result"]`,
	}
}

// RodHandle implements Handle against a live browser page. The page is owned
// by the caller: the handle never navigates, closes, or authenticates it.
type RodHandle struct {
	page    *rod.Page
	sel     Selectors
	timeout time.Duration
}

// NewRodHandle wraps an already-navigated page. timeout bounds each element
// lookup; zero means 10s.
func NewRodHandle(page *rod.Page, sel Selectors, timeout time.Duration) *RodHandle {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RodHandle{page: page, sel: sel, timeout: timeout}
}

func (h *RodHandle) Submit(ctx context.Context, text string) error {
	page := h.page.Context(ctx).Timeout(h.timeout)

	el, err := page.Element(h.sel.Input)
	if err != nil {
		return fmt.Errorf("chat input %q not found: %v: %w", h.sel.Input, err, types.ErrSourceUnavailable)
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("type prompt: %w", err)
	}

	if h.sel.Send == "" {
		if err := el.Type(input.Enter); err != nil {
			return fmt.Errorf("submit prompt: %w", err)
		}
		return nil
	}

	btn, err := page.Element(h.sel.Send)
	if err != nil {
		return fmt.Errorf("send button %q not found: %v: %w", h.sel.Send, err, types.ErrSourceUnavailable)
	}
	if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click send: %w", err)
	}
	return nil
}

// SampleReply reads the text of the last rendered assistant message. It does
// not wait for new messages; stabilization is the caller's concern.
func (h *RodHandle) SampleReply(ctx context.Context) (string, error) {
	page := h.page.Context(ctx).Timeout(h.timeout)

	els, err := page.Elements(h.sel.Reply)
	if err != nil {
		return "", fmt.Errorf("query replies %q: %w", h.sel.Reply, err)
	}
	if len(els) == 0 {
		return "", fmt.Errorf("no reply rendered for %q: %w", h.sel.Reply, types.ErrSourceUnavailable)
	}

	text, err := els[len(els)-1].Text()
	if err != nil {
		return "", fmt.Errorf("read reply text: %w", err)
	}
	return text, nil
}

func (h *RodHandle) ListMarkers(ctx context.Context) ([]Marker, error) {
	page := h.page.Context(ctx).Timeout(h.timeout)

	els, err := page.Elements(h.sel.Marker)
	if err != nil {
		return nil, fmt.Errorf("query markers %q: %w", h.sel.Marker, err)
	}

	markers := make([]Marker, 0, len(els))
	for _, el := range els {
		m := Marker{
			ToolName: attr(el, h.sel.MarkerNameAttr),
			Input:    attr(el, h.sel.MarkerInputAttr),
			State:    normalizeState(attr(el, h.sel.MarkerStateAttr)),
		}
		if h.sel.MarkerOutput != "" {
			if out, outErr := el.Element(h.sel.MarkerOutput); outErr == nil {
				if text, textErr := out.Text(); textErr == nil {
					m.Output = text
				}
			}
		}
		markers = append(markers, m)
	}
	return markers, nil
}

func attr(el *rod.Element, name string) string {
	if name == "" {
		return ""
	}
	v, err := el.Attribute(name)
	if err != nil || v == nil {
		return ""
	}
	return *v
}

// normalizeState folds UI-specific state labels into the three marker states.
func normalizeState(raw string) string {
	switch strings.ToLower(raw) {
	case "success", "completed", "done", "ok":
		return MarkerStateSuccess
	case "error", "failed", "failure":
		return MarkerStateError
	default:
		return MarkerStateRunning
	}
}
