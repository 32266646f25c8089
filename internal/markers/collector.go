// Package markers recovers tool invocations from the markers a chat UI
// renders alongside a reply.
package markers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/promptproof/promptproof/internal/target"
	"github.com/promptproof/promptproof/pkg/types"
)

// Lister enumerates the tool-call markers currently rendered, oldest first.
// target.Handle satisfies it.
type Lister interface {
	ListMarkers(ctx context.Context) ([]target.Marker, error)
}

// Config tunes marker resolution.
type Config struct {
	// ResolveTimeout bounds the wait for a single marker to reach a terminal
	// state. A marker still running at the deadline is kept with an
	// unresolved output sentinel instead of being dropped. Default 15s.
	ResolveTimeout time.Duration
	// PollInterval is the sleep between marker list polls. Default 250ms.
	PollInterval time.Duration

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.ResolveTimeout <= 0 {
		c.ResolveTimeout = 15 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Collector scrapes markers from one session and returns only those not yet
// seen. One Collector per session; the checkpoint is the count of markers
// already handed out, which stays valid because the session's marker list is
// append-only.
type Collector struct {
	lister Lister
	cfg    Config
	offset int
}

// NewCollector creates a Collector over the given session.
func NewCollector(lister Lister, cfg Config) *Collector {
	return &Collector{lister: lister, cfg: cfg.withDefaults()}
}

// Collect returns the invocations observed since the previous call, in
// rendering order. Repeated calls with no new markers return nothing: a
// marker is handed out exactly once.
//
// Markers may render before their result is ready, so Collect waits per
// marker for a terminal state, bounded by ResolveTimeout. On a context error
// the invocations gathered so far are returned alongside it.
func (c *Collector) Collect(ctx context.Context) ([]types.ToolInvocation, error) {
	listed, err := c.lister.ListMarkers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list markers: %w", err)
	}
	if len(listed) <= c.offset {
		return nil, nil
	}

	var out []types.ToolInvocation
	for i := c.offset; i < len(listed); i++ {
		m, resolveErr := c.resolve(ctx, i, listed[i])
		inv := c.toInvocation(i, m, resolveErr)
		out = append(out, inv)
		c.offset = i + 1

		if resolveErr != nil && ctx.Err() != nil {
			return out, resolveErr
		}
	}
	return out, nil
}

// resolve re-polls the marker list until the marker at index idx reaches a
// terminal state or the per-marker timeout fires.
func (c *Collector) resolve(ctx context.Context, idx int, m target.Marker) (target.Marker, error) {
	if m.IsTerminal() {
		return m, nil
	}

	deadline := time.Now().Add(c.cfg.ResolveTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return m, err
		}
		if !time.Now().Before(deadline) {
			return m, fmt.Errorf("marker %d (%s) not terminal after %s: %w",
				idx, m.ToolName, c.cfg.ResolveTimeout, types.ErrTimeoutExceeded)
		}

		select {
		case <-ctx.Done():
			return m, ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}

		listed, err := c.lister.ListMarkers(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return m, ctxErr
			}
			c.cfg.Logger.Warn("marker re-poll failed", "index", idx, "err", err)
			continue
		}
		if idx < len(listed) {
			m = listed[idx]
			if m.IsTerminal() {
				return m, nil
			}
		}
	}
}

// toInvocation converts a marker into a ToolInvocation, substituting
// sentinels for missing or unrecoverable fields.
func (c *Collector) toInvocation(idx int, m target.Marker, resolveErr error) types.ToolInvocation {
	inv := types.ToolInvocation{
		ToolName: m.ToolName,
		Input:    rawJSON(m.Input),
		Sequence: idx,
	}

	switch {
	case m.ToolName == "":
		// Unparseable marker: kept for the audit trail rather than dropped.
		c.cfg.Logger.Warn("malformed tool marker retained",
			"index", idx, "state", m.State, "err", types.ErrMalformedInvocation)
		inv.ToolName = "unknown"
		inv.Output = sentinel(types.OutputUnparseable)
	case resolveErr != nil:
		c.cfg.Logger.Warn("tool marker unresolved at timeout", "index", idx, "tool", m.ToolName)
		inv.Output = sentinel(types.OutputUnresolved)
	default:
		inv.Output = rawJSON(m.Output)
	}
	return inv
}

// rawJSON passes valid JSON through untouched and quotes everything else, so
// plain-text marker payloads survive serialization.
func rawJSON(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	quoted, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	return quoted
}

func sentinel(name string) json.RawMessage {
	quoted, _ := json.Marshal(name)
	return quoted
}
