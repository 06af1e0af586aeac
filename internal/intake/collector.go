// Package intake collects the candidate content URL from typed text or a drag-and-drop payload.
package intake

import (
	"context"
	"strings"

	"github.com/socify/socify_downloader/internal/logctx"
	"github.com/socify/socify_downloader/internal/workflow"
)

// acceptedHost is a containment check, not a URL validator.
const acceptedHost = "instagram.com"

type Collector struct {
	store *workflow.Store
}

func NewCollector(store *workflow.Store) *Collector {
	return &Collector{store: store}
}

// SetURLFromText stores value as the current URL, whatever it contains.
func (c *Collector) SetURLFromText(ctx context.Context, value string) workflow.State {
	return c.store.Update(ctx, func(s workflow.State) workflow.State {
		return s.WithURL(value)
	})
}

// HandleDrop accepts the plain-text payload of a drop event when it mentions instagram.com.
// A rejected payload leaves the URL untouched and flags the workflow with an error.
func (c *Collector) HandleDrop(ctx context.Context, payload string) bool {
	logger := logctx.LoggerFromContext(ctx)

	accepted := strings.Contains(payload, acceptedHost)

	c.store.Update(ctx, func(s workflow.State) workflow.State {
		s = s.Dragging(false)
		if accepted {
			return s.WithURL(payload)
		}

		return s.Rejected(workflow.MsgInvalidDrop)
	})

	if !accepted {
		logger.Debug("drop payload rejected", "payload_len", len(payload))
	}

	return accepted
}

func (c *Collector) DragOver(ctx context.Context) workflow.State {
	return c.store.Update(ctx, func(s workflow.State) workflow.State { return s.Dragging(true) })
}

func (c *Collector) DragLeave(ctx context.Context) workflow.State {
	return c.store.Update(ctx, func(s workflow.State) workflow.State { return s.Dragging(false) })
}
