package notifier

import (
	"context"
	"fmt"
	"sync"

	"github.com/socify/socify_downloader/internal/logctx"
	"github.com/socify/socify_downloader/internal/orchestrator"
	"github.com/socify/socify_downloader/internal/workflow"
)

// Dispatcher turns workflow events into notifications. Sends happen off the caller's
// goroutine since store subscribers must not block.
type Dispatcher struct {
	notifier Notifier
	wg       sync.WaitGroup
}

func NewDispatcher(n Notifier) *Dispatcher {
	return &Dispatcher{notifier: n}
}

// OnTransition is a workflow.Subscriber reporting how each submission ended.
func (d *Dispatcher) OnTransition(ctx context.Context, prev, next workflow.State) {
	if !prev.IsLoading() || next.IsLoading() {
		return
	}

	switch next.Status {
	case workflow.StatusSuccess:
		d.send(ctx, fmt.Sprintf("✅ Content processed for %s: %d file(s) ready", next.URL, len(next.Files)))
	case workflow.StatusError:
		d.send(ctx, fmt.Sprintf("❌ Processing failed for %s: %s", next.URL, next.Message))
	}
}

// OnRetrieval reports failed file retrievals.
func (d *Dispatcher) OnRetrieval(ctx context.Context, r orchestrator.Retrieval) {
	if r.Err == nil {
		return
	}

	d.send(ctx, "❌ Download failed for file: "+r.File.Name)
}

// Wait blocks until every pending notification has been sent or has failed.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) send(ctx context.Context, content string) {
	ctx = context.WithoutCancel(ctx)

	d.wg.Add(1)

	go func() {
		defer d.wg.Done()

		if err := d.notifier.Notify(ctx, content); err != nil {
			logctx.LoggerFromContext(ctx).Error("failed to send notification", "err", err)
		}
	}()
}
