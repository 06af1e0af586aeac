// Package orchestrator owns the submission lifecycle: it sends the content URL to the
// extraction backend, folds the answer into the workflow state and retrieves the files.
package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/socify/socify_downloader/internal/downloader"
	"github.com/socify/socify_downloader/internal/extractor"
	"github.com/socify/socify_downloader/internal/logctx"
	"github.com/socify/socify_downloader/internal/telemetry"
	"github.com/socify/socify_downloader/internal/workflow"
	"golang.org/x/sync/errgroup"
)

const (
	outcomeSuccess        = "success"
	outcomeRejected       = "rejected"
	outcomeBackendError   = "backend_error"
	outcomeTransportError = "transport_error"
)

type Extractor interface {
	Extract(ctx context.Context, contentURL string) ([]workflow.FileDescriptor, error)
	FileURL(fd workflow.FileDescriptor) string
}

type Retriever interface {
	Retrieve(ctx context.Context, target downloader.Target) (*downloader.Result, error)
}

// Retrieval is the outcome of one file retrieval.
type Retrieval struct {
	File   workflow.FileDescriptor
	Result *downloader.Result
	Err    error
}

type Orchestrator struct {
	store         *workflow.Store
	extractor     Extractor
	retriever     Retriever
	autoSaveDelay time.Duration
	maxParallel   int
	telemetry     *telemetry.Telemetry

	pending  sync.WaitGroup
	mu       sync.Mutex
	onResult []func(ctx context.Context, r Retrieval)
}

// NewOrchestrator wires the orchestrator to store and subscribes the automatic retrieval
// of freshly returned files, which fires autoSaveDelay after the save actions switch on.
func NewOrchestrator(
	store *workflow.Store,
	ex Extractor,
	retriever Retriever,
	autoSaveDelay time.Duration,
	maxParallel int,
	tel *telemetry.Telemetry,
) *Orchestrator {
	if maxParallel < 1 {
		maxParallel = 1
	}

	o := &Orchestrator{
		store:         store,
		extractor:     ex,
		retriever:     retriever,
		autoSaveDelay: autoSaveDelay,
		maxParallel:   maxParallel,
		telemetry:     tel,
	}

	store.Subscribe(o.scheduleAutoRetrieval)

	return o
}

// OnRetrieval registers fn to be told about every retrieval, automatic or on demand.
func (o *Orchestrator) OnRetrieval(fn func(ctx context.Context, r Retrieval)) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.onResult = append(o.onResult, fn)
}

// State returns the current workflow snapshot.
func (o *Orchestrator) State() workflow.State {
	return o.store.Snapshot()
}

// IsLoading lets front-ends keep the submit control disabled while a request is out.
func (o *Orchestrator) IsLoading() bool {
	return o.store.Snapshot().IsLoading()
}

// Submit runs one submission to completion and returns the resulting state. Every failure
// ends up as an error Status with a message; nothing is returned as a Go error.
func (o *Orchestrator) Submit(ctx context.Context, contentURL string) workflow.State {
	ctx, seq, state, ok := o.begin(ctx, contentURL)
	if !ok {
		return state
	}

	return o.complete(ctx, seq, contentURL)
}

// SubmitAsync enters loading (or rejects the input) before returning, then finishes the
// submission in the background. Wait covers the background part.
func (o *Orchestrator) SubmitAsync(ctx context.Context, contentURL string) workflow.State {
	ctx, seq, state, ok := o.begin(ctx, contentURL)
	if !ok {
		return state
	}

	o.pending.Add(1)

	go func() {
		defer o.pending.Done()

		o.complete(ctx, seq, contentURL)
	}()

	return state
}

func (o *Orchestrator) begin(ctx context.Context, contentURL string) (context.Context, uint64, workflow.State, bool) {
	if strings.TrimSpace(contentURL) == "" {
		logctx.LoggerFromContext(ctx).Debug("submission rejected: empty url")
		o.telemetry.RecordSubmission(ctx, outcomeRejected, 0)

		return ctx, 0, o.store.Update(ctx, func(s workflow.State) workflow.State {
			return s.Rejected(workflow.MsgEmptyURL)
		}), false
	}

	seq, state := o.store.Begin(ctx)

	ctx, logger := logctx.With(ctx, "seq", seq)
	logger.Info("submitting content url", "url", contentURL)

	return ctx, seq, state, true
}

func (o *Orchestrator) complete(ctx context.Context, seq uint64, contentURL string) workflow.State {
	logger := logctx.LoggerFromContext(ctx)

	var files []workflow.FileDescriptor

	elapsed, err := o.telemetry.InstrumentSubmission(ctx, func(ctx context.Context) error {
		var err error

		files, err = o.extract(ctx, contentURL)

		return err
	})

	outcome := outcomeSuccess
	transition := func(s workflow.State) workflow.State { return s.Succeeded(files) }

	if err != nil {
		outcome = classify(err)
		msg := FailureMessage(err)
		transition = func(s workflow.State) workflow.State { return s.Failed(msg) }
	}

	state, applied := o.store.Settle(ctx, seq, transition)
	if !applied {
		logger.Warn("discarding response of a superseded submission", "outcome", outcome)
		o.telemetry.RecordStaleResponse(ctx)

		return state
	}

	o.telemetry.RecordSubmission(ctx, outcome, elapsed)

	if err != nil {
		logger.Error("submission failed", "outcome", outcome, "err", err)
	} else {
		logger.Info("content processed", "file_count", len(files))
	}

	return state
}

// extract calls the backend and turns a panic anywhere on the request path into an error.
func (o *Orchestrator) extract(ctx context.Context, contentURL string) (files []workflow.FileDescriptor, err error) {
	defer func() {
		if r := recover(); r != nil {
			logctx.LoggerFromContext(ctx).Error("extraction panic", "panic", r, "stack", string(debug.Stack()))

			err = &extractor.TransportError{Operation: "extract", Err: fmt.Errorf("%v", r)}
		}
	}()

	return o.extractor.Extract(ctx, contentURL)
}

// TriggerFileRetrieval fetches one descriptor from {base}/api/download/{type}/{name} and
// saves it under its name. Each call is an independent attempt; Status is never touched.
func (o *Orchestrator) TriggerFileRetrieval(ctx context.Context, fd workflow.FileDescriptor) (*downloader.Result, error) {
	logger := logctx.LoggerFromContext(ctx).With("file_name", fd.Name, "file_type", fd.Type)

	target := downloader.Target{URL: o.extractor.FileURL(fd), Name: fd.Name}

	res, err := o.retriever.Retrieve(ctx, target)
	if err != nil {
		logger.Error("file retrieval failed", "err", err)
	} else {
		logger.Debug("file retrieval finished", "path", res.Path)
	}

	o.publish(ctx, Retrieval{File: fd, Result: res, Err: err})

	return res, err
}

// RetrieveAll triggers a retrieval for every descriptor, at most maxParallel at a time,
// and reports the outcomes in input order.
func (o *Orchestrator) RetrieveAll(ctx context.Context, files []workflow.FileDescriptor) []Retrieval {
	out := make([]Retrieval, len(files))

	var g errgroup.Group

	g.SetLimit(o.maxParallel)

	for i, fd := range files {
		g.Go(func() error {
			res, err := o.TriggerFileRetrieval(ctx, fd)
			out[i] = Retrieval{File: fd, Result: res, Err: err}

			return nil
		})
	}

	_ = g.Wait()

	return out
}

// Wait blocks until background submissions and scheduled automatic retrievals have finished.
func (o *Orchestrator) Wait() {
	o.pending.Wait()
}

func (o *Orchestrator) scheduleAutoRetrieval(ctx context.Context, prev, next workflow.State) {
	if !workflow.SaveActivated(prev, next) {
		return
	}

	logger := logctx.LoggerFromContext(ctx)
	files := next.Files

	logger.Debug("scheduling automatic retrieval", "file_count", len(files), "delay", o.autoSaveDelay.String())

	o.pending.Add(1)

	go func() {
		defer o.pending.Done()

		timer := time.NewTimer(o.autoSaveDelay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			logger.Info("automatic retrieval cancelled", "err", ctx.Err())

			return
		case <-timer.C:
		}

		o.RetrieveAll(ctx, files)
	}()
}

func (o *Orchestrator) publish(ctx context.Context, r Retrieval) {
	o.mu.Lock()
	subs := o.onResult
	o.mu.Unlock()

	for _, fn := range subs {
		fn(ctx, r)
	}
}

// FailureMessage is the user-facing text for a failed submission.
func FailureMessage(err error) string {
	if be, ok := extractor.AsBackendError(err); ok {
		if be.Message != "" {
			return be.Message
		}

		return workflow.MsgDownloadFailed
	}

	if msg := err.Error(); msg != "" {
		return msg
	}

	return workflow.MsgUnexpected
}

func classify(err error) string {
	if _, ok := extractor.AsBackendError(err); ok {
		return outcomeBackendError
	}

	return outcomeTransportError
}
