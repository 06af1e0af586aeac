package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/socify/socify_downloader/internal/downloader"
	"github.com/socify/socify_downloader/internal/extractor"
	"github.com/socify/socify_downloader/internal/intake"
	"github.com/socify/socify_downloader/internal/orchestrator"
	"github.com/socify/socify_downloader/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRetriever struct {
	mu      sync.Mutex
	targets []downloader.Target
	err     error
}

func (m *mockRetriever) Retrieve(_ context.Context, target downloader.Target) (*downloader.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.targets = append(m.targets, target)
	if m.err != nil {
		return nil, m.err
	}

	return &downloader.Result{Name: target.Name, Path: "/out/" + target.Name, Bytes: 42}, nil
}

func (m *mockRetriever) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.targets)
}

type bridgeFixture struct {
	handler      http.Handler
	orchestrator *orchestrator.Orchestrator
	retriever    *mockRetriever
}

func newBridgeFixture(t *testing.T, backend http.HandlerFunc) *bridgeFixture {
	t.Helper()

	ts := httptest.NewServer(backend)
	t.Cleanup(ts.Close)

	store := workflow.NewStore()
	rt := &mockRetriever{}
	o := orchestrator.NewOrchestrator(store, extractor.NewClient(ts.URL, ts.Client()), rt, 0, 2, nil)
	t.Cleanup(o.Wait)

	return &bridgeFixture{
		handler:      NewBridgeHandler(intake.NewCollector(store), o).Routes(),
		orchestrator: o,
		retriever:    rt,
	}
}

func filesBackend(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"files":[{"name":"a.jpg","type":"image","size":"12KB"}]}`)
}

func (f *bridgeFixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, workflow.State) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()

	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var state workflow.State
	_ = json.Unmarshal(rec.Body.Bytes(), &state)

	return rec, state
}

func TestBridge_StateStartsIdle(t *testing.T) {
	f := newBridgeFixture(t, filesBackend)

	rec, _ := f.do(t, http.MethodGet, "/state", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"url":"","is_dragging":false,"status":"idle","message":"","files":[],"show_save":false}`, rec.Body.String())
}

func TestBridge_SetURLAndDrag(t *testing.T) {
	f := newBridgeFixture(t, filesBackend)

	rec, state := f.do(t, http.MethodPut, "/url", `{"url":"not a url at all"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "not a url at all", state.URL)

	_, state = f.do(t, http.MethodPost, "/drag", `{"dragging":true}`)
	assert.True(t, state.IsDragging)

	_, state = f.do(t, http.MethodPost, "/drag", `{"dragging":false}`)
	assert.False(t, state.IsDragging)
	assert.Equal(t, "not a url at all", state.URL)
}

func TestBridge_Drop(t *testing.T) {
	f := newBridgeFixture(t, filesBackend)

	f.do(t, http.MethodPost, "/drag", `{"dragging":true}`)

	rec, state := f.do(t, http.MethodPost, "/drop", `{"text":"https://www.instagram.com/reel/abc/"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://www.instagram.com/reel/abc/", state.URL)
	assert.False(t, state.IsDragging)

	rec, state = f.do(t, http.MethodPost, "/drop", `{"text":"https://example.com/x"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "https://www.instagram.com/reel/abc/", state.URL)
	assert.Equal(t, workflow.StatusError, state.Status)
	assert.Equal(t, "Please drop a valid Instagram URL", state.Message)
}

func TestBridge_BadBody(t *testing.T) {
	f := newBridgeFixture(t, filesBackend)

	rec, _ := f.do(t, http.MethodPut, "/url", `{"url":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"invalid request body"}`, rec.Body.String())
}

func TestBridge_SubmitEmptyURL(t *testing.T) {
	f := newBridgeFixture(t, filesBackend)

	rec, state := f.do(t, http.MethodPost, "/submit", "")

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "Please enter an Instagram URL", state.Message)
}

func TestBridge_SubmitAndSave(t *testing.T) {
	f := newBridgeFixture(t, filesBackend)

	f.do(t, http.MethodPut, "/url", `{"url":"https://instagram.com/p/X"}`)

	rec, state := f.do(t, http.MethodPost, "/submit", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, workflow.StatusLoading, state.Status)

	f.orchestrator.Wait()

	_, state = f.do(t, http.MethodGet, "/state", "")
	require.Equal(t, workflow.StatusSuccess, state.Status)
	assert.True(t, state.ShowSave)
	assert.Equal(t, 1, f.retriever.count(), "automatic retrieval ran")

	rec, _ = f.do(t, http.MethodPost, "/files/0/save", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"name":"a.jpg","path":"/out/a.jpg","bytes":42}`, rec.Body.String())
	assert.Equal(t, 2, f.retriever.count())

	rec, _ = f.do(t, http.MethodPost, "/files/7/save", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/files/x/save", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBridge_SubmitWhileLoading(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	f := newBridgeFixture(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		filesBackend(w, r)
	})

	f.do(t, http.MethodPut, "/url", `{"url":"https://instagram.com/p/X"}`)

	rec, _ := f.do(t, http.MethodPost, "/submit", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/submit", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBridge_SaveRequiresProcessedContent(t *testing.T) {
	f := newBridgeFixture(t, filesBackend)

	rec, _ := f.do(t, http.MethodPost, "/files/0/save", "")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, f.retriever.count())
}

func TestBridge_SaveFailure(t *testing.T) {
	f := newBridgeFixture(t, filesBackend)
	f.retriever.err = &downloader.RetrievalError{Name: "a.jpg", StatusCode: http.StatusNotFound, Reason: "unexpected status"}

	f.do(t, http.MethodPut, "/url", `{"url":"https://instagram.com/p/X"}`)
	f.do(t, http.MethodPost, "/submit", "")
	f.orchestrator.Wait()

	rec, _ := f.do(t, http.MethodPost, "/files/0/save", "")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"retrieval of a.jpg failed: unexpected status (HTTP 404)"}`, rec.Body.String())

	_, state := f.do(t, http.MethodGet, "/state", "")
	assert.Equal(t, workflow.StatusSuccess, state.Status, "a failed save leaves the status alone")
}

func TestBridge_BackendFailureSurfacesInState(t *testing.T) {
	f := newBridgeFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"message":"Invalid URL"}`)
	})

	f.do(t, http.MethodPut, "/url", `{"url":"https://instagram.com/p/nope"}`)
	f.do(t, http.MethodPost, "/submit", "")
	f.orchestrator.Wait()

	_, state := f.do(t, http.MethodGet, "/state", "")
	assert.Equal(t, workflow.StatusError, state.Status)
	assert.Equal(t, "Invalid URL", state.Message)
	assert.Empty(t, state.Files)
	assert.Zero(t, f.retriever.count())
}

func TestBridge_UnknownRoute(t *testing.T) {
	f := newBridgeFixture(t, filesBackend)

	req := httptest.NewRequest(http.MethodDelete, "/state", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
