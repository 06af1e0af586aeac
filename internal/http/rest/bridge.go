package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/socify/socify_downloader/internal/intake"
	"github.com/socify/socify_downloader/internal/logctx"
	"github.com/socify/socify_downloader/internal/orchestrator"
	"github.com/socify/socify_downloader/internal/workflow"
)

const maxBodySize = 64 * 1024

type urlRequest struct {
	URL string `json:"url"`
}

type dropRequest struct {
	Text string `json:"text"`
}

type dragRequest struct {
	Dragging bool `json:"dragging"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type saveResponse struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Bytes int64  `json:"bytes"`
}

// BridgeHandler exposes the input collector and the orchestrator to a local UI.
type BridgeHandler struct {
	collector    *intake.Collector
	orchestrator *orchestrator.Orchestrator
}

// NewBridgeHandler creates a new bridge handler.
func NewBridgeHandler(collector *intake.Collector, o *orchestrator.Orchestrator) *BridgeHandler {
	return &BridgeHandler{
		collector:    collector,
		orchestrator: o,
	}
}

func (h *BridgeHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/state", h.HandleState)
	r.Put("/url", h.HandleSetURL)
	r.Post("/drop", h.HandleDrop)
	r.Post("/drag", h.HandleDrag)
	r.Post("/submit", h.HandleSubmit)
	r.Post("/files/{index}/save", h.HandleSaveFile)

	return r
}

// HandleState returns the current workflow snapshot.
func (h *BridgeHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, h.orchestrator.State())
}

// HandleSetURL mirrors typing into the URL field. No validation happens here.
func (h *BridgeHandler) HandleSetURL(w http.ResponseWriter, r *http.Request) {
	var req urlRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	writeJSON(r.Context(), w, http.StatusOK, h.collector.SetURLFromText(r.Context(), req.URL))
}

// HandleDrop receives dropped text. A rejected drop answers 422 with the resulting state.
func (h *BridgeHandler) HandleDrop(w http.ResponseWriter, r *http.Request) {
	var req dropRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	status := http.StatusOK
	if !h.collector.HandleDrop(r.Context(), req.Text) {
		status = http.StatusUnprocessableEntity
	}

	writeJSON(r.Context(), w, status, h.orchestrator.State())
}

// HandleDrag toggles the drag-over highlight.
func (h *BridgeHandler) HandleDrag(w http.ResponseWriter, r *http.Request) {
	var req dragRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var state workflow.State
	if req.Dragging {
		state = h.collector.DragOver(r.Context())
	} else {
		state = h.collector.DragLeave(r.Context())
	}

	writeJSON(r.Context(), w, http.StatusOK, state)
}

// HandleSubmit submits the current URL. The submission outlives the request; clients
// poll /state for the outcome.
func (h *BridgeHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	current := h.orchestrator.State()
	if current.IsLoading() {
		writeJSON(ctx, w, http.StatusConflict, errorResponse{Error: "a submission is already in progress"})

		return
	}

	state := h.orchestrator.SubmitAsync(context.WithoutCancel(ctx), current.URL)
	if state.Status == workflow.StatusError {
		writeJSON(ctx, w, http.StatusUnprocessableEntity, state)

		return
	}

	writeJSON(ctx, w, http.StatusAccepted, state)
}

// HandleSaveFile runs the save action for one file of the current result.
func (h *BridgeHandler) HandleSaveFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	state := h.orchestrator.State()
	if !state.ShowSave {
		writeJSON(ctx, w, http.StatusConflict, errorResponse{Error: "no processed content to save"})

		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 || index >= len(state.Files) {
		writeJSON(ctx, w, http.StatusNotFound, errorResponse{Error: "unknown file"})

		return
	}

	res, err := h.orchestrator.TriggerFileRetrieval(ctx, state.Files[index])
	if err != nil {
		logger.Error("save action failed", "index", index, "err", err)

		writeJSON(ctx, w, http.StatusBadGateway, errorResponse{Error: err.Error()})

		return
	}

	writeJSON(ctx, w, http.StatusOK, saveResponse{Name: res.Name, Path: res.Path, Bytes: res.Bytes})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v); err != nil {
		logctx.LoggerFromContext(r.Context()).Debug("failed to decode request", "err", err)
		writeJSON(r.Context(), w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})

		return false
	}

	return true
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to encode response", "err", err)
	}
}
