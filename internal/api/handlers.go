package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/anotheregi/blastkeun/internal/mode"
	"github.com/anotheregi/blastkeun/internal/model"
	"github.com/anotheregi/blastkeun/internal/scheduler"
	"github.com/anotheregi/blastkeun/internal/service"
)

const (
	OwnerHeader  = "X-Owner-ID"
	maxBodyBytes = 1 << 20
)

// Engine is the subset of service.Engine the handlers need.
type Engine interface {
	Start(ctx context.Context, req service.StartRequest) (*model.Result, error)
	Validate(req service.StartRequest) error
	Stop(ownerID string) bool
	StatusFor(ownerID string) []model.SessionSnapshot
	ListModes() map[model.ModeID]mode.Profile
	DailyStats(ctx context.Context, ownerID string) (map[model.ModeID]model.ModeStats, error)
	History(ctx context.Context, ownerID string, limit, offset int) ([]model.SessionRecord, error)
	Outcomes(ctx context.Context, ownerID string, sessionID int64) ([]model.MessageOutcome, error)
	ConnectionStatus(ctx context.Context) service.ConnectionStatus
}

type Handler struct {
	engine   Engine
	sched    *scheduler.Scheduler
	logger   *slog.Logger
	now      func() time.Time
	shutdown context.Context
}

type HandlerOption func(*Handler)

// WithShutdownContext cancels running campaigns when ctx is done. Without it
// a campaign runs to completion or until stopped.
func WithShutdownContext(ctx context.Context) HandlerOption {
	return func(h *Handler) {
		if ctx != nil {
			h.shutdown = ctx
		}
	}
}

func NewHandler(e Engine, s *scheduler.Scheduler, logger *slog.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		engine:   e,
		sched:    s,
		logger:   logger.With("component", "api"),
		now:      time.Now,
		shutdown: context.Background(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) Modes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"modes": h.engine.ListModes()})
}

func (h *Handler) ConnectionStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.ConnectionStatus(r.Context()))
}

func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req service.StartRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.OwnerID = owner

	if err := h.engine.Validate(req); err != nil {
		h.fail(w, err)
		return
	}

	// The campaign outlives a client disconnect but not a server shutdown.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	defer context.AfterFunc(h.shutdown, cancel)()

	res, err := h.engine.Start(ctx, req)
	if err != nil {
		h.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stopped": h.engine.Stop(owner)})
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": h.engine.StatusFor(owner)})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	stats, err := h.engine.DailyStats(r.Context(), owner)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":  h.now().Format(time.DateOnly),
		"stats": stats,
	})
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	items, err := h.engine.History(r.Context(), owner, limit, offset)
	if err != nil {
		h.fail(w, err)
		return
	}
	if items == nil {
		items = []model.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) ListOutcomes(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	items, err := h.engine.Outcomes(r.Context(), owner, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if items == nil {
		items = []model.MessageOutcome{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) ReconcilerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sched.Status())
}

func (h *Handler) ReconcilerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, h.sched.Status())
}

func (h *Handler) ReconcilerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, h.sched.Status())
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrSessionActive):
		return http.StatusConflict
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func ownerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := strings.TrimSpace(r.Header.Get(OwnerHeader))
	if owner == "" {
		writeError(w, http.StatusBadRequest, OwnerHeader+" header is required")
		return "", false
	}
	return owner, true
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
