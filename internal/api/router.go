package api

import "net/http"

type RouterOption func(*http.ServeMux)

// WithMetrics mounts a metrics handler at path.
func WithMetrics(path string, handler http.Handler) RouterOption {
	return func(mux *http.ServeMux) {
		if path == "" || handler == nil {
			return
		}
		mux.Handle("GET "+path, handler)
	}
}

func Router(h *Handler, opts ...RouterOption) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", h.Health)
	mux.HandleFunc("GET /v1/modes", h.Modes)
	mux.HandleFunc("GET /v1/connection-status", h.ConnectionStatus)

	mux.HandleFunc("POST /v1/blast/send", h.Send)
	mux.HandleFunc("POST /v1/blast/stop", h.Stop)
	mux.HandleFunc("GET /v1/blast/status", h.Status)
	mux.HandleFunc("GET /v1/blast/stats", h.Stats)
	mux.HandleFunc("GET /v1/blast/sessions", h.ListSessions)
	mux.HandleFunc("GET /v1/blast/sessions/{id}/outcomes", h.ListOutcomes)

	if h.sched != nil {
		mux.HandleFunc("GET /v1/reconciler/status", h.ReconcilerStatus)
		mux.HandleFunc("POST /v1/reconciler/start", h.ReconcilerStart)
		mux.HandleFunc("POST /v1/reconciler/stop", h.ReconcilerStop)
	}

	for _, opt := range opts {
		opt(mux)
	}

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("blastkeun"))
	})

	return mux
}
