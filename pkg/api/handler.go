package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"fibpipe/pkg/fib"
	"fibpipe/pkg/ingest"
)

// maxBodyBytes bounds POST bodies.
const maxBodyBytes = 4 << 10

// Handler serves the fibpipe HTTP API on top of an ingest.Service.
type Handler struct {
	svc    *ingest.Service
	logger *slog.Logger
	mux    *http.ServeMux
}

// New creates a Handler wired to svc and registers all routes.
// A nil logger selects slog.Default().
func New(svc *ingest.Service, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{svc: svc, logger: logger, mux: http.NewServeMux()}

	h.mux.HandleFunc("/{$}", h.root)
	h.mux.HandleFunc("/api/values/all", h.all)
	h.mux.HandleFunc("/api/values/current", h.current)
	h.mux.HandleFunc("/api/values", h.submit)
	h.mux.HandleFunc("/api/health", h.health)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "Hi") //nolint:errcheck
}

// all returns GET /api/values/all, every durable record in store order.
func (h *Handler) all(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	records, err := h.svc.All(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := make([]RecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, RecordResponse{Number: rec.Number})
	}
	jsonResp(w, http.StatusOK, out)
}

// current returns GET /api/values/current, the cache snapshot.
func (h *Handler) current(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	values, err := h.svc.Current(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if values == nil {
		values = map[string]string{}
	}
	jsonResp(w, http.StatusOK, values)
}

// submit handles POST /api/values.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req SubmitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		jsonErr(w, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
		return
	}

	if _, err := h.svc.Submit(r.Context(), string(req.Index)); err != nil {
		h.fail(w, r, err)
		return
	}
	jsonResp(w, http.StatusOK, SubmitResponse{Working: true})
}

// health returns GET /api/health. It always answers 200; the body says
// which collaborators are ready.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	hs := h.svc.Health(r.Context())
	resp := HealthResponse{
		Redis:          hs.Cache,
		RedisPublisher: hs.Channel,
		Postgres:       hs.Store,
		Status:         "OK",
	}
	if !hs.OK() {
		resp.Status = "DEGRADED"
	}
	jsonResp(w, http.StatusOK, resp)
}

// --- helpers ----------------------------------------------------------------

// fail maps a service error to a status code and writes it.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, fib.ErrTooHigh):
		jsonErr(w, http.StatusUnprocessableEntity, "Index too high")
	case errors.Is(err, ingest.ErrValidation):
		jsonErr(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ingest.ErrDependencyUnavailable):
		jsonErr(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "err", err)
		jsonErr(w, http.StatusInternalServerError, "internal error")
	}
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
