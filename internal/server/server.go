package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/timeclock/internal/attendance"
)

// applyRequest is the body of a conditional write.
type applyRequest struct {
	Record          attendance.Record `json:"record"`
	ExpectedVersion int64             `json:"expectedVersion"`
}

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Error          string `json:"error"`
	CurrentVersion int64  `json:"currentVersion,omitempty"`
}

// Handler serves the attendance store API.
type Handler struct {
	store  *Store
	logger *slog.Logger
}

// NewHandler creates the HTTP handler for the given store.
// A nil logger falls back to slog.Default().
func NewHandler(store *Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, logger: logger}
}

// Router builds the chi route tree:
//
//	GET /healthz
//	GET /v1/workers/{workerID}/records/latest
//	GET /v1/workers/{workerID}/records/{day}
//	PUT /v1/workers/{workerID}/records/{day}
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(h.requestLog)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// The static "latest" segment takes precedence over the {day}
	// wildcard in chi's routing.
	r.Get("/v1/workers/{workerID}/records/latest", h.getLatest)

	r.Route("/v1/workers/{workerID}/records/{day}", func(r chi.Router) {
		r.Get("/", h.getRecord)
		r.Put("/", h.putRecord)
	})

	return r
}

func (h *Handler) getRecord(w http.ResponseWriter, r *http.Request) {
	workerID := attendance.NormalizeWorkerID(workerParam(r))
	day, err := attendance.ParseDay(chi.URLParam(r, "day"))
	if err != nil || workerID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid worker or day"})
		return
	}

	rec, err := h.store.ReadRecord(r.Context(), workerID, day)
	switch {
	case errors.Is(err, attendance.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no record"})
	case err != nil:
		h.logger.Error("read record failed", "worker", workerID, "day", string(day), "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

func (h *Handler) getLatest(w http.ResponseWriter, r *http.Request) {
	workerID := attendance.NormalizeWorkerID(workerParam(r))
	if workerID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid worker"})
		return
	}

	rec, err := h.store.ReadLatest(r.Context(), workerID)
	switch {
	case errors.Is(err, attendance.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no record"})
	case err != nil:
		h.logger.Error("read latest record failed", "worker", workerID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

func (h *Handler) putRecord(w http.ResponseWriter, r *http.Request) {
	workerID := attendance.NormalizeWorkerID(workerParam(r))
	day, err := attendance.ParseDay(chi.URLParam(r, "day"))
	if err != nil || workerID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid worker or day"})
		return
	}

	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid body"})
		return
	}

	// The URL is authoritative for the key; the body must agree.
	if attendance.NormalizeWorkerID(req.Record.WorkerID) != workerID || req.Record.Day != day {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "record key does not match URL"})
		return
	}
	req.Record.WorkerID = workerID

	if err := req.Record.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	rec, err := h.store.ApplyRecord(r.Context(), req.Record, req.ExpectedVersion)
	if err != nil {
		var ce *attendance.ConflictError
		if errors.As(err, &ce) {
			writeJSON(w, http.StatusConflict, errorResponse{
				Error:          "version conflict",
				CurrentVersion: ce.CurrentVersion,
			})
			return
		}
		h.logger.Error("apply record failed", "worker", workerID, "day", string(day), "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// requestLog logs each request with method, path, status and duration.
func (h *Handler) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		h.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
		)
	})
}

// workerParam extracts the workerID route parameter. chi leaves the
// segment escaped when the request path carries encodings, so decode
// before using it as a key.
func workerParam(r *http.Request) string {
	raw := chi.URLParam(r, "workerID")
	if dec, err := url.PathUnescape(raw); err == nil {
		return dec
	}
	return raw
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
