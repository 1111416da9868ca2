package collector

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/event"
)

const clientIDHeader = "openpanel-client-id"

// Handler serves the fake endpoint and its admin routes.
type Handler struct {
	store  *Store
	faults *Faults
	logger *slog.Logger
}

// NewHandler creates a Handler over store. A nil logger discards logs.
func NewHandler(store *Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{store: store, faults: &Faults{}, logger: logger}
}

// Store returns the backing store.
func (h *Handler) Store() *Store { return h.store }

// Faults returns the fault registry applied to /track.
func (h *Handler) Faults() *Faults { return h.faults }

// Routes mounts /track and the admin routes.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.faultInjection)
		r.Post("/track", h.Track)
	})

	r.Get("/admin/events", h.AdminListEvents)
	r.Post("/admin/reset", h.AdminReset)
	r.Post("/admin/faults", h.AdminSetFault)
}

// NewRouter returns a chi router with request logging and every route mounted.
func NewRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLog)
	r.Use(middleware.Recoverer)
	h.Routes(r)
	return r
}

// Track handles POST /track.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(clientIDHeader) == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"error": "missing " + clientIDHeader + " header",
		})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "read body: " + err.Error()})
		return
	}

	e, err := event.Unmarshal(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	var env struct {
		Payload json.RawMessage `json:"payload"`
	}
	_ = json.Unmarshal(body, &env)

	rec := h.store.Add(Received{
		Type:    string(e.Kind()),
		Payload: env.Payload,
		Headers: flattenHeaders(r.Header),
	})
	h.logger.Debug("event received",
		slog.String("id", rec.ID),
		slog.String("type", rec.Type),
	)

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// AdminListEvents handles GET /admin/events[?type=track].
func (h *Handler) AdminListEvents(w http.ResponseWriter, r *http.Request) {
	events := h.store.All()
	if t := r.URL.Query().Get("type"); t != "" {
		events = h.store.ByType(t)
	}
	if events == nil {
		events = []Received{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// AdminReset handles POST /admin/reset.
func (h *Handler) AdminReset(w http.ResponseWriter, _ *http.Request) {
	h.store.Reset()
	h.faults.Reset()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// AdminSetFault handles POST /admin/faults.
func (h *Handler) AdminSetFault(w http.ResponseWriter, r *http.Request) {
	var f Fault
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid fault: " + err.Error()})
		return
	}
	if f.StatusCode < 100 || f.StatusCode > 599 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "status_code must be 100-599"})
		return
	}
	h.faults.Set(f)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// faultInjection applies the active fault before the route runs.
func (h *Handler) faultInjection(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fault := h.faults.Take()
		if fault == nil {
			next.ServeHTTP(w, r)
			return
		}
		if fault.DelayMS > 0 {
			time.Sleep(time.Duration(fault.DelayMS) * time.Millisecond)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(fault.StatusCode)
		if fault.Body != "" {
			fmt.Fprint(w, fault.Body)
		} else {
			fmt.Fprintf(w, `{"error":"injected fault","code":%d}`, fault.StatusCode)
		}
	})
}

// requestLog logs each request once it completes.
func (h *Handler) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
