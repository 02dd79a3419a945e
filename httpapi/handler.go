// Package httpapi exposes a read-only operational surface over the device
// registry: health probes, the device list with last-seen status, and
// Prometheus metrics. There are no control endpoints; the monitor only
// observes printers.
package httpapi

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/alex/sdcp_monitor/metrics"
	"github.com/alex/sdcp_monitor/monitor"
	"github.com/alex/sdcp_monitor/sdcp"
)

type Handler struct {
	log      zerolog.Logger
	registry *monitor.Registry
	metrics  *metrics.Metrics
	ready    atomic.Bool
}

func NewHandler(log zerolog.Logger, reg *monitor.Registry, m *metrics.Metrics) *Handler {
	return &Handler{log: log, registry: reg, metrics: m}
}

// SetReady marks the service ready once the monitor set is running.
func (h *Handler) SetReady(ready bool) {
	h.ready.Store(ready)
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(h.accessLog)

	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyz)

	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Get("/devices", h.handleListDevices)
			r.Get("/devices/{id}", h.handleGetDevice)
		})
	})

	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if !h.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// deviceStatus is the API view of one registry entry.
type deviceStatus struct {
	Device    sdcp.Device   `json:"device"`
	View      *monitor.View `json:"view,omitempty"`
	Label     string        `json:"label,omitempty"`
	UpdatedAt *time.Time    `json:"updated_at,omitempty"`
}

func (h *Handler) deviceStatusFor(dev sdcp.Device) deviceStatus {
	ds := deviceStatus{Device: dev}
	_, cur, updatedAt, ok := h.registry.LastSnapshot(dev.ID)
	if !ok || cur == nil {
		return ds
	}
	v := monitor.NewView(*cur)
	ds.View = &v
	ds.Label = v.Label()
	ds.UpdatedAt = &updatedAt
	return ds
}

func (h *Handler) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := h.registry.Devices()
	out := make([]deviceStatus, 0, len(devices))
	for _, dev := range devices {
		out = append(out, h.deviceStatusFor(dev))
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": out})
}

func (h *Handler) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	dev, ok := h.registry.Device(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown device"})
		return
	}
	writeJSON(w, http.StatusOK, h.deviceStatusFor(dev))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
