package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/neurobot/telemetry"
)

// HandleAdminReconcile runs one reconciliation tick now and returns the resulting sessions.
func (h *Handlers) HandleAdminReconcile(w http.ResponseWriter, r *http.Request) {
	if h.deps.Manager == nil {
		http.Error(w, "chat runtime not started", http.StatusServiceUnavailable)
		return
	}
	start := time.Now()
	if err := h.deps.Manager.Tick(r.Context()); err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("manual reconcile failed", slog.Any("err", err), slog.String("component", "http"))
		writeJSON(w, http.StatusBadGateway, map[string]string{"status": "error", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"duration_ms": time.Since(start).Milliseconds(),
		"sessions":    h.deps.Manager.Sessions(),
	})
}

type roomView struct {
	Platform       string    `json:"platform"`
	Handle         string    `json:"handle"`
	Enabled        bool      `json:"enabled"`
	Mode           string    `json:"reply_mode"`
	Prompt         string    `json:"prompt,omitempty"`
	NegativePrompt string    `json:"negative_prompt,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HandleAdminRooms lists every configured room with its reply settings.
func (h *Handlers) HandleAdminRooms(w http.ResponseWriter, r *http.Request) {
	if h.deps.Rooms == nil {
		http.Error(w, "room registry not configured", http.StatusServiceUnavailable)
		return
	}
	cfgs, err := h.deps.Rooms.List(r.Context())
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("list rooms", slog.Any("err", err))
		http.Error(w, "failed to list rooms", http.StatusInternalServerError)
		return
	}
	out := make([]roomView, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, roomView{
			Platform:       c.Target.Platform,
			Handle:         c.Target.Handle,
			Enabled:        c.Enabled,
			Mode:           c.Mode.String(),
			Prompt:         c.Prompt,
			NegativePrompt: c.NegativePrompt,
			UpdatedAt:      c.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
