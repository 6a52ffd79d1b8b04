package server

import (
	"log/slog"
	"net/http"

	"github.com/onnwee/neurobot/chat"
	"github.com/onnwee/neurobot/memory"
	"github.com/onnwee/neurobot/rooms"
	"github.com/onnwee/neurobot/telemetry"
)

// HandleStatus lists live sessions with their state and open time.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if h.deps.Manager == nil {
		http.Error(w, "chat runtime not started", http.StatusServiceUnavailable)
		return
	}
	sessions := h.deps.Manager.Sessions()
	if sessions == nil {
		sessions = []chat.Info{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"platforms": h.deps.Manager.Platforms(),
		"active":    len(sessions),
		"sessions":  sessions,
	})
}

// HandleRoomHistory returns a room's memory window, oldest first.
func (h *Handlers) HandleRoomHistory(w http.ResponseWriter, r *http.Request) {
	if h.deps.History == nil {
		http.Error(w, "memory not configured", http.StatusServiceUnavailable)
		return
	}
	t := rooms.NewTarget(r.PathValue("platform"), r.PathValue("room"))
	if !t.Valid() {
		http.Error(w, "invalid room", http.StatusBadRequest)
		return
	}
	limit := memory.ClampLimit(parseIntQuery(r, "limit", memory.WindowSize))
	turns, err := h.deps.History.Recent(r.Context(), t.Platform, t.Handle, limit)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("read room history", slog.String("room", t.String()), slog.Any("err", err))
		http.Error(w, "failed to read history", http.StatusInternalServerError)
		return
	}
	if turns == nil {
		turns = []memory.Turn{}
	}
	writeJSON(w, http.StatusOK, turns)
}
