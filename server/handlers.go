package server

import (
	"encoding/json"
	"net/http"

	"github.com/AdrianGerman/discord-bots/telemetry"
	"github.com/AdrianGerman/discord-bots/watch"
)

// Handlers serves health and status for a set of watched targets.
type Handlers struct {
	Tracker *watch.Tracker
	Targets []watch.Target
	// Ready is closed once the delivery channel is connected. Nil means always ready.
	Ready <-chan struct{}
}

// TargetStatus is one entry of the /status response.
type TargetStatus struct {
	Name     string `json:"name"`
	Style    string `json:"style"`
	Interval string `json:"interval"`
	Known    bool   `json:"known"`
	LastID   string `json:"last_id,omitempty"`
}

// HandleHealthz responds to liveness probes. The process is healthy while it serves HTTP.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz reports ready once the delivery channel has connected.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !h.ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":       "not_ready",
			"failed_check": "delivery",
		})
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// HandleStatus lists every target with its tracked state.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	out := make([]TargetStatus, 0, len(h.Targets))
	for _, t := range h.Targets {
		st := TargetStatus{Name: t.Name, Style: t.Style.String(), Interval: t.Interval.String()}
		if h.Tracker != nil {
			s := h.Tracker.State(t.Name)
			st.Known, st.LastID = s.Known, s.ID
		}
		out = append(out, st)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ready":   h.ready(),
		"tracing": telemetry.IsTracingEnabled(),
		"targets": out,
	})
}

func (h *Handlers) ready() bool {
	if h.Ready == nil {
		return true
	}
	select {
	case <-h.Ready:
		return true
	default:
		return false
	}
}
