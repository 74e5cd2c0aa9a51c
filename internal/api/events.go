package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/zenithlabs/nexus/internal/terminal"
)

// handleEvents is the server-to-client half of the event channel: an SSE
// stream of output events for everything the user's sessions emit, plus a
// named "complete" event carrying each run's final status. The stream is
// per-user and persistent across runs; a client subscribes once and then
// drives runs through the command routes. When the user's last open stream
// disconnects, any running session is implicitly cancelled; closing one tab
// while another stays attached cancels nothing.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	ctrl, err := s.controllerFor(r.Context(), uid)
	if err != nil {
		s.logger.Error("load workspace", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load workspace")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	ch, unsub := s.broker.Subscribe(uid)
	defer unsub()

	s.streamOpened(uid)
	defer func() {
		if s.streamClosed(uid) {
			ctrl.Disconnect()
		}
	}()

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, ev); err != nil {
				return // Write failed (e.g. client gone).
			}
			if canFlush {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

// writeSSEEvent writes one terminal event as an SSE message. Run completions
// go out as a named "complete" event so clients can bind a distinct handler;
// output events use the default message type.
func writeSSEEvent(w http.ResponseWriter, ev terminal.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if ev.Type == terminal.EventRunComplete {
		if _, err := fmt.Fprintf(w, "event: complete\n"); err != nil {
			return err
		}
	}
	// JSON payloads contain no raw newlines, so a single data line suffices.
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}
