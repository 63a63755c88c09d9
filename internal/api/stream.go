package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/flagdeck/flagdeck/internal/notifier"
)

// handleStream serves the change feed over Server-Sent Events. The optional
// flags query parameter narrows the subscription to a comma-separated set of
// flag keys; without it the client receives every change.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		BadRequestError(w, r, ErrCodeBadRequest, "streaming unsupported by connection")
		return
	}

	var flagKeys []string
	if raw := r.URL.Query().Get("flags"); raw != "" {
		for _, key := range strings.Split(raw, ",") {
			if key = strings.TrimSpace(key); key != "" {
				flagKeys = append(flagKeys, key)
			}
		}
	}

	conn := s.notifier.Subscribe(flagKeys)
	defer s.notifier.Unsubscribe(conn)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	// Subscribing to named flags immediately yields their current state.
	for _, key := range flagKeys {
		state := notifier.Event{Type: notifier.EventState, FlagKey: key}
		if flag, err := s.coord.GetFlag(r.Context(), key); err == nil {
			state.Flag = flag
		}
		data, err := json.Marshal(state)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", state.Type, data)
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-conn.C():
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				s.logger.Error().Err(err).Str("flag", event.FlagKey).Msg("marshal stream event")
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}
