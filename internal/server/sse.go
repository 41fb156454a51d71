package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ptmflow/ptmflow/internal/app/stream"
)

// handleStream serves the live progress stream of one order as Server-Sent
// Events. Only events published after the subscription are delivered; clients
// fetch the persisted log separately and merge using the event timestamps.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	order, sub, err := s.streamSvc.Run(r.Context(), stream.Request{CodeOrID: r.PathValue("ref")})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.logger.Debugf("SSE stream opened for order %s", order.ID)
	defer s.logger.Debugf("SSE stream closed for order %s", order.ID)

	ping := time.NewTicker(s.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case event, ok := <-sub.Events():
			if !ok {
				// Broker shut down, the client will reconnect.
				return
			}
			payload, err := json.Marshal(mapEvent(event))
			if err != nil {
				s.logger.Errorf("Could not marshal event %s: %s", event.ID, err)
				continue
			}
			fmt.Fprintf(w, "event: progress\ndata: %s\n\n", payload)
			flusher.Flush()

		case <-ping.C:
			// Keepalive so idle streams survive proxies and dead clients get
			// detected by the write failing.
			fmt.Fprint(w, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		}
	}
}
