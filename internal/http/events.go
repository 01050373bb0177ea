package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"balanceview/internal/auth"
)

const keepAliveInterval = 25 * time.Second

// handleEvents streams the user's ledger changes as server-sent events.
// GET /api/events
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ch, cancel := s.deps.Ledger.Hub().Subscribe(auth.UserID(r.Context()))
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(eventDTO{Month: ev.Month.String(), Kind: ev.Kind, BillID: ev.BillID, At: ev.At})
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: ledger\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
