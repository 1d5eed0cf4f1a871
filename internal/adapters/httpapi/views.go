package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"rentalcore/internal/hub"
	"rentalcore/internal/roleview"
	"rentalcore/pkg/domain"
)

type viewPayload struct {
	View roleview.View `json:"view"`
	hub.Snapshot
	Error string `json:"error,omitempty"`
}

func payloadOf(v roleview.View, snap hub.Snapshot) viewPayload {
	p := viewPayload{View: v, Snapshot: snap}
	if snap.Err != nil {
		p.Error = snap.Err.Error()
	}
	return p
}

// handleView returns the current snapshot of a role view, or streams every
// snapshot as server-sent events when the client asks for text/event-stream.
// The subscription lives exactly as long as the request.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	view := roleview.View(mux.Vars(r)["view"])
	c, ok := s.composer(w, r)
	if !ok {
		return
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	sub, err := c.OpenView(ctx, view, r.URL.Query().Get("propertyId"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		s.stream(ctx, w, view, sub)
		return
	}

	timer := time.NewTimer(s.viewWait)
	defer timer.Stop()
	select {
	case snap, ok := <-sub.Updates():
		if !ok {
			s.writeFailure(w, r, domain.Unavailable("hub", ctx.Err()))
			return
		}
		writeJSON(w, http.StatusOK, payloadOf(view, snap))
	case <-timer.C:
		s.writeFailure(w, r, domain.Unavailable("hub", fmt.Errorf("no snapshot within %s", s.viewWait)))
	case <-ctx.Done():
	}
}

func (s *Server) stream(ctx context.Context, w http.ResponseWriter, view roleview.View, sub *hub.Subscription) {
	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Warn("sse flush unsupported", "view", view, "error", err)
		return
	}

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.Updates():
			if !ok {
				return
			}
			b, err := json.Marshal(payloadOf(view, snap))
			if err != nil {
				s.logger.Error("encode snapshot", "view", view, "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: snapshot\ndata: %s\n\n", snap.Seq, b); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
