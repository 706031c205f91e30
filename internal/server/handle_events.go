package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"

	"github.com/playperu/fivehints/internal/fivehints"
)

// handleEvents streams enrichment events for one session as Server-Sent
// Events. The session id is an unguessable UUID the client already holds.
func (s *Server) handleEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, fivehints.CodeInternal, "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		ch := s.broker.Subscribe(id)
		defer s.broker.Unsubscribe(id, ch)
		flusher.Flush()

		ping := time.NewTicker(30 * time.Second)
		defer ping.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case data := <-ch:
				fmt.Fprintf(w, "event: enrichment\ndata: %s\n\n", data)
				flusher.Flush()
			case <-ping.C:
				fmt.Fprintf(w, ": ping\n\n")
				flusher.Flush()
			}
		}
	}
}

// handleEventsWS delivers the same events over a WebSocket for clients that
// cannot hold an EventSource open.
func (s *Server) handleEventsWS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originHosts(s.opts.AllowedOrigins),
		})
		if err != nil {
			s.logger.Error("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
		defer cancel()
		// Reads only detect the client closing; the stream is server to client.
		ctx = conn.CloseRead(ctx)

		ch := s.broker.Subscribe(id)
		defer s.broker.Unsubscribe(id, ch)

		for {
			select {
			case <-ctx.Done():
				conn.Close(websocket.StatusNormalClosure, "")
				return
			case data := <-ch:
				if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
					s.logger.Debug("websocket write failed", "session_id", id, "error", err)
					return
				}
			}
		}
	}
}

// originHosts turns configured origins into the host patterns the WebSocket
// handshake matches against.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
			continue
		}
		hosts = append(hosts, o)
	}
	return hosts
}
