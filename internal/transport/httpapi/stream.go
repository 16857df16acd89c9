package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"autopost/internal/notify"
	logx "autopost/pkg/logx"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait      = 10 * time.Second
	wsMaxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleSSE streams events as "data: <json>\n\n" frames until the client
// goes away.
func (s *Service) handleSSE(keepalive time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
			return
		}
		sub, err := s.hub.Subscribe()
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}
		defer s.hub.Unsubscribe(sub.ID)

		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		log := s.log.With(logx.String("sub", sub.ID), logx.String("transport", "sse"))
		log.Debug("client connected")
		defer log.Debug("client disconnected")

		ticker := time.NewTicker(keepalive)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case e, ok := <-sub.C:
				if !ok {
					return
				}
				if err := writeSSE(w, e); err != nil {
					return
				}
				flusher.Flush()
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, e notify.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", b)
	return err
}

// handleWS streams events as JSON text frames. Inbound frames are read only
// to detect disconnects and answer pings.
func (s *Service) handleWS(keepalive time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Warn("websocket upgrade failed", logx.Err(err))
			return
		}
		defer conn.Close()

		sub, err := s.hub.Subscribe()
		if err != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
				time.Now().Add(wsWriteWait))
			return
		}
		defer s.hub.Unsubscribe(sub.ID)

		log := s.log.With(logx.String("sub", sub.ID), logx.String("transport", "ws"))
		log.Debug("client connected")
		defer log.Debug("client disconnected")

		pongWait := keepalive * 2
		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			conn.SetReadLimit(wsMaxMessageSize)
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(pongWait))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(keepalive)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(wsWriteWait))
				return
			case <-readDone:
				return
			case e, ok := <-sub.C:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(e); err != nil {
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
}
