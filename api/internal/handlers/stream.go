package handlers

import (
	"net/http"
	"time"

	"sentinel-monitor/api/internal/storage"

	"github.com/gorilla/websocket"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// StreamSnapshots pushes every applied telemetry snapshot to the client
func (h *Handlers) StreamSnapshots(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.snapshots.Subscribe()
	defer cancel()

	done := watchClose(conn)

	// current state first so the client does not wait for the next cycle
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(h.snapshots.Latest()); err != nil {
		h.logger.Debugf("WebSocket write error: %v", err)
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			h.logger.Debugf("Snapshot stream closed for %s", r.RemoteAddr)
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(snap); err != nil {
				h.logger.Debugf("WebSocket write error: %v", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		}
	}
}

func (h *Handlers) StreamAlerts(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	sub := h.store.SubscribeAlerts(storage.AlertFilter{
		Severity: r.URL.Query().Get("severity"),
		Type:     r.URL.Query().Get("type"),
	})
	defer h.store.UnsubscribeAlerts(sub)

	done := watchClose(conn)

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(map[string]string{"type": "connected", "message": "Alert stream established"}); err != nil {
		h.logger.Debugf("Failed to send initial message: %v", err)
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case alert, ok := <-sub.Channel:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(alert); err != nil {
				h.logger.Errorf("WebSocket write error: %v", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		}
	}
}

// watchClose reads until the client goes away and then closes the returned channel
func watchClose(conn *websocket.Conn) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return done
}
