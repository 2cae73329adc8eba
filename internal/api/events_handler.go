package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shaiso/pipesim/internal/domain"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy совпадает с CORS: разрешены все
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamEvents отдаёт события в формате Server-Sent Events.
// GET /api/events
//
// Клиент получает только события, опубликованные после подключения.
// Раз в heartbeat отправляется комментарий, чтобы прокси не закрывали соединение.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sub := h.bus.Subscribe()
	defer sub.Close()

	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Warn("streaming unsupported", "error", err)
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeSSE(w, string(ev.Type), ev.Payload()); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// writeSSE пишет одно событие в формате text/event-stream.
func writeSSE(w http.ResponseWriter, event string, payload any) error {
	blob, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", blob)
	return err
}

// StreamWebSocket отдаёт события через WebSocket.
// GET /ws
//
// Каждый кадр — JSON {"event": "...", "data": {...}}. Входящие
// сообщения игнорируются; их чтение нужно только для обнаружения закрытия.
func (h *Handler) StreamWebSocket(w http.ResponseWriter, r *http.Request) {
	// Подписка до handshake: клиент не пропустит события сразу после Dial
	sub := h.bus.Subscribe()
	defer sub.Close()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже отправил ответ с ошибкой
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				if err := writeClose(conn); err != nil {
					h.logger.Debug("websocket close failed", "error", err)
				}
				return
			}
			if err := writeFrame(conn, ev); err != nil {
				h.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				h.logger.Debug("websocket ping failed", "error", err)
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, ev domain.Event) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	return conn.WriteJSON(StreamMessage{Event: ev.Type, Data: ev.Payload()})
}

// writeClose сообщает клиенту, что поток закрывается сервером.
func writeClose(conn *websocket.Conn) error {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	return conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout))
}
