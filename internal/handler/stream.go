package handler

import (
	"net/http"
	"time"

	"github.com/GoPolymarket/botfleet/internal/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	defaultStreamInterval = time.Second
	minStreamInterval     = 200 * time.Millisecond
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// operator API sits behind the admin key; non-browser clients send no Origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Stream pushes the bot status over a websocket every interval (?interval=2s) until the client goes away.
func (h *BotHandler) Stream(c *gin.Context) {
	id := c.Param("id")
	interval := defaultStreamInterval
	if raw := c.Query("interval"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d >= minStreamInterval {
			interval = d
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		logger.Warn("websocket upgrade failed", "bot", id, "error", err)
		return
	}
	defer conn.Close()

	// read pump: only control frames are expected, it exists to notice the close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	send := func() bool {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(h.svc.Status(id)) == nil
	}
	if !send() {
		return
	}
	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ticker.C:
			if !send() {
				return
			}
		}
	}
}
