package management

import (
	"net/http"
	"strconv"
	"time"

	apperrors "geminivoice-go/internal/errors"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// GetLogs pages through recent log lines and events. Pass the returned cursor back as
// ?cursor= to continue.
func (h *AdminAPIHandler) GetLogs(c *gin.Context) {
	if h.logs == nil {
		respondError(c, apperrors.Unavailable("log feed not configured"))
		return
	}
	cursor, _ := strconv.ParseUint(c.Query("cursor"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	items, next, more := h.logs.FetchSince(cursor, limit)
	c.JSON(http.StatusOK, gin.H{"items": items, "cursor": next, "has_more": more})
}

// StreamLogs upgrades to a WebSocket and pushes every new message.
func (h *AdminAPIHandler) StreamLogs(c *gin.Context) {
	if h.logs == nil {
		respondError(c, apperrors.Unavailable("log feed not configured"))
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	if err := h.logs.AddClient(conn); err != nil {
		_ = conn.WriteJSON(map[string]string{"error": "Maximum connections reached"})
		conn.Close()
		return
	}
	log.WithField("remote_ip", c.ClientIP()).Debug("log stream client connected")

	_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	// the read loop only services control frames
	for {
		if _, _, err := conn.NextReader(); err != nil {
			close(done)
			h.logs.RemoveClient(conn)
			return
		}
	}
}
