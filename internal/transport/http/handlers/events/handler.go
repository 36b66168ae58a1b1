// Package events implements the progress push channel: a WebSocket
// connection subscribed to a single Job or Batch entity id's Progress Bus
// stream, closing after the entity reaches a terminal state and one final
// flush, per spec's push-channel contract.
package events

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"webscope/internal/core/domain/analysis"
	"webscope/internal/core/domain/batch"
	"webscope/internal/core/domain/common"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Handler upgrades /v1/events/:id requests to a WebSocket connection and
// streams common.ProgressEvent values for that entity id.
type Handler struct {
	logger   *slog.Logger
	progress common.ProgressBus
	upgrader websocket.Upgrader
}

// New creates an events Handler.
func New(logger *slog.Logger, progress common.ProgressBus) *Handler {
	return &Handler{
		logger:   logger,
		progress: progress,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// @Summary Subscribe to job or batch progress
// @Description Upgrades to a WebSocket connection streaming progress events for one entity id. Closes after the entity reaches a terminal state.
// @Tags Events
// @Param id path string true "Job or Batch ID"
// @Router /v1/events/{id} [get]
func (h *Handler) Handle(c *gin.Context) {
	entityID := c.Param("id")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "entity_id", entityID, "error", err)
		return
	}
	defer conn.Close()

	ch, unsubscribe := h.progress.Subscribe(entityID)
	defer unsubscribe()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go h.drainReads(conn)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	h.logger.Info("events connection opened", "entity_id", entityID)

	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug("events write failed", "entity_id", entityID, "error", err)
				return
			}
			if isTerminal(event) {
				h.logger.Info("events connection closing after terminal state", "entity_id", entityID, "status", event.Status)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drainReads discards client-sent frames; this channel is push-only, but
// the read loop must run so control frames (pong, close) are processed.
func (h *Handler) drainReads(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func isTerminal(event common.ProgressEvent) bool {
	switch event.Status {
	case string(analysis.JobCompleted), string(analysis.JobFailed),
		string(batch.Completed), string(batch.Failed):
		return true
	default:
		return false
	}
}
