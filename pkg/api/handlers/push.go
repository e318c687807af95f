// Package handlers implements the engine's thin external HTTP surface: push
// ingestion and a synchronous test-channel dispatch. Every other
// control-plane operation (monitor CRUD, scheduler control) is an
// importable Go API on pkg/scheduler.Scheduler and pkg/database's
// repositories, not a REST endpoint.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pulsewatch/pulsewatch/pkg/database"
	"github.com/pulsewatch/pulsewatch/pkg/recorder"
)

// PushHandler resolves a push monitor by its ingestion token and records a
// heartbeat directly through the recorder, bypassing the scheduler
// entirely.
type PushHandler struct {
	monitors *database.MonitorRepository
	recorder *recorder.Recorder
}

// NewPushHandler builds a PushHandler.
func NewPushHandler(monitors *database.MonitorRepository, rec *recorder.Recorder) *PushHandler {
	return &PushHandler{monitors: monitors, recorder: rec}
}

// Handle implements GET /api/push/:token. Optional query params: msg (a
// free-text status message) and ping (round-trip time in milliseconds, for
// callers that measured their own latency).
func (h *PushHandler) Handle(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 token"})
		return
	}

	monitor, err := h.monitors.FindByPushToken(token)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "未找到对应的监控"})
		return
	}
	if monitor.Type != database.TypePush {
		c.JSON(http.StatusBadRequest, gin.H{"error": "该监控不是 push 类型"})
		return
	}

	msg := c.Query("msg")
	var ping *int
	if raw := c.Query("ping"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			ping = &v
		}
	}

	status := database.StatusUp
	if c.Query("status") == "down" {
		status = database.StatusDown
	}

	if _, err := h.recorder.Record(monitor.ID, status, msg, ping, nil, database.TypePush); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "记录心跳失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
