package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pulsewatch/pulsewatch/pkg/notification"
)

// TestChannelHandler dispatches a canned notification payload through a
// single channel type/config pair, letting an operator verify a channel's
// configuration without waiting for a real monitor transition.
type TestChannelHandler struct {
	engine *notification.Engine
}

// NewTestChannelHandler builds a TestChannelHandler.
func NewTestChannelHandler(engine *notification.Engine) *TestChannelHandler {
	return &TestChannelHandler{engine: engine}
}

type testChannelRequest struct {
	Type   string         `json:"type" binding:"required"`
	Config map[string]any `json:"config" binding:"required"`
}

// Handle implements POST /api/control/test-channel.
func (h *TestChannelHandler) Handle(c *gin.Context) {
	var req testChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.engine.Test(c.Request.Context(), req.Type, req.Config); err != nil {
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
