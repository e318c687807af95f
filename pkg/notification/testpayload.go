package notification

import (
	"context"
	"fmt"
	"time"
)

// TestData builds a canned Data payload so an operator can fire a channel's
// dispatcher without having a real monitor transition to hand.
func TestData() Data {
	now := time.Now().Format("2006-01-02 15:04:05")
	return Data{
		MonitorName:      "测试监控",
		MonitorType:      "http",
		Status:           1,
		StatusText:       "正常",
		StatusCode:       1,
		Time:             now,
		Message:          "这是一条测试通知，用于验证通知渠道配置是否正确。",
		Address:          "http://example.com",
		FailureCount:     3,
		FirstFailureTime: now,
		LastFailureTime:  now,
		FailureDuration:  5,
	}
}

// Test dispatches TestData() through a single channel type/config pair,
// bypassing the engine's transition/resend gating entirely.
func (e *Engine) Test(ctx context.Context, channelType string, config map[string]any) error {
	dispatcher, ok := e.dispatchers[channelType]
	if !ok {
		return fmt.Errorf("未知的通知渠道类型: %s", channelType)
	}
	return dispatcher.Dispatch(ctx, config, TestData())
}
