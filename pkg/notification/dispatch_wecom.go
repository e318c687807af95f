package notification

import (
	"context"
	"encoding/json"
	"fmt"
)

// WeComDispatcher posts a markdown message to a WeCom (企业微信) group-robot
// webhook. Same success semantics as DingTalk: 2xx plus errcode==0.
type WeComDispatcher struct{}

func (d *WeComDispatcher) Dispatch(ctx context.Context, config map[string]any, data Data) error {
	webhookURL, _ := config["webhookUrl"].(string)
	if webhookURL == "" {
		return fmt.Errorf("企业微信通知配置无效: webhookUrl 不能为空")
	}

	title := fmt.Sprintf("%s 状态%s", data.MonitorName, data.StatusText)
	body, err := json.Marshal(map[string]any{
		"msgtype": "markdown",
		"markdown": map[string]string{
			"content": fmt.Sprintf("### %s\n\n%s", title, data.Message),
		},
	})
	if err != nil {
		return fmt.Errorf("构建企业微信请求失败: %w", err)
	}

	return postAndCheckErrcode(ctx, webhookURL, body)
}
