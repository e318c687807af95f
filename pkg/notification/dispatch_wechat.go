package notification

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// WeChatDispatcher posts {title, content} JSON to a configured pushUrl.
// titleTemplate defaults to "{monitorName} 状态{status}" and contentTemplate
// to the notification message ("{message}").
type WeChatDispatcher struct{}

func (d *WeChatDispatcher) Dispatch(ctx context.Context, config map[string]any, data Data) error {
	pushURL, _ := config["pushUrl"].(string)
	if pushURL == "" {
		return fmt.Errorf("微信推送配置无效: pushUrl 不能为空")
	}

	titleTemplate, _ := config["titleTemplate"].(string)
	if titleTemplate == "" {
		titleTemplate = "{monitorName} 状态{status}"
	}
	contentTemplate, _ := config["contentTemplate"].(string)
	if contentTemplate == "" {
		contentTemplate = "{message}"
	}

	vars := templateVars(data)
	title := substituteJSONSafe(titleTemplate, vars)
	content := substituteJSONSafe(contentTemplate, vars)

	body := fmt.Sprintf(`{"title":"%s","content":"%s"}`, title, content)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pushURL, bytes.NewBufferString(body))
	if err != nil {
		return fmt.Errorf("构建微信推送请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := webhookClient.Do(req)
	if err != nil {
		return fmt.Errorf("微信推送请求失败: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("微信推送返回非成功状态码: %d", resp.StatusCode)
	}
	return nil
}
