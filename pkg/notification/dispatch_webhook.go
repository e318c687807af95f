package notification

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookDispatcher POSTs a JSON payload to a user-configured URL. When no
// bodyTemplate is configured it falls back to a default payload carrying
// every Data field; when one is configured, {field} placeholders are
// substituted JSON-safely before the request is sent.
type WebhookDispatcher struct{}

var webhookClient = &http.Client{Timeout: 10 * time.Second}

func (d *WebhookDispatcher) Dispatch(ctx context.Context, config map[string]any, data Data) error {
	url, _ := config["url"].(string)
	if url == "" {
		return fmt.Errorf("webhook 通知配置无效: url 不能为空")
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodPost
	}
	contentType, _ := config["contentType"].(string)
	if contentType == "" {
		contentType = "application/json"
	}

	bodyTemplate, _ := config["bodyTemplate"].(string)
	var body string
	if bodyTemplate != "" {
		body = substituteJSONSafe(bodyTemplate, templateVars(data))
	} else {
		body = defaultWebhookPayload(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewBufferString(body))
	if err != nil {
		return fmt.Errorf("构建 webhook 请求失败: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if headers, ok := config["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := webhookClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook 请求失败: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook 返回非成功状态码: %d", resp.StatusCode)
	}
	return nil
}

// defaultWebhookPayload builds the default "status_change" event shape: a
// nested monitor object plus a failure_info object that is null unless this
// emission was an aggregated DOWN alert.
func defaultWebhookPayload(d Data) string {
	address := `null`
	if d.Address != "" {
		address = `"` + escapeJSONString(d.Address) + `"`
	}

	failureInfo := "null"
	if d.Failure != nil {
		failureInfo = fmt.Sprintf(`{"count":%d,"first_failure_time":"%s","last_failure_time":"%s","duration_minutes":%d}`,
			d.Failure.Count,
			escapeJSONString(d.Failure.FirstFailureTime.Format(time.RFC3339)),
			escapeJSONString(d.Failure.LastFailureTime.Format(time.RFC3339)),
			d.Failure.DurationMinutes)
	}

	timestamp := d.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	return fmt.Sprintf(
		`{"event":"status_change","timestamp":"%s","monitor":{"name":"%s","type":"%s","status":"%s","status_code":%d,"time":"%s","message":"%s","address":%s},"failure_info":%s}`,
		escapeJSONString(timestamp.Format(time.RFC3339)),
		escapeJSONString(d.MonitorName), escapeJSONString(d.MonitorType), escapeJSONString(d.StatusText),
		d.StatusCode, escapeJSONString(d.Time), escapeJSONString(d.Message), address, failureInfo)
}
