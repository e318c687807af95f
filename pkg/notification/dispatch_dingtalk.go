package notification

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DingTalkDispatcher posts a markdown message to a DingTalk custom-robot
// webhook, signing the request when a secret is configured:
// sign = base64(HMAC_SHA256(secret, "<timestampMillis>\n<secret>")),
// appended to the webhook URL as &timestamp=...&sign=....
type DingTalkDispatcher struct{}

func (d *DingTalkDispatcher) Dispatch(ctx context.Context, config map[string]any, data Data) error {
	webhookURL, _ := config["webhookUrl"].(string)
	if webhookURL == "" {
		return fmt.Errorf("钉钉通知配置无效: webhookUrl 不能为空")
	}
	secret, _ := config["secret"].(string)

	reqURL := webhookURL
	if secret != "" {
		signed, err := signDingTalkURL(webhookURL, secret, time.Now())
		if err != nil {
			return fmt.Errorf("签名钉钉请求失败: %w", err)
		}
		reqURL = signed
	}

	title := fmt.Sprintf("%s 状态%s", data.MonitorName, data.StatusText)
	body, err := json.Marshal(map[string]any{
		"msgtype": "markdown",
		"markdown": map[string]string{
			"title": title,
			"text":  fmt.Sprintf("### %s\n\n%s", title, data.Message),
		},
	})
	if err != nil {
		return fmt.Errorf("构建钉钉请求失败: %w", err)
	}

	return postAndCheckErrcode(ctx, reqURL, body)
}

func signDingTalkURL(webhookURL, secret string, now time.Time) (string, error) {
	timestamp := strconv.FormatInt(now.UnixMilli(), 10)
	stringToSign := timestamp + "\n" + secret

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(stringToSign))
	sign := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	u, err := url.Parse(webhookURL)
	if err != nil {
		return "", err
	}
	sep := "&"
	if u.RawQuery == "" && !u.ForceQuery {
		sep = "?"
	}
	return webhookURL + sep + "timestamp=" + timestamp + "&sign=" + url.QueryEscape(sign), nil
}

// postAndCheckErrcode is shared by DingTalk and WeCom: both robots return
// HTTP 200 with a JSON {errcode, errmsg} body even on application-level
// failure, so a bare 2xx status is not enough to call the send successful.
func postAndCheckErrcode(ctx context.Context, reqURL string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("构建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := webhookClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("返回非成功状态码: %d", resp.StatusCode)
	}

	var parsed struct {
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
	}
	if err := json.Unmarshal(respBody, &parsed); err == nil && parsed.ErrCode != 0 {
		return fmt.Errorf("机器人返回错误: errcode=%d errmsg=%s", parsed.ErrCode, parsed.ErrMsg)
	}
	return nil
}
