package notification

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"gopkg.in/gomail.v2"
)

// EmailDispatcher delivers a notification over SMTP. gomail's Dialer
// already implements implicit TLS on port 465 and opportunistic STARTTLS
// otherwise, so no manual branching on port number is needed here.
type EmailDispatcher struct{}

func (d *EmailDispatcher) Dispatch(ctx context.Context, config map[string]any, data Data) error {
	email, _ := config["email"].(string)
	smtpServer, _ := config["smtpServer"].(string)
	smtpPort := intFromConfig(config, "smtpPort")
	username, _ := config["username"].(string)
	password, _ := config["password"].(string)

	if email == "" || smtpServer == "" || smtpPort == 0 {
		return errors.New("邮件通知配置无效: email/smtpServer/smtpPort 不能为空")
	}

	m := gomail.NewMessage()
	from := username
	if from == "" {
		from = email
	}
	m.SetHeader("From", from)
	m.SetHeader("To", email)
	m.SetHeader("Subject", fmt.Sprintf("Monitor - %s 状态%s", data.MonitorName, data.StatusText))
	m.SetBody("text/html", emailBody(data))

	dialer := gomail.NewDialer(smtpServer, smtpPort, username, password)
	dialer.TLSConfig = &tls.Config{ServerName: smtpServer, MinVersion: tls.VersionTLS12}

	done := make(chan error, 1)
	go func() { done <- dialer.DialAndSend(m) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("发送邮件失败: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// emailBody renders a small fixed HTML template.
func emailBody(data Data) string {
	return fmt.Sprintf(`<html><body>
<h3>%s</h3>
<p>监控类型: %s</p>
<p>状态: %s</p>
<p>时间: %s</p>
<pre>%s</pre>
</body></html>`, data.MonitorName, data.MonitorType, data.StatusText, data.Time, data.Message)
}

func intFromConfig(config map[string]any, key string) int {
	switch v := config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return 0
}
