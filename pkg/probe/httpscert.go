package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/pulsewatch/pulsewatch/pkg/database"
)

type httpsCertProber struct {
	timeout func(cfg map[string]any) time.Duration
}

func (p *httpsCertProber) Check(ctx context.Context, monitor *database.Monitor) (CheckResult, error) {
	cfg, err := monitor.Config()
	if err != nil {
		return configInvalid("无法解析配置: %v", err), nil
	}

	u, ok := toString(cfg["url"])
	if !ok || u == "" {
		return configInvalid("url 不能为空"), nil
	}
	if !strings.HasPrefix(u, "https://") {
		return configInvalid("url 必须以 https:// 开头"), nil
	}

	host := strings.TrimPrefix(u, "https://")
	if idx := strings.IndexAny(host, "/?#"); idx >= 0 {
		host = host[:idx]
	}
	if !strings.Contains(host, ":") {
		host += ":443"
	}

	ignoreTLS := toBool(cfg["ignoreTls"])
	timeout := p.timeout(cfg)

	start := time.Now()
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", host, &tls.Config{InsecureSkipVerify: ignoreTLS})
	if err != nil {
		return CheckResult{Status: database.StatusDown, Message: classifyTLSError(err)}, nil
	}
	defer conn.Close()

	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return CheckResult{Status: database.StatusDown, Message: "TLS_ERROR: 未返回任何证书"}, nil
	}
	leaf := state.PeerCertificates[0]
	ping := intPtr(int(time.Since(start).Milliseconds()))

	if !ignoreTLS {
		opts := x509.VerifyOptions{
			DNSName:       hostOnly(host),
			Intermediates: x509.NewCertPool(),
		}
		for _, cert := range state.PeerCertificates[1:] {
			opts.Intermediates.AddCert(cert)
		}
		if _, err := leaf.Verify(opts); err != nil {
			return CheckResult{Status: database.StatusDown, Message: fmt.Sprintf("TLS_ERROR: 证书链验证失败: %v", err), Ping: ping}, nil
		}
	}

	now := time.Now()
	if now.Before(leaf.NotBefore) || now.After(leaf.NotAfter) {
		return CheckResult{Status: database.StatusDown, Message: "证书已过期或尚未生效", Ping: ping}, nil
	}

	daysLeft := int(time.Until(leaf.NotAfter).Hours() / 24)
	return CheckResult{Status: database.StatusUp, Message: fmt.Sprintf("证书有效，%d 天后过期", daysLeft), Ping: ping}, nil
}

// certExpiryCheck implements the http executor's notifyCertExpiry option:
// a DOWN result if the leaf certificate is expired or inside the configured
// warning window, nil otherwise. The threshold is a config knob
// (pkg/config.MonitorConfig.CertExpiryWarningDays).
func certExpiryCheck(leaf *x509.Certificate, ping *int) *CheckResult {
	now := time.Now()
	if now.After(leaf.NotAfter) {
		return &CheckResult{Status: database.StatusDown, Message: "SSL 证书已过期", Ping: ping}
	}
	daysLeft := int(time.Until(leaf.NotAfter).Hours() / 24)
	if daysLeft < certExpiryWarningDays {
		return &CheckResult{Status: database.StatusDown, Message: fmt.Sprintf("SSL 证书将在 %d 天后过期", daysLeft), Ping: ping}
	}
	return nil
}

// certExpiryWarningDays is set by cmd/probe at startup from
// pkg/config.MonitorConfig.CertExpiryWarningDays. Executors are otherwise
// stateless and config-driven per monitor; this is the one engine-wide
// default that has no equivalent per-monitor config key.
var certExpiryWarningDays = 14

// SetCertExpiryWarningDays overrides the default threshold used by the http
// executor's notifyCertExpiry check. Called once at startup.
func SetCertExpiryWarningDays(days int) {
	if days > 0 {
		certExpiryWarningDays = days
	}
}

func classifyTLSError(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "TIMEOUT: " + err.Error()
	}
	if _, ok := err.(*net.DNSError); ok {
		return "HOST_NOT_FOUND: " + err.Error()
	}
	if _, ok := err.(x509.CertificateInvalidError); ok {
		return "TLS_ERROR: " + err.Error()
	}
	return "TLS_ERROR: " + err.Error()
}

func hostOnly(hostport string) string {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport
	}
	return host
}
