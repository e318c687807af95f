package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/pulsewatch/pulsewatch/pkg/database"
)

type portProber struct {
	timeout func(cfg map[string]any) time.Duration
}

func (p *portProber) Check(ctx context.Context, monitor *database.Monitor) (CheckResult, error) {
	cfg, err := monitor.Config()
	if err != nil {
		return configInvalid("无法解析配置: %v", err), nil
	}

	hostname, ok := toString(cfg["hostname"])
	if !ok || hostname == "" {
		return configInvalid("hostname 不能为空"), nil
	}
	port, ok := toInt(cfg["port"])
	if !ok {
		return configInvalid("port 不能为空"), nil
	}
	if port < 1 || port > 65535 {
		return configInvalid("端口号 %d 不是有效的端口值", port), nil
	}

	timeout := p.timeout(cfg)
	start := time.Now()

	addr := net.JoinHostPort(hostname, fmt.Sprintf("%d", port))
	conn, dialErr := net.DialTimeout("tcp", addr, timeout)
	ping := intPtr(int(time.Since(start).Milliseconds()))

	if dialErr != nil {
		return CheckResult{Status: database.StatusDown, Message: classifyPortError(dialErr), Ping: ping}, nil
	}
	defer conn.Close()

	return CheckResult{Status: database.StatusUp, Message: "连接成功", Ping: ping}, nil
}

// classifyPortError maps net.DialTimeout failures onto distinct, specific
// messages instead of a single generic one.
func classifyPortError(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "TIMEOUT: 连接超时"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "HOST_NOT_FOUND: " + err.Error()
	}
	if strings.Contains(err.Error(), "refused") {
		return "CONNECTION_REFUSED: " + err.Error()
	}
	return "NETWORK_ERROR: " + err.Error()
}
