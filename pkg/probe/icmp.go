package probe

import (
	"context"
	"fmt"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"github.com/pulsewatch/pulsewatch/pkg/database"
)

type icmpProber struct {
	timeout func(cfg map[string]any) time.Duration
}

func (p *icmpProber) Check(ctx context.Context, monitor *database.Monitor) (CheckResult, error) {
	cfg, err := monitor.Config()
	if err != nil {
		return configInvalid("无法解析配置: %v", err), nil
	}

	hostname, ok := toString(cfg["hostname"])
	if !ok || hostname == "" {
		return configInvalid("hostname 不能为空"), nil
	}

	packetCount := 4
	if n, ok := toInt(cfg["packetCount"]); ok && n > 0 {
		packetCount = n
	}
	maxPacketLoss := 0.0
	if v, ok := cfg["maxPacketLoss"]; ok {
		if n, ok := toInt(v); ok {
			maxPacketLoss = float64(n)
		}
	}
	var maxResponseTime *int
	if n, ok := toInt(cfg["maxResponseTime"]); ok {
		maxResponseTime = &n
	}

	pinger, err := probing.NewPinger(hostname)
	if err != nil {
		return CheckResult{Status: database.StatusDown, Message: "HOST_NOT_FOUND: " + err.Error()}, nil
	}

	// Privileged (raw-socket) ping requires root/CAP_NET_RAW. No unprivileged
	// fallback is attempted: without it the run fails and the check reports
	// NETWORK_ERROR.
	pinger.SetPrivileged(true)
	pinger.Count = packetCount
	pinger.Timeout = p.timeout(cfg)

	if err := pinger.RunWithContext(ctx); err != nil {
		return CheckResult{Status: database.StatusDown, Message: "NETWORK_ERROR: " + err.Error()}, nil
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return CheckResult{
			Status:  database.StatusDown,
			Message: fmt.Sprintf("无响应 (发送 %d, 接收 %d, 丢包率 %.1f%%)", stats.PacketsSent, stats.PacketsRecv, stats.PacketLoss),
		}, nil
	}

	if stats.PacketLoss > maxPacketLoss {
		return CheckResult{
			Status:  database.StatusDown,
			Message: fmt.Sprintf("丢包率 %.1f%% 超过阈值 %.1f%%", stats.PacketLoss, maxPacketLoss),
			Ping:    intPtr(int(stats.AvgRtt.Milliseconds())),
		}, nil
	}

	avgMs := int(stats.AvgRtt.Milliseconds())
	if maxResponseTime != nil && avgMs > *maxResponseTime {
		return CheckResult{
			Status:  database.StatusDown,
			Message: fmt.Sprintf("平均响应时间 %dms 超过阈值 %dms", avgMs, *maxResponseTime),
			Ping:    intPtr(avgMs),
		}, nil
	}

	return CheckResult{Status: database.StatusUp, Message: "OK", Ping: intPtr(avgMs)}, nil
}
