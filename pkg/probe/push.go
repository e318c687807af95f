package probe

import (
	"context"
	"time"

	"github.com/pulsewatch/pulsewatch/pkg/database"
)

// pushTolerance is applied to a push monitor's pushInterval to decide how
// much clock drift/jitter is allowed before a missed heartbeat is declared.
// Configured via pkg/config.MonitorConfig.PushToleranceMultiplier.
var pushTolerance = 1.5

// SetPushTolerance overrides the default tolerance multiplier. Called once
// at startup from the loaded config.
func SetPushTolerance(multiplier float64) {
	if multiplier > 0 {
		pushTolerance = multiplier
	}
}

// pushProber performs no outbound I/O: it only inspects the monitor's
// last-known heartbeat time, which the external push-ingestion endpoint
// (pkg/api) advances directly, bypassing the scheduler entirely.
type pushProber struct{}

func (p *pushProber) Check(ctx context.Context, monitor *database.Monitor) (CheckResult, error) {
	cfg, err := monitor.Config()
	if err != nil {
		return configInvalid("无法解析配置: %v", err), nil
	}

	pushInterval, ok := toInt(cfg["pushInterval"])
	if !ok || pushInterval <= 0 {
		return configInvalid("pushInterval 不能为空"), nil
	}

	if monitor.LastCheckAt == nil {
		return CheckResult{Status: database.StatusPending, Message: "等待中"}, nil
	}

	deadline := monitor.LastCheckAt.Add(time.Duration(float64(pushInterval)*pushTolerance) * time.Second)
	if time.Now().After(deadline) {
		return CheckResult{Status: database.StatusDown, Message: "missed heartbeat: 未在预期时间内收到心跳"}, nil
	}

	return CheckResult{Status: database.StatusUp, Message: "心跳正常", Ping: monitor.LastPing}, nil
}
