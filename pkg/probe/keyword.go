package probe

import (
	"context"
	"time"

	"github.com/pulsewatch/pulsewatch/pkg/database"
)

// keywordProber reuses the http executor's request machinery: decodeHTTPConfig
// already populates hc.keywords from the comma-separated config and
// doHTTPCheck already branches on len(hc.keywords) > 0 to do the substring
// match instead of a plain status-code check.
type keywordProber struct {
	timeout func(cfg map[string]any) time.Duration
}

func (p *keywordProber) Check(ctx context.Context, monitor *database.Monitor) (CheckResult, error) {
	cfg, err := monitor.Config()
	if err != nil {
		return configInvalid("无法解析配置: %v", err), nil
	}
	hc, err := decodeHTTPConfig(cfg, p.timeout)
	if err != nil {
		return configInvalid("%v", err), nil
	}
	if len(hc.keywords) == 0 {
		return configInvalid("keyword 不能为空"), nil
	}
	return doHTTPCheck(ctx, hc), nil
}
