// Package probe implements the stateless executors that perform one I/O
// round trip per monitor type and report the result back to the scheduler.
// Every executor shares the same shape: decode a typed config out of the
// monitor's JSON config map, perform the check within an internal timeout,
// and return a CheckResult. Executors never touch the database or the
// notification engine directly.
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/pulsewatch/pulsewatch/pkg/database"
)

// CheckResult is the outcome of a single probe attempt, prior to any retry
// or upside-down adjustment.
type CheckResult struct {
	Status  int
	Message string
	Ping    *int
	Details map[string]any
}

// Prober is the single interface every monitor type implements. Check must
// not block past ctx's deadline; it is the executor's responsibility to
// derive its own I/O timeout from ctx (usually via context.WithTimeout).
type Prober interface {
	Check(ctx context.Context, monitor *database.Monitor) (CheckResult, error)
}

// defaultTimeout is used when a monitor's config doesn't override it and no
// engine-wide default is available to the caller.
const defaultTimeout = 10 * time.Second

// Registry resolves a monitor's type string to the Prober that executes it.
type Registry struct {
	defaultTimeoutSeconds int
	probers               map[string]Prober
}

// NewRegistry builds the registry with one Prober per monitor type known to
// the engine (all eight types, push included); the scheduler runs every
// type, push too, through the same WithRetry call.
func NewRegistry(defaultTimeoutSeconds int) *Registry {
	if defaultTimeoutSeconds <= 0 {
		defaultTimeoutSeconds = 10
	}
	r := &Registry{defaultTimeoutSeconds: defaultTimeoutSeconds}
	r.probers = map[string]Prober{
		database.TypeHTTP:      &httpProber{timeout: r.timeout},
		database.TypeHTTPSCert: &httpsCertProber{timeout: r.timeout},
		database.TypeKeyword:   &keywordProber{timeout: r.timeout},
		database.TypePort:      &portProber{timeout: r.timeout},
		database.TypeMySQL:     &mysqlProber{timeout: r.timeout},
		database.TypeRedis:     &redisProber{timeout: r.timeout},
		database.TypeICMP:      &icmpProber{timeout: r.timeout},
		database.TypePush:      &pushProber{},
	}
	return r
}

// For resolves the Prober for a monitor type, or an error if the type is
// unknown (a config-invalid condition per the error taxonomy).
func (r *Registry) For(monitorType string) (Prober, error) {
	p, ok := r.probers[monitorType]
	if !ok {
		return nil, fmt.Errorf("未知的监控类型: %s", monitorType)
	}
	return p, nil
}

// timeout resolves a connectTimeout override from the config map, falling
// back to the registry's default, then to the package default.
func (r *Registry) timeout(cfg map[string]any) time.Duration {
	if v, ok := cfg["connectTimeout"]; ok {
		if secs, ok := toInt(v); ok && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if r != nil && r.defaultTimeoutSeconds > 0 {
		return time.Duration(r.defaultTimeoutSeconds) * time.Second
	}
	return defaultTimeout
}

// ApplyUpsideDown flips UP/DOWN and prefixes the message when the monitor
// is configured to invert success. Applied once, by the scheduler, to the
// retry wrapper's final decided result, not per retry attempt, so the
// retry policy itself always reasons about the executor's raw DOWN/UP
// regardless of inversion.
func ApplyUpsideDown(monitor *database.Monitor, result CheckResult) CheckResult {
	if !monitor.UpsideDown {
		return result
	}
	if result.Status == database.StatusUp {
		result.Status = database.StatusDown
	} else if result.Status == database.StatusDown {
		result.Status = database.StatusUp
	}
	result.Message = "[inverted] " + result.Message
	return result
}

// configInvalid builds the DOWN result for bad monitor config. Its message
// starts with "配置无效", which WithRetry recognizes and never retries.
func configInvalid(format string, args ...any) CheckResult {
	return CheckResult{
		Status:  database.StatusDown,
		Message: fmt.Sprintf("配置无效: %s", fmt.Sprintf(format, args...)),
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		var out int
		if _, err := fmt.Sscanf(n, "%d", &out); err == nil {
			return out, true
		}
	}
	return 0, false
}

func toString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func toBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func intPtr(v int) *int {
	return &v
}
