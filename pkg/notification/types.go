// Package notification implements the decision engine that turns a probe's
// decided status into zero or more delivered alerts, and the per-channel
// dispatchers that actually deliver them.
package notification

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// FailureInfo carries the aggregated-failure fields attached to a DOWN
// notification: how many consecutive DOWN rows, when the run started, and
// how long it has lasted. nil on every non-DOWN or non-aggregated emission,
// which is what makes the webhook payload's failure_info field null.
type FailureInfo struct {
	Count            int
	FirstFailureTime time.Time
	LastFailureTime  time.Time
	DurationMinutes  int
}

// Data carries every template variable a dispatcher might need, resolved
// once by the engine and handed to every dispatcher for the monitor's
// enabled channels.
type Data struct {
	MonitorName string
	MonitorType string
	Status      int
	StatusText  string
	StatusCode  int
	Time        string
	Message     string
	Address     string
	Timestamp   time.Time

	// Set only on aggregated DOWN notifications; nil otherwise.
	Failure *FailureInfo

	// String/int forms of Failure's fields for template substitution; zero
	// values when Failure is nil.
	FailureCount     int
	FirstFailureTime string
	LastFailureTime  string
	FailureDuration  int
}

// Dispatcher delivers one notification through a single channel type. It
// performs exactly one attempt: no retries, no rate limiting beyond what the
// engine's resendInterval gate already imposes.
type Dispatcher interface {
	Dispatch(ctx context.Context, config map[string]any, data Data) error
}

// substitute replaces "{field}" placeholders in tmpl with values from vars,
// inserted unescaped. The template-driven dispatchers (webhook bodyTemplate,
// WeChat titleTemplate/contentTemplate) use substituteJSONSafe instead.
func substitute(tmpl string, vars map[string]string) string {
	if tmpl == "" {
		return ""
	}
	out := tmpl
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

// substituteJSONSafe is substitute, but escapes \, ", \n, \r, \t in each
// substituted value first so the result still parses as JSON when the
// caller's contentType is application/json.
func substituteJSONSafe(tmpl string, vars map[string]string) string {
	if tmpl == "" {
		return ""
	}
	out := tmpl
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{"+k+"}", escapeJSONString(v))
	}
	return out
}

func escapeJSONString(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		"\n", `\n`,
		"\r", `\r`,
		"\t", `\t`,
	)
	return replacer.Replace(s)
}

// templateVars flattens Data into the string map substitute/substituteJSONSafe
// operate on.
func templateVars(d Data) map[string]string {
	return map[string]string{
		"monitorName":      d.MonitorName,
		"monitorType":      d.MonitorType,
		"status":           d.StatusText,
		"statusText":       d.StatusText,
		"statusCode":       strconv.Itoa(d.StatusCode),
		"time":             d.Time,
		"message":          d.Message,
		"failureCount":     strconv.Itoa(d.FailureCount),
		"firstFailureTime": d.FirstFailureTime,
		"lastFailureTime":  d.LastFailureTime,
		"failureDuration":  strconv.Itoa(d.FailureDuration),
	}
}
