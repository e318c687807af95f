package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pulsewatch/pulsewatch/pkg/database"
)

// lastNotifiedEntry is the only state the engine keeps in memory: when (and
// at what status) a notification was last actually emitted for a monitor.
// It starts empty on every process restart, so the first observed
// transition after a restart always emits as if there were no prior alert.
type lastNotifiedEntry struct {
	time   time.Time
	status int
}

// Engine decides whether a probe's decided status should trigger a
// notification and, if so, fans it out across the monitor's enabled
// channels.
type Engine struct {
	monitors *database.MonitorRepository
	history  *database.HistoryRepository
	notif    *database.NotificationRepository

	dispatchers map[string]Dispatcher

	mu           sync.Mutex
	lastNotified map[string]lastNotifiedEntry

	logger *zap.SugaredLogger
}

// New builds an Engine with the default five dispatchers wired.
func New(monitors *database.MonitorRepository, history *database.HistoryRepository, notif *database.NotificationRepository, logger *zap.SugaredLogger) *Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Engine{
		monitors:     monitors,
		history:      history,
		notif:        notif,
		dispatchers:  defaultDispatchers(),
		lastNotified: make(map[string]lastNotifiedEntry),
		logger:       logger.With("component", "notification_engine"),
	}
}

func defaultDispatchers() map[string]Dispatcher {
	return map[string]Dispatcher{
		database.ChannelTypeEmail:    &EmailDispatcher{},
		database.ChannelTypeWebhook:  &WebhookDispatcher{},
		database.ChannelTypeWeChat:   &WeChatDispatcher{},
		database.ChannelTypeDingTalk: &DingTalkDispatcher{},
		database.ChannelTypeWeCom:    &WeComDispatcher{},
	}
}

// Evaluate decides whether this probe result is a transition worth alerting
// on and, if so, builds the message and dispatches it. prevStatus is the
// status prior to this probe, or nil on first-ever evaluation (or after a
// restart with no in-memory lastNotified state). at is the probe's own
// decided timestamp (the same one the recorder wrote to history), so the
// resend-interval gate's CountSince comparisons line up with lastNotified
// instead of drifting against a second, independently-sampled clock.
func (e *Engine) Evaluate(ctx context.Context, monitorID string, newStatus int, message string, prevStatus *int, at time.Time) error {
	// Step 1: load the monitor with its enabled notification bindings.
	monitor, err := e.monitors.GetByID(monitorID)
	if err != nil {
		return fmt.Errorf("failed to load monitor %s: %w", monitorID, err)
	}
	channels, err := e.notif.ListEnabledBindingsWithChannels(monitorID)
	if err != nil {
		return fmt.Errorf("failed to load notification channels for %s: %w", monitorID, err)
	}
	if len(channels) == 0 {
		return nil
	}

	// Step 2: load the two most recent history rows to judge "newly created".
	recent, err := e.history.Recent(monitorID, 2)
	if err != nil {
		return fmt.Errorf("failed to load recent history for %s: %w", monitorID, err)
	}
	isNew := len(recent) <= 1

	// Step 3: resolve realPrev.
	var realPrev *int
	if prevStatus != nil {
		realPrev = prevStatus
	} else if !isNew && len(recent) >= 2 {
		s := recent[1].Status
		realPrev = &s
	}

	// Step 4: repeated UP-after-UP is not a transition and never re-alerts.
	// A repeated DOWN-after-DOWN is deliberately NOT short-circuited here —
	// its resend-interval/aggregation gating happens inside evaluateDown
	// (step 6), which must run on every DOWN probe to decide whether enough
	// consecutive failures have accumulated since the last alert.
	if newStatus == database.StatusUp && prevStatus != nil && realPrev != nil && *realPrev == newStatus {
		return nil
	}

	// Step 5: first successful check of a brand-new monitor never alerts.
	if isNew && newStatus == database.StatusUp {
		return nil
	}

	now := at

	var finalMessage string
	var failure *FailureInfo
	switch newStatus {
	case database.StatusDown:
		emit, msg, info, err := e.evaluateDown(monitor, message, now)
		if err != nil {
			return err
		}
		if !emit {
			return nil
		}
		finalMessage = msg
		failure = info
	case database.StatusUp:
		if realPrev != nil && *realPrev == database.StatusDown && !isNew {
			finalMessage = e.recoveryMessage(monitorID, message, now)
		} else {
			finalMessage = message
			e.setLastNotified(monitorID, now, newStatus)
		}
	default:
		finalMessage = message
		e.setLastNotified(monitorID, now, newStatus)
	}

	// Step 7: prepend the monitor address line.
	if addr := monitorAddress(monitor); addr != "" {
		finalMessage = fmt.Sprintf("监控地址: %s\n%s", addr, finalMessage)
	}

	data := Data{
		MonitorName: monitor.Name,
		MonitorType: monitor.Type,
		Status:      newStatus,
		StatusText:  statusText(newStatus),
		StatusCode:  newStatus,
		Time:        now.Format("2006-01-02 15:04:05"),
		Message:     finalMessage,
		Address:     monitorAddress(monitor),
		Timestamp:   now,
		Failure:     failure,
	}
	if failure != nil {
		data.FailureCount = failure.Count
		data.FirstFailureTime = failure.FirstFailureTime.Format("2006-01-02 15:04:05")
		data.LastFailureTime = failure.LastFailureTime.Format("2006-01-02 15:04:05")
		data.FailureDuration = failure.DurationMinutes
	}

	// Step 8: dispatch in parallel; a dispatcher failure never cancels siblings.
	e.dispatchAll(ctx, channels, data)
	return nil
}

// evaluateDown applies the resendInterval gate and, when the alert should
// fire, builds the aggregated-failure message. Returns emit=false when the
// repeat-alert gate suppresses this DOWN.
func (e *Engine) evaluateDown(monitor *database.Monitor, message string, now time.Time) (emit bool, finalMessage string, info *FailureInfo, err error) {
	monitorID := monitor.ID
	last, hasLast := e.getLastNotified(monitorID)

	if hasLast && last.status == database.StatusDown {
		if monitor.ResendInterval <= 0 {
			return false, "", nil, nil
		}
		count, err := e.history.CountSince(monitorID, database.StatusDown, last.time)
		if err != nil {
			return false, "", nil, fmt.Errorf("failed to count down history for %s: %w", monitorID, err)
		}
		if count < monitor.ResendInterval {
			return false, "", nil, nil
		}
	}

	mostRecentUp, err := e.history.MostRecentWithStatus(monitorID, database.StatusUp)
	if err != nil {
		return false, "", nil, fmt.Errorf("failed to find most recent up row for %s: %w", monitorID, err)
	}
	var failureStart time.Time
	if mostRecentUp != nil {
		failureStart = mostRecentUp.Timestamp
	}

	failureCount, err := e.history.CountSince(monitorID, database.StatusDown, failureStart)
	if err != nil {
		return false, "", nil, fmt.Errorf("failed to count failure run for %s: %w", monitorID, err)
	}

	firstFailure, err := e.history.FirstAfter(monitorID, database.StatusDown, failureStart)
	if err != nil {
		return false, "", nil, fmt.Errorf("failed to find first failure for %s: %w", monitorID, err)
	}
	firstFailureTime := now
	if firstFailure != nil {
		firstFailureTime = firstFailure.Timestamp
	}

	failureDuration := int(now.Sub(firstFailureTime).Minutes())

	finalMessage = fmt.Sprintf("连续失败 %d 次，首次失败于 %s，持续 %d 分钟\n%s",
		failureCount, firstFailureTime.Format("2006-01-02 15:04:05"), failureDuration, message)

	e.setLastNotified(monitorID, now, database.StatusDown)
	return true, finalMessage, &FailureInfo{
		Count:            failureCount,
		FirstFailureTime: firstFailureTime,
		LastFailureTime:  now,
		DurationMinutes:  failureDuration,
	}, nil
}

// recoveryMessage builds the message sent when a monitor transitions back
// to UP from a DOWN state.
func (e *Engine) recoveryMessage(monitorID, message string, now time.Time) string {
	var recoveryMinutes int
	if last, ok := e.getLastNotified(monitorID); ok && last.status == database.StatusDown {
		recoveryMinutes = int(now.Sub(last.time).Minutes())
	}
	e.setLastNotified(monitorID, now, database.StatusUp)
	return fmt.Sprintf("监控已恢复正常。故障持续了约 %d 分钟。\n%s", recoveryMinutes, message)
}

func (e *Engine) getLastNotified(monitorID string) (lastNotifiedEntry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.lastNotified[monitorID]
	return entry, ok
}

func (e *Engine) setLastNotified(monitorID string, at time.Time, status int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastNotified[monitorID] = lastNotifiedEntry{time: at, status: status}
}

// dispatchAll fans out data to every enabled binding's channel concurrently.
// A dispatcher's failure is logged and never cancels its siblings.
func (e *Engine) dispatchAll(ctx context.Context, channels []*database.BoundChannel, data Data) {
	var wg sync.WaitGroup
	for _, ch := range channels {
		ch := ch
		dispatcher, ok := e.dispatchers[ch.Type]
		if !ok {
			e.logger.Warnw("no dispatcher registered for channel type", "channel", ch.Name, "type", ch.Type)
			continue
		}
		cfg, err := ch.Config()
		if err != nil {
			e.logger.Errorw("failed to parse channel config", "channel", ch.Name, "error", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dispatcher.Dispatch(ctx, cfg, data); err != nil {
				e.logger.Errorw("notification dispatch failed", "channel", ch.Name, "type", ch.Type, "error", err)
			}
		}()
	}
	wg.Wait()
}

// monitorAddress derives the address line from the monitor's config: its
// url, or hostname[:port] when present.
func monitorAddress(monitor *database.Monitor) string {
	cfg, err := monitor.Config()
	if err != nil {
		return ""
	}
	if u, ok := cfg["url"].(string); ok && u != "" {
		return u
	}
	if host, ok := cfg["hostname"].(string); ok && host != "" {
		if port, ok := cfg["port"]; ok {
			return fmt.Sprintf("%s:%v", host, port)
		}
		return host
	}
	return ""
}

func statusText(status int) string {
	switch status {
	case database.StatusUp:
		return "正常"
	case database.StatusDown:
		return "故障"
	case database.StatusPending:
		return "等待中"
	default:
		return "未知"
	}
}
