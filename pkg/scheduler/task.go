package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pulsewatch/pulsewatch/pkg/database"
	"github.com/pulsewatch/pulsewatch/pkg/probe"
)

// monitorTask drives one monitor's probe loop: check, sleep for the
// monitor's interval measured from when this attempt finished, repeat. A
// timer reset at the end of each iteration (rather than a ticker) is what
// honors the interval from the end of the probe instead of from when the
// previous one started.
type monitorTask struct {
	monitorID string
	sched     *Scheduler

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// discard is closed by discardWithoutWaiting to tell run to stop
	// rescheduling after the in-flight runOnce finishes, without touching
	// ctx — an in-flight probe keeps running under its old configuration
	// and gets to record its result normally.
	discard     chan struct{}
	discardOnce sync.Once

	mu         sync.Mutex
	prevStatus *int
}

func newMonitorTask(parent context.Context, monitorID string, s *Scheduler) *monitorTask {
	ctx, cancel := context.WithCancel(parent)
	return &monitorTask{
		monitorID: monitorID,
		sched:     s,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		discard:   make(chan struct{}),
	}
}

func (t *monitorTask) start() {
	go t.run()
}

// stop cancels the task's context, aborting any in-flight probe I/O, and
// waits for the loop to exit. Reserved for Scheduler.Stop(); every other
// removal path (Remove, Pause, AddOrReplace's replace) must use
// discardWithoutWaiting instead so an in-flight probe isn't cut short.
func (t *monitorTask) stop() {
	t.cancel()
	<-t.done
}

// discardWithoutWaiting marks the task as superseded without cancelling its
// context or blocking for it to exit: a probe already in flight keeps
// running to completion under its old configuration and records its result,
// and the loop simply declines to schedule another iteration afterward.
func (t *monitorTask) discardWithoutWaiting() {
	t.discardOnce.Do(func() { close(t.discard) })
}

func (t *monitorTask) run() {
	defer close(t.done)

	for {
		interval := t.runOnce()

		select {
		case <-t.discard:
			return
		default:
		}

		timer := time.NewTimer(interval)
		select {
		case <-t.ctx.Done():
			timer.Stop()
			return
		case <-t.discard:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// runOnce performs exactly one decided probe attempt (including any
// retries) for the monitor and returns the interval to sleep before the
// next one. A panic anywhere in the executor/retry chain is recovered and
// turned into a DOWN result so one broken monitor never takes down the
// scheduler.
func (t *monitorTask) runOnce() (interval time.Duration) {
	interval = 60 * time.Second

	monitor, err := t.sched.monitors.GetByID(t.monitorID)
	if err != nil {
		t.sched.logger.Warnw("monitor disappeared, stopping task", "monitorId", t.monitorID, "error", err)
		go t.sched.Remove(t.monitorID)
		return interval
	}
	if monitor.Interval > 0 {
		interval = time.Duration(monitor.Interval) * time.Second
	}
	if !monitor.Active {
		return interval
	}

	result := t.execute(monitor)
	result = probe.ApplyUpsideDown(monitor, result)

	row, err := t.sched.recorder.Record(monitor.ID, result.Status, result.Message, result.Ping, result.Details, monitor.Type)
	if err != nil {
		t.sched.logger.Errorw("failed to record probe result", "monitorId", monitor.ID, "error", err)
		return interval
	}

	t.mu.Lock()
	prev := t.prevStatus
	t.prevStatus = intPtr(result.Status)
	t.mu.Unlock()

	if err := t.sched.notifier.Evaluate(t.ctx, monitor.ID, result.Status, result.Message, prev, row.Timestamp); err != nil {
		t.sched.logger.Errorw("notification evaluation failed", "monitorId", monitor.ID, "error", err)
	}

	return interval
}

// execute runs the executor/retry chain with panic recovery, converting any
// panic into a DOWN CheckResult carrying the panic detail.
func (t *monitorTask) execute(monitor *database.Monitor) (result probe.CheckResult) {
	defer func() {
		if r := recover(); r != nil {
			result = probe.CheckResult{
				Status:  database.StatusDown,
				Message: fmt.Sprintf("检查执行出错: %v", r),
			}
		}
	}()

	prober, err := t.sched.registry.For(monitor.Type)
	if err != nil {
		return probe.CheckResult{Status: database.StatusDown, Message: err.Error()}
	}

	res, err := probe.WithRetry(t.ctx, monitor, prober)
	if err != nil {
		return probe.CheckResult{Status: database.StatusDown, Message: err.Error()}
	}
	return res
}

func intPtr(v int) *int {
	return &v
}
