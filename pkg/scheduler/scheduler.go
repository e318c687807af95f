// Package scheduler drives every active monitor's probe loop: one goroutine
// per monitor, each sleeping from the end of its own last attempt rather
// than ticking on a shared clock, so a monitor never has two probes in
// flight at once and its interval is honored from the end of each attempt,
// not the start.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pulsewatch/pulsewatch/pkg/database"
	"github.com/pulsewatch/pulsewatch/pkg/notification"
	"github.com/pulsewatch/pulsewatch/pkg/probe"
	"github.com/pulsewatch/pulsewatch/pkg/recorder"
)

// Scheduler owns one monitorTask goroutine per active monitor, guarded by a
// mutex-protected map and torn down via a shared context/cancel pair.
type Scheduler struct {
	monitors *database.MonitorRepository
	registry *probe.Registry
	recorder *recorder.Recorder
	notifier *notification.Engine

	mu    sync.RWMutex
	tasks map[string]*monitorTask

	ctx    context.Context
	cancel context.CancelFunc

	logger *zap.SugaredLogger
}

// New builds a Scheduler. logger may be nil, in which case a no-op logger is
// used.
func New(
	monitors *database.MonitorRepository,
	registry *probe.Registry,
	rec *recorder.Recorder,
	notifier *notification.Engine,
	logger *zap.SugaredLogger,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		monitors: monitors,
		registry: registry,
		recorder: rec,
		notifier: notifier,
		tasks:    make(map[string]*monitorTask),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.With("component", "scheduler"),
	}
}

// ResetAll loads every active=true monitor from the repository and starts
// one task for each, discarding any tasks already running. Any probe already
// in flight for a superseded task finishes under its old configuration
// rather than being cancelled.
func (s *Scheduler) ResetAll() error {
	monitors, err := s.monitors.ListActive()
	if err != nil {
		return fmt.Errorf("failed to list active monitors: %w", err)
	}

	s.mu.Lock()
	for id, t := range s.tasks {
		t.discardWithoutWaiting()
		delete(s.tasks, id)
	}
	s.mu.Unlock()

	for _, m := range monitors {
		s.AddOrReplace(m)
	}
	return nil
}

// Start is a no-op beyond what New/ResetAll already does; it exists to give
// the caller a single predictable call to make once every task has been
// primed via ResetAll.
func (s *Scheduler) Start() {
	s.logger.Infow("scheduler started", "monitors", s.taskCount())
}

// Stop cancels every running task and waits for them to exit.
func (s *Scheduler) Stop() {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.tasks {
		t.stop()
		delete(s.tasks, id)
	}
}

// AddOrReplace starts a task for m, discarding any existing task for the
// same monitor ID first. Call this after creating a monitor or editing any
// field that affects its probe loop (interval, retries, type, config). The
// old task's in-flight probe, if any, is left to finish and record under its
// old configuration rather than being cancelled.
func (s *Scheduler) AddOrReplace(m *database.Monitor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.tasks[m.ID]; ok {
		existing.discardWithoutWaiting()
		delete(s.tasks, m.ID)
	}

	if !m.Active {
		return
	}

	t := newMonitorTask(s.ctx, m.ID, s)
	s.tasks[m.ID] = t
	t.start()
}

// Remove discards and forgets the task for monitorID, if any, without
// cancelling or waiting for an in-flight probe to finish.
func (s *Scheduler) Remove(monitorID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[monitorID]; ok {
		t.discardWithoutWaiting()
		delete(s.tasks, monitorID)
	}
}

// Pause discards and forgets the task for monitorID exactly as Remove does,
// without cancelling or waiting for an in-flight probe; a subsequent Resume
// or AddOrReplace restarts the loop.
func (s *Scheduler) Pause(monitorID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[monitorID]; ok {
		t.discardWithoutWaiting()
		delete(s.tasks, monitorID)
	}
}

// Resume reloads the monitor and starts a fresh task for it if it is active.
func (s *Scheduler) Resume(monitorID string) error {
	m, err := s.monitors.GetByID(monitorID)
	if err != nil {
		return fmt.Errorf("failed to resume monitor %s: %w", monitorID, err)
	}
	s.AddOrReplace(m)
	return nil
}

func (s *Scheduler) taskCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}
