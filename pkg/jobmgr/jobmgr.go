// Package jobmgr runs named background jobs under a shared parent context.
// A job is a func(ctx) error; it leaves the table when it returns.
//
//	jm := jobmgr.NewManager(ctx, jobmgr.LogReporter(log.Logger))
//	_ = jm.StartAsync("sweeper", sweeper.Run)
//	...
//	jm.StopAll()
//	jm.Wait()
package jobmgr

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

type job struct {
	cancel context.CancelFunc
}

// State is a job lifecycle stage.
type State string

const (
	StateRunning State = "running"
	StateDone    State = "done"
	StateError   State = "error"
)

// Event is one lifecycle change of a job.
type Event struct {
	Job   string
	State State
	Err   error
}

func (e Event) String() string {
	if e.Err != nil {
		return string(e.State) + ":" + e.Job + ":" + e.Err.Error()
	}
	return string(e.State) + ":" + e.Job
}

// StatusReporter receives lifecycle events for jobs.
type StatusReporter func(Event)

// LogReporter writes job events to logger.
func LogReporter(logger zerolog.Logger) StatusReporter {
	return func(e Event) {
		switch e.State {
		case StateError:
			logger.Error().Err(e.Err).Str("job", e.Job).Msg("job failed")
		case StateDone:
			logger.Info().Str("job", e.Job).Msg("job finished")
		default:
			logger.Debug().Str("job", e.Job).Msg("job started")
		}
	}
}

// Manager is safe for concurrent use.
type Manager struct {
	parent   context.Context
	reporter StatusReporter
	errs     chan error
	wg       sync.WaitGroup

	mu      sync.Mutex
	running map[string]*job
}

// NewManager ties every job to parent. reporter may be nil.
func NewManager(parent context.Context, reporter StatusReporter) *Manager {
	return &Manager{
		parent:   parent,
		reporter: reporter,
		errs:     make(chan error, 8),
		running:  make(map[string]*job),
	}
}

// StartAsync launches runner in its own goroutine. Names are unique among
// running jobs.
func (m *Manager) StartAsync(name string, runner func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.running[name]; dup {
		return fmt.Errorf("jobmgr: %s already running", name)
	}

	ctx, cancel := context.WithCancel(m.parent)
	j := &job{cancel: cancel}
	m.running[name] = j
	m.wg.Add(1)

	go func() {
		defer m.wg.Done()
		defer cancel()
		m.emit(Event{Job: name, State: StateRunning})

		if err := runner(ctx); err != nil {
			m.emit(Event{Job: name, State: StateError, Err: err})
			select {
			case m.errs <- fmt.Errorf("job %s: %w", name, err):
			default:
			}
		} else {
			m.emit(Event{Job: name, State: StateDone})
		}

		m.mu.Lock()
		if m.running[name] == j {
			delete(m.running, name)
		}
		m.mu.Unlock()
	}()
	return nil
}

// Errors delivers job failures. Failures beyond the buffer are only reported.
func (m *Manager) Errors() <-chan error { return m.errs }

// Stop cancels the named job without waiting for it.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.running[name]
	if !ok {
		return fmt.Errorf("jobmgr: %s not running", name)
	}
	j.cancel()
	delete(m.running, name)
	return nil
}

func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, j := range m.running {
		j.cancel()
		delete(m.running, name)
	}
}

// Wait blocks until every started job has returned.
func (m *Manager) Wait() { m.wg.Wait() }

// List returns the running job names, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	names := slices.Collect(maps.Keys(m.running))
	m.mu.Unlock()
	slices.Sort(names)
	return names
}

// Status summarizes List in one line, e.g. "Running jobs: onebot, sweeper".
func (m *Manager) Status() string {
	names := m.List()
	if len(names) == 0 {
		return "No jobs are running."
	}
	return "Running jobs: " + strings.Join(names, ", ")
}

func (m *Manager) emit(e Event) {
	if m.reporter != nil {
		m.reporter(e)
	}
}
