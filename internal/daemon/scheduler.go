// Package daemon runs the sync engine periodically in the background.
//
// The scheduler:
// 1. Waits one interval (no sync at startup)
// 2. Runs one sync pass and logs its outcome
// 3. Swallows failures, panics included, so the loop keeps going
// 4. Repeats until its context is cancelled or Stop is called
package daemon

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/taskion/taskion/internal/remote"
	tsync "github.com/taskion/taskion/internal/sync"
)

// DefaultInterval is the wait between two sync passes.
const DefaultInterval = 300 * time.Second

// Runner performs one sync pass. *sync.Engine satisfies it.
type Runner interface {
	RunSync(ctx context.Context) (*tsync.Stats, error)
}

// Config holds configuration for the scheduler.
type Config struct {
	// Interval is the wait before each pass
	Interval time.Duration

	// Logger for scheduler activity
	Logger zerolog.Logger
}

// DefaultConfig returns the default five minute interval and a silent logger.
func DefaultConfig() *Config {
	return &Config{
		Interval: DefaultInterval,
		Logger:   zerolog.Nop(),
	}
}

// State describes what the scheduler is doing.
type State string

const (
	StateWaiting State = "waiting"
	StateRunning State = "running"
	StateStopped State = "stopped"
)

// Scheduler triggers sync passes at a fixed interval.
type Scheduler struct {
	runner Runner
	log    zerolog.Logger

	mu       sync.Mutex
	interval time.Duration
	state    State
	runs     int
	lastErr  error
	lastRun  time.Time

	reset  chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a scheduler. A nil config means DefaultConfig.
func New(runner Runner, config *Config) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", config.Interval)
	}

	return &Scheduler{
		runner:   runner,
		log:      config.Logger.With().Str("component", "scheduler").Logger(),
		interval: config.Interval,
		state:    StateStopped,
		reset:    make(chan struct{}, 1),
	}, nil
}

// Start runs the loop. It blocks until ctx is cancelled or Stop is called,
// and cancels an in-flight pass on the way out. A scheduler starts once.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	defer close(done)
	defer s.setState(StateStopped)

	s.log.Info().Dur("interval", s.Interval()).Msg("scheduler started")
	for {
		s.setState(StateWaiting)
		timer := time.NewTimer(s.Interval())

		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info().Msg("scheduler stopped")
			return nil
		case <-s.reset:
			timer.Stop()
			continue
		case <-timer.C:
		}

		s.setState(StateRunning)
		s.runOnce(ctx)
	}
}

// Stop ends the loop and waits for Start to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// ErrRunPanicked is recorded as the outcome of a pass that panicked.
var ErrRunPanicked = errors.New("sync pass panicked")

// safeRun turns a panic in the runner into an error so the loop survives.
func (s *Scheduler) safeRun(ctx context.Context) (stats *tsync.Stats, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("scheduled sync panicked")
			stats, err = nil, fmt.Errorf("%w: %v", ErrRunPanicked, r)
		}
	}()
	return s.runner.RunSync(ctx)
}

func (s *Scheduler) runOnce(ctx context.Context) {
	stats, err := s.safeRun(ctx)

	s.mu.Lock()
	s.runs++
	s.lastRun = time.Now()
	s.lastErr = err
	s.mu.Unlock()

	switch {
	case err == nil:
		total := stats.Total()
		s.log.Info().
			Int("pushed", total.Pushed).
			Int("pulled", total.Pulled).
			Int("archived", total.Archived).
			Msg("scheduled sync complete")
	case errors.Is(err, ErrRunPanicked):
		// logged with its stack by safeRun
	case errors.Is(err, tsync.ErrInProgress):
		s.log.Info().Msg("sync already running; waiting for next tick")
	case ctx.Err() != nil:
		s.log.Debug().Err(err).Msg("scheduled sync interrupted")
	default:
		s.log.Warn().Err(err).Bool("retryable", remote.IsRetryable(err)).Msg("scheduled sync failed")
	}
}

// SetInterval changes the wait between passes. The pending wait restarts
// with the new value.
func (s *Scheduler) SetInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("interval must be positive, got %s", d)
	}
	s.mu.Lock()
	changed := s.interval != d
	s.interval = d
	s.mu.Unlock()

	if changed {
		s.log.Info().Dur("interval", d).Msg("sync interval changed")
		select {
		case s.reset <- struct{}{}:
		default:
		}
	}
	return nil
}

// Interval returns the current wait between passes.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// State returns the current loop state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Runs returns the number of passes attempted so far.
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// LastRun returns when the last pass finished and its error.
// The time is zero before the first pass.
func (s *Scheduler) LastRun() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastErr
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
