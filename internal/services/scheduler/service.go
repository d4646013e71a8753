package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrShutdown is returned when scheduling on a stopped scheduler
	ErrShutdown = errors.New("scheduler is shut down")
	// ErrUnknownJob is returned when rescheduling a job that was never scheduled
	ErrUnknownJob = errors.New("unknown job")
	// ErrDuplicateJob is returned when a job name is scheduled twice
	ErrDuplicateJob = errors.New("job already scheduled")
)

// Task is one invocation of a periodic job. input is the latest value handed
// over with Reschedule, or the initial input.
type Task func(ctx context.Context, input any) error

// TickerFunc creates the timer a job fires on. The returned stop function
// releases the timer.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

// Option configures the scheduler
type Option func(*Service)

// WithTicker replaces the wall-clock ticker
func WithTicker(fn TickerFunc) Option {
	return func(s *Service) {
		s.newTicker = fn
	}
}

// JobStats describes one scheduled job
type JobStats struct {
	Name     string        `json:"name"`
	Interval time.Duration `json:"interval"`
	Runs     int64         `json:"runs"`
	Failures int64         `json:"failures"`
	LastRun  time.Time     `json:"last_run"`
}

type job struct {
	name     string
	interval time.Duration
	task     Task

	mu    sync.Mutex
	input any

	runs     atomic.Int64
	failures atomic.Int64
	lastRun  atomic.Int64
}

func (j *job) swapInput(v any) {
	j.mu.Lock()
	j.input = v
	j.mu.Unlock()
}

func (j *job) loadInput() any {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.input
}

// Service runs named jobs, each on its own interval and goroutine
type Service struct {
	logger    zerolog.Logger
	newTicker TickerFunc

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	jobs     map[string]*job
	shutdown bool
	wg       sync.WaitGroup
}

// NewService creates an idle scheduler
func NewService(logger zerolog.Logger, opts ...Option) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		logger:    logger,
		newTicker: wallTicker,
		ctx:       ctx,
		cancel:    cancel,
		jobs:      make(map[string]*job),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func wallTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Schedule starts a job that fires every interval. The first invocation
// happens one interval after scheduling.
func (s *Service) Schedule(name string, interval time.Duration, task Task, input any) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return ErrShutdown
	}
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}

	j := &job{name: name, interval: interval, task: task, input: input}
	s.jobs[name] = j

	ticks, stop := s.newTicker(interval)
	s.wg.Add(1)
	go s.loop(j, ticks, stop)

	s.logger.Info().Str("job", name).Dur("interval", interval).Msg("Job scheduled")
	return nil
}

// Reschedule hands a new input to a job without touching its timer
func (s *Service) Reschedule(name string, input any) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	shutdown := s.shutdown
	s.mu.Unlock()

	if shutdown {
		return ErrShutdown
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	j.swapInput(input)
	return nil
}

func (s *Service) loop(j *job, ticks <-chan time.Time, stop func()) {
	defer s.wg.Done()
	defer stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticks:
			if s.ctx.Err() != nil {
				return
			}
			s.invoke(j)
		}
	}
}

func (s *Service) invoke(j *job) {
	defer func() {
		if r := recover(); r != nil {
			j.failures.Add(1)
			s.logger.Error().
				Str("job", j.name).
				Interface("panic", r).
				Msg("Job panic recovered")
		}
	}()

	j.runs.Add(1)
	j.lastRun.Store(time.Now().UnixNano())

	// A running invocation is allowed to finish during shutdown
	ctx := context.WithoutCancel(s.ctx)
	if err := j.task(ctx, j.loadInput()); err != nil {
		j.failures.Add(1)
		s.logger.Error().Err(err).Str("job", j.name).Msg("Job failed")
	}
}

// ShutdownAndDrain cancels future firings and waits for running invocations
func (s *Service) ShutdownAndDrain() {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.shutdown = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.logger.Info().Msg("Scheduler stopped")
}

// Stats returns the state of all jobs
func (s *Service) Stats() []JobStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStats, 0, len(s.jobs))
	for _, j := range s.jobs {
		st := JobStats{
			Name:     j.name,
			Interval: j.interval,
			Runs:     j.runs.Load(),
			Failures: j.failures.Load(),
		}
		if ns := j.lastRun.Load(); ns > 0 {
			st.LastRun = time.Unix(0, ns)
		}
		out = append(out, st)
	}
	return out
}
