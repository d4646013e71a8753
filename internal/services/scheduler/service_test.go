package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type manualTickers struct {
	mu    sync.Mutex
	chans []chan time.Time
}

func (m *manualTickers) new(d time.Duration) (<-chan time.Time, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan time.Time, 1)
	m.chans = append(m.chans, ch)
	return ch, func() {}
}

func (m *manualTickers) fire(i int) {
	m.mu.Lock()
	ch := m.chans[i]
	m.mu.Unlock()
	ch <- time.Now()
}

func TestFrequencyJobUsesLatestInput(t *testing.T) {
	tickers := &manualTickers{}
	svc := NewService(zerolog.Nop(), WithTicker(tickers.new))

	saved := make(chan int, 10)
	task := func(ctx context.Context, input any) error {
		if input == nil {
			return nil
		}
		saved <- input.(int)
		return nil
	}
	if err := svc.Schedule("full", 60*time.Second, task, nil); err != nil {
		t.Fatal(err)
	}

	// 65 one-second ticks; the 60s timer fires once after tick 60
	for tick := 1; tick <= 65; tick++ {
		if err := svc.Reschedule("full", tick); err != nil {
			t.Fatalf("tick %d: %v", tick, err)
		}
		if tick == 60 {
			tickers.fire(0)
			select {
			case got := <-saved:
				if got != 60 {
					t.Errorf("full frame used tick %d input, expected 60", got)
				}
			case <-time.After(time.Second):
				t.Fatal("job did not fire")
			}
		}
	}

	svc.ShutdownAndDrain()

	if extra := len(saved); extra != 0 {
		t.Errorf("expected exactly one save, got %d more", extra)
	}
	stats := svc.Stats()
	if len(stats) != 1 || stats[0].Runs != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestShutdownWaitsForRunningJob(t *testing.T) {
	tickers := &manualTickers{}
	svc := NewService(zerolog.Nop(), WithTicker(tickers.new))

	started := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan struct{})
	task := func(ctx context.Context, input any) error {
		close(started)
		<-release
		if ctx.Err() != nil {
			t.Error("running job context was cancelled")
		}
		close(finished)
		return nil
	}
	if err := svc.Schedule("health", time.Second, task, nil); err != nil {
		t.Fatal(err)
	}

	tickers.fire(0)
	<-started

	done := make(chan struct{})
	go func() {
		svc.ShutdownAndDrain()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("ShutdownAndDrain returned while a job was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-done

	select {
	case <-finished:
	default:
		t.Error("job did not finish before shutdown returned")
	}
}

func TestNoFiringAfterShutdown(t *testing.T) {
	tickers := &manualTickers{}
	svc := NewService(zerolog.Nop(), WithTicker(tickers.new))

	runs := make(chan struct{}, 1)
	if err := svc.Schedule("health", time.Second, func(ctx context.Context, input any) error {
		runs <- struct{}{}
		return nil
	}, nil); err != nil {
		t.Fatal(err)
	}

	svc.ShutdownAndDrain()
	tickers.fire(0)
	time.Sleep(20 * time.Millisecond)

	if len(runs) != 0 {
		t.Error("job ran after shutdown")
	}
	if err := svc.Schedule("other", time.Second, nil, nil); !errors.Is(err, ErrShutdown) {
		t.Errorf("Schedule after shutdown = %v, expected ErrShutdown", err)
	}
	if err := svc.Reschedule("health", 1); !errors.Is(err, ErrShutdown) {
		t.Errorf("Reschedule after shutdown = %v, expected ErrShutdown", err)
	}

	// Second call is a no-op
	svc.ShutdownAndDrain()
}

func TestScheduleErrors(t *testing.T) {
	svc := NewService(zerolog.Nop(), WithTicker((&manualTickers{}).new))
	defer svc.ShutdownAndDrain()

	noop := func(ctx context.Context, input any) error { return nil }

	if err := svc.Schedule("bad", 0, noop, nil); err == nil {
		t.Error("expected error for zero interval")
	}
	if err := svc.Schedule("log", time.Second, noop, nil); err != nil {
		t.Fatal(err)
	}
	if err := svc.Schedule("log", time.Second, noop, nil); !errors.Is(err, ErrDuplicateJob) {
		t.Errorf("duplicate Schedule = %v, expected ErrDuplicateJob", err)
	}
	if err := svc.Reschedule("missing", 1); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("Reschedule unknown = %v, expected ErrUnknownJob", err)
	}
}

func TestFailingJobKeepsRunning(t *testing.T) {
	tickers := &manualTickers{}
	svc := NewService(zerolog.Nop(), WithTicker(tickers.new))

	calls := make(chan int, 3)
	n := 0
	task := func(ctx context.Context, input any) error {
		n++
		calls <- n
		switch n {
		case 1:
			return errors.New("sensor read failed")
		case 2:
			panic("boom")
		}
		return nil
	}
	if err := svc.Schedule("health", time.Second, task, nil); err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 3; i++ {
		tickers.fire(0)
		if got := <-calls; got != i {
			t.Fatalf("call %d, expected %d", got, i)
		}
	}
	svc.ShutdownAndDrain()

	stats := svc.Stats()
	if stats[0].Runs != 3 || stats[0].Failures != 2 {
		t.Errorf("unexpected stats: %+v", stats[0])
	}
}
