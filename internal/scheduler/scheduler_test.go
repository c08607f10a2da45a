package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func saoPaulo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	return loc
}

func TestParseClocks(t *testing.T) {
	got, err := ParseClocks([]string{"21:30", "20:15", "21:30"})
	if err != nil {
		t.Fatalf("ParseClocks: %v", err)
	}
	want := []Clock{{20, 15}, {21, 30}}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("clock[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	for _, bad := range []string{"", "25:00", "8h", "20:61"} {
		if _, err := ParseClock(bad); err == nil {
			t.Errorf("ParseClock(%q) succeeded, want error", bad)
		}
	}
}

func TestNext(t *testing.T) {
	loc := saoPaulo(t)
	times := []Clock{{20, 15}, {21, 30}}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"morning", time.Date(2025, 8, 13, 9, 0, 0, 0, loc), time.Date(2025, 8, 13, 20, 15, 0, 0, loc)},
		{"between", time.Date(2025, 8, 13, 20, 15, 0, 0, loc), time.Date(2025, 8, 13, 21, 30, 0, 0, loc)},
		{"late", time.Date(2025, 8, 13, 22, 0, 0, 0, loc), time.Date(2025, 8, 14, 20, 15, 0, 0, loc)},
		{"utc input", time.Date(2025, 8, 13, 23, 20, 0, 0, time.UTC), time.Date(2025, 8, 13, 21, 30, 0, 0, loc)},
		{"month end", time.Date(2025, 8, 31, 23, 0, 0, 0, loc), time.Date(2025, 9, 1, 20, 15, 0, 0, loc)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Next(tt.now, times, loc)
			if !got.Equal(tt.want) {
				t.Errorf("Next = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNew_NoTimes(t *testing.T) {
	if _, err := New(Config{}, JobFunc(func(context.Context) error { return nil }), nil); err == nil {
		t.Error("New succeeded without times, want error")
	}
}

// manual returns a Scheduler whose timers fire when ticks is sent to.
func manual(t *testing.T, job Job, runOnStart bool) (*Scheduler, chan time.Time) {
	t.Helper()
	s, err := New(Config{
		Times:      []Clock{{20, 15}},
		Location:   saoPaulo(t),
		RunOnStart: runOnStart,
	}, job, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ticks := make(chan time.Time)
	s.after = func(time.Duration) (<-chan time.Time, func() bool) {
		return ticks, func() bool { return true }
	}
	return s, ticks
}

func TestScheduler_FiresOnTick(t *testing.T) {
	var runs atomic.Int32
	s, ticks := manual(t, JobFunc(func(context.Context) error {
		runs.Add(1)
		return nil
	}), false)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ticks <- time.Now()
	ticks <- time.Now()
	// The third send only completes once the second run has returned.
	ticks <- time.Now()

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if got := runs.Load(); got != 3 {
		t.Errorf("runs = %d, want 3", got)
	}
}

func TestScheduler_FailureDoesNotStopLoop(t *testing.T) {
	var runs atomic.Int32
	s, ticks := manual(t, JobFunc(func(context.Context) error {
		runs.Add(1)
		return errors.New("provider down")
	}), true)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ticks <- time.Now()
	ticks <- time.Now()

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if got := runs.Load(); got < 2 {
		t.Errorf("runs = %d, want at least 2", got)
	}
}

func TestScheduler_StopCancelsRunningJob(t *testing.T) {
	started := make(chan struct{})
	s, _ := manual(t, JobFunc(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}), true)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-started

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
