package sweep

import (
	"sync/atomic"
	"testing"
	"time"
)

type fakeSweeper struct {
	calls int32
}

func (f *fakeSweeper) SweepExpired() int {
	atomic.AddInt32(&f.calls, 1)
	return 0
}

func TestStartRejectsEmptySchedule(t *testing.T) {
	s := New(&fakeSweeper{}, nil)
	if err := s.Start(""); err == nil {
		t.Error("expected error for empty schedule")
	}
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	s := New(&fakeSweeper{}, nil)
	if err := s.Start("not a cron expression"); err == nil {
		t.Error("expected error for invalid schedule")
	}
}

func TestStartRunsOnSchedule(t *testing.T) {
	fs := &fakeSweeper{}
	s := New(fs, nil)
	if err := s.Start("@every 10ms"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&fs.calls) > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected at least one sweep within the deadline")
}

func TestStopWithoutStartDoesNotPanic(t *testing.T) {
	s := New(&fakeSweeper{}, nil)
	s.Stop() // must not panic when no runner was ever started
}
