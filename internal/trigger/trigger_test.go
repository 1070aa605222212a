package trigger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"jsonflat/internal/logging"
)

func TestParseSchedule(t *testing.T) {
	for _, expr := range []string{"*/5 * * * *", "@hourly", "@every 30s"} {
		if _, err := ParseSchedule(expr); err != nil {
			t.Fatalf("ParseSchedule(%q) err=%v", expr, err)
		}
	}
	if _, err := ParseSchedule("every tuesday"); err == nil {
		t.Fatalf("ParseSchedule(bad) err=nil, want error")
	}
}

func TestScheduleRunsAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan struct{}, 4)
	rec := &logging.Recorder{}

	done := make(chan error, 1)
	go func() {
		done <- Schedule(ctx, "@every 1s", func(context.Context) error {
			ran <- struct{}{}
			return errors.New("boom")
		}, Options{Logger: rec})
	}()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled run did not happen")
	}
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Schedule did not return after cancel")
	}
}

func TestScheduleRejectsBadExpression(t *testing.T) {
	err := Schedule(context.Background(), "nope", func(context.Context) error { return nil }, Options{})
	require.Error(t, err)
}

func TestDebouncerCoalesces(t *testing.T) {
	d := newDebouncer(30 * time.Millisecond)
	defer d.stop()

	d.touch("a")
	d.touch("b")
	d.touch("a")

	select {
	case names := <-d.fired:
		require.Equal(t, []string{"a", "b"}, names)
	case <-time.After(2 * time.Second):
		t.Fatal("debouncer never fired")
	}
	select {
	case names := <-d.fired:
		t.Fatalf("unexpected second batch %v", names)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatchRunsOnNewFile(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ran := make(chan struct{}, 8)
	ready := make(chan struct{})
	rec := &logging.Recorder{}
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, dir, func(context.Context) error {
			ran <- struct{}{}
			return nil
		}, Options{Logger: &readyLogger{Recorder: rec, ready: ready}, Debounce: 20 * time.Millisecond})
	}()

	select {
	case <-ready:
	case err := <-done:
		t.Fatalf("Watch returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch never started")
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "in.json"), []byte("[]"), 0o644))

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not trigger a run")
	}
	cancel()
	require.NoError(t, <-done)
}

func TestWatchMissingDir(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope"), func(context.Context) error { return nil }, Options{})
	require.Error(t, err)
}

// readyLogger closes ready when the watch reports it has started.
type readyLogger struct {
	*logging.Recorder
	ready chan struct{}
}

func (l *readyLogger) Log(level logging.Level, msg string, fields logging.Fields) {
	if msg == "watch started" {
		close(l.ready)
	}
	l.Recorder.Log(level, msg, fields)
}
