package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lumahq/luma/internal/lua"
	"github.com/lumahq/luma/internal/store"
)

func compile(t *testing.T, source string, opts ...lua.Option) *lua.Evaluation {
	t.Helper()
	eval, err := lua.NewEvaluation(source, opts...)
	if err != nil {
		t.Fatalf("NewEvaluation: %v", err)
	}
	return eval
}

func TestNewRejectsBadExpression(t *testing.T) {
	eval := compile(t, "return 1")
	if _, err := New("not cron", eval); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestNewAcceptsFiveFields(t *testing.T) {
	eval := compile(t, "return 1")
	for _, expr := range []string{"* * * * *", "*/5 * * * *", "0 12 * * 1"} {
		if _, err := New(expr, eval); err != nil {
			t.Errorf("New(%q): %v", expr, err)
		}
	}
}

func TestInitialRunFiresImmediately(t *testing.T) {
	st, err := store.New("")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer st.Close()
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	source := `
	local m = require('@luma')
	m.store:update({'runs'}, function(values)
		values[1] = values[1] + 1
		return values
	end, {0})
	return true
	`
	eval := compile(t, source, lua.WithStore(st))
	sched, err := New("* * * * *", eval, WithInitialRun(true))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	// Wait for the immediate run to land in the store, then stop the loop
	// long before the first cron fire.
	deadline := time.After(5 * time.Second)
	for {
		v, err := st.Get(context.Background(), "runs")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if v == float64(1) {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("initial run not observed, runs = %#v", v)
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
}

func TestBailStopsAfterThreshold(t *testing.T) {
	eval := compile(t, "error('always fails')")
	sched, err := New("* * * * *", eval, WithInitialRun(true), WithBail(1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- sched.Run(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, ErrBailed) {
			t.Fatalf("Run returned %v, want ErrBailed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not bail")
	}
}

func TestZeroBailNeverStopsOnError(t *testing.T) {
	eval := compile(t, "error('always fails')")
	sched, err := New("* * * * *", eval, WithInitialRun(true))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	// The initial run fails, but with bail disabled the loop keeps waiting
	// for the next fire until the context expires.
	if err := sched.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run returned %v, want context.DeadlineExceeded", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	eval := compile(t, "return 1")
	sched, err := New("* * * * *", eval)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
