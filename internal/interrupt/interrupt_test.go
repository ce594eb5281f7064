package interrupt

import (
	"context"
	"testing"
	"time"
)

func TestUnboundedNeverExpires(t *testing.T) {
	c := New(context.Background(), 0)
	defer c.Stop()

	if c.Expired() {
		t.Error("unbounded controller reports expired")
	}
	if _, ok := c.Context().Deadline(); ok {
		t.Error("unbounded controller context has a deadline")
	}
}

func TestExpiresAfterLimit(t *testing.T) {
	c := New(context.Background(), 10*time.Millisecond)
	defer c.Stop()

	if c.Expired() {
		t.Error("controller expired immediately")
	}

	select {
	case <-c.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("context not done after limit")
	}
	if !c.Expired() {
		t.Error("controller not expired after deadline")
	}
}

func TestStopDoesNotMarkExpired(t *testing.T) {
	c := New(context.Background(), time.Hour)
	c.Stop()
	c.Stop() // stopping twice is fine

	if c.Expired() {
		t.Error("stopped controller reports expired, want canceled only")
	}
}

func TestElapsedGrows(t *testing.T) {
	c := New(context.Background(), 0)
	defer c.Stop()

	time.Sleep(5 * time.Millisecond)
	if c.Elapsed() <= 0 {
		t.Error("Elapsed() not positive")
	}
}

func TestLimit(t *testing.T) {
	c := New(context.Background(), 30*time.Second)
	defer c.Stop()
	if c.Limit() != 30*time.Second {
		t.Errorf("Limit() = %v, want 30s", c.Limit())
	}
}
