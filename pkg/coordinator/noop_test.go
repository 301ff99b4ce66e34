package coordinator

import (
	"context"
	"testing"
)

func TestNoop_AcquireReleaseCycle(t *testing.T) {
	ctx := context.Background()
	c := NewNoop("node-1")

	holder, err := c.Holder(ctx)
	if err != nil {
		t.Fatalf("Holder() error = %v", err)
	}
	if holder != "" {
		t.Fatalf("Holder() = %q before acquire, want empty", holder)
	}

	ok, err := c.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("Acquire() = %v, %v, want true, nil", ok, err)
	}

	// Reacquiring while held succeeds
	ok, err = c.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("reacquire = %v, %v, want true, nil", ok, err)
	}

	holder, err = c.Holder(ctx)
	if err != nil {
		t.Fatalf("Holder() error = %v", err)
	}
	if holder != "node-1" {
		t.Fatalf("Holder() = %q, want node-1", holder)
	}

	if err := c.Release(ctx); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	holder, _ = c.Holder(ctx)
	if holder != "" {
		t.Fatalf("Holder() = %q after release, want empty", holder)
	}
}

func TestNoop_DefaultIdentity(t *testing.T) {
	c := NewNoop("")
	ctx := context.Background()
	if _, err := c.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	holder, _ := c.Holder(ctx)
	if holder != "local" {
		t.Fatalf("Holder() = %q, want local", holder)
	}
}

func TestNoop_ReleaseWithoutAcquireIsNoop(t *testing.T) {
	c := NewNoop("node-1")
	if err := c.Release(context.Background()); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
}
