package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	domainerrors "phraseforge/contexts/gameplay/round-engine/domain/errors"
)

func TestLockManagerMutualExclusion(t *testing.T) {
	manager := NewLockManager()
	ctx := context.Background()

	guard, err := manager.Acquire(ctx, "start_prompt_round:alice", time.Second)
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	if _, err := manager.Acquire(ctx, "start_prompt_round:alice", 20*time.Millisecond); !errors.Is(err, domainerrors.ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout while held, got %v", err)
	}

	// A different key is independent.
	other, err := manager.Acquire(ctx, "start_prompt_round:bob", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("independent key acquire failed: %v", err)
	}
	other.Release()

	guard.Release()
	guard.Release() // idempotent

	reacquired, err := manager.Acquire(ctx, "start_prompt_round:alice", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("reacquire after release failed: %v", err)
	}
	reacquired.Release()
}

func TestLockManagerHandsOffToWaiter(t *testing.T) {
	manager := NewLockManager()
	ctx := context.Background()

	guard, err := manager.Acquire(ctx, "abandon_round:r1", time.Second)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		waiter, err := manager.Acquire(ctx, "abandon_round:r1", time.Second)
		if err == nil {
			waiter.Release()
		}
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	guard.Release()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("waiter should acquire after release, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("waiter never acquired the lock")
	}
}

func TestLockManagerRespectsContextCancel(t *testing.T) {
	manager := NewLockManager()

	guard, err := manager.Acquire(context.Background(), "rehydrate_prompt_queue", time.Second)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	defer guard.Release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if _, err := manager.Acquire(ctx, "rehydrate_prompt_queue", time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
