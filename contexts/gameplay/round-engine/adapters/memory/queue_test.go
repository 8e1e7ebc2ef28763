package memory

import (
	"context"
	"testing"
)

func TestQueueFIFOOrder(t *testing.T) {
	queue := NewQueue()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := queue.Push(ctx, "prompt_waiting_for_copy", id); err != nil {
			t.Fatalf("push failed: %v", err)
		}
	}
	length, err := queue.Length(ctx, "prompt_waiting_for_copy")
	if err != nil || length != 3 {
		t.Fatalf("expected length 3, got %d err=%v", length, err)
	}

	for _, want := range []string{"a", "b", "c"} {
		got, found, err := queue.Pop(ctx, "prompt_waiting_for_copy")
		if err != nil || !found {
			t.Fatalf("pop failed: found=%v err=%v", found, err)
		}
		if got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
	}
	if _, found, _ := queue.Pop(ctx, "prompt_waiting_for_copy"); found {
		t.Fatalf("expected empty queue")
	}
}

func TestQueuePopBatchAndRemove(t *testing.T) {
	queue := NewQueue()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d"} {
		if err := queue.Push(ctx, "q", id); err != nil {
			t.Fatalf("push failed: %v", err)
		}
	}

	batch, err := queue.PopBatch(ctx, "q", 2)
	if err != nil {
		t.Fatalf("pop batch failed: %v", err)
	}
	if len(batch) != 2 || batch[0] != "a" || batch[1] != "b" {
		t.Fatalf("unexpected batch %v", batch)
	}

	// Removing an absent item is a no-op.
	if err := queue.Remove(ctx, "q", "a"); err != nil {
		t.Fatalf("remove absent failed: %v", err)
	}
	if err := queue.Remove(ctx, "q", "d"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	got, found, err := queue.Pop(ctx, "q")
	if err != nil || !found || got != "c" {
		t.Fatalf("expected c after removal, got %s found=%v err=%v", got, found, err)
	}
	if length, _ := queue.Length(ctx, "q"); length != 0 {
		t.Fatalf("expected drained queue, length %d", length)
	}

	oversized, err := queue.PopBatch(ctx, "q", 5)
	if err != nil || len(oversized) != 0 {
		t.Fatalf("expected empty batch from empty queue, got %v err=%v", oversized, err)
	}
}
