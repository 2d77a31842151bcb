package queue

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryPublishConsume(t *testing.T) {
	q := NewInMemory(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sent := ScanEvent{CourseID: "c-1", SessionID: "s-1", StudentID: "stud-1"}
	if err := q.Publish(ctx, sent); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	events, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	select {
	case got := <-events:
		if got != sent {
			t.Errorf("consumed %+v, want %+v", got, sent)
		}
	case <-time.After(time.Second):
		t.Fatal("no event consumed")
	}
}

func TestInMemoryPublishDoesNotBlockWhenFull(t *testing.T) {
	q := NewInMemory(1)
	ctx := context.Background()

	// No consumer attached: overflow beyond the single slot must drop,
	// not stall the caller.
	for i := 0; i < 3; i++ {
		done := make(chan error, 1)
		go func() { done <- q.Publish(ctx, ScanEvent{StudentID: "stud-1"}) }()
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("Publish() error = %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("Publish() blocked on a full buffer")
		}
	}

	// The first event is still there for a late consumer.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("buffered event lost")
	}
}
