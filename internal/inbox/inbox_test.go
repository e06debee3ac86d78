package inbox

import (
	"context"
	"errors"
	"testing"
	"time"
)

func msg(sender, content string) Message {
	return Message{SenderID: sender, Content: content, Type: Direct, Timestamp: time.Now()}
}

func TestPutGetFIFO(t *testing.T) {
	ib := New("agent-1", 0)
	ib.Put(msg("a", "one"), Normal)
	ib.Put(msg("a", "two"), Normal)

	m1, err := ib.Get(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if m1.Content != "one" {
		t.Errorf("first Get = %q, want one", m1.Content)
	}
	m2, err := ib.Get(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if m2.Content != "two" {
		t.Errorf("second Get = %q, want two", m2.Content)
	}
}

func TestHighPriorityConsumedFirst(t *testing.T) {
	ib := New("agent-1", 0)
	ib.Put(msg("a", "normal"), Normal)
	ib.Put(msg("a", "urgent"), High)

	m, err := ib.Get(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if m.Content != "urgent" {
		t.Errorf("Get = %q, want urgent (high priority first)", m.Content)
	}
}

func TestGetPredicateFiltersAndPreservesOrder(t *testing.T) {
	ib := New("agent-1", 0)
	ib.Put(msg("a", "one"), Normal)
	ib.Put(msg("b", "two"), Normal)
	ib.Put(msg("a", "three"), Normal)

	m, err := ib.Get(context.Background(), FromSender("b"), nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if m.Content != "two" {
		t.Errorf("Get(FromSender(b)) = %q, want two", m.Content)
	}

	// Remainder should still be in FIFO order for sender a.
	m1, _ := ib.Get(context.Background(), nil, nil)
	m2, _ := ib.Get(context.Background(), nil, nil)
	if m1.Content != "one" || m2.Content != "three" {
		t.Errorf("remainder order = %q, %q, want one, three", m1.Content, m2.Content)
	}
}

func TestPeekDoesNotMutate(t *testing.T) {
	ib := New("agent-1", 0)
	ib.Put(msg("a", "one"), Normal)

	peeked, ok := ib.Peek(nil)
	if !ok || peeked.Content != "one" {
		t.Fatalf("Peek = %v, %v, want one, true", peeked, ok)
	}
	if ib.Len() != 1 {
		t.Errorf("Len after Peek = %d, want 1 (peek must not remove)", ib.Len())
	}
}

func TestGetTimeout(t *testing.T) {
	ib := New("agent-1", 0)
	timeout := 10 * time.Millisecond
	_, err := ib.Get(context.Background(), nil, &timeout)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Get on empty inbox with timeout = %v, want ErrTimeout", err)
	}
}

func TestGetBatchWaitsForMinCount(t *testing.T) {
	ib := New("agent-1", 0)
	ib.Put(msg("a", "one"), Normal)

	done := make(chan []Message, 1)
	go func() {
		batch, err := ib.GetBatch(context.Background(), nil, 0, 2, nil)
		if err != nil {
			t.Errorf("GetBatch: %v", err)
		}
		done <- batch
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatalf("GetBatch returned before minCount was satisfied")
	default:
	}

	ib.Put(msg("a", "two"), Normal)
	select {
	case batch := <-done:
		if len(batch) != 2 {
			t.Errorf("batch len = %d, want 2", len(batch))
		}
	case <-time.After(time.Second):
		t.Fatal("GetBatch never returned after minCount satisfied")
	}
}

func TestGetBatchTimeoutReturnsPartial(t *testing.T) {
	ib := New("agent-1", 0)
	ib.Put(msg("a", "one"), Normal)

	timeout := 20 * time.Millisecond
	batch, err := ib.GetBatch(context.Background(), nil, 0, 5, &timeout)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if len(batch) != 1 {
		t.Errorf("partial batch len = %d, want 1", len(batch))
	}
}

func TestOverflowDropsOldest(t *testing.T) {
	ib := New("agent-1", 2)
	ib.Put(msg("a", "one"), Normal)
	ib.Put(msg("a", "two"), Normal)
	ib.Put(msg("a", "three"), Normal)

	if ib.Len() != 2 {
		t.Fatalf("Len = %d, want 2 (capped)", ib.Len())
	}
	if ib.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", ib.Dropped())
	}
	m1, _ := ib.Get(context.Background(), nil, nil)
	if m1.Content != "two" {
		t.Errorf("oldest after overflow = %q, want two (one should have been dropped)", m1.Content)
	}
}

func TestRemove(t *testing.T) {
	ib := New("agent-1", 0)
	ib.Put(msg("a", "one"), Normal)
	ib.Put(msg("b", "two"), Normal)
	ib.Put(msg("a", "three"), Normal)

	n := ib.Remove(FromSender("a"))
	if n != 2 {
		t.Errorf("Remove count = %d, want 2", n)
	}
	if ib.Len() != 1 {
		t.Errorf("Len after Remove = %d, want 1", ib.Len())
	}
}

func TestCloseRejectsPut(t *testing.T) {
	ib := New("agent-1", 0)
	ib.Close()
	if err := ib.Put(msg("a", "one"), Normal); !errors.Is(err, ErrClosed) {
		t.Errorf("Put after Close = %v, want ErrClosed", err)
	}
}

func TestCloseThenGetEmptyReturnsClosedAndEmpty(t *testing.T) {
	ib := New("agent-1", 0)
	ib.Close()
	_, err := ib.Get(context.Background(), nil, nil)
	if !errors.Is(err, ErrClosedAndEmpty) {
		t.Errorf("Get on closed empty inbox = %v, want ErrClosedAndEmpty", err)
	}
}

func TestCloseDrainsRemainingBeforeClosedAndEmpty(t *testing.T) {
	ib := New("agent-1", 0)
	ib.Put(msg("a", "one"), Normal)
	ib.Close()

	m, err := ib.Get(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Get on closed inbox with pending message: %v", err)
	}
	if m.Content != "one" {
		t.Errorf("Get = %q, want one", m.Content)
	}

	_, err = ib.Get(context.Background(), nil, nil)
	if !errors.Is(err, ErrClosedAndEmpty) {
		t.Errorf("Get after drain = %v, want ErrClosedAndEmpty", err)
	}
}

func TestGetContextCancellation(t *testing.T) {
	ib := New("agent-1", 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ib.Get(ctx, nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Get with cancelled context = %v, want context.Canceled", err)
	}
}

func TestAndOrPredicates(t *testing.T) {
	m := msg("a", "hello")
	m.Type = MeetingBroadcast

	if !And(FromSender("a"), OfType(MeetingBroadcast))(m) {
		t.Errorf("And predicate should match")
	}
	if And(FromSender("b"), OfType(MeetingBroadcast))(m) {
		t.Errorf("And predicate should not match wrong sender")
	}
	if !Or(FromSender("b"), OfType(MeetingBroadcast))(m) {
		t.Errorf("Or predicate should match on second clause")
	}
}
