package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestEnqueueDequeueFIFO(t *testing.T) {
	q := New(3)
	for i := 1; i <= 3; i++ {
		if err := q.Enqueue(ScanRequest{TenantID: i, RequestedBy: "test"}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	for i := 1; i <= 3; i++ {
		req, err := q.Dequeue(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if req.TenantID != i {
			t.Fatalf("dequeued tenant %d, want %d (order broken)", req.TenantID, i)
		}
		if req.EnqueuedAt.IsZero() {
			t.Fatal("EnqueuedAt not stamped")
		}
	}
}

func TestEnqueueFailsFastWhenFull(t *testing.T) {
	q := New(2)
	if q.Cap() != 2 {
		t.Fatalf("cap = %d", q.Cap())
	}
	_ = q.Enqueue(ScanRequest{TenantID: 1})
	_ = q.Enqueue(ScanRequest{TenantID: 2})

	start := time.Now()
	err := q.Enqueue(ScanRequest{TenantID: 3})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("Enqueue blocked instead of failing fast")
	}
	if q.Len() != 2 {
		t.Fatalf("len = %d, want 2", q.Len())
	}
}

func TestDequeueHonoursContext(t *testing.T) {
	q := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := q.Dequeue(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestZeroCapacityDefaults(t *testing.T) {
	q := New(0)
	if q.Cap() != DefaultCapacity {
		t.Fatalf("cap = %d, want %d", q.Cap(), DefaultCapacity)
	}
}
