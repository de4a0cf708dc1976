// Package queue is the bounded FIFO of on-demand scan requests feeding the
// serve-mode worker.
package queue

import (
	"context"
	"errors"
	"time"
)

// DefaultCapacity is the queue bound when the config leaves it unset.
const DefaultCapacity = 10

// ErrQueueFull is returned by Enqueue when the queue is at capacity. Callers
// surface it immediately; requests are never silently dropped or blocked on.
var ErrQueueFull = errors.New("scan queue is full")

// ScanRequest is one queued on-demand scan.
type ScanRequest struct {
	TenantID    int       `json:"tenant_id"`
	Environment string    `json:"environment,omitempty"` // empty scans all of the tenant's environments
	ScanAll     bool      `json:"scan_all,omitempty"`
	RequestedBy string    `json:"requested_by"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// Queue is a fixed-capacity FIFO. Safe for concurrent producers and a single
// consumer.
type Queue struct {
	requests chan ScanRequest
}

// New creates a queue bounded at capacity; non-positive means DefaultCapacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{requests: make(chan ScanRequest, capacity)}
}

// Enqueue adds a request, failing fast with ErrQueueFull at capacity.
func (q *Queue) Enqueue(req ScanRequest) error {
	if req.EnqueuedAt.IsZero() {
		req.EnqueuedAt = time.Now().UTC()
	}
	select {
	case q.requests <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue blocks until a request is available or ctx ends.
func (q *Queue) Dequeue(ctx context.Context) (ScanRequest, error) {
	select {
	case req := <-q.requests:
		return req, nil
	case <-ctx.Done():
		return ScanRequest{}, ctx.Err()
	}
}

// Len is the number of queued requests.
func (q *Queue) Len() int { return len(q.requests) }

// Cap is the queue bound.
func (q *Queue) Cap() int { return cap(q.requests) }
