// Package notify fans out post-scan notifications to the configured
// channels. Delivery is best-effort: failures are logged, never retried, and
// never fail a scan.
package notify

import "context"

// Event types emitted after a scan.
const (
	EventScanCompleted   = "scan_completed"
	EventScanFailed      = "scan_failed"
	EventChangesDetected = "changes_detected"
)

// Event is one notification payload built from a finished scan.
type Event struct {
	Type     string         // scan_completed | scan_failed | changes_detected
	Title    string
	Body     string
	Metadata map[string]any // structured scan counters for machine consumers
}

// Channel is implemented by each notification provider.
type Channel interface {
	Name() string
	IsConfigured() bool
	Send(ctx context.Context, evt Event) error
}
