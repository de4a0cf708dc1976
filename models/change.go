package models

import "time"

// Change types recorded by the detector.
const (
	ChangeCreated  = "created"
	ChangeModified = "modified"
	ChangeDeleted  = "deleted"
)

// DetectedChange records one created/modified/deleted object between a
// target's previous and current snapshot sets. PreviousHash is nil for
// created objects, CurrentHash is nil for deleted ones.
type DetectedChange struct {
	ID               int64     `json:"id"                db:"id"`
	ScanLogID        int64     `json:"scan_log_id"       db:"scan_log_id"`
	TenantID         int       `json:"tenant_id"         db:"tenant_id"`
	TenantCode       string    `json:"tenant_code"       db:"tenant_code"`
	Environment      string    `json:"environment"       db:"environment"`
	FullName         string    `json:"full_name"         db:"full_name"`
	ObjectType       string    `json:"object_type"       db:"object_type"`
	ChangeType       string    `json:"change_type"       db:"change_type"`
	PreviousHash     *string   `json:"previous_hash"     db:"previous_hash"`
	CurrentHash      *string   `json:"current_hash"      db:"current_hash"`
	DetectedAt       time.Time `json:"detected_at"       db:"detected_at"`
	NotificationSent bool      `json:"notification_sent" db:"notification_sent"`
}
