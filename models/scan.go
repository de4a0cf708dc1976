package models

import "time"

// ScanLog statuses. A log is created as running and moved exactly once to a
// terminal state.
const (
	ScanStatusRunning             = "running"
	ScanStatusCompleted           = "completed"
	ScanStatusCompletedWithErrors = "completed_with_errors"
	ScanStatusFailed              = "failed"
)

// Scan trigger sources.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
	TriggerOnDemand  = "on_demand"
	TriggerCompare   = "compare"
)

// ScanLog records one execution of the scanner across a set of targets.
type ScanLog struct {
	ID                   int64      `json:"id"                     db:"id"`
	StartedAt            time.Time  `json:"started_at"             db:"started_at"`
	CompletedAt          *time.Time `json:"completed_at"           db:"completed_at"`
	Status               string     `json:"status"                 db:"status"`
	Trigger              string     `json:"trigger"                db:"trigger_source"`
	TriggeredBy          string     `json:"triggered_by"           db:"triggered_by"`
	TotalTenants         int        `json:"total_tenants"          db:"total_tenants"`
	TotalEnvironments    int        `json:"total_environments"     db:"total_environments"`
	TotalObjectsScanned  int        `json:"total_objects_scanned"  db:"total_objects_scanned"`
	TotalChangesDetected int        `json:"total_changes_detected" db:"total_changes_detected"`
	TotalErrors          int        `json:"total_errors"           db:"total_errors"`
	ErrorSummary         string     `json:"error_summary"          db:"error_summary"`
}

// ScanEntry records the outcome of one (scan, target) pair. Created at target
// start in a non-terminal state and updated exactly once at target end.
type ScanEntry struct {
	ID              int64      `json:"id"               db:"id"`
	ScanLogID       int64      `json:"scan_log_id"      db:"scan_log_id"`
	TenantID        int        `json:"tenant_id"        db:"tenant_id"`
	TenantCode      string     `json:"tenant_code"      db:"tenant_code"`
	Environment     string     `json:"environment"      db:"environment"`
	StartedAt       time.Time  `json:"started_at"       db:"started_at"`
	CompletedAt     *time.Time `json:"completed_at"     db:"completed_at"`
	Success         bool       `json:"success"          db:"success"`
	ObjectsFound    int        `json:"objects_found"    db:"objects_found"`
	ObjectsNew      int        `json:"objects_new"      db:"objects_new"`
	ObjectsModified int        `json:"objects_modified" db:"objects_modified"`
	ObjectsDeleted  int        `json:"objects_deleted"  db:"objects_deleted"`
	ErrorMessage    string     `json:"error_message"    db:"error_message"`
	DurationSeconds float64    `json:"duration_seconds" db:"duration_seconds"`
}
