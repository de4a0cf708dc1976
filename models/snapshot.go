package models

import "time"

// ObjectSnapshot captures one programmable object's state at one scan instant.
// The large definition text lives in a separate one-to-one row so list and
// diff-detection queries never drag definition bodies along.
type ObjectSnapshot struct {
	ID                 int64      `json:"id"                   db:"id"`
	ScanLogID          int64      `json:"scan_log_id"          db:"scan_log_id"`
	TenantID           int        `json:"tenant_id"            db:"tenant_id"`
	TenantName         string     `json:"tenant_name"          db:"tenant_name"`
	TenantCode         string     `json:"tenant_code"          db:"tenant_code"`
	Environment        string     `json:"environment"          db:"environment"`
	FullName           string     `json:"full_name"            db:"full_name"`
	Schema             string     `json:"schema_name"          db:"schema_name"`
	Name               string     `json:"object_name"          db:"object_name"`
	ObjectType         string     `json:"object_type"          db:"object_type"` // P|V|FN|TF|IF
	DefinitionHash     string     `json:"definition_hash"      db:"definition_hash"`
	ObjectLastModified *time.Time `json:"object_last_modified" db:"object_last_modified"`
	SnapshotDate       time.Time  `json:"snapshot_date"        db:"snapshot_date"`
	IsCustom           bool       `json:"is_custom"            db:"is_custom"`
}

// SnapshotDefinition holds the definition text for one snapshot.
type SnapshotDefinition struct {
	ID         int64  `json:"id"          db:"id"`
	SnapshotID int64  `json:"snapshot_id" db:"snapshot_id"`
	Definition string `json:"definition"  db:"definition"`
}
