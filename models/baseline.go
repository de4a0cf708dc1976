package models

import "time"

// Baseline is a named frozen version of one target's non-custom objects.
// Content is immutable after creation; only the row itself can be deleted.
type Baseline struct {
	ID                int64     `json:"id"                 db:"id"`
	Name              string    `json:"name"               db:"name"`
	Description       string    `json:"description"        db:"description"`
	SourceTenantID    int       `json:"source_tenant_id"   db:"source_tenant_id"`
	SourceTenantName  string    `json:"source_tenant_name" db:"source_tenant_name"`
	SourceTenantCode  string    `json:"source_tenant_code" db:"source_tenant_code"`
	SourceEnvironment string    `json:"source_environment" db:"source_environment"`
	TotalObjects      int       `json:"total_objects"      db:"total_objects"`
	CreatedAt         time.Time `json:"created_at"         db:"created_at"`
	CreatedBy         string    `json:"created_by"         db:"created_by"`
}

// BaselineObject is one frozen object's metadata within a baseline.
// SourceSnapshotID points back at the snapshot the object was cloned from.
type BaselineObject struct {
	ID               int64  `json:"id"                 db:"id"`
	BaselineID       int64  `json:"baseline_id"        db:"baseline_id"`
	FullName         string `json:"full_name"          db:"full_name"`
	Schema           string `json:"schema_name"        db:"schema_name"`
	Name             string `json:"object_name"        db:"object_name"`
	ObjectType       string `json:"object_type"        db:"object_type"`
	DefinitionHash   string `json:"definition_hash"    db:"definition_hash"`
	SourceSnapshotID int64  `json:"source_snapshot_id" db:"source_snapshot_id"`
}

// BaselineObjectDefinition holds the definition text for one baseline object.
type BaselineObjectDefinition struct {
	ID               int64  `json:"id"                 db:"id"`
	BaselineObjectID int64  `json:"baseline_object_id" db:"baseline_object_id"`
	Definition       string `json:"definition"         db:"definition"`
}
