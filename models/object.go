package models

import "time"

// Object kind short codes as stored in snapshots and baselines.
const (
	KindProcedure      = "P"
	KindView           = "V"
	KindScalarFunction = "FN"
	KindTableFunction  = "TF"
	KindInlineFunction = "IF"
)

// KindLabel maps a short kind code to a display name.
func KindLabel(kind string) string {
	switch kind {
	case KindProcedure:
		return "Procedure"
	case KindView:
		return "View"
	case KindScalarFunction:
		return "Scalar Function"
	case KindTableFunction:
		return "Table Function"
	case KindInlineFunction:
		return "Inline Function"
	default:
		return kind
	}
}

// ValidKind reports whether kind is one of the known short codes.
func ValidKind(kind string) bool {
	switch kind {
	case KindProcedure, KindView, KindScalarFunction, KindTableFunction, KindInlineFunction:
		return true
	}
	return false
}

// ProgrammableObject is a stored procedure, view or user-defined function as
// read from a target database's catalog. It is the extraction result; it is
// never persisted directly (snapshots are).
type ProgrammableObject struct {
	Schema       string
	Name         string
	Kind         string // P|V|FN|TF|IF
	Definition   string // raw catalog text; empty when the server has none
	LastModified time.Time
}

// FullName returns "schema.name", the identity of the object within one
// database.
func (o ProgrammableObject) FullName() string {
	return o.Schema + "." + o.Name
}
