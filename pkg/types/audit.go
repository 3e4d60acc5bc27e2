package types

import (
	"encoding/json"
	"time"
)

// Audit operation kinds.
const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// AuditEntry is the immutable record of one field-level change or lifecycle
// event. Entries are written by the persistence boundary around every
// mutating operation and are never updated or deleted.
type AuditEntry struct {
	// UUID is the surrogate row ID (UUID v7).
	UUID string `json:"uuid"`

	// EUID is the entry's own checksummed identifier (AL prefix).
	EUID string `json:"euid"`

	// TableName is the mutated table.
	TableName string `json:"table_name"`

	// RowUUID and RowEUID identify the mutated row in both surrogate and
	// checksummed form.
	RowUUID string `json:"row_uuid"`
	RowEUID string `json:"row_euid"`

	// Column is the changed column for UPDATE entries; empty for INSERT and
	// DELETE.
	Column string `json:"column,omitempty"`

	// OldValue and NewValue are the before/after values as text.
	OldValue string `json:"old_value,omitempty"`
	NewValue string `json:"new_value,omitempty"`

	// Operation is one of OpInsert, OpUpdate, OpDelete.
	Operation string `json:"operation"`

	// Actor is the caller recorded for the transaction.
	Actor string `json:"actor,omitempty"`

	// DeletedRecord is the full serialized pre-delete row for OpDelete
	// entries.
	DeletedRecord json.RawMessage `json:"deleted_record,omitempty"`

	ChangedAt time.Time `json:"changed_at"`
}
