package models

import (
	"time"

	"github.com/google/uuid"
)

// StorageFormatJSONB is the only capture format currently written: entity
// records serialized as JSON into the snapshot_captures table.
const StorageFormatJSONB = "jsonb"

// Snapshot is a durable point-in-time checkpoint of one or more entity
// types' data. Immutable after creation; a snapshot is never edited, only
// deleted.
type Snapshot struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`

	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`

	EntityTypes []string `json:"entity_types"`

	// RecordCounts holds the per-entity-type record counts captured at
	// creation time; verification compares against these.
	RecordCounts map[string]int64 `json:"record_counts"`

	SizeBytes     int64  `json:"size_bytes"`
	StoragePath   string `json:"storage_path"`
	StorageFormat string `json:"storage_format"`

	CreatedAt time.Time  `json:"created_at"`
	CreatedBy string     `json:"created_by"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// ContainsEntityType reports whether the snapshot captured the given type.
func (s *Snapshot) ContainsEntityType(entityType string) bool {
	for _, et := range s.EntityTypes {
		if et == entityType {
			return true
		}
	}
	return false
}

// SnapshotCapture is the serialized state of one entity type inside a
// snapshot. Written all-or-nothing with the snapshot row.
type SnapshotCapture struct {
	SnapshotID  uuid.UUID `json:"snapshot_id"`
	EntityType  string    `json:"entity_type"`
	RecordCount int64     `json:"record_count"`
	SizeBytes   int64     `json:"size_bytes"`
	Payload     []byte    `json:"-"`
}

// MigrationRecord is one live migrated row as the snapshot engine sees it:
// an opaque JSON body keyed by (session, entity type, record id). The bulk
// import engine owns the content; this core only captures and restores it.
type MigrationRecord struct {
	SessionID  uuid.UUID `json:"session_id"`
	EntityType string    `json:"entity_type"`
	RecordID   string    `json:"record_id"`
	Body       []byte    `json:"body"`
}
