package models

import (
	"time"

	"github.com/google/uuid"
)

// Checklist categories.
const (
	ChecklistCategoryDataQuality     = "DATA_QUALITY"
	ChecklistCategorySystemReadiness = "SYSTEM_READINESS"
	ChecklistCategoryUserReadiness   = "USER_READINESS"
	ChecklistCategoryTesting         = "TESTING"
)

// Checklist item statuses.
const (
	ChecklistStatusNotTested = "NOT_TESTED"
	ChecklistStatusPass      = "PASS"
	ChecklistStatusFail      = "FAIL"
)

// ChecklistItem is one go-live requirement for a migration session. Items are
// seeded from the fixed template at session start and mutated only through
// the complete/fail operations.
type ChecklistItem struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`

	// ItemID is the stable business key, e.g. "DQ001".
	ItemID      string `json:"item_id"`
	Category    string `json:"category"`
	Requirement string `json:"requirement"`
	Required    bool   `json:"required"`

	Status      string     `json:"status"`
	CompletedBy *string    `json:"completed_by,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Notes       *string    `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChecklistTemplateItem is one entry of the fixed seeding template.
type ChecklistTemplateItem struct {
	ItemID      string
	Category    string
	Requirement string
	Required    bool
}

// DefaultChecklistTemplate returns the fixed go-live checklist seeded for
// every migration session.
func DefaultChecklistTemplate() []ChecklistTemplateItem {
	return []ChecklistTemplateItem{
		{"DQ001", ChecklistCategoryDataQuality, "Work order record counts reconciled against legacy system", true},
		{"DQ002", ChecklistCategoryDataQuality, "Material master data validated for completeness and accuracy", true},
		{"DQ003", ChecklistCategoryDataQuality, "Quality inspection history spot-checked against source documents", true},
		{"DQ004", ChecklistCategoryDataQuality, "Duplicate and orphaned records resolved", false},
		{"SYS001", ChecklistCategorySystemReadiness, "Production environment sized and load-tested", true},
		{"SYS002", ChecklistCategorySystemReadiness, "Integrations to ERP and shop-floor systems verified", true},
		{"SYS003", ChecklistCategorySystemReadiness, "Backup and restore procedure rehearsed", false},
		{"USR001", ChecklistCategoryUserReadiness, "Operator and supervisor training completed", true},
		{"USR002", ChecklistCategoryUserReadiness, "Support and escalation rota staffed for cutover window", false},
		{"TST001", ChecklistCategoryTesting, "End-to-end workflow tests passed on migrated data", true},
		{"TST002", ChecklistCategoryTesting, "Performance benchmarks within agreed tolerance", false},
		{"TST003", ChecklistCategoryTesting, "Rollback rehearsal executed against a recent snapshot", true},
	}
}
