package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/steiner385/machshop-cutover/pkg/apperrors"
	"github.com/steiner385/machshop-cutover/pkg/database"
	"github.com/steiner385/machshop-cutover/pkg/models"
)

// ChecklistRepository provides data access for go-live checklist items.
type ChecklistRepository interface {
	// Seed inserts the template for a session. Returns ErrConflict if the
	// session already has checklist items.
	Seed(ctx context.Context, sessionID uuid.UUID, template []models.ChecklistTemplateItem) error
	// DeleteForSession removes all checklist items for a session (explicit
	// reset). Returns the number of items removed.
	DeleteForSession(ctx context.Context, sessionID uuid.UUID) (int64, error)
	// List returns all checklist items for a session ordered by item ID.
	List(ctx context.Context, sessionID uuid.UUID) ([]*models.ChecklistItem, error)
	// SetStatus transitions an item to the given status, stamping completion
	// metadata. Last write wins. Returns ErrNotFound for unknown items.
	SetStatus(ctx context.Context, sessionID uuid.UUID, itemID, status, actor string, notes *string) error
}

type checklistRepository struct {
	db *database.DB
}

func NewChecklistRepository(db *database.DB) ChecklistRepository {
	return &checklistRepository{db: db}
}

var _ ChecklistRepository = (*checklistRepository)(nil)

const checklistColumns = `
	id, session_id, item_id, category, requirement, required,
	status, completed_by, completed_at, notes, created_at, updated_at`

func (r *checklistRepository) Seed(ctx context.Context, sessionID uuid.UUID, template []models.ChecklistTemplateItem) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin checklist seed: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM cutover_checklist_items WHERE session_id = $1)`,
		sessionID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check existing checklist: %w", err)
	}
	if exists {
		return fmt.Errorf("checklist for session %s already seeded: %w", sessionID, apperrors.ErrConflict)
	}

	for _, item := range template {
		_, err := tx.Exec(ctx, `
			INSERT INTO cutover_checklist_items (
				id, session_id, item_id, category, requirement, required, status
			) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.New(), sessionID, item.ItemID, item.Category,
			item.Requirement, item.Required, models.ChecklistStatusNotTested,
		)
		if err != nil {
			return fmt.Errorf("failed to seed checklist item %s: %w", item.ItemID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit checklist seed: %w", err)
	}
	return nil
}

func (r *checklistRepository) DeleteForSession(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM cutover_checklist_items WHERE session_id = $1`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete checklist: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *checklistRepository) List(ctx context.Context, sessionID uuid.UUID) ([]*models.ChecklistItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+checklistColumns+`
		FROM cutover_checklist_items
		WHERE session_id = $1
		ORDER BY item_id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checklist items: %w", err)
	}
	defer rows.Close()

	return collectChecklistItems(rows)
}

func (r *checklistRepository) SetStatus(ctx context.Context, sessionID uuid.UUID, itemID, status, actor string, notes *string) error {
	now := time.Now()
	tag, err := r.db.Exec(ctx, `
		UPDATE cutover_checklist_items
		SET status = $3, completed_by = $4, completed_at = $5, notes = $6, updated_at = $5
		WHERE session_id = $1 AND item_id = $2`,
		sessionID, itemID, status, actor, now, notes,
	)
	if err != nil {
		return fmt.Errorf("failed to update checklist item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("checklist item %s for session %s: %w", itemID, sessionID, apperrors.ErrNotFound)
	}
	return nil
}

func collectChecklistItems(rows pgx.Rows) ([]*models.ChecklistItem, error) {
	var items []*models.ChecklistItem
	for rows.Next() {
		item := &models.ChecklistItem{}
		err := rows.Scan(
			&item.ID, &item.SessionID, &item.ItemID, &item.Category,
			&item.Requirement, &item.Required, &item.Status,
			&item.CompletedBy, &item.CompletedAt, &item.Notes,
			&item.CreatedAt, &item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checklist item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checklist items: %w", err)
	}
	return items, nil
}
