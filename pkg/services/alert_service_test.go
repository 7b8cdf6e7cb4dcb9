package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/steiner385/machshop-cutover/pkg/apperrors"
	"github.com/steiner385/machshop-cutover/pkg/models"
)

// mockAlertRepo implements repositories.AlertRepository for testing.
type mockAlertRepo struct {
	alerts []*models.Alert

	createErr     error
	getErr        error
	listErr       error
	unresolvedErr error
	resolveErr    error
	assignErr     error
}

func (m *mockAlertRepo) Create(_ context.Context, alert *models.Alert) (bool, error) {
	if m.createErr != nil {
		return false, m.createErr
	}
	if alert.DedupeKey != nil {
		for _, existing := range m.alerts {
			if existing.DedupeKey != nil && *existing.DedupeKey == *alert.DedupeKey {
				return false, nil
			}
		}
	}
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}
	alert.TargetResolutionTime = alert.CreatedAt.Add(models.ResolutionSLA(alert.Severity))
	m.alerts = append(m.alerts, alert)
	return true, nil
}

func (m *mockAlertRepo) Get(_ context.Context, alertID uuid.UUID) (*models.Alert, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, a := range m.alerts {
		if a.ID == alertID {
			return a, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockAlertRepo) List(_ context.Context, sessionID uuid.UUID, filters models.AlertFilters) ([]*models.Alert, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var matched []*models.Alert
	for _, a := range m.alerts {
		if a.SessionID != sessionID {
			continue
		}
		if filters.Resolved != nil && a.Resolved != *filters.Resolved {
			continue
		}
		if filters.Severity != "" && a.Severity != filters.Severity {
			continue
		}
		matched = append(matched, a)
	}
	return matched, len(matched), nil
}

func (m *mockAlertRepo) ListUnresolvedBySeverities(_ context.Context, sessionID uuid.UUID, severities []string) ([]*models.Alert, error) {
	if m.unresolvedErr != nil {
		return nil, m.unresolvedErr
	}
	var matched []*models.Alert
	for _, a := range m.alerts {
		if a.SessionID != sessionID || a.Resolved {
			continue
		}
		for _, sev := range severities {
			if a.Severity == sev {
				matched = append(matched, a)
				break
			}
		}
	}
	return matched, nil
}

func (m *mockAlertRepo) Resolve(_ context.Context, alertID uuid.UUID, resolvedBy, resolution string) (bool, error) {
	if m.resolveErr != nil {
		return false, m.resolveErr
	}
	for _, a := range m.alerts {
		if a.ID != alertID || a.Resolved {
			continue
		}
		now := time.Now()
		a.Resolved = true
		a.ResolvedBy = &resolvedBy
		a.ResolvedAt = &now
		if resolution != "" {
			a.Resolution = &resolution
		}
		return true, nil
	}
	return false, nil
}

func (m *mockAlertRepo) Assign(_ context.Context, alertID uuid.UUID, assignee string) error {
	if m.assignErr != nil {
		return m.assignErr
	}
	for _, a := range m.alerts {
		if a.ID == alertID {
			a.AssignedTo = &assignee
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func newTestAlertService(repo *mockAlertRepo) AlertService {
	return NewAlertService(repo, zap.NewNop())
}

func newTestAlert(sessionID uuid.UUID) *models.Alert {
	return &models.Alert{
		SessionID: sessionID,
		AlertType: models.AlertTypeWarning,
		Severity:  models.AlertSeverityMedium,
		Title:     "Validation backlog growing",
		Message:   "validation queue depth exceeded 10k records",
	}
}

func TestAlert_Create_Valid(t *testing.T) {
	repo := &mockAlertRepo{}
	svc := newTestAlertService(repo)

	alert := newTestAlert(uuid.New())
	require.NoError(t, svc.CreateAlert(context.Background(), alert))
	require.Len(t, repo.alerts, 1)
	assert.NotEqual(t, uuid.Nil, alert.ID)
}

func TestAlert_Create_InvalidSeverity(t *testing.T) {
	svc := newTestAlertService(&mockAlertRepo{})

	alert := newTestAlert(uuid.New())
	alert.Severity = "URGENT"
	err := svc.CreateAlert(context.Background(), alert)
	assert.True(t, apperrors.IsValidation(err))
}

func TestAlert_Create_InvalidType(t *testing.T) {
	svc := newTestAlertService(&mockAlertRepo{})

	alert := newTestAlert(uuid.New())
	alert.AlertType = "NOTICE"
	err := svc.CreateAlert(context.Background(), alert)
	assert.True(t, apperrors.IsValidation(err))
}

func TestAlert_Create_MissingTitle(t *testing.T) {
	svc := newTestAlertService(&mockAlertRepo{})

	alert := newTestAlert(uuid.New())
	alert.Title = ""
	err := svc.CreateAlert(context.Background(), alert)
	assert.True(t, apperrors.IsValidation(err))
}

func TestAlert_Create_DuplicateDropped(t *testing.T) {
	repo := &mockAlertRepo{}
	svc := newTestAlertService(repo)

	sessionID := uuid.New()
	key := models.ThresholdDedupeKey(sessionID, "", models.ThresholdErrorRate, time.Now())

	first := newTestAlert(sessionID)
	first.DedupeKey = &key
	require.NoError(t, svc.CreateAlert(context.Background(), first))

	second := newTestAlert(sessionID)
	second.DedupeKey = &key
	require.NoError(t, svc.CreateAlert(context.Background(), second))

	assert.Len(t, repo.alerts, 1)
}

func TestAlert_Resolve(t *testing.T) {
	repo := &mockAlertRepo{}
	svc := newTestAlertService(repo)

	alert := newTestAlert(uuid.New())
	require.NoError(t, svc.CreateAlert(context.Background(), alert))

	err := svc.ResolveAlert(context.Background(), alert.ID, "ops@machshop.example", "requeued failed batch")
	require.NoError(t, err)
	assert.True(t, repo.alerts[0].Resolved)
	require.NotNil(t, repo.alerts[0].ResolvedBy)
	assert.Equal(t, "ops@machshop.example", *repo.alerts[0].ResolvedBy)
}

func TestAlert_Resolve_AlreadyResolvedIsNoOp(t *testing.T) {
	repo := &mockAlertRepo{}
	svc := newTestAlertService(repo)

	alert := newTestAlert(uuid.New())
	require.NoError(t, svc.CreateAlert(context.Background(), alert))
	require.NoError(t, svc.ResolveAlert(context.Background(), alert.ID, "first@machshop.example", ""))

	err := svc.ResolveAlert(context.Background(), alert.ID, "second@machshop.example", "")
	require.NoError(t, err)
	// The original resolver is preserved.
	assert.Equal(t, "first@machshop.example", *repo.alerts[0].ResolvedBy)
}

func TestAlert_Resolve_NotFound(t *testing.T) {
	svc := newTestAlertService(&mockAlertRepo{})

	err := svc.ResolveAlert(context.Background(), uuid.New(), "ops@machshop.example", "")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestAlert_Resolve_MissingResolver(t *testing.T) {
	svc := newTestAlertService(&mockAlertRepo{})

	err := svc.ResolveAlert(context.Background(), uuid.New(), "", "")
	assert.True(t, apperrors.IsValidation(err))
}

func TestAlert_Assign(t *testing.T) {
	repo := &mockAlertRepo{}
	svc := newTestAlertService(repo)

	alert := newTestAlert(uuid.New())
	require.NoError(t, svc.CreateAlert(context.Background(), alert))

	require.NoError(t, svc.AssignAlert(context.Background(), alert.ID, "dba@machshop.example"))
	require.NotNil(t, repo.alerts[0].AssignedTo)
	assert.Equal(t, "dba@machshop.example", *repo.alerts[0].AssignedTo)
}

func TestAlert_Assign_MissingAssignee(t *testing.T) {
	svc := newTestAlertService(&mockAlertRepo{})

	err := svc.AssignAlert(context.Background(), uuid.New(), "")
	assert.True(t, apperrors.IsValidation(err))
}

func TestAlert_List_InvalidSeverityFilter(t *testing.T) {
	svc := newTestAlertService(&mockAlertRepo{})

	_, _, err := svc.ListAlerts(context.Background(), uuid.New(), models.AlertFilters{Severity: "SEVERE"})
	assert.True(t, apperrors.IsValidation(err))
}

func TestAlert_List_FiltersResolved(t *testing.T) {
	repo := &mockAlertRepo{}
	svc := newTestAlertService(repo)

	sessionID := uuid.New()
	open := newTestAlert(sessionID)
	require.NoError(t, svc.CreateAlert(context.Background(), open))
	closed := newTestAlert(sessionID)
	require.NoError(t, svc.CreateAlert(context.Background(), closed))
	require.NoError(t, svc.ResolveAlert(context.Background(), closed.ID, "ops@machshop.example", ""))

	resolved := false
	alerts, total, err := svc.ListAlerts(context.Background(), sessionID, models.AlertFilters{Resolved: &resolved})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, alerts, 1)
	assert.Equal(t, open.ID, alerts[0].ID)
}
