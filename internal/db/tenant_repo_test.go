package db

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pawdesk/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTenantRepository_GetByID_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTenantRepository(db, discardLogger())

	now := time.Now().UTC()
	trialEnd := now.Add(48 * time.Hour)
	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*string) = "ten_1"
			*dest[1].(*string) = "Patas Felizes"
			*dest[2].(*string) = "contato@patas.example"
			*dest[3].(*string) = "5511999990000"
			*dest[4].(*string) = "push-u-1"
			*dest[5].(*types.SubscriptionStatus) = types.SubStatusTrial
			*dest[6].(**time.Time) = &trialEnd
			*dest[7].(**time.Time) = nil
			*dest[8].(*time.Time) = now
			*dest[9].(*time.Time) = now
			*dest[10].(**time.Time) = nil
			return nil
		},
	}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	tenant, err := repo.GetByID(context.Background(), "ten_1")
	require.NoError(t, err)
	assert.Equal(t, "ten_1", tenant.ID)
	assert.Equal(t, types.SubStatusTrial, tenant.Status)
	require.NotNil(t, tenant.TrialEnd)
	assert.Equal(t, trialEnd, *tenant.TrialEnd)
	db.AssertExpectations(t)
}

func TestTenantRepository_GetByID_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTenantRepository(db, discardLogger())

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetByID(context.Background(), "ten_missing")
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundTenant, appErr.Code)
}

func TestTenantRepository_ListByStatus_PassesKeysetArgs(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTenantRepository(db, discardLogger())

	now := time.Now().UTC()
	rows := newMockRows([][]any{
		{"ten_2", "Bicho Chique", "a@b.example", "5511988880000", "",
			types.SubStatusPastDue, nil, nil, now, now, nil},
	})

	db.On("Query", mock.Anything, mock.AnythingOfType("string"),
		[]any{types.SubStatusPastDue, "ten_1", 50}).
		Return(rows, nil)

	tenants, err := repo.ListByStatus(context.Background(), types.SubStatusPastDue, "ten_1", 50)
	require.NoError(t, err)
	require.Len(t, tenants, 1)
	assert.Equal(t, "ten_2", tenants[0].ID)
	assert.Nil(t, tenants[0].TrialEnd)
	db.AssertExpectations(t)
}

func TestTenantRepository_ListByStatus_EmptyPage(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTenantRepository(db, discardLogger())

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(newMockRows(nil), nil)

	tenants, err := repo.ListByStatus(context.Background(), types.SubStatusTrial, "", 200)
	require.NoError(t, err)
	assert.Empty(t, tenants)
}

func TestTenantRepository_ListByStatus_RejectsUnknownStatus(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTenantRepository(db, discardLogger())

	_, err := repo.ListByStatus(context.Background(), types.SubscriptionStatus("frozen"), "", 50)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationInvalidStatus, appErr.Code)
	db.AssertNotCalled(t, "Query")
}

func TestTenantRepository_TransitionStatus_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTenantRepository(db, discardLogger())

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.TransitionStatus(context.Background(), "ten_1", types.StatusTransition{
		From: types.SubStatusTrial,
		To:   types.SubStatusExpired,
		At:   time.Now().UTC(),
	})
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestTenantRepository_TransitionStatus_ConcurrentChange(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTenantRepository(db, discardLogger())

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.TransitionStatus(context.Background(), "ten_1", types.StatusTransition{
		From: types.SubStatusTrial,
		To:   types.SubStatusExpired,
		At:   time.Now().UTC(),
	})
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeConflictStatusChanged, appErr.Code)
}

func TestTenantRepository_TransitionStatus_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTenantRepository(db, discardLogger())

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.TransitionStatus(context.Background(), "ten_1", types.StatusTransition{
		From: types.SubStatusPastDue,
		To:   types.SubStatusBlocked,
		At:   time.Now().UTC(),
	})
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestTenantRepository_SetTrialReminderSentAt(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTenantRepository(db, discardLogger())

	at := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{at, "ten_1"}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	require.NoError(t, repo.SetTrialReminderSentAt(context.Background(), "ten_1", at))
	db.AssertExpectations(t)
}

func TestTenantRepository_SetTrialReminderSentAt_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTenantRepository(db, discardLogger())

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.SetTrialReminderSentAt(context.Background(), "ten_gone", time.Now().UTC())
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundTenant, appErr.Code)
}
