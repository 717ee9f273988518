package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pawdesk/internal/types"
)

func TestJobLockRepository_Acquire_NewLock(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobLockRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	acquired, err := repo.Acquire(context.Background(), "trial_check:2026-09-01T06", "worker-1", 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)
	db.AssertExpectations(t)
}

func TestJobLockRepository_Acquire_HeldByAnotherWorker(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobLockRepository(db)

	// Active lock exists: the ON CONFLICT WHERE clause blocks the update.
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 0"), nil)

	acquired, err := repo.Acquire(context.Background(), "dunning:2026-09-01T06", "worker-2", 10*time.Minute)
	require.NoError(t, err)
	assert.False(t, acquired)
}

func TestJobLockRepository_Acquire_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobLockRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	_, err := repo.Acquire(context.Background(), "trial_check:2026-09-01T06", "worker-1", time.Minute)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestJobHistoryRepository_StartAndFinish(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobHistoryRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFn: func(dest ...any) error {
			*dest[0].(*int64) = 42
			return nil
		}})

	id, err := repo.Start(context.Background(), types.TaskTrialCheck)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	require.NoError(t, repo.Finish(context.Background(), id, "success", 17, nil))
	db.AssertExpectations(t)
}

func TestJobHistoryRepository_Finish_MissingEntry(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobHistoryRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.Finish(context.Background(), 99, "failed", 0, errors.New("boom"))
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalUnexpected, appErr.Code)
}
