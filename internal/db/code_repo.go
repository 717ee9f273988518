package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"pawdesk/internal/types"
)

// AccessCodeRepository provides data access for the access_codes table.
// Codes are stored uppercase; lookups are case-insensitive via UPPER().
type AccessCodeRepository struct {
	db DBTX
}

// NewAccessCodeRepository creates a new AccessCodeRepository backed by the
// given database connection (pool or transaction).
func NewAccessCodeRepository(db DBTX) *AccessCodeRepository {
	return &AccessCodeRepository{db: db}
}

// ListActiveCodes returns the set of codes currently in circulation (not
// expired), uppercased, for collision checking during generation.
func (r *AccessCodeRepository) ListActiveCodes(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.Query(ctx,
		`SELECT UPPER(code) FROM access_codes WHERE status <> $1`,
		types.CodeStatusExpired,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list active codes", err)
	}
	defer rows.Close()

	codes := make(map[string]struct{})
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan code", err)
		}
		codes[code] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating codes", err)
	}

	return codes, nil
}

// Insert stores a freshly generated code as available.
func (r *AccessCodeRepository) Insert(ctx context.Context, code types.AccessCode) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO access_codes (code, owner_id, status, created_at)
		 VALUES ($1, $2, $3, $4)`,
		code.Code,
		code.OwnerID,
		code.Status,
		code.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert access code", err)
	}
	return nil
}

// MarkUsed redeems a code with a compare-and-set on status. A code that does
// not exist yields not_found_access_code; a code that exists but is no longer
// available yields conflict_code_used.
func (r *AccessCodeRepository) MarkUsed(ctx context.Context, code string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE access_codes
		 SET status = $1, used_at = $2
		 WHERE UPPER(code) = UPPER($3) AND status = $4`,
		types.CodeStatusUsed,
		at,
		code,
		types.CodeStatusAvailable,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark code used", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Distinguish "never existed" from "already redeemed or expired".
	var status types.AccessCodeStatus
	err = r.db.QueryRow(ctx,
		`SELECT status FROM access_codes WHERE UPPER(code) = UPPER($1)`,
		code,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.NewAppError(types.ErrCodeNotFoundAccessCode, "access code not found", nil)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to check code status", err)
	}
	return types.NewAppErrorWithDetails(types.ErrCodeConflictCodeUsed,
		"access code is no longer available", nil,
		map[string]any{"status": string(status)})
}
