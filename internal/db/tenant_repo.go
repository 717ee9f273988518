package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"pawdesk/internal/types"
)

// tenantColumns is the canonical column list scanned by scanTenant. Keep the
// order in sync.
const tenantColumns = `id, name, contact_email, contact_phone, push_user_id,
       subscription_status, trial_end, trial_reminder_sent_at,
       created_at, updated_at, deleted_at`

// TenantRepository provides data access for the tenants table.
//
// Key invariants:
//   - TransitionStatus is a compare-and-set: the UPDATE carries the expected
//     current status in its WHERE clause, so a concurrent change makes the
//     write a detectable no-op instead of an overwrite.
//   - Soft-deleted tenants (deleted_at set) are invisible to every query.
type TenantRepository struct {
	db     DBTX
	logger *slog.Logger
}

// NewTenantRepository creates a new TenantRepository backed by the given
// database connection (pool or transaction).
func NewTenantRepository(db DBTX, logger *slog.Logger) *TenantRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantRepository{db: db, logger: logger}
}

// GetByID fetches one tenant. Returns not_found_tenant when absent or
// soft-deleted.
func (r *TenantRepository) GetByID(ctx context.Context, tenantID string) (*types.Tenant, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+tenantColumns+`
		 FROM tenants
		 WHERE id = $1 AND deleted_at IS NULL`,
		tenantID,
	)
	t, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundTenant, "tenant not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch tenant", err)
	}
	return t, nil
}

// ListByStatus returns up to limit tenants in the given subscription status,
// keyset-paginated by ID. Pass afterID = "" for the first page; pass the last
// ID of the previous page to continue. Results are ordered by ID ascending so
// pagination is stable under concurrent inserts.
func (r *TenantRepository) ListByStatus(ctx context.Context, status types.SubscriptionStatus, afterID string, limit int) ([]types.Tenant, error) {
	if !types.IsValidSubscriptionStatus(status) {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidStatus,
			"unrecognized subscription status "+string(status), nil)
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+tenantColumns+`
		 FROM tenants
		 WHERE subscription_status = $1
		   AND deleted_at IS NULL
		   AND id > $2
		 ORDER BY id ASC
		 LIMIT $3`,
		status,
		afterID,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list tenants", err)
	}
	defer rows.Close()

	var tenants []types.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan tenant", err)
		}
		tenants = append(tenants, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating tenants", err)
	}

	return tenants, nil
}

// TransitionStatus applies a compare-and-set status change. The row must
// still be in tr.From; otherwise the write affects zero rows and
// conflict_status_changed is returned so the caller can skip the tenant.
// Moving out of trial also clears trial_end.
func (r *TenantRepository) TransitionStatus(ctx context.Context, tenantID string, tr types.StatusTransition) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE tenants
		 SET subscription_status = $1,
		     trial_end = CASE WHEN $1 <> 'trial' THEN NULL ELSE trial_end END,
		     updated_at = $2
		 WHERE id = $3
		   AND subscription_status = $4
		   AND deleted_at IS NULL`,
		tr.To,
		tr.At,
		tenantID,
		tr.From,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to transition tenant status", err)
	}

	if tag.RowsAffected() == 0 {
		r.logger.Info("tenant status transition skipped (concurrent change)",
			slog.String("tenant_id", tenantID),
			slog.String("from", string(tr.From)),
			slog.String("to", string(tr.To)),
		)
		return types.NewAppError(types.ErrCodeConflictStatusChanged,
			"tenant status changed concurrently", nil)
	}

	return nil
}

// SetTrialReminderSentAt stamps the trial-reminder watermark. Called only
// after the reminder intent was accepted by the queue, so a publish failure
// leaves the watermark untouched and the reminder is retried next run.
func (r *TenantRepository) SetTrialReminderSentAt(ctx context.Context, tenantID string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE tenants
		 SET trial_reminder_sent_at = $1, updated_at = $1
		 WHERE id = $2 AND deleted_at IS NULL`,
		at,
		tenantID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to stamp trial reminder watermark", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundTenant, "tenant not found", nil)
	}
	return nil
}

// scanTenant scans one tenant row in tenantColumns order.
func scanTenant(row pgx.Row) (*types.Tenant, error) {
	var t types.Tenant
	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.ContactEmail,
		&t.ContactPhone,
		&t.PushUserID,
		&t.Status,
		&t.TrialEnd,
		&t.TrialReminderSentAt,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
