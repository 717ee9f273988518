package db

import (
	"context"

	"pawdesk/internal/types"
)

// DeliveryLogRepository provides access to the append-only delivery_log
// table. It implements types.DeliveryLog.
type DeliveryLogRepository struct {
	db DBTX
}

// NewDeliveryLogRepository creates a new DeliveryLogRepository backed by the
// given database connection (pool or transaction).
func NewDeliveryLogRepository(db DBTX) *DeliveryLogRepository {
	return &DeliveryLogRepository{db: db}
}

// Append inserts one delivery record. The table is append-only; there are no
// update or delete paths.
func (r *DeliveryLogRepository) Append(ctx context.Context, rec types.DeliveryRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO delivery_log
		 (id, tenant_id, template_key, channel, success, simulated,
		  provider_message_id, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID,
		rec.TenantID,
		rec.TemplateKey,
		rec.Outcome.Channel,
		rec.Outcome.Success,
		rec.Outcome.Simulated,
		rec.Outcome.ProviderMessageID,
		rec.Outcome.Error,
		rec.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to append delivery record", err)
	}
	return nil
}

// ListRecent returns the newest delivery records, most recent first, capped
// at limit. Used by the ops export endpoint.
func (r *DeliveryLogRepository) ListRecent(ctx context.Context, limit int) ([]types.DeliveryRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, tenant_id, template_key, channel, success, simulated,
		        provider_message_id, error, created_at
		 FROM delivery_log
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list delivery records", err)
	}
	defer rows.Close()

	var records []types.DeliveryRecord
	for rows.Next() {
		var rec types.DeliveryRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.TenantID,
			&rec.TemplateKey,
			&rec.Outcome.Channel,
			&rec.Outcome.Success,
			&rec.Outcome.Simulated,
			&rec.Outcome.ProviderMessageID,
			&rec.Outcome.Error,
			&rec.CreatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan delivery record", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating delivery records", err)
	}

	return records, nil
}
