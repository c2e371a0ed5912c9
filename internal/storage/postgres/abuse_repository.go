package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealdrop/dealdrop/internal/domain"
)

type AbuseRepository struct {
	pool *pgxpool.Pool
}

func NewAbuseRepository(pool *pgxpool.Pool) *AbuseRepository {
	return &AbuseRepository{pool: pool}
}

// CreateAbuseEntry appends one audit row. Entries are never updated or
// deleted.
func (r *AbuseRepository) CreateAbuseEntry(ctx context.Context, e domain.AbuseLogEntry) error {
	const stmt = `
INSERT INTO abuse_log (id, offer_id, device_hash, reason, retry_after_seconds, user_agent, created_at)
VALUES (@id, @offer_id, @device_hash, @reason, @retry_after_seconds, @user_agent, @created_at)`

	_, err := r.pool.Exec(ctx, stmt, pgx.NamedArgs{
		"id":                  e.ID,
		"offer_id":            e.OfferID,
		"device_hash":         e.DeviceHash,
		"reason":              e.Reason,
		"retry_after_seconds": e.RetryAfterSeconds,
		"user_agent":          e.UserAgent,
		"created_at":          e.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("create abuse entry: %w", err)
	}
	return nil
}
