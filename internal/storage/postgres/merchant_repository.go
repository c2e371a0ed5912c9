package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealdrop/dealdrop/internal/domain"
)

type MerchantRepository struct {
	pool *pgxpool.Pool
}

func NewMerchantRepository(pool *pgxpool.Pool) *MerchantRepository {
	return &MerchantRepository{pool: pool}
}

// UpsertMerchant creates or renames a merchant row. Run at startup so the
// merchants table stays in step with the configured token table; without it
// no offer insert could ever satisfy the merchant foreign key.
func (r *MerchantRepository) UpsertMerchant(ctx context.Context, m domain.Merchant) error {
	const stmt = `
INSERT INTO merchants (id, name)
VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`

	if _, err := r.pool.Exec(ctx, stmt, m.ID, m.Name); err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("upsert merchant: %w", err)
	}
	return nil
}
