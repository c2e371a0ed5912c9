package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealdrop/dealdrop/internal/domain"
)

const redemptionColumns = `id, offer_id, short_code, device_hash, active_key, expires_at, redeemed_at, created_at`

type RedemptionRepository struct {
	pool *pgxpool.Pool
}

func NewRedemptionRepository(pool *pgxpool.Pool) *RedemptionRepository {
	return &RedemptionRepository{pool: pool}
}

func (r *RedemptionRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *RedemptionRepository) ReleaseExpiredActiveKey(ctx context.Context, activeKey string, now time.Time) error {
	const stmt = `
UPDATE redemptions
SET active_key = NULL
WHERE active_key = $1 AND redeemed_at IS NULL AND expires_at IS NOT NULL AND expires_at <= $2`

	if _, err := r.exec(ctx, stmt, activeKey, now); err != nil {
		return fmt.Errorf("release expired active key: %w", err)
	}
	return nil
}

func (r *RedemptionRepository) FindLiveClaim(ctx context.Context, activeKey string, now time.Time) (*domain.Redemption, error) {
	query := `
SELECT ` + redemptionColumns + `
FROM redemptions
WHERE active_key = $1 AND redeemed_at IS NULL AND (expires_at IS NULL OR expires_at > $2)`

	red, err := scanRedemption(r.queryRow(ctx, query, activeKey, now))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find live claim: %w", err)
	}
	return &red, nil
}

func (r *RedemptionRepository) LastClaimAt(ctx context.Context, offerID, deviceHash string) (*time.Time, error) {
	const query = `SELECT MAX(created_at) FROM redemptions WHERE offer_id = $1 AND device_hash = $2`

	var last *time.Time
	if err := r.queryRow(ctx, query, offerID, deviceHash).Scan(&last); err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("last claim at: %w", err)
	}
	if last != nil {
		utc := last.UTC()
		last = &utc
	}
	return last, nil
}

func (r *RedemptionRepository) GetOffer(ctx context.Context, offerID string) (domain.Offer, error) {
	return r.getOffer(ctx, offerID, false)
}

func (r *RedemptionRepository) GetOfferForUpdate(ctx context.Context, offerID string) (domain.Offer, error) {
	return r.getOffer(ctx, offerID, true)
}

func (r *RedemptionRepository) getOffer(ctx context.Context, offerID string, forUpdate bool) (domain.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	o, err := scanOffer(r.queryRow(ctx, query, offerID))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Offer{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Offer{}, domain.ErrOfferNotFound
		}
		return domain.Offer{}, fmt.Errorf("get offer: %w", err)
	}
	return o, nil
}

func (r *RedemptionRepository) CountRedeemed(ctx context.Context, offerID string) (int, error) {
	const query = `SELECT COUNT(*) FROM redemptions WHERE offer_id = $1 AND redeemed_at IS NOT NULL`

	var total int
	if err := r.queryRow(ctx, query, offerID).Scan(&total); err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		return 0, fmt.Errorf("count redeemed: %w", err)
	}
	return total, nil
}

func (r *RedemptionRepository) CreateRedemption(ctx context.Context, red domain.Redemption) error {
	const stmt = `
INSERT INTO redemptions (id, offer_id, short_code, device_hash, active_key, expires_at, redeemed_at, created_at)
VALUES (@id, @offer_id, @short_code, @device_hash, @active_key, @expires_at, @redeemed_at, @created_at)`

	_, err := r.exec(ctx, stmt, pgx.NamedArgs{
		"id":          red.ID,
		"offer_id":    red.OfferID,
		"short_code":  red.ShortCode,
		"device_hash": red.DeviceHash,
		"active_key":  red.ActiveKey,
		"expires_at":  red.ExpiresAt,
		"redeemed_at": red.RedeemedAt,
		"created_at":  red.CreatedAt,
	})
	if err != nil {
		// A duplicate active key (concurrent claim from the same device) or
		// a code collision both surface as unique violations; either way the
		// claim transaction is safe to re-run.
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", domain.ErrTxConflict, err)
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create redemption: %w", err)
	}
	return nil
}

func (r *RedemptionRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM redemptions WHERE short_code = $1)`

	var exists bool
	if err := r.queryRow(ctx, query, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("code exists: %w", err)
	}
	return exists, nil
}

func (r *RedemptionRepository) FindRedemptionByCode(ctx context.Context, code string) (*domain.Redemption, error) {
	query := `SELECT ` + redemptionColumns + ` FROM redemptions WHERE short_code = $1`

	red, err := scanRedemption(r.queryRow(ctx, query, code))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find redemption by code: %w", err)
	}
	return &red, nil
}

// RedeemByCode is the single conditional write of the confirmation engine.
// Every guard lives in the WHERE clause so that at most one of N concurrent
// confirmations can flip redeemed_at; the row lock taken by the winning
// UPDATE is the arbiter of the race.
func (r *RedemptionRepository) RedeemByCode(ctx context.Context, code, merchantID string, now time.Time) (domain.Redemption, bool, error) {
	const stmt = `
UPDATE redemptions r
SET redeemed_at = $2, active_key = NULL
FROM offers o
WHERE o.id = r.offer_id
  AND r.short_code = $1
  AND r.redeemed_at IS NULL
  AND (r.expires_at IS NULL OR r.expires_at > $2)
  AND o.merchant_id = $3
  AND (o.max_redemptions IS NULL OR o.max_redemptions <= 0
       OR (SELECT COUNT(*) FROM redemptions x
           WHERE x.offer_id = o.id AND x.redeemed_at IS NOT NULL) < o.max_redemptions)
RETURNING r.id, r.offer_id, r.short_code, r.device_hash, r.active_key, r.expires_at, r.redeemed_at, r.created_at`

	red, err := scanRedemption(r.queryRow(ctx, stmt, code, now, merchantID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Redemption{}, false, nil
		}
		if isInvalidUUID(err) {
			return domain.Redemption{}, false, domain.ErrInvalidID
		}
		return domain.Redemption{}, false, fmt.Errorf("redeem by code: %w", err)
	}
	return red, true, nil
}

func (r *RedemptionRepository) GetOffers(ctx context.Context, offerIDs []string) ([]domain.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = ANY($1)`
	rows, err := r.query(ctx, query, offerIDs)
	if err != nil {
		return nil, fmt.Errorf("get offers: %w", err)
	}
	defer rows.Close()

	var out []domain.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("get offers: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get offers: %w", err)
	}
	return out, nil
}

func (r *RedemptionRepository) CountRedeemedByOffers(ctx context.Context, offerIDs []string) (map[string]int, error) {
	const query = `
SELECT offer_id, COUNT(*)
FROM redemptions
WHERE offer_id = ANY($1) AND redeemed_at IS NOT NULL
GROUP BY offer_id`

	rows, err := r.query(ctx, query, offerIDs)
	if err != nil {
		return nil, fmt.Errorf("count redeemed by offers: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int, len(offerIDs))
	for rows.Next() {
		var id string
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("count redeemed by offers: %w", err)
		}
		out[id] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count redeemed by offers: %w", err)
	}
	return out, nil
}

func scanRedemption(row pgx.Row) (domain.Redemption, error) {
	var red domain.Redemption
	var created time.Time
	err := row.Scan(
		&red.ID,
		&red.OfferID,
		&red.ShortCode,
		&red.DeviceHash,
		&red.ActiveKey,
		&red.ExpiresAt,
		&red.RedeemedAt,
		&created,
	)
	if err != nil {
		return domain.Redemption{}, err
	}
	red.CreatedAt = created.UTC()
	if red.ExpiresAt != nil {
		utc := red.ExpiresAt.UTC()
		red.ExpiresAt = &utc
	}
	if red.RedeemedAt != nil {
		utc := red.RedeemedAt.UTC()
		red.RedeemedAt = &utc
	}
	return red, nil
}

func (r *RedemptionRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *RedemptionRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func (r *RedemptionRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}
