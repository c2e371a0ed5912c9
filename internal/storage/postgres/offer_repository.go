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

const offerColumns = `id, merchant_id, title, description, original_price_cents, discount_kind,
discount_value, starts_at, ends_at, max_redemptions, public_code, image_url, reposted_from, created_at`

type OfferRepository struct {
	pool *pgxpool.Pool
}

func NewOfferRepository(pool *pgxpool.Pool) *OfferRepository {
	return &OfferRepository{pool: pool}
}

func (r *OfferRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *OfferRepository) CreateOffer(ctx context.Context, o domain.Offer) error {
	const stmt = `
INSERT INTO offers (id, merchant_id, title, description, original_price_cents, discount_kind,
	discount_value, starts_at, ends_at, max_redemptions, public_code, image_url, reposted_from, created_at)
VALUES (@id, @merchant_id, @title, @description, @original_price_cents, @discount_kind,
	@discount_value, @starts_at, @ends_at, @max_redemptions, @public_code, @image_url, @reposted_from, @created_at)`

	_, err := r.exec(ctx, stmt, pgx.NamedArgs{
		"id":                   o.ID,
		"merchant_id":          o.MerchantID,
		"title":                o.Title,
		"description":          o.Description,
		"original_price_cents": o.OriginalPriceCents,
		"discount_kind":        string(o.DiscountKind),
		"discount_value":       o.DiscountValue,
		"starts_at":            o.StartsAt,
		"ends_at":              o.EndsAt,
		"max_redemptions":      o.MaxRedemptions,
		"public_code":          o.PublicCode,
		"image_url":            o.ImageURL,
		"reposted_from":        o.RepostedFrom,
		"created_at":           o.CreatedAt,
	})
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create offer: %w", err)
	}
	return nil
}

func (r *OfferRepository) UpdateOffer(ctx context.Context, o domain.Offer) error {
	const stmt = `
UPDATE offers
SET title = @title,
	description = @description,
	original_price_cents = @original_price_cents,
	discount_kind = @discount_kind,
	discount_value = @discount_value,
	starts_at = @starts_at,
	ends_at = @ends_at,
	max_redemptions = @max_redemptions,
	public_code = @public_code,
	image_url = @image_url
WHERE id = @id`

	tag, err := r.exec(ctx, stmt, pgx.NamedArgs{
		"id":                   o.ID,
		"title":                o.Title,
		"description":          o.Description,
		"original_price_cents": o.OriginalPriceCents,
		"discount_kind":        string(o.DiscountKind),
		"discount_value":       o.DiscountValue,
		"starts_at":            o.StartsAt,
		"ends_at":              o.EndsAt,
		"max_redemptions":      o.MaxRedemptions,
		"public_code":          o.PublicCode,
		"image_url":            o.ImageURL,
	})
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("update offer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOfferNotFound
	}
	return nil
}

func (r *OfferRepository) GetOffer(ctx context.Context, id string) (domain.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = $1`
	o, err := scanOffer(r.queryRow(ctx, query, id))
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

func (r *OfferRepository) ListOffersByMerchant(ctx context.Context, merchantID string) ([]domain.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE merchant_id = $1 ORDER BY created_at DESC`
	rows, err := r.query(ctx, query, merchantID)
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	defer rows.Close()

	var out []domain.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("list offers: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	return out, nil
}

func scanOffer(row pgx.Row) (domain.Offer, error) {
	var o domain.Offer
	var kind string
	var starts, ends, created time.Time
	err := row.Scan(
		&o.ID,
		&o.MerchantID,
		&o.Title,
		&o.Description,
		&o.OriginalPriceCents,
		&kind,
		&o.DiscountValue,
		&starts,
		&ends,
		&o.MaxRedemptions,
		&o.PublicCode,
		&o.ImageURL,
		&o.RepostedFrom,
		&created,
	)
	if err != nil {
		return domain.Offer{}, err
	}
	o.DiscountKind = domain.DiscountKind(kind)
	o.StartsAt = starts.UTC()
	o.EndsAt = ends.UTC()
	o.CreatedAt = created.UTC()
	return o, nil
}

func (r *OfferRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *OfferRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func (r *OfferRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}
