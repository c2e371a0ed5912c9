package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dealdrop/dealdrop/internal/domain"
	"github.com/dealdrop/dealdrop/internal/testutil"
)

func TestOfferRepository_RoundTrip(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	merchantID := testutil.InsertMerchant(t, ctx, pool, "Cafe Uno")

	repo := NewOfferRepository(pool)

	price := int64(450)
	capacity := 50
	publicCode := "ESPRESSO"
	offer := domain.Offer{
		ID:                 uuid.NewString(),
		MerchantID:         merchantID,
		Title:              "Half-price espresso",
		Description:        "Every day until noon",
		OriginalPriceCents: &price,
		DiscountKind:       domain.DiscountPercent,
		DiscountValue:      50,
		StartsAt:           now,
		EndsAt:             now.Add(24 * time.Hour),
		MaxRedemptions:     &capacity,
		PublicCode:         &publicCode,
		CreatedAt:          now,
	}

	if err := repo.CreateOffer(ctx, offer); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.GetOffer(ctx, offer.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != offer.Title || got.DiscountValue != 50 || got.DiscountKind != domain.DiscountPercent {
		t.Fatalf("unexpected offer: %+v", got)
	}
	if got.MaxRedemptions == nil || *got.MaxRedemptions != capacity {
		t.Fatalf("expected capacity %d, got %v", capacity, got.MaxRedemptions)
	}
	if got.OriginalPriceCents == nil || *got.OriginalPriceCents != price {
		t.Fatalf("expected price %d, got %v", price, got.OriginalPriceCents)
	}
	if !got.StartsAt.Equal(offer.StartsAt) || !got.EndsAt.Equal(offer.EndsAt) {
		t.Fatalf("window mismatch: %+v", got)
	}

	got.Title = "Free espresso"
	got.DiscountValue = 100
	if err := repo.UpdateOffer(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	updated, err := repo.GetOffer(ctx, offer.ID)
	if err != nil || updated.Title != "Free espresso" || updated.DiscountValue != 100 {
		t.Fatalf("update not persisted: %+v err=%v", updated, err)
	}

	list, err := repo.ListOffersByMerchant(ctx, merchantID)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one listed offer, got %d err=%v", len(list), err)
	}
}

func TestOfferRepository_NotFoundAndInvalidID(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	repo := NewOfferRepository(pool)

	if _, err := repo.GetOffer(ctx, uuid.NewString()); !errors.Is(err, domain.ErrOfferNotFound) {
		t.Fatalf("expected ErrOfferNotFound, got %v", err)
	}
	if _, err := repo.GetOffer(ctx, "not-a-uuid"); !errors.Is(err, domain.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}

	now := time.Now().UTC()
	missing := domain.Offer{
		ID:           uuid.NewString(),
		MerchantID:   uuid.NewString(),
		Title:        "Ghost",
		DiscountKind: domain.DiscountNone,
		StartsAt:     now,
		EndsAt:       now.Add(time.Hour),
		CreatedAt:    now,
	}
	if err := repo.UpdateOffer(ctx, missing); !errors.Is(err, domain.ErrOfferNotFound) {
		t.Fatalf("expected ErrOfferNotFound on update, got %v", err)
	}
}

func TestAbuseRepository_CreateAbuseEntry(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	now := time.Now().UTC()
	merchantID := testutil.InsertMerchant(t, ctx, pool, "Cafe Uno")
	offerID := testutil.InsertOffer(t, ctx, pool, merchantID, nil, now.Add(-time.Hour), now.Add(time.Hour))

	repo := NewAbuseRepository(pool)
	retry := 20
	if err := repo.CreateAbuseEntry(ctx, domain.AbuseLogEntry{
		ID:                uuid.NewString(),
		OfferID:           &offerID,
		DeviceHash:        domain.HashFingerprint("device-a"),
		Reason:            "cooldown",
		RetryAfterSeconds: &retry,
		UserAgent:         "scanner/1.0",
		CreatedAt:         now,
	}); err != nil {
		t.Fatalf("create abuse entry: %v", err)
	}

	var count int
	if err := pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM abuse_log WHERE reason = 'cooldown' AND retry_after_seconds = 20`,
	).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one abuse row, got %d", count)
	}
}
