package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dealdrop/dealdrop/internal/clock"
	"github.com/dealdrop/dealdrop/internal/domain"
)

func TestClaimService_Claim(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ttl := 15 * time.Minute
	cooldown := 30 * time.Second

	capacityOne := 1
	offer := domain.Offer{
		ID:         "offer-1",
		MerchantID: "merchant-1",
		Title:      "Half-price espresso",
		StartsAt:   now.Add(-time.Hour),
		EndsAt:     now.Add(time.Hour),
	}

	makeSvc := func(offers []domain.Offer, redemptions []domain.Redemption) (*ClaimService, *fakeClaimRepo, *fakeAbuseSink) {
		repo := newFakeClaimRepo(offers, redemptions)
		sink := &fakeAbuseSink{}
		svc := NewClaimService(repo, clock.NewFixed(now), sink,
			WithClaimTTL(ttl),
			WithCooldown(cooldown),
			WithTxRetry(3, 0),
		)
		return svc, repo, sink
	}

	t.Run("creates claim with code and ttl", func(t *testing.T) {
		svc, repo, _ := makeSvc([]domain.Offer{offer}, nil)

		res, err := svc.Claim(context.Background(), ClaimInput{OfferID: "offer-1", Fingerprint: "device-a"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Reused {
			t.Fatalf("expected a fresh claim")
		}
		if len(res.Redemption.ShortCode) != DefaultCodeLength {
			t.Fatalf("expected %d-char code, got %q", DefaultCodeLength, res.Redemption.ShortCode)
		}
		if res.Redemption.ExpiresAt == nil || !res.Redemption.ExpiresAt.Equal(now.Add(ttl)) {
			t.Fatalf("expected expiry %v, got %v", now.Add(ttl), res.Redemption.ExpiresAt)
		}
		if res.Redemption.ActiveKey == nil {
			t.Fatalf("expected active key to be set")
		}
		if res.Redemption.DeviceHash == "device-a" {
			t.Fatalf("raw fingerprint must never be stored")
		}
		if len(repo.redemptions) != 1 {
			t.Fatalf("expected 1 redemption, got %d", len(repo.redemptions))
		}
	})

	t.Run("reissues live claim unchanged", func(t *testing.T) {
		hash := domain.HashFingerprint("device-a")
		key := domain.ActiveKey("offer-1", hash)
		existing := domain.Redemption{
			ID:         "red-1",
			OfferID:    "offer-1",
			ShortCode:  "X7QK2P",
			DeviceHash: hash,
			ActiveKey:  &key,
			ExpiresAt:  ptrTime(now.Add(10 * time.Minute)),
			CreatedAt:  now.Add(-5 * time.Minute),
		}
		svc, repo, _ := makeSvc([]domain.Offer{offer}, []domain.Redemption{existing})

		res, err := svc.Claim(context.Background(), ClaimInput{OfferID: "offer-1", Fingerprint: "device-a"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !res.Reused {
			t.Fatalf("expected reuse of live claim")
		}
		if res.Redemption.ShortCode != "X7QK2P" {
			t.Fatalf("expected identical short code, got %q", res.Redemption.ShortCode)
		}
		if len(repo.redemptions) != 1 {
			t.Fatalf("expected no new redemption, got %d", len(repo.redemptions))
		}
	})

	t.Run("cooldown carries retry hint", func(t *testing.T) {
		hash := domain.HashFingerprint("device-a")
		redeemedAt := now.Add(-8 * time.Second)
		recent := domain.Redemption{
			ID:         "red-1",
			OfferID:    "offer-1",
			ShortCode:  "USED01",
			DeviceHash: hash,
			ExpiresAt:  ptrTime(now.Add(14 * time.Minute)),
			RedeemedAt: &redeemedAt,
			CreatedAt:  now.Add(-10 * time.Second),
		}
		svc, _, sink := makeSvc([]domain.Offer{offer}, []domain.Redemption{recent})

		_, err := svc.Claim(context.Background(), ClaimInput{OfferID: "offer-1", Fingerprint: "device-a"})
		var cooldownErr *domain.CooldownError
		if !errors.As(err, &cooldownErr) {
			t.Fatalf("expected CooldownError, got %v", err)
		}
		if got := cooldownErr.RetryAfter; got != 20*time.Second {
			t.Fatalf("expected 20s retry, got %v", got)
		}
		if len(sink.entries) != 1 || sink.entries[0].Reason != "cooldown" {
			t.Fatalf("expected one cooldown abuse entry, got %+v", sink.entries)
		}
		if sink.entries[0].RetryAfterSeconds == nil || *sink.entries[0].RetryAfterSeconds != 20 {
			t.Fatalf("expected retry hint on abuse entry")
		}
	})

	t.Run("sold out when redeemed count reaches capacity", func(t *testing.T) {
		limited := offer
		limited.MaxRedemptions = &capacityOne
		burned := now.Add(-30 * time.Minute)
		svc, _, sink := makeSvc([]domain.Offer{limited}, []domain.Redemption{{
			ID:         "red-1",
			OfferID:    "offer-1",
			ShortCode:  "GONE01",
			DeviceHash: domain.HashFingerprint("device-b"),
			RedeemedAt: &burned,
			CreatedAt:  now.Add(-40 * time.Minute),
		}})

		_, err := svc.Claim(context.Background(), ClaimInput{OfferID: "offer-1", Fingerprint: "device-a"})
		if !errors.Is(err, domain.ErrSoldOut) {
			t.Fatalf("expected ErrSoldOut, got %v", err)
		}
		if len(sink.entries) != 1 || sink.entries[0].Reason != "sold_out" {
			t.Fatalf("expected sold_out abuse entry, got %+v", sink.entries)
		}
	})

	t.Run("unredeemed claims do not consume capacity", func(t *testing.T) {
		limited := offer
		limited.MaxRedemptions = &capacityOne
		svc, _, _ := makeSvc([]domain.Offer{limited}, []domain.Redemption{{
			ID:         "red-1",
			OfferID:    "offer-1",
			ShortCode:  "LIVE01",
			DeviceHash: domain.HashFingerprint("device-b"),
			ActiveKey:  ptrString(domain.ActiveKey("offer-1", domain.HashFingerprint("device-b"))),
			ExpiresAt:  ptrTime(now.Add(10 * time.Minute)),
			CreatedAt:  now.Add(-time.Minute),
		}})

		res, err := svc.Claim(context.Background(), ClaimInput{OfferID: "offer-1", Fingerprint: "device-a"})
		if err != nil {
			t.Fatalf("expected claim despite outstanding claim from other device, got %v", err)
		}
		if res.Redemption.ShortCode == "LIVE01" {
			t.Fatalf("expected a distinct code per device")
		}
	})

	t.Run("stale active key is released and device claims again", func(t *testing.T) {
		hash := domain.HashFingerprint("device-a")
		key := domain.ActiveKey("offer-1", hash)
		stale := domain.Redemption{
			ID:         "red-1",
			OfferID:    "offer-1",
			ShortCode:  "OLD001",
			DeviceHash: hash,
			ActiveKey:  &key,
			ExpiresAt:  ptrTime(now.Add(-time.Minute)),
			CreatedAt:  now.Add(-16 * time.Minute),
		}
		svc, repo, _ := makeSvc([]domain.Offer{offer}, []domain.Redemption{stale})

		res, err := svc.Claim(context.Background(), ClaimInput{OfferID: "offer-1", Fingerprint: "device-a"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Reused {
			t.Fatalf("expected a fresh claim, not reuse of the expired one")
		}
		if repo.redemptions[0].ActiveKey != nil {
			t.Fatalf("expected stale active key cleared")
		}
	})

	t.Run("offer window is enforced", func(t *testing.T) {
		early := offer
		early.ID = "offer-early"
		early.StartsAt = now.Add(time.Hour)
		early.EndsAt = now.Add(2 * time.Hour)
		ended := offer
		ended.ID = "offer-ended"
		ended.StartsAt = now.Add(-2 * time.Hour)
		ended.EndsAt = now.Add(-time.Hour)
		svc, _, _ := makeSvc([]domain.Offer{early, ended}, nil)

		if _, err := svc.Claim(context.Background(), ClaimInput{OfferID: "offer-early", Fingerprint: "d"}); !errors.Is(err, domain.ErrOfferNotLive) {
			t.Fatalf("expected ErrOfferNotLive, got %v", err)
		}
		if _, err := svc.Claim(context.Background(), ClaimInput{OfferID: "offer-ended", Fingerprint: "d"}); !errors.Is(err, domain.ErrOfferEnded) {
			t.Fatalf("expected ErrOfferEnded, got %v", err)
		}
	})

	t.Run("retries transaction conflicts", func(t *testing.T) {
		svc, repo, _ := makeSvc([]domain.Offer{offer}, nil)
		repo.conflictsLeft = 2

		res, err := svc.Claim(context.Background(), ClaimInput{OfferID: "offer-1", Fingerprint: "device-a"})
		if err != nil {
			t.Fatalf("expected success after retries, got %v", err)
		}
		if res.Redemption.ID == "" {
			t.Fatalf("expected redemption to be created")
		}
	})

	t.Run("gives up after retry budget", func(t *testing.T) {
		svc, repo, _ := makeSvc([]domain.Offer{offer}, nil)
		repo.conflictsLeft = 10

		_, err := svc.Claim(context.Background(), ClaimInput{OfferID: "offer-1", Fingerprint: "device-a"})
		if !errors.Is(err, domain.ErrTxConflict) {
			t.Fatalf("expected ErrTxConflict after exhausted retries, got %v", err)
		}
	})

	t.Run("rejects missing input", func(t *testing.T) {
		svc, _, _ := makeSvc([]domain.Offer{offer}, nil)

		if _, err := svc.Claim(context.Background(), ClaimInput{Fingerprint: "d"}); !errors.Is(err, domain.ErrInvalidID) {
			t.Fatalf("expected ErrInvalidID, got %v", err)
		}
		if _, err := svc.Claim(context.Background(), ClaimInput{OfferID: "offer-1"}); !errors.Is(err, domain.ErrFingerprintRequired) {
			t.Fatalf("expected ErrFingerprintRequired, got %v", err)
		}
	})
}

type fakeClaimRepo struct {
	offers        map[string]domain.Offer
	redemptions   []*domain.Redemption
	conflictsLeft int
}

func newFakeClaimRepo(offers []domain.Offer, redemptions []domain.Redemption) *fakeClaimRepo {
	o := make(map[string]domain.Offer, len(offers))
	for _, offer := range offers {
		o[offer.ID] = offer
	}
	reds := make([]*domain.Redemption, 0, len(redemptions))
	for i := range redemptions {
		red := redemptions[i]
		reds = append(reds, &red)
	}
	return &fakeClaimRepo{offers: o, redemptions: reds}
}

func (f *fakeClaimRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if f.conflictsLeft > 0 {
		f.conflictsLeft--
		return fmt.Errorf("%w: simulated", domain.ErrTxConflict)
	}
	return fn(ctx)
}

func (f *fakeClaimRepo) ReleaseExpiredActiveKey(_ context.Context, activeKey string, now time.Time) error {
	for _, r := range f.redemptions {
		if r.ActiveKey != nil && *r.ActiveKey == activeKey && r.Expired(now) {
			r.ActiveKey = nil
		}
	}
	return nil
}

func (f *fakeClaimRepo) FindLiveClaim(_ context.Context, activeKey string, now time.Time) (*domain.Redemption, error) {
	for _, r := range f.redemptions {
		if r.ActiveKey != nil && *r.ActiveKey == activeKey && r.Live(now) {
			copy := *r
			return &copy, nil
		}
	}
	return nil, nil
}

func (f *fakeClaimRepo) LastClaimAt(_ context.Context, offerID, deviceHash string) (*time.Time, error) {
	var last *time.Time
	for _, r := range f.redemptions {
		if r.OfferID != offerID || r.DeviceHash != deviceHash {
			continue
		}
		if last == nil || r.CreatedAt.After(*last) {
			created := r.CreatedAt
			last = &created
		}
	}
	return last, nil
}

func (f *fakeClaimRepo) GetOfferForUpdate(_ context.Context, offerID string) (domain.Offer, error) {
	offer, ok := f.offers[offerID]
	if !ok {
		return domain.Offer{}, domain.ErrOfferNotFound
	}
	return offer, nil
}

func (f *fakeClaimRepo) CountRedeemed(_ context.Context, offerID string) (int, error) {
	total := 0
	for _, r := range f.redemptions {
		if r.OfferID == offerID && r.RedeemedAt != nil {
			total++
		}
	}
	return total, nil
}

func (f *fakeClaimRepo) CreateRedemption(_ context.Context, red domain.Redemption) error {
	f.redemptions = append(f.redemptions, &red)
	return nil
}

func (f *fakeClaimRepo) CodeExists(_ context.Context, code string) (bool, error) {
	for _, r := range f.redemptions {
		if r.ShortCode == code {
			return true, nil
		}
	}
	return false, nil
}

type fakeAbuseSink struct {
	entries []domain.AbuseLogEntry
}

func (f *fakeAbuseSink) Record(_ context.Context, e domain.AbuseLogEntry) {
	f.entries = append(f.entries, e)
}

func ptrString(s string) *string {
	return &s
}
