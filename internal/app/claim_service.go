package app

import (
	"context"
	"errors"
	"time"

	"github.com/dealdrop/dealdrop/internal/clock"
	"github.com/dealdrop/dealdrop/internal/domain"
)

type ClaimRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	ReleaseExpiredActiveKey(ctx context.Context, activeKey string, now time.Time) error
	FindLiveClaim(ctx context.Context, activeKey string, now time.Time) (*domain.Redemption, error)
	LastClaimAt(ctx context.Context, offerID, deviceHash string) (*time.Time, error)
	GetOfferForUpdate(ctx context.Context, offerID string) (domain.Offer, error)
	CountRedeemed(ctx context.Context, offerID string) (int, error)
	CreateRedemption(ctx context.Context, r domain.Redemption) error
	CodeExists(ctx context.Context, code string) (bool, error)
}

// AbuseSink records rejected attempts. Implementations must never fail the
// caller.
type AbuseSink interface {
	Record(ctx context.Context, e domain.AbuseLogEntry)
}

const (
	defaultClaimTTL  = 15 * time.Minute
	defaultCooldown  = 30 * time.Second
	defaultTxRetries = 3
	defaultTxBackoff = 25 * time.Millisecond
)

// ClaimService issues device-bound, short-lived redemption codes against an
// offer. Issuance is idempotent while a live claim exists, rate-limited per
// device+offer, and capacity-checked against the redeemed count under an
// offer row lock.
type ClaimService struct {
	repo      ClaimRepository
	clock     clock.Clock
	codes     *CodeGenerator
	abuse     AbuseSink
	ttl       time.Duration
	cooldown  time.Duration
	txRetries int
	txBackoff time.Duration
}

func NewClaimService(repo ClaimRepository, clk clock.Clock, abuse AbuseSink, opts ...ClaimServiceOption) *ClaimService {
	svc := &ClaimService{
		repo:      repo,
		clock:     clk,
		codes:     NewCodeGenerator(codeIndexFunc(repo.CodeExists)),
		abuse:     abuse,
		ttl:       defaultClaimTTL,
		cooldown:  defaultCooldown,
		txRetries: defaultTxRetries,
		txBackoff: defaultTxBackoff,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type ClaimServiceOption func(*ClaimService)

// WithClaimTTL overrides the validity window of new claims.
func WithClaimTTL(d time.Duration) ClaimServiceOption {
	return func(s *ClaimService) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithCooldown overrides the per-device claim cooldown window.
func WithCooldown(d time.Duration) ClaimServiceOption {
	return func(s *ClaimService) {
		if d >= 0 {
			s.cooldown = d
		}
	}
}

// WithTxRetry overrides the retry budget for serialization conflicts.
func WithTxRetry(attempts int, backoff time.Duration) ClaimServiceOption {
	return func(s *ClaimService) {
		if attempts > 0 {
			s.txRetries = attempts
		}
		if backoff >= 0 {
			s.txBackoff = backoff
		}
	}
}

type ClaimInput struct {
	OfferID string
	// Fingerprint is the raw client-supplied device identifier; only its
	// hash is ever stored.
	Fingerprint string
	UserAgent   string
}

type ClaimResult struct {
	Redemption domain.Redemption
	// Reused is true when an unexpired claim for the same device+offer was
	// returned instead of a new one.
	Reused bool
}

func (s *ClaimService) Claim(ctx context.Context, in ClaimInput) (ClaimResult, error) {
	if in.OfferID == "" {
		return ClaimResult{}, domain.ErrInvalidID
	}
	if in.Fingerprint == "" {
		return ClaimResult{}, domain.ErrFingerprintRequired
	}

	deviceHash := domain.HashFingerprint(in.Fingerprint)
	key := domain.ActiveKey(in.OfferID, deviceHash)

	var result ClaimResult
	var err error
	for attempt := 1; ; attempt++ {
		result, err = s.claimOnce(ctx, in.OfferID, deviceHash, key)
		if !errors.Is(err, domain.ErrTxConflict) || attempt >= s.txRetries {
			break
		}
		select {
		case <-time.After(time.Duration(attempt) * s.txBackoff):
		case <-ctx.Done():
			return ClaimResult{}, ctx.Err()
		}
	}
	if err != nil {
		s.recordRejection(ctx, in, deviceHash, err)
		return ClaimResult{}, err
	}
	return result, nil
}

func (s *ClaimService) claimOnce(ctx context.Context, offerID, deviceHash, key string) (ClaimResult, error) {
	now := s.clock.Now()
	var result ClaimResult

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		// A stale lock from an expired unredeemed claim frees the device to
		// claim again.
		if err := s.repo.ReleaseExpiredActiveKey(txCtx, key, now); err != nil {
			return err
		}

		existing, err := s.repo.FindLiveClaim(txCtx, key, now)
		if err != nil {
			return err
		}
		if existing != nil {
			result = ClaimResult{Redemption: *existing, Reused: true}
			return nil
		}

		if s.cooldown > 0 {
			last, err := s.repo.LastClaimAt(txCtx, offerID, deviceHash)
			if err != nil {
				return err
			}
			if last != nil {
				if elapsed := now.Sub(*last); elapsed < s.cooldown {
					return &domain.CooldownError{RetryAfter: s.cooldown - elapsed}
				}
			}
		}

		offer, err := s.repo.GetOfferForUpdate(txCtx, offerID)
		if err != nil {
			return err
		}
		if now.Before(offer.StartsAt) {
			return domain.ErrOfferNotLive
		}
		if offer.EndedAt(now) {
			return domain.ErrOfferEnded
		}

		// Capacity gates redeemed codes only; claims over-issue freely so a
		// popular offer never starves browsers of codes.
		if !offer.Unlimited() {
			redeemed, err := s.repo.CountRedeemed(txCtx, offerID)
			if err != nil {
				return err
			}
			if redeemed >= *offer.MaxRedemptions {
				return domain.ErrSoldOut
			}
		}

		code, err := s.codes.Generate(txCtx, DefaultCodeLength)
		if err != nil {
			return err
		}

		activeKey := key
		redemption := domain.Redemption{
			ID:         newID(),
			OfferID:    offerID,
			ShortCode:  code,
			DeviceHash: deviceHash,
			ActiveKey:  &activeKey,
			ExpiresAt:  ptrTime(now.Add(s.ttl)),
			CreatedAt:  now,
		}
		if err := s.repo.CreateRedemption(txCtx, redemption); err != nil {
			return err
		}

		result = ClaimResult{Redemption: redemption}
		return nil
	})
	if err != nil {
		return ClaimResult{}, err
	}
	return result, nil
}

func (s *ClaimService) recordRejection(ctx context.Context, in ClaimInput, deviceHash string, err error) {
	if s.abuse == nil {
		return
	}

	entry := domain.AbuseLogEntry{
		OfferID:    &in.OfferID,
		DeviceHash: deviceHash,
		UserAgent:  in.UserAgent,
		CreatedAt:  s.clock.Now(),
	}

	var cooldown *domain.CooldownError
	switch {
	case errors.As(err, &cooldown):
		entry.Reason = "cooldown"
		retry := cooldown.RetryAfterSeconds()
		entry.RetryAfterSeconds = &retry
	case errors.Is(err, domain.ErrSoldOut):
		entry.Reason = "sold_out"
	case errors.Is(err, domain.ErrOfferNotLive):
		entry.Reason = "offer_not_live"
	case errors.Is(err, domain.ErrOfferEnded):
		entry.Reason = "offer_ended"
	default:
		return
	}

	s.abuse.Record(ctx, entry)
}

type codeIndexFunc func(ctx context.Context, code string) (bool, error)

func (f codeIndexFunc) CodeExists(ctx context.Context, code string) (bool, error) {
	return f(ctx, code)
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
