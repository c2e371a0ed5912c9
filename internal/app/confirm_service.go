package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dealdrop/dealdrop/internal/clock"
	"github.com/dealdrop/dealdrop/internal/domain"
)

type ConfirmRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	FindRedemptionByCode(ctx context.Context, code string) (*domain.Redemption, error)
	GetOffer(ctx context.Context, offerID string) (domain.Offer, error)
	GetOfferForUpdate(ctx context.Context, offerID string) (domain.Offer, error)
	CountRedeemed(ctx context.Context, offerID string) (int, error)
	// RedeemByCode performs the single conditional write that flips
	// redeemed_at from null to now. Its WHERE clause carries every guard:
	// row identity, unredeemed, unexpired, owning merchant, and remaining
	// capacity. It reports ok=false with no error when zero rows matched.
	RedeemByCode(ctx context.Context, code, merchantID string, now time.Time) (domain.Redemption, bool, error)
	CreateRedemption(ctx context.Context, r domain.Redemption) error
	CodeExists(ctx context.Context, code string) (bool, error)
}

// ConfirmService is the redemption state machine. The redeem transition is a
// conditional update, never check-then-act: the database decides who wins a
// race, and a zero-row result is re-read only to name the reason.
type ConfirmService struct {
	repo    ConfirmRepository
	clock   clock.Clock
	codes   *CodeGenerator
	abuse   AbuseSink
	mintTTL time.Duration
}

func NewConfirmService(repo ConfirmRepository, clk clock.Clock, abuse AbuseSink, opts ...ConfirmServiceOption) *ConfirmService {
	svc := &ConfirmService{
		repo:    repo,
		clock:   clk,
		codes:   NewCodeGenerator(codeIndexFunc(repo.CodeExists)),
		abuse:   abuse,
		mintTTL: defaultClaimTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type ConfirmServiceOption func(*ConfirmService)

// WithMintTTL overrides the validity window of codes minted by the legacy
// descriptor flow when the descriptor carries no expiry.
func WithMintTTL(d time.Duration) ConfirmServiceOption {
	return func(s *ConfirmService) {
		if d > 0 {
			s.mintTTL = d
		}
	}
}

type ConfirmResult struct {
	Redemption domain.Redemption
}

// Confirm atomically redeems the code for the given merchant. Exactly one of
// N concurrent confirmations of the same code succeeds; the rest resolve to
// AlreadyRedeemedError or ErrConfirmConflict.
func (s *ConfirmService) Confirm(ctx context.Context, code, merchantID string) (ConfirmResult, error) {
	code = NormalizeCode(code)
	if code == "" {
		return ConfirmResult{}, domain.ErrCodeNotFound
	}

	now := s.clock.Now()
	var result ConfirmResult
	var deviceHash string

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		found, err := s.repo.FindRedemptionByCode(txCtx, code)
		if err != nil {
			return err
		}
		if found == nil {
			return domain.ErrCodeNotFound
		}
		deviceHash = found.DeviceHash

		// Lock the offer row so concurrent confirmations of sibling codes
		// serialize on the capacity count.
		offer, err := s.repo.GetOfferForUpdate(txCtx, found.OfferID)
		if err != nil {
			return err
		}

		redeemed, ok, err := s.repo.RedeemByCode(txCtx, code, merchantID, now)
		if err != nil {
			return err
		}
		if ok {
			result = ConfirmResult{Redemption: redeemed}
			return nil
		}

		// Zero rows affected: re-read to name the losing reason. The order
		// fixes which code wins when several guards fail at once.
		current, err := s.repo.FindRedemptionByCode(txCtx, code)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrCodeNotFound
		}
		if offer.MerchantID != merchantID {
			return domain.ErrWrongMerchant
		}
		if current.RedeemedAt != nil {
			return &domain.AlreadyRedeemedError{RedeemedAt: *current.RedeemedAt}
		}
		if current.Expired(now) {
			return domain.ErrClaimExpired
		}
		if !offer.Unlimited() {
			count, err := s.repo.CountRedeemed(txCtx, offer.ID)
			if err != nil {
				return err
			}
			if count >= *offer.MaxRedemptions {
				return domain.ErrSoldOut
			}
		}
		return domain.ErrConfirmConflict
	})
	if err != nil {
		s.recordRejection(ctx, code, deviceHash, err)
		return ConfirmResult{}, err
	}
	return result, nil
}

type DescriptorInput struct {
	OfferID    string
	MerchantID string
	ExpiresAt  *time.Time
}

// ConfirmDescriptor serves the legacy flow where the scanned payload is an
// offer descriptor rather than a pre-issued code: it verifies ownership,
// mints a fresh single-use redemption, then runs the same atomic confirm.
func (s *ConfirmService) ConfirmDescriptor(ctx context.Context, in DescriptorInput) (ConfirmResult, error) {
	if in.OfferID == "" {
		return ConfirmResult{}, domain.ErrBadPayload
	}

	offer, err := s.repo.GetOffer(ctx, in.OfferID)
	if err != nil {
		return ConfirmResult{}, err
	}
	if offer.MerchantID != in.MerchantID {
		return ConfirmResult{}, domain.ErrWrongMerchant
	}

	now := s.clock.Now()
	expiresAt := in.ExpiresAt
	if expiresAt == nil {
		expiresAt = ptrTime(now.Add(s.mintTTL))
	}

	// Mint and confirm share one transaction so a rejected confirmation
	// rolls the minted code back instead of leaving it redeemable later.
	var result ConfirmResult
	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		code, err := s.codes.Generate(txCtx, DefaultCodeLength)
		if err != nil {
			return err
		}
		minted := domain.Redemption{
			ID:         newID(),
			OfferID:    in.OfferID,
			ShortCode:  code,
			DeviceHash: domain.HashFingerprint("merchant|" + in.MerchantID),
			ExpiresAt:  expiresAt,
			CreatedAt:  now,
		}
		if err := s.repo.CreateRedemption(txCtx, minted); err != nil {
			return err
		}

		confirmed, err := s.Confirm(txCtx, code, in.MerchantID)
		if err != nil {
			return err
		}
		result = confirmed
		return nil
	})
	if err != nil {
		return ConfirmResult{}, err
	}
	return result, nil
}

func (s *ConfirmService) recordRejection(ctx context.Context, code, deviceHash string, err error) {
	if s.abuse == nil || deviceHash == "" {
		return
	}

	entry := domain.AbuseLogEntry{
		DeviceHash: deviceHash,
		CreatedAt:  s.clock.Now(),
	}

	var already *domain.AlreadyRedeemedError
	switch {
	case errors.As(err, &already):
		entry.Reason = "already_redeemed"
	case errors.Is(err, domain.ErrWrongMerchant):
		entry.Reason = "forbidden"
	case errors.Is(err, domain.ErrClaimExpired):
		entry.Reason = "claim_expired"
	case errors.Is(err, domain.ErrSoldOut):
		entry.Reason = "sold_out"
	case errors.Is(err, domain.ErrConfirmConflict):
		entry.Reason = "conflict"
	default:
		return
	}

	s.abuse.Record(ctx, entry)
}

// NormalizeCode upper-cases and trims a presented code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
