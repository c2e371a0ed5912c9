package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrOfferNotFound   = errors.New("offer not found")
	ErrOfferNotLive    = errors.New("offer not yet live")
	ErrOfferEnded      = errors.New("offer ended")
	ErrOfferStillLive  = errors.New("offer has not ended yet")
	ErrSoldOut         = errors.New("offer sold out")
	ErrCodeNotFound    = errors.New("code not found")
	ErrClaimExpired    = errors.New("claim expired")
	ErrWrongMerchant   = errors.New("offer belongs to another merchant")
	ErrConfirmConflict = errors.New("confirmation conflict")
	ErrBadPayload      = errors.New("unparseable confirmation payload")

	ErrInvalidID           = errors.New("invalid id")
	ErrTitleRequired       = errors.New("title required")
	ErrInvalidWindow       = errors.New("end must be after start")
	ErrInvalidDiscount     = errors.New("discount value must be between 0 and 100")
	ErrInvalidCapacity     = errors.New("capacity must be positive when set")
	ErrFingerprintRequired = errors.New("device fingerprint required")

	// ErrTxConflict marks a transient serialization/deadlock failure from the
	// store; callers may retry the whole transaction.
	ErrTxConflict = errors.New("transaction conflict")
)

// AlreadyRedeemedError is the terminal answer for a code that was confirmed
// before; it carries the original redemption time so repeat confirmations
// stay idempotent and informative.
type AlreadyRedeemedError struct {
	RedeemedAt time.Time
}

func (e *AlreadyRedeemedError) Error() string {
	return fmt.Sprintf("already redeemed at %s", e.RedeemedAt.Format(time.RFC3339))
}

// CooldownError rejects a claim issued too soon after the device's previous
// claim on the same offer.
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("claim cooldown active, retry in %s", e.RetryAfter)
}

// RetryAfterSeconds rounds the remaining cooldown up to whole seconds, never
// below 1.
func (e *CooldownError) RetryAfterSeconds() int {
	s := int(math.Ceil(e.RetryAfter.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}
