package domain

import "time"

// Redemption is a single-use claim against an offer. It is created unredeemed
// with a short expiry, and RedeemedAt is set exactly once by the confirmation
// engine. Rows are never deleted; expired unredeemed rows are the audit trail
// of issued codes.
type Redemption struct {
	ID         string
	OfferID    string
	ShortCode  string
	DeviceHash string
	// ActiveKey is offer|device while the claim is live and nil afterwards,
	// enforcing one live claim per device per offer via a unique index.
	ActiveKey *string
	// ExpiresAt is nil only for merchant-minted codes from the legacy
	// descriptor flow; device claims always carry a short TTL.
	ExpiresAt  *time.Time
	RedeemedAt *time.Time
	CreatedAt  time.Time
}

// Live reports whether the claim can still be redeemed at now.
func (r Redemption) Live(now time.Time) bool {
	return r.RedeemedAt == nil && (r.ExpiresAt == nil || r.ExpiresAt.After(now))
}

func (r Redemption) Expired(now time.Time) bool {
	return r.RedeemedAt == nil && r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

// ActiveKey builds the composite key marking a live claim for a device+offer
// pair.
func ActiveKey(offerID, deviceHash string) string {
	return offerID + "|" + deviceHash
}
