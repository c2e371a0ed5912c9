package domain

import "time"

type DiscountKind string

const (
	DiscountNone    DiscountKind = "none"
	DiscountPercent DiscountKind = "percent"
)

// DiscountKindFor derives the discount kind from the stored value. The kind
// is never written independently of the value.
func DiscountKindFor(value int) DiscountKind {
	if value > 0 {
		return DiscountPercent
	}
	return DiscountNone
}

// Offer is a merchant's time-bounded, optionally capacity-limited promotion.
// MaxRedemptions caps the number of redeemed codes, not issued claims; nil or
// non-positive means unlimited.
type Offer struct {
	ID                 string
	MerchantID         string
	Title              string
	Description        string
	OriginalPriceCents *int64
	DiscountKind       DiscountKind
	DiscountValue      int
	StartsAt           time.Time
	EndsAt             time.Time
	MaxRedemptions     *int
	PublicCode         *string
	ImageURL           *string
	RepostedFrom       *string
	CreatedAt          time.Time
}

func (o Offer) Unlimited() bool {
	return o.MaxRedemptions == nil || *o.MaxRedemptions <= 0
}

// LiveAt reports whether the offer window contains t (start inclusive, end
// exclusive).
func (o Offer) LiveAt(t time.Time) bool {
	return !t.Before(o.StartsAt) && t.Before(o.EndsAt)
}

func (o Offer) EndedAt(t time.Time) bool {
	return !t.Before(o.EndsAt)
}
