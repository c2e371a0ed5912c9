package domain

import "time"

// AbuseLogEntry is an append-only record of a rejected claim or confirmation
// attempt, kept for merchant review. Writing one is always best-effort.
type AbuseLogEntry struct {
	ID                string
	OfferID           *string
	DeviceHash        string
	Reason            string
	RetryAfterSeconds *int
	UserAgent         string
	CreatedAt         time.Time
}
