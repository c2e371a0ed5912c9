package domain

// Merchant identifies an offer owner as resolved by the external identity
// provider. Only the opaque id participates in ownership checks.
type Merchant struct {
	ID   string
	Name string
}
