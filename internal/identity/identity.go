package identity

import (
	"context"
	"errors"

	"github.com/dealdrop/dealdrop/internal/domain"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Resolver maps an opaque bearer token from the external auth provider to a
// merchant identity. The provider itself is out of scope; this boundary is
// all the rest of the system sees.
type Resolver interface {
	ResolveMerchant(ctx context.Context, token string) (domain.Merchant, error)
}

// StaticResolver resolves tokens from a fixed table, for local runs and
// tests.
type StaticResolver struct {
	byToken map[string]domain.Merchant
}

func NewStaticResolver(tokens map[string]domain.Merchant) *StaticResolver {
	table := make(map[string]domain.Merchant, len(tokens))
	for token, merchant := range tokens {
		table[token] = merchant
	}
	return &StaticResolver{byToken: table}
}

func (r *StaticResolver) ResolveMerchant(_ context.Context, token string) (domain.Merchant, error) {
	merchant, ok := r.byToken[token]
	if !ok {
		return domain.Merchant{}, ErrUnauthenticated
	}
	return merchant, nil
}
