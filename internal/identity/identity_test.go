package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/dealdrop/dealdrop/internal/domain"
)

func TestStaticResolver(t *testing.T) {
	t.Parallel()

	resolver := NewStaticResolver(map[string]domain.Merchant{
		"token-1": {ID: "merchant-1", Name: "Cafe Uno"},
	})

	merchant, err := resolver.ResolveMerchant(context.Background(), "token-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if merchant.ID != "merchant-1" || merchant.Name != "Cafe Uno" {
		t.Fatalf("unexpected merchant: %+v", merchant)
	}

	if _, err := resolver.ResolveMerchant(context.Background(), "unknown"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if _, err := resolver.ResolveMerchant(context.Background(), ""); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for empty token, got %v", err)
	}
}
