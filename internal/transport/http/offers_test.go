package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dealdrop/dealdrop/internal/app"
	"github.com/dealdrop/dealdrop/internal/domain"
)

func TestOfferHandler(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sample := domain.Offer{
		ID:            "offer-1",
		MerchantID:    "merchant-1",
		Title:         "Half-price espresso",
		DiscountKind:  domain.DiscountPercent,
		DiscountValue: 50,
		StartsAt:      now,
		EndsAt:        now.Add(24 * time.Hour),
		CreatedAt:     now,
	}

	t.Run("create requires auth", func(t *testing.T) {
		handler := newTestServer(testServerConfig{offers: stubOffers{}})

		req := httptest.NewRequest(http.MethodPost, "/offers", jsonBody(`{"title":"x"}`))
		req.Header.Set(echoHeaderContentType, "application/json")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("create returns the stored offer", func(t *testing.T) {
		handler := newTestServer(testServerConfig{
			offers: stubOffers{
				create: func(_ context.Context, merchantID string, in app.OfferInput) (domain.Offer, error) {
					if merchantID != "merchant-1" {
						t.Fatalf("unexpected merchant %q", merchantID)
					}
					if in.Title != "Half-price espresso" || in.DiscountValue != 50 {
						t.Fatalf("unexpected input %+v", in)
					}
					return sample, nil
				},
			},
		})

		payload := `{"title":"Half-price espresso","discount_value":50,"starts_at":"2025-06-01T12:00:00Z","ends_at":"2025-06-02T12:00:00Z"}`
		req := httptest.NewRequest(http.MethodPost, "/offers", jsonBody(payload))
		req.Header.Set(echoHeaderContentType, "application/json")
		req.Header.Set("Authorization", "Bearer "+testBearer)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		var body offerResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.ID != "offer-1" || body.DiscountKind != "percent" {
			t.Fatalf("unexpected response: %+v", body)
		}
	})

	t.Run("validation errors map to 400", func(t *testing.T) {
		handler := newTestServer(testServerConfig{
			offers: stubOffers{
				create: func(context.Context, string, app.OfferInput) (domain.Offer, error) {
					return domain.Offer{}, domain.ErrTitleRequired
				},
			},
		})

		req := httptest.NewRequest(http.MethodPost, "/offers", jsonBody(`{}`))
		req.Header.Set(echoHeaderContentType, "application/json")
		req.Header.Set("Authorization", "Bearer "+testBearer)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		var body errorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Code != codeTitleRequired {
			t.Fatalf("expected title_required, got %q", body.Code)
		}
	})

	t.Run("get is public", func(t *testing.T) {
		handler := newTestServer(testServerConfig{
			offers: stubOffers{
				get: func(_ context.Context, offerID string) (domain.Offer, error) {
					if offerID != "offer-1" {
						return domain.Offer{}, domain.ErrOfferNotFound
					}
					return sample, nil
				},
			},
		})

		req := httptest.NewRequest(http.MethodGet, "/offers/offer-1", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		req = httptest.NewRequest(http.MethodGet, "/offers/missing", nil)
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("repost maps still-live to 409", func(t *testing.T) {
		handler := newTestServer(testServerConfig{
			offers: stubOffers{
				repost: func(context.Context, string, string, app.RepostInput) (domain.Offer, error) {
					return domain.Offer{}, domain.ErrOfferStillLive
				},
			},
		})

		req := httptest.NewRequest(http.MethodPost, "/offers/offer-1/repost", jsonBody(`{"starts_at":"2025-06-03T12:00:00Z","ends_at":"2025-06-04T12:00:00Z"}`))
		req.Header.Set(echoHeaderContentType, "application/json")
		req.Header.Set("Authorization", "Bearer "+testBearer)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		var body errorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Code != codeOfferStillLive {
			t.Fatalf("expected offer_still_live, got %q", body.Code)
		}
	})
}
