package http

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dealdrop/dealdrop/internal/app"
	"github.com/dealdrop/dealdrop/internal/domain"
)

// OfferManager is the minimal interface needed for offer management routes.
type OfferManager interface {
	Create(ctx context.Context, merchantID string, in app.OfferInput) (domain.Offer, error)
	Update(ctx context.Context, merchantID, offerID string, in app.OfferInput) (domain.Offer, error)
	Get(ctx context.Context, offerID string) (domain.Offer, error)
	ListByMerchant(ctx context.Context, merchantID string) ([]domain.Offer, error)
	Repost(ctx context.Context, merchantID, offerID string, in app.RepostInput) (domain.Offer, error)
}

type OfferHandler struct {
	svc OfferManager
}

func NewOfferHandler(svc OfferManager) *OfferHandler {
	return &OfferHandler{svc: svc}
}

type offerRequest struct {
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	OriginalPriceCents *int64    `json:"original_price_cents"`
	DiscountValue      int       `json:"discount_value"`
	StartsAt           time.Time `json:"starts_at"`
	EndsAt             time.Time `json:"ends_at"`
	MaxRedemptions     *int      `json:"max_redemptions"`
	PublicCode         *string   `json:"public_code"`
	ImageKey           *string   `json:"image_key"`
}

func (r offerRequest) toInput() app.OfferInput {
	return app.OfferInput{
		Title:              r.Title,
		Description:        r.Description,
		OriginalPriceCents: r.OriginalPriceCents,
		DiscountValue:      r.DiscountValue,
		StartsAt:           r.StartsAt,
		EndsAt:             r.EndsAt,
		MaxRedemptions:     r.MaxRedemptions,
		PublicCode:         r.PublicCode,
		ImageKey:           r.ImageKey,
	}
}

type offerResponse struct {
	ID                 string    `json:"id"`
	MerchantID         string    `json:"merchant_id"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	OriginalPriceCents *int64    `json:"original_price_cents"`
	DiscountKind       string    `json:"discount_kind"`
	DiscountValue      int       `json:"discount_value"`
	StartsAt           time.Time `json:"starts_at"`
	EndsAt             time.Time `json:"ends_at"`
	MaxRedemptions     *int      `json:"max_redemptions"`
	PublicCode         *string   `json:"public_code"`
	ImageURL           *string   `json:"image_url"`
	RepostedFrom       *string   `json:"reposted_from"`
	CreatedAt          time.Time `json:"created_at"`
}

func toOfferResponse(o domain.Offer) offerResponse {
	return offerResponse{
		ID:                 o.ID,
		MerchantID:         o.MerchantID,
		Title:              o.Title,
		Description:        o.Description,
		OriginalPriceCents: o.OriginalPriceCents,
		DiscountKind:       string(o.DiscountKind),
		DiscountValue:      o.DiscountValue,
		StartsAt:           o.StartsAt,
		EndsAt:             o.EndsAt,
		MaxRedemptions:     o.MaxRedemptions,
		PublicCode:         o.PublicCode,
		ImageURL:           o.ImageURL,
		RepostedFrom:       o.RepostedFrom,
		CreatedAt:          o.CreatedAt,
	}
}

func (h *OfferHandler) CreateOffer(c echo.Context) error {
	merchant, ok := merchantFromContext(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, codeUnauthenticated, "merchant identity required")
	}

	var req offerRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
	}

	offer, err := h.svc.Create(c.Request().Context(), merchant.ID, req.toInput())
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(http.StatusCreated, toOfferResponse(offer))
}

func (h *OfferHandler) UpdateOffer(c echo.Context) error {
	merchant, ok := merchantFromContext(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, codeUnauthenticated, "merchant identity required")
	}

	var req offerRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
	}

	offer, err := h.svc.Update(c.Request().Context(), merchant.ID, c.Param("id"), req.toInput())
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(http.StatusOK, toOfferResponse(offer))
}

func (h *OfferHandler) GetOffer(c echo.Context) error {
	offer, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(http.StatusOK, toOfferResponse(offer))
}

func (h *OfferHandler) ListMine(c echo.Context) error {
	merchant, ok := merchantFromContext(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, codeUnauthenticated, "merchant identity required")
	}

	offers, err := h.svc.ListByMerchant(c.Request().Context(), merchant.ID)
	if err != nil {
		return respondDomainError(c, err)
	}

	out := make([]offerResponse, 0, len(offers))
	for _, o := range offers {
		out = append(out, toOfferResponse(o))
	}
	return c.JSON(http.StatusOK, out)
}

type repostRequest struct {
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

func (h *OfferHandler) RepostOffer(c echo.Context) error {
	merchant, ok := merchantFromContext(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, codeUnauthenticated, "merchant identity required")
	}

	var req repostRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
	}

	offer, err := h.svc.Repost(c.Request().Context(), merchant.ID, c.Param("id"), app.RepostInput{
		StartsAt: req.StartsAt,
		EndsAt:   req.EndsAt,
	})
	if err != nil {
		return respondDomainError(c, err)
	}
	return c.JSON(http.StatusCreated, toOfferResponse(offer))
}
