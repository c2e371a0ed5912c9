package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dealdrop/dealdrop/internal/app"
)

// CodeConfirmer is the minimal interface needed to confirm redemptions.
type CodeConfirmer interface {
	Confirm(ctx context.Context, code, merchantID string) (app.ConfirmResult, error)
	ConfirmDescriptor(ctx context.Context, in app.DescriptorInput) (app.ConfirmResult, error)
}

type ConfirmHandler struct {
	svc CodeConfirmer
}

func NewConfirmHandler(svc CodeConfirmer) *ConfirmHandler {
	return &ConfirmHandler{svc: svc}
}

// confirmRequest tolerates every payload shape deployed scanners send: the
// preferred {code}, the older {shortCode}/{short_code}, a scanned URL whose
// last path segment is the code, and the legacy structured offer descriptor.
type confirmRequest struct {
	Code           string     `json:"code"`
	ShortCode      string     `json:"shortCode"`
	ShortCodeSnake string     `json:"short_code"`
	Type           string     `json:"type"`
	OfferID        string     `json:"offerId"`
	OfferIDSnake   string     `json:"offer_id"`
	ExpiresAt      *time.Time `json:"expiresAt"`
}

type confirmResponse struct {
	Status     string             `json:"status"`
	Redemption redemptionResponse `json:"redemption"`
}

type redemptionResponse struct {
	ID         string     `json:"id"`
	RedeemedAt *time.Time `json:"redeemed_at"`
}

func (h *ConfirmHandler) Confirm(c echo.Context) error {
	merchant, ok := merchantFromContext(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, codeUnauthenticated, "merchant identity required")
	}

	var req confirmRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest, codeBadQR, "unparseable payload")
	}

	var result app.ConfirmResult
	var err error
	if code := extractCode(req); code != "" {
		result, err = h.svc.Confirm(c.Request().Context(), code, merchant.ID)
	} else if strings.EqualFold(req.Type, "OFFER") {
		offerID := req.OfferID
		if offerID == "" {
			offerID = req.OfferIDSnake
		}
		result, err = h.svc.ConfirmDescriptor(c.Request().Context(), app.DescriptorInput{
			OfferID:    offerID,
			MerchantID: merchant.ID,
			ExpiresAt:  req.ExpiresAt,
		})
	} else {
		return writeError(c, http.StatusBadRequest, codeBadQR, "unparseable payload")
	}
	if err != nil {
		return respondDomainError(c, err)
	}

	return c.JSON(http.StatusOK, confirmResponse{
		Status: "REDEEMED",
		Redemption: redemptionResponse{
			ID:         result.Redemption.ID,
			RedeemedAt: result.Redemption.RedeemedAt,
		},
	})
}

func extractCode(req confirmRequest) string {
	code := req.Code
	if code == "" {
		code = req.ShortCode
	}
	if code == "" {
		code = req.ShortCodeSnake
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	// Scanned QR contents are often the claim URL; the code is its last path
	// segment.
	if strings.Contains(code, "/") {
		trimmed := strings.TrimRight(code, "/")
		if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
			code = trimmed[idx+1:]
		}
	}
	return code
}
