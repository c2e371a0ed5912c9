package http

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dealdrop/dealdrop/internal/app"
)

// ClaimCreator is the minimal interface needed to issue claims.
type ClaimCreator interface {
	Claim(ctx context.Context, in app.ClaimInput) (app.ClaimResult, error)
}

type ClaimHandler struct {
	svc ClaimCreator
}

func NewClaimHandler(svc ClaimCreator) *ClaimHandler {
	return &ClaimHandler{svc: svc}
}

type createClaimRequest struct {
	OfferID           string `json:"offer_id"`
	DeviceFingerprint string `json:"device_fingerprint"`
}

type claimResponse struct {
	Status       string `json:"status"`
	RedemptionID string `json:"redemption_id"`
	ShortCode    string `json:"short_code"`
	// Code mirrors ShortCode for scanners deployed against the legacy field.
	Code      string     `json:"code"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (h *ClaimHandler) CreateClaim(c echo.Context) error {
	var req createClaimRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
	}

	fingerprint := req.DeviceFingerprint
	if fingerprint == "" {
		// Degraded mode: derive a device identity from the network address
		// and user agent.
		fingerprint = c.RealIP() + "|" + c.Request().UserAgent()
	}

	result, err := h.svc.Claim(c.Request().Context(), app.ClaimInput{
		OfferID:     req.OfferID,
		Fingerprint: fingerprint,
		UserAgent:   c.Request().UserAgent(),
	})
	if err != nil {
		return respondDomainError(c, err)
	}

	status := http.StatusCreated
	label := "created"
	if result.Reused {
		status = http.StatusOK
		label = "active_exists"
	}

	return c.JSON(status, claimResponse{
		Status:       label,
		RedemptionID: result.Redemption.ID,
		ShortCode:    result.Redemption.ShortCode,
		Code:         result.Redemption.ShortCode,
		ExpiresAt:    result.Redemption.ExpiresAt,
	})
}
