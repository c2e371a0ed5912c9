package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dealdrop/dealdrop/internal/domain"
)

const (
	codeUnauthenticated     = "unauthenticated"
	codeInvalidRequestBody  = "invalid_request_body"
	codeBadQR               = "bad_qr"
	codeOfferNotFound       = "offer_not_found"
	codeOfferNotLive        = "offer_not_live"
	codeOfferEnded          = "offer_ended"
	codeOfferStillLive      = "offer_still_live"
	codeSoldOut             = "sold_out"
	codeCooldown            = "cooldown"
	codeCodeNotFound        = "code_not_found"
	codeClaimExpired        = "claim_expired"
	codeAlreadyRedeemed     = "already_redeemed"
	codeForbidden           = "forbidden"
	codeConflict            = "conflict"
	codeInvalidID           = "invalid_id"
	codeTitleRequired       = "title_required"
	codeInvalidWindow       = "invalid_window"
	codeInvalidDiscount     = "invalid_discount"
	codeInvalidCapacity     = "invalid_capacity"
	codeFingerprintRequired = "fingerprint_required"
	codeOffersRequired      = "offers_required"
	codeInternalError       = "internal_error"
)

type errorResponse struct {
	Error             string     `json:"error"`
	Code              string     `json:"code"`
	RetryAfterSeconds *int       `json:"retry_after_seconds,omitempty"`
	RedeemedAt        *time.Time `json:"redeemed_at,omitempty"`
}

func writeError(c echo.Context, status int, code, msg string) error {
	return c.JSON(status, errorResponse{Error: msg, Code: code})
}

// respondDomainError maps every domain rejection to a stable status and code
// so the calling UI can branch on it; only truly unexpected failures become a
// 500.
func respondDomainError(c echo.Context, err error) error {
	var cooldown *domain.CooldownError
	if errors.As(err, &cooldown) {
		retry := cooldown.RetryAfterSeconds()
		return c.JSON(http.StatusTooManyRequests, errorResponse{
			Error:             cooldown.Error(),
			Code:              codeCooldown,
			RetryAfterSeconds: &retry,
		})
	}

	var already *domain.AlreadyRedeemedError
	if errors.As(err, &already) {
		redeemedAt := already.RedeemedAt
		return c.JSON(http.StatusConflict, errorResponse{
			Error:      already.Error(),
			Code:       codeAlreadyRedeemed,
			RedeemedAt: &redeemedAt,
		})
	}

	switch {
	case errors.Is(err, domain.ErrOfferNotFound):
		return writeError(c, http.StatusNotFound, codeOfferNotFound, err.Error())
	case errors.Is(err, domain.ErrOfferNotLive):
		return writeError(c, http.StatusConflict, codeOfferNotLive, err.Error())
	case errors.Is(err, domain.ErrOfferEnded):
		return writeError(c, http.StatusConflict, codeOfferEnded, err.Error())
	case errors.Is(err, domain.ErrOfferStillLive):
		return writeError(c, http.StatusConflict, codeOfferStillLive, err.Error())
	case errors.Is(err, domain.ErrSoldOut):
		return writeError(c, http.StatusConflict, codeSoldOut, err.Error())
	case errors.Is(err, domain.ErrCodeNotFound):
		return writeError(c, http.StatusNotFound, codeCodeNotFound, err.Error())
	case errors.Is(err, domain.ErrClaimExpired):
		return writeError(c, http.StatusGone, codeClaimExpired, err.Error())
	case errors.Is(err, domain.ErrWrongMerchant):
		return writeError(c, http.StatusForbidden, codeForbidden, err.Error())
	case errors.Is(err, domain.ErrConfirmConflict):
		return writeError(c, http.StatusConflict, codeConflict, err.Error())
	case errors.Is(err, domain.ErrBadPayload):
		return writeError(c, http.StatusBadRequest, codeBadQR, err.Error())
	case errors.Is(err, domain.ErrInvalidID):
		return writeError(c, http.StatusBadRequest, codeInvalidID, err.Error())
	case errors.Is(err, domain.ErrTitleRequired):
		return writeError(c, http.StatusBadRequest, codeTitleRequired, err.Error())
	case errors.Is(err, domain.ErrInvalidWindow):
		return writeError(c, http.StatusBadRequest, codeInvalidWindow, err.Error())
	case errors.Is(err, domain.ErrInvalidDiscount):
		return writeError(c, http.StatusBadRequest, codeInvalidDiscount, err.Error())
	case errors.Is(err, domain.ErrInvalidCapacity):
		return writeError(c, http.StatusBadRequest, codeInvalidCapacity, err.Error())
	case errors.Is(err, domain.ErrFingerprintRequired):
		return writeError(c, http.StatusBadRequest, codeFingerprintRequired, err.Error())
	default:
		return writeError(c, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}
