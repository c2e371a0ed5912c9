package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/dealdrop/dealdrop/internal/domain"
	"github.com/dealdrop/dealdrop/internal/identity"
)

const merchantContextKey = "merchant"

// RequestLogger logs basic request details and latency.
func RequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info("request",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	}
}

// MerchantAuth resolves the bearer token to a merchant identity and rejects
// requests the provider does not recognize.
func MerchantAuth(resolver identity.Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c.Request().Header.Get("Authorization"))
			if token == "" {
				return writeError(c, http.StatusUnauthorized, codeUnauthenticated, "missing bearer token")
			}

			merchant, err := resolver.ResolveMerchant(c.Request().Context(), token)
			if err != nil {
				if errors.Is(err, identity.ErrUnauthenticated) {
					return writeError(c, http.StatusUnauthorized, codeUnauthenticated, "unknown token")
				}
				return writeError(c, http.StatusInternalServerError, codeInternalError, "internal error")
			}

			c.Set(merchantContextKey, merchant)
			return next(c)
		}
	}
}

func merchantFromContext(c echo.Context) (domain.Merchant, bool) {
	merchant, ok := c.Get(merchantContextKey).(domain.Merchant)
	return merchant, ok
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}
