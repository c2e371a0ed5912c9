package http

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/dealdrop/dealdrop/internal/identity"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	echo         *echo.Echo
	logger       *zap.Logger
	resolver     identity.Resolver
	corsOrigins  []string
	Claims       *ClaimHandler
	Confirm      *ConfirmHandler
	Availability *AvailabilityHandler
	Offers       *OfferHandler
}

func NewServer(
	logger *zap.Logger,
	resolver identity.Resolver,
	corsOrigins []string,
	claims *ClaimHandler,
	confirm *ConfirmHandler,
	availability *AvailabilityHandler,
	offers *OfferHandler,
) *Server {
	s := &Server{
		echo:         echo.New(),
		logger:       logger,
		resolver:     resolver,
		corsOrigins:  corsOrigins,
		Claims:       claims,
		Confirm:      confirm,
		Availability: availability,
		Offers:       offers,
	}
	s.echo.HideBanner = true
	s.registerMiddlewares()
	s.registerRoutes()
	return s
}

func (s *Server) registerMiddlewares() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.corsOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))
	s.echo.Use(RequestLogger(s.logger))
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	s.echo.POST("/claims", s.Claims.CreateClaim)
	s.echo.GET("/availability/stream", s.Availability.Stream)
	s.echo.GET("/offers/:id", s.Offers.GetOffer)

	auth := MerchantAuth(s.resolver)
	s.echo.POST("/redemptions/confirm", s.Confirm.Confirm, auth)
	s.echo.POST("/offers", s.Offers.CreateOffer, auth)
	s.echo.PUT("/offers/:id", s.Offers.UpdateOffer, auth)
	s.echo.POST("/offers/:id/repost", s.Offers.RepostOffer, auth)
	s.echo.GET("/merchants/me/offers", s.Offers.ListMine, auth)
}

// Handler exposes the configured routes for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

// Run starts the server and blocks until an interrupt or termination signal
// arrives, then shuts down gracefully.
func (s *Server) Run(address string) error {
	go func() {
		if err := s.Start(address); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("server start failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return s.echo.Shutdown(ctx)
}
