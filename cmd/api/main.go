package main

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/dealdrop/dealdrop/internal/app"
	"github.com/dealdrop/dealdrop/internal/blob"
	"github.com/dealdrop/dealdrop/internal/clock"
	"github.com/dealdrop/dealdrop/internal/config"
	"github.com/dealdrop/dealdrop/internal/domain"
	"github.com/dealdrop/dealdrop/internal/identity"
	"github.com/dealdrop/dealdrop/internal/storage/postgres"
	transporthttp "github.com/dealdrop/dealdrop/internal/transport/http"
	"github.com/dealdrop/dealdrop/migrations"
)

func main() {
	logger, err := config.NewLogger()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.Postgres.URL)
	if err != nil {
		logger.Fatal("connect to db", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		logger.Fatal("db ping", zap.Error(err))
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		logger.Fatal("apply migrations", zap.Error(err))
	}

	clk := clock.NewSystem()

	redemptionRepo := postgres.NewRedemptionRepository(pool)
	offerRepo := postgres.NewOfferRepository(pool)
	abuseRepo := postgres.NewAbuseRepository(pool)
	merchantRepo := postgres.NewMerchantRepository(pool)

	// Merchant identities live in the token table; mirror them into the
	// merchants table so offer inserts satisfy the foreign key.
	tokens := make(map[string]domain.Merchant, len(cfg.Auth.Tokens))
	for _, tok := range cfg.Auth.Tokens {
		merchant := domain.Merchant{ID: tok.MerchantID, Name: tok.MerchantName}
		if err := merchantRepo.UpsertMerchant(startupCtx, merchant); err != nil {
			logger.Fatal("seed merchant", zap.Error(err))
		}
		tokens[tok.Token] = merchant
	}
	resolver := identity.NewStaticResolver(tokens)

	abuse := app.NewAbuseRecorder(abuseRepo, logger)
	defer abuse.Flush()

	claimSvc := app.NewClaimService(redemptionRepo, clk, abuse,
		app.WithClaimTTL(cfg.Claims.TTL),
		app.WithCooldown(cfg.Claims.Cooldown),
	)
	confirmSvc := app.NewConfirmService(redemptionRepo, clk, abuse,
		app.WithMintTTL(cfg.Claims.TTL),
	)
	availabilitySvc := app.NewAvailabilityService(redemptionRepo)
	offerSvc := app.NewOfferService(offerRepo, clk, blob.NewStaticStore(cfg.Blob.BaseURL))

	server := transporthttp.NewServer(
		logger,
		resolver,
		cfg.Server.CORSOrigins,
		transporthttp.NewClaimHandler(claimSvc),
		transporthttp.NewConfirmHandler(confirmSvc),
		transporthttp.NewAvailabilityHandler(availabilitySvc, logger, cfg.Feed.Interval, cfg.Feed.Heartbeat),
		transporthttp.NewOfferHandler(offerSvc),
	)

	logger.Info("api listening", zap.String("port", cfg.Server.Port))
	if err := server.Run(":" + cfg.Server.Port); err != nil {
		logger.Fatal("server shutdown", zap.Error(err))
	}
}
