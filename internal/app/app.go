// Package app wires configuration, storage and the domain services into an
// HTTP server.
package app

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/convention-desk/internal/checkin"
	"github.com/iliyamo/convention-desk/internal/config"
	"github.com/iliyamo/convention-desk/internal/handler"
	"github.com/iliyamo/convention-desk/internal/ledger"
	"github.com/iliyamo/convention-desk/internal/locator"
	"github.com/iliyamo/convention-desk/internal/qrtoken"
	"github.com/iliyamo/convention-desk/internal/reconcile"
	"github.com/iliyamo/convention-desk/internal/repository"
	"github.com/iliyamo/convention-desk/internal/router"
	"github.com/iliyamo/convention-desk/internal/staff"
)

// App holds the wired services.  Echo serves every route.
type App struct {
	Ledgers *ledger.Registry
	Tokens  *qrtoken.Generator
	Engine  *reconcile.Engine
	Locator *locator.Locator
	Machine *checkin.Machine
	Echo    *echo.Echo
}

// Deps are the externally owned resources.  Redis and Notifier may be nil.
type Deps struct {
	DB       *sql.DB
	Staff    *staff.Directory
	Redis    *redis.Client
	Notifier reconcile.Notifier
	Logger   *slog.Logger
}

// New builds every service from cfg.
func New(cfg config.Config, d Deps) (*App, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prices, err := ledger.DefaultPrices().WithOverrides(cfg.PriceOverrides)
	if err != nil {
		return nil, fmt.Errorf("price list: %w", err)
	}
	ledgers := ledger.NewRegistry(d.DB, ledger.Options{
		Prices:       prices,
		AmountScale:  cfg.AmountScale,
		StrictAmount: cfg.StrictAmount,
		Logger:       logger,
	})

	tokenRepo := repository.NewTokenRepo(d.DB)
	gen, err := qrtoken.New(cfg.QRSecret, tokenRepo, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("token generator: %w", err)
	}
	deps := reconcile.Deps{
		Ledgers: ledgers,
		Tokens:  gen,
		Audit:   repository.NewPaymentEventRepo(d.DB),
		Logger:  logger,
	}
	if d.Notifier != nil {
		deps.Notifier = d.Notifier
	}
	engine, err := reconcile.New(cfg.PaystackSecret, deps)
	if err != nil {
		return nil, fmt.Errorf("reconcile engine: %w", err)
	}
	loc := locator.New(ledgers, repository.NewUserRepo(d.DB), tokenRepo)
	machine := checkin.New(loc, gen, logger)

	e := router.New(router.Deps{
		DB:        d.DB,
		Redis:     d.Redis,
		JWTSecret: cfg.JWTSecret,
		RateLimit: cfg.RateLimit,
		Cache:     cfg.Cache,
		Webhook:   handler.NewWebhookHandler(engine, logger),
		Intake:    handler.NewIntakeHandler(ledgers, logger),
		Tickets:   handler.NewTicketHandler(loc, machine, gen, logger),
		Staff:     handler.NewStaffHandler(d.Staff, cfg.JWTSecret, cfg.AccessTTLMin, logger),
	})
	return &App{
		Ledgers: ledgers,
		Tokens:  gen,
		Engine:  engine,
		Locator: loc,
		Machine: machine,
		Echo:    e,
	}, nil
}
