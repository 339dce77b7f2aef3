package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checkout-core/internal/address"
	"checkout-core/internal/apiclient"
	"checkout-core/internal/auth"
	"checkout-core/internal/cart"
	"checkout-core/internal/checkout"
	"checkout-core/internal/config"
	"checkout-core/internal/db"
	"checkout-core/internal/httpapi"
	"checkout-core/internal/logger"
	"checkout-core/internal/metrics"
	"checkout-core/internal/middleware"
	"checkout-core/internal/notify"
	"checkout-core/internal/order"
	"checkout-core/internal/payment"
	"checkout-core/internal/shipping"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const shutdownGrace = 10 * time.Second

var (
	initDBFunc      = db.InitDB
	startServerFunc = startServer
)

func main() {
	if err := run(); err != nil {
		logger.L().Fatal("server stopped", zap.Error(err))
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database := initDBFunc(cfg)
	if database != nil {
		defer database.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler := newServer(ctx, cfg, database)
	logger.L().Info("checkout server starting",
		zap.String("port", cfg.AppPort),
		zap.String("env", cfg.AppEnv),
		zap.Bool("journal_db", database != nil),
	)
	return startServerFunc(ctx, ":"+cfg.AppPort, handler)
}

// newServer wires the backend clients, the per-shopper checkout machines and
// the HTTP routes. A nil database keeps the attempt journal in memory.
func newServer(ctx context.Context, cfg *config.Config, database *sql.DB) http.Handler {
	token := apiclient.WithToken(auth.TokenFrom(auth.ContextStore{}))
	api := apiclient.New(cfg.APIURL, cfg.HTTPTimeout, token, apiclient.WithName("commerce"))
	gatewayAPI := apiclient.New(cfg.GatewayURL, cfg.HTTPTimeout, token, apiclient.WithName("gateway"))
	shippingAPI := apiclient.New(cfg.ShippingURL, cfg.HTTPTimeout, token, apiclient.WithName("shipping"))

	var journal checkout.Journal = checkout.NewMemoryJournal()
	if database != nil {
		journal = checkout.NewPostgresJournal(database)
	}

	var notifier notify.Notifier
	if cfg.SendGridAPIKey != "" {
		notifier = notify.NewSendGridMailer(cfg.SendGridAPIKey, cfg.MailFrom, "")
	}

	// One status client for all sessions; the limit is server-wide.
	gateway := payment.NewGatewayClient(gatewayAPI,
		payment.WithStatusRate(rate.Every(50*time.Millisecond), 20),
	)
	orders := order.NewFinalizer(order.NewHTTPBackend(api))
	quotes := shipping.NewCalculator(shippingAPI, cfg.HTTPTimeout)
	counters := metrics.NewCheckout()

	machineCfg := checkout.Config{
		ReturnURL:       cfg.ReturnURL,
		CloseURL:        cfg.CloseURL,
		GatewaySecret:   cfg.GatewaySecret,
		PollInterval:    cfg.PollInterval,
		PollMaxAttempts: cfg.PollMaxAttempts,
	}
	registry := httpapi.NewRegistry(cart.NewHTTPBackend(api), func(store *cart.Store, creds auth.CredentialStore) *checkout.Machine {
		return checkout.NewMachine(checkout.Deps{
			Store:       store,
			Credentials: creds,
			Shipping:    quotes,
			Gateway:     gateway,
			Finalizer:   orders,
			Journal:     journal,
			Opener:      httpapi.WebOpener,
			Notifier:    notifier,
			Metrics:     counters,
		}, machineCfg)
	})

	return httpapi.NewRouter(httpapi.Deps{
		Registry:  registry,
		Journal:   journal,
		Addresses: address.NewHTTPBook(api),
		Orders:    orders,
		Metrics:   counters,
		Limiter:   middleware.NewRateLimiter(ctx),
	}, httpapi.Options{
		JWTSecret:     cfg.JWTSecret,
		GatewaySecret: cfg.GatewaySecret,
	})
}

// startServer serves until ctx ends, then drains in-flight requests. A
// return request may hold its connection for the whole polling window.
func startServer(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.L().Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
