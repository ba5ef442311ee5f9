package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/Skotchmaster/marketplace/internal/httpserver"
	"github.com/Skotchmaster/marketplace/internal/identity"
	"github.com/Skotchmaster/marketplace/internal/payments"
	"github.com/Skotchmaster/marketplace/internal/repo"
	"github.com/Skotchmaster/marketplace/internal/search"
	"github.com/Skotchmaster/marketplace/internal/service"
	"github.com/Skotchmaster/marketplace/pkg/config"
	pkgdb "github.com/Skotchmaster/marketplace/pkg/db"
	"github.com/Skotchmaster/marketplace/pkg/events"
	"github.com/Skotchmaster/marketplace/pkg/idpclient"
	"github.com/Skotchmaster/marketplace/pkg/logging"
	middleware "github.com/Skotchmaster/marketplace/pkg/middleware/auth"
	"github.com/Skotchmaster/marketplace/pkg/middleware/csrf"
	loggingmw "github.com/Skotchmaster/marketplace/pkg/middleware/logging"
	"github.com/Skotchmaster/marketplace/pkg/tokens"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: could not load .env: %v", err)
	}

	cfg := config.Load()
	cfg.Validate()

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := pkgdb.Open(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	if err := repo.Migrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	verifier, err := tokens.NewVerifier(cfg.SessionSecret, cfg.SessionPublicKey)
	if err != nil {
		log.Fatalf("session verifier: %v", err)
	}
	webhooks, err := identity.NewVerifier(cfg.WebhookSecret)
	if err != nil {
		log.Fatalf("webhook verifier: %v", err)
	}

	var publisher events.Publisher = events.Noop{}
	var producer *events.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = events.NewProducer(cfg.KafkaBrokers)
		publisher = producer
	} else {
		logger.Warn("kafka_disabled", "reason", "KAFKA_BROKERS not set")
	}

	var indexer search.Indexer = search.Noop{}
	var searcher search.Searcher
	if cfg.ESURL != "" {
		es, err := search.NewElastic(cfg.ESURL, cfg.ESUser, cfg.ESPassword, cfg.ESIndex)
		if err != nil {
			log.Fatalf("elasticsearch: %v", err)
		}
		indexer, searcher = es, es
	} else {
		logger.Warn("elasticsearch_disabled", "reason", "ES_URL not set, searching the database")
	}

	var emails service.EmailLookup
	if cfg.IdentityAPIKey != "" {
		emails = idpclient.NewClient(cfg.IdentityAPIURL, cfg.IdentityAPIKey)
	}

	r := &repo.GormRepo{DB: db}
	pay := payments.NewStripe(cfg.StripeSecretKey)
	compensation := service.Compensator{Attempts: cfg.CompensationAttempts, Backoff: cfg.CompensationBackoff}

	catalog := &service.CatalogService{
		Repo:         r,
		Payments:     pay,
		Events:       publisher,
		Index:        indexer,
		Search:       searcher,
		Compensation: compensation,
	}
	accounts := &service.AccountService{
		Repo:      r,
		Payments:  pay,
		Events:    publisher,
		Index:     indexer,
		Emails:    emails,
		PublicURL: cfg.PublicURL,
	}
	tags := &service.TagService{Repo: r}

	e := echo.New()
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(loggingmw.RequestLogger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{cfg.PublicURL},
		AllowCredentials: true,
	}))
	if cfg.CSRFEnabled {
		e.Use(csrf.Middleware(csrf.DefaultConfig()))
	}

	httpserver.Register(e, &httpserver.Deps{
		DB:      db,
		Session: middleware.NewSessionMiddleware(verifier),
		Catalog: &httpserver.CatalogHTTP{Svc: catalog, Tags: tags},
		Tags:    &httpserver.TagHTTP{Svc: tags},
		Checkout: &httpserver.CheckoutHTTP{Svc: &service.CheckoutService{
			Repo: r, Payments: pay, Events: publisher, Emails: emails,
			FeePercent: cfg.PlatformFeePercent, PublicURL: cfg.PublicURL,
		}},
		Requests: &httpserver.RequestHTTP{Svc: &service.RequestService{
			Repo: r, Payments: pay, Events: publisher, Emails: emails,
			FeePercent: cfg.PlatformFeePercent, PublicURL: cfg.PublicURL,
		}},
		Marketplaces: &httpserver.MarketplaceHTTP{Svc: &service.MarketplaceService{Repo: r, Events: publisher}},
		Accounts:     &httpserver.AccountHTTP{Svc: accounts},
		Webhooks:     &httpserver.WebhookHTTP{Verifier: webhooks, Svc: accounts},
		RateLimitRPS: cfg.RateLimitRPS,
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.ServerPort),
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Warn("kafka_close_failed", "error", err)
		}
	}
	pkgdb.Close(db)

	logger.Info("stopped")
}
