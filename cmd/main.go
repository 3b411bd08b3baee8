package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"account_service/internal/accounts"
	"account_service/internal/config"
	"account_service/internal/http_server/handlers/exists"
	"account_service/internal/http_server/handlers/login"
	"account_service/internal/http_server/handlers/refresh"
	"account_service/internal/http_server/handlers/signup"
	"account_service/internal/http_server/handlers/verifyaccount"
	"account_service/internal/lib/jwt"
	"account_service/internal/lib/passhash"
	"account_service/internal/models"
	"account_service/internal/rabbitmq"
	"account_service/internal/storage/postgres"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator/v10"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad("./config/config.yaml")

	log := setupLogger(cfg.Env)

	log.Info("starting account service", slog.String("env", cfg.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("shutdown signal received")
		cancel()
	}()

	storage, err := postgres.New(ctx, cfg)
	if err != nil {
		log.Error("failed to connect postgres", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer storage.Close()

	msgBroker, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		log.Error("failed to connect rabbitmq", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer msgBroker.Close()

	hasher := passhash.New(cfg.Auth.BcryptCost)
	tokens := jwt.New(cfg.Tokens.Secret, cfg.Tokens.AccessTokenTTL)

	newService := func(kind models.Kind) *accounts.Accounts {
		repo := storage.Accounts(kind)
		return accounts.New(log, repo, repo, repo, msgBroker, hasher, tokens, kind, cfg.Auth.AccessCodeTTL)
	}

	adminService := newService(models.KindAdmin)
	staffService := newService(models.KindStaff)

	router := setupRouter(log, adminService, staffService)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", slog.String("err", err.Error()))
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", slog.String("err", err.Error()))
	} else {
		log.Info("server stopped gracefully")
	}
}

func setupRouter(
	log *slog.Logger,
	adminService *accounts.Accounts,
	staffService *accounts.Accounts,
) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	validate := validator.New()

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"we're live"}`))
	})

	// admin group at the root, staff mounted under /staff; the two
	// groups expose identical shapes over separate namespaces.
	mountGroup(r, validate, log, adminService, true)

	r.Route("/staff", func(r chi.Router) {
		mountGroup(r, validate, log, staffService, false)
	})

	return r
}

func mountGroup(
	r chi.Router,
	validate *validator.Validate,
	log *slog.Logger,
	svc *accounts.Accounts,
	requireCredentials bool,
) {
	r.Post("/signup", signup.New(log, validate, svc, requireCredentials))
	r.Post("/verify-account", verifyaccount.New(log, validate, svc))
	r.Post("/login", login.New(log, validate, svc))
	r.Get("/check-user-exists", exists.New(log, svc))
	r.Post("/refresh-token", refresh.New(log, validate, svc))
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
