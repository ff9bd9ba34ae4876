package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/mbt1/LanguageLearnApp/internal/auth"
	"github.com/mbt1/LanguageLearnApp/internal/config"
	httpserver "github.com/mbt1/LanguageLearnApp/internal/http_server"
	"github.com/mbt1/LanguageLearnApp/internal/mailer"
	"github.com/mbt1/LanguageLearnApp/internal/passkeys"
	"github.com/mbt1/LanguageLearnApp/internal/passkeys/challenge"
	"github.com/mbt1/LanguageLearnApp/internal/rabbitmq"
	"github.com/mbt1/LanguageLearnApp/internal/session"
	"github.com/mbt1/LanguageLearnApp/internal/storage/postgres"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad("./config/config.yaml")

	log := setupLogger(cfg.Env)

	log.Info("starting auth service", slog.String("env", cfg.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("Shutdown signal received")
		cancel()
	}()

	storage, err := postgres.New(ctx, cfg)
	if err != nil {
		log.Error("failed to connect postgres", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer storage.Close()

	emailSender, closeSender, err := setupEmailSender(cfg, log)
	if err != nil {
		log.Error("failed to connect rabbitmq", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer closeSender()

	issuer := session.NewIssuer(
		cfg.Tokens.Secret,
		cfg.Tokens.Algorithm,
		cfg.Tokens.AccessTokenTTL,
		cfg.Tokens.RefreshTokenTTL,
	)

	authService, err := auth.New(
		log,
		storage,
		issuer,
		emailSender,
		cfg.Tokens.BcryptCost,
		cfg.Tokens.VerificationTokenTTL,
		cfg.WebAuthn.RPOrigin,
	)
	if err != nil {
		log.Error("failed to init auth service", slog.String("err", err.Error()))
		os.Exit(1)
	}

	web, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.WebAuthn.RPID,
		RPDisplayName: cfg.WebAuthn.RPName,
		RPOrigins:     []string{cfg.WebAuthn.RPOrigin},
	})
	if err != nil {
		log.Error("failed to init webauthn", slog.String("err", err.Error()))
		os.Exit(1)
	}

	passkeyService := passkeys.New(
		log,
		storage,
		web,
		challenge.New(cfg.WebAuthn.ChallengeTTL),
		issuer,
	)

	router := httpserver.NewRouter(log, cfg, authService, passkeyService)

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
			log.Error("Server failed", slog.String("err", err.Error()))
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", slog.String("err", err.Error()))
	} else {
		log.Info("Server stopped gracefully")
	}

	log.Info("Main service stopped")
}

// setupEmailSender picks the delivery transport: the local env logs
// verification links, everything else publishes to RabbitMQ.
func setupEmailSender(cfg *config.Config, log *slog.Logger) (auth.EmailSender, func(), error) {
	if cfg.Env == envLocal {
		return mailer.NewConsole(log), func() {}, nil
	}

	msgBroker, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		return nil, nil, err
	}

	return msgBroker, msgBroker.Close, nil
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
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
