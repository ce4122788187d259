package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/beautivo/be-plt-auth/internal/config"
	"github.com/beautivo/be-plt-auth/internal/handler"
	"github.com/beautivo/be-plt-auth/internal/notification"
	"github.com/beautivo/be-plt-auth/internal/otp"
	"github.com/beautivo/be-plt-auth/internal/repository"
	"github.com/beautivo/be-plt-auth/internal/service"
	jwtpkg "github.com/beautivo/be-plt-auth/pkg/jwt"
)

const expiredTokenSweepInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().
		Timestamp().
		Str("service", "auth-service").
		Logger()

	// Initialize database connection
	log.Info().Msg("Connecting to database")
	dbPool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Database connection established")

	// Initialize JWT manager
	jwtManager, err := jwtpkg.NewManager(jwtpkg.Config{
		AccessSecret:    cfg.AccessTokenSecret,
		RefreshSecret:   cfg.RefreshTokenSecret,
		TempSecret:      cfg.TempTokenSecret,
		AccessLifetime:  cfg.AccessTokenLifetime,
		RefreshLifetime: cfg.RefreshTokenLifetime,
		TempLifetime:    cfg.TempTokenLifetime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create JWT manager")
	}

	// OTP challenge state: process-local by default, Redis-backed when a
	// shared store is configured.
	var challenges otp.ChallengeStore
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ping redis")
		}
		defer redisClient.Close()
		challenges = otp.NewRedisStore(redisClient)
		log.Info().Str("addr", cfg.RedisAddr).Msg("Using Redis OTP challenge store")
	} else {
		challenges = otp.NewMemoryStore()
		log.Info().Msg("Using in-memory OTP challenge store")
	}

	// Initialize repositories
	shopRepo := repository.NewShopRepository(dbPool, log)
	staffRepo := repository.NewStaffRepository(dbPool, log)
	customerRepo := repository.NewCustomerRepository(dbPool, log)
	roleRepo := repository.NewRoleRepository(dbPool, log)
	tokenRepo := repository.NewTokenRepository(dbPool, log)

	// Initialize notification gateway
	gateway := notification.NewEmailGateway(notification.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}, log)

	// Initialize service and handler
	authService := service.NewAuthService(
		shopRepo, staffRepo, customerRepo, roleRepo, tokenRepo,
		challenges, gateway, jwtManager,
		cfg.BcryptRounds, cfg.IsDevelopment(), log,
	)
	httpHandler := handler.NewHTTPHandler(authService, log)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      httpHandler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Sweep expired refresh tokens in the background.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(expiredTokenSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				if _, err := tokenRepo.DeleteExpired(sweepCtx); err != nil {
					log.Error().Err(err).Msg("Expired token sweep failed")
				}
			}
		}
	}()

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down gracefully...")
	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
