package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agyntsynq/internal/config"
	"agyntsynq/internal/embed"
	"agyntsynq/internal/infrastructure"
	httpapi "agyntsynq/internal/interfaces/http"
	"agyntsynq/internal/logger"
	"agyntsynq/internal/repository"
	"agyntsynq/internal/usecases"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
	log.Info().Msg("server exited cleanly")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	pg, err := infrastructure.NewPostgresClient(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pg.Close()

	if err := pg.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	chatbotRepo := repository.NewChatbotRepository(pg.Pool)
	leadRepo := repository.NewLeadRepository(pg.Pool)
	userRepo := repository.NewUserRepository(pg.Pool)
	usageRepo := repository.NewUsageRepository(pg.Pool)

	limiter := infrastructure.NewMessageRateLimiter(cfg.SessionSendRate, cfg.SessionSendBurst)
	go limiter.Run(ctx)

	telegram := infrastructure.NewTelegramClient(cfg.TelegramBotToken, log)

	widgetService := usecases.NewWidgetService(usecases.WidgetDeps{
		Chatbots: chatbotRepo,
		Sessions: repository.NewSessionRepository(pg.Pool),
		Leads:    leadRepo,
		Messages: repository.NewMessageRepository(pg.Pool),
		Usage:    usageRepo,
		Notifier: usecases.NewTenantNotifier(telegram),
		Guard:    infrastructure.NewSessionGuard(),
		Limiter:  limiter,
	}, log)
	chatbotUsecase := usecases.NewChatbotUsecase(chatbotRepo, leadRepo, usageRepo, widgetService)

	authUsecase := usecases.NewAuthUsecase(userRepo, cfg.JWTSecret)
	if cfg.AdminPassword != "" {
		if err := authUsecase.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
			log.Warn().Err(err).Msg("failed to ensure admin user")
		}
	}

	listener := infrastructure.NewTelegramListener(telegram, widgetService.ReplyFromTelegram, log)
	go listener.Run(ctx)
	defer listener.Stop()

	generator, err := embed.NewGenerator(embed.DefaultTiming())
	if err != nil {
		return fmt.Errorf("load widget runtime: %w", err)
	}

	proxies, err := embed.ParseProxies(cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("parse TRUSTED_PROXIES: %w", err)
	}

	middleware := httpapi.NewMiddleware(cfg.JWTSecret)
	go sweepLimiters(ctx, middleware, log)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	httpapi.SetupRoutes(r, httpapi.Deps{
		Widget:           widgetService,
		Chatbots:         chatbotUsecase,
		Auth:             authUsecase,
		Generator:        generator,
		ValidateTelegram: infrastructure.ValidateTelegramToken,
		Ping:             pg.Pool.Ping,
		Middleware:       middleware,
		APIBase:          cfg.WidgetAPIBase,
		Proxies:          proxies,
		CORSOrigin:       cfg.CORSOrigins,
		RPS:              cfg.RateLimitRPS,
		Burst:            cfg.RateLimitBurst,
		Log:              log,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// sweepLimiters drops per-IP limiters that have been idle for a while.
func sweepLimiters(ctx context.Context, m *httpapi.Middleware, log zerolog.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.SweepLimiters(10 * time.Minute); n > 0 {
				log.Debug().Int("removed", n).Msg("swept idle ip limiters")
			}
		}
	}
}

func loadEnvFiles() {
	for _, path := range []string{".env", "../.env"} {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
