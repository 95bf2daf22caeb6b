package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Davidrsdiaz/Hyperliquid-TWAP-API-Open-Source/internal/app"
	"github.com/Davidrsdiaz/Hyperliquid-TWAP-API-Open-Source/internal/config"
	"github.com/Davidrsdiaz/Hyperliquid-TWAP-API-Open-Source/internal/logging"
	"github.com/Davidrsdiaz/Hyperliquid-TWAP-API-Open-Source/internal/metrics"
	"github.com/Davidrsdiaz/Hyperliquid-TWAP-API-Open-Source/internal/storage/postgres"
	transporthttp "github.com/Davidrsdiaz/Hyperliquid-TWAP-API-Open-Source/internal/transport/http"
	"github.com/Davidrsdiaz/Hyperliquid-TWAP-API-Open-Source/migrations"
)

const shutdownTimeout = 10 * time.Second

func main() {
	config.LoadDotEnv()
	logger := logging.New("api")
	cfg := config.LoadAPI()
	metrics.Register()

	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(startupCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to db")
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		logger.Fatal().Err(err).Msg("db ping")
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}

	snapshotRepo := postgres.NewSnapshotRepository(pool)
	ingestLogRepo := postgres.NewIngestLogRepository(pool)
	querySvc := app.NewQueryService(snapshotRepo)

	router := transporthttp.NewRouter(querySvc, ingestLogRepo)
	handler := transporthttp.RequestLogger(
		transporthttp.CORS(parseCSV(cfg.CORSOrigins), router),
		logger,
	)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	logger.Info().Str("port", cfg.Port).Msg("api listening")

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
		}
	case <-stopCtx.Done():
		logger.Info().Msg("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("server shutdown error")
	}
	logger.Info().Msg("server stopped")
}

func parseCSV(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
