package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/dashboard-cache/pkg/cache"
	"github.com/Sternrassler/dashboard-cache/pkg/invalidation"
	"github.com/Sternrassler/dashboard-cache/pkg/logging"
	"github.com/Sternrassler/dashboard-cache/pkg/monitor"
)

func main() {
	// Configuration from environment
	port := getEnv("PORT", "8080")
	redisURL := getEnv("REDIS_URL", "")
	rulesFile := getEnv("RULES_FILE", "")
	sweepInterval := getDuration("SWEEP_INTERVAL", 30*time.Second)
	summaryInterval := getDuration("SUMMARY_INTERVAL", 5*time.Minute)

	logging.Setup(logging.Config{
		Level:   logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty:  getEnv("LOG_PRETTY", "") == "true",
		Output:  os.Stderr,
		Service: "cache-admin",
	})
	logger := logging.NewLogger(logging.ComponentServer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := cache.NewManager(cache.WithSweepInterval(sweepInterval))
	responses := cache.NewResponseCache(manager, cache.DefaultConfigs()[cache.APIResponsesCache])

	opts := []invalidation.Option{invalidation.WithResponseCache(responses)}

	// Optional fan-out to other instances
	var broadcaster *invalidation.RedisBroadcaster
	if redisURL != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: redisURL,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("redis", redisURL).Msg("Failed to connect to Redis")
		}
		logger.Info().Str("redis", redisURL).Msg("Connected to Redis")

		broadcaster = invalidation.NewRedisBroadcaster(redisClient, "")
		opts = append(opts, invalidation.WithPublisher(broadcaster))
	}

	engine := invalidation.New(manager, opts...)

	if rulesFile != "" {
		rules, err := invalidation.LoadRulesFile(rulesFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to load invalidation rules")
		}
		for _, rule := range rules {
			if err := engine.AddRule(rule); err != nil {
				logger.Fatal().Err(err).Msg("Invalid invalidation rule")
			}
		}
		logger.Info().Str("file", rulesFile).Int("rules", len(rules)).Msg("Loaded invalidation rules")
	}

	if broadcaster != nil {
		go func() {
			if err := broadcaster.Run(ctx, engine); err != nil {
				logger.Error().Err(err).Msg("Invalidation fan-out stopped")
			}
		}()
	}

	users := newUserStore()
	users.seed()

	mon := monitor.New(manager)
	mon.MarkWarmup()
	go logSummaries(ctx, mon, summaryInterval)

	srv := newServer(manager, responses, engine, mon, users, logger)
	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("Starting cache admin server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	shutdown(httpServer, engine, manager, mon, logger)
}

// shutdown stops accepting requests, lets queued invalidations finish and
// stops the cache sweepers.
func shutdown(httpServer *http.Server, engine *invalidation.Engine, manager *cache.Manager, mon *monitor.Monitor, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := engine.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Invalidation engine shutdown failed")
	}
	mon.LogPerformanceSummary()
	manager.Shutdown()
	logger.Info().Msg("Cache admin server stopped")
}

func logSummaries(ctx context.Context, mon *monitor.Monitor, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mon.LogPerformanceSummary()
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDuration reads a Go duration ("30s") or a number of seconds.
func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
