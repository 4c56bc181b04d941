package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/serenai/emotion-ai-platform/cmd/mainconfig"
	"github.com/serenai/emotion-ai-platform/internal/alerts"
	"github.com/serenai/emotion-ai-platform/internal/analysis"
	"github.com/serenai/emotion-ai-platform/internal/api/router"
	"github.com/serenai/emotion-ai-platform/internal/audit"
	appconfig "github.com/serenai/emotion-ai-platform/internal/config"
	"github.com/serenai/emotion-ai-platform/internal/conversation"
	"github.com/serenai/emotion-ai-platform/internal/inference"
	"github.com/serenai/emotion-ai-platform/internal/notify"
	"github.com/serenai/emotion-ai-platform/internal/observability/metrics"
	"github.com/serenai/emotion-ai-platform/internal/risk"
	"github.com/serenai/emotion-ai-platform/pkg/logging"
)

func main() {
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting emotion-ai-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"provider", cfg.LLMProvider,
	)

	llm, transcriber, err := buildInference(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize inference provider", "error", err)
		os.Exit(1)
	}
	gateway := inference.NewGateway(llm, transcriber, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	pipelineMetrics := metrics.NewPipelineMetrics(registry)

	// Reactors must be registered before the server accepts traffic so no
	// event can slip past them.
	dispatcher := risk.NewDispatcher(logger, pipelineMetrics)

	var channel alerts.NotificationChannel
	sender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger)
	if sender != nil {
		if emailChannel := alerts.NewEmailChannel(sender, cfg.AlertEmailTo, logger); emailChannel != nil {
			channel = emailChannel
			logger.Info("critical alerts will be emailed", "to", cfg.AlertEmailTo)
		}
	}
	alertReactor := alerts.NewReactor(channel, logger, pipelineMetrics)
	trail := audit.NewTrailWriter(cfg.AuditTrailPath, logger)
	dispatcher.Register(alertReactor)
	dispatcher.Register(trail)

	var history conversation.Store
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		history = conversation.NewRedisStore(redis.NewClient(opts), nil)
		logger.Info("conversation history backed by redis", "addr", cfg.RedisAddr)
	} else {
		history = conversation.NewMemoryStore()
		logger.Warn("REDIS_ADDR not set, conversation history is in-memory only")
	}

	service := analysis.NewService(analysis.Deps{
		Gateway:    gateway,
		Dispatcher: dispatcher,
		Alerts:     alertReactor,
		Trail:      trail,
		History:    history,
		Metrics:    pipelineMetrics,
		Logger:     logger,
	})

	r := router.New(&router.Config{
		Logger:             logger,
		AnalysisHandler:    analysis.NewHandler(service, logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// buildInference assembles the configured LLM provider, an optional fallback
// provider, and the audio transcriber.
func buildInference(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (inference.LLMClient, inference.Transcriber, error) {
	if logger == nil {
		logger = logging.Default()
	}
	primary, transcriber, err := buildProvider(ctx, cfg, logger, cfg.LLMProvider)
	if err != nil {
		return nil, nil, err
	}

	if cfg.FallbackLLMProvider != "" && cfg.FallbackLLMProvider != cfg.LLMProvider {
		fallback, _, err := buildProvider(ctx, cfg, logger, cfg.FallbackLLMProvider)
		if err != nil {
			logger.Warn("fallback provider unavailable, continuing without it",
				"provider", cfg.FallbackLLMProvider,
				"error", err,
			)
		} else {
			primary = inference.NewFallbackClient(primary, fallback, logger)
			logger.Info("fallback provider configured", "provider", cfg.FallbackLLMProvider)
		}
	}

	return primary, transcriber, nil
}

// buildProvider returns the provider's chat client and, for Groq, the Whisper
// transcriber that rides on the same credentials.
func buildProvider(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, provider string) (inference.LLMClient, inference.Transcriber, error) {
	switch strings.ToLower(provider) {
	case "groq":
		client, err := inference.NewGroqClient(inference.GroqConfig{
			BaseURL:        cfg.GroqBaseURL,
			APIKey:         cfg.GroqAPIKey,
			ModelID:        cfg.GroqModelID,
			WhisperModelID: cfg.GroqWhisperModelID,
			Language:       cfg.TranscriptionLanguage,
			Timeout:        cfg.GroqTimeout,
			Logger:         logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	case "gemini":
		client, err := inference.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, nil, err
		}
		return client, nil, nil
	case "bedrock":
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		client, err := inference.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID)
		if err != nil {
			return nil, nil, err
		}
		return client, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
}
