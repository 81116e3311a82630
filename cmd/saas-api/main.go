package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog/log"

	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/alert"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/billing"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/dedup"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/intent"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/llm"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/scheduler"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/tenant"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/core/whatsapp"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/modules/saas/handlers"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/modules/saas/repositories"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/modules/saas/services"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/shared/config"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/shared/database"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/shared/utils"

	_ "github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/cmd/saas-api/docs"
)

// @title WhatsApp Chatbot Billing API
// @version 1.0
// @description Multi-tenant WhatsApp chatbot pipeline with per-reply credit billing
// @contact.name API Support
// @license.name MIT
// @host localhost:8080
// @BasePath /
func main() {
	// Load config
	cfg := config.LoadConfig()
	utils.InitLogger(cfg.LogLevel, !cfg.IsProduction())
	logger := log.Logger

	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("🚀 Starting saas-api")

	// Init database
	db := database.NewDB(cfg.DatabaseURL, !cfg.IsProduction() && cfg.LogLevel == "debug")
	defer db.Close()

	// Init repositories (use GORM instance)
	orgRepo := repositories.NewOrganizationRepo(db.GORM)
	deviceRepo := repositories.NewDeviceRepo(db.GORM)
	chatbotRepo := repositories.NewChatbotRepo(db.GORM)
	messageRepo := repositories.NewMessageRepo(db.GORM)
	creditRepo := repositories.NewCreditRepo(db.GORM)

	// Init tenant resolver (instance -> organization -> active chatbot)
	tenantResolver := tenant.NewResolver(deviceRepo, orgRepo, chatbotRepo, logger)

	// Init WhatsApp gateway
	waService, err := whatsapp.NewService(&whatsapp.ProviderConfig{
		Type:             whatsapp.ProviderType(cfg.WhatsAppProvider),
		EvolutionBaseURL: cfg.EvolutionBaseURL,
		EvolutionAPIKey:  cfg.EvolutionAPIKey,
		WAHABaseURL:      cfg.WAHABaseURL,
		WAHAAPIKey:       cfg.WAHAAPIKey,
		Timeout:          cfg.GatewayTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to initialize WhatsApp gateway")
	}

	// Init LLM service. Without one, chatbots only answer with intents.
	var generator services.ReplyGenerator
	llmProviderName := "none"
	llmService, err := llm.NewService(&llm.ProviderConfig{
		Type:        llm.ProviderType(cfg.LLMProvider),
		OpenAIKey:   cfg.OpenAIKey,
		GeminiKey:   cfg.GeminiKey,
		GroqKey:     cfg.GroqKey,
		DeepSeekKey: cfg.DeepSeekKey,
		ClaudeKey:   cfg.ClaudeKey,
		Model:       cfg.LLMModel,
		Timeout:     cfg.LLMTimeout,
	})
	if err != nil {
		log.Warn().Err(err).Msg("⚠️ LLM service not configured, AI fallback disabled")
	} else {
		generator = llmService
		llmProviderName = llmService.GetProviderName()
	}

	// Init dedup cache (Redis, or no-op when REDIS_URL is empty)
	seen := dedup.New(cfg.RedisURL, cfg.DedupTTL)
	defer seen.Close()

	// Init alerting
	var publisher alert.Publisher
	if cfg.NATSURL != "" {
		natsPublisher, err := alert.NewNATSPublisher(alert.NATSConfig{
			Servers: strings.Split(cfg.NATSURL, ","),
			Name:    "saas-api-alerts",
		})
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ NATS unavailable, alerts are stored only")
		} else {
			publisher = natsPublisher
		}
	}
	var notifier alert.Notifier
	if n := alert.NewAdminNotifier(waService, cfg.AdminSession, cfg.AdminPhone); n != nil {
		notifier = n
		log.Info().Str("admin_phone", cfg.AdminPhone).Msg("🔔 Critical alerts go to admin WhatsApp")
	}
	alertService := alert.NewService(alert.Config{
		Buffer:        cfg.AlertBuffer,
		SubjectPrefix: cfg.AlertPrefix,
	}, alert.NewStore(db.GORM), publisher, notifier, logger)

	// Init billing
	meter := billing.NewMeter(billing.Policy{
		CharsPerToken:        cfg.CharsPerToken,
		SystemOverheadTokens: cfg.SystemOverheadTokens,
		MinChargeTokens:      cfg.MinChargeTokens,
		TokensPerCredit:      cfg.TokensPerCredit,
		MinChargeCredits:     cfg.MinChargeCredits,
	}, creditRepo, messageRepo, logger)

	// Init services
	webhookService := services.NewWebhookService(
		tenantResolver,
		messageRepo,
		deviceRepo,
		seen,
		intent.NewMatcher(),
		generator,
		meter,
		waService,
		alertService,
		services.WebhookConfig{
			FallbackReply:   cfg.FallbackReply,
			PipelineTimeout: cfg.PipelineTimeout,
		},
		logger,
	)
	reconcileService := services.NewReconcileService(messageRepo, creditRepo, alertService, services.ReconcileConfig{
		StaleAfter: cfg.PendingStaleAfter,
	}, logger)

	// Init scheduler
	sched := scheduler.NewScheduler()
	if err := sched.AddJob("reconcile-pending", cfg.ReconcileSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := reconcileService.Run(ctx); err != nil {
			log.Error().Err(err).Msg("❌ Reconciliation run failed")
		}
	}); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.ReconcileSchedule).Msg("❌ Failed to schedule reconciliation")
	}
	sched.Start()

	log.Info().
		Str("gateway", waService.GetProviderName()).
		Str("llm", llmProviderName).
		Bool("redis", cfg.RedisURL != "").
		Bool("nats", publisher != nil).
		Msg("📱 Pipeline ready")

	// Init Fiber app
	app := fiber.New(fiber.Config{
		AppName: "WhatsApp Chatbot Billing API",
	})

	// Middleware
	app.Use(cors.New())

	handlers.Handlers{
		Health:  handlers.NewHealthHandler(db.DB, waService.GetProviderName(), llmProviderName),
		Webhook: handlers.NewWebhookHandler(webhookService, alertService),
		Alerts:  handlers.NewAlertHandler(alertService),
		Billing: handlers.NewBillingHandler(creditRepo),
		Chatbot: handlers.NewChatbotHandler(chatbotRepo),
		Devices: handlers.NewDeviceHandler(waService, deviceRepo),
	}.Register(app)

	go func() {
		log.Info().Msgf("✅ saas-api running at :%s", cfg.Port)
		log.Info().Msgf("📄 Swagger UI: http://localhost:%s/swagger/", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatal().Err(err).Msg("❌ Server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("🛑 Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Error().Err(err).Msg("❌ HTTP shutdown failed")
	}
	sched.Stop(ctx)
	webhookService.Wait()
	if err := alertService.Close(ctx); err != nil {
		log.Error().Err(err).Msg("❌ Alert flush failed")
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("⚠️ NATS close failed")
		}
	}

	log.Info().Msg("👋 saas-api stopped")
}
