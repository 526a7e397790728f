package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/credisol/paywebhook/internal/audit"
	"github.com/credisol/paywebhook/internal/catalog"
	"github.com/credisol/paywebhook/internal/config"
	"github.com/credisol/paywebhook/internal/courtesy"
	"github.com/credisol/paywebhook/internal/handlers"
	"github.com/credisol/paywebhook/internal/i18n"
	"github.com/credisol/paywebhook/internal/ledger"
	"github.com/credisol/paywebhook/internal/middleware"
	"github.com/credisol/paywebhook/internal/providers"
	"github.com/credisol/paywebhook/store"
)

func main() {
	_ = config.LoadEnvFile("config.env")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()

	cat, err := catalog.New(cfg.CreditPacks, cfg.UnlimitedPacks)
	if err != nil {
		log.Fatalf("Invalid benefit catalog: %v", err)
	}

	rdb, err := store.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, "paywebhook")
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()
	seenStore := store.NewRedisSeenStore(rdb, cfg.SettledCacheTTL)

	pgStore, err := store.NewPostgresStore(ctx, cfg.PostgresDSN, cfg.ProcessingTTL)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pgStore.Close()

	var notifier audit.Notifier
	tg, err := audit.NewTelegramNotifier(cfg.AuditBotToken, cfg.AuditChatID)
	if err != nil {
		log.Printf("Warning: audit Telegram notifier disabled: %v", err)
	} else if tg != nil {
		notifier = tg
	}
	trail := audit.NewTrail(audit.Config{Workers: cfg.AuditWorkers, Notifier: notifier})
	trail.Start()
	defer trail.Stop()

	bonus := courtesy.NewPolicy(courtesy.Mode(cfg.CourtesyMode), cfg.FlatBonus)
	ldgr := ledger.New(pgStore, cat, bonus,
		ledger.WithSettledCache(seenStore),
		ledger.WithAuditSink(trail),
	)

	registry := providers.NewRegistry(
		providers.NewMercadoPago(cfg.MercadoPagoAccessToken),
		providers.NewFlow(cfg.FlowAPIKey, cfg.FlowSecretKey),
	)
	if enabled := registry.Enabled(); len(enabled) == 0 {
		log.Printf("Warning: no checkout provider configured; webhook processing still active")
	} else {
		log.Printf("Checkout providers enabled: %v", enabled)
	}

	h := handlers.NewHandlers(ldgr, registry, i18n.Parse(cfg.DefaultLang))

	app := fiber.New(fiber.Config{
		AppName:      "paywebhook",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	})
	app.Use(middleware.RequestLogger())
	h.RegisterRoutes(app)

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	log.Printf("Listening on %s", cfg.ListenAddr)
	if err := app.Listen(cfg.ListenAddr); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}
