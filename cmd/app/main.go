// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studio-sync-engine/internal/application"
	"studio-sync-engine/internal/config"
	"studio-sync-engine/internal/domain/ports/adapter"
	studio "studio-sync-engine/internal/infra/adapters/studio"
	tele "studio-sync-engine/internal/infra/adapters/telegram"
	pg "studio-sync-engine/internal/infra/db/postgres"
	"studio-sync-engine/internal/infra/i18n"
	"studio-sync-engine/internal/infra/logging"
	"studio-sync-engine/internal/infra/metrics"
	red "studio-sync-engine/internal/infra/redis"
	"studio-sync-engine/internal/infra/sched"
	"studio-sync-engine/internal/infra/security"
	"studio-sync-engine/internal/infra/web"
	"studio-sync-engine/internal/infra/worker"
	"studio-sync-engine/internal/usecase"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, lax cookies)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Runtime.Dev {
		log.Printf("[DEV MODE] Enabled")
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	historyCache := red.NewHistoryCache(redisClient, cfg.History.CacheTTL)
	sessionStates := red.NewSessionStore(redisClient)
	submitGuard := red.NewSubmitGuard(redisClient)
	pushStreams := red.NewPushStream(redisClient, logger)

	// ---- Encryption ----
	encKey := cfg.Security.EncryptionKey
	if len(encKey) != 16 && len(encKey) != 24 && len(encKey) != 32 {
		log.Printf("WARNING: security.encryption_key not set or wrong length; falling back to dev key (INSECURE)")
		encKey = "0123456789abcdef0123456789abcdef"
	}
	cipher, err := security.NewContentCipher(encKey)
	if err != nil {
		log.Fatalf("content cipher: %v", err)
	}

	// ---- Repositories ----
	historyRepo := pg.NewHistoryRepo(pool, cipher, cfg.History.Keep)
	txm := pg.NewTxManager(pool)

	// ---- Studio API ----
	studioClient, err := studio.NewClient(&cfg.Studio)
	if err != nil {
		log.Fatalf("studio client: %v", err)
	}
	blobs, err := studio.NewBlobStore(&cfg.Studio)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	// ---- Background delivery workers ----
	wpool := worker.NewPool(8, logger)
	wpool.Start(ctx)

	// ---- Presentation fanout ----
	hub := web.NewHub(logger)
	var notifier adapter.Notifier
	if cfg.Notify.Enabled {
		tr, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Notify.Lang)
		if err != nil {
			log.Fatalf("notice locale %q: %v", cfg.Notify.Lang, err)
		}
		n, err := tele.NewNotifier(cfg.Notify.TelegramToken, tr, logger)
		if err != nil {
			log.Fatalf("telegram notifier: %v", err)
		}
		notifier = n
		log.Printf("offline notices: telegram (%s)", cfg.Notify.Lang)
	} else {
		notifier = tele.NewNoopNotifier()
	}
	fanout := application.NewPresenterFanout(hub, notifier, logger)

	// ---- Use cases ----
	historyUC := usecase.NewHistoryUseCase(historyRepo, historyCache, txm, cfg.History.PageLimit)
	accountUC := usecase.NewAccountUseCase(studioClient, fanout)
	catalogUC := usecase.NewCatalogUseCase(studioClient, cfg.Studio.VoicesTTL)
	delivery, err := usecase.NewResultDelivery(studioClient, blobs, historyUC, wpool, cfg.Studio.SpoolDir, cfg.Studio.BlobBucket, logger)
	if err != nil {
		log.Fatalf("result delivery: %v", err)
	}

	// ---- Session manager ----
	manager := application.NewSessionManager(
		ctx, cfg.Sync,
		studioClient, delivery, historyUC, accountUC,
		submitGuard, sessionStates, pushStreams, fanout,
		logger,
	)

	// ---- Gateway ----
	auth := web.NewAuthManager(cfg.Gateway.SessionSecret, !cfg.Runtime.Dev, "", cfg.Gateway.SessionTTL)
	srv := web.NewServer(cfg.Gateway, manager, catalogUC, accountUC, delivery, hub, auth, notifier, logger)
	go func() {
		if err := srv.Start(); err != nil {
			log.Printf("gateway error: %v", err)
		}
	}()

	// ---- Maintenance worker ----
	maint, err := sched.NewMaintenanceWorker(cfg.Maintenance, cfg.History.Retention, historyUC, delivery, manager, logger)
	if err != nil {
		log.Fatalf("maintenance worker: %v", err)
	}
	go func() { _ = maint.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	log.Println("shutdown requested")

	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	if err := srv.Shutdown(shCtx); err != nil {
		log.Printf("gateway shutdown: %v", err)
	}
	// Engines persist their pending snapshots on Close, so the manager goes
	// down before the contexts it persists through are canceled.
	manager.Close()
	cancel()
	wpool.Stop()
	if err := redisClient.Close(); err != nil {
		log.Printf("redis close: %v", err)
	}
}
