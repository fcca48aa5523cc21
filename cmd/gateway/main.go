package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Abraxas-365/craftable/logx"

	"github.com/mygads/govconnect-channelgateway/api"
	"github.com/mygads/govconnect-channelgateway/bus"
	"github.com/mygads/govconnect-channelgateway/forwarder"
	"github.com/mygads/govconnect-channelgateway/ingest"
	"github.com/mygads/govconnect-channelgateway/livechat"
	"github.com/mygads/govconnect-channelgateway/pkg/config"
	"github.com/mygads/govconnect-channelgateway/pkg/database"
	"github.com/mygads/govconnect-channelgateway/pkg/kernel"
	"github.com/mygads/govconnect-channelgateway/provider"
	"github.com/mygads/govconnect-channelgateway/sessionmgr"
	"github.com/mygads/govconnect-channelgateway/spamguard"
	"github.com/mygads/govconnect-channelgateway/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logx.Info("gateway: starting, environment=%s", cfg.Server.Environment)

	db, err := database.NewPostgresDB(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer database.CloseDB(db)

	redisClient, err := database.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer database.CloseRedis(redisClient)

	s3Client := database.NewS3Client()

	st := store.NewPostgresStore(db)
	tokenCache := sessionmgr.NewTokenCache(redisClient)
	resolveToken := sessionmgr.NewTokenResolver(st, tokenCache)

	providerClient := provider.NewClient(cfg.Provider, resolveToken)
	sessionManager := sessionmgr.NewManager(st, providerClient, tokenCache, cfg.Provider, cfg.Server.PublicBaseURL)

	guard := spamguard.New(spamguard.Config{
		Enabled:         cfg.Spam.Enabled,
		MaxIdentical:    cfg.Spam.MaxIdentical,
		BanDuration:     cfg.Spam.BanDuration,
		RateMaxMessages: cfg.Spam.RateMaxMessages,
		RateWindow:      cfg.Spam.RateWindow,
		GCInterval:      cfg.Spam.GCInterval,
		InFlightMaxAge:  cfg.Spam.InFlightMaxAge,
	})
	stopGuardGC := guard.StartGC()
	defer stopGuardGC()

	mediaStore := ingest.NewMediaStore(s3Client, cfg.Media)

	busClient := bus.NewClient(cfg.Bus, cfg.Bus.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := busClient.Connect(ctx); err != nil {
		cancel()
		log.Fatalf("failed to connect to bus: %v", err)
	}
	cancel()

	fwd := forwarder.New(busClient, st, providerClient, guard, cfg.Internal)

	ingestService := ingest.NewService(st, guard, mediaStore, fwd, kernel.VillageID(cfg.Provider.DefaultVillageID))
	ingestHandler := ingest.NewHandler(ingestService, cfg.Provider.WebhookVerifyToken)

	liveChatService := livechat.NewService(st, providerClient, fwd)

	startCtx, startCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := busClient.Start(startCtx); err != nil {
		startCancel()
		log.Fatalf("failed to start bus consumers: %v", err)
	}
	startCancel()

	stopJanitor := startPendingJanitor(st, cfg.Internal)
	defer stopJanitor()

	deps := &api.Dependencies{
		Store:      st,
		Bus:        busClient,
		Provider:   providerClient,
		SessionMgr: sessionManager,
		Ingest:     ingestHandler,
		LiveChat:   liveChatService,
		Media:      mediaStore,
		Internal:   cfg.Internal,
	}
	app := api.NewApp(cfg, deps)

	go func() {
		addr := ":" + cfg.Server.Port
		logx.Info("gateway: listening on %s", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logx.Info("gateway: shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logx.Error("gateway: error during HTTP shutdown: %v", err)
	}
	if err := busClient.Close(); err != nil {
		logx.Error("gateway: error closing bus: %v", err)
	}

	logx.Info("gateway: stopped")
}

// startPendingJanitor deletes, on a fixed interval, pending-message rows
// in the completed or failed state whose last update is older than
// cfg.PendingMaxAge. Rows still pending or processing are left alone.
func startPendingJanitor(st store.Store, cfg config.InternalConfig) func() {
	ticker := time.NewTicker(cfg.PendingJanitorEvery)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				n, err := st.JanitorSweepPending(ctx, cfg.PendingMaxAge)
				cancel()
				if err != nil {
					logx.Error("gateway: pending janitor sweep failed: %v", err)
					continue
				}
				if n > 0 {
					logx.Info("gateway: pending janitor swept %d stale rows", n)
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() { close(done) }
}
