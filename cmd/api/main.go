package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"dealerhub-api/internal/cache"
	"dealerhub-api/internal/config"
	"dealerhub-api/internal/crypto"
	"dealerhub-api/internal/handler"
	"dealerhub-api/internal/inventory"
	"dealerhub-api/internal/middleware"
	"dealerhub-api/internal/model"
	"dealerhub-api/internal/repository"
	"dealerhub-api/internal/router"
	"dealerhub-api/internal/service"

	"gopkg.in/natefinch/lumberjack.v2"
)

// listingStore is what the sync pipeline needs from the listing database.
type listingStore interface {
	repository.ListingRepository
	repository.JobQueue
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Load configuration
	cfg := config.MustLoad()

	if cfg.Log.File != "" {
		log.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAgeDays,
			Compress:   cfg.Log.Compress,
		}))
	}

	log.Printf("Starting %s v%s...", cfg.App.Name, cfg.App.Version)
	log.Printf("Environment: %s", cfg.App.Environment)

	ctx := context.Background()
	checks := make(map[string]handler.Pinger)

	// SQLite is opened lazily and shared between the credential and listing stores
	var sqliteDB *sql.DB
	openSQLite := func() *sql.DB {
		if sqliteDB == nil {
			db, err := repository.OpenSQLite(cfg.ListingDB.Path)
			if err != nil {
				log.Fatalf("Failed to initialize SQLite: %v", err)
			}
			sqliteDB = db
			checks["sqlite"] = db
		}
		return sqliteDB
	}

	// Credential repository
	var credRepo repository.CredentialRepository
	switch cfg.CredentialDB.Type {
	case "mysql":
		db, err := repository.OpenMySQL(ctx, cfg.CredentialDB.MySQLDSN())
		if err != nil {
			log.Fatalf("Failed to initialize MySQL: %v", err)
		}
		defer db.Close()
		mysqlRepo := repository.NewMySQLCredentialRepository(db)
		if err := mysqlRepo.Migrate(ctx); err != nil {
			log.Fatalf("Failed to migrate MySQL: %v", err)
		}
		credRepo = mysqlRepo
		checks["mysql"] = db
		log.Println("MySQL credential repository initialized")
	default: // sqlite
		sqliteRepo, err := repository.NewSQLiteCredentialRepository(openSQLite())
		if err != nil {
			log.Fatalf("Failed to initialize SQLite credentials: %v", err)
		}
		credRepo = sqliteRepo
		log.Println("SQLite credential repository initialized")
	}

	// Listing repository and job queue
	var listings listingStore
	switch cfg.ListingDB.Type {
	case "postgres", "postgresql":
		pgRepo, err := repository.NewPostgresListingRepository(cfg.ListingDB.PostgresDSN())
		if err != nil {
			log.Fatalf("Failed to initialize PostgreSQL: %v", err)
		}
		defer pgRepo.Close()
		listings = pgRepo
		checks["postgres"] = pgRepo
		log.Println("PostgreSQL listing repository initialized")
	default: // sqlite
		sqliteRepo, err := repository.NewSQLiteListingRepository(openSQLite())
		if err != nil {
			log.Fatalf("Failed to initialize SQLite listings: %v", err)
		}
		listings = sqliteRepo
		log.Println("SQLite listing repository initialized")
	}
	if sqliteDB != nil {
		defer sqliteDB.Close()
	}

	cipher, err := crypto.NewAESCipher(cfg.Crypto.SecretKey)
	if err != nil {
		log.Fatalf("Failed to initialize credential cipher: %v", err)
	}

	// Inventory sources
	profiles := []inventory.Profile{
		inventory.MobileDeProfile(cfg.Inventory.MobileDeBaseURL),
		inventory.AutoScout24Profile(cfg.Inventory.AutoScout24BaseURL),
	}
	sources := make(inventory.Registry, len(profiles))
	detailPages := make(map[model.Provider]string, len(profiles))
	for _, p := range profiles {
		src, err := inventory.NewHTTPSource(p, inventory.HTTPOptions{
			Timeout:   cfg.Inventory.Timeout,
			UserAgent: cfg.Inventory.UserAgent,
		})
		if err != nil {
			log.Fatalf("Failed to initialize %s source: %v", p.Provider, err)
		}
		sources[p.Provider] = src
		detailPages[p.Provider] = p.DetailPageURL
	}

	// In-flight guard
	var guard cache.Guard
	switch cfg.Cache.GuardType {
	case "redis":
		redisGuard, err := cache.NewRedisGuard(cache.RedisGuardConfig{
			Addr:      cfg.Cache.RedisAddress(),
			Password:  cfg.Cache.RedisPassword,
			DB:        cfg.Cache.RedisDB,
			KeyPrefix: cfg.Cache.KeyPrefix,
			LeaseTTL:  cfg.Cache.LeaseTTL,
		})
		if err != nil {
			log.Fatalf("Failed to initialize Redis guard: %v", err)
		}
		defer redisGuard.Close()
		guard = redisGuard
		checks["redis"] = handler.PingFunc(redisGuard.Ping)
		log.Println("Redis sync guard initialized")
	default:
		memGuard := cache.NewMemoryGuard(cfg.Cache.LeaseTTL)
		defer memGuard.Close()
		guard = memGuard
		log.Println("In-memory sync guard initialized")
	}

	// Services
	fanout := service.NewFanoutBuilder(cfg.Sync.Platforms, detailPages)
	syncService := service.NewSyncService(credRepo, listings, cipher, sources, fanout, service.SyncConfig{
		PageSize: cfg.Sync.PageSize,
		MaxPages: cfg.Sync.MaxPages,
	})
	credentialService := service.NewCredentialService(credRepo, cipher)
	trigger := service.NewBackgroundTrigger(syncService, credRepo, guard, service.TriggerConfig{
		MinInterval: cfg.Sync.BackgroundMinInterval,
		Timeout:     cfg.Sync.Timeout,
	})

	var scheduler *service.SyncScheduler
	if cfg.Sync.SchedulerEnabled {
		workers := []service.BatchWorker{
			service.NewBacklogReporter(listings),
			service.NewJobPruner(listings, service.PruneConfig{
				Retention: cfg.Sync.JobRetention,
				Interval:  cfg.Sync.PruneInterval,
			}),
		}
		scheduler = service.NewSyncScheduler(credRepo, trigger, service.SchedulerConfig{
			TickInterval:   cfg.Sync.TickInterval,
			ResyncInterval: cfg.Sync.ResyncInterval,
			Providers:      model.Providers,
		}, workers...)
		if err := scheduler.Start(); err != nil {
			log.Fatalf("Failed to start sync scheduler: %v", err)
		}
	}

	// Handlers
	adminInfo := handler.AdminInfo{
		CredentialDB: cfg.CredentialDB.Type,
		ListingDB:    cfg.ListingDB.Type,
		GuardType:    cfg.Cache.GuardType,
	}
	var sweeper handler.Sweeper
	if scheduler != nil {
		sweeper = scheduler
	}

	r := router.New(router.Config{
		Handler:           handler.New(checks),
		InventoryHandler:  handler.NewInventoryHandler(trigger, syncService),
		CredentialHandler: handler.NewCredentialHandler(credentialService),
		AdminHandler:      handler.NewAdminHandler(listings, trigger, sweeper, adminInfo),
		AuthMiddleware:    middleware.NewAuthMiddleware(middleware.AuthConfig{APIKeys: cfg.App.APIKeys}),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("Server listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	// Stop dispatching before waiting for running syncs
	if scheduler != nil {
		log.Println("Stopping sync scheduler...")
		scheduler.Stop()
	}

	done := make(chan struct{})
	go func() {
		trigger.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Printf("Shutdown timeout with %d syncs still running", trigger.InFlight())
	}

	log.Println("Server stopped")
	fmt.Println("Goodbye!")
}
