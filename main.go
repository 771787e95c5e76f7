package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gamification-engine/cache"
	"gamification-engine/config"
	"gamification-engine/handlers"
	"gamification-engine/middleware"
	"gamification-engine/models"
	"gamification-engine/services"
	"gamification-engine/utils"
	"gamification-engine/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const sseStreamPath = "/user/events/stream"

func openDatabase(cfg config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
	if cfg.DBDriver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), os.ModePerm); err != nil {
			return nil, err
		}
		return gorm.Open(sqlite.Open(cfg.SQLitePath), gormCfg)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}
	return gorm.Open(postgres.Open(cfg.DatabaseURL), gormCfg)
}

func main() {
	cfg := config.Load()
	utils.DebugEnabled = os.Getenv("DEBUG") == "true"

	if cfg.ServiceToken == "" {
		log.Fatal("GAMIFICATION_SERVICE_TOKEN environment variable not set")
	}

	db, err := openDatabase(cfg)
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var live *cache.RedisCache
	if cfg.RedisAddr != "" {
		live = cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := live.Ping(ctx); err != nil {
			log.Printf("⚠️  Redis unavailable at %s, live leaderboard disabled: %v", cfg.RedisAddr, err)
			live = nil
		} else {
			defer live.Close()
		}
	}

	engine := services.NewEngine(db, services.EngineOptions{
		StreakLocation: cfg.StreakLocation,
		ConversionRate: cfg.ConversionRate,
		Live:           live,
	})
	if err := engine.Bootstrap(ctx, cfg.MaxLevel); err != nil {
		log.Fatal("failed to seed reference data:", err)
	}

	if cfg.R2Enabled {
		if err := utils.InitR2(); err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
	}

	// --- Sync workers (platform → engine) ---
	if cfg.SyncServiceURL != "" {
		teamSync := workers.NewTeamMemberSyncWorker(db, cfg.SyncServiceURL, "/api/v1/public/team-members", cfg.ServiceToken, cfg.TeamSyncInterval)
		teamSync.Start(ctx)

		activity := workers.NewActivityEventWorker(
			workers.NewActivityFeedClient(cfg.SyncServiceURL, cfg.ServiceToken),
			engine.Dispatcher,
			cfg.ActivityPollInterval,
		)
		activity.Start(ctx)
	} else {
		log.Println("⚠️  SYNC_SERVICE_URL not set, activity and team sync workers disabled")
	}

	sched, err := engine.StartScheduler(ctx, services.SchedulerOptions{
		ChallengeStatusInterval:  cfg.ChallengeStatusInterval,
		RankingRecomputeInterval: cfg.RankingRecomputeInterval,
		HistoryRetention:         cfg.CurrencyHistoryRetention,
	})
	if err != nil {
		log.Fatal("failed to start scheduler:", err)
	}

	app := fiber.New(fiber.Config{
		BodyLimit: utils.MaxIconSize + 1024*1024,
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed, except the SSE stream which authenticates by query
	skip := []string{"/health"}
	if cfg.AuthServiceURL != "" {
		skip = append(skip, sseStreamPath)
	}
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken, skip...))

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Service-Token, X-Device-ID",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// SSE is registered before the secured groups so their header check doesn't run first
	if cfg.AuthServiceURL != "" {
		authClient := services.NewAuthServiceClient(cfg.AuthServiceURL, cfg.ServiceToken)
		app.Get(sseStreamPath, middleware.SSEAuthMiddleware(authClient), engine.Events.StreamUserEventsSSE)
	} else {
		app.Get(sseStreamPath, middleware.UserContextMiddleware(), engine.Events.StreamUserEventsSSE)
	}

	handlers.SetupChallengeRoutes(app, engine.Challenges)
	handlers.SetupRewardRoutes(app, engine.Rewards)
	handlers.SetupGamificationRoutes(app, engine)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", cfg.Port)
	log.Printf("✅ Scheduler running %d job(s)", len(sched.Jobs()))
	log.Println("✅ GatewayAuthMiddleware enforced globally, all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %v", cfg.AllowedOrigins)

	<-ctx.Done()
	log.Println("Shutting down server...")

	if err := sched.Shutdown(); err != nil {
		log.Printf("Scheduler shutdown error: %v", err)
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
