package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"channel_sync_service/internal/channel/app"
	"channel_sync_service/internal/channel/domain"
	"channel_sync_service/internal/channel/repository"
	"channel_sync_service/internal/channel/router"
	"channel_sync_service/pkg/config"
	"channel_sync_service/pkg/database"
	"channel_sync_service/pkg/logger"
	testtool "channel_sync_service/pkg/test_tool"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.SyncAgent, config.EnvConfig.SyncAgentLogPath)
	defer logger.Log.Sync()

	cfg, err := config.LoadConfig[config.SyncAgent](config.EnvConfig.SyncAgent, config.EnvConfig.SyncAgentYAMLPath)
	if err != nil {
		logger.Log.Fatal("load config", zap.Error(err))
	}
	logger.Log.SetDebugMode(cfg.Debug)
	if cfg.Port == "" {
		cfg.Port = config.EnvConfig.SyncAgentPort
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. postgres (persistence + LISTEN/NOTIFY)
	pgCfg := cfg.PostgreSQL
	connStr := database.ConnectString(pgCfg.User, pgCfg.Password, pgCfg.Host, pgCfg.Port, pgCfg.Database)
	db, err := database.NewDatabaseConnection(database.Connection{
		ConnectStr:    connStr,
		RetryCount:    pgCfg.RetryCount,
		RetryInterval: time.Duration(pgCfg.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal("Unable to connect to postgreSQL database after retries",
			zap.String("host", pgCfg.Host),
			zap.Error(err),
		)
	}
	defer db.Close()
	if err := repository.EnsureSchema(ctx, db); err != nil {
		logger.Log.Fatal("ensure schema", zap.Error(err))
	}

	// 2. redis (broadcast + user cache)
	redisClient, err := database.NewRedisClient(database.RedisConnection{
		Addr:          cfg.Redis.Addr,
		DB:            cfg.Redis.RedisDB,
		RetryCount:    pgCfg.RetryCount,
		RetryInterval: time.Duration(pgCfg.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal("connect redis", zap.Error(err))
	}
	defer redisClient.Close()

	// 3. repositories
	persistence := repository.NewMessageRepository(db)
	users := repository.NewCachedUserFetcher(
		persistence,
		database.NewRedisRepository[domain.UserRecord](redisClient, "user:"),
		cfg.Engine.WithDefaults().UserCacheTTL,
	)
	feed, err := newChangeFeed(cfg, db)
	if err != nil {
		logger.Log.Fatal("change feed", zap.Error(err))
	}

	self := domain.UserRecord{ID: cfg.UserID}
	if u, err := users.GetUserByID(ctx, cfg.UserID); err == nil {
		self = *u
	} else {
		logger.Log.Warn("own profile not loaded", zap.String("user_id", cfg.UserID), zap.Error(err))
	}

	// 4. engine
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	engine := app.NewMessageSyncEngine(cfg.Engine, self, cfg.WorkspaceID, app.EngineDeps{
		Feed:        feed,
		Broadcaster: repository.NewRedisBroadcaster(redisClient),
		Persistence: persistence,
		Users:       users,
		Metrics:     app.NewMetrics(reg),
	})
	go func() {
		if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Log.Error("sync engine stopped", zap.Error(err))
		}
	}()

	testtool.StartPprof("")

	// 5. fiber
	r := fiber.New(fiber.Config{DisableStartupMessage: true})
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.SyncAgentLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()
	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))

	router.RegisterRoutes(r, engine, app.NewChannelWebsocketHandler(engine), reg)

	go func() {
		<-ctx.Done()
		logger.Log.Info("shutting down sync agent")
		_ = r.ShutdownWithTimeout(5 * time.Second)
	}()

	port := ":" + cfg.Port
	logger.Log.Info("Sync agent listening", zap.String("port", port))
	if err := r.Listen(port); err != nil {
		logger.Log.Fatal("Failed to start Fiber", zap.Error(err))
	}
}

// newChangeFeed pick the row change transport named by change_feed.driver
func newChangeFeed(cfg config.SyncAgent, db *pgxpool.Pool) (app.ChangeFeed, error) {
	switch cfg.ChangeFeed.Driver {
	case "", "postgres":
		return repository.NewPostgresChangeFeed(db), nil
	case "kafka":
		return repository.NewKafkaChangeFeed(database.KafkaConnection{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.Topic,
			RetryCount:    cfg.PostgreSQL.RetryCount,
			RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
		}), nil
	default:
		return nil, fmt.Errorf("unknown change feed driver %q", cfg.ChangeFeed.Driver)
	}
}
