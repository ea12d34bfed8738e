// Сервис чата поддержки: WebSocket-сокеты покупателей и сотрудников, HTTP API панели.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/shopdesk/supportchat/internal/auth"
	"github.com/shopdesk/supportchat/internal/chat"
	"github.com/shopdesk/supportchat/internal/config"
	"github.com/shopdesk/supportchat/internal/events"
	"github.com/shopdesk/supportchat/internal/handler"
	"github.com/shopdesk/supportchat/internal/logger"
	"github.com/shopdesk/supportchat/internal/push"
	"github.com/shopdesk/supportchat/internal/repository"
	"github.com/shopdesk/supportchat/internal/startup"
	"github.com/shopdesk/supportchat/internal/storage"
	"github.com/shopdesk/supportchat/internal/storage/memory"
	"github.com/shopdesk/supportchat/internal/ws"
	"github.com/shopdesk/supportchat/migrations"
)

const tokenTTL = 24 * time.Hour

func main() {
	logger.SetPrefix("chat")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (no external DB required)")
	flag.Parse()

	if err := run(*dev, *migrate); err != nil {
		logger.Errorf("chat: %v", err)
		os.Exit(1)
	}
}

func run(dev, migrateOnly bool) error {
	logger.Info("starting chat service")
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if dev {
		db, err := startEmbeddedPostgres(cfg)
		if err != nil {
			return fmt.Errorf("embedded postgres: %w", err)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := db.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		return fmt.Errorf("parse db config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 4

	pool, err := startup.ConnectDBWithRetry(ctx, poolCfg, 60*time.Second)
	if err != nil {
		return err
	}
	defer pool.Close()

	migrateCtx, migrateCancel := context.WithTimeout(ctx, 30*time.Second)
	err = startup.RunMigrations(migrateCtx, pool, migrations.Files)
	migrateCancel()
	if err != nil {
		return err
	}
	if migrateOnly && !dev {
		return nil
	}
	logger.Info("database connected, migrations applied")

	state, err := openStateStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer state.Close()

	publisher, err := openPublisher(cfg)
	if err != nil {
		return err
	}
	defer publisher.Close()

	keys, err := push.ResolveVAPIDKeys(cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey, cfg.Push.KeysFile)
	if err != nil {
		return fmt.Errorf("vapid keys: %w", err)
	}
	notifier := push.NewNotifier(state, keys, cfg.Push.VAPIDSubject)

	store := repository.NewStore(pool)
	registry := chat.NewRegistry()
	rooms := chat.NewRooms()
	bc := chat.NewBroadcaster(registry)
	coord := chat.NewCoordinator(store, rooms, bc, publisher, cfg.HistoryLimit)
	disp := chat.NewDispatcher(store, registry, rooms, bc,
		chat.WithRateLimiter(storage.NewRateLimiter(state, cfg.RateLimit, cfg.RateLimitWindow)),
		chat.WithStaffNotifier(notifier),
		chat.WithPublisher(publisher),
	)
	hub := ws.NewHub(registry, coord, disp, state, cfg.MaxWSConnections)

	wsOpts := ws.Options{
		WriteWait:      cfg.WSWriteTimeout,
		PongWait:       cfg.WSPongTimeout,
		MaxMessageSize: cfg.WSMaxMessageSize,
		SendBufferSize: cfg.WSSendBufferSize,
	}
	router := handler.NewRouter(handler.RouterDeps{
		Verifier:       auth.NewManager(cfg.JWTSecret, tokenTTL, ""),
		Limiter:        state,
		AllowedOrigins: cfg.AllowedOrigins(),
		Chat:           handler.NewChatHandler(store, coord, disp, registry, state),
		Push:           handler.NewPushHandler(notifier),
		Config:         handler.NewConfigHandler(cfg, notifier.PublicKey()),
		WS:             handler.NewWSHandler(hub, wsOpts, cfg.CORSAllowedOrigins),
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Хаб живёт дольше HTTP-сервера: сначала перестаём принимать соединения, потом закрываем сокеты.
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(hubCtx)
		logger.Info("hub stopped")
		return nil
	})
	g.Go(func() error {
		logger.Infof("server listening on %s", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("server shutdown: %v", err)
		}
		logger.Info("server stopped accepting connections")
		hubCancel()
		return nil
	})
	return g.Wait()
}

// openStateStore: Redis, если задан REDIS_URL, иначе in-memory (один инстанс, -dev).
func openStateStore(ctx context.Context, cfg *config.Config) (storage.ChatStateStore, error) {
	if cfg.Redis.URL == "" {
		logger.Info("REDIS_URL not set, using in-memory chat state (single instance only)")
		return memory.New(), nil
	}
	client, err := startup.ConnectRedisWithRetry(ctx, cfg.Redis.URL, 30*time.Second)
	if err != nil {
		return nil, err
	}
	resetCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.ResetPresence(resetCtx); err != nil {
		logger.Errorf("reset presence: %v", err)
	}
	return client, nil
}

func openPublisher(cfg *config.Config) (events.Publisher, error) {
	if !cfg.Kafka.Enabled() {
		return events.Nop{}, nil
	}
	p, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		return nil, fmt.Errorf("kafka: %w", err)
	}
	logger.Infof("publishing chat activity to kafka topic %s", cfg.Kafka.Topic)
	return p, nil
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "supportchat"
		password = "supportchat_secret"
		database = "supportchat"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
