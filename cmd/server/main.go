package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/prohmpiriya/safeguard-membership/internal/di"
	"github.com/prohmpiriya/safeguard-membership/internal/handler"
	"github.com/prohmpiriya/safeguard-membership/pkg/config"
	"github.com/prohmpiriya/safeguard-membership/pkg/database"
	"github.com/prohmpiriya/safeguard-membership/pkg/kafka"
	"github.com/prohmpiriya/safeguard-membership/pkg/logger"
	"github.com/prohmpiriya/safeguard-membership/pkg/middleware"
	"github.com/prohmpiriya/safeguard-membership/pkg/telemetry"
)

const (
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 15 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "safeguard-membership: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if err := logger.Init(&logger.Config{
		Level:       logLevel(cfg),
		ServiceName: cfg.App.Name,
		Development: cfg.IsDevelopment(),
		OutputPath:  "stdout",

		OTLPEnabled:  cfg.OTel.Enabled,
		OTLPEndpoint: cfg.OTel.CollectorAddr,
	}); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	log := logger.Get()
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
	}); err != nil {
		log.Warn("telemetry disabled", zap.Error(err))
	}

	infra, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}

	container := di.NewContainer(&di.ContainerConfig{
		Config:   cfg,
		Logger:   log,
		DB:       infra.db,
		Redis:    infra.redis,
		Producer: infra.producer,
	})

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Tracing(),
		middleware.CORS(middleware.DefaultCORSConfig(cfg.App.PublicURL)),
	)
	handler.SetupRoutes(router, container.Handlers, container.RouterConfig(cfg))

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr), zap.String("backend_mode", cfg.Backend.Mode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			container.Close(closeCtx)
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", zap.Error(err))
	}
	container.Close(shutdownCtx)
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		log.Error("telemetry shutdown failed", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

type infrastructure struct {
	db       *database.PostgresDB
	redis    *redis.Client
	producer kafka.Producer
}

// connect opens the optional infrastructure enabled in cfg
func connect(ctx context.Context, cfg *config.Config, log *logger.Logger) (*infrastructure, error) {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	infra := &infrastructure{producer: kafka.NewNoopProducer()}

	if cfg.Database.Enabled {
		db, err := database.NewPostgres(ctx, &database.PostgresConfig{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Database:        cfg.Database.DBName,
			SSLMode:         cfg.Database.SSLMode,
			MaxConns:        int32(cfg.Database.MaxOpenConns),
			MinConns:        int32(cfg.Database.MaxIdleConns),
			MaxConnLifetime: cfg.Database.ConnMaxLifetime,
			MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		infra.db = db
		log.Info("connected to postgres", zap.String("host", cfg.Database.Host))
	}

	if cfg.Redis.Enabled {
		client, err := database.NewRedis(ctx, &database.RedisConfig{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			infra.close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		infra.redis = client
		log.Info("connected to redis", zap.String("addr", cfg.Redis.Addr()))
	}

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(&kafka.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			ClientID:     cfg.Kafka.ClientID,
			DefaultTopic: cfg.Kafka.Topic,
		})
		if err != nil {
			infra.close()
			return nil, fmt.Errorf("failed to create kafka producer: %w", err)
		}
		infra.producer = producer
		log.Info("kafka producer ready", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	return infra, nil
}

func (i *infrastructure) close() {
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.db != nil {
		i.db.Close()
	}
}

func logLevel(cfg *config.Config) string {
	if cfg.App.Debug {
		return "debug"
	}
	return "info"
}
