package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	userapp "github.com/lllypuk/aduser/internal/application/user"
	"github.com/lllypuk/aduser/internal/config"
	"github.com/lllypuk/aduser/internal/infrastructure/audit"
	"github.com/lllypuk/aduser/internal/infrastructure/auth"
	"github.com/lllypuk/aduser/internal/infrastructure/graph"
	"github.com/lllypuk/aduser/internal/infrastructure/metrics"
)

const (
	redisPingTimeout       = 5 * time.Second
	mongoDisconnectTimeout = 5 * time.Second
)

// Container holds the wired collaborators of the update operation.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	Redis   *redis.Client
	MongoDB *mongo.Client

	Tokens    *graph.TokenManager
	Directory *graph.UserClient
	Audit     *audit.MongoRecorder

	Registry *prometheus.Registry
	Metrics  *metrics.UpdateMetrics
}

// ContainerOption configures the container.
type ContainerOption func(*Container)

// WithLogger sets the container logger.
func WithLogger(logger *slog.Logger) ContainerOption {
	return func(c *Container) {
		c.Logger = logger
	}
}

// NewContainer connects the configured backing services and builds the
// directory client. Redis and MongoDB are only dialed when a component uses
// them.
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*Container, error) {
	c := &Container{
		Config:   cfg,
		Logger:   slog.Default(),
		Registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.Metrics = metrics.NewUpdateMetrics(c.Registry)

	if cfg.UsesRedis() {
		if err := c.setupRedis(ctx); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
	}

	if cfg.UsesMongoDB() {
		if err := c.setupMongoDB(ctx); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("mongodb: %w", err)
		}
	}

	c.setupDirectory()

	return c, nil
}

func (c *Container) setupRedis(ctx context.Context) error {
	c.Redis = redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Addr,
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
		PoolSize: c.Config.Redis.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	if err := c.Redis.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to ping: %w", err)
	}

	c.Logger.DebugContext(ctx, "connected to Redis", slog.String("addr", c.Config.Redis.Addr))
	return nil
}

func (c *Container) setupMongoDB(ctx context.Context) error {
	clientOpts := options.Client().
		ApplyURI(c.Config.MongoDB.URI).
		SetMaxPoolSize(c.Config.MongoDB.MaxPoolSize)

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.MongoDB = client

	pingCtx, cancel := context.WithTimeout(ctx, c.Config.MongoDB.Timeout)
	defer cancel()

	if pingErr := client.Ping(pingCtx, nil); pingErr != nil {
		return fmt.Errorf("failed to ping: %w", pingErr)
	}

	collection := client.Database(c.Config.MongoDB.Database).Collection(audit.CollectionUserUpdates)
	c.Audit = audit.NewMongoRecorder(collection,
		audit.WithRecorderLogger(c.Logger),
		audit.WithRetention(c.Config.Audit.Retention),
	)

	if indexErr := c.Audit.EnsureIndexes(pingCtx); indexErr != nil {
		return fmt.Errorf("failed to create indexes: %w", indexErr)
	}

	c.Logger.DebugContext(ctx, "connected to MongoDB", slog.String("database", c.Config.MongoDB.Database))
	return nil
}

func (c *Container) setupDirectory() {
	httpClient := &http.Client{Timeout: c.Config.Directory.Timeout}

	tokenConfig := graph.TokenConfig{
		TokenURL:     c.Config.Directory.TokenURL,
		ClientID:     c.Config.Directory.ClientID,
		ClientSecret: c.Config.Directory.ClientSecret,
		Scope:        c.Config.Directory.Scope,
		TokenBuffer:  c.Config.Directory.TokenBuffer,
		HTTPClient:   httpClient,
		Logger:       c.Logger,
	}
	if strings.EqualFold(c.Config.Directory.TokenCache, config.StoreRedis) && c.Redis != nil {
		tokenConfig.Cache = auth.NewTokenStore(auth.TokenStoreConfig{
			Client:    c.Redis,
			KeyPrefix: c.Config.Redis.KeyPrefix + "access_token:",
		})
	}

	c.Tokens = graph.NewTokenManager(tokenConfig)
	c.Directory = graph.NewUserClient(graph.UserClientConfig{
		BaseURL:    c.Config.Directory.URL,
		HTTPClient: httpClient,
		Logger:     c.Logger,
	}, c.Tokens)
}

// UpdateUseCase builds the update operation around confirmer.
func (c *Container) UpdateUseCase(confirmer userapp.Confirmer) *userapp.UpdateUserUseCase {
	opts := []userapp.UpdateUserOption{
		userapp.WithLogger(c.Logger),
		userapp.WithMetrics(c.Metrics),
	}
	if c.Audit != nil {
		opts = append(opts, userapp.WithAuditRecorder(c.Audit))
	}
	return userapp.NewUpdateUserUseCase(c.Directory, confirmer, opts...)
}

// RegisterRuntimeCollectors adds Go runtime and process metrics to the registry.
func (c *Container) RegisterRuntimeCollectors() {
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Close releases the backing service connections.
func (c *Container) Close() error {
	var errs []error

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}

	if c.MongoDB != nil {
		ctx, cancel := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
		defer cancel()
		if err := c.MongoDB.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb disconnect: %w", err))
		}
	}

	return errors.Join(errs...)
}
