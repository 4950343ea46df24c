// Command clientcache runs the resource family caches behind an inspection
// server, with optional shared storage, push invalidation and receipt transfer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/illmade-knight/go-clientcache/pkg/api"
	"github.com/illmade-knight/go-clientcache/pkg/cache"
	"github.com/illmade-knight/go-clientcache/pkg/feeds"
	"github.com/illmade-knight/go-clientcache/pkg/invalidation"
	"github.com/illmade-knight/go-clientcache/pkg/microservice"
	"github.com/illmade-knight/go-clientcache/pkg/transfer"
	"github.com/illmade-knight/go-clientcache/pkg/types"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("clientcache exited with error")
	}
}

func newLogger(cfg *Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.LogPretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Str("service", "clientcache").Logger()
}

// backends holds the clients shared by the families' stores.
type backends struct {
	kind      string
	redis     *redis.Client
	redisTTL  time.Duration
	firestore *firestore.Client
	prefix    string
}

func (b *backends) close() {
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.firestore != nil {
		_ = b.firestore.Close()
	}
}

func newBackends(ctx context.Context, cfg *Config, gcpOpts []option.ClientOption, logger zerolog.Logger) (*backends, error) {
	b := &backends{kind: cfg.CacheBackend, redisTTL: cfg.RedisEntryTTL, prefix: cfg.FirestoreCollectionPrefix}
	switch cfg.CacheBackend {
	case BackendRedis:
		b.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := b.redis.Ping(ctx).Err(); err != nil {
			b.close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info().Str("redis_address", cfg.RedisAddr).Msg("Using Redis cache backend.")
	case BackendFirestore:
		client, err := firestore.NewClient(ctx, cfg.ProjectID, gcpOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		b.firestore = client
		logger.Info().Str("project_id", cfg.ProjectID).Msg("Using Firestore cache backend.")
	default:
		logger.Info().Msg("Using in-memory cache backend.")
	}
	return b, nil
}

// storeFor returns the store for one family, or nil for the in-memory default.
func storeFor[K comparable, P any](b *backends, family string, logger zerolog.Logger) (cache.Store[K, P], error) {
	switch b.kind {
	case BackendRedis:
		return cache.NewRedisStoreWithClient[K, P](b.redis, "clientcache:"+family, b.redisTTL, logger), nil
	case BackendFirestore:
		return cache.NewFirestoreStore[K, P](&cache.FirestoreConfig{CollectionName: b.prefix + "-" + family}, b.firestore, logger)
	default:
		return nil, nil
	}
}

func run(ctx context.Context, cfg *Config, logger zerolog.Logger) error {
	var gcpOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		gcpOpts = append(gcpOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := api.NewClient(&api.Config{BaseURL: cfg.APIBaseURL, Token: cfg.APIToken, Timeout: cfg.HTTPTimeout}, nil, logger)
	if err != nil {
		return err
	}

	b, err := newBackends(ctx, cfg, gcpOpts, logger)
	if err != nil {
		return err
	}
	defer b.close()

	var coordOpts []cache.CoordinatorOption
	if cfg.StaleResponseGuard {
		coordOpts = append(coordOpts, cache.WithStaleResponseGuard())
	}

	artsStore, err := storeFor[feeds.FeedKey, types.Page[types.Artwork]](b, "arts", logger)
	if err != nil {
		return err
	}
	arts, err := feeds.NewArts(client, artsStore, nil, logger, coordOpts...)
	if err != nil {
		return err
	}

	updatesStore, err := storeFor[feeds.FeedKey, types.Page[types.Blog]](b, "updates", logger)
	if err != nil {
		return err
	}
	updates, err := feeds.NewUpdates(client, updatesStore, nil, logger, coordOpts...)
	if err != nil {
		return err
	}

	receiptsStore, err := storeFor[int, types.ReceiptsPage](b, "receipts", logger)
	if err != nil {
		return err
	}
	receipts, err := feeds.NewReceipts(client, receiptsStore, nil, logger, coordOpts...)
	if err != nil {
		return err
	}

	sink, closeSink, err := newSink(ctx, cfg, gcpOpts, logger)
	if err != nil {
		return err
	}
	defer closeSink()
	downloader, err := transfer.NewDownloader(receipts, client, sink, logger)
	if err != nil {
		return err
	}

	var listener *invalidation.Listener
	if cfg.InvalidationSubscription != "" {
		psClient, err := pubsub.NewClient(ctx, cfg.ProjectID, gcpOpts...)
		if err != nil {
			return fmt.Errorf("failed to create pubsub client: %w", err)
		}
		defer psClient.Close()

		consumer, err := invalidation.NewGooglePubsubConsumer(ctx, invalidation.NewGooglePubsubConsumerDefaults(cfg.InvalidationSubscription), psClient, logger)
		if err != nil {
			return err
		}
		listener, err = invalidation.NewListener(consumer, logger, arts, updates, receipts)
		if err != nil {
			return err
		}
		if err := listener.Start(ctx); err != nil {
			return err
		}
	}

	var server microservice.Service = microservice.NewCacheServer(logger, cfg.HTTPPort, downloader,
		microservice.NewEndpoint[feeds.FeedState[types.Artwork]](arts),
		microservice.NewEndpoint[feeds.FeedState[types.Blog]](updates),
		microservice.NewEndpoint[feeds.ReceiptsState](receipts),
	)
	if err := server.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received.")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if listener != nil {
		if err := listener.Stop(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Invalidation listener did not stop cleanly.")
		}
	}
	return server.Shutdown(shutdownCtx)
}

func newSink(ctx context.Context, cfg *Config, gcpOpts []option.ClientOption, logger zerolog.Logger) (transfer.Sink, func(), error) {
	if cfg.ReceiptsBucket == "" {
		sink, err := transfer.NewFileSink(cfg.ReceiptsDir, logger)
		return sink, func() {}, err
	}
	gcsClient, err := storage.NewClient(ctx, gcpOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	sink, err := transfer.NewGCSSink(transfer.NewGCSClientAdapter(gcsClient), transfer.GCSSinkConfig{
		BucketName:   cfg.ReceiptsBucket,
		ObjectPrefix: "receipts",
	}, logger)
	if err != nil {
		_ = gcsClient.Close()
		return nil, nil, err
	}
	return sink, func() { _ = gcsClient.Close() }, nil
}
