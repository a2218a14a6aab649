package tokenstore

import (
	"context"
	"fmt"
	"time"

	"github.com/natserract/amocrm/pkg/config"
	"github.com/natserract/amocrm/pkg/oauth"
	"github.com/natserract/amocrm/pkg/storage/postgres"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Backend is a token store that may hold a connection.
type Backend interface {
	oauth.Store
	Close() error
}

func (s *MemoryStore) Close() error { return nil }
func (s *FileStore) Close() error   { return nil }

// Open builds the backend selected by cfg.TokenStore.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.TokenStore {
	case config.StoreFile, "":
		logger.Debug("Using file token store", zap.String("path", cfg.TokenFile))
		return NewFileStore(cfg.TokenFile), nil

	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		logger.Debug("Using redis token store", zap.String("addr", cfg.RedisAddr), zap.String("key", cfg.TokenKey))
		return NewRedisStore(client, cfg.TokenKey), nil

	case config.StorePostgres:
		db, err := postgres.New(ctx, postgres.NewConfig(), logger)
		if err != nil {
			return nil, err
		}
		store, err := NewPostgresStore(ctx, db, cfg.TokenKey)
		if err != nil {
			db.Close()
			return nil, err
		}
		return store, nil

	case config.StoreMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mongo: %w", err)
		}
		if err := client.Ping(connectCtx, nil); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("failed to ping mongo: %w", err)
		}
		logger.Debug("Using mongo token store", zap.String("database", cfg.MongoDatabase))
		return NewMongoStore(client.Database(cfg.MongoDatabase), cfg.TokenKey), nil
	}

	return nil, fmt.Errorf("unknown token store %q", cfg.TokenStore)
}
