package main

import (
	"context"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Backend holds the client of the configured storage driver.
type Backend struct {
	logger  *zap.Logger
	driver  string
	timeout time.Duration
	mongo   *mongo.Client
	db      *mongo.Database
	redis   *redis.Client
	bolt    *bolt.DB
	pinger  Pinger
}

// OpenBackend sets up the client of the configured driver. A malformed mongo
// uri or an unusable bolt file fails. An unreachable mongo or redis server is
// only logged so the api keeps serving and reports 503 on each call.
func OpenBackend(logger *zap.Logger, config *Config) (*Backend, error) {
	b := &Backend{logger: logger, driver: config.Storage.Driver, timeout: config.Storage.Timeout}
	switch config.Storage.Driver {
	case MongoDriver:
		client, err := GetMongoClient(config)
		if err != nil {
			return nil, err
		}
		b.mongo = client
		b.db = client.Database(config.Mongo.Database)
		b.pinger = &mongoPinger{client: client}

		ctx, cancel := context.WithTimeout(context.Background(), config.Mongo.ConnectTimeout)
		defer cancel()
		if err = b.pinger.Ping(ctx); err != nil {
			logger.Error("failed to connect to mongo server", zap.Error(err))
		} else {
			logger.Info("connected to mongo server", zap.String("mongo.database", config.Mongo.Database))
		}
	case RedisDriver:
		client, err := GetRedisClient(config)
		if err != nil {
			logger.Error("failed to connect to redis server", zap.Error(err))
		}
		b.redis = client
		b.pinger = &redisPinger{client: client}
	case BoltDriver:
		client, err := GetBoltDBClient(config.BoltDB.FilePath, config.BoltDB.Timeout)
		if err != nil {
			return nil, err
		}
		b.bolt = client
		b.pinger = &boltPinger{client: client}
	default:
		return nil, fmt.Errorf("unknown storage driver %q", config.Storage.Driver)
	}

	return b, nil
}

// Close releases the storage client.
func (b *Backend) Close(ctx context.Context) error {
	switch {
	case b.mongo != nil:
		return b.mongo.Disconnect(ctx)
	case b.redis != nil:
		return b.redis.Close()
	case b.bolt != nil:
		return b.bolt.Close()
	}
	return nil
}

// NewStorage provides the storage of a collection on the backend driver.
func NewStorage[E any](b *Backend, collection string) (Storage[E], error) {
	switch b.driver {
	case MongoDriver:
		return NewMongoStorage[E](b.logger, b.db, collection, b.timeout), nil
	case RedisDriver:
		return NewRedisStorage[E](b.logger, b.redis, collection, b.timeout), nil
	case BoltDriver:
		return NewBoltStorage[E](b.logger, b.bolt, collection)
	}
	return nil, fmt.Errorf("unknown storage driver %q", b.driver)
}
