package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisKeyPrefix namespaces the hashes holding the collections.
const RedisKeyPrefix string = "library:"

type redisStorage[E any] struct {
	logger  *zap.Logger
	client  *redis.Client
	key     string
	timeout time.Duration
}

// NewRedisStorage provides an instance of redis-based storage. Each
// collection is a hash keyed by the documents ids.
func NewRedisStorage[E any](logger *zap.Logger, client *redis.Client, collection string, timeout time.Duration) Storage[E] {
	if timeout <= 0 {
		timeout = DefaultStorageTimeout
	}
	return &redisStorage[E]{
		logger:  logger,
		client:  client,
		key:     RedisKeyPrefix + collection,
		timeout: timeout,
	}
}

// GetRedisClient provides a redis client and the outcome of a test connection.
func GetRedisClient(config *Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         net.JoinHostPort(config.Redis.Host, config.Redis.Port),
		DialTimeout:  config.Redis.DialTimeout,
		ReadTimeout:  config.Redis.ReadTimeout,
		WriteTimeout: config.Redis.WriteTimeout,
		PoolSize:     config.Redis.PoolSize,
		PoolTimeout:  config.Redis.PoolTimeout,
		Password:     config.Redis.Password,
		Username:     config.Redis.Username,
		DB:           config.Redis.DatabaseIndex,

		// lets a cancelled context unblock the queue reads.
		ContextTimeoutEnabled: true,
	})

	// test connection.
	if pong, err := client.Ping(context.Background()).Result(); pong != "PONG" || err != nil {
		return client, fmt.Errorf("test connection failed: %v", err)
	}
	return client, nil
}

// Add inserts a new document.
func (rs *redisStorage[E]) Add(ctx context.Context, id string, doc *E) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, rs.timeout)
	defer cancel()
	return redisError(rs.client.HSet(ctx, rs.key, id, docBytes).Err())
}

// GetOne retrieves a document based on its ID.
func (rs *redisStorage[E]) GetOne(ctx context.Context, id string) (*E, error) {
	ctx, cancel := context.WithTimeout(ctx, rs.timeout)
	defer cancel()
	docJSONString, err := rs.client.HGet(ctx, rs.key, id).Result()
	if err != nil {
		return nil, redisError(err)
	}
	var doc E
	if err = json.Unmarshal([]byte(docJSONString), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetAll retrieves all documents of the collection. Redis hashes do not
// guarantee any order and it can change between two calls.
func (rs *redisStorage[E]) GetAll(ctx context.Context) ([]E, error) {
	ctx, cancel := context.WithTimeout(ctx, rs.timeout)
	defer cancel()
	values, err := rs.client.HVals(ctx, rs.key).Result()
	if err != nil {
		return nil, redisError(err)
	}
	docs := []E{}
	for _, docJSONString := range values {
		var doc E
		if err = json.Unmarshal([]byte(docJSONString), &doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// setIfExistsScript replaces a hash field only when it is still present so a
// concurrent deletion is never undone.
var setIfExistsScript = redis.NewScript(`
if redis.call("HEXISTS", KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
return 1
`)

// popFieldScript removes a hash field and returns its former value.
var popFieldScript = redis.NewScript(`
local value = redis.call("HGET", KEYS[1], ARGV[1])
if value then
	redis.call("HDEL", KEYS[1], ARGV[1])
end
return value
`)

// Update merges the fields present on patch into the stored document.
// Concurrent updates of the same document follow last write wins.
func (rs *redisStorage[E]) Update(ctx context.Context, id string, patch *E) (*E, error) {
	ctx, cancel := context.WithTimeout(ctx, rs.timeout)
	defer cancel()
	current, err := rs.client.HGet(ctx, rs.key, id).Bytes()
	if err != nil {
		return nil, redisError(err)
	}
	var doc E
	merged, err := MergeDocument(current, patch, &doc)
	if err != nil {
		return nil, err
	}
	set, err := setIfExistsScript.Run(ctx, rs.client, []string{rs.key}, id, merged).Int()
	if err != nil {
		return nil, redisError(err)
	}
	if set == 0 {
		return nil, ErrDocumentNotFound
	}
	return &doc, nil
}

// Delete removes a document based on its ID and returns it.
func (rs *redisStorage[E]) Delete(ctx context.Context, id string) (*E, error) {
	ctx, cancel := context.WithTimeout(ctx, rs.timeout)
	defer cancel()
	current, err := popFieldScript.Run(ctx, rs.client, []string{rs.key}, id).Text()
	if err != nil {
		return nil, redisError(err)
	}
	var doc E
	if err = json.Unmarshal([]byte(current), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// redisPinger checks the redis server availability.
type redisPinger struct {
	client *redis.Client
}

func (rp *redisPinger) Ping(ctx context.Context) error {
	return redisError(rp.client.Ping(ctx).Err())
}

// redisError maps client errors to the storage errors.
func redisError(err error) error {
	var netErr net.Error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return ErrDocumentNotFound
	case errors.Is(err, redis.ErrClosed), errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return err
}
