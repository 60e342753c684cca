package main

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startRedisDockerContainer(t *testing.T) (string, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("Failed to start Dockertest: %+v", err)
	}

	err = pool.Client.Ping()
	if err != nil {
		t.Skipf("Could not connect to Docker: %+v", err)
	}

	resource, err := pool.Run("redis", "7.0.10-alpine", nil)
	if err != nil {
		t.Fatalf("Failed to start redis: %+v", err)
	}

	// build address the container is listening on
	addr := net.JoinHostPort("localhost", resource.GetPort("6379/tcp"))

	// ensure to wait for the container to be ready
	err = pool.Retry(func() error {
		client := redis.NewClient(&redis.Options{Addr: addr})
		defer client.Close()
		return client.Ping(context.Background()).Err()
	})
	if err != nil {
		t.Fatalf("Failed to ping Redis: %+v", err)
	}

	destroyFunc := func() {
		if err := pool.Purge(resource); err != nil {
			t.Logf("Failed to purge resource: %+v", err)
		}
	}

	return addr, destroyFunc
}

func TestRedisStore(t *testing.T) {
	addr, destroyFunc := startRedisDockerContainer(t)
	defer destroyFunc()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	rs := NewRedisStorage[Book](zap.NewNop(), client, BooksCollection, time.Second)
	testBook1ID := "bk:1"
	testBook := Book{ID: testBookID, Title: strPtr("Redis test book title"), Author: strPtr("au:0")}

	t.Run("Add Book", func(t *testing.T) {
		// ensures we can insert new book record.
		assert.NoError(t, rs.Add(context.Background(), testBookID, &testBook))
		n, err := client.HLen(context.Background(), RedisKeyPrefix+BooksCollection).Result()
		assert.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("Get Existent Book", func(t *testing.T) {
		// ensures we can fetch specific book.
		book, err := rs.GetOne(context.Background(), testBookID)
		require.NoError(t, err)
		assert.Equal(t, testBook, *book)
	})

	t.Run("Get NonExistent Book", func(t *testing.T) {
		// ensures fetching non-existent book fails.
		book, err := rs.GetOne(context.Background(), testBook1ID)
		assert.Equal(t, ErrDocumentNotFound, err)
		assert.Nil(t, book)
	})

	t.Run("Update Existent Book", func(t *testing.T) {
		// ensures omitted fields are kept.
		book, err := rs.Update(context.Background(), testBookID, &Book{Year: intPtr(2001)})
		require.NoError(t, err)
		testBook.Year = intPtr(2001)
		assert.Equal(t, testBook, *book)
		book, err = rs.GetOne(context.Background(), testBookID)
		require.NoError(t, err)
		assert.Equal(t, testBook, *book)
	})

	t.Run("Update NonExistent Book", func(t *testing.T) {
		// ensures updating non-existing book does not create it.
		_, err := rs.Update(context.Background(), testBook1ID, &Book{Year: intPtr(2001)})
		assert.Equal(t, ErrDocumentNotFound, err)
		_, err = rs.GetOne(context.Background(), testBook1ID)
		assert.Equal(t, ErrDocumentNotFound, err)
	})

	t.Run("Get All Books", func(t *testing.T) {
		// ensures we get exact number of stored books.
		assert.NoError(t, rs.Add(context.Background(), testBook1ID, &Book{ID: testBook1ID, Title: strPtr("other")}))
		books, err := rs.GetAll(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, 2, len(books))
	})

	t.Run("Delete Existent Book", func(t *testing.T) {
		// ensures deleting existent book returns it.
		book, err := rs.Delete(context.Background(), testBookID)
		require.NoError(t, err)
		assert.Equal(t, testBook, *book)
		_, err = rs.GetOne(context.Background(), testBookID)
		assert.Equal(t, ErrDocumentNotFound, err)
	})

	t.Run("Delete NonExistent Book", func(t *testing.T) {
		// ensures deleting non existent book returns an error.
		_, err := rs.Delete(context.Background(), testBookID)
		assert.Equal(t, ErrDocumentNotFound, err)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, (&redisPinger{client: client}).Ping(context.Background()))
	})
}

// TestRedisStore_ConcurrentWrites ensures concurrent writes on a collection
// never fail the updates and deletions of its documents.
func TestRedisStore_ConcurrentWrites(t *testing.T) {
	addr, destroyFunc := startRedisDockerContainer(t)
	defer destroyFunc()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	rs := NewRedisStorage[Client](zap.NewNop(), client, ClientsCollection, 5*time.Second)
	ctx := context.Background()
	require.NoError(t, rs.Add(ctx, "cl:0", &Client{ID: "cl:0", Name: strPtr("Ana")}))

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := rs.Update(ctx, "cl:0", &Client{Name: strPtr(fmt.Sprintf("Ana %d", i))})
			errs <- err
		}(i)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("cl:%d", i+1)
			errs <- rs.Add(ctx, id, &Client{ID: id, Name: strPtr("Bia")})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	clients, err := rs.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, clients, 51)

	var dwg sync.WaitGroup
	deleted := make(chan error, 50)
	for i := 0; i < 50; i++ {
		dwg.Add(2)
		go func(i int) {
			defer dwg.Done()
			_, err := rs.Delete(ctx, fmt.Sprintf("cl:%d", i+1))
			deleted <- err
		}(i)
		go func(i int) {
			defer dwg.Done()
			_, _ = rs.Update(ctx, "cl:0", &Client{Email: strPtr("ana@example.com")})
		}(i)
	}
	dwg.Wait()
	close(deleted)
	for err := range deleted {
		assert.NoError(t, err)
	}

	clients, err = rs.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, "ana@example.com", *clients[0].Email)
}

// TestRedisStore_UpdateAfterDelete ensures a deleted document is not brought back by an update.
func TestRedisStore_UpdateAfterDelete(t *testing.T) {
	addr, destroyFunc := startRedisDockerContainer(t)
	defer destroyFunc()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	rs := NewRedisStorage[Client](zap.NewNop(), client, ClientsCollection, time.Second)
	ctx := context.Background()

	require.NoError(t, rs.Add(ctx, "cl:0", &Client{ID: "cl:0", Name: strPtr("Ana")}))
	_, err := rs.Delete(ctx, "cl:0")
	require.NoError(t, err)
	_, err = rs.Update(ctx, "cl:0", &Client{Name: strPtr("Ana Silva")})
	assert.Equal(t, ErrDocumentNotFound, err)
	exists, err := client.HExists(ctx, RedisKeyPrefix+ClientsCollection, "cl:0").Result()
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRedisQueue(t *testing.T) {
	addr, destroyFunc := startRedisDockerContainer(t)
	defer destroyFunc()
	client := redis.NewClient(&redis.Options{Addr: addr, ContextTimeoutEnabled: true})
	defer client.Close()
	q := NewRedisQueue(client)

	event, err := NewEvent(BooksCollection, testBookID, &Book{ID: testBookID, Title: strPtr("x")})
	require.NoError(t, err)
	require.NoError(t, q.Push(context.Background(), UpdateQueue, event))
	require.NoError(t, q.Push(context.Background(), DeleteQueue, Event{Collection: BooksCollection, ID: testBookID}))

	qid, got, err := q.Pop(context.Background(), CreateQueue, UpdateQueue, DeleteQueue)
	require.NoError(t, err)
	assert.Equal(t, UpdateQueue, qid)
	assert.Equal(t, BooksCollection, got.Collection)
	assert.JSONEq(t, `{"_id":"bk:0","titulo":"x"}`, string(got.Document))

	qid, got, err = q.Pop(context.Background(), CreateQueue, UpdateQueue, DeleteQueue)
	require.NoError(t, err)
	assert.Equal(t, DeleteQueue, qid)
	assert.Empty(t, got.Document)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, _, err = q.Pop(ctx, CreateQueue)
	assert.Error(t, err)
}

func TestRedisError(t *testing.T) {
	assert.NoError(t, redisError(nil))
	assert.Equal(t, ErrDocumentNotFound, redisError(redis.Nil))
	assert.ErrorIs(t, redisError(redis.ErrClosed), ErrStorageUnavailable)
	assert.ErrorIs(t, redisError(context.DeadlineExceeded), ErrStorageUnavailable)
	assert.ErrorIs(t, redisError(&net.OpError{Op: "dial", Err: assert.AnError}), ErrStorageUnavailable)
}

// TestRedisStore_Unreachable ensures an unreachable server is reported as unavailable.
func TestRedisStore_Unreachable(t *testing.T) {
	config := DefaultConfig()
	config.Redis.Host, config.Redis.Port = "127.0.0.1", "1"
	config.Redis.DialTimeout = 100 * time.Millisecond
	client, err := GetRedisClient(config)
	require.Error(t, err)
	require.NotNil(t, client)
	defer client.Close()

	rs := NewRedisStorage[Book](zap.NewNop(), client, BooksCollection, time.Second)
	_, err = rs.GetAll(context.Background())
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}
