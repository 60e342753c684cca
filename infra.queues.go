package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Predefinied Queue IDs.
const (
	CreateQueue = "creation"
	UpdateQueue = "updating"
	DeleteQueue = "deletion"
)

// Ensure *redisQueue implements Queuer.
var _ Queuer = (*redisQueue)(nil)

// Event describes a change applied to a document of a collection.
type Event struct {
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	Document   json.RawMessage `json:"document,omitempty"`
}

// NewEvent builds an event carrying the json form of doc.
func NewEvent(collection, id string, doc interface{}) (Event, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return Event{}, err
	}
	return Event{Collection: collection, ID: id, Document: data}, nil
}

// Queuer describes a queue.
type Queuer interface {
	Push(ctx context.Context, qid string, event Event) error
	Pop(ctx context.Context, qids ...string) (string, Event, error)
}

// redisQueue represents a queue which implements the Queuer interface.
type redisQueue struct {
	client *redis.Client
}

func NewRedisQueue(client *redis.Client) Queuer {
	return &redisQueue{client: client}
}

// Push enqueues an event onto the queue identified by qid.
func (q *redisQueue) Push(ctx context.Context, qid string, event Event) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, qid, eventBytes).Err()
}

// Pop blocks until an event is available on one of the queues ids and returns it.
func (q *redisQueue) Pop(ctx context.Context, qids ...string) (string, Event, error) {
	var event Event
	var qid string
	infos, err := q.client.BLPop(ctx, 0*time.Second, qids...).Result()
	if err != nil {
		return qid, event, err
	}
	if len(infos) != 2 {
		return qid, event, fmt.Errorf("unexpected queue reply of %d items", len(infos))
	}

	if err = json.Unmarshal([]byte(infos[1]), &event); err != nil {
		return qid, event, err
	}
	qid = infos[0]
	return qid, event, nil
}
