package main

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// ConsumerBackoff is the pause applied after a failed queue read.
const ConsumerBackoff = time.Second

type Consumer interface {
	Consume(ctx context.Context, qids ...string) error
}

type boltDBConsumer struct {
	logger  *zap.Logger
	queue   Queuer
	mirrors map[string]Storage[json.RawMessage]
	backoff time.Duration
}

// NewBoltDBConsumer provides a consumer which replays the queued events
// into the mirror storage of each collection.
func NewBoltDBConsumer(logger *zap.Logger, q Queuer, mirrors map[string]Storage[json.RawMessage]) Consumer {
	return &boltDBConsumer{logger: logger, queue: q, mirrors: mirrors, backoff: ConsumerBackoff}
}

func (bc *boltDBConsumer) Consume(ctx context.Context, qids ...string) error {
	for {
		qid, event, err := bc.queue.Pop(ctx, qids...)
		if err != nil && ctx.Err() != nil {
			bc.logger.Info("consumer: queue pop call: context is done: exit", zap.String("reason", ctx.Err().Error()))
			return nil
		}

		if err != nil {
			bc.logger.Error("consumer: error on queue pop call", zap.Error(err))
			select {
			case <-ctx.Done():
				bc.logger.Info("consumer: context is done: exit", zap.String("reason", ctx.Err().Error()))
				return nil
			case <-time.After(bc.backoff):
			}
			continue
		}

		bc.apply(ctx, qid, event)
	}
}

func (bc *boltDBConsumer) apply(ctx context.Context, qid string, event Event) {
	repo, found := bc.mirrors[event.Collection]
	if !found {
		bc.logger.Warn("consumer: received event on unknown collection", zap.String("qid", qid), zap.String("collection", event.Collection), zap.String("id", event.ID))
		return
	}

	var err error
	switch qid {
	case CreateQueue, UpdateQueue:
		doc := event.Document
		if err = repo.Add(ctx, event.ID, &doc); err != nil {
			bc.logger.Error("consumer: failed to save", zap.String("qid", qid), zap.String("collection", event.Collection), zap.String("id", event.ID), zap.Error(err))
		}
	case DeleteQueue:
		if _, err = repo.Delete(ctx, event.ID); err != nil {
			bc.logger.Error("consumer: failed to delete", zap.String("collection", event.Collection), zap.String("id", event.ID), zap.Error(err))
		}
	default:
		bc.logger.Warn("consumer: received event on unknown queue id", zap.String("qid", qid), zap.String("collection", event.Collection), zap.String("id", event.ID))
	}
}
