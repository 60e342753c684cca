package main

import (
	"context"

	"go.uber.org/zap"
)

// ResourceServiceProvider defines the operations available on a collection.
type ResourceServiceProvider[E any] interface {
	Add(ctx context.Context, id string, doc *E) error
	GetOne(ctx context.Context, id string) (*E, error)
	GetAll(ctx context.Context) ([]E, error)
	Update(ctx context.Context, id string, patch *E) (*E, error)
	Delete(ctx context.Context, id string) (*E, error)
}

// ResourceService runs the storage calls of one collection and publishes each
// successful change onto the queues when a queue is configured.
type ResourceService[E any] struct {
	logger     *zap.Logger
	collection string
	storage    Storage[E]
	queue      Queuer
}

func NewResourceService[E any](logger *zap.Logger, collection string, storage Storage[E], queue Queuer) ResourceServiceProvider[E] {
	return &ResourceService[E]{
		logger:     logger,
		collection: collection,
		storage:    storage,
		queue:      queue,
	}
}

func (rs *ResourceService[E]) Add(ctx context.Context, id string, doc *E) error {
	if err := rs.storage.Add(ctx, id, doc); err != nil {
		return err
	}
	rs.publish(ctx, CreateQueue, id, doc)
	return nil
}

func (rs *ResourceService[E]) GetOne(ctx context.Context, id string) (*E, error) {
	return rs.storage.GetOne(ctx, id)
}

func (rs *ResourceService[E]) GetAll(ctx context.Context) ([]E, error) {
	return rs.storage.GetAll(ctx)
}

func (rs *ResourceService[E]) Update(ctx context.Context, id string, patch *E) (*E, error) {
	doc, err := rs.storage.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	rs.publish(ctx, UpdateQueue, id, doc)
	return doc, nil
}

func (rs *ResourceService[E]) Delete(ctx context.Context, id string) (*E, error) {
	doc, err := rs.storage.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	rs.publish(ctx, DeleteQueue, id, nil)
	return doc, nil
}

// publish pushes the change event. Failures are only logged.
func (rs *ResourceService[E]) publish(ctx context.Context, qid, id string, doc *E) {
	if rs.queue == nil {
		return
	}
	event := Event{Collection: rs.collection, ID: id}
	if doc != nil {
		var err error
		if event, err = NewEvent(rs.collection, id, doc); err != nil {
			rs.logger.Error("service: failed to build event", zap.String("qid", qid), zap.String("collection", rs.collection), zap.String("id", id), zap.Error(err))
			return
		}
	}
	if err := rs.queue.Push(ctx, qid, event); err != nil {
		rs.logger.Error("service: failed to push to queue", zap.String("qid", qid), zap.String("collection", rs.collection), zap.String("id", id), zap.Error(err))
	}
}
