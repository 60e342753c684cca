package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

type mongoStorage[E any] struct {
	logger  *zap.Logger
	coll    *mongo.Collection
	timeout time.Duration
}

// GetMongoClient builds a client from the configured connection string. Only a
// malformed uri fails here: the driver connects in background so an unreachable
// server surfaces later on each call.
func GetMongoClient(config *Config) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(config.Mongo.URI).
		SetConnectTimeout(config.Mongo.ConnectTimeout).
		SetServerSelectionTimeout(config.Mongo.ServerSelectionTimeout)
	if config.Mongo.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(config.Mongo.MaxPoolSize)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.Mongo.ConnectTimeout)
	defer cancel()
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to setup mongo client: %v", err)
	}
	return client, nil
}

// NewMongoStorage provides an instance of mongo-based storage on the given collection.
func NewMongoStorage[E any](logger *zap.Logger, db *mongo.Database, collection string, timeout time.Duration) Storage[E] {
	if timeout <= 0 {
		timeout = DefaultStorageTimeout
	}
	return &mongoStorage[E]{
		logger:  logger,
		coll:    db.Collection(collection),
		timeout: timeout,
	}
}

// Add inserts a new document.
func (ms *mongoStorage[E]) Add(ctx context.Context, _ string, doc *E) error {
	ctx, cancel := context.WithTimeout(ctx, ms.timeout)
	defer cancel()
	_, err := ms.coll.InsertOne(ctx, doc)
	return mongoError(err)
}

// GetOne retrieves a document based on its ID.
func (ms *mongoStorage[E]) GetOne(ctx context.Context, id string) (*E, error) {
	ctx, cancel := context.WithTimeout(ctx, ms.timeout)
	defer cancel()
	var doc E
	if err := ms.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, mongoError(err)
	}
	return &doc, nil
}

// GetAll retrieves all documents of the collection in natural order.
func (ms *mongoStorage[E]) GetAll(ctx context.Context) ([]E, error) {
	ctx, cancel := context.WithTimeout(ctx, ms.timeout)
	defer cancel()
	cursor, err := ms.coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, mongoError(err)
	}
	docs := []E{}
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, mongoError(err)
	}
	return docs, nil
}

// Update sets the fields present on patch and returns the updated document.
func (ms *mongoStorage[E]) Update(ctx context.Context, id string, patch *E) (*E, error) {
	fields, err := toBSONFields(patch)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return ms.GetOne(ctx, id)
	}

	ctx, cancel := context.WithTimeout(ctx, ms.timeout)
	defer cancel()
	var doc E
	err = ms.coll.FindOneAndUpdate(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": fields},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return nil, mongoError(err)
	}
	return &doc, nil
}

// Delete removes a document based on its ID and returns it.
func (ms *mongoStorage[E]) Delete(ctx context.Context, id string) (*E, error) {
	ctx, cancel := context.WithTimeout(ctx, ms.timeout)
	defer cancel()
	var doc E
	if err := ms.coll.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, mongoError(err)
	}
	return &doc, nil
}

// mongoPinger checks the mongo deployment availability.
type mongoPinger struct {
	client *mongo.Client
}

func (mp *mongoPinger) Ping(ctx context.Context) error {
	return mongoError(mp.client.Ping(ctx, readpref.Primary()))
}

// toBSONFields returns the fields set on patch without the identifier.
func toBSONFields(patch interface{}) (bson.M, error) {
	data, err := bson.Marshal(patch)
	if err != nil {
		return nil, err
	}
	fields := bson.M{}
	if err = bson.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	delete(fields, "_id")
	return fields, nil
}

// mongoError maps driver errors to the storage errors.
func mongoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrDocumentNotFound
	case mongo.IsNetworkError(err), mongo.IsTimeout(err), errors.Is(err, mongo.ErrClientDisconnected):
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return err
}
