package repository

import (
	"context"
	"fmt"
	"time"

	"bookswap/pkg/config"
	mongodb "bookswap/pkg/db/mongo"
	"bookswap/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoOutboxRepository struct {
	collection   *mongo.Collection
	readTimeout  time.Duration
	writeTimeout time.Duration
}

var _ OutboxRepository = (*mongoOutboxRepository)(nil)

func NewMongoOutboxRepository(cfg *config.Config) OutboxRepository {
	return &mongoOutboxRepository{
		collection:   cfg.Client.MongoDB().Collection(CollectionName),
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
	}
}

func (r *mongoOutboxRepository) Append(ctx context.Context, records ...*model.OutboxRecord) error {
	if len(records) == 0 {
		return nil
	}
	ctx, cancel := mongodb.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	docs := make([]any, 0, len(records))
	for _, rec := range records {
		docs = append(docs, rec)
	}
	if _, err := r.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to append outbox records: %w", err)
	}
	return nil
}

func (r *mongoOutboxRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*model.OutboxRecord, error) {
	filter := bson.M{
		"status":          model.OutboxPending,
		"next_attempt_at": bson.M{"$lte": now},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))
	return r.find(ctx, filter, opts)
}

func (r *mongoOutboxRepository) FindByAggregate(ctx context.Context, aggregateID string) ([]*model.OutboxRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	return r.find(ctx, bson.M{"aggregate_id": aggregateID}, opts)
}

func (r *mongoOutboxRepository) MarkDelivered(ctx context.Context, id, transactionRef string, at time.Time) error {
	return r.updateOne(ctx, id, bson.M{
		"$set": bson.M{
			"status":          model.OutboxDelivered,
			"transaction_ref": transactionRef,
			"delivered_at":    at,
		},
		"$unset": bson.M{"last_error": ""},
		"$inc":   bson.M{"attempts": 1},
	})
}

func (r *mongoOutboxRepository) MarkFailed(ctx context.Context, id string, attempts int, nextAttempt time.Time, lastErr string, terminal bool) error {
	set := bson.M{
		"attempts":        attempts,
		"next_attempt_at": nextAttempt,
		"last_error":      lastErr,
	}
	if terminal {
		set["status"] = model.OutboxFailed
	}
	return r.updateOne(ctx, id, bson.M{"$set": set})
}

func (r *mongoOutboxRepository) updateOne(ctx context.Context, id string, update bson.M) error {
	ctx, cancel := mongodb.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update outbox record: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoOutboxRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*model.OutboxRecord, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.readTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find outbox records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*model.OutboxRecord
	if err = cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode outbox records: %w", err)
	}
	return records, nil
}
