package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	targetingerrors "bookswap/internal/targeting/errors"
	"bookswap/pkg/config"
	mongodb "bookswap/pkg/db/mongo"
	"bookswap/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoEdgeRepository struct {
	collection   *mongo.Collection
	readTimeout  time.Duration
	writeTimeout time.Duration
}

var _ EdgeRepository = (*mongoEdgeRepository)(nil)

func NewMongoEdgeRepository(cfg *config.Config) EdgeRepository {
	return &mongoEdgeRepository{
		collection:   cfg.Client.MongoDB().Collection(CollectionName),
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
	}
}

var (
	oldestFirst = bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}
	newestFirst = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}
)

func (r *mongoEdgeRepository) Create(ctx context.Context, edge *model.TargetingEdge) error {
	ctx, cancel := mongodb.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, edge); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return targetingerrors.ErrDuplicate
		}
		return fmt.Errorf("failed to create targeting edge: %w", err)
	}
	return nil
}

func (r *mongoEdgeRepository) FindByID(ctx context.Context, id string) (*model.TargetingEdge, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.readTimeout)
	defer cancel()

	var edge model.TargetingEdge
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&edge)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, targetingerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find targeting edge: %w", err)
	}
	return &edge, nil
}

func (r *mongoEdgeRepository) FindActive(ctx context.Context) ([]*model.TargetingEdge, error) {
	opts := options.Find().
		SetSort(oldestFirst).
		SetProjection(bson.M{"_id": 1, "source_listing_id": 1, "target_listing_id": 1, "status": 1, "created_at": 1})
	return r.find(ctx, bson.M{"status": model.EdgeActive}, opts)
}

func (r *mongoEdgeRepository) FindActiveBySource(ctx context.Context, listingID string) ([]*model.TargetingEdge, error) {
	filter := bson.M{"source_listing_id": listingID, "status": model.EdgeActive}
	return r.find(ctx, filter, options.Find().SetSort(oldestFirst))
}

func (r *mongoEdgeRepository) FindActiveByTarget(ctx context.Context, listingID string) ([]*model.TargetingEdge, error) {
	filter := bson.M{"target_listing_id": listingID, "status": model.EdgeActive}
	return r.find(ctx, filter, options.Find().SetSort(oldestFirst))
}

func (r *mongoEdgeRepository) FindActiveTouching(ctx context.Context, listingIDs []string) ([]*model.TargetingEdge, error) {
	ids := uniqueIDs(listingIDs)
	filter := bson.M{
		"status": model.EdgeActive,
		"$or": []bson.M{
			{"source_listing_id": bson.M{"$in": ids}},
			{"target_listing_id": bson.M{"$in": ids}},
		},
	}
	return r.find(ctx, filter, options.Find().SetSort(oldestFirst))
}

func (r *mongoEdgeRepository) FindByListing(ctx context.Context, listingID string, dir model.Direction, limit int, offset int64) ([]*model.TargetingEdge, error) {
	opts := options.Find().
		SetSort(newestFirst).
		SetLimit(int64(limit)).
		SetSkip(offset)
	return r.find(ctx, directionFilter(listingID, dir), opts)
}

func (r *mongoEdgeRepository) CountByListing(ctx context.Context, listingID string, dir model.Direction) (int64, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.readTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, directionFilter(listingID, dir))
	if err != nil {
		return 0, fmt.Errorf("failed to count targeting edges: %w", err)
	}
	return count, nil
}

func (r *mongoEdgeRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]*model.TargetingEdge, error) {
	filter := bson.M{
		"status":     model.EdgeActive,
		"expires_at": bson.M{"$lte": now},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "expires_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))
	return r.find(ctx, filter, opts)
}

func (r *mongoEdgeRepository) UpdateStatus(ctx context.Context, id string, from, to model.EdgeStatus, resolution string, at time.Time) error {
	ctx, cancel := mongodb.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{
			"status":      to,
			"resolution":  resolution,
			"resolved_at": at,
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to update targeting edge status: %w", err)
	}
	if result.MatchedCount == 0 {
		count, err := r.collection.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return fmt.Errorf("failed to check targeting edge: %w", err)
		}
		if count == 0 {
			return targetingerrors.ErrNotFound
		}
		return targetingerrors.ErrStatusConflict
	}
	return nil
}

func (r *mongoEdgeRepository) UpdateExpiry(ctx context.Context, id string, expiresAt *time.Time) error {
	ctx, cancel := mongodb.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	update := bson.M{"$unset": bson.M{"expires_at": ""}}
	if expiresAt != nil {
		update = bson.M{"$set": bson.M{"expires_at": *expiresAt}}
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update targeting edge expiry: %w", err)
	}
	if result.MatchedCount == 0 {
		return targetingerrors.ErrNotFound
	}
	return nil
}

func (r *mongoEdgeRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*model.TargetingEdge, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.readTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find targeting edges: %w", err)
	}
	defer cursor.Close(ctx)

	var edges []*model.TargetingEdge
	if err = cursor.All(ctx, &edges); err != nil {
		return nil, fmt.Errorf("failed to decode targeting edges: %w", err)
	}
	return edges, nil
}

func directionFilter(listingID string, dir model.Direction) bson.M {
	switch dir {
	case model.DirectionIncoming:
		return bson.M{"target_listing_id": listingID}
	case model.DirectionOutgoing:
		return bson.M{"source_listing_id": listingID}
	default:
		return bson.M{"$or": []bson.M{
			{"source_listing_id": listingID},
			{"target_listing_id": listingID},
		}}
	}
}
