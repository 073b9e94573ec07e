package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	listingserrors "bookswap/internal/listings/errors"
	"bookswap/pkg/config"
	mongodb "bookswap/pkg/db/mongo"
	"bookswap/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoListingRepository struct {
	collection   *mongo.Collection
	readTimeout  time.Duration
	writeTimeout time.Duration
}

var _ ListingRepository = (*mongoListingRepository)(nil)

func NewMongoListingRepository(cfg *config.Config) ListingRepository {
	return &mongoListingRepository{
		collection:   cfg.Client.MongoDB().Collection(CollectionName),
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
	}
}

func (r *mongoListingRepository) Create(ctx context.Context, listing *model.SwapListing) error {
	ctx, cancel := mongodb.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, listing); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return listingserrors.ErrDuplicate
		}
		return fmt.Errorf("failed to create swap listing: %w", err)
	}
	return nil
}

func (r *mongoListingRepository) FindByID(ctx context.Context, id string) (*model.SwapListing, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.readTimeout)
	defer cancel()

	var listing model.SwapListing
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&listing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, listingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find swap listing: %w", err)
	}
	return &listing, nil
}

func (r *mongoListingRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*model.SwapListing, error) {
	listings, err := r.find(ctx, bson.M{"_id": bson.M{"$in": uniqueIDs(ids)}}, options.Find())
	if err != nil {
		return nil, err
	}
	out := make(map[string]*model.SwapListing, len(listings))
	for _, l := range listings {
		out[l.ID] = l
	}
	return out, nil
}

func statusFilter(status model.ListingStatus) bson.M {
	if status == "" {
		return bson.M{}
	}
	return bson.M{"status": status}
}

func (r *mongoListingRepository) FindAll(ctx context.Context, status model.ListingStatus, limit int, offset int64) ([]*model.SwapListing, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)
	return r.find(ctx, statusFilter(status), opts)
}

func (r *mongoListingRepository) Count(ctx context.Context, status model.ListingStatus) (int64, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.readTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, statusFilter(status))
	if err != nil {
		return 0, fmt.Errorf("failed to count swap listings: %w", err)
	}
	return count, nil
}

func (r *mongoListingRepository) FindOpenByBooking(ctx context.Context, bookingID string) ([]*model.SwapListing, error) {
	filter := bson.M{"booking_id": bookingID, "status": model.ListingOpen}
	return r.find(ctx, filter, options.Find())
}

func (r *mongoListingRepository) FindExpiredAuctions(ctx context.Context, now time.Time, limit int) ([]*model.SwapListing, error) {
	filter := bson.M{
		"mode":              model.ModeAuction,
		"status":            model.ListingOpen,
		"auction_deadline":  bson.M{"$lte": now},
		"auction_closed_at": bson.M{"$exists": false},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "auction_deadline", Value: 1}}).
		SetLimit(int64(limit))
	return r.find(ctx, filter, opts)
}

// Lock bumps lock_version inside the session. A concurrent transaction that
// wrote the same listing aborts with a WriteConflict labelled transient.
func (r *mongoListingRepository) Lock(ctx context.Context, ids ...string) error {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := mongodb.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	_, err := r.collection.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{"$inc": bson.M{"lock_version": 1}},
	)
	if err != nil {
		return fmt.Errorf("failed to lock swap listings: %w", err)
	}
	return nil
}

func (r *mongoListingRepository) UpdateStatus(ctx context.Context, id string, from, to model.ListingStatus, at time.Time) error {
	ctx, cancel := mongodb.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to, "updated_at": at}},
	)
	if err != nil {
		return fmt.Errorf("failed to update swap listing status: %w", err)
	}
	if result.MatchedCount == 0 {
		return r.missingOrConflict(ctx, id)
	}
	return nil
}

func (r *mongoListingRepository) UpdateAuction(ctx context.Context, id string, deadline, closedAt *time.Time, at time.Time) error {
	ctx, cancel := mongodb.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	set := bson.M{"updated_at": at}
	update := bson.M{"$set": set}
	if deadline != nil {
		set["auction_deadline"] = *deadline
	}
	if closedAt != nil {
		set["auction_closed_at"] = *closedAt
	} else {
		update["$unset"] = bson.M{"auction_closed_at": ""}
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update swap listing auction: %w", err)
	}
	if result.MatchedCount == 0 {
		return listingserrors.ErrNotFound
	}
	return nil
}

func (r *mongoListingRepository) missingOrConflict(ctx context.Context, id string) error {
	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to check swap listing: %w", err)
	}
	if count == 0 {
		return listingserrors.ErrNotFound
	}
	return listingserrors.ErrStatusConflict
}

func (r *mongoListingRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*model.SwapListing, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.readTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find swap listings: %w", err)
	}
	defer cursor.Close(ctx)

	var listings []*model.SwapListing
	if err = cursor.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("failed to decode swap listings: %w", err)
	}
	return listings, nil
}
