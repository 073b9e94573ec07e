package mongo

import (
	"context"
	"fmt"

	auditrepo "bookswap/internal/audit/repository"
	listingrepo "bookswap/internal/listings/repository"
	"bookswap/internal/migrations/mongo/validators"
	edgerepo "bookswap/internal/targeting/repository"
	"bookswap/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	ListingsCollection = listingrepo.CollectionName
	EdgesCollection    = edgerepo.CollectionName
	OutboxCollection   = auditrepo.CollectionName
)

var (
	ListingsIndexes = []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "booking_id", Value: 1}},
			Options: options.Index().
				SetName("open_booking_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": "open"}),
		},
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
		{
			Keys: bson.D{{Key: "auction_deadline", Value: 1}},
			Options: options.Index().
				SetName("open_auction_deadline").
				SetPartialFilterExpression(bson.M{"mode": "auction", "status": "open"}),
		},
	}

	EdgesIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "source_listing_id", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "target_listing_id", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "source_listing_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "target_listing_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().
				SetName("active_expiry").
				SetPartialFilterExpression(bson.M{"status": "active"}),
		},
	}

	OutboxIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "next_attempt_at", Value: 1}}},
		{Keys: bson.D{{Key: "aggregate_id", Value: 1}, {Key: "created_at", Value: 1}}},
	}
)

type collectionDef struct {
	Indexes   []mongo.IndexModel
	Validator bson.M
}

var collections = map[string]collectionDef{
	ListingsCollection: {Indexes: ListingsIndexes, Validator: validators.ListingValidator},
	EdgesCollection:    {Indexes: EdgesIndexes, Validator: validators.EdgeValidator},
	OutboxCollection:   {Indexes: OutboxIndexes, Validator: validators.OutboxValidator},
}

// RunMigration creates the swap collections with their validators and
// indexes. It is idempotent: existing collections get their validator
// refreshed and missing indexes added.
func RunMigration(ctx context.Context, db *mongo.Database, log *logger.Logger) error {
	log.Info("Running Mongo migrations", "database", db.Name())

	for name, def := range collections {
		if err := ensureCollection(ctx, db, name, def.Validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
		if err := ensureIndexes(ctx, db, name, def.Indexes, log); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", name, err)
		}
	}

	log.Info("All Mongo migrations applied")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *logger.Logger) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		log.Info("Creating collection", "collection", name)
		opts := options.CreateCollection().SetValidator(validator)
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	log.Info("Collection exists, updating validator", "collection", name)
	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		log.Warn("Failed updating validator", "collection", name, "error", err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel, log *logger.Logger) error {
	created, err := db.Collection(name).Indexes().CreateMany(ctx, models)
	if err != nil {
		return err
	}
	log.Info("Ensured indexes", "collection", name, "indexes", created)
	return nil
}
