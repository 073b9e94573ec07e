package repository

import (
	"context"
	"time"

	"bookswap/pkg/model"
)

const (
	CollectionName = "Targeting_edges"
	TableName      = "targeting_edges"
)

// EdgeRepository is the Targeting Graph Store. Reads and writes join the
// transaction carried by ctx. Callers lock the endpoint listings before
// mutating an edge.
type EdgeRepository interface {
	Create(ctx context.Context, edge *model.TargetingEdge) error
	FindByID(ctx context.Context, id string) (*model.TargetingEdge, error)
	// FindActive returns every active edge. It is the snapshot cycle
	// detection runs on.
	FindActive(ctx context.Context) ([]*model.TargetingEdge, error)
	// FindActiveBySource returns the active edges leaving listingID, oldest first.
	FindActiveBySource(ctx context.Context, listingID string) ([]*model.TargetingEdge, error)
	// FindActiveByTarget returns the active edges pointing at listingID, oldest first.
	FindActiveByTarget(ctx context.Context, listingID string) ([]*model.TargetingEdge, error)
	// FindActiveTouching returns active edges with any of listingIDs at either end.
	FindActiveTouching(ctx context.Context, listingIDs []string) ([]*model.TargetingEdge, error)
	// FindByListing lists edges of every status newest first.
	FindByListing(ctx context.Context, listingID string, dir model.Direction, limit int, offset int64) ([]*model.TargetingEdge, error)
	CountByListing(ctx context.Context, listingID string, dir model.Direction) (int64, error)
	// FindExpired returns active edges whose ExpiresAt is at or before now,
	// earliest expiry first.
	FindExpired(ctx context.Context, now time.Time, limit int) ([]*model.TargetingEdge, error)
	// UpdateStatus moves an edge from one status to another and stamps the
	// resolution, failing with ErrStatusConflict when it is not in from.
	UpdateStatus(ctx context.Context, id string, from, to model.EdgeStatus, resolution string, at time.Time) error
	UpdateExpiry(ctx context.Context, id string, expiresAt *time.Time) error
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func matchesDirection(e *model.TargetingEdge, listingID string, dir model.Direction) bool {
	switch dir {
	case model.DirectionIncoming:
		return e.TargetListingID == listingID
	case model.DirectionOutgoing:
		return e.SourceListingID == listingID
	default:
		return e.Touches(listingID)
	}
}
