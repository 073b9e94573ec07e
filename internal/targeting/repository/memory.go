package repository

import (
	"context"
	"sort"
	"time"

	targetingerrors "bookswap/internal/targeting/errors"
	"bookswap/pkg/db/memory"
	"bookswap/pkg/model"
)

type memoryEdgeRepository struct {
	store *memory.Store
}

var _ EdgeRepository = (*memoryEdgeRepository)(nil)

func NewMemoryEdgeRepository(store *memory.Store) EdgeRepository {
	return &memoryEdgeRepository{store: store}
}

func (r *memoryEdgeRepository) Create(ctx context.Context, edge *model.TargetingEdge) error {
	if _, exists := r.store.Get(ctx, TableName, edge.ID); exists {
		return targetingerrors.ErrDuplicate
	}
	r.store.Put(ctx, TableName, edge.ID, edge.Clone())
	return nil
}

func (r *memoryEdgeRepository) FindByID(ctx context.Context, id string) (*model.TargetingEdge, error) {
	v, ok := r.store.Get(ctx, TableName, id)
	if !ok {
		return nil, targetingerrors.ErrNotFound
	}
	return v.(*model.TargetingEdge).Clone(), nil
}

func (r *memoryEdgeRepository) scan(ctx context.Context, match func(*model.TargetingEdge) bool) []*model.TargetingEdge {
	var out []*model.TargetingEdge
	r.store.Scan(ctx, TableName, func(_ string, v any) {
		e := v.(*model.TargetingEdge)
		if match(e) {
			out = append(out, e.Clone())
		}
	})
	return out
}

func (r *memoryEdgeRepository) FindActive(ctx context.Context) ([]*model.TargetingEdge, error) {
	edges := r.scan(ctx, func(e *model.TargetingEdge) bool { return e.IsActive() })
	sortOldestFirst(edges)
	return edges, nil
}

func (r *memoryEdgeRepository) FindActiveBySource(ctx context.Context, listingID string) ([]*model.TargetingEdge, error) {
	edges := r.scan(ctx, func(e *model.TargetingEdge) bool {
		return e.IsActive() && e.SourceListingID == listingID
	})
	sortOldestFirst(edges)
	return edges, nil
}

func (r *memoryEdgeRepository) FindActiveByTarget(ctx context.Context, listingID string) ([]*model.TargetingEdge, error) {
	edges := r.scan(ctx, func(e *model.TargetingEdge) bool {
		return e.IsActive() && e.TargetListingID == listingID
	})
	sortOldestFirst(edges)
	return edges, nil
}

func (r *memoryEdgeRepository) FindActiveTouching(ctx context.Context, listingIDs []string) ([]*model.TargetingEdge, error) {
	ids := make(map[string]struct{}, len(listingIDs))
	for _, id := range listingIDs {
		ids[id] = struct{}{}
	}
	edges := r.scan(ctx, func(e *model.TargetingEdge) bool {
		if !e.IsActive() {
			return false
		}
		_, src := ids[e.SourceListingID]
		_, tgt := ids[e.TargetListingID]
		return src || tgt
	})
	sortOldestFirst(edges)
	return edges, nil
}

func (r *memoryEdgeRepository) FindByListing(ctx context.Context, listingID string, dir model.Direction, limit int, offset int64) ([]*model.TargetingEdge, error) {
	edges := r.scan(ctx, func(e *model.TargetingEdge) bool {
		return matchesDirection(e, listingID, dir)
	})
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].CreatedAt.Equal(edges[j].CreatedAt) {
			return edges[i].ID < edges[j].ID
		}
		return edges[i].CreatedAt.After(edges[j].CreatedAt)
	})
	return paginate(edges, limit, offset), nil
}

func (r *memoryEdgeRepository) CountByListing(ctx context.Context, listingID string, dir model.Direction) (int64, error) {
	edges := r.scan(ctx, func(e *model.TargetingEdge) bool {
		return matchesDirection(e, listingID, dir)
	})
	return int64(len(edges)), nil
}

func (r *memoryEdgeRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]*model.TargetingEdge, error) {
	edges := r.scan(ctx, func(e *model.TargetingEdge) bool {
		return e.IsActive() && e.ExpiresAt != nil && !e.ExpiresAt.After(now)
	})
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].ExpiresAt.Equal(*edges[j].ExpiresAt) {
			return edges[i].ID < edges[j].ID
		}
		return edges[i].ExpiresAt.Before(*edges[j].ExpiresAt)
	})
	return paginate(edges, limit, 0), nil
}

func (r *memoryEdgeRepository) UpdateStatus(ctx context.Context, id string, from, to model.EdgeStatus, resolution string, at time.Time) error {
	v, ok := r.store.Get(ctx, TableName, id)
	if !ok {
		return targetingerrors.ErrNotFound
	}
	e := v.(*model.TargetingEdge).Clone()
	if e.Status != from {
		return targetingerrors.ErrStatusConflict
	}
	resolved := at
	e.Status = to
	e.Resolution = resolution
	e.ResolvedAt = &resolved
	r.store.Put(ctx, TableName, id, e)
	return nil
}

func (r *memoryEdgeRepository) UpdateExpiry(ctx context.Context, id string, expiresAt *time.Time) error {
	v, ok := r.store.Get(ctx, TableName, id)
	if !ok {
		return targetingerrors.ErrNotFound
	}
	e := v.(*model.TargetingEdge).Clone()
	e.ExpiresAt = nil
	if expiresAt != nil {
		t := *expiresAt
		e.ExpiresAt = &t
	}
	r.store.Put(ctx, TableName, id, e)
	return nil
}

func sortOldestFirst(edges []*model.TargetingEdge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].CreatedAt.Equal(edges[j].CreatedAt) {
			return edges[i].ID < edges[j].ID
		}
		return edges[i].CreatedAt.Before(edges[j].CreatedAt)
	})
}

func paginate[T any](items []T, limit int, offset int64) []T {
	if offset >= int64(len(items)) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
