// Package memory holds process local implementations of the repositories, used
// by the one-shot command without a database and by tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/user/listing-crawler/internal/entity"
	"github.com/user/listing-crawler/internal/repository"
)

type listingKey struct {
	source string
	key    string
}

type dimensionKey struct {
	kind entity.DimensionKind
	name string
}

// ListingRepo keeps listings and dimensions in maps with the same uniqueness
// guarantees as the Postgres schema.
type ListingRepo struct {
	mu         sync.RWMutex
	nextID     int64
	byID       map[int64]*entity.StoredListing
	byExternal map[listingKey]int64
	byURL      map[listingKey]int64
	dims       map[dimensionKey]int64
	dimRows    int64
}

func NewListingRepo() *ListingRepo {
	return &ListingRepo{
		byID:       map[int64]*entity.StoredListing{},
		byExternal: map[listingKey]int64{},
		byURL:      map[listingKey]int64{},
		dims:       map[dimensionKey]int64{},
	}
}

func (r *ListingRepo) FindListing(ctx context.Context, source, externalID, url string) (*entity.StoredListing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if externalID != "" {
		if id, ok := r.byExternal[listingKey{source, externalID}]; ok {
			return r.copyOf(id), nil
		}
		return nil, repository.ErrNotFound
	}
	if id, ok := r.byURL[listingKey{source, url}]; ok {
		return r.copyOf(id), nil
	}
	return nil, repository.ErrNotFound
}

func (r *ListingRepo) GetOrCreateDimension(ctx context.Context, kind entity.DimensionKind, name string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := dimensionKey{kind, name}
	if id, ok := r.dims[k]; ok {
		return id, nil
	}
	r.dimRows++
	r.dims[k] = r.dimRows
	return r.dimRows, nil
}

func (r *ListingRepo) CreateListing(ctx context.Context, listing *entity.ExtractedListing, dims entity.DimensionIDs) (*entity.StoredListing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ext := listingKey{listing.Source, listing.ExternalID}
	if listing.ExternalID != "" {
		if _, ok := r.byExternal[ext]; ok {
			return nil, entity.ErrPersistenceConflict
		}
	} else if _, ok := r.byURL[listingKey{listing.Source, listing.URL}]; ok {
		return nil, entity.ErrPersistenceConflict
	}

	r.nextID++
	stored := &entity.StoredListing{
		ID:               r.nextID,
		Dimensions:       dims,
		CreatedAt:        time.Now().UTC(),
		ExtractedListing: *listing,
	}
	r.byID[stored.ID] = stored
	if listing.ExternalID != "" {
		r.byExternal[ext] = stored.ID
	}
	if listing.URL != "" {
		if _, ok := r.byURL[listingKey{listing.Source, listing.URL}]; !ok {
			r.byURL[listingKey{listing.Source, listing.URL}] = stored.ID
		}
	}
	return r.copyOf(stored.ID), nil
}

func (r *ListingRepo) ListKeys(ctx context.Context, source string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var keys []string
	for _, l := range r.byID {
		if l.Source != source {
			continue
		}
		if l.URL != "" {
			keys = append(keys, l.URL)
		}
		if l.ExternalID != "" {
			keys = append(keys, l.ExternalID)
		}
	}
	return keys, nil
}

// Count returns the number of stored listings.
func (r *ListingRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// DimensionCount returns the number of rows of one dimension.
func (r *ListingRepo) DimensionCount(kind entity.DimensionKind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for k := range r.dims {
		if k.kind == kind {
			n++
		}
	}
	return n
}

func (r *ListingRepo) copyOf(id int64) *entity.StoredListing {
	cp := *r.byID[id]
	return &cp
}
