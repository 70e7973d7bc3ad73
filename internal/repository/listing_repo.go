package repository

import (
	"context"

	"github.com/user/listing-crawler/internal/entity"
)

// ListingRepository defines the persistence collaborator of the ingestion gate.
// Implementations guarantee uniqueness on (source, external id) and on each dimension name.
type ListingRepository interface {
	// FindListing looks a listing up by source and external id, falling back to url
	// when externalID is empty. Returns ErrNotFound when absent.
	FindListing(ctx context.Context, source, externalID, url string) (*entity.StoredListing, error)
	// GetOrCreateDimension returns the id of the named dimension row, creating it if needed.
	GetOrCreateDimension(ctx context.Context, kind entity.DimensionKind, name string) (int64, error)
	// CreateListing stores a new listing. Returns entity.ErrPersistenceConflict when
	// another writer stored the same natural key first.
	CreateListing(ctx context.Context, listing *entity.ExtractedListing, dims entity.DimensionIDs) (*entity.StoredListing, error)
	// ListKeys returns the URL and external id of every listing stored for source.
	ListKeys(ctx context.Context, source string) ([]string, error)
}
