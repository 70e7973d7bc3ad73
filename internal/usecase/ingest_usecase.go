package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/user/listing-crawler/internal/entity"
	"github.com/user/listing-crawler/internal/repository"
)

// Ingestor records each physical listing at most once.
type Ingestor interface {
	Ingest(ctx context.Context, listing *entity.ExtractedListing) (*entity.StoredListing, bool, error)
}

type IngestUseCase struct {
	listings repository.ListingRepository
	index    repository.DedupIndexRepository
	logger   *zap.Logger
}

// NewIngestUseCase creates the dedup and ingestion gate. index may be nil.
func NewIngestUseCase(listings repository.ListingRepository, index repository.DedupIndexRepository, logger *zap.Logger) *IngestUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestUseCase{listings: listings, index: index, logger: logger}
}

// Ingest returns the stored listing and whether this call created it. A listing
// already stored under the same natural key is returned untouched.
func (uc *IngestUseCase) Ingest(ctx context.Context, listing *entity.ExtractedListing) (*entity.StoredListing, bool, error) {
	existing, err := uc.find(ctx, listing)
	if err == nil {
		uc.markKnown(ctx, listing)
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}

	dims, err := uc.resolveDimensions(ctx, listing)
	if err != nil {
		return nil, false, err
	}

	stored, err := uc.listings.CreateListing(ctx, listing, dims)
	if errors.Is(err, entity.ErrPersistenceConflict) {
		// another writer stored the same natural key first
		existing, lookupErr := uc.find(ctx, listing)
		if lookupErr != nil {
			return nil, false, fmt.Errorf("resolve conflicting listing %s: %w", listing.NaturalKey(), lookupErr)
		}
		uc.markKnown(ctx, listing)
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("create listing %s: %w", listing.NaturalKey(), err)
	}

	uc.markKnown(ctx, listing)
	return stored, true, nil
}

func (uc *IngestUseCase) find(ctx context.Context, l *entity.ExtractedListing) (*entity.StoredListing, error) {
	return uc.listings.FindListing(ctx, l.Source, l.ExternalID, l.URL)
}

func (uc *IngestUseCase) resolveDimensions(ctx context.Context, l *entity.ExtractedListing) (entity.DimensionIDs, error) {
	names := l.Dimensions()
	dims := entity.DimensionIDs{}
	for _, kind := range entity.DimensionKinds {
		name, ok := names[kind]
		if !ok {
			continue
		}
		id, err := uc.listings.GetOrCreateDimension(ctx, kind, name)
		if err != nil {
			return nil, fmt.Errorf("resolve %s %q: %w", kind, name, err)
		}
		dims[kind] = id
	}
	return dims, nil
}

func (uc *IngestUseCase) markKnown(ctx context.Context, l *entity.ExtractedListing) {
	if uc.index == nil {
		return
	}
	keys := make([]string, 0, 2)
	for _, k := range []string{l.URL, l.ExternalID} {
		if k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return
	}
	if err := uc.index.MarkKnown(ctx, l.Source, keys...); err != nil {
		uc.logger.Warn("failed to update dedup index", zap.String("source", l.Source), zap.Error(err))
	}
}
