package repository

import "context"

// DedupIndexRepository defines the set of already ingested listing keys per source.
type DedupIndexRepository interface {
	// MarkKnown records keys as ingested for source.
	MarkKnown(ctx context.Context, source string, keys ...string) error
	// IsKnown checks if key has already been ingested for source.
	IsKnown(ctx context.Context, source, key string) (bool, error)
}
