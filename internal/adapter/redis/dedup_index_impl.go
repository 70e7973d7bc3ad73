package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/user/listing-crawler/pkg/utils"
)

const knownListingsPrefix = "listings:known:"

// DedupIndexRepoImpl provides a concrete implementation for the DedupIndexRepository interface using Redis Sets.
// One set per source holds the hashed URLs and external ids of ingested listings.
type DedupIndexRepoImpl struct {
	client *redis.Client
}

// NewDedupIndexRepo creates a new instance of DedupIndexRepoImpl.
func NewDedupIndexRepo(client *redis.Client) *DedupIndexRepoImpl {
	return &DedupIndexRepoImpl{client: client}
}

func (r *DedupIndexRepoImpl) generateKey(source string) string {
	return fmt.Sprintf("%s%s", knownListingsPrefix, source)
}

// MarkKnown adds keys to the set of source.
func (r *DedupIndexRepoImpl) MarkKnown(ctx context.Context, source string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	members := make([]any, 0, len(keys))
	for _, k := range keys {
		members = append(members, utils.HashURL(k))
	}
	return r.client.SAdd(ctx, r.generateKey(source), members...).Err()
}

// IsKnown checks the set of source for key.
func (r *DedupIndexRepoImpl) IsKnown(ctx context.Context, source, key string) (bool, error) {
	return r.client.SIsMember(ctx, r.generateKey(source), utils.HashURL(key)).Result()
}
