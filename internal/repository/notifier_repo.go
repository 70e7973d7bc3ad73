package repository

import (
	"context"

	"github.com/user/listing-crawler/internal/entity"
)

// ListingNotifier receives the added subset of a crawl for delivery elsewhere.
type ListingNotifier interface {
	NotifyAdded(ctx context.Context, result *entity.CrawlResult) error
}
