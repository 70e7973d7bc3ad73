package repository

import (
	"context"

	"github.com/user/listing-crawler/internal/entity"
)

// FetchTransport defines the contract for performing a single outbound request.
type FetchTransport interface {
	// RoundTrip issues req through proxy with the given user agent. Only transport level
	// failures are returned as errors; any HTTP status is a response.
	RoundTrip(ctx context.Context, req *entity.FetchRequest, proxy entity.ProxyEndpoint, userAgent string) (*entity.FetchResponse, error)
}
