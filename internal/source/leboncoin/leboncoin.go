// Package leboncoin crawls the leboncoin.fr search API. Ads come back inline
// with each result page, so candidates carry their payload and no detail
// request is made.
package leboncoin

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/listing-crawler/internal/entity"
	"github.com/user/listing-crawler/internal/extract"
	"github.com/user/listing-crawler/internal/fetch"
	"github.com/user/listing-crawler/internal/source"
)

const Name = "leboncoin"

const (
	searchURL = "https://api.leboncoin.fr/api/adfinder/v1/search"
	// pageSize is the server side maximum.
	pageSize = 100
)

var transactions = map[string]int{"rent": 10, "buy": 9}

var propertyTypes = map[string]int{
	"house":     1,
	"apartment": 2,
	"land":      3,
	"parking":   4,
	"other":     5,
}

type Source struct {
	fetcher   fetch.Fetcher
	extractor *extract.Extractor
	searchURL string
	minDelay  time.Duration
	maxDelay  time.Duration
	logger    *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

type Option func(*Source)

func WithSearchURL(u string) Option { return func(s *Source) { s.searchURL = u } }

// WithPageDelay pauses a random duration in [min, max] before every page but the first.
func WithPageDelay(min, max time.Duration) Option {
	return func(s *Source) {
		if max < min {
			max = min
		}
		s.minDelay, s.maxDelay = min, max
	}
}

func WithLogger(l *zap.Logger) Option { return func(s *Source) { s.logger = l } }

func New(fetcher fetch.Fetcher, opts ...Option) (*Source, error) {
	ex, err := extract.Default().Extractor(Name)
	if err != nil {
		return nil, err
	}
	s := &Source{
		fetcher:   fetcher,
		extractor: ex,
		searchURL: searchURL,
		logger:    zap.NewNop(),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Source) Name() string { return Name }

func (s *Source) NewSearch(criteria entity.SearchCriteria) (source.Search, error) {
	if err := entity.CheckToken("transaction", criteria.Transaction, source.Tokens(transactions)); err != nil {
		return nil, err
	}
	types := make([]string, 0, len(criteria.PropertyTypes))
	for _, pt := range criteria.PropertyTypes {
		if err := entity.CheckToken("property_type", pt, source.Tokens(propertyTypes)); err != nil {
			return nil, err
		}
		types = append(types, strconv.Itoa(propertyTypes[pt]))
	}
	return &search{
		src:     s,
		payload: newPayload(criteria, types),
		timeout: time.Duration(criteria.Timeout) * time.Second,
	}, nil
}

func (s *Source) delay() time.Duration {
	if s.maxDelay <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.minDelay + time.Duration(s.rng.Int63n(int64(s.maxDelay-s.minDelay)+1))
}

type rangeFilter struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

type location struct {
	LocationType string `json:"locationType"`
	Zipcode      string `json:"zipcode"`
}

type filters struct {
	Category struct {
		ID string `json:"id"`
	} `json:"category"`
	Enums    map[string][]string    `json:"enums"`
	Ranges   map[string]rangeFilter `json:"ranges"`
	Location struct {
		Locations []location `json:"locations"`
	} `json:"location"`
}

type payload struct {
	// Pivot is the page cursor.
	Pivot string `json:"pivot"`
	Limit int    `json:"limit"`
	// LimitAlu 1 returns listings along with the statistics.
	LimitAlu  int     `json:"limit_alu"`
	Filters   filters `json:"filters"`
	SortBy    string  `json:"sort_by"`
	SortOrder string  `json:"sort_order"`
}

func newPayload(c entity.SearchCriteria, types []string) payload {
	p := payload{
		Pivot:     "0,0,0",
		Limit:     pageSize,
		LimitAlu:  1,
		SortBy:    "time",
		SortOrder: "desc",
	}
	p.Filters.Category.ID = strconv.Itoa(transactions[c.Transaction])
	p.Filters.Enums = map[string][]string{
		"ad_type":          {"offer"},
		"real_estate_type": types,
	}
	p.Filters.Ranges = map[string]rangeFilter{
		"rooms":  {Min: c.MinRooms, Max: c.MaxRooms},
		"square": {Min: c.MinSize, Max: c.MaxSize},
		"price":  {Min: c.MinPrice, Max: c.MaxPrice},
	}
	for _, pc := range c.PostCodes {
		p.Filters.Location.Locations = append(p.Filters.Location.Locations, location{LocationType: "city", Zipcode: pc})
	}
	return p
}

type searchResponse struct {
	Ads   []json.RawMessage `json:"ads"`
	Pivot *string           `json:"pivot"`
}

type search struct {
	src     *Source
	payload payload
	timeout time.Duration
	page    int
}

func (s *search) NextPage(ctx context.Context) (*source.Page, error) {
	if s.page > 0 {
		if d := s.src.delay(); d > 0 {
			s.src.logger.Debug("sleeping before next page", zap.Duration("delay", d))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d):
			}
		}
	}

	body, err := json.Marshal(s.payload)
	if err != nil {
		return nil, err
	}
	resp, err := s.src.fetcher.Fetch(ctx, &entity.FetchRequest{
		Method: http.MethodPost,
		URL:    s.src.searchURL,
		Header: http.Header{
			"Content-Type":    {"application/json"},
			"Accept-Language": {"en-US,en;q=0.8,fr;q=0.6"},
			"Referer":         {"https://www.leboncoin.fr/recherche"},
			"Origin":          {"https://www.leboncoin.fr"},
		},
		Body:    body,
		Timeout: s.timeout,
	})
	if err != nil {
		return nil, err
	}
	s.page++

	var sr searchResponse
	if err := json.Unmarshal(resp.Body, &sr); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	page := &source.Page{URL: s.src.searchURL, HasNext: sr.Pivot != nil && *sr.Pivot != ""}
	for _, raw := range sr.Ads {
		link, id := adKeys(raw)
		if link == "" && id == "" {
			s.src.logger.Warn("skipping ad without identifier",
				zap.String("source", Name), zap.Int("page", s.page), zap.ByteString("ad", raw))
			continue
		}
		// a malformed ad still becomes a candidate so Listing reports it as failed
		page.Candidates = append(page.Candidates, entity.ListingCandidate{
			URL:        link,
			ExternalID: id,
			Payload:    raw,
		})
	}
	if page.HasNext {
		s.payload.Pivot = *sr.Pivot
	}
	s.src.logger.Info("fetched result page",
		zap.String("source", Name), zap.Int("page", s.page), zap.Int("listings", len(page.Candidates)))
	return page, nil
}

// adKeys recovers the url and list id of an ad field by field, so one badly
// typed field does not hide the other.
func adKeys(raw json.RawMessage) (string, string) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", ""
	}
	var link string
	if err := json.Unmarshal(fields["url"], &link); err != nil {
		link = ""
	}
	var id json.Number
	if err := json.Unmarshal(fields["list_id"], &id); err != nil {
		id = ""
	}
	return link, id.String()
}
