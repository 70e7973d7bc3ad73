// Package seloger crawls seloger.com: HTML result pages, ConfigDetail listing
// pages and the per listing details JSON.
package seloger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/user/listing-crawler/internal/entity"
	"github.com/user/listing-crawler/internal/extract"
	"github.com/user/listing-crawler/internal/fetch"
	"github.com/user/listing-crawler/internal/source"
	"github.com/user/listing-crawler/pkg/utils"
)

const Name = "seloger"

const (
	searchURL       = "https://www.seloger.com/list.html"
	detailsURL      = "https://www.seloger.com/detail,json,caracteristique_bien.json"
	autocompleteURL = "https://autocomplete.svc.groupe-seloger.com/api/v2.0/auto/complete/fra/63/10/8/SeLoger"

	defaultMaxRooms = 10
)

var transactions = map[string]int{"rent": 1, "buy": 2}

var propertyTypes = map[string]int{
	"apartment":          1,
	"house":              2,
	"parking":            3,
	"land":               4,
	"store":              6,
	"business":           7,
	"office":             8,
	"loft":               9,
	"apartment_building": 11,
	"other_building":     12,
	"castle":             13,
	"mansion":            14,
	"program":            15,
}

// Endpoints are the site URLs the adapter talks to.
type Endpoints struct {
	Search       string
	Details      string
	Autocomplete string
}

type Source struct {
	fetcher   fetch.Fetcher
	extractor *extract.Extractor
	endpoints Endpoints
	logger    *zap.Logger

	mu     sync.Mutex
	places map[string]string
}

type Option func(*Source)

func WithEndpoints(e Endpoints) Option { return func(s *Source) { s.endpoints = e } }

func WithLogger(l *zap.Logger) Option { return func(s *Source) { s.logger = l } }

func New(fetcher fetch.Fetcher, opts ...Option) (*Source, error) {
	ex, err := extract.Default().Extractor(Name)
	if err != nil {
		return nil, err
	}
	s := &Source{
		fetcher:   fetcher,
		extractor: ex,
		endpoints: Endpoints{Search: searchURL, Details: detailsURL, Autocomplete: autocompleteURL},
		logger:    zap.NewNop(),
		places:    map[string]string{},
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
		src:      s,
		criteria: criteria,
		params:   searchParams(criteria, types),
		timeout:  time.Duration(criteria.Timeout) * time.Second,
	}, nil
}

func searchParams(c entity.SearchCriteria, types []string) url.Values {
	transaction := transactions[c.Transaction]

	maxRooms := defaultMaxRooms
	if c.MaxRooms != nil {
		maxRooms = ceil(c.MaxRooms) + 1
	}
	maxBeds := defaultMaxRooms
	if c.MaxBeds != nil {
		maxBeds = ceil(c.MaxBeds) + 1
	}
	if maxBeds > maxRooms-1 {
		maxBeds = maxRooms - 1
	}

	params := url.Values{}
	params.Set("projects", strconv.Itoa(transaction))
	params.Set("types", strings.Join(types, ","))
	params.Set("price", bounds(c.MinPrice, c.MaxPrice))
	params.Set("surface", bounds(c.MinSize, c.MaxSize))
	params.Set("rooms", series(floor(c.MinRooms), maxRooms))
	params.Set("bedrooms", series(floor(c.MinBeds), maxBeds))
	params.Set("enterprise", "0")
	params.Set("qsVersion", "1.0")
	if transaction == transactions["buy"] {
		// old and new builds only
		params.Set("natures", "1,2")
	}
	return params
}

func floor(v *float64) int {
	if v == nil {
		return 0
	}
	return int(math.Floor(*v))
}

func ceil(v *float64) int {
	if v == nil {
		return 0
	}
	return int(math.Ceil(*v))
}

func bounds(min, max *float64) string {
	upper := "NaN"
	if m := ceil(max); m != 0 {
		upper = strconv.Itoa(m)
	}
	return fmt.Sprintf("%d/%s", floor(min), upper)
}

func series(from, to int) string {
	parts := make([]string, 0, to-from)
	for i := from; i < to; i++ {
		parts = append(parts, strconv.Itoa(i))
	}
	return strings.Join(parts, ",")
}

type search struct {
	src      *Source
	criteria entity.SearchCriteria
	params   url.Values
	timeout  time.Duration
	page     int
}

func (s *search) NextPage(ctx context.Context) (*source.Page, error) {
	if s.params.Get("places") == "" {
		places, err := s.src.placeCodes(ctx, s.criteria.PostCodes, s.timeout)
		if err != nil {
			return nil, err
		}
		s.params.Set("places", places)
	}

	query := url.Values{}
	for k, v := range s.params {
		query[k] = v
	}
	if s.page > 0 {
		query.Set("LISTING-LISTpg", strconv.Itoa(s.page+1))
	}

	resp, err := s.src.fetcher.Fetch(ctx, &entity.FetchRequest{
		Method:    http.MethodGet,
		URL:       s.src.endpoints.Search,
		Query:     query,
		Timeout:   s.timeout,
		Challenge: fetch.IsChallengeURL,
	})
	if err != nil {
		return nil, err
	}
	s.page++

	links, err := listingLinks(resp.FinalURL, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse result page: %w", err)
	}
	page := &source.Page{URL: resp.FinalURL, HasNext: len(links) > 0}
	for _, link := range links {
		page.Candidates = append(page.Candidates, entity.ListingCandidate{URL: link})
	}
	s.src.logger.Info("fetched result page",
		zap.String("source", Name), zap.Int("page", s.page), zap.Int("listings", len(links)))
	return page, nil
}

// listingLinks returns the canonical URLs of the result page, skipping
// sponsored listings hosted elsewhere. Relative links resolve against pageURL.
func listingLinks(pageURL string, body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		base = &url.URL{}
	}
	var links []string
	doc.Find(`a[name="classified-link"]`).Each(func(i int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		abs, err := utils.ToAbsoluteURL(base, href)
		if err != nil || !strings.Contains(abs, "seloger.com") {
			return
		}
		link, err := utils.StripQuery(abs)
		if err != nil {
			return
		}
		links = append(links, link)
	})
	return links, nil
}

type place struct {
	Params struct {
		Ci json.RawMessage `json:"ci"`
	} `json:"Params"`
}

// placeCodes resolves post codes to the site's place codes, e.g. "[{ci:750111}|{ci:750112}]".
func (s *Source) placeCodes(ctx context.Context, postCodes []string, timeout time.Duration) (string, error) {
	codes := make([]string, 0, len(postCodes))
	for _, cp := range postCodes {
		code, err := s.placeCode(ctx, cp, timeout)
		if err != nil {
			return "", err
		}
		codes = append(codes, fmt.Sprintf("{ci:%s}", code))
	}
	return "[" + strings.Join(codes, "|") + "]", nil
}

func (s *Source) placeCode(ctx context.Context, postCode string, timeout time.Duration) (string, error) {
	s.mu.Lock()
	code, ok := s.places[postCode]
	s.mu.Unlock()
	if ok {
		return code, nil
	}

	resp, err := s.fetcher.Fetch(ctx, &entity.FetchRequest{
		Method:  http.MethodGet,
		URL:     s.endpoints.Autocomplete,
		Query:   url.Values{"text": {postCode}},
		Timeout: timeout,
	})
	if err != nil {
		return "", err
	}
	var places []place
	if err := json.Unmarshal(resp.Body, &places); err != nil {
		return "", fmt.Errorf("decode places for %s: %w", postCode, err)
	}
	if len(places) == 0 || len(places[0].Params.Ci) == 0 {
		return "", &entity.ValidationError{Field: "post_codes", Message: fmt.Sprintf("unknown post code %s", postCode)}
	}
	code = strings.Trim(string(places[0].Params.Ci), `"`)

	s.mu.Lock()
	s.places[postCode] = code
	s.mu.Unlock()
	return code, nil
}
