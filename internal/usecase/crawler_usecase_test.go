package usecase_test

import (
	"context"
	"errors"
	"os"
	"path"
	"reflect"
	"sync"
	"testing"

	"github.com/user/listing-crawler/internal/adapter/memory"
	"github.com/user/listing-crawler/internal/entity"
	"github.com/user/listing-crawler/internal/source"
	"github.com/user/listing-crawler/internal/usecase"
	"github.com/user/listing-crawler/pkg/metrics"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

const fakeName = "fake"

type fakeSource struct {
	pages   []source.Page
	pageErr map[int]error
	errs    map[string]error
	aliases map[string]string

	mu           sync.Mutex
	pageCalls    int
	listingCalls []string
}

func (f *fakeSource) Name() string { return fakeName }

func (f *fakeSource) NewSearch(c entity.SearchCriteria) (source.Search, error) {
	if err := entity.CheckToken("transaction", c.Transaction, []string{"rent", "buy"}); err != nil {
		return nil, err
	}
	return &fakeSearch{src: f}, nil
}

type fakeSearch struct {
	src *fakeSource
}

func (s *fakeSearch) NextPage(ctx context.Context) (*source.Page, error) {
	f := s.src
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.pageCalls
	f.pageCalls++
	if err, ok := f.pageErr[i]; ok {
		return nil, err
	}
	if i >= len(f.pages) {
		return &source.Page{}, nil
	}
	p := f.pages[i]
	return &p, nil
}

func (s *fakeSearch) Listing(ctx context.Context, cand entity.ListingCandidate) (*entity.ExtractedListing, error) {
	f := s.src
	f.mu.Lock()
	f.listingCalls = append(f.listingCalls, path.Base(cand.URL))
	err := f.errs[path.Base(cand.URL)]
	alias := f.aliases[path.Base(cand.URL)]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	l := listing(path.Base(cand.URL))
	if alias != "" {
		l.ExternalID = alias
	}
	return l, nil
}

func (f *fakeSource) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.listingCalls...)
}

func cand(id string) entity.ListingCandidate {
	return entity.ListingCandidate{URL: "https://listings.example/" + id}
}

func page(hasNext bool, ids ...string) source.Page {
	p := source.Page{HasNext: hasNext}
	for _, id := range ids {
		p.Candidates = append(p.Candidates, cand(id))
	}
	return p
}

func listing(id string) *entity.ExtractedListing {
	city := "paris"
	return &entity.ExtractedListing{
		Source:     fakeName,
		URL:        "https://listings.example/" + id,
		ExternalID: id,
		Price:      1000,
		City:       &city,
	}
}

type fixture struct {
	repo    *memory.ListingRepo
	index   *memory.DedupIndex
	crawler *usecase.CrawlerUseCase
}

func newFixture(t *testing.T, known []string, opts ...usecase.CrawlerOption) *fixture {
	t.Helper()
	repo := memory.NewListingRepo()
	for _, id := range known {
		if _, err := repo.CreateListing(context.Background(), listing(id), nil); err != nil {
			t.Fatalf("failed to seed listing %s: %v", id, err)
		}
	}
	index := memory.NewDedupIndex()
	gate := usecase.NewIngestUseCase(repo, index, nil)
	return &fixture{repo: repo, index: index, crawler: usecase.NewCrawlerUseCase(gate, repo, index, opts...)}
}

func rent(maxDuplicates, numResults int) entity.SearchCriteria {
	return entity.SearchCriteria{
		Transaction:   "rent",
		PostCodes:     []string{"75011"},
		MaxDuplicates: maxDuplicates,
		NumResults:    numResults,
	}
}

func urls(ids ...string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, "https://listings.example/"+id)
	}
	return out
}

func addedIDs(r *entity.CrawlResult) []string {
	ids := make([]string, 0, len(r.Added))
	for _, l := range r.Added {
		ids = append(ids, l.ExternalID)
	}
	return ids
}

func TestCrawlStopsOnSaturatedFirstPage(t *testing.T) {
	fx := newFixture(t, []string{"d", "e"})
	src := &fakeSource{pages: []source.Page{
		page(true, "a", "b", "c", "d", "e"),
		page(false, "f", "g"),
	}}

	result, err := fx.crawler.Crawl(context.Background(), src, rent(2, 0))
	if err != nil {
		t.Fatalf("Crawl returned error: %v", err)
	}
	if len(result.Added) != 3 || len(result.Seen) != 2 || len(result.Failed) != 0 {
		t.Fatalf("expected added=3 seen=2 failed=0, got %s", result.Summary())
	}
	if src.pageCalls != 1 {
		t.Fatalf("expected page 2 not to be fetched, got %d page requests", src.pageCalls)
	}
	if result.Summary() != "Of the 5 listings visited, we added 3, had already seen 2 and choked on 0." {
		t.Fatalf("unexpected summary: %s", result.Summary())
	}
}

func TestCrawlStoppingLaw(t *testing.T) {
	fx := newFixture(t, []string{"k1", "k2", "k3", "k4", "k5"})
	src := &fakeSource{pages: []source.Page{
		page(true, "n1", "k1", "k2", "n2", "k3", "k4", "k5", "n3"),
		page(false, "n4"),
	}}

	result, err := fx.crawler.Crawl(context.Background(), src, rent(3, 0))
	if err != nil {
		t.Fatalf("Crawl returned error: %v", err)
	}
	if got := src.calls(); !reflect.DeepEqual(got, []string{"n1", "n2"}) {
		t.Fatalf("expected nothing past the third consecutive duplicate, fetched %v", got)
	}
	if !reflect.DeepEqual(result.Seen, urls("k1", "k2", "k3", "k4", "k5")) {
		t.Fatalf("unexpected seen listings: %v", result.Seen)
	}
}

func TestCrawlQuotaLaw(t *testing.T) {
	fx := newFixture(t, nil)
	src := &fakeSource{pages: []source.Page{
		page(true, "a", "b", "c"),
		page(true, "d", "e", "f"),
		page(false, "g"),
	}}

	result, err := fx.crawler.Crawl(context.Background(), src, rent(0, 4))
	if err != nil {
		t.Fatalf("Crawl returned error: %v", err)
	}
	if result.Processed() != 4 || !reflect.DeepEqual(addedIDs(result), []string{"a", "b", "c", "d"}) {
		t.Fatalf("expected exactly 4 processed listings, got %s", result.Summary())
	}
	if src.pageCalls != 2 {
		t.Fatalf("expected 2 page requests, got %d", src.pageCalls)
	}
}

func TestCrawlRecordsFailedCandidates(t *testing.T) {
	fx := newFixture(t, []string{"k1"})
	src := &fakeSource{
		pages: []source.Page{page(false, "k1", "bad", "blocked", "ok")},
		errs: map[string]error{
			"bad":     entity.NewFieldsNotFound("https://listings.example/bad"),
			"blocked": &entity.FetchError{Kind: entity.FetchExhausted, Cause: entity.FetchCaptcha, Attempts: 10},
		},
	}

	result, err := fx.crawler.Crawl(context.Background(), src, rent(2, 0))
	if err != nil {
		t.Fatalf("Crawl returned error: %v", err)
	}
	if !reflect.DeepEqual(result.Failed, urls("bad", "blocked")) {
		t.Fatalf("unexpected failed listings: %v", result.Failed)
	}
	if !reflect.DeepEqual(addedIDs(result), []string{"ok"}) || len(result.Seen) != 1 {
		t.Fatalf("unexpected result: %s", result.Summary())
	}
}

func TestCrawlFailuresLeaveDuplicateCounter(t *testing.T) {
	fx := newFixture(t, []string{"k1", "k2"})
	src := &fakeSource{
		pages: []source.Page{page(false, "k1", "bad", "k2", "n1")},
		errs:  map[string]error{"bad": entity.NewFieldsNotFound("")},
	}

	result, err := fx.crawler.Crawl(context.Background(), src, rent(2, 0))
	if err != nil {
		t.Fatalf("Crawl returned error: %v", err)
	}
	// k1, bad, k2 counts two consecutive duplicates: the failure neither resets nor increments
	if len(result.Added) != 0 || len(result.Seen) != 2 || len(result.Failed) != 1 {
		t.Fatalf("unexpected result: %s", result.Summary())
	}
}

func TestCrawlAliasedListingIsSeen(t *testing.T) {
	fx := newFixture(t, nil)
	src := &fakeSource{
		pages:   []source.Page{page(false, "a", "a-prestige", "b")},
		aliases: map[string]string{"a-prestige": "a"},
	}

	result, err := fx.crawler.Crawl(context.Background(), src, rent(5, 0))
	if err != nil {
		t.Fatalf("Crawl returned error: %v", err)
	}
	if !reflect.DeepEqual(addedIDs(result), []string{"a", "b"}) || !reflect.DeepEqual(result.Seen, urls("a-prestige")) {
		t.Fatalf("unexpected result: added=%v seen=%v", addedIDs(result), result.Seen)
	}
	if fx.repo.Count() != 2 {
		t.Fatalf("expected 2 stored listings, got %d", fx.repo.Count())
	}
}

func TestCrawlRejectsUnknownTransactionBeforeNetwork(t *testing.T) {
	fx := newFixture(t, nil)
	src := &fakeSource{pages: []source.Page{page(false, "a")}}

	c := rent(0, 0)
	c.Transaction = "lease"
	result, err := fx.crawler.Crawl(context.Background(), src, c)

	var verr *entity.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if result != nil || src.pageCalls != 0 || len(src.calls()) != 0 {
		t.Fatalf("expected no network activity, got %d page requests", src.pageCalls)
	}
}

func TestCrawlSearchFailureReturnsPartialResult(t *testing.T) {
	fx := newFixture(t, nil)
	pageErr := &entity.FetchError{Kind: entity.FetchExhausted, Cause: entity.FetchTransient, URL: "https://listings.example/search", Attempts: 10}
	src := &fakeSource{
		pages:   []source.Page{page(true, "a", "b")},
		pageErr: map[int]error{1: pageErr},
	}

	result, err := fx.crawler.Crawl(context.Background(), src, rent(0, 0))
	var ferr *entity.FetchError
	if !errors.As(err, &ferr) || !ferr.Exhausted() {
		t.Fatalf("expected the search FetchError to surface, got %v", err)
	}
	if result == nil || len(result.Added) != 2 {
		t.Fatalf("expected the first page to be kept, got %+v", result)
	}
}

func TestCrawlProxyExhaustionAborts(t *testing.T) {
	fx := newFixture(t, nil)
	src := &fakeSource{
		pages: []source.Page{page(false, "a", "b", "c")},
		errs:  map[string]error{"b": &entity.ProxyExhaustedError{Reason: "providers returned no proxies"}},
	}

	result, err := fx.crawler.Crawl(context.Background(), src, rent(0, 0))
	var perr *entity.ProxyExhaustedError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProxyExhaustedError, got %v", err)
	}
	if len(result.Added) != 1 || len(result.Failed) != 0 {
		t.Fatalf("unexpected partial result: %s", result.Summary())
	}
}

func TestCrawlDetailWorkersKeepDiscoveryOrder(t *testing.T) {
	fx := newFixture(t, []string{"d", "e"}, usecase.WithDetailWorkers(4))
	src := &fakeSource{pages: []source.Page{
		page(true, "a", "b", "c", "d", "e", "f"),
		page(false, "g"),
	}}

	result, err := fx.crawler.Crawl(context.Background(), src, rent(2, 0))
	if err != nil {
		t.Fatalf("Crawl returned error: %v", err)
	}
	if !reflect.DeepEqual(addedIDs(result), []string{"a", "b", "c"}) || !reflect.DeepEqual(result.Seen, urls("d", "e")) {
		t.Fatalf("unexpected result: added=%v seen=%v", addedIDs(result), result.Seen)
	}
	if src.pageCalls != 1 {
		t.Fatalf("expected a single page request, got %d", src.pageCalls)
	}
}

func TestCrawlHonoursCancellation(t *testing.T) {
	fx := newFixture(t, nil)
	src := &fakeSource{pages: []source.Page{page(false, "a")}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := fx.crawler.Crawl(ctx, src, rent(0, 0)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
