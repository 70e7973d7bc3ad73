package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/user/listing-crawler/internal/entity"
	"github.com/user/listing-crawler/pkg/metrics"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

type failingProvider struct{}

func (failingProvider) Name() string { return "broken" }

func (failingProvider) Fetch(context.Context) ([]string, error) {
	return nil, errors.New("service unavailable")
}

func TestRefreshMergesAndDedups(t *testing.T) {
	a := &StaticProvider{Label: "a", Addresses: []string{"1.1.1.1:80", "2.2.2.2:80"}}
	b := &StaticProvider{Label: "b", Addresses: []string{"2.2.2.2:80", "3.3.3.3:3128"}}

	p, err := Load(context.Background(), []Provider{a, b}, WithSeed(1))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	var got []string
	for _, ep := range p.Endpoints() {
		got = append(got, ep.Address)
	}
	sort.Strings(got)
	want := []string{"http://1.1.1.1:80", "http://2.2.2.2:80", "http://3.3.3.3:3128"}
	if len(got) != len(want) {
		t.Fatalf("unexpected endpoints: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected endpoints: %v", got)
		}
	}
}

func TestWarnPolicyFallsBackToDirect(t *testing.T) {
	p, err := Load(context.Background(), []Provider{failingProvider{}})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	ep, err := p.Next()
	if err != nil {
		t.Fatalf("Next returned error: %v", err)
	}
	if !ep.IsDirect() {
		t.Fatalf("expected direct sentinel, got %v", ep)
	}

	// a failing direct connection never leaves the rotation
	p.ReportFailure(ep)
	p.ReportFailure(ep)
	p.ReportFailure(ep)
	if _, err := p.Next(); err != nil {
		t.Fatalf("direct endpoint should stay usable: %v", err)
	}
}

func TestWarnPolicySkipsFailedProvider(t *testing.T) {
	ok := &StaticProvider{Addresses: []string{"1.1.1.1:80"}}
	p, err := Load(context.Background(), []Provider{failingProvider{}, ok})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if eps := p.Endpoints(); len(eps) != 1 || eps[0].Address != "http://1.1.1.1:80" {
		t.Fatalf("unexpected endpoints: %v", eps)
	}
}

func TestRaisePolicyAborts(t *testing.T) {
	ok := &StaticProvider{Addresses: []string{"1.1.1.1:80"}}
	_, err := Load(context.Background(), []Provider{ok, failingProvider{}}, WithPolicy(PolicyRaise))
	var perr *entity.ProxyExhaustedError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProxyExhaustedError, got %v", err)
	}

	_, err = Load(context.Background(), nil, WithPolicy(PolicyRaise))
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProxyExhaustedError for empty pool, got %v", err)
	}
}

func TestFiniteModeExhausts(t *testing.T) {
	prov := &StaticProvider{Addresses: []string{"1.1.1.1:80", "2.2.2.2:80"}}
	p, err := Load(context.Background(), []Provider{prov}, WithMode(Finite))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := p.Next(); err != nil {
			t.Fatalf("Next #%d returned error: %v", i, err)
		}
	}
	if _, err := p.Next(); !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}

	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if _, err := p.Next(); err != nil {
		t.Fatalf("expected refreshed pool to serve again: %v", err)
	}
}

type countingProvider struct {
	mu        sync.Mutex
	calls     int
	addresses []string
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) Fetch(context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return parseProxyLines(strings.Join(p.addresses, "\n")), nil
}

type recordingRetirer struct {
	mu      sync.Mutex
	retired []string
}

func (r *recordingRetirer) Retire(addresses ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retired = append(r.retired, addresses...)
}

func drain(t *testing.T, p *Pool) {
	t.Helper()
	for i := 0; ; i++ {
		if _, err := p.Next(); errors.Is(err, ErrExhausted) {
			return
		}
		if i > 100 {
			t.Fatal("pool never exhausted")
		}
	}
}

func TestReplenishSharesOneRefresh(t *testing.T) {
	prov := &countingProvider{addresses: []string{"1.1.1.1:80", "2.2.2.2:80"}}
	p, err := Load(context.Background(), []Provider{prov}, WithMode(Finite), WithMinRefreshInterval(0))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	drain(t, p)

	gen := p.Generation()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Replenish(context.Background(), gen); err != nil {
				t.Errorf("Replenish returned error: %v", err)
			}
		}()
	}
	wg.Wait()

	if prov.calls != 2 {
		t.Fatalf("expected one provider query per exhaustion, got %d calls", prov.calls)
	}
	if p.Generation() == gen {
		t.Fatal("expected a new generation")
	}
	if _, err := p.Next(); err != nil {
		t.Fatalf("expected the replenished pool to serve: %v", err)
	}
}

func TestReplenishRewindsInsideRefreshInterval(t *testing.T) {
	prov := &countingProvider{addresses: []string{"1.1.1.1:80"}}
	p, err := Load(context.Background(), []Provider{prov}, WithMaxFailures(1), WithMinRefreshInterval(time.Hour))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	ep, _ := p.Next()
	p.ReportFailure(ep)
	if _, err := p.Next(); !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := p.Replenish(context.Background(), p.Generation()); err != nil {
			t.Fatalf("Replenish returned error: %v", err)
		}
		got, err := p.Next()
		if err != nil || got.Address != ep.Address {
			t.Fatalf("expected the cached endpoint back, got %v (err=%v)", got, err)
		}
		p.ReportFailure(got)
	}
	if prov.calls != 1 {
		t.Fatalf("expected providers to be queried once, got %d calls", prov.calls)
	}
}

func TestRetirerSeesDroppedEndpoints(t *testing.T) {
	prov := &countingProvider{addresses: []string{"1.1.1.1:80", "2.2.2.2:80"}}
	r := &recordingRetirer{}
	p, err := Load(context.Background(), []Provider{prov}, WithMaxFailures(2), WithRetirer(r))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(r.retired) != 0 {
		t.Fatalf("did not expect retirements on first load: %v", r.retired)
	}

	bad := entity.ProxyEndpoint{Address: "http://1.1.1.1:80"}
	p.ReportFailure(bad)
	if len(r.retired) != 0 {
		t.Fatalf("retired before reaching the failure limit: %v", r.retired)
	}
	p.ReportFailure(bad)
	p.ReportFailure(bad)
	if len(r.retired) != 1 || r.retired[0] != bad.Address {
		t.Fatalf("expected one retirement of %s, got %v", bad.Address, r.retired)
	}

	prov.addresses = []string{"1.1.1.1:80", "3.3.3.3:80"}
	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if len(r.retired) != 2 || r.retired[1] != "http://2.2.2.2:80" {
		t.Fatalf("expected the refreshed-away endpoint to retire, got %v", r.retired)
	}
}

func TestInfiniteModeCyclesAndDropsUnhealthy(t *testing.T) {
	prov := &StaticProvider{Addresses: []string{"1.1.1.1:80", "2.2.2.2:80"}}
	p, err := Load(context.Background(), []Provider{prov}, WithMaxFailures(2))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	first, _ := p.Next()
	second, _ := p.Next()
	third, _ := p.Next()
	if first == second || third != first {
		t.Fatalf("expected a cycle, got %v %v %v", first, second, third)
	}

	p.ReportFailure(first)
	p.ReportFailure(first)
	if p.Healthy() != 1 {
		t.Fatalf("expected 1 healthy endpoint, got %d", p.Healthy())
	}
	for i := 0; i < 3; i++ {
		ep, err := p.Next()
		if err != nil || ep != second {
			t.Fatalf("expected only %v, got %v (%v)", second, ep, err)
		}
	}

	p.ReportFailure(second)
	p.ReportSuccess(second)
	p.ReportFailure(second)
	if _, err := p.Next(); err != nil {
		t.Fatalf("success should reset the failure count: %v", err)
	}
	p.ReportFailure(second)
	if _, err := p.Next(); !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}

func TestProxyListProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("type") != "https" {
			t.Fatalf("unexpected query: %s", r.URL.RawQuery)
		}
		w.Write([]byte("10.0.0.1:8080\r\n10.0.0.2:3128\r\n"))
	}))
	defer srv.Close()

	prov := NewProxyListProvider()
	prov.BaseURL = srv.URL
	got, err := prov.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(got) != 2 || got[0] != "http://10.0.0.1:8080" || got[1] != "http://10.0.0.2:3128" {
		t.Fatalf("unexpected proxies: %v", got)
	}
}

func TestProxyListProviderBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	prov := NewProxyListProvider()
	prov.BaseURL = srv.URL
	if _, err := prov.Fetch(context.Background()); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestProxy11Provider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "secret" {
			w.Write([]byte(`{"error": "invalid key"}`))
			return
		}
		w.Write([]byte("10.0.0.3:80\n"))
	}))
	defer srv.Close()

	prov := NewProxy11Provider("secret")
	prov.BaseURL = srv.URL
	got, err := prov.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(got) != 1 || got[0] != "http://10.0.0.3:80" {
		t.Fatalf("unexpected proxies: %v", got)
	}

	prov.APIKey = "wrong"
	if _, err := prov.Fetch(context.Background()); err == nil {
		t.Fatal("expected error body to fail")
	}

	prov.APIKey = ""
	if _, err := prov.Fetch(context.Background()); err == nil {
		t.Fatal("expected missing key to fail")
	}
}

func TestParsePolicy(t *testing.T) {
	if _, err := ParsePolicy("ignore"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
	if p, err := ParsePolicy("raise"); err != nil || p != PolicyRaise {
		t.Fatalf("unexpected result: %v %v", p, err)
	}
}

func TestUserAgentsRandom(t *testing.T) {
	ua := NewUserAgents("a", "b")
	for i := 0; i < 20; i++ {
		if got := ua.Random(); got != "a" && got != "b" {
			t.Fatalf("unexpected user agent %q", got)
		}
	}
	if NewUserAgents().Random() == "" {
		t.Fatal("default user agents should not be empty")
	}
}
