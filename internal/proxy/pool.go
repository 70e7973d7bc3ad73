package proxy

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/listing-crawler/internal/entity"
	"github.com/user/listing-crawler/pkg/metrics"
)

// ErrExhausted is returned by Next when no healthy endpoint is left. Callers may Replenish.
var ErrExhausted = errors.New("proxy pool exhausted")

// Policy decides what a provider failure does to the whole load.
type Policy string

const (
	PolicyWarn  Policy = "warn"
	PolicyRaise Policy = "raise"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyWarn, PolicyRaise:
		return Policy(s), nil
	}
	return "", fmt.Errorf("'errors' must be 'warn' or 'raise'. Got '%s' instead", s)
}

// Mode selects a single pass over the endpoints or an endless cycle.
type Mode int

const (
	Finite Mode = iota
	Infinite
)

type endpointState struct {
	endpoint entity.ProxyEndpoint
	failures int
}

// Retirer is told when endpoints leave the rotation, either dropped by a
// refresh or taken out for repeated failures.
type Retirer interface {
	Retire(addresses ...string)
}

// Pool merges provider results into a shuffled, health tracked rotation.
type Pool struct {
	providers   []Provider
	policy      Policy
	mode        Mode
	maxFailures int
	minRefresh  time.Duration
	retirers    []Retirer
	logger      *zap.Logger

	// refreshMu serializes Refresh and Replenish
	refreshMu sync.Mutex

	mu          sync.Mutex
	endpoints   []*endpointState
	byAddress   map[string]*endpointState
	cursor      int
	generation  uint64
	refreshedAt time.Time
	rng         *rand.Rand
}

type Option func(*Pool)

func WithPolicy(policy Policy) Option { return func(p *Pool) { p.policy = policy } }

func WithMode(mode Mode) Option { return func(p *Pool) { p.mode = mode } }

// WithMaxFailures sets how many consecutive failures take an endpoint out of rotation.
// Zero keeps every endpoint forever.
func WithMaxFailures(n int) Option { return func(p *Pool) { p.maxFailures = n } }

func WithLogger(l *zap.Logger) Option { return func(p *Pool) { p.logger = l } }

// WithMinRefreshInterval bounds how often Replenish queries the providers.
// Exhaustion inside the interval rewinds the cached endpoints instead.
func WithMinRefreshInterval(d time.Duration) Option { return func(p *Pool) { p.minRefresh = d } }

// WithRetirer registers r to be told about endpoints leaving the rotation.
func WithRetirer(r Retirer) Option { return func(p *Pool) { p.retirers = append(p.retirers, r) } }

func WithSeed(seed int64) Option {
	return func(p *Pool) { p.rng = rand.New(rand.NewSource(seed)) }
}

func NewPool(providers []Provider, opts ...Option) *Pool {
	p := &Pool{
		providers:   providers,
		policy:      PolicyWarn,
		mode:        Infinite,
		maxFailures: 3,
		minRefresh:  time.Minute,
		logger:      zap.NewNop(),
		byAddress:   map[string]*endpointState{},
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Load builds a pool and performs the first Refresh.
func Load(ctx context.Context, providers []Provider, opts ...Option) (*Pool, error) {
	p := NewPool(providers, opts...)
	if err := p.Refresh(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// Refresh queries every provider again and swaps the rotation atomically.
func (p *Pool) Refresh(ctx context.Context) error {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()
	return p.refresh(ctx)
}

func (p *Pool) refresh(ctx context.Context) error {
	var merged []entity.ProxyEndpoint
	seen := map[string]bool{}

	for _, provider := range p.providers {
		addresses, err := provider.Fetch(ctx)
		if err != nil {
			if p.policy == PolicyRaise {
				return &entity.ProxyExhaustedError{Reason: fmt.Sprintf("failed to get proxies from %s: %v", provider.Name(), err)}
			}
			p.logger.Warn("failed to get proxies, proceeding without this provider",
				zap.String("provider", provider.Name()), zap.Error(err))
			continue
		}
		for _, addr := range addresses {
			if seen[addr] {
				continue
			}
			seen[addr] = true
			merged = append(merged, entity.ProxyEndpoint{Address: addr, Provider: provider.Name()})
		}
	}

	if len(merged) == 0 {
		if p.policy == PolicyRaise {
			return &entity.ProxyExhaustedError{Reason: "providers returned no proxies"}
		}
		p.logger.Warn("failed to get any proxy, proceeding without")
		merged = []entity.ProxyEndpoint{entity.Direct()}
	}

	states := make([]*endpointState, len(merged))
	byAddress := make(map[string]*endpointState, len(merged))
	for i, ep := range merged {
		states[i] = &endpointState{endpoint: ep}
		byAddress[ep.Address] = states[i]
	}

	p.mu.Lock()
	p.rng.Shuffle(len(states), func(i, j int) { states[i], states[j] = states[j], states[i] })
	var dropped []string
	for addr := range p.byAddress {
		if _, ok := byAddress[addr]; !ok {
			dropped = append(dropped, addr)
		}
	}
	p.endpoints = states
	p.byAddress = byAddress
	p.cursor = 0
	p.generation++
	p.refreshedAt = time.Now()
	p.mu.Unlock()

	p.retire(dropped...)

	metrics.ProxyPoolSize.Set(float64(len(states)))
	p.logger.Info("proxy pool loaded", zap.Int("endpoints", len(states)))
	return nil
}

// Next returns the next healthy endpoint. A finite pool walks the list once; an
// infinite pool cycles. Both return ErrExhausted once no healthy endpoint remains.
func (p *Pool) Next() (entity.ProxyEndpoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.endpoints)
	if p.mode == Finite {
		for p.cursor < n {
			st := p.endpoints[p.cursor]
			p.cursor++
			if p.healthy(st) {
				return st.endpoint, nil
			}
		}
		return entity.ProxyEndpoint{}, ErrExhausted
	}

	for i := 0; i < n; i++ {
		st := p.endpoints[p.cursor]
		p.cursor = (p.cursor + 1) % n
		if p.healthy(st) {
			return st.endpoint, nil
		}
	}
	return entity.ProxyEndpoint{}, ErrExhausted
}

func (p *Pool) healthy(st *endpointState) bool {
	return st.endpoint.IsDirect() || p.maxFailures <= 0 || st.failures < p.maxFailures
}

// Generation identifies the current rotation. It changes on every Refresh or Replenish.
func (p *Pool) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

// Replenish restores the rotation after Next reported ErrExhausted for
// generation gen. Concurrent callers that saw the same exhaustion share one
// replenishment. Providers are queried at most once per minimum refresh
// interval; inside it the cached endpoints are rewound and their failure
// counts cleared.
func (p *Pool) Replenish(ctx context.Context, gen uint64) error {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	p.mu.Lock()
	if p.generation != gen {
		p.mu.Unlock()
		return nil
	}
	if time.Since(p.refreshedAt) >= p.minRefresh {
		p.mu.Unlock()
		return p.refresh(ctx)
	}
	for _, st := range p.endpoints {
		st.failures = 0
	}
	p.cursor = 0
	p.generation++
	n := len(p.endpoints)
	p.mu.Unlock()

	p.logger.Debug("rewinding cached proxy list", zap.Int("endpoints", n))
	return nil
}

// ReportFailure counts a hard failure against ep.
func (p *Pool) ReportFailure(ep entity.ProxyEndpoint) {
	p.mu.Lock()
	st, ok := p.byAddress[ep.Address]
	retired := false
	if ok {
		st.failures++
		retired = !ep.IsDirect() && p.maxFailures > 0 && st.failures == p.maxFailures
	}
	p.mu.Unlock()

	if retired {
		p.logger.Debug("proxy left the rotation", zap.String("proxy", ep.String()))
		p.retire(ep.Address)
	}
}

func (p *Pool) retire(addresses ...string) {
	if len(addresses) == 0 {
		return
	}
	for _, r := range p.retirers {
		r.Retire(addresses...)
	}
}

// ReportSuccess clears the consecutive failure count of ep.
func (p *Pool) ReportSuccess(ep entity.ProxyEndpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok := p.byAddress[ep.Address]; ok {
		st.failures = 0
	}
}

// Endpoints returns a snapshot of the loaded endpoints in rotation order.
func (p *Pool) Endpoints() []entity.ProxyEndpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]entity.ProxyEndpoint, len(p.endpoints))
	for i, st := range p.endpoints {
		out[i] = st.endpoint
	}
	return out
}

// Healthy counts endpoints still in rotation.
func (p *Pool) Healthy() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, st := range p.endpoints {
		if p.healthy(st) {
			n++
		}
	}
	return n
}
