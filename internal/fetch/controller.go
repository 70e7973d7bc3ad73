package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/user/listing-crawler/internal/entity"
	"github.com/user/listing-crawler/internal/proxy"
	"github.com/user/listing-crawler/internal/repository"
	"github.com/user/listing-crawler/pkg/metrics"
)

const (
	defaultMaxAttempts = 10
	defaultTimeout     = 5 * time.Second
)

// ProxySource is the part of the proxy pool the controller consumes.
type ProxySource interface {
	Next() (entity.ProxyEndpoint, error)
	Generation() uint64
	Replenish(ctx context.Context, gen uint64) error
	ReportFailure(ep entity.ProxyEndpoint)
	ReportSuccess(ep entity.ProxyEndpoint)
}

type UserAgentSource interface {
	Random() string
}

// Fetcher performs one logical request with retries.
type Fetcher interface {
	Fetch(ctx context.Context, req *entity.FetchRequest) (*entity.FetchResponse, error)
}

// Controller wraps every outbound call with proxy and user agent rotation,
// challenge detection and a bounded number of attempts.
type Controller struct {
	transport   repository.FetchTransport
	proxies     ProxySource
	agents      UserAgentSource
	limiter     *rate.Limiter
	maxAttempts int
	timeout     time.Duration
	logger      *zap.Logger
}

type Option func(*Controller)

func WithMaxAttempts(n int) Option { return func(c *Controller) { c.maxAttempts = n } }

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option { return func(c *Controller) { c.timeout = d } }

// WithRateLimit paces attempts across all callers. A non-positive rps disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Controller) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithLogger(l *zap.Logger) Option { return func(c *Controller) { c.logger = l } }

func NewController(transport repository.FetchTransport, proxies ProxySource, agents UserAgentSource, opts ...Option) *Controller {
	c := &Controller{
		transport:   transport,
		proxies:     proxies,
		agents:      agents,
		maxAttempts: defaultMaxAttempts,
		timeout:     defaultTimeout,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = 1
	}
	return c
}

// Fetch performs req with the configured attempt budget.
func (c *Controller) Fetch(ctx context.Context, req *entity.FetchRequest) (*entity.FetchResponse, error) {
	return c.FetchN(ctx, req, c.maxAttempts)
}

// FetchN performs req with at most maxAttempts attempts. It returns a terminal
// *entity.FetchError when every attempt failed and *entity.ProxyExhaustedError when
// no egress is left even after a pool refresh.
func (c *Controller) FetchN(ctx context.Context, req *entity.FetchRequest, maxAttempts int) (*entity.FetchResponse, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	target := req.FullURL()
	host := hostOf(target)
	detect := req.Challenge
	if detect == nil {
		detect = IsChallenge
	}

	timeout := c.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	var lastErr error
	lastKind := entity.FetchTransient
	refreshed := false

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		gen := c.proxies.Generation()
		ep, err := c.proxies.Next()
		if errors.Is(err, proxy.ErrExhausted) && !refreshed {
			refreshed = true
			c.logger.Info("proxy pool exhausted, replenishing", zap.String("url", target))
			if rerr := c.proxies.Replenish(ctx, gen); rerr != nil {
				return nil, rerr
			}
			ep, err = c.proxies.Next()
		}
		if err != nil {
			return nil, &entity.ProxyExhaustedError{Reason: err.Error()}
		}

		userAgent := c.agents.Random()
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := c.transport.RoundTrip(attemptCtx, req, ep, userAgent)
		cancel()

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			c.proxies.ReportFailure(ep)
			lastKind, lastErr = entity.FetchTransient, err
			metrics.FetchAttemptsTotal.WithLabelValues(host, "network").Inc()
			c.logger.Debug("failed to retrieve page",
				zap.String("url", target), zap.String("proxy", ep.String()),
				zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		if detect(resp) {
			lastKind = entity.FetchCaptcha
			lastErr = fmt.Errorf("challenge served with status %d at %s", resp.StatusCode, resp.FinalURL)
			metrics.FetchAttemptsTotal.WithLabelValues(host, "captcha").Inc()
			c.logger.Debug("bot challenge detected",
				zap.String("url", target), zap.String("proxy", ep.String()),
				zap.Int("status", resp.StatusCode), zap.Int("attempt", attempt))
			continue
		}

		c.proxies.ReportSuccess(ep)
		metrics.FetchAttemptsTotal.WithLabelValues(host, "success").Inc()
		return resp, nil
	}

	return nil, &entity.FetchError{
		Kind:     entity.FetchExhausted,
		Cause:    lastKind,
		URL:      target,
		Attempts: maxAttempts,
		Err:      lastErr,
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Hostname()
}
