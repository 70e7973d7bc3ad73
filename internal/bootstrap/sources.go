// Package bootstrap assembles the fetch stack and the site adapters shared
// by the API server and the one-shot scrape command.
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/user/listing-crawler/internal/adapter/chromedp_fetcher"
	"github.com/user/listing-crawler/internal/fetch"
	"github.com/user/listing-crawler/internal/proxy"
	"github.com/user/listing-crawler/internal/repository"
	"github.com/user/listing-crawler/internal/source"
	"github.com/user/listing-crawler/internal/source/leboncoin"
	"github.com/user/listing-crawler/internal/source/seloger"
	"github.com/user/listing-crawler/pkg/config"
)

const (
	FetchModeHTTP    = "http"
	FetchModeBrowser = "browser"
)

// Sources holds the wired registry and the resources to release on shutdown.
type Sources struct {
	Registry source.Registry
	Proxies  *proxy.Pool

	closers []func()
}

// Close releases the browser processes started in browser mode.
func (s *Sources) Close() {
	for _, c := range s.closers {
		c()
	}
}

// Transport returns the raw FetchTransport for a FETCH_MODE value.
func Transport(mode string, logger *zap.Logger) (repository.FetchTransport, func(), error) {
	httpTransport := fetch.NewHTTPTransport()
	switch mode {
	case "", FetchModeHTTP:
		return httpTransport, func() {}, nil
	case FetchModeBrowser:
		// leboncoin searches are POSTs, the browser hands them to plain HTTP
		browser := chromedp_fetcher.NewChromedpFetcher(httpTransport, logger)
		return browser, browser.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown fetch mode %q. Expected one of %s, %s", mode, FetchModeHTTP, FetchModeBrowser)
}

// Providers returns the proxy providers enabled by the configuration.
func Providers(cfg *config.Config) []proxy.Provider {
	providers := []proxy.Provider{proxy.NewProxyListProvider()}
	if cfg.Proxy11APIKey != "" {
		providers = append(providers, proxy.NewProxy11Provider(cfg.Proxy11APIKey))
	}
	return providers
}

// NewSources loads the proxy pool, builds the retry controller and registers
// every site adapter on top of it.
func NewSources(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Sources, error) {
	policy, err := proxy.ParsePolicy(cfg.ProxyPolicy)
	if err != nil {
		return nil, err
	}

	transport, closeTransport, err := Transport(cfg.FetchMode, logger)
	if err != nil {
		return nil, err
	}

	opts := []proxy.Option{
		proxy.WithPolicy(policy),
		proxy.WithMaxFailures(cfg.ProxyMaxFailures),
		proxy.WithMinRefreshInterval(cfg.ProxyRefreshInterval()),
		proxy.WithLogger(logger),
	}
	if r, ok := transport.(proxy.Retirer); ok {
		opts = append(opts, proxy.WithRetirer(r))
	}
	pool, err := proxy.Load(ctx, Providers(cfg), opts...)
	if err != nil {
		closeTransport()
		return nil, fmt.Errorf("load proxies: %w", err)
	}
	logger.Info("Proxy pool loaded", zap.Int("endpoints", len(pool.Endpoints())))

	controller := fetch.NewController(transport, pool, proxy.NewUserAgents(),
		fetch.WithMaxAttempts(cfg.FetchMaxAttempts),
		fetch.WithTimeout(cfg.FetchTimeoutDuration()),
		fetch.WithRateLimit(cfg.FetchRatePerSecond, 1),
		fetch.WithLogger(logger),
	)

	sel, err := seloger.New(controller, seloger.WithLogger(logger))
	if err != nil {
		closeTransport()
		return nil, fmt.Errorf("seloger: %w", err)
	}
	minDelay, maxDelay := cfg.PageDelay()
	lbc, err := leboncoin.New(controller,
		leboncoin.WithPageDelay(minDelay, maxDelay),
		leboncoin.WithLogger(logger),
	)
	if err != nil {
		closeTransport()
		return nil, fmt.Errorf("leboncoin: %w", err)
	}

	return &Sources{
		Registry: source.NewRegistry(sel, lbc),
		Proxies:  pool,
		closers:  []func(){closeTransport},
	}, nil
}
