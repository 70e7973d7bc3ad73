package chromedp_fetcher

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/user/listing-crawler/internal/entity"
	"github.com/user/listing-crawler/internal/proxy"
	"github.com/user/listing-crawler/internal/repository"
)

type allocator struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// ChromedpFetcher loads pages in headless Chrome. Proxy flags are fixed per
// browser process, so one allocator is kept per egress. Requests a browser
// tab cannot issue are handed to the fallback transport.
type ChromedpFetcher struct {
	mu         sync.Mutex
	allocators map[string]allocator
	fallback   repository.FetchTransport
	logger     *zap.Logger
}

// NewChromedpFetcher creates a FetchTransport backed by chromedp. fallback may be nil.
func NewChromedpFetcher(fallback repository.FetchTransport, logger *zap.Logger) *ChromedpFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromedpFetcher{
		allocators: map[string]allocator{},
		fallback:   fallback,
		logger:     logger,
	}
}

func (f *ChromedpFetcher) RoundTrip(ctx context.Context, req *entity.FetchRequest, ep entity.ProxyEndpoint, userAgent string) (*entity.FetchResponse, error) {
	if req.Method != "" && req.Method != http.MethodGet {
		if f.fallback == nil {
			return nil, fmt.Errorf("browser transport cannot issue %s requests", req.Method)
		}
		return f.fallback.RoundTrip(ctx, req, ep, userAgent)
	}

	taskCtx, cancel := chromedp.NewContext(f.allocator(ep), chromedp.WithLogf(f.logger.Sugar().Debugf))
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var (
		mu  sync.Mutex
		doc *network.Response
	)
	chromedp.ListenTarget(taskCtx, func(ev interface{}) {
		e, ok := ev.(*network.EventResponseReceived)
		if !ok || e.Type != network.ResourceTypeDocument {
			return
		}
		mu.Lock()
		if doc == nil {
			doc = e.Response
		}
		mu.Unlock()
	})

	actions := []chromedp.Action{network.Enable()}
	if userAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(userAgent))
	}
	if headers := extraHeaders(req.Header); len(headers) > 0 {
		actions = append(actions, network.SetExtraHTTPHeaders(headers))
	}
	actions = append(actions, chromedp.Navigate(req.FullURL()))

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return nil, err
	}

	mu.Lock()
	main := doc
	mu.Unlock()

	var body, finalURL string
	read := chromedp.OuterHTML("html", &body, chromedp.ByQuery)
	if main != nil && strings.Contains(main.MimeType, "json") {
		// the browser wraps raw JSON in a document
		read = chromedp.Evaluate(`document.body.innerText`, &body)
	}
	if err := chromedp.Run(taskCtx, chromedp.Location(&finalURL), read); err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}

	resp := &entity.FetchResponse{
		StatusCode: http.StatusOK,
		FinalURL:   finalURL,
		Header:     http.Header{},
		Body:       []byte(body),
	}
	if main != nil {
		resp.StatusCode = int(main.Status)
		for k, v := range main.Headers {
			resp.Header.Set(k, fmt.Sprint(v))
		}
	}
	return resp, nil
}

// Close shuts down every browser started by the fetcher.
func (f *ChromedpFetcher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for addr, a := range f.allocators {
		a.cancel()
		delete(f.allocators, addr)
	}
}

// Retire shuts down the browsers of endpoints that left the proxy rotation.
func (f *ChromedpFetcher) Retire(addresses ...string) {
	f.mu.Lock()
	for _, addr := range addresses {
		if a, ok := f.allocators[addr]; ok {
			a.cancel()
			delete(f.allocators, addr)
		}
	}
	f.mu.Unlock()

	if r, ok := f.fallback.(proxy.Retirer); ok {
		r.Retire(addresses...)
	}
}

func (f *ChromedpFetcher) allocator(ep entity.ProxyEndpoint) context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()

	if a, ok := f.allocators[ep.Address]; ok {
		return a.ctx
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if !ep.IsDirect() {
		opts = append(opts, chromedp.ProxyServer(ep.Address))
	}
	ctx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	f.allocators[ep.Address] = allocator{ctx: ctx, cancel: cancel}
	f.logger.Debug("started browser allocator", zap.String("proxy", ep.String()))
	return ctx
}

// extraHeaders converts request headers for the DevTools protocol. The user
// agent is overridden separately.
func extraHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for k, vs := range h {
		if len(vs) == 0 || strings.EqualFold(k, "User-Agent") {
			continue
		}
		headers[k] = strings.Join(vs, ", ")
	}
	return headers
}
