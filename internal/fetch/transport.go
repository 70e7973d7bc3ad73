package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/user/listing-crawler/internal/entity"
)

const maxBodyBytes = 10 << 20

// HTTPTransport issues requests with net/http, keeping one client per egress so
// connections are reused across attempts through the same proxy.
type HTTPTransport struct {
	mu      sync.Mutex
	clients map[string]*http.Client
}

func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{clients: map[string]*http.Client{}}
}

func (t *HTTPTransport) RoundTrip(ctx context.Context, req *entity.FetchRequest, proxy entity.ProxyEndpoint, userAgent string) (*entity.FetchResponse, error) {
	client, err := t.client(proxy)
	if err != nil {
		return nil, err
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.FullURL(), body)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if userAgent != "" {
		httpReq.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &entity.FetchResponse{
		StatusCode: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
		Header:     resp.Header,
		Body:       payload,
	}, nil
}

func (t *HTTPTransport) client(proxy entity.ProxyEndpoint) (*http.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.clients[proxy.Address]; ok {
		return c, nil
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       60 * time.Second,
	}
	if !proxy.IsDirect() {
		proxyURL, err := url.Parse(proxy.Address)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy %q: %w", proxy.Address, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	c := &http.Client{Transport: transport}
	t.clients[proxy.Address] = c
	return c, nil
}

// Retire drops the clients of endpoints that left the proxy rotation and
// closes their idle connections.
func (t *HTTPTransport) Retire(addresses ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, addr := range addresses {
		if c, ok := t.clients[addr]; ok {
			c.CloseIdleConnections()
			delete(t.clients, addr)
		}
	}
}

// Clients reports how many per-egress clients are cached.
func (t *HTTPTransport) Clients() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.clients)
}
