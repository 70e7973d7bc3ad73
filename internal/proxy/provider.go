package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	proxyListURL = "https://www.proxy-list.download/api/v1/get"
	proxy11URL   = "https://proxy11.com/api/proxy.txt"
)

// Provider is an external proxy list.
type Provider interface {
	Name() string
	// Fetch returns "protocol://host:port" addresses.
	Fetch(ctx context.Context) ([]string, error)
}

func defaultClient() *http.Client {
	return &http.Client{Timeout: 15 * time.Second}
}

// ProxyListProvider reads proxy-list.download.
type ProxyListProvider struct {
	BaseURL  string
	Protocol string
	Client   *http.Client
}

func NewProxyListProvider() *ProxyListProvider {
	return &ProxyListProvider{BaseURL: proxyListURL, Protocol: "https", Client: defaultClient()}
}

func (p *ProxyListProvider) Name() string { return "proxy-list.download" }

func (p *ProxyListProvider) Fetch(ctx context.Context) ([]string, error) {
	q := url.Values{"type": {p.Protocol}}
	status, body, err := getText(ctx, p.Client, p.BaseURL+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("got status code %d and response %q", status, body)
	}
	return parseProxyLines(body), nil
}

// Proxy11Provider reads proxy11.com. It needs an API key.
type Proxy11Provider struct {
	APIKey  string
	BaseURL string
	Type    string
	Speed   int
	Country string
	Limit   int
	Client  *http.Client
}

func NewProxy11Provider(apiKey string) *Proxy11Provider {
	return &Proxy11Provider{APIKey: apiKey, BaseURL: proxy11URL, Type: "anonymous", Speed: 2, Client: defaultClient()}
}

func (p *Proxy11Provider) Name() string { return "proxy11.com" }

func (p *Proxy11Provider) Fetch(ctx context.Context) ([]string, error) {
	if p.APIKey == "" {
		return nil, errors.New("proxy11 API key is missing")
	}
	q := url.Values{"key": {p.APIKey}}
	if p.Type != "" {
		q.Set("type", p.Type)
	}
	if p.Speed > 0 {
		q.Set("speed", strconv.Itoa(p.Speed))
	}
	if p.Country != "" {
		q.Set("country", p.Country)
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	status, body, err := getText(ctx, p.Client, p.BaseURL+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	// proxy11 answers 200 with an error message on a bad key.
	if status >= 400 || strings.Contains(body, "error") {
		return nil, fmt.Errorf("got status code %d and response %q", status, body)
	}
	return parseProxyLines(body), nil
}

// StaticProvider serves a fixed list, e.g. proxies from configuration.
type StaticProvider struct {
	Label     string
	Addresses []string
}

func (p *StaticProvider) Name() string {
	if p.Label == "" {
		return "static"
	}
	return p.Label
}

func (p *StaticProvider) Fetch(ctx context.Context) ([]string, error) {
	return parseProxyLines(strings.Join(p.Addresses, "\n")), nil
}

func getText(ctx context.Context, client *http.Client, rawURL string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, string(body), nil
}

// parseProxyLines splits a whitespace separated host:port list and prefixes "http://".
func parseProxyLines(body string) []string {
	fields := strings.Fields(body)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if !strings.Contains(f, "://") {
			f = "http://" + f
		}
		out = append(out, f)
	}
	return out
}
