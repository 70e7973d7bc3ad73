package entity

import (
	"net/http"
	"net/url"
	"time"
)

// FetchRequest is one outbound call handed to the retry controller.
type FetchRequest struct {
	Method string
	URL    string
	Query  url.Values
	Header http.Header
	Body   []byte
	// Timeout overrides the per-attempt timeout when positive.
	Timeout time.Duration
	// Challenge overrides the default bot challenge detection when set.
	Challenge func(*FetchResponse) bool
}

// FullURL returns URL with Query encoded onto it.
func (r *FetchRequest) FullURL() string {
	if len(r.Query) == 0 {
		return r.URL
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return r.URL
	}
	q := u.Query()
	for k, vs := range r.Query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// FetchResponse is the payload of a successful attempt.
type FetchResponse struct {
	StatusCode int
	FinalURL   string
	Header     http.Header
	Body       []byte
}
