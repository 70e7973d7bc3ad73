// Package source holds the site adapters the crawler drives.
package source

import (
	"context"
	"sort"
	"strings"

	"github.com/user/listing-crawler/internal/entity"
)

// Page is one parsed search result page.
type Page struct {
	URL        string
	Candidates []entity.ListingCandidate
	// HasNext is false when the site signalled the last page.
	HasNext bool
}

// Search is a stateful cursor over the result pages of one crawl.
type Search interface {
	// NextPage fetches and parses the next result page.
	NextPage(ctx context.Context) (*Page, error)
	// Listing turns a candidate into a canonical listing, fetching its detail
	// payload when the search page did not carry it.
	Listing(ctx context.Context, cand entity.ListingCandidate) (*entity.ExtractedListing, error)
}

// Source is a classified site. NewSearch validates the criteria against the
// site vocabulary and performs no network call.
type Source interface {
	Name() string
	NewSearch(criteria entity.SearchCriteria) (Search, error)
}

// Registry indexes the configured sources by name.
type Registry map[string]Source

func NewRegistry(sources ...Source) Registry {
	r := Registry{}
	for _, s := range sources {
		r[s.Name()] = s
	}
	return r
}

// Names returns the registered source names, sorted.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the named source or a ValidationError listing the known ones.
func (r Registry) Lookup(name string) (Source, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if s, ok := r[name]; ok {
		return s, nil
	}
	return nil, entity.CheckToken("source", name, r.Names())
}

// Prepare normalises and validates criteria for src.
func Prepare(src Source, criteria entity.SearchCriteria) (entity.SearchCriteria, Search, error) {
	c := criteria.Normalize()
	if err := c.Validate(); err != nil {
		return c, nil, err
	}
	search, err := src.NewSearch(c)
	if err != nil {
		return c, nil, err
	}
	return c, search, nil
}

// Tokens returns the keys of an enum table in declaration order of their values.
func Tokens(table map[string]int) []string {
	tokens := make([]string, 0, len(table))
	for k := range table {
		tokens = append(tokens, k)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if table[tokens[i]] == table[tokens[j]] {
			return tokens[i] < tokens[j]
		}
		return table[tokens[i]] < table[tokens[j]]
	})
	return tokens
}
