package entity

import (
	"fmt"
	"strings"
)

const (
	DefaultNumResults    = 100
	DefaultMaxDuplicates = 25
	DefaultTimeout       = 5
)

// DefaultPropertyTypes is used when a crawl request names none.
var DefaultPropertyTypes = []string{"apartment", "house"}

// SearchCriteria describes one crawl request. It is immutable once the crawl starts.
type SearchCriteria struct {
	Transaction   string   `json:"transaction"`
	PostCodes     []string `json:"post_codes"`
	PropertyTypes []string `json:"property_types,omitempty"`

	MinPrice *float64 `json:"min_price,omitempty"`
	MaxPrice *float64 `json:"max_price,omitempty"`
	MinSize  *float64 `json:"min_size,omitempty"`
	MaxSize  *float64 `json:"max_size,omitempty"`
	MinRooms *float64 `json:"min_rooms,omitempty"`
	MaxRooms *float64 `json:"max_rooms,omitempty"`
	MinBeds  *float64 `json:"min_beds,omitempty"`
	MaxBeds  *float64 `json:"max_beds,omitempty"`

	NumResults    int `json:"num_results,omitempty"`
	MaxDuplicates int `json:"max_duplicates,omitempty"`
	// Timeout is the per-request timeout in seconds.
	Timeout int `json:"timeout,omitempty"`
}

// Normalize lower-cases tokens, trims post codes and fills defaults.
func (c SearchCriteria) Normalize() SearchCriteria {
	out := c
	out.Transaction = strings.ToLower(strings.TrimSpace(c.Transaction))

	out.PostCodes = make([]string, 0, len(c.PostCodes))
	for _, pc := range c.PostCodes {
		if pc = strings.TrimSpace(pc); pc != "" {
			out.PostCodes = append(out.PostCodes, pc)
		}
	}

	types := c.PropertyTypes
	if len(types) == 0 {
		types = DefaultPropertyTypes
	}
	out.PropertyTypes = make([]string, 0, len(types))
	for _, pt := range types {
		out.PropertyTypes = append(out.PropertyTypes, strings.ToLower(strings.TrimSpace(pt)))
	}

	if out.NumResults <= 0 {
		out.NumResults = DefaultNumResults
	}
	if out.MaxDuplicates <= 0 {
		out.MaxDuplicates = DefaultMaxDuplicates
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}
	return out
}

// Validate checks the source independent constraints. Transaction and property type
// tokens are checked by each source against its own vocabulary.
func (c SearchCriteria) Validate() error {
	if c.Transaction == "" {
		return &ValidationError{Field: "transaction", Message: "transaction is required"}
	}
	if len(c.PostCodes) == 0 {
		return &ValidationError{Field: "post_codes", Message: "at least one post code is required"}
	}
	ranges := []struct {
		name     string
		min, max *float64
	}{
		{"price", c.MinPrice, c.MaxPrice},
		{"size", c.MinSize, c.MaxSize},
		{"rooms", c.MinRooms, c.MaxRooms},
		{"beds", c.MinBeds, c.MaxBeds},
	}
	for _, r := range ranges {
		if (r.min != nil && *r.min < 0) || (r.max != nil && *r.max < 0) {
			return &ValidationError{Field: r.name, Message: fmt.Sprintf("%s bounds must be positive", r.name)}
		}
		if r.min != nil && r.max != nil && *r.min > *r.max {
			return &ValidationError{Field: r.name, Message: fmt.Sprintf("min_%s is greater than max_%s", r.name, r.name)}
		}
	}
	return nil
}

// CheckToken returns a ValidationError naming the allowed values when token is not one of them.
func CheckToken(field, token string, allowed []string) error {
	for _, a := range allowed {
		if a == token {
			return nil
		}
	}
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("unknown %s '%s'. Expected one of %s", field, token, strings.Join(allowed, ", ")),
	}
}
