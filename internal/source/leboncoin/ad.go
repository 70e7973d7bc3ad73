package leboncoin

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/user/listing-crawler/internal/entity"
	"github.com/user/listing-crawler/internal/extract"
)

type attribute struct {
	Key        string `json:"key"`
	Value      string `json:"value"`
	ValueLabel string `json:"value_label"`
}

type ad struct {
	ListID               json.Number `json:"list_id"`
	FirstPublicationDate string      `json:"first_publication_date"`
	Body                 string      `json:"body"`
	URL                  string      `json:"url"`
	CategoryName         string      `json:"category_name"`
	Price                []float64   `json:"price"`
	Attributes           []attribute `json:"attributes"`
	Location             struct {
		City      string   `json:"city"`
		Zipcode   string   `json:"zipcode"`
		CityLabel string   `json:"city_label"`
		Lat       *float64 `json:"lat"`
		Lng       *float64 `json:"lng"`
	} `json:"location"`
	Images struct {
		URLs []string `json:"urls"`
	} `json:"images"`
}

// Listing decodes the ad carried by the candidate.
func (s *search) Listing(_ context.Context, cand entity.ListingCandidate) (*entity.ExtractedListing, error) {
	var a ad
	if err := json.Unmarshal(cand.Payload, &a); err != nil {
		return nil, &entity.ParseError{URL: cand.URL, Reason: fmt.Sprintf("decode ad: %v", err)}
	}
	rec, err := a.record()
	if err != nil {
		return nil, &entity.ParseError{URL: cand.URL, Reason: err.Error()}
	}
	if v, ok := rec["attributes.charges_included"]; ok && v != "1" {
		return nil, &entity.ParseError{URL: cand.URL, Reason: "charges are not included"}
	}

	listing, err := s.src.extractor.Extract(rec, a.URL)
	if err != nil {
		return nil, err
	}
	if len(a.Images.URLs) > 0 {
		listing.Images = append([]string{}, a.Images.URLs...)
	}
	return listing, nil
}

// record flattens the ad into the keys of the field mapping table.
func (a *ad) record() (extract.Record, error) {
	rec := extract.Record{
		"list_id":                a.ListID.String(),
		"first_publication_date": a.FirstPublicationDate,
		"body":                   a.Body,
		"url":                    a.URL,
		"category_name":          a.CategoryName,
		"location.city":          a.Location.City,
		"location.zipcode":       a.Location.Zipcode,
		"location.city_label":    a.Location.CityLabel,
	}
	if len(a.Price) == 1 {
		rec["price"] = formatFloat(a.Price[0])
	}
	if a.Location.Lat != nil {
		rec["location.lat"] = formatFloat(*a.Location.Lat)
	}
	if a.Location.Lng != nil {
		rec["location.lng"] = formatFloat(*a.Location.Lng)
	}

	for _, attr := range a.Attributes {
		key := "attributes." + attr.Key
		if attr.Key == "real_estate_type" {
			key += ".label"
		}
		if _, dup := rec[key]; dup {
			return nil, fmt.Errorf("more than one match for attribute %q", attr.Key)
		}
		if attr.Key == "real_estate_type" {
			rec[key] = attr.ValueLabel
		} else {
			rec[key] = attr.Value
		}
	}
	return rec, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
