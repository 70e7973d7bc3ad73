package extract

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/user/listing-crawler/internal/entity"
)

func TestParseDecimal(t *testing.T) {
	cases := map[string]float64{
		"45,5":            45.5,
		"1 250 €":         1250,
		"1.250,75":        1250.75,
		"32.4":            32.4,
		"\u00a0980\u202f": 980,
	}
	for raw, want := range cases {
		got, ok := ParseDecimal(raw)
		if !ok || got != want {
			t.Fatalf("ParseDecimal(%q) = %v, %v; want %v", raw, got, ok, want)
		}
	}
	if _, ok := ParseDecimal("trois"); ok {
		t.Fatal("expected non numeric text to be rejected")
	}
}

func TestNormalizedValuesSurviveStorage(t *testing.T) {
	ex, err := Default().Extractor("seloger")
	if err != nil {
		t.Fatalf("Extractor returned error: %v", err)
	}
	l, err := ex.Extract(Record{
		"idAnnonce":               "158000123",
		"rawPrice":                "1 250,75",
		"surfaceT":                "45,5",
		"mapCoordonneesLatitude":  "48,8591",
		"mapCoordonneesLongitude": "2.3794",
	}, "https://www.seloger.com/annonces/158000123.htm")
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}

	// listings are stored as a JSON document
	data, err := json.Marshal(l)
	if err != nil {
		t.Fatalf("Marshal returned error: %v", err)
	}
	var stored entity.ExtractedListing
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}

	const tolerance = 1e-9
	if stored.Size == nil || math.Abs(*stored.Size-45.5) > tolerance {
		t.Fatalf("size did not survive storage: %v", stored.Size)
	}
	if math.Abs(stored.Price-1250.75) > tolerance {
		t.Fatalf("price did not survive storage: %v", stored.Price)
	}
	if stored.Latitude == nil || math.Abs(*stored.Latitude-48.8591) > tolerance {
		t.Fatalf("latitude did not survive storage: %v", stored.Latitude)
	}
	if stored.Longitude == nil || math.Abs(*stored.Longitude-*l.Longitude) > tolerance {
		t.Fatalf("longitude did not survive storage: %v", stored.Longitude)
	}
}

func TestRatingAndPreferGranular(t *testing.T) {
	if v := Rating(Consumption, "C"); v == nil || *v != 120 {
		t.Fatalf("expected C to map to 120, got %v", v)
	}
	if v := Rating(Emissions, "c"); v == nil || *v != 15 {
		t.Fatalf("expected c to map to 15, got %v", v)
	}
	if v := Rating(Emissions, "V"); v != nil {
		t.Fatalf("expected blank diagnosis to be absent, got %v", *v)
	}
	estimate := Rating(Consumption, "C")
	if v := PreferGranular(estimate, "97"); v == nil || *v != 97 {
		t.Fatalf("expected granular 97 to win, got %v", v)
	}
	if v := PreferGranular(estimate, ""); v != estimate {
		t.Fatal("expected estimate to be kept when no granular figure exists")
	}
}

func TestBathrooms(t *testing.T) {
	if got := Bathrooms("1", "2"); got != 2 {
		t.Fatalf("expected 2 bathrooms, got %v", got)
	}
	if got := Bathrooms("", "1"); got != 0.5 {
		t.Fatalf("expected 0.5 bathrooms, got %v", got)
	}
}

func TestNormalizerTranslations(t *testing.T) {
	n := Default().Normalizer()
	if v := n.Label("  Appartement "); v == nil || *v != "apartment" {
		t.Fatalf("unexpected label: %v", v)
	}
	if v := n.Label("Duplex"); v == nil || *v != "duplex" {
		t.Fatalf("expected unknown labels to be lower-cased, got %v", v)
	}
	if v := n.Direction("Sud-Ouest"); v == nil || *v != "south-west" {
		t.Fatalf("unexpected direction: %v", v)
	}
	if !n.IsNull("Non renseigné") || !n.IsNull("   ") {
		t.Fatal("expected null sentinels to be recognised")
	}
}

func TestExtractSeloger(t *testing.T) {
	ex, err := Default().Extractor("seloger")
	if err != nil {
		t.Fatalf("Extractor returned error: %v", err)
	}
	rec := Record{
		"idAnnonce":       "158000123",
		"rawPrice":        "1 250",
		"typeTransaction": "location",
		"typeBien":        "Appartement",
		"surfaceT":        "45,5",
		"nbPieces":        "2",
		"nbChambres":      "non renseigné",
		"dpeC":            "C",
		"ville":           "Paris",
		"cp":              "75011",
		"bain":            "1",
		"eau":             "1",

		"mapBoundingboxNortheastLatitude":  "48.87",
		"mapBoundingboxNortheastLongitude": "2.39",
		"mapBoundingboxSouthwestLatitude":  "48.85",
		"mapBoundingboxSouthwestLongitude": "2.37",
	}

	l, err := ex.Extract(rec, "https://www.seloger.com/annonces/locations/appartement/paris-11eme-75/158000123.htm")
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if l.ExternalID != "158000123" || l.Price != 1250 || l.Currency != "€" {
		t.Fatalf("unexpected identity: %+v", l)
	}
	if l.Size == nil || *l.Size != 45.5 {
		t.Fatalf("unexpected size: %v", l.Size)
	}
	if l.Bedrooms != nil {
		t.Fatalf("expected sentinel bedrooms to be absent, got %v", *l.Bedrooms)
	}
	if l.PropertyType == nil || *l.PropertyType != "apartment" || l.Transaction == nil || *l.Transaction != "rent" {
		t.Fatalf("unexpected labels: %v %v", l.PropertyType, l.Transaction)
	}
	if l.DPEConsumption == nil || *l.DPEConsumption != 120 {
		t.Fatalf("unexpected consumption: %v", l.DPEConsumption)
	}
	if l.Bathrooms != 1.5 {
		t.Fatalf("unexpected bathrooms: %v", l.Bathrooms)
	}
	if l.BoundingBox == nil || l.BoundingBox.SouthWestLong != 2.37 {
		t.Fatalf("unexpected bounding box: %+v", l.BoundingBox)
	}
	if l.Latitude != nil {
		t.Fatal("expected missing latitude to stay absent")
	}
}

func TestExtractLeboncoinDate(t *testing.T) {
	ex, err := Default().Extractor("leboncoin")
	if err != nil {
		t.Fatalf("Extractor returned error: %v", err)
	}
	l, err := ex.Extract(Record{
		"list_id":                "2011223344",
		"price":                  "980",
		"first_publication_date": "2024-07-01 10:00:00",
		"attributes.furnished":   "1",
	}, "")
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	want := time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)
	if l.FirstPublicationDate == nil || !l.FirstPublicationDate.Equal(want) {
		t.Fatalf("expected %v, got %v", want, l.FirstPublicationDate)
	}
	if l.IsFurnished == nil || !*l.IsFurnished {
		t.Fatalf("unexpected furnished flag: %v", l.IsFurnished)
	}
}

func TestExtractFieldsNotFound(t *testing.T) {
	ex, _ := Default().Extractor("seloger")
	_, err := ex.Extract(Record{"idAnnonce": "1", "rawPrice": "nc"}, "https://www.seloger.com/x.htm")

	var perr *entity.ParseError
	if !errors.As(err, &perr) || perr.Reason != "fields not found" {
		t.Fatalf("expected fields not found, got %v", err)
	}
}

func TestLoadTableRejectsUnknownField(t *testing.T) {
	data := []byte(`
sources:
  acme:
    fields:
      external_listing_id: id
      price: price
      swimming_pool_depth: depth
`)
	if _, err := LoadTable(data); err == nil {
		t.Fatal("expected an error for an unknown canonical field")
	}
	if _, err := LoadTable([]byte("sources: [")); err == nil {
		t.Fatal("expected a YAML error")
	}
	if _, err := Default().Extractor("acme"); err == nil {
		t.Fatal("expected an error for an unmapped source")
	}
}
