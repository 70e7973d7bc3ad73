package extract

import (
	_ "embed"
	"fmt"
	"sort"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v2"

	"github.com/user/listing-crawler/internal/entity"
)

//go:embed mappings.yaml
var mappingsYAML []byte

const (
	fieldExternalID    = "external_listing_id"
	fieldPrice         = "price"
	fieldFullBathrooms = "full_bathrooms"
	fieldHalfBathrooms = "half_bathrooms"
)

var boxFields = []string{"north_east_lat", "north_east_long", "south_west_lat", "south_west_long"}

var paris *time.Location

func init() {
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		panic(err)
	}
	paris = loc
}

// setter stores a raw value on the listing and reports whether a value was kept.
type setter func(l *entity.ExtractedListing, raw string, n *Normalizer) bool

func setFloat(dst func(*entity.ExtractedListing) **float64) setter {
	return func(l *entity.ExtractedListing, raw string, _ *Normalizer) bool {
		*dst(l) = Decimal(raw)
		return *dst(l) != nil
	}
}

func setLabel(dst func(*entity.ExtractedListing) **string) setter {
	return func(l *entity.ExtractedListing, raw string, n *Normalizer) bool {
		*dst(l) = n.Label(raw)
		return *dst(l) != nil
	}
}

func setText(dst func(*entity.ExtractedListing) **string) setter {
	return func(l *entity.ExtractedListing, raw string, _ *Normalizer) bool {
		v := raw
		*dst(l) = &v
		return true
	}
}

func setRating(kind RatingKind, dst func(*entity.ExtractedListing) **float64) setter {
	return func(l *entity.ExtractedListing, raw string, _ *Normalizer) bool {
		*dst(l) = Rating(kind, raw)
		return *dst(l) != nil
	}
}

var setters = map[string]setter{
	fieldExternalID: func(l *entity.ExtractedListing, raw string, _ *Normalizer) bool {
		l.ExternalID = raw
		return raw != ""
	},
	"url": func(l *entity.ExtractedListing, raw string, _ *Normalizer) bool {
		l.URL = raw
		return raw != ""
	},
	fieldPrice: func(l *entity.ExtractedListing, raw string, _ *Normalizer) bool {
		f, ok := ParseDecimal(raw)
		l.Price = f
		return ok
	},
	"first_publication_date": func(l *entity.ExtractedListing, raw string, _ *Normalizer) bool {
		l.FirstPublicationDate = LocalTime(raw, paris)
		return l.FirstPublicationDate != nil
	},
	"is_furnished": func(l *entity.ExtractedListing, raw string, _ *Normalizer) bool {
		l.IsFurnished = Bool(raw)
		return l.IsFurnished != nil
	},
	"exposure": func(l *entity.ExtractedListing, raw string, n *Normalizer) bool {
		l.Exposure = n.Direction(raw)
		return l.Exposure != nil
	},
	"terraces": func(l *entity.ExtractedListing, raw string, _ *Normalizer) bool {
		l.Terraces = Int(raw)
		return l.Terraces != nil
	},
	"parkings": func(l *entity.ExtractedListing, raw string, _ *Normalizer) bool {
		l.Parkings = Int(raw)
		return l.Parkings != nil
	},

	"description":      setText(func(l *entity.ExtractedListing) **string { return &l.Description }),
	"postal_code":      setText(func(l *entity.ExtractedListing) **string { return &l.PostalCode }),
	"transaction":      setLabel(func(l *entity.ExtractedListing) **string { return &l.Transaction }),
	"property_type":    setLabel(func(l *entity.ExtractedListing) **string { return &l.PropertyType }),
	"heating":          setLabel(func(l *entity.ExtractedListing) **string { return &l.Heating }),
	"kitchen":          setLabel(func(l *entity.ExtractedListing) **string { return &l.Kitchen }),
	"city":             setLabel(func(l *entity.ExtractedListing) **string { return &l.City }),
	"neighborhood":     setLabel(func(l *entity.ExtractedListing) **string { return &l.Neighborhood }),
	"size":             setFloat(func(l *entity.ExtractedListing) **float64 { return &l.Size }),
	"floor":            setFloat(func(l *entity.ExtractedListing) **float64 { return &l.Floor }),
	"rooms":            setFloat(func(l *entity.ExtractedListing) **float64 { return &l.Rooms }),
	"bedrooms":         setFloat(func(l *entity.ExtractedListing) **float64 { return &l.Bedrooms }),
	"balconies":        setFloat(func(l *entity.ExtractedListing) **float64 { return &l.Balconies }),
	"broker_fee":       setFloat(func(l *entity.ExtractedListing) **float64 { return &l.BrokerFee }),
	"security_deposit": setFloat(func(l *entity.ExtractedListing) **float64 { return &l.SecurityDeposit }),
	"latitude":         setFloat(func(l *entity.ExtractedListing) **float64 { return &l.Latitude }),
	"longitude":        setFloat(func(l *entity.ExtractedListing) **float64 { return &l.Longitude }),
	"dpe_consumption":  setRating(Consumption, func(l *entity.ExtractedListing) **float64 { return &l.DPEConsumption }),
	"dpe_emissions":    setRating(Emissions, func(l *entity.ExtractedListing) **float64 { return &l.DPEEmissions }),
}

func knownField(name string) bool {
	if _, ok := setters[name]; ok {
		return true
	}
	if name == fieldFullBathrooms || name == fieldHalfBathrooms {
		return true
	}
	for _, b := range boxFields {
		if b == name {
			return true
		}
	}
	return false
}

// Mapping is the declarative field table of one source.
type Mapping struct {
	Currency string            `yaml:"currency"`
	Fields   map[string]string `yaml:"fields"`
}

// Table holds every source mapping plus the shared normalisation vocabulary.
type Table struct {
	Sources    map[string]Mapping `yaml:"sources"`
	NullValues []string           `yaml:"null_values"`
	Synonyms   map[string]string  `yaml:"synonyms"`
	Directions map[string]string  `yaml:"directions"`

	normalizer *Normalizer
}

// LoadTable parses a YAML mapping table and rejects unknown canonical fields.
func LoadTable(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse mapping table: %w", err)
	}
	for source, m := range t.Sources {
		for canonical := range m.Fields {
			if !knownField(canonical) {
				return nil, fmt.Errorf("source %s maps unknown field %q", source, canonical)
			}
		}
		if _, ok := m.Fields[fieldExternalID]; !ok {
			return nil, fmt.Errorf("source %s has no %s mapping", source, fieldExternalID)
		}
		if _, ok := m.Fields[fieldPrice]; !ok {
			return nil, fmt.Errorf("source %s has no %s mapping", source, fieldPrice)
		}
	}
	t.normalizer = newNormalizer(t.NullValues, t.Synonyms, t.Directions)
	return &t, nil
}

var defaultTable *Table

// Default returns the embedded mapping table.
func Default() *Table {
	return defaultTable
}

func init() {
	t, err := LoadTable(mappingsYAML)
	if err != nil {
		panic(err)
	}
	defaultTable = t
}

func (t *Table) Normalizer() *Normalizer {
	return t.normalizer
}

// Extractor returns the extractor bound to source.
func (t *Table) Extractor(source string) (*Extractor, error) {
	m, ok := t.Sources[source]
	if !ok {
		return nil, fmt.Errorf("no field mapping for source %s", source)
	}
	keys := make([]string, 0, len(m.Fields))
	for canonical := range m.Fields {
		keys = append(keys, canonical)
	}
	sort.Strings(keys)
	return &Extractor{source: source, mapping: m, order: keys, norm: t.normalizer}, nil
}

// Record is a flattened source payload: source key to raw text.
type Record map[string]string

// Extractor turns records of one source into canonical listings.
type Extractor struct {
	source  string
	mapping Mapping
	order   []string
	norm    *Normalizer
}

func (e *Extractor) Normalizer() *Normalizer {
	return e.norm
}

// Extract maps rec onto a listing. Missing keys leave fields absent; a record
// without an external id or a price yields a ParseError.
func (e *Extractor) Extract(rec Record, url string) (*entity.ExtractedListing, error) {
	l := &entity.ExtractedListing{Source: e.source, URL: url, Currency: e.mapping.Currency}
	set := map[string]bool{}
	var box [4]*float64

	for _, canonical := range e.order {
		raw, ok := rec[e.mapping.Fields[canonical]]
		if !ok || e.norm.IsNull(raw) {
			continue
		}
		if fn, ok := setters[canonical]; ok {
			set[canonical] = fn(l, raw, e.norm)
			continue
		}
		for i, b := range boxFields {
			if b == canonical {
				box[i] = Decimal(raw)
			}
		}
	}

	l.Bathrooms = Bathrooms(e.value(rec, fieldFullBathrooms), e.value(rec, fieldHalfBathrooms))
	if box[0] != nil && box[1] != nil && box[2] != nil && box[3] != nil {
		l.BoundingBox = &entity.GeoBox{
			NorthEastLat:  *box[0],
			NorthEastLong: *box[1],
			SouthWestLat:  *box[2],
			SouthWestLong: *box[3],
		}
	}

	if !set[fieldExternalID] || !set[fieldPrice] {
		return nil, entity.NewFieldsNotFound(l.URL)
	}
	return l, nil
}

func (e *Extractor) value(rec Record, canonical string) string {
	key, ok := e.mapping.Fields[canonical]
	if !ok {
		return ""
	}
	raw := rec[key]
	if e.norm.IsNull(raw) {
		return ""
	}
	return raw
}
