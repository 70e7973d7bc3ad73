package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// RatingKind selects the letter grade table of an energy rating.
type RatingKind int

const (
	Consumption RatingKind = iota
	Emissions
)

// Representative figures for each grade: kWh/m²/year for consumption,
// kgCO2/m²/year for emissions.
var ratingTables = map[RatingKind]map[string]float64{
	Consumption: {"a": 50, "b": 70, "c": 120, "d": 190, "e": 280, "f": 390, "g": 450},
	Emissions:   {"a": 5, "b": 8, "c": 15, "d": 28, "e": 45, "f": 68, "g": 80},
}

var (
	wordRE  = regexp.MustCompile(`\p{L}+`)
	spaceRE = regexp.MustCompile(`\s+`)
)

// ParseDecimal reads a number written with a decimal comma or point, ignoring
// currency signs and thousands separators. ok is false for non numeric text.
func ParseDecimal(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	s = strings.NewReplacer("€", "", " ", "", "\u00a0", "", "\u202f", "").Replace(s)
	if s == "" {
		return 0, false
	}
	if strings.Contains(s, ",") {
		if strings.Contains(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
		}
		s = strings.Replace(s, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Decimal is ParseDecimal returning nil for absent values.
func Decimal(raw string) *float64 {
	if f, ok := ParseDecimal(raw); ok {
		return &f
	}
	return nil
}

func Int(raw string) *int {
	if f, ok := ParseDecimal(raw); ok {
		i := int(f)
		return &i
	}
	return nil
}

func Bool(raw string) *bool {
	var b bool
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "oui", "yes":
		b = true
	case "0", "false", "non", "no":
		b = false
	default:
		return nil
	}
	return &b
}

// Rating converts an energy rating. A granular figure is used as is, a letter grade
// is mapped to its table value, "v" (blank diagnosis) and anything else are absent.
func Rating(kind RatingKind, raw string) *float64 {
	if f := Decimal(raw); f != nil {
		return f
	}
	grade := strings.ToLower(strings.TrimSpace(raw))
	if v, ok := ratingTables[kind][grade]; ok {
		return &v
	}
	return nil
}

// PreferGranular returns the granular figure when present, the estimate otherwise.
func PreferGranular(estimate *float64, granular string) *float64 {
	if f := Decimal(granular); f != nil {
		return f
	}
	return estimate
}

// Bathrooms counts full bathrooms plus half of the shower rooms. Missing counters are zero.
func Bathrooms(full, half string) float64 {
	var n float64
	if f, ok := ParseDecimal(full); ok {
		n += f
	}
	if f, ok := ParseDecimal(half); ok {
		n += f / 2
	}
	return n
}

// LocalTime parses a wall clock timestamp in loc and converts it to UTC. Timestamps
// carrying their own offset keep it.
func LocalTime(raw string, loc *time.Location) *time.Time {
	s := strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		u := t.UTC()
		return &u
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			u := t.UTC()
			return &u
		}
	}
	return nil
}

// Normalizer applies the null sentinels and label translations of a mapping table.
type Normalizer struct {
	nulls      map[string]bool
	synonyms   map[string]string
	directions map[string]string
}

func newNormalizer(nulls []string, synonyms, directions map[string]string) *Normalizer {
	n := &Normalizer{
		nulls:      map[string]bool{},
		synonyms:   map[string]string{},
		directions: map[string]string{},
	}
	for _, v := range nulls {
		n.nulls[cleanLabel(v)] = true
	}
	for k, v := range synonyms {
		n.synonyms[cleanLabel(k)] = v
	}
	for k, v := range directions {
		n.directions[cleanLabel(k)] = v
	}
	return n
}

// IsNull reports an empty value or a "not specified" sentinel.
func (n *Normalizer) IsNull(raw string) bool {
	s := cleanLabel(raw)
	return s == "" || n.nulls[s]
}

// Label lower-cases a categorical value and translates it through the synonym table.
func (n *Normalizer) Label(raw string) *string {
	if n.IsNull(raw) {
		return nil
	}
	s := cleanLabel(raw)
	if v, ok := n.synonyms[s]; ok {
		s = v
	}
	return &s
}

// Direction translates every orientation word of raw, e.g. "Sud-Ouest" to "south-west".
func (n *Normalizer) Direction(raw string) *string {
	if n.IsNull(raw) {
		return nil
	}
	s := wordRE.ReplaceAllStringFunc(cleanLabel(raw), func(w string) string {
		if v, ok := n.directions[w]; ok {
			return v
		}
		return w
	})
	return &s
}

func cleanLabel(raw string) string {
	return spaceRE.ReplaceAllString(strings.ToLower(strings.TrimSpace(raw)), " ")
}
