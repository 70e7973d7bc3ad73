package seloger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/user/listing-crawler/internal/entity"
	"github.com/user/listing-crawler/internal/extract"
	"github.com/user/listing-crawler/internal/fetch"
)

var configDetailRE = regexp.MustCompile(
	`Object\.defineProperty\(\s*ConfigDetail,\s*['"](.*)['"],\s*{\s*value:\s*['"](.*)['"],\s*enumerable:\s*\S+\s*}`,
)

var (
	terracesRE  = criterion(`(\d+) Terrasse`)
	parkingsRE  = criterion(`(\d+) Parking`)
	exposureRE  = criterion(`orientation (.*)`)
	lawnRE      = criterion("Jardin")
	poolRE      = criterion("Piscine")
	elevatorRE  = criterion("Ascenseur")
	fireplaceRE = criterion("Cheminée")
	hardwoodRE  = criterion("Parquet")
	viewRE      = criterion("Vue")
	cellarRE    = criterion("Cave")
	superRE     = criterion("Gardien")
)

// criterion compiles a case insensitive criterion pattern.
func criterion(pattern string) *regexp.Regexp {
	return regexp.MustCompile("(?i)" + pattern)
}

const (
	sectionHighlights = "Les +"
	sectionOutside    = "A l'extérieur"
	sectionInside     = "A l'intérieur"
)

// Listing fetches the listing page and its details JSON.
func (s *search) Listing(ctx context.Context, cand entity.ListingCandidate) (*entity.ExtractedListing, error) {
	resp, err := s.src.fetcher.Fetch(ctx, &entity.FetchRequest{
		Method:    http.MethodGet,
		URL:       cand.URL,
		Timeout:   s.timeout,
		Challenge: fetch.IsChallengeURL,
	})
	if err != nil {
		return nil, err
	}

	rec := configDetail(resp.Body)
	if desc, ok := rec["descriptionBien"]; ok {
		rec["descriptionBien"] = decodeEscapes(desc)
	}
	listing, err := s.src.extractor.Extract(rec, cand.URL)
	if err != nil {
		return nil, err
	}

	d, err := s.src.details(ctx, listing, s.timeout)
	if err != nil {
		return nil, err
	}
	if err := d.apply(listing, s.src.extractor.Normalizer()); err != nil {
		return nil, err
	}
	return listing, nil
}

// configDetail collects the ConfigDetail properties a listing page defines inline.
func configDetail(body []byte) extract.Record {
	rec := extract.Record{}
	for _, m := range configDetailRE.FindAllSubmatch(body, -1) {
		rec[string(m[1])] = string(m[2])
	}
	return rec
}

// decodeEscapes resolves backslash escapes left in JavaScript string literals.
func decodeEscapes(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for len(s) > 0 {
		if s[0] != '\\' {
			r, size := utf8.DecodeRuneInString(s)
			b.WriteRune(r)
			s = s[size:]
			continue
		}
		if len(s) > 1 && (s[1] == '\'' || s[1] == '"') {
			b.WriteByte(s[1])
			s = s[2:]
			continue
		}
		r, _, tail, err := strconv.UnquoteChar(s, 0)
		if err != nil {
			b.WriteByte(s[0])
			s = s[1:]
			continue
		}
		b.WriteRune(r)
		s = tail
	}
	return b.String()
}

// number accepts a JSON number or a numeric string.
type number struct {
	value *float64
}

func (n *number) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "null" {
		return nil
	}
	n.value = extract.Decimal(raw)
	return nil
}

func (n *number) raw() string {
	if n == nil || n.value == nil {
		return ""
	}
	return strconv.FormatFloat(*n.value, 'f', -1, 64)
}

type details struct {
	Categories []struct {
		Name     string `json:"name"`
		Criteria []struct {
			Value string `json:"value"`
		} `json:"criteria"`
	} `json:"categories"`
	InfosAcquereur struct {
		Prix struct {
			HonorairesLocataires *number `json:"honoraires_locataires"`
			PrixHorsHonoraires   *number `json:"prix_hors_honoraires"`
			Garantie             *number `json:"garantie"`
		} `json:"prix"`
	} `json:"infos_acquereur"`
	Energie struct {
		Chiffre *number `json:"chiffre"`
	} `json:"energie"`
	Ges struct {
		Chiffre *number `json:"chiffre"`
	} `json:"ges"`
}

func (s *Source) details(ctx context.Context, l *entity.ExtractedListing, timeout time.Duration) (*details, error) {
	resp, err := s.fetcher.Fetch(ctx, &entity.FetchRequest{
		Method:    http.MethodGet,
		URL:       s.endpoints.Details,
		Query:     url.Values{"idannonce": {l.ExternalID}},
		Timeout:   timeout,
		Challenge: fetch.IsCaptchaRedirect,
	})
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil, &entity.ParseError{URL: l.URL, Reason: "listing details not found"}
	}
	var d details
	if err := json.Unmarshal(resp.Body, &d); err != nil {
		return nil, &entity.ParseError{URL: l.URL, Reason: fmt.Sprintf("decode details: %v", err)}
	}
	return &d, nil
}

// matches returns the submatches of re over the criteria of section.
func (d *details) matches(section string, re *regexp.Regexp) [][]string {
	var out [][]string
	for _, c := range d.Categories {
		if c.Name != section {
			continue
		}
		for _, crit := range c.Criteria {
			if m := re.FindStringSubmatch(crit.Value); m != nil {
				out = append(out, m)
			}
		}
	}
	return out
}

func (d *details) has(section string, re *regexp.Regexp) *bool {
	b := len(d.matches(section, re)) > 0
	return &b
}

// group returns the first capture group of a criterion expected at most once.
func (d *details) group(l *entity.ExtractedListing, section string, re *regexp.Regexp) (string, bool, error) {
	m := d.matches(section, re)
	switch len(m) {
	case 0:
		return "", false, nil
	case 1:
		return m[0][1], true, nil
	default:
		return "", false, &entity.ParseError{
			URL:    l.URL,
			Reason: fmt.Sprintf("several matches for %q in section %q", re.String(), section),
		}
	}
}

func (d *details) apply(l *entity.ExtractedListing, n *extract.Normalizer) error {
	if v, ok, err := d.group(l, sectionHighlights, terracesRE); err != nil {
		return err
	} else if ok {
		l.Terraces = extract.Int(v)
	}
	if v, ok, err := d.group(l, sectionOutside, parkingsRE); err != nil {
		return err
	} else if ok {
		l.Parkings = extract.Int(v)
	}
	if v, ok, err := d.group(l, sectionHighlights, exposureRE); err != nil {
		return err
	} else if ok {
		l.Exposure = n.Direction(v)
	}

	l.HasLawn = d.has(sectionOutside, lawnRE)
	l.HasPool = d.has(sectionHighlights, poolRE)
	l.HasElevator = d.has(sectionHighlights, elevatorRE)
	l.HasFireplace = d.has(sectionHighlights, fireplaceRE)
	l.HasHardwoodFloors = d.has(sectionInside, hardwoodRE)
	l.HasView = d.has(sectionHighlights, viewRE)
	l.HasCellar = d.has(sectionHighlights, cellarRE)
	l.HasSuper = d.has(sectionHighlights, superRE)

	prix := d.InfosAcquereur.Prix
	if fee := prix.HonorairesLocataires.raw(); fee != "" {
		l.BrokerFee = extract.Decimal(fee)
	} else if prix.PrixHorsHonoraires.raw() != "" {
		fee := l.Price - *prix.PrixHorsHonoraires.value
		l.BrokerFee = &fee
	}
	if deposit := prix.Garantie.raw(); deposit != "" {
		l.SecurityDeposit = extract.Decimal(deposit)
	}

	l.DPEConsumption = extract.PreferGranular(l.DPEConsumption, d.Energie.Chiffre.raw())
	l.DPEEmissions = extract.PreferGranular(l.DPEEmissions, d.Ges.Chiffre.raw())
	return nil
}
