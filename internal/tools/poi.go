package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/soyeahso/wayfarer/internal/store"
)

const defaultPOILimit = 10

// POIQuerier is the read side of store.POIStore.
type POIQuerier interface {
	ByCity(ctx context.Context, city string, limit int) ([]store.POI, error)
	Search(ctx context.Context, city, query string, limit int) ([]store.POI, error)
}

// POISearch recommends popular places in a city from the local POI table.
type POISearch struct {
	store POIQuerier
}

// NewPOISearch creates the poiSearch tool.
func NewPOISearch(q POIQuerier) *POISearch {
	return &POISearch{store: q}
}

func (p *POISearch) Name() string { return "poiSearch" }

func (p *POISearch) Description() string {
	return "List popular points of interest in a city, most popular first. Optionally filter by keyword."
}

func (p *POISearch) InputSchema() string {
	return `{"type":"object","properties":{"city":{"type":"string","description":"City name as stored, e.g. 上海"},"keyword":{"type":"string","description":"Optional word to match in names and descriptions"},"limit":{"type":"integer","minimum":1,"maximum":50}},"required":["city"]}`
}

type poiInput struct {
	City    string `json:"city"`
	Keyword string `json:"keyword"`
	Limit   int    `json:"limit"`
}

// POIResult is the tool's JSON output.
type POIResult struct {
	CityName string      `json:"cityName"`
	Count    int         `json:"count"`
	POIs     []store.POI `json:"pois"`
}

// Execute returns the city's POIs. A keyword search with no matches falls
// back to the city's top list.
func (p *POISearch) Execute(ctx context.Context, input string) (string, error) {
	var in poiInput
	if err := json.Unmarshal([]byte(input), &in); err != nil {
		return "Error: input must be a JSON object with a city field", nil
	}
	in.City = strings.TrimSpace(in.City)
	if in.City == "" {
		return "Error: city is required", nil
	}
	if in.Limit <= 0 || in.Limit > 50 {
		in.Limit = defaultPOILimit
	}

	var (
		pois []store.POI
		err  error
	)
	if kw := strings.TrimSpace(in.Keyword); kw != "" {
		pois, err = p.store.Search(ctx, in.City, quoteFTS(kw), in.Limit)
		if err != nil {
			return "", err
		}
	}
	if len(pois) == 0 {
		pois, err = p.store.ByCity(ctx, in.City, in.Limit)
		if err != nil {
			return "", err
		}
	}
	if pois == nil {
		pois = []store.POI{}
	}

	b, err := json.Marshal(POIResult{CityName: in.City, Count: len(pois), POIs: pois})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// quoteFTS turns free text into a single FTS5 phrase.
func quoteFTS(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
