package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/jsonc"
)

// ErrEmptyItinerary is returned when the payload parses but holds no routes.
var ErrEmptyItinerary = errors.New("itinerary has no daily routes")

// ErrEmptyDay is returned when a day in dailyRoutes is null or has no points.
var ErrEmptyDay = errors.New("itinerary day has no points")

// RoutePoint is one stop in a day's route.
type RoutePoint struct {
	Keyword string `json:"keyword"`
	City    string `json:"city"`
}

// DayRoute is an ordered list of stops for one day.
type DayRoute struct {
	Points []RoutePoint `json:"points"`
}

// StructuredItinerary is the machine-readable trip plan extracted from an
// assistant reply. Day and point order follow the source narrative.
type StructuredItinerary struct {
	DailyRoutes []DayRoute `json:"dailyRoutes"`
}

// ParseItinerary normalizes model output and checks its shape. It accepts
// fenced code blocks, comments and trailing commas. The result must carry a
// non-empty dailyRoutes array whose days each list at least one point.
func ParseItinerary(raw string) (*StructuredItinerary, error) {
	body := stripFence(strings.TrimSpace(raw))
	if body == "" {
		return nil, fmt.Errorf("parsing itinerary: empty payload")
	}
	normalized := jsonc.ToJSON([]byte(body))

	var top map[string]json.RawMessage
	if err := json.Unmarshal(normalized, &top); err != nil {
		return nil, fmt.Errorf("parsing itinerary: %w", err)
	}
	routes, ok := top["dailyRoutes"]
	if !ok {
		return nil, fmt.Errorf("parsing itinerary: missing dailyRoutes")
	}

	var it StructuredItinerary
	if err := json.Unmarshal(routes, &it.DailyRoutes); err != nil {
		return nil, fmt.Errorf("parsing itinerary: dailyRoutes: %w", err)
	}
	if len(it.DailyRoutes) == 0 {
		return nil, ErrEmptyItinerary
	}
	// A null day decodes to the zero DayRoute, so one length check covers it.
	for i, day := range it.DailyRoutes {
		if len(day.Points) == 0 {
			return nil, fmt.Errorf("parsing itinerary: day %d: %w", i+1, ErrEmptyDay)
		}
	}
	return &it, nil
}

// JSON returns the canonical encoding stored alongside the session.
func (it *StructuredItinerary) JSON() string {
	b, _ := json.Marshal(it)
	return string(b)
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:] // drop the language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
