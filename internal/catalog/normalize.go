package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// MalformedRecordError indicates a raw record that lacks enough information
// to construct an identity key. Such records are dropped and counted; they
// never abort a load cycle.
type MalformedRecordError struct {
	Source string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record from %s: %s", e.Source, e.Reason)
}

// Field aliases observed across the supported sources. Each canonical field
// is resolved from the first alias that carries a usable value.
var (
	nameAliases      = []string{"name", "set_name", "title"}
	setNumberAliases = []string{"set_num", "set_number", "number", "boid", "id"}
	yearAliases      = []string{"year", "release_year", "year_released"}
	themeAliases     = []string{"theme", "theme_name", "category"}
	pieceAliases     = []string{"pieces", "num_parts", "piece_count", "parts"}
	minifigAliases   = []string{"minifigures", "num_minifig", "minifigs"}
	priceAliases     = []string{"price", "retail_price", "us_retail_price"}
	ratingAliases    = []string{"rating", "user_rating"}
	descAliases      = []string{"description", "details", "summary"}
)

// Years outside this window are treated as unresolvable rather than stored.
const (
	minPlausibleYear = 1900
	maxPlausibleYear = 2100
)

// Normalize maps a source-shaped raw record into the canonical LegoItem
// shape and assigns its identity key. Fields that cannot be resolved stay
// unknown (nil / empty), never a fabricated default.
func Normalize(rec RawRecord) (*LegoItem, error) {
	name := firstString(rec.Fields, nameAliases)
	if strings.TrimSpace(name) == "" {
		return nil, &MalformedRecordError{Source: rec.Source, Reason: "no usable name"}
	}

	item := &LegoItem{
		Name:                strings.TrimSpace(name),
		SetNumber:           firstString(rec.Fields, setNumberAliases),
		Theme:               firstString(rec.Fields, themeAliases),
		Year:                firstInt(rec.Fields, yearAliases),
		PieceCount:          firstInt(rec.Fields, pieceAliases),
		Minifigures:         firstInt(rec.Fields, minifigAliases),
		Price:               firstFloat(rec.Fields, priceAliases),
		Rating:              firstFloat(rec.Fields, ratingAliases),
		Description:         firstString(rec.Fields, descAliases),
		SourceName:          rec.Source,
		ContributingSources: []string{rec.Source},
	}

	if item.Year != nil && (*item.Year < minPlausibleYear || *item.Year > maxPlausibleYear) {
		item.Year = nil
	}
	if item.PieceCount != nil && *item.PieceCount < 0 {
		item.PieceCount = nil
	}
	if item.Price != nil && *item.Price < 0 {
		item.Price = nil
	}

	item.IdentityKey = IdentityKey(item.Name, item.SetNumber, item.Theme)
	item.Refresh()
	return item, nil
}

func firstString(fields map[string]interface{}, aliases []string) string {
	for _, key := range aliases {
		v, ok := fields[key]
		if !ok || v == nil {
			continue
		}
		switch s := v.(type) {
		case string:
			if strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		case float64:
			// JSON numbers decode as float64; identifiers come through here.
			if s == float64(int64(s)) {
				return strconv.FormatInt(int64(s), 10)
			}
		case int:
			return strconv.Itoa(s)
		}
	}
	return ""
}

func firstInt(fields map[string]interface{}, aliases []string) *int {
	for _, key := range aliases {
		v, ok := fields[key]
		if !ok || v == nil {
			continue
		}
		switch n := v.(type) {
		case int:
			out := n
			return &out
		case int64:
			out := int(n)
			return &out
		case float64:
			out := int(n)
			return &out
		case string:
			if parsed, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
				return &parsed
			}
		}
	}
	return nil
}

func firstFloat(fields map[string]interface{}, aliases []string) *float64 {
	for _, key := range aliases {
		v, ok := fields[key]
		if !ok || v == nil {
			continue
		}
		switch n := v.(type) {
		case float64:
			out := n
			return &out
		case int:
			out := float64(n)
			return &out
		case int64:
			out := float64(n)
			return &out
		case string:
			trimmed := strings.TrimPrefix(strings.TrimSpace(n), "$")
			if parsed, err := strconv.ParseFloat(trimmed, 64); err == nil {
				return &parsed
			}
		}
	}
	return nil
}
