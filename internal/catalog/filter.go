package catalog

import "strings"

// Filter narrows a result set by structured attributes. The zero value
// matches every item. Range bounds are inclusive; an item whose field is
// unknown never matches a filter on that field.
type Filter struct {
	Theme      string   `json:"theme,omitempty"`
	SetNumber  string   `json:"setNumber,omitempty"`
	YearMin    *int     `json:"yearMin,omitempty"`
	YearMax    *int     `json:"yearMax,omitempty"`
	PriceMin   *float64 `json:"priceMin,omitempty"`
	PriceMax   *float64 `json:"priceMax,omitempty"`
	PiecesMin  *int     `json:"piecesMin,omitempty"`
	PiecesMax  *int     `json:"piecesMax,omitempty"`
	MinQuality float64  `json:"minQuality,omitempty"`
}

// IsZero reports whether the filter matches everything.
func (f *Filter) IsZero() bool {
	return f == nil || (f.Theme == "" && f.SetNumber == "" &&
		f.YearMin == nil && f.YearMax == nil &&
		f.PriceMin == nil && f.PriceMax == nil &&
		f.PiecesMin == nil && f.PiecesMax == nil &&
		f.MinQuality == 0)
}

// Matches reports whether the item satisfies every set condition.
func (f *Filter) Matches(it *LegoItem) bool {
	if f == nil {
		return true
	}
	if f.Theme != "" && !strings.EqualFold(f.Theme, it.Theme) {
		return false
	}
	if f.SetNumber != "" && NormalizeName(f.SetNumber) != NormalizeName(it.SetNumber) {
		return false
	}
	if f.YearMin != nil && (it.Year == nil || *it.Year < *f.YearMin) {
		return false
	}
	if f.YearMax != nil && (it.Year == nil || *it.Year > *f.YearMax) {
		return false
	}
	if f.PriceMin != nil && (it.Price == nil || *it.Price < *f.PriceMin) {
		return false
	}
	if f.PriceMax != nil && (it.Price == nil || *it.Price > *f.PriceMax) {
		return false
	}
	if f.PiecesMin != nil && (it.PieceCount == nil || *it.PieceCount < *f.PiecesMin) {
		return false
	}
	if f.PiecesMax != nil && (it.PieceCount == nil || *it.PieceCount > *f.PiecesMax) {
		return false
	}
	if f.MinQuality > 0 && it.QualityScore < f.MinQuality {
		return false
	}
	return true
}
