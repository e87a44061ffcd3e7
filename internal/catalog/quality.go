package catalog

// Quality weights over the fixed scored field set. A present field
// contributes its full weight, an unknown field contributes zero. The
// weights sum to 1, so scores stay in [0,1].
const (
	weightName        = 0.25
	weightTheme       = 0.15
	weightYear        = 0.15
	weightPieceCount  = 0.15
	weightPrice       = 0.15
	weightDescription = 0.15
)

// Score computes the completeness/confidence score of an item from its
// field coverage. Minifigures and rating are carried on the item but are
// deliberately outside the scored set.
func Score(it *LegoItem) float64 {
	score := 0.0
	if it.Name != "" {
		score += weightName
	}
	if it.Theme != "" {
		score += weightTheme
	}
	if it.Year != nil {
		score += weightYear
	}
	if it.PieceCount != nil {
		score += weightPieceCount
	}
	if it.Price != nil {
		score += weightPrice
	}
	if it.Description != "" {
		score += weightDescription
	}
	return score
}
