// Package query classifies natural-language queries and retrieves ranked
// catalog items for them.
package query

import (
	"regexp"
	"strings"

	"github.com/bricklore/brickengine/internal/config"
)

// Strategy selects how a query is executed against the index.
type Strategy string

const (
	StrategySemantic Strategy = "semantic"
	StrategyKeyword  Strategy = "keyword"
	StrategyHybrid   Strategy = "hybrid"
)

// Intent is the classified shape of a query.
type Intent string

const (
	IntentSetNumber Intent = "set_number"
	IntentPrice     Intent = "price"
	IntentYear      Intent = "year"
	IntentSize      Intent = "size"
	IntentTheme     Intent = "theme"
	IntentGeneral   Intent = "general"
)

// Plan holds the retrieval parameters selected for one query.
type Plan struct {
	Strategy            Strategy `json:"strategy"`
	Intent              Intent   `json:"intent"`
	K                   int      `json:"k"`
	SimilarityThreshold float64  `json:"similarityThreshold"`
}

// Planner maps queries to retrieval plans using a fixed rule table. It is
// deliberately not a learned model: the mapping is total and deterministic,
// so every query gets exactly one plan and tests can pin the table down.
type Planner struct {
	defaultK         int
	defaultThreshold float64
}

// NewPlanner creates a planner with the configured hybrid defaults.
func NewPlanner(cfg config.RetrievalConfig) *Planner {
	k := cfg.DefaultK
	if k <= 0 {
		k = 8
	}
	threshold := cfg.DefaultThreshold
	if threshold <= 0 {
		threshold = 0.80
	}
	return &Planner{defaultK: k, defaultThreshold: threshold}
}

var (
	// A set number is a standalone run of 4-7 digits, optionally with a
	// variant suffix ("75301-1"). Plain 19xx/20xx tokens are years, not set
	// numbers, unless the variant suffix is present. A digit run right after
	// a dollar sign is a price ("under $20000"), never a set number.
	setNumberPattern = regexp.MustCompile(`(^|[^0-9$])([0-9]{4,7}-[0-9]|[0-9]{5,7})([^0-9]|$)`)
	yearPattern      = regexp.MustCompile(`(^|[^0-9])(19[0-9]{2}|20[0-9]{2})([^0-9]|$)`)

	pricePatterns = []string{
		"price", "cost", "costs", "expensive", "cheap", "cheapest",
		"affordable", "budget", "under $", "over $", "dollar", "retail", "$",
	}
	yearWordPatterns = []string{
		"year", "released", "release", "newest", "latest", "recent", "new in",
	}
	sizePatterns = []string{
		"pieces", "piece count", "parts", "big", "biggest", "large",
		"largest", "huge", "small", "smallest", "tiny", "mini",
	}
	themePatterns = []string{
		"theme", "themed", "series", "collection", "category",
		"sets like", "similar to", "kind of", "type of",
	}
)

// Plan classifies the query and returns its retrieval plan. Precedence is
// fixed: set number, then price, year, size, theme; anything else falls
// back to hybrid defaults.
func (p *Planner) Plan(query string) Plan {
	q := strings.ToLower(strings.TrimSpace(query))

	switch {
	case setNumberPattern.MatchString(q):
		// Exact identifiers want precision over recall.
		return Plan{Strategy: StrategyKeyword, Intent: IntentSetNumber, K: 5, SimilarityThreshold: 0.90}
	case containsAny(q, pricePatterns):
		return Plan{Strategy: StrategyHybrid, Intent: IntentPrice, K: 12, SimilarityThreshold: 0.75}
	case yearPattern.MatchString(q) || containsAny(q, yearWordPatterns):
		return Plan{Strategy: StrategyHybrid, Intent: IntentYear, K: 10, SimilarityThreshold: 0.80}
	case containsAny(q, sizePatterns):
		// Size queries are broad; widen the net and let ranking sort it out.
		return Plan{Strategy: StrategySemantic, Intent: IntentSize, K: 20, SimilarityThreshold: 0.60}
	case containsAny(q, themePatterns):
		return Plan{Strategy: StrategySemantic, Intent: IntentTheme, K: 15, SimilarityThreshold: 0.70}
	default:
		return Plan{Strategy: StrategyHybrid, Intent: IntentGeneral, K: p.defaultK, SimilarityThreshold: p.defaultThreshold}
	}
}

func containsAny(q string, patterns []string) bool {
	for _, pat := range patterns {
		if strings.Contains(q, pat) {
			return true
		}
	}
	return false
}
