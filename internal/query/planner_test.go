package query

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bricklore/brickengine/internal/config"
)

func testPlanner() *Planner {
	return NewPlanner(config.RetrievalConfig{DefaultK: 8, DefaultThreshold: 0.80})
}

func TestPlanPolicyTable(t *testing.T) {
	p := testPlanner()

	tests := []struct {
		name     string
		query    string
		strategy Strategy
		intent   Intent
		k        int
		thresh   float64
	}{
		{"set number", "show me set 75301", StrategyKeyword, IntentSetNumber, 5, 0.90},
		{"set number with variant", "what is 75301-1", StrategyKeyword, IntentSetNumber, 5, 0.90},
		{"price words", "expensive star wars sets", StrategyHybrid, IntentPrice, 12, 0.75},
		{"price symbol", "sets under $50", StrategyHybrid, IntentPrice, 12, 0.75},
		{"year number", "sets from 2024", StrategyHybrid, IntentYear, 10, 0.80},
		{"year words", "the newest castle sets", StrategyHybrid, IntentYear, 10, 0.80},
		{"size", "biggest sets ever made", StrategySemantic, IntentSize, 20, 0.60},
		{"pieces", "sets with lots of pieces", StrategySemantic, IntentSize, 20, 0.60},
		{"theme", "space themed builds", StrategySemantic, IntentTheme, 15, 0.70},
		{"similar", "sets similar to rivendell", StrategySemantic, IntentTheme, 15, 0.70},
		{"default", "cool castle for my desk", StrategyHybrid, IntentGeneral, 8, 0.80},
		{"empty", "", StrategyHybrid, IntentGeneral, 8, 0.80},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := p.Plan(tt.query)
			assert.Equal(t, tt.strategy, plan.Strategy)
			assert.Equal(t, tt.intent, plan.Intent)
			assert.Equal(t, tt.k, plan.K)
			assert.InDelta(t, tt.thresh, plan.SimilarityThreshold, 1e-9)
		})
	}
}

func TestPlanPrecedence(t *testing.T) {
	p := testPlanner()

	// A set number wins over a year in the same query.
	plan := p.Plan("set 75301 from 2021")
	assert.Equal(t, IntentSetNumber, plan.Intent)

	// Price wins over year.
	plan = p.Plan("expensive sets from 2024")
	assert.Equal(t, IntentPrice, plan.Intent)
	assert.Equal(t, StrategyHybrid, plan.Strategy)

	// A bare 4-digit year is a year, not a set number.
	plan = p.Plan("sets released in 2019")
	assert.Equal(t, IntentYear, plan.Intent)

	// A large dollar amount is a price, not a set number.
	plan = p.Plan("sets under $20000")
	assert.Equal(t, IntentPrice, plan.Intent)
	assert.Equal(t, StrategyHybrid, plan.Strategy)
}

func TestPlanIsTotal(t *testing.T) {
	p := testPlanner()

	queries := []string{
		"????", "a", "Å LEGO!", "the quick brown fox",
		"12", "show me everything", "\n\t ",
	}
	for _, q := range queries {
		plan := p.Plan(q)
		assert.NotEmpty(t, plan.Strategy, "query %q", q)
		assert.Greater(t, plan.K, 0, "query %q", q)
	}
}
