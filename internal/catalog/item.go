// Package catalog provides the canonical LEGO set model and the
// normalize/score/deduplicate stages of the load pipeline.
package catalog

import (
	"fmt"
	"strings"
)

// RawRecord is an untyped record as returned by a source adapter. It is
// consumed once during a load cycle and never persisted.
type RawRecord struct {
	Source string
	Fields map[string]interface{}
}

// LegoItem is the canonical entity produced by normalization and merging.
// Unresolvable numeric fields are nil, text fields are empty; the pipeline
// never substitutes fabricated defaults.
type LegoItem struct {
	IdentityKey         string   `json:"identityKey"`
	Name                string   `json:"name"`
	SetNumber           string   `json:"setNumber,omitempty"`
	Theme               string   `json:"theme,omitempty"`
	Year                *int     `json:"year,omitempty"`
	PieceCount          *int     `json:"pieceCount,omitempty"`
	Minifigures         *int     `json:"minifigures,omitempty"`
	Price               *float64 `json:"price,omitempty"`
	Rating              *float64 `json:"rating,omitempty"`
	Description         string   `json:"description,omitempty"`
	SourceName          string   `json:"sourceName"`
	ContributingSources []string `json:"contributingSources"`
	QualityScore        float64  `json:"qualityScore"`
	EmbeddingText       string   `json:"embeddingText"`
}

// Refresh recomputes the derived fields (quality score and embedding text)
// after any contributing field changes.
func (it *LegoItem) Refresh() {
	it.QualityScore = Score(it)
	it.EmbeddingText = BuildEmbeddingText(it)
}

// HasSource reports whether the given source contributed to this item.
func (it *LegoItem) HasSource(name string) bool {
	for _, s := range it.ContributingSources {
		if s == name {
			return true
		}
	}
	return false
}

// BuildEmbeddingText derives the text representation used as the unit of
// semantic indexing. Unknown fields are omitted rather than rendered as
// placeholders.
func BuildEmbeddingText(it *LegoItem) string {
	var b strings.Builder
	b.WriteString("LEGO Set: ")
	b.WriteString(it.Name)
	if it.Theme != "" {
		b.WriteString(" | Theme: ")
		b.WriteString(it.Theme)
	}
	if it.Year != nil {
		fmt.Fprintf(&b, " | Year: %d", *it.Year)
	}
	if it.PieceCount != nil {
		fmt.Fprintf(&b, " | Pieces: %d", *it.PieceCount)
	}
	if it.Description != "" {
		b.WriteString(" | ")
		b.WriteString(it.Description)
	}
	return b.String()
}
