package catalog

import "sort"

// Deduplicator merges normalized items that share an identity key into one
// entry per distinct physical product.
type Deduplicator struct {
	priority map[string]int
}

// NewDeduplicator creates a deduplicator with the given source priority
// order, best first. Sources not listed rank after all listed ones, ordered
// by name so merges stay deterministic.
func NewDeduplicator(priority []string) *Deduplicator {
	rank := make(map[string]int, len(priority))
	for i, name := range priority {
		rank[name] = i
	}
	return &Deduplicator{priority: rank}
}

// Deduplicate groups items by identity key and merges each group. The input
// order does not affect the result, and running the output through
// Deduplicate again yields the same set.
func (d *Deduplicator) Deduplicate(items []*LegoItem) []*LegoItem {
	groups := make(map[string][]*LegoItem)
	order := make([]string, 0, len(items))
	for _, it := range items {
		if _, seen := groups[it.IdentityKey]; !seen {
			order = append(order, it.IdentityKey)
		}
		groups[it.IdentityKey] = append(groups[it.IdentityKey], it)
	}

	out := make([]*LegoItem, 0, len(order))
	for _, key := range order {
		out = append(out, d.merge(groups[key]))
	}
	return out
}

// merge folds a group of items for one identity key into a single item.
// Each field takes the value from the best-ranked contributing item that
// actually has it; a field unknown in every contributor stays unknown.
func (d *Deduplicator) merge(group []*LegoItem) *LegoItem {
	if len(group) == 1 {
		return group[0]
	}

	ranked := make([]*LegoItem, len(group))
	copy(ranked, group)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].QualityScore != ranked[j].QualityScore {
			return ranked[i].QualityScore > ranked[j].QualityScore
		}
		ri, rj := d.rank(ranked[i].SourceName), d.rank(ranked[j].SourceName)
		if ri != rj {
			return ri < rj
		}
		return ranked[i].SourceName < ranked[j].SourceName
	})

	merged := &LegoItem{
		IdentityKey: ranked[0].IdentityKey,
		SourceName:  ranked[0].SourceName,
	}

	for _, it := range ranked {
		if merged.Name == "" {
			merged.Name = it.Name
		}
		if merged.SetNumber == "" {
			merged.SetNumber = it.SetNumber
		}
		if merged.Theme == "" {
			merged.Theme = it.Theme
		}
		if merged.Year == nil {
			merged.Year = it.Year
		}
		if merged.PieceCount == nil {
			merged.PieceCount = it.PieceCount
		}
		if merged.Minifigures == nil {
			merged.Minifigures = it.Minifigures
		}
		if merged.Price == nil {
			merged.Price = it.Price
		}
		if merged.Rating == nil {
			merged.Rating = it.Rating
		}
		if merged.Description == "" {
			merged.Description = it.Description
		}
	}

	merged.ContributingSources = unionSources(group)
	merged.Refresh()
	return merged
}

func (d *Deduplicator) rank(source string) int {
	if r, ok := d.priority[source]; ok {
		return r
	}
	return len(d.priority)
}

func unionSources(group []*LegoItem) []string {
	seen := make(map[string]bool)
	var out []string
	for _, it := range group {
		for _, s := range it.ContributingSources {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out
}
