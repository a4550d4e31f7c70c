package main

import "sort"

// distinctFacets returns the departments present in one response,
// sorted ascending so the selector stays stable across fetches.
func distinctFacets(c Category, raw any) []string {
	counts := facetCounts(c, raw)
	facets := make([]string, 0, len(counts))
	for facet := range counts {
		facets = append(facets, facet)
	}
	sort.Strings(facets)
	return facets
}

// facetCounts tallies records per resolved department. Records with
// no resolvable department are left out of the map but still count
// toward recordTotal.
func facetCounts(c Category, raw any) map[string]int {
	counts := map[string]int{}
	for _, rec := range extractSequence(c, raw) {
		if facet := resolveFacet(c, rec); facet != "" {
			counts[facet]++
		}
	}
	return counts
}

// recordTotal is the size of the canonical sequence, including
// uncategorized records.
func recordTotal(c Category, raw any) int {
	return len(extractSequence(c, raw))
}
