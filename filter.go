package main

// applyFacet reduces a cached raw response to the records whose
// department matches facet, rebuilding the original envelope so the
// rendering layer sees the same shape whether or not a filter is
// active. The empty facet is the "all" selection and returns raw
// untouched. The input is never mutated; the result shares the
// matching record objects with it.
func applyFacet(c Category, raw any, facet string) any {
	if facet == "" {
		return raw
	}

	switch c {
	case LabTest:
		if m, ok := raw.(map[string]any); ok {
			if items, ok := m[labResultKey].([]any); ok {
				out := cloneWrapper(m)
				out[labResultKey] = filterItems(c, items, facet)
				return out
			}
		}

	case Medication:
		if m, ok := raw.(map[string]any); ok {
			otpt, hasOtpt := m[medOutpatientKey].(map[string]any)
			inpt, hasInpt := m[medInpatientKey].(map[string]any)
			if hasOtpt || hasInpt {
				out := cloneWrapper(m)
				if hasOtpt {
					out[medOutpatientKey] = filterContainer(c, otpt, facet)
				}
				if hasInpt {
					out[medInpatientKey] = filterContainer(c, inpt, facet)
				}
				return out
			}
		}
	}

	// Shared envelope rules: bare sequence or {list: [...]} wrapper.
	if items, ok := raw.([]any); ok {
		return filterItems(c, items, facet)
	}
	if m, ok := raw.(map[string]any); ok {
		if items, ok := m[listKey].([]any); ok {
			out := cloneWrapper(m)
			out[listKey] = filterItems(c, items, facet)
			return out
		}
	}

	// Nothing extractable to filter.
	return raw
}

// filterContainer filters one admission-type sub-container, keeping
// every wrapper key and replacing only the detail list.
func filterContainer(c Category, sub map[string]any, facet string) map[string]any {
	out := cloneWrapper(sub)
	if items, ok := sub[medDetailKey].([]any); ok {
		out[medDetailKey] = filterItems(c, items, facet)
	}
	return out
}

// filterItems keeps the records whose resolved department equals
// facet exactly. Comparison is case sensitive, no normalization.
func filterItems(c Category, items []any, facet string) []any {
	filtered := make([]any, 0, len(items))
	for _, item := range items {
		rec, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if resolveFacet(c, rec) == facet {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

func cloneWrapper(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
