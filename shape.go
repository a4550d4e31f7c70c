package main

import (
	"sort"
	"strconv"
)

// A Record is one domain item as decoded from the upstream JSON. The
// core never models category fields individually; it only probes the
// department fields below.
type Record = map[string]any

// Envelope keys used by the upstream portal API.
const (
	listKey          = "list"
	labResultKey     = "rsltDtlList"
	medOutpatientKey = "otpt"
	medInpatientKey  = "inpt"
	medDetailKey     = "prscDtlList"
)

// Department fields probed when resolving a record's facet.
const (
	deptField    = "dprtNm"
	altDeptField = "mdcrDprtNm"
	labDeptField = "ordrDprtNm"
)

// Reservation sort key fields (date then time of day, both strings
// of digits in the upstream payload).
const (
	rsvtDateField = "rsvtYmd"
	rsvtTimeField = "rsvtHm"
)

// facetField returns the primary department field for a category.
// Lab results carry the ordering department; prescriptions and
// payments share the medical-care department field.
func facetField(c Category) string {
	switch c {
	case LabTest:
		return labDeptField
	case Medication, Payment:
		return altDeptField
	default:
		return deptField
	}
}

// resolveFacet resolves a record's department by probing the
// category's own field first, then the generic fields, first
// non-empty value wins. An empty result means the record is
// uncategorized.
func resolveFacet(c Category, rec Record) string {
	for _, field := range []string{facetField(c), deptField, altDeptField} {
		if v, ok := rec[field].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// extractSequence reduces one raw upstream response to the canonical
// ordered record list for its category. Malformed or missing data
// degrades to an empty sequence, never an error.
func extractSequence(c Category, raw any) []Record {
	switch c {
	case Reservation:
		seq := defaultSequence(raw)
		sortReservations(seq)
		return seq

	case LabTest:
		if m, ok := raw.(map[string]any); ok {
			if seq, ok := asRecords(m[labResultKey]); ok {
				return seq
			}
		}
		return defaultSequence(raw)

	case Medication:
		// Prescription history splits into outpatient and inpatient
		// sub-containers. Concatenate outpatient first, skipping a
		// container that is absent.
		if m, ok := raw.(map[string]any); ok {
			otpt, hasOtpt := containerSequence(m, medOutpatientKey)
			inpt, hasInpt := containerSequence(m, medInpatientKey)
			if hasOtpt || hasInpt {
				return append(otpt, inpt...)
			}
		}
		return defaultSequence(raw)

	case Outpatient, Hospitalization, Payment:
		return defaultSequence(raw)
	}
	return []Record{}
}

// defaultSequence applies the shared envelope rules: a bare sequence
// is taken as is, a {list: [...]} wrapper is unwrapped, anything else
// yields no records.
func defaultSequence(raw any) []Record {
	if seq, ok := asRecords(raw); ok {
		return seq
	}
	if m, ok := raw.(map[string]any); ok {
		if seq, ok := asRecords(m[listKey]); ok {
			return seq
		}
	}
	return []Record{}
}

// containerSequence pulls the prescription detail list out of one
// admission-type sub-container. The second result reports whether
// the sub-container itself exists.
func containerSequence(m map[string]any, key string) ([]Record, bool) {
	sub, ok := m[key].(map[string]any)
	if !ok {
		return nil, false
	}
	seq, ok := asRecords(sub[medDetailKey])
	if !ok {
		return []Record{}, true
	}
	return seq, true
}

// asRecords converts a decoded JSON array into a fresh record slice.
// Non-object entries are dropped.
func asRecords(v any) ([]Record, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	records := make([]Record, 0, len(items))
	for _, item := range items {
		if rec, ok := item.(map[string]any); ok {
			records = append(records, rec)
		}
	}
	return records, true
}

// sortReservations orders reservations ascending by date and time of
// day. The sort is stable so records with equal keys keep source
// order. Only the canonical slice is reordered, never the raw
// response.
func sortReservations(seq []Record) {
	sort.SliceStable(seq, func(i, j int) bool {
		return reservationKey(seq[i]) < reservationKey(seq[j])
	})
}

func reservationKey(rec Record) string {
	return fieldString(rec[rsvtDateField]) + fieldString(rec[rsvtTimeField])
}

// fieldString renders a scalar field for key building. The upstream
// API mixes string and numeric date fields.
func fieldString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return ""
}
