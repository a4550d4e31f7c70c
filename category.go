package main

import "fmt"

// Category identifies one of the record groups served by the portal.
// The set is closed: every shape and facet rule switches exhaustively
// over these values.
type Category int

const (
	Reservation Category = iota
	LabTest
	Medication
	Outpatient
	Hospitalization
	Payment
)

// Slugs match the API route segments.
var categorySlugs = map[Category]string{
	Reservation:     "reservations",
	LabTest:         "lab-tests",
	Medication:      "medications",
	Outpatient:      "outpatient-history",
	Hospitalization: "hospitalization-history",
	Payment:         "payments",
}

var categoriesBySlug = func() map[string]Category {
	m := make(map[string]Category, len(categorySlugs))
	for c, slug := range categorySlugs {
		m[slug] = c
	}
	return m
}()

func (c Category) String() string {
	if slug, ok := categorySlugs[c]; ok {
		return slug
	}
	return fmt.Sprintf("category(%d)", int(c))
}

func parseCategory(slug string) (Category, error) {
	c, ok := categoriesBySlug[slug]
	if !ok {
		return 0, fmt.Errorf("unknown record category: %q", slug)
	}
	return c, nil
}

func allCategories() []Category {
	return []Category{Reservation, LabTest, Medication, Outpatient, Hospitalization, Payment}
}
