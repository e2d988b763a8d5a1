// Package geo resolves geography identifiers. The canonical area key is a
// five-character county code (state fips + county fips, zero-padded);
// metro areas and states expand to a set of such codes via a reference
// table the engine owns outright (spec.md §3: "all downstream computations
// operate on sets of canonical county codes").
package geo

import (
	"fmt"
	"sort"
)

// CountySet is a de-duplicated, sortable collection of five-character
// county codes.
type CountySet map[string]struct{}

// NewCountySet builds a CountySet from a slice, padding and validating codes.
func NewCountySet(codes []string) (CountySet, error) {
	set := make(CountySet, len(codes))
	for _, c := range codes {
		padded, err := Canonicalize(c)
		if err != nil {
			return nil, err
		}
		set[padded] = struct{}{}
	}
	return set, nil
}

// Canonicalize zero-pads a county code to five characters and validates it
// is made up of digits only.
func Canonicalize(code string) (string, error) {
	if len(code) > 5 {
		return "", fmt.Errorf("county code %q longer than 5 characters", code)
	}
	padded := fmt.Sprintf("%05s", code)
	for _, r := range padded {
		if r == ' ' {
			return "", fmt.Errorf("county code %q is not numeric", code)
		}
		if r < '0' || r > '9' {
			return "", fmt.Errorf("county code %q is not numeric", code)
		}
	}
	return padded, nil
}

// Sorted returns the county codes in ascending order — used whenever a
// FilterSet is canonicalized for hashing or echoing back to the client.
func (s CountySet) Sorted() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Union merges sets into a fresh CountySet without mutating its arguments.
func Union(sets ...CountySet) CountySet {
	out := make(CountySet)
	for _, s := range sets {
		for c := range s {
			out[c] = struct{}{}
		}
	}
	return out
}

// area is a named reference grouping of counties (a metro area or a state).
type area struct {
	name     string
	counties []string
}

// referenceTable maps metro/state identifiers to their county membership.
// It is a small built-in seed set sufficient for the concrete scenarios
// named in spec.md §8; nothing replaces or extends it at runtime.
var referenceTable = map[string]area{
	"metro:12060": {name: "Atlanta-Sandy Springs-Alpharetta, GA", counties: []string{"13121", "13089", "13135", "13067"}},
	"metro:31080": {name: "Los Angeles-Long Beach-Anaheim, CA", counties: []string{"06037", "06059"}},
	"state:06":    {name: "California", counties: []string{"06037", "06059", "06073", "06001", "06075"}},
	"state:13":    {name: "Georgia", counties: []string{"13121", "13089", "13135", "13067", "13063"}},
}

// ExpandArea resolves a metro/state identifier (e.g. "metro:12060" or
// "state:06") into its canonical county-code set. Unknown identifiers are
// treated as bare county codes (a one-element set), which serves the
// common "directly-filter-by-county" path.
func ExpandArea(identifier string) (CountySet, error) {
	if a, ok := referenceTable[identifier]; ok {
		return NewCountySet(a.counties)
	}
	return NewCountySet([]string{identifier})
}

// ExpandAreas unions the expansion of each identifier into one county set —
// the "geography" field of a FilterSet after request-ingest-time expansion.
func ExpandAreas(identifiers []string) (CountySet, error) {
	result := make(CountySet)
	for _, id := range identifiers {
		expanded, err := ExpandArea(id)
		if err != nil {
			return nil, err
		}
		for c := range expanded {
			result[c] = struct{}{}
		}
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("geography must resolve to at least one county")
	}
	return result, nil
}
