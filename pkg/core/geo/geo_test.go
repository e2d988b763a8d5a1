package geo

import "testing"

func TestCanonicalizePadsShortCodes(t *testing.T) {
	got, err := Canonicalize("37")
	if err != nil {
		t.Fatalf("Canonicalize() error: %v", err)
	}
	if got != "00037" {
		t.Errorf("got %q, want 00037", got)
	}
}

func TestCanonicalizeRejectsNonNumeric(t *testing.T) {
	if _, err := Canonicalize("06a37"); err == nil {
		t.Error("expected an error for a non-numeric code")
	}
}

func TestCanonicalizeRejectsOverlong(t *testing.T) {
	if _, err := Canonicalize("123456"); err == nil {
		t.Error("expected an error for a code longer than 5 characters")
	}
}

func TestNewCountySetDeduplicates(t *testing.T) {
	set, err := NewCountySet([]string{"06037", "6037", "06059"})
	if err != nil {
		t.Fatalf("NewCountySet() error: %v", err)
	}
	if len(set) != 2 {
		t.Errorf("expected 2 distinct counties, got %d: %v", len(set), set)
	}
}

func TestSortedIsAscending(t *testing.T) {
	set, _ := NewCountySet([]string{"06073", "06037", "06059"})
	sorted := set.Sorted()
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1] >= sorted[i] {
			t.Errorf("not ascending: %v", sorted)
		}
	}
}

func TestUnionMergesWithoutMutatingArguments(t *testing.T) {
	a, _ := NewCountySet([]string{"06037"})
	b, _ := NewCountySet([]string{"06059"})
	merged := Union(a, b)
	if len(merged) != 2 {
		t.Fatalf("expected 2 counties in the union, got %d", len(merged))
	}
	if len(a) != 1 || len(b) != 1 {
		t.Error("Union must not mutate its arguments")
	}
}

func TestExpandAreaExpandsKnownMetro(t *testing.T) {
	set, err := ExpandArea("metro:31080")
	if err != nil {
		t.Fatalf("ExpandArea() error: %v", err)
	}
	if len(set) != 2 {
		t.Errorf("expected 2 counties for the LA metro, got %d", len(set))
	}
}

func TestExpandAreaTreatsUnknownIdentifierAsBareCounty(t *testing.T) {
	set, err := ExpandArea("06037")
	if err != nil {
		t.Fatalf("ExpandArea() error: %v", err)
	}
	if len(set) != 1 {
		t.Errorf("expected a single-county set, got %v", set)
	}
}

func TestExpandAreasUnionsAcrossIdentifiers(t *testing.T) {
	set, err := ExpandAreas([]string{"metro:31080", "13121"})
	if err != nil {
		t.Fatalf("ExpandAreas() error: %v", err)
	}
	if len(set) != 3 {
		t.Errorf("expected 3 counties, got %d: %v", len(set), set)
	}
}

func TestExpandAreasRejectsEmptyResult(t *testing.T) {
	if _, err := ExpandAreas(nil); err == nil {
		t.Error("expected an error for an empty geography")
	}
}
