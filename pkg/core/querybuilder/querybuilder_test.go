package querybuilder

import (
	"strings"
	"testing"

	"github.com/ncrc/justdata/pkg/core/filterset"
)

func TestBuildMortgageAppliesReverseMortgageExclusionByDefault(t *testing.T) {
	fs := filterset.FilterSet{
		DataDomain:             filterset.DomainMortgage,
		Geography:              []string{"06037"},
		Years:                  []int{2022},
		ExcludeReverseMortgage: true,
	}
	plan, err := Build(fs)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if !strings.Contains(plan.Query, "reverse_mortgage = $") {
		t.Errorf("expected reverse_mortgage predicate in query, got: %s", plan.Query)
	}
	if !strings.Contains(plan.Query, "combined_race_ethnicity") {
		t.Error("expected the coalesced race/ethnicity column to appear in the projection")
	}
	// the case expression must appear exactly once.
	if n := strings.Count(plan.Query, "AS combined_race_ethnicity"); n != 1 {
		t.Errorf("expected race/ethnicity case expression exactly once, found %d", n)
	}
}

func TestBuildMortgageOmitsReverseMortgagePredicateWhenIncluded(t *testing.T) {
	fs := filterset.FilterSet{
		DataDomain: filterset.DomainMortgage,
		Geography:  []string{"06037"},
		Years:      []int{2022},
	}
	plan, err := Build(fs)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if strings.Contains(plan.Query, "reverse_mortgage = $") {
		t.Errorf("did not expect reverse_mortgage predicate, got: %s", plan.Query)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	fs := filterset.FilterSet{
		DataDomain:   filterset.DomainMortgage,
		Geography:    []string{"06037", "06059"},
		Years:        []int{2021, 2022},
		LoanPurposes: []string{"home-purchase"},
	}
	a, err := Build(fs)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	b, err := Build(fs)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if a.Query != b.Query {
		t.Errorf("expected byte-identical query text, got:\n%s\nvs\n%s", a.Query, b.Query)
	}
	if len(a.Params) != len(b.Params) {
		t.Errorf("expected identical param count, got %d vs %d", len(a.Params), len(b.Params))
	}
}

func TestBuildSmallBusinessHasNoRaceEthnicityColumn(t *testing.T) {
	fs := filterset.FilterSet{DataDomain: filterset.DomainSmallBusiness, Geography: []string{"06037"}, Years: []int{2022}}
	plan, err := Build(fs)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if strings.Contains(plan.Query, "combined_race_ethnicity") {
		t.Error("small-business grain must not project race/ethnicity")
	}
}

func TestBuildBranchHasNoLoanFields(t *testing.T) {
	fs := filterset.FilterSet{DataDomain: filterset.DomainBranch, Geography: []string{"06037"}, Years: []int{2022}}
	plan, err := Build(fs)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if strings.Contains(plan.Query, "loan_amount") {
		t.Error("branch grain must not reference loan fields")
	}
}

func TestBuildUnknownDomain(t *testing.T) {
	fs := filterset.FilterSet{DataDomain: "bogus", Geography: []string{"06037"}, Years: []int{2022}}
	if _, err := Build(fs); err == nil {
		t.Error("expected an error for an unknown data domain")
	}
}

func TestPredicateBuilderParamOrdering(t *testing.T) {
	fs := filterset.FilterSet{
		DataDomain: filterset.DomainMortgage,
		Geography:  []string{"06037", "06059"},
		Years:      []int{2022},
	}
	plan, err := Build(fs)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if len(plan.Params) != 3 { // two counties + one year
		t.Fatalf("expected 3 params, got %d: %v", len(plan.Params), plan.Params)
	}
	if !strings.Contains(plan.Query, "$1") || !strings.Contains(plan.Query, "$3") {
		t.Errorf("expected sequential $n placeholders, got: %s", plan.Query)
	}
}
