// Package querybuilder turns a filterset.FilterSet into the warehouse
// query plus a description of the columns it projects. Builders are pure
// functions (spec.md §4.3: "never touch the warehouse"), grounded on the
// teacher's own parameterized-SQL style (pkg/core/store/analysis_repo.go's
// "$1, $2, ..." placeholders) generalized from single-row upserts to
// multi-predicate analytical SELECTs.
package querybuilder

import (
	"fmt"
	"strings"

	"github.com/ncrc/justdata/pkg/core/filterset"
)

// Projection describes one column a built query returns, in column order.
type Projection struct {
	Name string
	Kind string // "dimension" or "measure"
}

// Plan is a built query plus its projection, independent of any warehouse
// connection (spec.md §4.3, testable property: "same FilterSet -> byte
// identical query text and params").
type Plan struct {
	Table      string
	Query      string
	Params     []any
	Projection []Projection
}

// predicateBuilder accumulates "$n"-style placeholders and their values in
// argument order, matching the teacher's inline-placeholder convention.
type predicateBuilder struct {
	clauses []string
	params  []any
}

func (p *predicateBuilder) eq(col string, val any) {
	p.params = append(p.params, val)
	p.clauses = append(p.clauses, fmt.Sprintf("%s = $%d", col, len(p.params)))
}

func (p *predicateBuilder) in(col string, vals []string) {
	if len(vals) == 0 {
		return
	}
	placeholders := make([]string, len(vals))
	for i, v := range vals {
		p.params = append(p.params, v)
		placeholders[i] = fmt.Sprintf("$%d", len(p.params))
	}
	p.clauses = append(p.clauses, fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")))
}

func (p *predicateBuilder) inInts(col string, vals []int) {
	if len(vals) == 0 {
		return
	}
	placeholders := make([]string, len(vals))
	for i, v := range vals {
		p.params = append(p.params, v)
		placeholders[i] = fmt.Sprintf("$%d", len(p.params))
	}
	p.clauses = append(p.clauses, fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")))
}

func (p *predicateBuilder) where() string {
	if len(p.clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(p.clauses, " AND ")
}

// Build dispatches to the domain-specific query builder for fs.DataDomain.
func Build(fs filterset.FilterSet) (Plan, error) {
	switch fs.DataDomain {
	case filterset.DomainMortgage:
		return buildMortgage(fs), nil
	case filterset.DomainSmallBusiness:
		return buildSmallBusiness(fs), nil
	case filterset.DomainBranch:
		return buildBranch(fs), nil
	default:
		return Plan{}, fmt.Errorf("querybuilder: unknown data domain %q", fs.DataDomain)
	}
}

var mortgageProjection = []Projection{
	{Name: "year", Kind: "dimension"},
	{Name: "lender_id", Kind: "dimension"},
	{Name: "lender_name", Kind: "dimension"},
	{Name: "county_code", Kind: "dimension"},
	{Name: "tract_id", Kind: "dimension"},
	{Name: "loan_purpose", Kind: "dimension"},
	{Name: "action_taken", Kind: "dimension"},
	{Name: "occupancy_type", Kind: "dimension"},
	{Name: "combined_race_ethnicity", Kind: "dimension"},
	{Name: "derived_sex", Kind: "dimension"},
	{Name: "applicant_income_000s", Kind: "measure"},
	{Name: "msa_median_family_income", Kind: "measure"},
	{Name: "loan_amount_000s", Kind: "measure"},
	{Name: "tract_to_msa_income_pct", Kind: "measure"},
	{Name: "tract_minority_population_pct", Kind: "measure"},
	{Name: "reverse_mortgage", Kind: "dimension"},
}

// buildMortgage implements spec.md §4.3's mortgage query shape: county +
// year filters always applied, remaining mortgage-only fields optional, and
// excludeReverseMortgage appends a `reverse_mortgage = false` predicate
// unless the caller explicitly turned it off.
// raceEthnicityCaseExpr is the canonical coalescing expression (spec.md
// §4.4: "emit the full race/ethnicity coalescing case expression exactly
// once in the projection"). It mirrors classify.CombineRaceEthnicity's
// slot-ordered scan so the warehouse and the engine agree without a second
// implementation of the algorithm.
const raceEthnicityCaseExpr = `CASE
	WHEN ethnicity_1 IN ('hispanic-mexican','hispanic-puerto-rican','hispanic-cuban','hispanic-other')
	  OR ethnicity_2 IN ('hispanic-mexican','hispanic-puerto-rican','hispanic-cuban','hispanic-other')
	  OR ethnicity_3 IN ('hispanic-mexican','hispanic-puerto-rican','hispanic-cuban','hispanic-other')
	  OR ethnicity_4 IN ('hispanic-mexican','hispanic-puerto-rican','hispanic-cuban','hispanic-other')
	  OR ethnicity_5 IN ('hispanic-mexican','hispanic-puerto-rican','hispanic-cuban','hispanic-other')
	  THEN 'Hispanic'
	WHEN COALESCE(
	  NULLIF(race_1, 'withheld'), NULLIF(race_2, 'withheld'), NULLIF(race_3, 'withheld'),
	  NULLIF(race_4, 'withheld'), NULLIF(race_5, 'withheld')
	) = 'native-american' THEN 'Native American'
	WHEN COALESCE(
	  NULLIF(race_1, 'withheld'), NULLIF(race_2, 'withheld'), NULLIF(race_3, 'withheld'),
	  NULLIF(race_4, 'withheld'), NULLIF(race_5, 'withheld')
	) LIKE 'asian%' THEN 'Asian'
	WHEN COALESCE(
	  NULLIF(race_1, 'withheld'), NULLIF(race_2, 'withheld'), NULLIF(race_3, 'withheld'),
	  NULLIF(race_4, 'withheld'), NULLIF(race_5, 'withheld')
	) = 'black' THEN 'Black'
	WHEN COALESCE(
	  NULLIF(race_1, 'withheld'), NULLIF(race_2, 'withheld'), NULLIF(race_3, 'withheld'),
	  NULLIF(race_4, 'withheld'), NULLIF(race_5, 'withheld')
	) LIKE 'hawaiian%' THEN 'Hawaiian/Pacific Islander'
	WHEN COALESCE(
	  NULLIF(race_1, 'withheld'), NULLIF(race_2, 'withheld'), NULLIF(race_3, 'withheld'),
	  NULLIF(race_4, 'withheld'), NULLIF(race_5, 'withheld')
	) = 'white' THEN 'White'
	ELSE 'No Data'
END AS combined_race_ethnicity`

func buildMortgage(fs filterset.FilterSet) Plan {
	p := &predicateBuilder{}
	p.in("county_code", fs.Geography)
	p.inInts("year", fs.Years)
	p.in("loan_purpose", fs.LoanPurposes)
	p.in("action_taken", fs.ActionsTaken)
	p.in("occupancy_type", fs.Occupancy)
	p.in("total_units", fs.Units)
	p.in("construction_method", fs.ConstructionMethod)
	if fs.ExcludeReverseMortgage {
		p.eq("reverse_mortgage", false)
	}

	cols := make([]string, 0, len(mortgageProjection))
	for _, c := range mortgageProjection {
		if c.Name == "combined_race_ethnicity" {
			cols = append(cols, raceEthnicityCaseExpr)
			continue
		}
		cols = append(cols, c.Name)
	}
	query := fmt.Sprintf("SELECT %s FROM hmda_loan_application_register %s", strings.Join(cols, ", "), p.where())

	return Plan{
		Table:      "hmda_loan_application_register",
		Query:      strings.TrimSpace(query),
		Params:     p.params,
		Projection: mortgageProjection,
	}
}

var smallBusinessProjection = []Projection{
	{Name: "year", Kind: "dimension"},
	{Name: "lender_id", Kind: "dimension"},
	{Name: "lender_name", Kind: "dimension"},
	{Name: "county_code", Kind: "dimension"},
	{Name: "tract_id", Kind: "dimension"},
	{Name: "action_taken", Kind: "dimension"},
	{Name: "gross_annual_revenue_lte_1mm", Kind: "dimension"},
	{Name: "loan_amount_000s", Kind: "measure"},
	{Name: "tract_to_msa_income_pct", Kind: "measure"},
	{Name: "tract_minority_population_pct", Kind: "measure"},
}

// buildSmallBusiness implements the CRA small-business query shape: no
// race/ethnicity predicates exist at this grain (spec.md glossary: CRA
// small-business data carries no applicant demographics), so only
// geography/year/action filter.
func buildSmallBusiness(fs filterset.FilterSet) Plan {
	p := &predicateBuilder{}
	p.in("county_code", fs.Geography)
	p.inInts("year", fs.Years)
	p.in("action_taken", fs.ActionsTaken)

	cols := make([]string, len(smallBusinessProjection))
	for i, c := range smallBusinessProjection {
		cols[i] = c.Name
	}
	query := fmt.Sprintf("SELECT %s FROM cra_small_business_register %s", strings.Join(cols, ", "), p.where())

	return Plan{
		Table:      "cra_small_business_register",
		Query:      strings.TrimSpace(query),
		Params:     p.params,
		Projection: smallBusinessProjection,
	}
}

var branchProjection = []Projection{
	{Name: "year", Kind: "dimension"},
	{Name: "lender_id", Kind: "dimension"},
	{Name: "lender_name", Kind: "dimension"},
	{Name: "county_code", Kind: "dimension"},
	{Name: "tract_id", Kind: "dimension"},
	{Name: "branch_id", Kind: "dimension"},
	{Name: "branch_status", Kind: "dimension"},
	{Name: "tract_to_msa_income_pct", Kind: "measure"},
	{Name: "tract_minority_population_pct", Kind: "measure"},
}

// buildBranch implements the branch-presence query shape (spec.md §4.3:
// branch rows carry no loan-level fields — no purpose/action/amount
// predicates apply).
func buildBranch(fs filterset.FilterSet) Plan {
	p := &predicateBuilder{}
	p.in("county_code", fs.Geography)
	p.inInts("year", fs.Years)

	cols := make([]string, len(branchProjection))
	for i, c := range branchProjection {
		cols[i] = c.Name
	}
	query := fmt.Sprintf("SELECT %s FROM branch_register %s", strings.Join(cols, ", "), p.where())

	return Plan{
		Table:      "branch_register",
		Query:      strings.TrimSpace(query),
		Params:     p.params,
		Projection: branchProjection,
	}
}
