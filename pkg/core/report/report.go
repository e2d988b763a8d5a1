// Package report defines the Report value (spec.md §3) and the tabular
// artifacts the aggregation, demographic-join, and narrative stages
// populate. Report is immutable once stored: stages build it strictly in
// dependency order so no reader ever observes a half-built value.
package report

import (
	"time"

	"github.com/ncrc/justdata/pkg/core/filterset"
)

// Metadata carries the request echo and provenance the frontend and
// downstream exporters need (spec.md §3 "metadata").
type Metadata struct {
	JobID              string               `json:"jobId"`
	DataDomain         filterset.DataDomain `json:"dataDomain"`
	FilterSet          filterset.FilterSet  `json:"filterSet"`
	RecipeName         string               `json:"recipeName"`
	CensusVintages     []string             `json:"censusVintages"`
	WarehouseQueryHash string               `json:"warehouseQueryHash"`
	CreatedAt          time.Time            `json:"createdAt"`
	Denominator        string               `json:"denominator"`
	Warnings           []string             `json:"warnings,omitempty"`
	FatalReason        string               `json:"fatalReason,omitempty"`
}

// SummaryRow is one (countyCode, year) grouping (spec.md §3 "summary").
type SummaryRow struct {
	CountyCode  string                  `json:"countyCode"`
	Year        int                     `json:"year"`
	TotalCount  int64                   `json:"totalCount"`
	TotalAmount int64                   `json:"totalAmount"` // dollars, post ×1000 presentation scaling
	ByClass     map[string]ClassCounts  `json:"byClass"`
}

// ClassCounts is a per-derived-classification count/amount pair.
type ClassCounts struct {
	Count  int64 `json:"count"`
	Amount int64 `json:"amount"`
}

// DemographicRow is one (year, combinedRaceEthnicity) grouping (spec.md §3
// "byDemographic").
type DemographicRow struct {
	Year                  int     `json:"year"`
	CombinedRaceEthnicity string  `json:"combinedRaceEthnicity"`
	Count                 int64   `json:"count"`
	Amount                int64   `json:"amount"`
	ShareOfTotalPct       float64 `json:"shareOfTotalPct"`
	ShareOfPopulationPct  float64 `json:"shareOfPopulationPct,omitempty"`
}

// IncomeNeighborhoodRow is one income/neighborhood bucket row (spec.md §3
// "byIncomeNeighborhood").
type IncomeNeighborhoodRow struct {
	Year             int     `json:"year"`
	Kind             string  `json:"kind"` // "borrowerIncome" | "tractIncome" | "minorityQuartile"
	Bucket           string  `json:"bucket"`
	Count            int64   `json:"count"`
	Amount           int64   `json:"amount"`
	SharePct         float64 `json:"sharePct"`
	CensusSharePct   float64 `json:"censusSharePct,omitempty"`
	LendingSharePct  float64 `json:"lendingSharePct,omitempty"`
}

// LenderRow is one lender's aggregate in byLender (spec.md §3 "byLender").
type LenderRow struct {
	LenderID    string                 `json:"lenderId"`
	LenderName  string                 `json:"lenderName"`
	TotalCount  int64                  `json:"totalCount"` // most-recent-year count, the sort key
	TotalAmount int64                  `json:"totalAmount"`
	ByClass     map[string]ClassCounts `json:"byClass"`
}

// LenderYearRow is one lender's per-year panel entry in byLenderByYear.
type LenderYearRow struct {
	LenderID string `json:"lenderId"`
	Year     int    `json:"year"`
	Count    int64  `json:"count"`
	Amount   int64  `json:"amount"`
}

// ConcentrationRow is one year's HHI value (spec.md §3 "concentration").
type ConcentrationRow struct {
	Year     int      `json:"year"`
	HHI      *float64 `json:"hhi"` // nil when undefined (empty result)
	Category string   `json:"category"`
}

// ConcentrationCategory classifies an HHI value per spec.md §3.
func ConcentrationCategory(hhi float64) string {
	switch {
	case hhi < 1500:
		return "unconcentrated"
	case hhi <= 2500:
		return "moderate"
	default:
		return "high"
	}
}

// TrendRow is one year's total plus year-over-year delta (spec.md §3
// "trends").
type TrendRow struct {
	Year          int      `json:"year"`
	Total         int64    `json:"total"`
	DeltaCount    *int64   `json:"deltaCount"`    // nil for the first year
	PercentChange *float64 `json:"percentChange"` // nil for first year or zero-division
	Arrow         string   `json:"arrow"`         // "up" | "down" | "flat"
}

// DemographicVintage is one vintage's population/race-ethnicity shares for
// the report's geography (spec.md §3 "demographicContext").
type DemographicVintage struct {
	Vintage             string             `json:"vintage"`
	TotalPopulation     int64              `json:"totalPopulation"`
	SharesByClassPct    map[string]float64 `json:"sharesByClassPct"`
}

// PeerComparison holds a subject lender's metrics beside the peer-band mean
// (spec.md §3 "peerComparison").
type PeerComparison struct {
	Subject    LenderRow `json:"subject"`
	PeerCount  int       `json:"peerCount"`
	PeerMean   LenderRow `json:"peerMean"`
}

// Report is the finalized artifact a successful job owns (spec.md §3).
type Report struct {
	Metadata              Metadata                         `json:"metadata"`
	Summary               []SummaryRow                     `json:"summary"`
	ByDemographic         []DemographicRow                 `json:"byDemographic"`
	ByIncomeNeighborhood  []IncomeNeighborhoodRow          `json:"byIncomeNeighborhood"`
	ByLender              []LenderRow                      `json:"byLender"`
	ByLenderOverflow      bool                             `json:"byLenderOverflow"`
	ByLenderByYear        []LenderYearRow                  `json:"byLenderByYear"`
	Concentration         []ConcentrationRow               `json:"concentration"`
	Trends                []TrendRow                       `json:"trends"`
	DemographicContext    []DemographicVintage             `json:"demographicContext"`
	MinorityQuartileBounds map[string]map[string]float64   `json:"minorityQuartileBounds,omitempty"` // vintage -> label -> upper bound
	PeerComparison        *PeerComparison                  `json:"peerComparison,omitempty"`
	Narratives            map[string]string                `json:"narratives"`
}

// New returns an empty Report with initialized maps/slices so JSON
// marshaling never emits `null` for collection fields (spec.md boundary
// behavior: "Empty warehouse result -> Report exists with all tables
// empty").
func New(meta Metadata) *Report {
	return &Report{
		Metadata:             meta,
		Summary:              []SummaryRow{},
		ByDemographic:        []DemographicRow{},
		ByIncomeNeighborhood: []IncomeNeighborhoodRow{},
		ByLender:             []LenderRow{},
		ByLenderByYear:       []LenderYearRow{},
		Concentration:        []ConcentrationRow{},
		Trends:               []TrendRow{},
		DemographicContext:   []DemographicVintage{},
		Narratives:           map[string]string{},
	}
}
