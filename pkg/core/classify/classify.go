// Package classify implements the canonical derived-classification
// algorithms from spec.md §3 ("Derived Classifications"). Every query
// builder imports this package so the race/ethnicity coalescing expression,
// income-level boundaries, and MMCT thresholds are defined exactly once
// (Design Notes §9: "collapses into a single canonical builder").
package classify

import "math"

// RaceCode and EthnicityCode mirror the warehouse's HMDA-style sentinel
// coding. "Withheld"/"not applicable" sentinels are treated as null for the
// coalesce, per the Design Notes' exact preservation of slot 1..5 ordering.
type RaceCode int

const (
	RaceNoInfo RaceCode = iota
	RaceNativeAmerican
	RaceAsianAsianIndian
	RaceAsianChinese
	RaceAsianFilipino
	RaceAsianJapanese
	RaceAsianKorean
	RaceAsianVietnamese
	RaceAsianOther
	RaceBlack
	RaceHawaiianGuamanian
	RaceHawaiianSamoan
	RaceHawaiianOtherPacific
	RaceWhite
	RaceInfoNotProvided
	RaceNotApplicable
	RaceNoCoApplicant
)

type EthnicityCode int

const (
	EthnicityNoInfo EthnicityCode = iota
	EthnicityHispanicMexican
	EthnicityHispanicPuertoRican
	EthnicityHispanicCuban
	EthnicityHispanicOther
	EthnicityNotHispanic
	EthnicityInfoNotProvided
	EthnicityNotApplicable
	EthnicityNoCoApplicant
)

// CombinedRaceEthnicity is the single coalesced tag attached to every row.
type CombinedRaceEthnicity string

const (
	Hispanic                CombinedRaceEthnicity = "Hispanic"
	NativeAmerican          CombinedRaceEthnicity = "Native American"
	Asian                   CombinedRaceEthnicity = "Asian"
	Black                   CombinedRaceEthnicity = "Black"
	HawaiianPacificIslander CombinedRaceEthnicity = "Hawaiian/Pacific Islander"
	White                   CombinedRaceEthnicity = "White"
	NoData                  CombinedRaceEthnicity = "No Data"
)

// withheldEthnicity reports whether a code is one of the "information
// withheld" sentinels that should be treated as null for the Hispanic check.
func withheldEthnicity(c EthnicityCode) bool {
	switch c {
	case EthnicityNoInfo, EthnicityInfoNotProvided, EthnicityNotApplicable, EthnicityNoCoApplicant:
		return true
	}
	return false
}

func isHispanic(c EthnicityCode) bool {
	switch c {
	case EthnicityHispanicMexican, EthnicityHispanicPuertoRican, EthnicityHispanicCuban, EthnicityHispanicOther:
		return true
	}
	return false
}

// withheldRace reports whether a code is one of the "information withheld"
// sentinels that the coalesce treats as null, moving on to the next slot.
func withheldRace(c RaceCode) bool {
	switch c {
	case RaceNoInfo, RaceInfoNotProvided, RaceNotApplicable, RaceNoCoApplicant:
		return true
	}
	return false
}

func isAsian(c RaceCode) bool {
	switch c {
	case RaceAsianAsianIndian, RaceAsianChinese, RaceAsianFilipino, RaceAsianJapanese,
		RaceAsianKorean, RaceAsianVietnamese, RaceAsianOther:
		return true
	}
	return false
}

func isHawaiianPacific(c RaceCode) bool {
	switch c {
	case RaceHawaiianGuamanian, RaceHawaiianSamoan, RaceHawaiianOtherPacific:
		return true
	}
	return false
}

// CombineRaceEthnicity implements the canonical algorithm, spec.md §3:
//
//  1. if any of the five ethnicity codes is Hispanic -> Hispanic
//  2. else scan race codes 1..5 in order, taking the first non-withheld
//     code, and classify Native American / Asian / Black / HPI / White
//  3. else No Data
//
// It is a pure function of its inputs: calling it twice on the same data
// returns the same answer (spec.md §8, testable property 6).
func CombineRaceEthnicity(ethnicities [5]EthnicityCode, races [5]RaceCode) CombinedRaceEthnicity {
	for _, e := range ethnicities {
		if isHispanic(e) {
			return Hispanic
		}
	}
	for _, r := range races {
		if withheldRace(r) {
			continue
		}
		switch {
		case r == RaceNativeAmerican:
			return NativeAmerican
		case isAsian(r):
			return Asian
		case r == RaceBlack:
			return Black
		case isHawaiianPacific(r):
			return HawaiianPacificIslander
		case r == RaceWhite:
			return White
		}
	}
	return NoData
}

// IncomeBucket is the ≤50 / 50..80 / 80..120 / >120 percent-of-median
// classification shared by borrower-income and tract-income levels.
type IncomeBucket string

const (
	IncomeLow       IncomeBucket = "low"
	IncomeModerate  IncomeBucket = "moderate"
	IncomeMiddle    IncomeBucket = "middle"
	IncomeUpper     IncomeBucket = "upper"
	IncomeUndefined IncomeBucket = ""
)

// BucketIncomePercent classifies a percent-of-median-income value into the
// spec's four buckets. Values are expressed as percent (not fraction),
// per Design Notes §9's unit-convention resolution.
func BucketIncomePercent(pct float64) IncomeBucket {
	switch {
	case pct <= 50:
		return IncomeLow
	case pct <= 80:
		return IncomeModerate
	case pct <= 120:
		return IncomeMiddle
	default:
		return IncomeUpper
	}
}

// IsLMI reports whether a bucket is low or moderate income.
func IsLMI(b IncomeBucket) bool {
	return b == IncomeLow || b == IncomeModerate
}

// BorrowerIncomeLevel computes (applicantIncome*1000)/msaMedianFamilyIncome
// as a percent and buckets it. Returns IncomeUndefined when the msa median
// is zero or missing, so callers never divide by zero (spec.md boundary
// behavior: "MSA median family income = 0 -> row excluded ... never
// produces div-by-zero").
func BorrowerIncomeLevel(applicantIncomeThousands, msaMedianFamilyIncome float64, hasApplicantIncome bool) (IncomeBucket, bool) {
	if !hasApplicantIncome || msaMedianFamilyIncome == 0 {
		return IncomeUndefined, false
	}
	pct := (applicantIncomeThousands * 1000) / msaMedianFamilyIncome * 100
	return BucketIncomePercent(pct), true
}

// TractIncomeLevel buckets a tract-to-msa income percentage already
// expressed in percent form (e.g. 83.4 means 83.4%). Returns false when the
// percentage is not present, so the caller excludes the row from both the
// tract-income totals and denominator (spec.md §4.4 edge-case policy).
func TractIncomeLevel(tractToMSAPercent float64, present bool) (IncomeBucket, bool) {
	if !present {
		return IncomeUndefined, false
	}
	return BucketIncomePercent(tractToMSAPercent), true
}

// IsMajorityMinorityTract reports MMCT status: tract minority population
// percent >= 50 (glossary: MMCT).
func IsMajorityMinorityTract(minorityPercent float64) bool {
	return minorityPercent >= 50
}

// MinorityQuartileBoundaries holds the (mean ± σ) thresholds computed over
// the tracts present in a report's geography for a vintage (spec.md §3,
// "Minority tract quartiles"). Boundaries clamp to [0, 100].
type MinorityQuartileBoundaries struct {
	Mean   float64
	StdDev float64
	// Low is [0, Mean-StdDev), Moderate is [Mean-StdDev, Mean),
	// Middle is [Mean, Mean+StdDev), High is [Mean+StdDev, 100].
	LowUpper      float64
	ModerateUpper float64
	MiddleUpper   float64
}

// ComputeMinorityQuartiles computes mean/σ over the given minority
// percentages (unweighted) and clamps boundaries to [0, 100], matching
// spec.md scenario S3.
func ComputeMinorityQuartiles(minorityPercents []float64) MinorityQuartileBoundaries {
	if len(minorityPercents) == 0 {
		return MinorityQuartileBoundaries{}
	}
	mean := 0.0
	for _, p := range minorityPercents {
		mean += p
	}
	mean /= float64(len(minorityPercents))

	variance := 0.0
	for _, p := range minorityPercents {
		d := p - mean
		variance += d * d
	}
	variance /= float64(len(minorityPercents))
	stddev := math.Sqrt(variance)

	clamp := func(v float64) float64 {
		if v < 0 {
			return 0
		}
		if v > 100 {
			return 100
		}
		return v
	}

	return MinorityQuartileBoundaries{
		Mean:          mean,
		StdDev:        stddev,
		LowUpper:      clamp(mean - stddev),
		ModerateUpper: clamp(mean),
		MiddleUpper:   clamp(mean + stddev),
	}
}

// QuartileLabel classifies a minority percent against precomputed
// boundaries into low/moderate/middle/high.
func (b MinorityQuartileBoundaries) QuartileLabel(minorityPercent float64) string {
	switch {
	case minorityPercent < b.LowUpper:
		return "low"
	case minorityPercent < b.ModerateUpper:
		return "moderate"
	case minorityPercent < b.MiddleUpper:
		return "middle"
	default:
		return "high"
	}
}

// DedupKey is the mortgage deduplication tuple from spec.md §3: rows
// sharing a key are counted once.
type DedupKey struct {
	Year       int
	LenderID   string
	CountyCode string
	TractID    string
	Purpose    string
	Amount     int64
	Action     string
}
