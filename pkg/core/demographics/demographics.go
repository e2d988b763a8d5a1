// Package demographics implements the Demographic Context Joiner (spec.md
// §4.6): fetches census data for a report's geography and weaves it into
// demographicContext and the census-share column of byIncomeNeighborhood.
package demographics

import (
	"context"

	"github.com/ncrc/justdata/pkg/core/census"
	"github.com/ncrc/justdata/pkg/core/classify"
	"github.com/ncrc/justdata/pkg/core/report"
)

// Joiner attaches demographicContext and minority-quartile boundaries to a
// Report given its geography and the vintages a recipe requests.
type Joiner struct {
	Client census.Client
}

func New(client census.Client) *Joiner {
	return &Joiner{Client: client}
}

// Join fetches demographics for each vintage and tract distributions for
// the most recent vintage, population-weighting percentage fields across
// multi-county geography (spec.md §4.6). Failure is demoted to a warning
// on rep.Metadata.Warnings — the job always succeeds.
func (j *Joiner) Join(ctx context.Context, countyCodes []string, vintages []census.Vintage, rep *report.Report) {
	if j.Client == nil || len(vintages) == 0 {
		rep.Metadata.Warnings = append(rep.Metadata.Warnings, "census-unavailable")
		return
	}

	for _, v := range vintages {
		rows, err := j.Client.GetCountyDemographics(ctx, countyCodes, v)
		if err != nil {
			rep.Metadata.Warnings = append(rep.Metadata.Warnings, "census-unavailable:"+string(v))
			continue
		}
		rep.DemographicContext = append(rep.DemographicContext, combineCounties(v, rows))
	}

	latest := latestVintage(vintages)
	tracts, err := j.Client.GetTractDistributions(ctx, countyCodes, latest)
	if err != nil {
		rep.Metadata.Warnings = append(rep.Metadata.Warnings, "census-unavailable:tracts")
		return
	}
	attachMinorityQuartiles(latest, tracts, rep)
	attachCensusShares(rep, tracts)
}

// combineCounties sums absolute counts and population-weights percentage
// shares across the geography's counties for one vintage.
func combineCounties(vintage census.Vintage, rows []census.DemographicsRow) report.DemographicVintage {
	dv := report.DemographicVintage{Vintage: string(vintage), SharesByClassPct: map[string]float64{}}
	var totalPop int64
	for _, r := range rows {
		totalPop += r.TotalPopulation
	}
	dv.TotalPopulation = totalPop
	if totalPop == 0 {
		return dv
	}

	var hispanic, native, asian, black, hpi, white, other int64
	for _, r := range rows {
		hispanic += r.HispanicLatino
		native += r.NativeAmerican
		asian += r.Asian
		black += r.Black
		hpi += r.HawaiianPacific
		white += r.White
		other += r.Other + r.TwoOrMore
	}
	dv.SharesByClassPct[string(classify.Hispanic)] = pct(hispanic, totalPop)
	dv.SharesByClassPct[string(classify.NativeAmerican)] = pct(native, totalPop)
	dv.SharesByClassPct[string(classify.Asian)] = pct(asian, totalPop)
	dv.SharesByClassPct[string(classify.Black)] = pct(black, totalPop)
	dv.SharesByClassPct[string(classify.HawaiianPacificIslander)] = pct(hpi, totalPop)
	dv.SharesByClassPct[string(classify.White)] = pct(white, totalPop)
	dv.SharesByClassPct["Other"] = pct(other, totalPop)
	return dv
}

// attachMinorityQuartiles computes mean±σ boundaries over the tracts
// present for the latest vintage (spec.md §3 "Minority tract quartiles",
// scenario S3) and records them for the frontend to render ranges.
func attachMinorityQuartiles(vintage census.Vintage, tracts []census.TractRow, rep *report.Report) {
	if len(tracts) == 0 {
		return
	}
	percents := make([]float64, len(tracts))
	for i, t := range tracts {
		percents[i] = t.MinorityPercent
	}
	bounds := classify.ComputeMinorityQuartiles(percents)

	if rep.MinorityQuartileBounds == nil {
		rep.MinorityQuartileBounds = map[string]map[string]float64{}
	}
	rep.MinorityQuartileBounds[string(vintage)] = map[string]float64{
		"low":      bounds.LowUpper,
		"moderate": bounds.ModerateUpper,
		"middle":   bounds.MiddleUpper,
		"high":     100,
	}
}

// attachCensusShares joins the census population share into each
// byIncomeNeighborhood row's CensusSharePct, leaving LendingSharePct equal
// to the share already computed by the aggregation engine (spec.md §4.6:
// "census share" column alongside the "lending share" column).
//
// Only "minorityQuartile" rows (bucket "mmct"/"non-mmct") have a census
// counterpart: the household-weighted share of the geography's tracts that
// are majority-minority. "borrowerIncome"/"tractIncome" buckets are HMDA
// income bands with no corresponding population statistic in the tract
// feed, so their CensusSharePct is left at zero.
func attachCensusShares(rep *report.Report, tracts []census.TractRow) {
	mmctSharePct := mmctPopulationShares(tracts)
	if len(mmctSharePct) == 0 {
		return
	}
	for i := range rep.ByIncomeNeighborhood {
		row := &rep.ByIncomeNeighborhood[i]
		row.LendingSharePct = row.SharePct
		if row.Kind != "minorityQuartile" {
			continue
		}
		if share, ok := mmctSharePct[row.Bucket]; ok {
			row.CensusSharePct = share
		}
	}
}

// mmctPopulationShares returns the household-weighted share of tracts that
// are majority-minority ("mmct") versus not ("non-mmct"), keyed the same
// way buildByIncomeNeighborhood labels its minorityQuartile rows.
func mmctPopulationShares(tracts []census.TractRow) map[string]float64 {
	var mmctHouseholds, totalHouseholds int64
	for _, t := range tracts {
		totalHouseholds += t.Households
		if classify.IsMajorityMinorityTract(t.MinorityPercent) {
			mmctHouseholds += t.Households
		}
	}
	if totalHouseholds == 0 {
		return nil
	}
	return map[string]float64{
		"mmct":     pct(mmctHouseholds, totalHouseholds),
		"non-mmct": pct(totalHouseholds-mmctHouseholds, totalHouseholds),
	}
}

func latestVintage(vintages []census.Vintage) census.Vintage {
	priority := map[census.Vintage]int{
		census.Vintage2010Decennial: 0,
		census.Vintage2020Decennial: 1,
		census.VintageLatestACS5yr:  2,
	}
	best := vintages[0]
	for _, v := range vintages[1:] {
		if priority[v] > priority[best] {
			best = v
		}
	}
	return best
}

func pct(n, d int64) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d) * 100
}
