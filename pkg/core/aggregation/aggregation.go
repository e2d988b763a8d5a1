// Package aggregation implements the Aggregation Engine (spec.md §4.5): a
// single pass over a warehouse.Table that produces every report table
// except demographicContext and narratives. Grounded on the teacher's
// CalculateBalanceSheetTotals/CalculateIncomeStatementTotals shape
// (pkg/core/calc/aggregation.go) — accumulate into typed totals structs in
// one deterministic pass, never touching I/O.
package aggregation

import (
	"sort"
	"strconv"

	"github.com/ncrc/justdata/pkg/core/classify"
	"github.com/ncrc/justdata/pkg/core/querybuilder"
	"github.com/ncrc/justdata/pkg/core/report"
	"github.com/ncrc/justdata/pkg/core/warehouse"
)

// TopNLenders is the default cap on byLender/byLenderByYear rows (spec.md
// §3: "capped at top N (default 10)").
const TopNLenders = 10

// ShareDenominator names the configurable reference value for percent
// shares (spec.md §4.5).
type ShareDenominator string

const (
	DenomTotalForYear      ShareDenominator = "total-count-for-year"
	DenomClassificationSum ShareDenominator = "sum-of-classification-group"
	DenomLoanSizeGroupSum  ShareDenominator = "sum-of-loan-size-categories"
)

// row is the decoded, classification-annotated shape of one warehouse row,
// independent of data domain so the engine's accumulation logic is shared.
type row struct {
	Year                  int
	LenderID              string
	LenderName            string
	CountyCode            string
	CombinedRaceEthnicity string
	AmountThousands       int64
	BorrowerIncomeBucket  classify.IncomeBucket
	HasBorrowerIncome     bool
	TractIncomeBucket     classify.IncomeBucket
	HasTractIncome        bool
	IsMMCT                bool
	HasMinorityPercent    bool
	MinorityPercent       float64
	DedupKey              classify.DedupKey
}

// Engine accumulates a Table into report tables. It is stateless between
// calls to Run — one Engine may process many jobs' tables concurrently.
type Engine struct {
	Denominator ShareDenominator
}

// New constructs an Engine using the given denominator policy, recorded
// into Metadata.Denominator by the pipeline.
func New(denom ShareDenominator) *Engine {
	if denom == "" {
		denom = DenomTotalForYear
	}
	return &Engine{Denominator: denom}
}

// Run consumes t in one pass and populates every field of rep except
// DemographicContext, MinorityQuartileBounds, PeerComparison, and
// Narratives, which later stages own. It returns every lender's totals
// keyed by LenderID, ahead of the TopNLenders truncation applied to
// rep.ByLender, so BuildPeerComparison can see a subject or peer ranked
// below the top N.
func (e *Engine) Run(t *warehouse.Table, plan querybuilder.Plan, rep *report.Report) map[string]*report.LenderRow {
	rows := decode(t, plan)
	rows = dedup(rows)

	e.buildSummary(rows, rep)
	e.buildByDemographic(rows, rep)
	e.buildByIncomeNeighborhood(rows, rep)
	lenderTotals := e.buildByLender(rows, rep)
	e.buildByLenderByYear(rows, lenderTotals, rep)
	e.buildConcentration(rows, rep)
	e.buildTrends(rep)
	return lenderTotals
}

// decode projects a warehouse.Table into the engine's internal row shape
// using the column names the query builder declared in its projection.
// Missing columns are tolerated (branch/small-business rows carry fewer
// fields than mortgage rows).
func decode(t *warehouse.Table, plan querybuilder.Plan) []row {
	idx := func(name string) int { return t.ColumnIndex(name) }

	yearIdx := idx("year")
	lenderIDIdx := idx("lender_id")
	lenderNameIdx := idx("lender_name")
	countyIdx := idx("county_code")
	amountIdx := idx("loan_amount_000s")
	raceEthIdx := idx("combined_race_ethnicity")
	incomeIdx := idx("applicant_income_000s")
	msaMedianIdx := idx("msa_median_family_income")
	tractPctIdx := idx("tract_to_msa_income_pct")
	minorityPctIdx := idx("tract_minority_population_pct")
	purposeIdx := idx("loan_purpose")
	actionIdx := idx("action_taken")
	tractIDIdx := idx("tract_id")

	out := make([]row, 0, len(t.Rows))
	for _, r := range t.Rows {
		var out1 row
		if yearIdx >= 0 {
			out1.Year = asInt(r[yearIdx])
		}
		if lenderIDIdx >= 0 {
			out1.LenderID = asString(r[lenderIDIdx])
		}
		if lenderNameIdx >= 0 {
			out1.LenderName = asString(r[lenderNameIdx])
		}
		if countyIdx >= 0 {
			out1.CountyCode = asString(r[countyIdx])
		}
		if amountIdx >= 0 {
			out1.AmountThousands = int64(asFloat(r[amountIdx]))
		}

		// The coalesced class is computed once by the query builder's CASE
		// expression (spec.md §4.4); the engine treats it as authoritative.
		if raceEthIdx >= 0 {
			out1.CombinedRaceEthnicity = asString(r[raceEthIdx])
		} else {
			out1.CombinedRaceEthnicity = string(classify.NoData)
		}

		if incomeIdx >= 0 && r[incomeIdx] != nil && msaMedianIdx >= 0 && r[msaMedianIdx] != nil {
			bucket, ok := classify.BorrowerIncomeLevel(asFloat(r[incomeIdx]), asFloat(r[msaMedianIdx]), true)
			out1.BorrowerIncomeBucket = bucket
			out1.HasBorrowerIncome = ok
		}
		if tractPctIdx >= 0 && r[tractPctIdx] != nil {
			pct := asFloat(r[tractPctIdx])
			bucket, ok := classify.TractIncomeLevel(pct, true)
			out1.TractIncomeBucket = bucket
			out1.HasTractIncome = ok
		}
		if minorityPctIdx >= 0 && r[minorityPctIdx] != nil {
			out1.MinorityPercent = asFloat(r[minorityPctIdx])
			out1.HasMinorityPercent = true
			out1.IsMMCT = classify.IsMajorityMinorityTract(out1.MinorityPercent)
		}

		purpose := ""
		if purposeIdx >= 0 {
			purpose = asString(r[purposeIdx])
		}
		action := ""
		if actionIdx >= 0 {
			action = asString(r[actionIdx])
		}
		tractID := ""
		if tractIDIdx >= 0 {
			tractID = asString(r[tractIDIdx])
		}
		out1.DedupKey = classify.DedupKey{
			Year:       out1.Year,
			LenderID:   out1.LenderID,
			CountyCode: out1.CountyCode,
			TractID:    tractID,
			Purpose:    purpose,
			Amount:     out1.AmountThousands,
			Action:     action,
		}

		out = append(out, out1)
	}
	return out
}

// dedup collapses rows sharing a DedupKey, counting each loan once (spec.md
// §3 "Deduplication key").
func dedup(rows []row) []row {
	seen := make(map[classify.DedupKey]struct{}, len(rows))
	out := make([]row, 0, len(rows))
	for _, r := range rows {
		if _, ok := seen[r.DedupKey]; ok {
			continue
		}
		seen[r.DedupKey] = struct{}{}
		out = append(out, r)
	}
	return out
}

func (e *Engine) buildSummary(rows []row, rep *report.Report) {
	type key struct {
		County string
		Year   int
	}
	acc := make(map[key]*report.SummaryRow)
	var order []key

	for _, r := range rows {
		k := key{County: r.CountyCode, Year: r.Year}
		sr, ok := acc[k]
		if !ok {
			sr = &report.SummaryRow{CountyCode: r.CountyCode, Year: r.Year, ByClass: map[string]report.ClassCounts{}}
			acc[k] = sr
			order = append(order, k)
		}
		sr.TotalCount++
		sr.TotalAmount += r.AmountThousands * 1000
		cc := sr.ByClass[r.CombinedRaceEthnicity]
		cc.Count++
		cc.Amount += r.AmountThousands * 1000
		sr.ByClass[r.CombinedRaceEthnicity] = cc
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].Year != order[j].Year {
			return order[i].Year < order[j].Year
		}
		return order[i].County < order[j].County
	})
	for _, k := range order {
		rep.Summary = append(rep.Summary, *acc[k])
	}
}

func (e *Engine) buildByDemographic(rows []row, rep *report.Report) {
	type key struct {
		Year  int
		Class string
	}
	acc := make(map[key]*report.DemographicRow)
	var order []key
	totalByYear := make(map[int]int64)

	for _, r := range rows {
		totalByYear[r.Year]++
		k := key{Year: r.Year, Class: r.CombinedRaceEthnicity}
		dr, ok := acc[k]
		if !ok {
			dr = &report.DemographicRow{Year: r.Year, CombinedRaceEthnicity: r.CombinedRaceEthnicity}
			acc[k] = dr
			order = append(order, k)
		}
		dr.Count++
		dr.Amount += r.AmountThousands * 1000
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].Year != order[j].Year {
			return order[i].Year < order[j].Year
		}
		return order[i].Class < order[j].Class
	})
	for _, k := range order {
		dr := acc[k]
		if total := totalByYear[dr.Year]; total > 0 {
			dr.ShareOfTotalPct = percent(dr.Count, total)
		}
		rep.ByDemographic = append(rep.ByDemographic, *dr)
	}
}

func (e *Engine) buildByIncomeNeighborhood(rows []row, rep *report.Report) {
	type key struct {
		Year   int
		Kind   string
		Bucket string
	}
	acc := make(map[key]*report.IncomeNeighborhoodRow)
	var order []key
	denomByYearKind := make(map[string]int64)

	add := func(year int, kind, bucket string, amount int64) {
		k := key{Year: year, Kind: kind, Bucket: bucket}
		ir, ok := acc[k]
		if !ok {
			ir = &report.IncomeNeighborhoodRow{Year: year, Kind: kind, Bucket: bucket}
			acc[k] = ir
			order = append(order, k)
		}
		ir.Count++
		ir.Amount += amount
		denomByYearKind[denomKey(year, kind)]++
	}

	for _, r := range rows {
		amount := r.AmountThousands * 1000
		if r.HasBorrowerIncome {
			add(r.Year, "borrowerIncome", string(r.BorrowerIncomeBucket), amount)
		}
		if r.HasTractIncome {
			add(r.Year, "tractIncome", string(r.TractIncomeBucket), amount)
		}
		if r.HasMinorityPercent {
			label := "mmct"
			if !r.IsMMCT {
				label = "non-mmct"
			}
			add(r.Year, "minorityQuartile", label, amount)
		}
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].Year != order[j].Year {
			return order[i].Year < order[j].Year
		}
		if order[i].Kind != order[j].Kind {
			return order[i].Kind < order[j].Kind
		}
		return order[i].Bucket < order[j].Bucket
	})
	for _, k := range order {
		ir := acc[k]
		if denom := denomByYearKind[denomKey(ir.Year, ir.Kind)]; denom > 0 {
			ir.SharePct = percent(ir.Count, denom)
		}
		rep.ByIncomeNeighborhood = append(rep.ByIncomeNeighborhood, *ir)
	}
}

func denomKey(year int, kind string) string {
	return kind + ":" + strconv.Itoa(year)
}

// buildByLender aggregates per-lender totals keyed off the most recent
// year present in rows (spec.md §3: "ordered by most-recent-year total-
// count descending"), truncates to TopNLenders, and returns the full
// unordered totals map for buildByLenderByYear to reuse.
func (e *Engine) buildByLender(rows []row, rep *report.Report) map[string]*report.LenderRow {
	latestYear := 0
	for _, r := range rows {
		if r.Year > latestYear {
			latestYear = r.Year
		}
	}

	acc := make(map[string]*report.LenderRow)
	for _, r := range rows {
		lr, ok := acc[r.LenderID]
		if !ok {
			lr = &report.LenderRow{LenderID: r.LenderID, LenderName: r.LenderName, ByClass: map[string]report.ClassCounts{}}
			acc[r.LenderID] = lr
		}
		if r.Year == latestYear {
			lr.TotalCount++
			lr.TotalAmount += r.AmountThousands * 1000
			cc := lr.ByClass[r.CombinedRaceEthnicity]
			cc.Count++
			cc.Amount += r.AmountThousands * 1000
			lr.ByClass[r.CombinedRaceEthnicity] = cc
		}
	}

	ordered := make([]*report.LenderRow, 0, len(acc))
	for _, lr := range acc {
		ordered = append(ordered, lr)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].TotalCount != ordered[j].TotalCount {
			return ordered[i].TotalCount > ordered[j].TotalCount
		}
		return ordered[i].LenderID < ordered[j].LenderID
	})

	n := len(ordered)
	if n > TopNLenders {
		rep.ByLenderOverflow = true
		n = TopNLenders
	}
	for i := 0; i < n; i++ {
		rep.ByLender = append(rep.ByLender, *ordered[i])
	}
	return acc
}

func (e *Engine) buildByLenderByYear(rows []row, lenderTotals map[string]*report.LenderRow, rep *report.Report) {
	keep := make(map[string]struct{}, len(rep.ByLender))
	for _, lr := range rep.ByLender {
		keep[lr.LenderID] = struct{}{}
	}

	type key struct {
		LenderID string
		Year     int
	}
	acc := make(map[key]*report.LenderYearRow)
	var order []key

	for _, r := range rows {
		if _, ok := keep[r.LenderID]; !ok {
			continue
		}
		k := key{LenderID: r.LenderID, Year: r.Year}
		lyr, ok := acc[k]
		if !ok {
			lyr = &report.LenderYearRow{LenderID: r.LenderID, Year: r.Year}
			acc[k] = lyr
			order = append(order, k)
		}
		lyr.Count++
		lyr.Amount += r.AmountThousands * 1000
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].LenderID != order[j].LenderID {
			return order[i].LenderID < order[j].LenderID
		}
		return order[i].Year < order[j].Year
	})
	for _, k := range order {
		rep.ByLenderByYear = append(rep.ByLenderByYear, *acc[k])
	}
}

// buildConcentration computes Herfindahl-Hirschman on loan amounts, per
// year (spec.md §3/§8 testable property 3).
func (e *Engine) buildConcentration(rows []row, rep *report.Report) {
	type yearAgg struct {
		totalAmount int64
		byLender    map[string]int64
	}
	acc := make(map[int]*yearAgg)
	var years []int

	for _, r := range rows {
		ya, ok := acc[r.Year]
		if !ok {
			ya = &yearAgg{byLender: map[string]int64{}}
			acc[r.Year] = ya
			years = append(years, r.Year)
		}
		amount := r.AmountThousands * 1000
		ya.totalAmount += amount
		ya.byLender[r.LenderID] += amount
	}
	sort.Ints(years)

	for _, y := range years {
		ya := acc[y]
		cr := report.ConcentrationRow{Year: y}
		if ya.totalAmount > 0 {
			sumSquares := 0.0
			for _, amt := range ya.byLender {
				share := float64(amt) / float64(ya.totalAmount) * 100
				sumSquares += share * share
			}
			cr.HHI = &sumSquares
			cr.Category = report.ConcentrationCategory(sumSquares)
		}
		rep.Concentration = append(rep.Concentration, cr)
	}
}

// buildTrends requires Summary to already be populated; it re-derives
// per-year totals from it so trend computation stays a pure post-pass
// (spec.md §4.5: "year-over-year subtraction and percent-change").
func (e *Engine) buildTrends(rep *report.Report) {
	totals := make(map[int]int64)
	var years []int
	for _, sr := range rep.Summary {
		if _, ok := totals[sr.Year]; !ok {
			years = append(years, sr.Year)
		}
		totals[sr.Year] += sr.TotalCount
	}
	sort.Ints(years)

	var prevTotal int64
	havePrev := false
	for _, y := range years {
		tr := report.TrendRow{Year: y, Total: totals[y]}
		if havePrev {
			delta := totals[y] - prevTotal
			tr.DeltaCount = &delta
			if prevTotal != 0 {
				pct := float64(delta) / float64(prevTotal) * 100
				tr.PercentChange = &pct
				switch {
				case pct > 0.05:
					tr.Arrow = "up"
				case pct < -0.05:
					tr.Arrow = "down"
				default:
					tr.Arrow = "flat"
				}
			}
		}
		rep.Trends = append(rep.Trends, tr)
		prevTotal = totals[y]
		havePrev = true
	}
}

// BuildPeerComparison implements spec.md §4.5's peer-comparison table: the
// subject lender's row plus the mean of lenders whose latest-year total
// falls within peerVolumeBand × subjectTotal. It runs against
// lenderTotals — every lender Run saw, before the TopNLenders truncation
// applied to rep.ByLender — so a subject or peer ranked below the top N
// by volume still participates (a subject/peer visible only in
// rep.ByLender would silently vanish from its own comparison whenever
// ByLenderOverflow is set).
func BuildPeerComparison(lenderTotals map[string]*report.LenderRow, subjectLenderID string, lowMult, highMult float64) *report.PeerComparison {
	subject, ok := lenderTotals[subjectLenderID]
	if !ok {
		return nil
	}

	low := float64(subject.TotalCount) * lowMult
	high := float64(subject.TotalCount) * highMult

	var peers []report.LenderRow
	for id, lr := range lenderTotals {
		if id == subjectLenderID {
			continue
		}
		v := float64(lr.TotalCount)
		if v >= low && v <= high {
			peers = append(peers, *lr)
		}
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].LenderID < peers[j].LenderID })

	pc := &report.PeerComparison{Subject: *subject, PeerCount: len(peers)}
	if len(peers) == 0 {
		return pc
	}
	var sumCount, sumAmount int64
	for _, p := range peers {
		sumCount += p.TotalCount
		sumAmount += p.TotalAmount
	}
	pc.PeerMean = report.LenderRow{
		TotalCount:  sumCount / int64(len(peers)),
		TotalAmount: sumAmount / int64(len(peers)),
	}
	return pc
}

func percent(numerator, denominator int64) float64 {
	if denominator == 0 {
		return 0
	}
	return float64(numerator) / float64(denominator) * 100
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
