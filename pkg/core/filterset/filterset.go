// Package filterset defines the universal, per-request FilterSet (spec.md
// §3) and its validation/canonicalization rules.
package filterset

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/ncrc/justdata/pkg/core/engerr"
	"github.com/ncrc/justdata/pkg/core/geo"
)

// DataDomain names which warehouse schema a request targets.
type DataDomain string

const (
	DomainMortgage      DataDomain = "mortgage"
	DomainSmallBusiness DataDomain = "smallBusiness"
	DomainBranch        DataDomain = "branch"
)

var supportedVintages = map[DataDomain][2]int{
	DomainMortgage:      {2018, 2023},
	DomainSmallBusiness: {2018, 2023},
	DomainBranch:        {2017, 2023},
}

// PeerVolumeBand is the multiplicative window around a subject lender's
// volume defining its peer set (default 0.5..2.0).
type PeerVolumeBand struct {
	LowMultiplier  float64 `json:"lowMultiplier"`
	HighMultiplier float64 `json:"highMultiplier"`
}

// DefaultPeerVolumeBand is applied when a recipe requests peer comparison
// without specifying an explicit band.
var DefaultPeerVolumeBand = PeerVolumeBand{LowMultiplier: 0.5, HighMultiplier: 2.0}

// FilterSet is the universal per-request filter (spec.md §3).
type FilterSet struct {
	DataDomain  DataDomain `json:"dataDomain"`
	Geography   []string   `json:"geography"` // resolved county codes (post request-ingest expansion)
	Years       []int      `json:"years"`

	// mortgage-only
	LoanPurposes           []string `json:"loanPurposes,omitempty"`
	ActionsTaken           []string `json:"actionsTaken,omitempty"`
	Occupancy              []string `json:"occupancy,omitempty"`
	Units                  []string `json:"units,omitempty"`
	ConstructionMethod     []string `json:"constructionMethod,omitempty"`
	ExcludeReverseMortgage bool     `json:"excludeReverseMortgage"`

	SubjectLenderID string          `json:"subjectLenderId,omitempty"`
	PeerVolumeBand  *PeerVolumeBand `json:"peerVolumeBand,omitempty"`
}

// Default returns a FilterSet with the spec-mandated defaults applied:
// excludeReverseMortgage defaults true (spec.md Open Questions: mandated
// default, left for a later regulatory-intent review).
func Default() FilterSet {
	return FilterSet{ExcludeReverseMortgage: true}
}

// Validate checks the FilterSet's structural invariants (spec.md §3: years
// must lie within the domain's supported vintage range; geography and years
// must be non-empty). It never mutates its receiver — call Canonicalize
// afterward to sort sets for hashing/echoing.
func (f FilterSet) Validate() error {
	if f.DataDomain == "" {
		return &engerr.ValidationError{Field: "dataDomain", Msg: "required"}
	}
	if len(f.Geography) == 0 {
		return &engerr.ValidationError{Field: "geography", Msg: "must be non-empty"}
	}
	for _, c := range f.Geography {
		if _, err := geo.Canonicalize(c); err != nil {
			return &engerr.ValidationError{Field: "geography", Msg: err.Error()}
		}
	}
	if len(f.Years) == 0 {
		return &engerr.ValidationError{Field: "years", Msg: "must be non-empty"}
	}
	rng, ok := supportedVintages[f.DataDomain]
	if !ok {
		return &engerr.ValidationError{Field: "dataDomain", Msg: "unknown data domain"}
	}
	for _, y := range f.Years {
		if y < rng[0] || y > rng[1] {
			return &engerr.ValidationError{Field: "years", Msg: "year outside supported vintage range"}
		}
	}
	if f.PeerVolumeBand != nil {
		if f.PeerVolumeBand.LowMultiplier <= 0 || f.PeerVolumeBand.HighMultiplier <= f.PeerVolumeBand.LowMultiplier {
			return &engerr.ValidationError{Field: "peerVolumeBand", Msg: "low must be positive and less than high"}
		}
	}
	return nil
}

// Canonicalize returns a copy with the geography set sorted, years sorted,
// and enum sets sorted — the form persisted in Report.metadata and used for
// request-hash computation (spec.md round-trip law: "metadata.filterSet
// echoed in the report equals the submitted FilterSet after canonicalization").
func (f FilterSet) Canonicalize() FilterSet {
	out := f
	out.Geography = sortedCopy(f.Geography)
	out.Years = sortedInts(f.Years)
	out.LoanPurposes = sortedCopy(f.LoanPurposes)
	out.ActionsTaken = sortedCopy(f.ActionsTaken)
	out.Occupancy = sortedCopy(f.Occupancy)
	out.Units = sortedCopy(f.Units)
	out.ConstructionMethod = sortedCopy(f.ConstructionMethod)
	return out
}

// Hash computes a stable SHA-256 digest of the canonicalized FilterSet,
// recorded in Report.metadata.warehouseQueryHash so re-submission detection
// (spec.md §8, testable property 10) is O(1).
func (f FilterSet) Hash() (string, error) {
	canon := f.Canonicalize()
	b, err := json.Marshal(canon)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func sortedCopy(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}

func sortedInts(in []int) []int {
	if in == nil {
		return nil
	}
	out := make([]int, len(in))
	copy(out, in)
	sort.Ints(out)
	return out
}
