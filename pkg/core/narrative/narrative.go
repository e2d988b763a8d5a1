// Package narrative implements the Narrative Assembler (spec.md §4.7):
// builds a structured prompt per requested section from the finalized
// report tables, calls the AI Client, and attaches prose. Narratives never
// alter data and are attached only after every table is final.
package narrative

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ncrc/justdata/pkg/core/aiclient"
	"github.com/ncrc/justdata/pkg/core/markdown"
	"github.com/ncrc/justdata/pkg/core/report"
)

// Section names a narrative the recipe may request (spec.md §3
// "narratives").
type Section string

const (
	SectionExecutiveSummary Section = "executive-summary"
	SectionKeyFindings      Section = "key-findings"
	SectionTrends           Section = "trends"
	SectionBankStrategies   Section = "bank-strategies"
	SectionCommunityImpact  Section = "community-impact"
)

const styleGuide = "Write in third person, factual tone. Do not speculate about strategy or cause. " +
	"Limit to two paragraphs referencing only the figures supplied."

// Assembler generates narrative prose for each requested section.
type Assembler struct {
	Client *aiclient.Client
}

func New(client *aiclient.Client) *Assembler {
	return &Assembler{Client: client}
}

// Assemble fills rep.Narratives for each requested section. A section's
// failure is recorded as a warning and left out of Narratives — it never
// fails the job (spec.md §4.7, §7 "AIFailure ... demoted to a warning
// per-section").
func (a *Assembler) Assemble(ctx context.Context, sections []Section, rep *report.Report) {
	for _, s := range sections {
		digest, err := digestFor(s, rep)
		if err != nil {
			rep.Metadata.Warnings = append(rep.Metadata.Warnings, "narrative-digest-error:"+string(s))
			continue
		}

		systemPrompt := fmt.Sprintf("You are writing the %q section of a lending-analysis report. %s", s, styleGuide)
		userPrompt := string(digest)

		text, err := a.Client.Generate(ctx, string(s), systemPrompt, userPrompt)
		if err != nil {
			rep.Metadata.Warnings = append(rep.Metadata.Warnings, "narrative-failure:"+string(s))
			continue
		}

		cleaned := markdown.Clean(text)
		if !markdown.Valid(cleaned) {
			rep.Metadata.Warnings = append(rep.Metadata.Warnings, "narrative-malformed:"+string(s))
			continue
		}
		rep.Narratives[string(s)] = cleaned
	}
}

// digestFor builds the compact JSON digest of the tables relevant to a
// section (spec.md §4.7: "a compact JSON digest of the relevant tables").
func digestFor(s Section, rep *report.Report) ([]byte, error) {
	switch s {
	case SectionExecutiveSummary:
		return json.Marshal(struct {
			Summary       []report.SummaryRow       `json:"summary"`
			Concentration []report.ConcentrationRow `json:"concentration"`
		}{rep.Summary, rep.Concentration})
	case SectionKeyFindings:
		return json.Marshal(struct {
			ByDemographic        []report.DemographicRow        `json:"byDemographic"`
			ByIncomeNeighborhood []report.IncomeNeighborhoodRow `json:"byIncomeNeighborhood"`
		}{rep.ByDemographic, rep.ByIncomeNeighborhood})
	case SectionTrends:
		return json.Marshal(struct {
			Trends []report.TrendRow `json:"trends"`
		}{rep.Trends})
	case SectionBankStrategies:
		return json.Marshal(struct {
			ByLender       []report.LenderRow     `json:"byLender"`
			ByLenderByYear []report.LenderYearRow `json:"byLenderByYear"`
			PeerComparison *report.PeerComparison `json:"peerComparison,omitempty"`
		}{rep.ByLender, rep.ByLenderByYear, rep.PeerComparison})
	case SectionCommunityImpact:
		return json.Marshal(struct {
			DemographicContext     []report.DemographicVintage    `json:"demographicContext"`
			MinorityQuartileBounds map[string]map[string]float64  `json:"minorityQuartileBounds,omitempty"`
		}{rep.DemographicContext, rep.MinorityQuartileBounds})
	default:
		return nil, fmt.Errorf("narrative: unknown section %q", s)
	}
}
