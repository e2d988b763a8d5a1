package recipe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ncrc/justdata/pkg/core/filterset"
)

func TestGetBuiltInRecipes(t *testing.T) {
	names := []Name{
		MortgageAnalysis, BranchAnalysis, SmallBusinessAnalysis,
		BankMergerAnalysis, InteractiveExplorer, BranchMapVisualizer,
	}
	for _, n := range names {
		r, err := Get(n)
		if err != nil {
			t.Errorf("Get(%q) error: %v", n, err)
			continue
		}
		if r.Name != n {
			t.Errorf("Get(%q) returned recipe named %q", n, r.Name)
		}
		if r.DataDomain == "" {
			t.Errorf("recipe %q missing dataDomain", n)
		}
	}
}

func TestGetUnknownRecipeErrors(t *testing.T) {
	if _, err := Get("bogus"); err == nil {
		t.Error("expected an error for an unregistered recipe name")
	}
}

func TestMortgageAnalysisHasPeerComparison(t *testing.T) {
	r, err := Get(MortgageAnalysis)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if r.DataDomain != filterset.DomainMortgage {
		t.Errorf("dataDomain = %q, want mortgage", r.DataDomain)
	}
	if !r.IncludesPeerComparison {
		t.Error("expected mortgage-analysis to include peer comparison")
	}
}

func TestLoadOverridesMissingFileIsNoOp(t *testing.T) {
	if err := LoadOverrides(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Errorf("expected no error for a missing override file, got %v", err)
	}
	if _, err := Get(MortgageAnalysis); err != nil {
		t.Errorf("registry corrupted after missing-file LoadOverrides: %v", err)
	}
}

func TestLoadOverridesMergesByName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overrides.yaml")
	const overrideYAML = `
- name: branch-analysis
  dataDomain: branch
  denominator: total-count-for-year
  vintages: [2020-decennial]
  narrativeSections: [executive-summary]
  includesPeerComparison: true
`
	if err := os.WriteFile(path, []byte(overrideYAML), 0o644); err != nil {
		t.Fatalf("writing override file: %v", err)
	}

	if err := LoadOverrides(path); err != nil {
		t.Fatalf("LoadOverrides() error: %v", err)
	}
	r, err := Get(BranchAnalysis)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !r.IncludesPeerComparison {
		t.Error("expected the override's includesPeerComparison=true to take effect")
	}

	other, err := Get(MortgageAnalysis)
	if err != nil {
		t.Fatalf("Get(mortgage-analysis) error: %v", err)
	}
	if other.DataDomain != filterset.DomainMortgage {
		t.Error("override of one recipe must not disturb others")
	}
}

func TestLoadOverridesRejectsUnnamedEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("- dataDomain: mortgage\n"), 0o644); err != nil {
		t.Fatalf("writing override file: %v", err)
	}
	if err := LoadOverrides(path); err == nil {
		t.Error("expected an error for an override entry missing a name")
	}
}
