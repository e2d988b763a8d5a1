// Package recipe defines the per-application Analysis Recipe (spec.md §3
// glossary "Recipe", §4.11 supplement): a thin composition of which tables
// a report contains, which narrative sections it requests, the vintages it
// needs from the census service, and the share denominator its tables use.
// Recipes are configuration, not components (spec.md §2: "~10%"). The
// built-in catalog is embedded as YAML and may be overridden per
// deployment by a human-edited file (config/recipes.yaml), grounded on
// the teacher's cmd/api/main.go pattern of loading a YAML config.Config
// with gopkg.in/yaml.v2 at startup.
package recipe

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v2"

	"github.com/ncrc/justdata/pkg/core/aggregation"
	"github.com/ncrc/justdata/pkg/core/census"
	"github.com/ncrc/justdata/pkg/core/filterset"
	"github.com/ncrc/justdata/pkg/core/narrative"
)

// Name identifies one of the platform's six applications.
type Name string

const (
	MortgageAnalysis      Name = "mortgage-analysis"
	BranchAnalysis        Name = "branch-analysis"
	SmallBusinessAnalysis Name = "small-business-analysis"
	BankMergerAnalysis    Name = "bank-merger-analysis"
	InteractiveExplorer   Name = "interactive-explorer"
	BranchMapVisualizer   Name = "branch-map-visualizer"
)

// Recipe is the per-application configuration the pipeline reads to decide
// what to compute and which AI sections to request.
type Recipe struct {
	Name                   Name                         `yaml:"name"`
	DataDomain             filterset.DataDomain         `yaml:"dataDomain"`
	Denominator            aggregation.ShareDenominator `yaml:"denominator"`
	Vintages               []census.Vintage             `yaml:"vintages"`
	NarrativeSections      []narrative.Section          `yaml:"narrativeSections"`
	IncludesPeerComparison bool                         `yaml:"includesPeerComparison"`
}

//go:embed default_recipes.yaml
var defaultRecipesYAML []byte

var (
	mu       sync.RWMutex
	registry map[Name]Recipe
)

func init() {
	r, err := parse(defaultRecipesYAML)
	if err != nil {
		panic("recipe: embedded default catalog is malformed: " + err.Error())
	}
	registry = r
}

// LoadOverrides reads a YAML recipe catalog from path and merges it over
// the embedded defaults, recipe by name. A missing file is not an error —
// deployments that ship no override simply keep the defaults.
func LoadOverrides(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("recipe: reading overrides %s: %w", path, err)
	}
	overrides, err := parse(data)
	if err != nil {
		return fmt.Errorf("recipe: parsing overrides %s: %w", path, err)
	}
	mu.Lock()
	defer mu.Unlock()
	for name, r := range overrides {
		registry[name] = r
	}
	return nil
}

func parse(data []byte) (map[Name]Recipe, error) {
	var list []Recipe
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	out := make(map[Name]Recipe, len(list))
	for _, r := range list {
		if r.Name == "" {
			return nil, fmt.Errorf("recipe entry missing name")
		}
		out[r.Name] = r
	}
	return out, nil
}

// Get returns the named recipe, or an error if it is unregistered.
func Get(name Name) (Recipe, error) {
	mu.RLock()
	defer mu.RUnlock()
	r, ok := registry[name]
	if !ok {
		return Recipe{}, fmt.Errorf("recipe: unknown recipe %q", name)
	}
	return r, nil
}
