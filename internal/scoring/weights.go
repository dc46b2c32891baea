package scoring

import (
	_ "embed"
	"fmt"
	"math"
	"os"

	"github.com/goccy/go-yaml"
)

//go:embed default_weights.yaml
var defaultWeightsYAML []byte

// Factor is one weighted input to a vertical's composite score.
type Factor struct {
	Name          string  `yaml:"name"`
	Weight        float64 `yaml:"weight"`
	LowerIsBetter bool    `yaml:"lower_is_better"`
}

// Vertical holds the factor set for one care type.
type Vertical struct {
	Factors []Factor `yaml:"factors"`
}

// CRIDWeights holds per-measure weights for the facility composites.
type CRIDWeights struct {
	MDS    map[string]float64 `yaml:"mds"`
	Claims map[string]float64 `yaml:"claims"`
}

// Weights is the full scoring configuration.
type Weights struct {
	Verticals map[string]Vertical `yaml:"verticals"`
	CRID      CRIDWeights         `yaml:"crid"`
}

// knownFactors are the market_metrics columns the scorer can read.
var knownFactors = map[string]bool{
	"facility_count":     true,
	"total_beds":         true,
	"beds_per_1k_senior": true,
	"agencies_per_10k":   true,
	"avg_star_rating":    true,
	"pct_low_star":       true,
	"avg_occupancy":      true,
	"population_65plus":  true,
	"pop_65_growth_pct":  true,
	"median_income":      true,
	"ma_penetration_pct": true,
	"rn_hourly_wage":     true,
}

// DefaultWeights parses the embedded configuration.
func DefaultWeights() (Weights, error) {
	return parseWeights(defaultWeightsYAML)
}

// LoadWeights reads a weights file from disk, falling back to the embedded
// defaults when path is empty.
func LoadWeights(path string) (Weights, error) {
	if path == "" {
		return DefaultWeights()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Weights{}, fmt.Errorf("read weights file: %w", err)
	}
	return parseWeights(data)
}

func parseWeights(data []byte) (Weights, error) {
	var w Weights
	if err := yaml.Unmarshal(data, &w); err != nil {
		return Weights{}, fmt.Errorf("parse weights yaml: %w", err)
	}
	if err := w.Validate(); err != nil {
		return Weights{}, err
	}
	return w, nil
}

// Validate checks factor names, positive weights, and CRID weight sums.
func (w Weights) Validate() error {
	if len(w.Verticals) == 0 {
		return fmt.Errorf("weights: no verticals defined")
	}
	for vertical, v := range w.Verticals {
		if len(v.Factors) == 0 {
			return fmt.Errorf("weights: vertical %q has no factors", vertical)
		}
		total := 0.0
		for _, f := range v.Factors {
			if !knownFactors[f.Name] {
				return fmt.Errorf("weights: vertical %q references unknown factor %q", vertical, f.Name)
			}
			if f.Weight <= 0 {
				return fmt.Errorf("weights: vertical %q factor %q has non-positive weight", vertical, f.Name)
			}
			total += f.Weight
		}
		if math.Abs(total-1.0) > 0.001 {
			return fmt.Errorf("weights: vertical %q factor weights sum to %.3f, want 1.0", vertical, total)
		}
	}

	for group, m := range map[string]map[string]float64{"mds": w.CRID.MDS, "claims": w.CRID.Claims} {
		if len(m) == 0 {
			return fmt.Errorf("weights: crid %s weights missing", group)
		}
		total := 0.0
		for code, wt := range m {
			if wt <= 0 {
				return fmt.Errorf("weights: crid %s measure %q has non-positive weight", group, code)
			}
			total += wt
		}
		if math.Abs(total-1.0) > 0.001 {
			return fmt.Errorf("weights: crid %s weights sum to %.3f, want 1.0", group, total)
		}
	}
	return nil
}
