// Package risk implements multi-factor risk scoring for civic-infrastructure
// issue reports.
package risk

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Weights are the component weights of the final score. They must sum to 1.0.
type Weights struct {
	Category float64 `yaml:"category"`
	Severity float64 `yaml:"severity"`
	Recency  float64 `yaml:"recency"`
	Density  float64 `yaml:"density"`
}

// Thresholds are the score cutoffs mapping a score to a risk level. A score
// below Low is low, below Medium is medium, below High is high, else
// critical. This is the single named threshold table; no other level
// boundaries exist in the engine.
type Thresholds struct {
	Low    float64 `yaml:"low"`
	Medium float64 `yaml:"medium"`
	High   float64 `yaml:"high"`
}

// DecayConfig holds recency decay parameters.
type DecayConfig struct {
	HalfLifeHours float64 `yaml:"half_life_hours"`
	Floor         float64 `yaml:"floor"`
}

// Config is the full scorer configuration.
type Config struct {
	Weights          Weights            `yaml:"weights"`
	Thresholds       Thresholds         `yaml:"thresholds"`
	Decay            DecayConfig        `yaml:"decay"`
	CategoryWeights  map[string]float64 `yaml:"category_weights"`
	DefaultCategory  float64            `yaml:"default_category_weight"`
	FallbackSeverity float64            `yaml:"fallback_severity"`
	DensityRadiusM   float64            `yaml:"density_radius_m"`
	ImpactRadiusM    map[string]float64 `yaml:"impact_radius_m"`
	DefaultImpactM   float64            `yaml:"default_impact_m"`
	RepairCostUSD    map[string]float64 `yaml:"repair_cost_usd"`
	DefaultRepairUSD float64            `yaml:"default_repair_usd"`
}

// DefaultConfig returns the starting configuration table. Category weights
// follow the severity ordering of the original deployment's defect taxonomy.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Category: 0.35,
			Severity: 0.30,
			Recency:  0.15,
			Density:  0.20,
		},
		Thresholds: Thresholds{Low: 0.30, Medium: 0.55, High: 0.80},
		Decay:      DecayConfig{HalfLifeHours: 336, Floor: 0.25},
		CategoryWeights: map[string]float64{
			"pothole":                  0.80,
			"sinkhole":                 0.95,
			"flooding":                 0.90,
			"street light knockdown":   0.90,
			"street light outage":      0.60,
			"fallen tree or branches":  0.70,
			"damaged pavement":         0.65,
			"tree or stump removal":    0.50,
			"lane divider":             0.40,
			"pruning request":          0.30,
			"wild animal issue":        0.30,
			"domestic animal issue":    0.20,
			"planting request":         0.20,
			"lost pet":                 0.10,
		},
		DefaultCategory:  0.50,
		FallbackSeverity: 0.35,
		DensityRadiusM:   150,
		ImpactRadiusM: map[string]float64{
			"pothole":      50,
			"sinkhole":     150,
			"street light": 200,
			"flooding":     500,
			"fallen tree":  100,
		},
		DefaultImpactM: 75,
		RepairCostUSD: map[string]float64{
			"pothole":      150,
			"street light": 300,
			"flooding":     1000,
			"fallen tree":  500,
			"pruning":      200,
		},
		DefaultRepairUSD: 250,
	}
}

// Validate checks that a Config is internally consistent.
func Validate(c Config) error {
	var errs []string

	weights := map[string]float64{
		"category": c.Weights.Category,
		"severity": c.Weights.Severity,
		"recency":  c.Weights.Recency,
		"density":  c.Weights.Density,
	}
	for name, w := range weights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("%s weight must be >= 0", name))
		}
	}

	sum := c.Weights.Category + c.Weights.Severity + c.Weights.Recency + c.Weights.Density
	if math.Abs(sum-1.0) > 0.001 {
		errs = append(errs, fmt.Sprintf("weights must sum to 1.0, got %.3f", sum))
	}

	if !(c.Thresholds.Low < c.Thresholds.Medium && c.Thresholds.Medium < c.Thresholds.High) {
		errs = append(errs, "thresholds must be strictly increasing (low < medium < high)")
	}
	if c.Thresholds.Low <= 0 || c.Thresholds.High >= 1 {
		errs = append(errs, "thresholds must lie inside (0, 1)")
	}

	if c.Decay.HalfLifeHours <= 0 {
		errs = append(errs, "decay half_life_hours must be > 0")
	}
	if c.Decay.Floor < 0 || c.Decay.Floor >= 1 {
		errs = append(errs, "decay floor must be in [0, 1)")
	}

	for cat, w := range c.CategoryWeights {
		if w < 0 || w > 1 {
			errs = append(errs, fmt.Sprintf("category weight %q must be in [0, 1]", cat))
		}
	}
	if c.FallbackSeverity < 0 || c.FallbackSeverity > 1 {
		errs = append(errs, "fallback_severity must be in [0, 1]")
	}
	if c.DensityRadiusM <= 0 {
		errs = append(errs, "density_radius_m must be > 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("risk: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// LoadWeightsFile merges category-weight overrides from a YAML file into the
// config. The file holds a top-level "category_weights" map.
func LoadWeightsFile(c Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return c, eris.Wrapf(err, "risk: read weights file %s", path)
	}

	var wrapper struct {
		CategoryWeights map[string]float64 `yaml:"category_weights"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return c, eris.Wrap(err, "risk: parse weights file")
	}

	merged := make(map[string]float64, len(c.CategoryWeights)+len(wrapper.CategoryWeights))
	for k, v := range c.CategoryWeights {
		merged[k] = v
	}
	for k, v := range wrapper.CategoryWeights {
		merged[strings.ToLower(strings.TrimSpace(k))] = v
	}
	c.CategoryWeights = merged

	return c, Validate(c)
}
