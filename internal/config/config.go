// Package config holds the balance parameters shared by every simulation
// engine: consumption and growth rates, building costs, classification
// thresholds, and storage capacity. Parameters load from defaults, then an
// optional YAML file, then SIM_* environment overrides; every path through
// here re-validates and clamps before the values reach an engine.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Params is the flat balance parameter set. All engines read from one
// shared, validated copy; updates are swapped in between ticks.
type Params struct {
	// FoodPerCapita is the food consumed per villager per time unit,
	// before the large-settlement efficiency discount.
	FoodPerCapita float64 `yaml:"food_per_capita" json:"food_per_capita"`

	// GrowthRate and DeclineRate are per-time-unit base chances for the
	// population transitions, before abundance/severity multipliers.
	GrowthRate  float64 `yaml:"growth_rate" json:"growth_rate"`
	DeclineRate float64 `yaml:"decline_rate" json:"decline_rate"`

	// BuildingsPerPopulation sizes the building target from population.
	BuildingsPerPopulation float64 `yaml:"buildings_per_population" json:"buildings_per_population"`

	// Per-building construction cost, deducted when a build is queued.
	BuildingWoodCost float64 `yaml:"building_wood_cost" json:"building_wood_cost"`
	BuildingOreCost  float64 `yaml:"building_ore_cost" json:"building_ore_cost"`

	// Classification thresholds on the production/consumption ratio.
	// Required ordering: critical <= shortage <= surplus.
	SurplusThreshold  float64 `yaml:"surplus_threshold" json:"surplus_threshold"`
	ShortageThreshold float64 `yaml:"shortage_threshold" json:"shortage_threshold"`
	CriticalThreshold float64 `yaml:"critical_threshold" json:"critical_threshold"`

	// Storage capacity: base plus a bonus per completed building.
	BaseStorageCapacity float64 `yaml:"base_storage_capacity" json:"base_storage_capacity"`
	StoragePerBuilding  float64 `yaml:"storage_per_building" json:"storage_per_building"`
}

// Default returns the stock balance set. Every value sits inside its
// recommended range.
func Default() Params {
	return Params{
		FoodPerCapita:          0.2,
		GrowthRate:             0.02,
		DeclineRate:            0.05,
		BuildingsPerPopulation: 0.1,
		BuildingWoodCost:       10,
		BuildingOreCost:        5,
		SurplusThreshold:       1.5,
		ShortageThreshold:      0.8,
		CriticalThreshold:      0.3,
		BaseStorageCapacity:    100,
		StoragePerBuilding:     50,
	}
}

// Load reads parameters from a YAML file layered over the defaults.
// An empty path returns the defaults unchanged. Out-of-range values in
// the file are clamped; the caller receives the sanitized set plus the
// validation result describing what was adjusted.
func Load(path string) (Params, Result, error) {
	p := Default()
	if path == "" {
		res := p.Validate()
		return p, res, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return p, Result{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return p, Result{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	sanitized, res := p.Sanitize()
	return sanitized, res, nil
}

// FromEnv overlays SIM_* environment variables onto p. Unset or
// unparseable variables leave the existing value alone. The result is
// not yet sanitized; callers run Sanitize after the overlay.
func FromEnv(p Params) Params {
	overlay := func(key string, dst *float64) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}

	overlay("SIM_FOOD_PER_CAPITA", &p.FoodPerCapita)
	overlay("SIM_GROWTH_RATE", &p.GrowthRate)
	overlay("SIM_DECLINE_RATE", &p.DeclineRate)
	overlay("SIM_BUILDINGS_PER_POPULATION", &p.BuildingsPerPopulation)
	overlay("SIM_BUILDING_WOOD_COST", &p.BuildingWoodCost)
	overlay("SIM_BUILDING_ORE_COST", &p.BuildingOreCost)
	overlay("SIM_SURPLUS_THRESHOLD", &p.SurplusThreshold)
	overlay("SIM_SHORTAGE_THRESHOLD", &p.ShortageThreshold)
	overlay("SIM_CRITICAL_THRESHOLD", &p.CriticalThreshold)
	overlay("SIM_BASE_STORAGE_CAPACITY", &p.BaseStorageCapacity)
	overlay("SIM_STORAGE_PER_BUILDING", &p.StoragePerBuilding)
	return p
}
