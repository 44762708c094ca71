// World generation using layered simplex noise. An elevation layer and
// a moisture layer shape terrain; terrain and moisture together decide
// the pristine resource deposits.
package world

import (
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/tak458/trading-sim-sub000/internal/economy"
)

// GenConfig holds world generation parameters.
type GenConfig struct {
	Width     int     // Grid width in tiles
	Height    int     // Grid height in tiles
	Seed      int64   // Random seed (0 = random)
	SeaLevel  float64 // Elevation threshold for water (0.0-1.0)
	HillLevel float64 // Elevation threshold for hills (0.0-1.0)
}

// DefaultGenConfig returns a reasonable starting configuration.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Width:     48,
		Height:    48,
		Seed:      0,
		SeaLevel:  0.28,
		HillLevel: 0.68,
	}
}

// SmallTestConfig returns a tiny world for rapid iteration.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Width:     16,
		Height:    16,
		Seed:      42,
		SeaLevel:  0.25,
		HillLevel: 0.7,
	}
}

// Generate creates a complete world map with terrain and deposits.
// The same config always yields the same map.
func Generate(cfg GenConfig) *TileMap {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}

	// Independent noise layers for elevation and moisture.
	elevNoise := opensimplex.NewNormalized(seed)
	moistNoise := opensimplex.NewNormalized(seed + 1)

	m := NewTileMap(cfg.Width, cfg.Height)
	m.Seed = seed

	cx := float64(cfg.Width-1) / 2
	cy := float64(cfg.Height-1) / 2
	halfSpan := math.Max(cx, cy)

	for y := 0; y < cfg.Height; y++ {
		for x := 0; x < cfg.Width; x++ {
			fx, fy := float64(x), float64(y)

			// Multi-octave noise for natural-looking terrain.
			elev := octaveNoise(elevNoise, fx, fy, 4, 0.08, 0.5)
			moist := octaveNoise(moistNoise, fx, fy, 3, 0.06, 0.5)

			// Continental shaping: sink the map edges into water.
			distFromCenter := math.Hypot(fx-cx, fy-cy) / halfSpan
			edgeFalloff := 1.0 - math.Pow(distFromCenter, 3.5)
			if edgeFalloff < 0 {
				edgeFalloff = 0
			}
			elev *= edgeFalloff

			terrain := deriveTerrain(elev, moist, cfg)
			amounts := makeDeposits(terrain, elev, moist)

			m.Set(&Tile{
				X:         x,
				Y:         y,
				Terrain:   terrain,
				Amount:    amounts, // Pristine at generation
				Max:       amounts,
				Fertility: 0.3 + moist*0.7,
			})
		}
	}

	return m
}

// deriveTerrain determines terrain type from environmental parameters.
func deriveTerrain(elev, moist float64, cfg GenConfig) Terrain {
	if elev < cfg.SeaLevel {
		return TerrainWater
	}
	if elev > cfg.HillLevel {
		return TerrainHills
	}
	if moist > 0.55 {
		return TerrainForest
	}
	return TerrainPlains
}

// makeDeposits sets the pristine resource quantities for a tile.
func makeDeposits(terrain Terrain, elev, moist float64) economy.Amounts {
	switch terrain {
	case TerrainPlains:
		return economy.Amounts{
			Food: 30 * (0.5 + moist), // Moisture boosts farmland
			Wood: 5,
		}
	case TerrainForest:
		return economy.Amounts{
			Food: 10,
			Wood: 40,
		}
	case TerrainHills:
		return economy.Amounts{
			Wood: 8,
			Ore:  25 + elev*20, // Richer veins higher up
		}
	case TerrainWater:
		return economy.Amounts{
			Food: 8, // Fishing
		}
	}
	return economy.Amounts{}
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

// TerrainCounts returns a summary of terrain type distribution.
func TerrainCounts(m *TileMap) map[Terrain]int {
	counts := make(map[Terrain]int)
	for _, t := range m.Tiles {
		if t != nil {
			counts[t.Terrain]++
		}
	}
	return counts
}
