// Package world provides the square tile grid the settlements live on:
// terrain, per-tile resource deposits, harvesting, and regrowth.
package world

import (
	"math"

	"github.com/tak458/trading-sim-sub000/internal/economy"
)

// Terrain types for map tiles.
type Terrain uint8

const (
	TerrainWater  Terrain = iota // Fishing only, not settleable
	TerrainPlains                // Fertile farmland
	TerrainForest                // Timber stands
	TerrainHills                 // Ore outcrops
)

// Tile is a single cell of the world grid. Amount holds what remains
// of each deposit; Max is the pristine quantity regrowth tends back
// toward. Fertility scales how quickly a tile recovers.
type Tile struct {
	X       int     `json:"x"`
	Y       int     `json:"y"`
	Terrain Terrain `json:"terrain"`

	Amount economy.Amounts `json:"amount"`
	Max    economy.Amounts `json:"max"`

	Fertility float64 `json:"fertility"`
}

// Settleable reports whether a settlement can be founded on the tile.
func (t *Tile) Settleable() bool {
	return t.Terrain != TerrainWater
}

// Distance returns the Euclidean distance between two grid positions.
func Distance(x1, y1, x2, y2 int) float64 {
	return math.Hypot(float64(x2-x1), float64(y2-y1))
}

// TerrainName returns a human-readable name for a terrain type.
func TerrainName(t Terrain) string {
	switch t {
	case TerrainWater:
		return "Water"
	case TerrainPlains:
		return "Plains"
	case TerrainForest:
		return "Forest"
	case TerrainHills:
		return "Hills"
	default:
		return "Unknown"
	}
}
