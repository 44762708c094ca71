package world

import (
	"fmt"

	"github.com/tak458/trading-sim-sub000/internal/economy"
)

// RegenRate is the fraction of the remaining deficit a tile recovers
// per time unit, before the fertility multiplier.
const RegenRate = 0.01

// TileMap holds the world grid, row-major.
type TileMap struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Seed   int64   `json:"seed"`
	Tiles  []*Tile `json:"-"`
}

// NewTileMap creates an empty grid of the given dimensions.
func NewTileMap(width, height int) *TileMap {
	return &TileMap{
		Width:  width,
		Height: height,
		Tiles:  make([]*Tile, width*height),
	}
}

// At returns the tile at (x, y), or nil if out of bounds.
func (m *TileMap) At(x, y int) *Tile {
	if !m.InBounds(x, y) {
		return nil
	}
	return m.Tiles[y*m.Width+x]
}

// Set places a tile at its own coordinates.
func (m *TileMap) Set(t *Tile) {
	if m.InBounds(t.X, t.Y) {
		m.Tiles[t.Y*m.Width+t.X] = t
	}
}

// InBounds reports whether (x, y) lies on the grid.
func (m *TileMap) InBounds(x, y int) bool {
	return x >= 0 && x < m.Width && y >= 0 && y < m.Height
}

// TilesWithin returns the tiles of the square neighborhood of radius r
// around (x, y), clipped at the map edge. The centre tile is included.
func (m *TileMap) TilesWithin(x, y, radius int) []*Tile {
	if radius < 0 {
		return nil
	}
	var out []*Tile
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if t := m.At(x+dx, y+dy); t != nil {
				out = append(out, t)
			}
		}
	}
	return out
}

// AmountsWithin sums the remaining deposits of the neighborhood.
func (m *TileMap) AmountsWithin(x, y, radius int) economy.Amounts {
	var sum economy.Amounts
	for _, t := range m.TilesWithin(x, y, radius) {
		sum = sum.Add(t.Amount)
	}
	return sum
}

// Harvest withdraws up to demand from the neighborhood, spread across
// tiles in proportion to what each holds. No deposit goes below zero.
// Returns what was actually taken.
func (m *TileMap) Harvest(x, y, radius int, demand economy.Amounts) economy.Amounts {
	tiles := m.TilesWithin(x, y, radius)
	var taken economy.Amounts

	for _, rt := range economy.ResourceTypes() {
		want := demand.Of(rt)
		if want <= 0 {
			continue
		}

		total := 0.0
		for _, t := range tiles {
			total += t.Amount.Of(rt)
		}
		if total <= 0 {
			continue
		}

		fraction := want / total
		if fraction > 1 {
			fraction = 1
		}
		got := 0.0
		for _, t := range tiles {
			take := t.Amount.Of(rt) * fraction
			t.Amount.Set(rt, t.Amount.Of(rt)-take)
			got += take
		}
		taken.Set(rt, got)
	}
	return taken
}

// Regenerate moves every deposit back toward its pristine maximum.
// Recovery is proportional to the deficit, scaled by tile fertility.
func (m *TileMap) Regenerate(dt float64) {
	if dt <= 0 {
		return
	}
	for _, t := range m.Tiles {
		if t == nil {
			continue
		}
		rate := RegenRate * t.Fertility * dt
		if rate > 1 {
			rate = 1
		}
		for _, rt := range economy.ResourceTypes() {
			cur, max := t.Amount.Of(rt), t.Max.Of(rt)
			if cur < max {
				t.Amount.Set(rt, cur+(max-cur)*rate)
			}
		}
	}
}

// TileCount returns the number of populated tiles.
func (m *TileMap) TileCount() int {
	n := 0
	for _, t := range m.Tiles {
		if t != nil {
			n++
		}
	}
	return n
}

// String returns a summary of the map.
func (m *TileMap) String() string {
	return fmt.Sprintf("TileMap(%dx%d, seed=%d)", m.Width, m.Height, m.Seed)
}
