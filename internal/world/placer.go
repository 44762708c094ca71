// Settlement placement: scores candidate tiles and seeds the initial
// villages far enough apart to leave each its own hinterland.
package world

import (
	"math"
	"math/rand"
	"sort"
)

// Seed holds the parameters for one initial settlement placement.
// The caller turns seeds into live settlements.
type Seed struct {
	X     int
	Y     int
	Name  string
	Score float64
}

// MinSeparation is the smallest distance allowed between two seeds.
const MinSeparation = 8.0

// PlaceSettlements picks up to count village sites on the map, best
// scores first, enforcing the minimum separation. Fewer seeds come
// back when the map cannot fit the requested number.
func PlaceSettlements(m *TileMap, count int, seed int64) []Seed {
	rng := rand.New(rand.NewSource(seed + 200))

	type scored struct {
		x, y  int
		score float64
	}
	var candidates []scored

	for _, t := range m.Tiles {
		if t == nil || !t.Settleable() {
			continue
		}
		s := siteScore(m, t)
		if s > 0 {
			candidates = append(candidates, scored{t.X, t.Y, s})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	var seeds []Seed
	for _, c := range candidates {
		if len(seeds) >= count {
			break
		}
		if tooClose(c.x, c.y, seeds, MinSeparation) {
			continue
		}
		seeds = append(seeds, Seed{X: c.x, Y: c.y, Score: c.score})
	}

	names := generateNames(rng, len(seeds))
	for i := range seeds {
		seeds[i].Name = names[i]
	}

	return seeds
}

// siteScore evaluates how desirable a tile is for a new village.
// Prefers fertile plains, values terrain variety and water access
// nearby, and rewards rich local deposits.
func siteScore(m *TileMap, t *Tile) float64 {
	score := 0.0

	switch t.Terrain {
	case TerrainPlains:
		score += 3.0
	case TerrainForest:
		score += 1.5
	case TerrainHills:
		score += 0.8 // Mining hamlets, not prime farmland
	default:
		return 0
	}

	// Bonus for adjacent terrain variety and for water access.
	variety := make(map[Terrain]bool)
	water := false
	for _, n := range m.TilesWithin(t.X, t.Y, 1) {
		if n == t {
			continue
		}
		if n.Terrain == TerrainWater {
			water = true
			continue
		}
		variety[n.Terrain] = true
	}
	score += float64(len(variety)) * 0.3
	if water {
		score += 0.5
	}

	// Bonus for total nearby deposits.
	local := m.AmountsWithin(t.X, t.Y, 1)
	score += math.Log1p(local.Food+local.Wood+local.Ore) * 0.2

	return score
}

func tooClose(x, y int, existing []Seed, minDist float64) bool {
	for _, s := range existing {
		if Distance(x, y, s.X, s.Y) < minDist {
			return true
		}
	}
	return false
}

// generateNames produces procedural village names by combining
// syllables, without repeats.
func generateNames(rng *rand.Rand, count int) []string {
	prefixes := []string{
		"Ash", "Birch", "Clay", "Dun", "East", "Fen", "Grey",
		"Hazel", "Kiln", "Lark", "Mill", "North", "Oat", "Peat",
		"Quern", "Rye", "Salt", "Thistle", "Under", "Wheat", "Alder",
		"Barrow", "Cold", "Dove", "Elder", "Flax", "Gorse", "Heath",
	}
	suffixes := []string{
		"barrow", "bech", "combe", "croft", "den", "firth", "garth",
		"ham", "holt", "hurst", "ley", "mead", "mere", "moor",
		"shaw", "stead", "thorpe", "ton", "wade", "wick", "worth",
		"bourne", "cote", "dale", "fold", "gill", "lea", "march",
	}

	used := make(map[string]bool)
	names := make([]string, 0, count)

	for len(names) < count {
		name := prefixes[rng.Intn(len(prefixes))] + suffixes[rng.Intn(len(suffixes))]
		if !used[name] {
			used[name] = true
			names = append(names, name)
		}
	}

	return names
}
