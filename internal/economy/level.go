// Package economy defines the resource vocabulary of the simulation and
// the classifier that turns raw production, consumption, and stock
// figures into supply levels, rankings, and cross-settlement comparisons.
package economy

// ResourceType identifies one of the three tradeable resources.
type ResourceType string

const (
	Food ResourceType = "food"
	Wood ResourceType = "wood"
	Ore  ResourceType = "ore"
)

// ResourceTypes returns all resource types in canonical order.
func ResourceTypes() []ResourceType {
	return []ResourceType{Food, Wood, Ore}
}

// Level is the supply classification of one resource at one settlement.
type Level string

const (
	LevelCritical Level = "critical"
	LevelShortage Level = "shortage"
	LevelBalanced Level = "balanced"
	LevelSurplus  Level = "surplus"
)

// Order maps the level onto a severity scale, critical lowest.
func (l Level) Order() int {
	switch l {
	case LevelCritical:
		return 0
	case LevelShortage:
		return 1
	case LevelBalanced:
		return 2
	case LevelSurplus:
		return 3
	}
	return 2
}

// WorseThan reports whether l is a more severe level than other.
func (l Level) WorseThan(other Level) bool {
	return l.Order() < other.Order()
}

// BetterThan reports whether l is a less severe level than other.
func (l Level) BetterThan(other Level) bool {
	return l.Order() > other.Order()
}

// ParseLevel maps a stored string back onto a Level. Unknown strings
// come back as balanced so stale rows cannot poison a comparison.
func ParseLevel(s string) Level {
	switch Level(s) {
	case LevelCritical, LevelShortage, LevelBalanced, LevelSurplus:
		return Level(s)
	}
	return LevelBalanced
}

func (l Level) String() string { return string(l) }
