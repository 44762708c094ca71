package economy

// Amounts carries one float per resource type. Production and
// consumption rates use it as well as absolute quantities.
type Amounts struct {
	Food float64 `json:"food"`
	Wood float64 `json:"wood"`
	Ore  float64 `json:"ore"`
}

// Of returns the amount for one resource type.
func (a Amounts) Of(rt ResourceType) float64 {
	switch rt {
	case Food:
		return a.Food
	case Wood:
		return a.Wood
	case Ore:
		return a.Ore
	}
	return 0
}

// Set assigns the amount for one resource type.
func (a *Amounts) Set(rt ResourceType, v float64) {
	switch rt {
	case Food:
		a.Food = v
	case Wood:
		a.Wood = v
	case Ore:
		a.Ore = v
	}
}

// Add returns a with b added component-wise.
func (a Amounts) Add(b Amounts) Amounts {
	return Amounts{Food: a.Food + b.Food, Wood: a.Wood + b.Wood, Ore: a.Ore + b.Ore}
}

// Scale returns a multiplied component-wise by f.
func (a Amounts) Scale(f float64) Amounts {
	return Amounts{Food: a.Food * f, Wood: a.Wood * f, Ore: a.Ore * f}
}

// Stock is the stored quantity of each resource plus the shared
// capacity ceiling of the settlement's storage.
type Stock struct {
	Amounts
	Capacity float64 `json:"capacity"`
}

// Buildings tracks completed structures and the construction pipeline.
type Buildings struct {
	Count    int     `json:"count"`
	Target   int     `json:"target"`
	Queue    int     `json:"queue"`
	Progress float64 `json:"progress"`
}

// StatusSet holds the supply level of each resource.
type StatusSet struct {
	Food Level `json:"food"`
	Wood Level `json:"wood"`
	Ore  Level `json:"ore"`
}

// Of returns the level for one resource type.
func (s StatusSet) Of(rt ResourceType) Level {
	switch rt {
	case Food:
		return s.Food
	case Wood:
		return s.Wood
	case Ore:
		return s.Ore
	}
	return LevelBalanced
}

// Set assigns the level for one resource type.
func (s *StatusSet) Set(rt ResourceType, l Level) {
	switch rt {
	case Food:
		s.Food = l
	case Wood:
		s.Wood = l
	case Ore:
		s.Ore = l
	}
}

// Has reports whether any resource currently holds the given level.
func (s StatusSet) Has(l Level) bool {
	return s.Food == l || s.Wood == l || s.Ore == l
}

// AllBalanced returns a status set with every resource balanced.
func AllBalanced() StatusSet {
	return StatusSet{Food: LevelBalanced, Wood: LevelBalanced, Ore: LevelBalanced}
}

// Record is a settlement's full economic state: current rates, stored
// quantities, building pipeline, and per-resource supply levels.
type Record struct {
	Production  Amounts   `json:"production"`
	Consumption Amounts   `json:"consumption"`
	Stock       Stock     `json:"stock"`
	Buildings   Buildings `json:"buildings"`
	Status      StatusSet `json:"status"`
}

// NewRecord returns the starting economic state: zero rates, the given
// storage capacity, one completed building, and balanced statuses.
func NewRecord(capacity float64) *Record {
	return &Record{
		Stock:     Stock{Capacity: capacity},
		Buildings: Buildings{Count: 1, Target: 1},
		Status:    AllBalanced(),
	}
}

// SettlementEconomy is the classifier-facing view of one settlement:
// identity, position, and its economic record. It carries no behaviour
// of its own.
type SettlementEconomy struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	X      int     `json:"x"`
	Y      int     `json:"y"`
	Record *Record `json:"economy"`
}
