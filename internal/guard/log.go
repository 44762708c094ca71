package guard

// Statistics summarises the error log.
type Statistics struct {
	Total        int            `json:"total"`
	ByKind       map[Kind]int   `json:"by_kind"`
	BySettlement map[string]int `json:"by_settlement"`
	LastHour     int            `json:"last_hour"`
}

// Log returns up to limit entries, oldest first within the window,
// most recent last. A non-positive limit returns the whole log.
func (g *Guard) Log(limit int) []ErrorRecord {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := len(g.log)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]ErrorRecord, n)
	copy(out, g.log[len(g.log)-n:])
	return out
}

// LogFor returns up to limit entries for one settlement, most recent
// last.
func (g *Guard) LogFor(settlementID string, limit int) []ErrorRecord {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []ErrorRecord
	for _, rec := range g.log {
		if rec.SettlementID == settlementID {
			out = append(out, rec)
		}
	}
	if limit > 0 && limit < len(out) {
		out = out[len(out)-limit:]
	}
	return out
}

// ClearLog drops every entry.
func (g *Guard) ClearLog() {
	g.mu.Lock()
	g.log = nil
	g.mu.Unlock()
}

// Stats aggregates the log by kind and settlement. LastHour counts
// entries stamped within the most recent hour of simulation time.
func (g *Guard) Stats() Statistics {
	now := g.Clock()

	g.mu.Lock()
	defer g.mu.Unlock()

	st := Statistics{
		Total:        len(g.log),
		ByKind:       make(map[Kind]int),
		BySettlement: make(map[string]int),
	}
	for _, rec := range g.log {
		st.ByKind[rec.Kind]++
		if rec.SettlementID != "" {
			st.BySettlement[rec.SettlementID]++
		}
		if rec.Time > now-60 {
			st.LastHour++
		}
	}
	return st
}
