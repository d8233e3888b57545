// Package retention decides which artifacts to evict once a store holds more
// than its configured count. The same rule applies to local files and remote
// objects: order by time ascending, keep the newest, evict the rest.
package retention

import (
	"slices"
	"time"
)

// Candidate is one evictable entry keyed by its creation or modification time.
type Candidate struct {
	ID          string
	OrderingKey time.Time
}

// Decision splits candidates into those to evict (oldest first) and those to keep.
type Decision struct {
	Evict []Candidate
	Keep  []Candidate
}

// SelectForEviction returns the ids to delete so that at most maxToKeep
// candidates remain. Ties on OrderingKey keep their input order.
func SelectForEviction(candidates []Candidate, maxToKeep int) []string {
	decision := Plan(candidates, maxToKeep)
	if len(decision.Evict) == 0 {
		return nil
	}
	ids := make([]string, len(decision.Evict))
	for i, c := range decision.Evict {
		ids[i] = c.ID
	}
	return ids
}

// Plan orders candidates oldest first and partitions them around maxToKeep.
// The input slice is not modified.
func Plan(candidates []Candidate, maxToKeep int) Decision {
	if maxToKeep < 0 {
		maxToKeep = 0
	}
	sorted := slices.Clone(candidates)
	slices.SortStableFunc(sorted, func(a, b Candidate) int {
		return a.OrderingKey.Compare(b.OrderingKey)
	})
	if len(sorted) <= maxToKeep {
		return Decision{Keep: sorted}
	}
	excess := len(sorted) - maxToKeep
	return Decision{Evict: sorted[:excess:excess], Keep: sorted[excess:]}
}
