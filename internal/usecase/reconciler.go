package usecase

import (
	"sync"

	"github.com/dotapulse/matches-service/internal/domain/match"
)

// Reconciler carries match identities across refresh cycles. Identities
// come from a process-lifetime counter and are never reused; a fresh match
// inherits an identity only when a previous match passes the strict
// equality predicate below, so two distinct events can never merge.
type Reconciler struct {
	mu     sync.Mutex
	nextID int64
}

func NewReconciler() *Reconciler {
	return &Reconciler{nextID: 1}
}

// Assign gives every fresh match an identity. Each previous match hands
// its identity to at most one fresh match, keeping identities unique
// within the resulting snapshot.
func (r *Reconciler) Assign(previous, fresh []match.Match) []match.Match {
	r.mu.Lock()
	defer r.mu.Unlock()

	consumed := make([]bool, len(previous))
	out := make([]match.Match, 0, len(fresh))

	for _, next := range fresh {
		assigned := false
		for i, prev := range previous {
			if consumed[i] || !sameMatch(prev, next) {
				continue
			}
			next.ID = prev.ID
			consumed[i] = true
			assigned = true
			break
		}
		if !assigned {
			next.ID = r.nextID
			r.nextID++
		}
		out = append(out, next)
	}

	return out
}

func sameMatch(prev, next match.Match) bool {
	if prev.Format != next.Format {
		return false
	}
	if !sameStart(prev, next) {
		return false
	}
	if prev.Tournament.Page != next.Tournament.Page {
		return false
	}
	if !sameTeamSlot(prev.Team1, next.Team1) || !sameTeamSlot(prev.Team2, next.Team2) {
		return false
	}
	// A match that already had streams but lost them all is treated as a
	// different (stale) entry rather than a continuation.
	if len(prev.Streams) > 0 && len(next.Streams) == 0 {
		return false
	}
	return true
}

func sameStart(prev, next match.Match) bool {
	if prev.StartTime == nil || next.StartTime == nil {
		return prev.StartTime == nil && next.StartTime == nil
	}
	return prev.StartTime.Equal(*next.StartTime)
}

func sameTeamSlot(prev, next *match.Team) bool {
	if prev == nil || next == nil {
		return prev == nil && next == nil
	}
	return prev.Page == next.Page
}
