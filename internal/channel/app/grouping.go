package app

import (
	"time"

	"channel_sync_service/internal/channel/domain"
)

// RegroupWindow number of entries recomputed around a mutation. Recomputing
// whole channels on every event is what this bound exists to prevent.
const RegroupWindow = 3

// GroupingEngine decides whether a message is visually collapsed into its predecessor
type GroupingEngine struct {
	gap time.Duration
}

// NewGroupingEngine gap is the largest created_at distance still grouped
func NewGroupingEngine(gap time.Duration) *GroupingEngine {
	return &GroupingEngine{gap: gap}
}

// Grouped msg continues prev's group
func (g *GroupingEngine) Grouped(prev, msg *domain.Message) bool {
	if prev == nil || msg == nil {
		return false
	}
	if prev.UserID != msg.UserID {
		return false
	}
	if prev.IsSystem() || msg.IsSystem() {
		return false
	}
	// a reply header starts a new turn
	if msg.IsReply() {
		return false
	}
	d := msg.CreatedAt.Sub(prev.CreatedAt)
	if d < 0 {
		d = -d
	}
	return d <= g.gap
}

// Regroup recompute GroupedWithPrevious for a window in arrival order.
// window[0] is only context unless atHead is set, in which case it is the
// first message of the channel and can never be grouped.
func (g *GroupingEngine) Regroup(window []*domain.Message, atHead bool) {
	if len(window) == 0 {
		return
	}
	if atHead {
		window[0].GroupedWithPrevious = false
	}
	for i := 1; i < len(window); i++ {
		window[i].GroupedWithPrevious = g.Grouped(window[i-1], window[i])
	}
}
