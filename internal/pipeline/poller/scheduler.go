package poller

import (
	"sort"
	"time"

	"newsreel/internal/domain/entity"
)

// dueFeed pairs a configured feed with its current poll-state cursor.
type dueFeed struct {
	config entity.FeedConfig
	state  entity.FeedPollState
}

// selectDue returns up to perTick feeds that are due for a poll, oldest
// last-poll-at first (§4.1's "oldest-first" scheduling guarantee:
// "expected time between successive polls <= cooldown + tick_period").
// Feeds that have never been polled (LastPollAt == nil) sort first.
func selectDue(feeds []dueFeed, now time.Time, cooldown, cooldownTier1 time.Duration, circuitThreshold, perTick int) []dueFeed {
	due := make([]dueFeed, 0, len(feeds))
	for _, f := range feeds {
		c := cooldown
		if f.config.Tier == entity.FeedTierWire {
			c = cooldownTier1
		}
		if f.state.DueForPoll(now, c, circuitThreshold) {
			due = append(due, f)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		a, b := due[i].state.LastPollAt, due[j].state.LastPollAt
		if a == nil {
			return b != nil || due[i].config.ID < due[j].config.ID
		}
		if b == nil {
			return false
		}
		if a.Equal(*b) {
			return due[i].config.ID < due[j].config.ID
		}
		return a.Before(*b)
	})
	if len(due) > perTick {
		due = due[:perTick]
	}
	return due
}
