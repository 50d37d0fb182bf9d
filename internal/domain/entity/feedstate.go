package entity

import "time"

// FeedTier classifies a configured feed's priority in the poller's
// oldest-first schedule (§4.1, Glossary "Tier-1 feed").
type FeedTier int

const (
	FeedTierWire   FeedTier = 1 // wire-service / breaking-news, shorter cooldown
	FeedTierNormal FeedTier = 2
)

// FeedConfig is a hand-curated, config-loaded feed definition (§3 "Feed
// Poll State" complements this with the mutable cursor). Loaded from YAML,
// not the document store — see SPEC_FULL §3.
type FeedConfig struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	URL         string   `yaml:"url"`
	Tier        FeedTier `yaml:"tier"`
	CategoryHint string  `yaml:"category_hint"`
	Language    string   `yaml:"language"`
}

// FeedPollState is the per-feed mutable cursor held in the store (§3).
// Mutated only by the poller.
type FeedPollState struct {
	FeedID             string
	LastPollAt         *time.Time
	LastSuccessAt      *time.Time
	HTTPEtag           *string
	HTTPLastModified   *string
	ConsecutiveFailures int
	ArticlesLastCycle  int

	Version string
}

// DueForPoll reports whether this feed's cooldown has elapsed as of now,
// applying the tier-specific default and the exponential backoff multiplier
// once consecutive failures pass the circuit threshold (§4.1).
func (f *FeedPollState) DueForPoll(now time.Time, cooldown time.Duration, circuitThreshold int) bool {
	if f.LastPollAt == nil {
		return true
	}
	effective := cooldown
	if f.ConsecutiveFailures >= circuitThreshold {
		shift := uint(f.ConsecutiveFailures - circuitThreshold + 1)
		const maxBackoff = time.Hour
		backoff := cooldown
		for i := uint(0); i < shift && backoff < maxBackoff; i++ {
			backoff *= 2
		}
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		effective = backoff
	}
	return now.Sub(*f.LastPollAt) >= effective
}

// ChangeStreamLease is an opaque, persisted checkpoint for one change-stream
// consumer (clustering or summarization), keyed by consumer name + partition
// (§3 "Change-Stream Lease").
type ChangeStreamLease struct {
	ConsumerName string
	Partition    string
	Checkpoint   string // opaque resume token
	LeasedUntil  *time.Time // advisory per-cluster summarizer lease (§4.5)
	UpdatedAt    time.Time

	Version string
}

// NotificationRecord guarantees at-most-once broadcast per breaking cluster
// (§3). Its mere existence for a story_id is the idempotence
// guard; the atomic field this relies on, however, is
// StoryCluster.PushNotificationSent written alongside Status in the same
// document update.
type NotificationRecord struct {
	StoryID     string
	BroadcastAt time.Time
}
