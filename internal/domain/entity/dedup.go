package entity

import "time"

// DedupFingerprint is a persisted entry in the rolling de-duplication
// barrier (§4.1/§4.2): "if exact_hash matches a recent hash
// (rolling 7-day set), drop silently; if simhash has Hamming distance ≤ 3
// against any recent entry, drop as syndication duplicate". The barrier
// keeps one row per admitted article, partitioned by source domain so the
// candidate window for a single check stays small.
type DedupFingerprint struct {
	ExactHash    string
	SimHash      uint64
	SourceDomain string
	ArticleID    string
	FirstSeen    time.Time
}

// RollingWindow is the retention horizon for the dedup barrier (
// §4.1's "rolling 7-day set").
const RollingWindow = 7 * 24 * time.Hour
