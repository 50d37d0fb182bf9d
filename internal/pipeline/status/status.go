// Package status implements the status machine: a pure function of
// (first_seen, last_updated, verification_level, prev_status, now,
// is_gaining_sources) evaluated inline after every clustering mutation and
// periodically by the breaking-news monitor for idle transitions
// (§4.4).
package status

import (
	"time"

	"newsreel/internal/domain/entity"
)

const (
	breakingFirstSeenWindow  = 30 * time.Minute
	rePromotionWindow        = 15 * time.Minute
	maintainWindow           = 30 * time.Minute
	idleToVerifiedWindow     = 90 * time.Minute
	minVerificationDeveloping = 2
	minVerificationBreaking   = 3
)

// Input is the status machine's full argument tuple (§4.4).
type Input struct {
	FirstSeen         time.Time
	LastUpdated       time.Time
	VerificationLevel int
	PrevStatus        entity.ClusterStatus
	Now               time.Time
	IsGainingSources  bool
}

// Next evaluates the transition table in §4.4's literal top-to-
// bottom order; the first matching row wins. Deliberately does not special-
// case a MONITORING cluster that jumps straight to verification_level ≥ 3
// in one update — per the table, only a DEVELOPING cluster can transition
// into BREAKING; everything else with verification_level ≥ 3 falls through
// to the terminal VERIFIED row.
func Next(in Input) entity.ClusterStatus {
	deltaFirst := in.Now.Sub(in.FirstSeen)
	deltaUpd := in.Now.Sub(in.LastUpdated)

	switch {
	case in.VerificationLevel <= 1:
		return entity.StatusMonitoring

	case in.PrevStatus == entity.StatusMonitoring && in.VerificationLevel == minVerificationDeveloping:
		return entity.StatusDeveloping

	case in.PrevStatus == entity.StatusDeveloping && in.VerificationLevel >= minVerificationBreaking && deltaFirst < breakingFirstSeenWindow:
		return entity.StatusBreaking

	case in.PrevStatus == entity.StatusVerified && in.VerificationLevel >= minVerificationBreaking && in.IsGainingSources && deltaUpd < rePromotionWindow:
		return entity.StatusBreaking

	case in.PrevStatus == entity.StatusBreaking && in.VerificationLevel >= minVerificationBreaking && deltaUpd < maintainWindow:
		return entity.StatusBreaking

	case in.PrevStatus == entity.StatusBreaking && deltaUpd >= idleToVerifiedWindow:
		return entity.StatusVerified

	case in.VerificationLevel >= minVerificationBreaking:
		return entity.StatusVerified

	default:
		return in.PrevStatus
	}
}
