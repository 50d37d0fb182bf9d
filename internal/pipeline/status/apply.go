package status

import (
	"time"

	"newsreel/internal/domain/entity"
	"newsreel/internal/observability/metrics"
)

// Apply evaluates Next against cluster's current state and writes the
// resulting Status, BreakingDetectedAt, and PushNotificationSent fields in
// place (§4.4 "Notification edge"): on any transition into BREAKING,
// breaking_detected_at is set to now and, if push_notification_sent was
// false, it flips to true in the same mutation the caller is about to
// persist — the single-document update that makes the notification
// at-most-once (§3, the "single notification per story" invariant). Apply
// reports whether a broadcast should now be scheduled; the caller owns
// actually dispatching it and persisting the idempotency-guard
// entity.NotificationRecord.
func Apply(cluster *entity.StoryCluster, isGainingSources bool, now time.Time) bool {
	prev := cluster.Status
	next := Next(Input{
		FirstSeen:         cluster.FirstSeen,
		LastUpdated:       cluster.LastUpdated,
		VerificationLevel: cluster.VerificationLevel,
		PrevStatus:        prev,
		Now:               now,
		IsGainingSources:  isGainingSources,
	})

	if next == prev {
		return false
	}
	metrics.StatusTransitionsTotal.WithLabelValues(string(prev), string(next)).Inc()
	cluster.Status = next

	if next != entity.StatusBreaking {
		return false
	}
	breakingAt := now
	cluster.BreakingDetectedAt = &breakingAt
	if cluster.PushNotificationSent {
		return false
	}
	cluster.PushNotificationSent = true
	return true
}
