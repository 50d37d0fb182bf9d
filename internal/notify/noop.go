package notify

import "context"

// NoOpBroadcaster discards every broadcast. Used when notifications are
// disabled, so callers never need a nil check (Null Object pattern).
type NoOpBroadcaster struct{}

// Broadcast does nothing and returns nil immediately.
func (NoOpBroadcaster) Broadcast(context.Context, string, string, string) error {
	return nil
}
