package notify

import (
	"context"
	"errors"
)

// MultiBroadcaster fans a single broadcast out to every configured channel,
// so both Discord and Slack can be enabled simultaneously. Every channel is
// attempted even if an earlier one fails; their errors are joined.
type MultiBroadcaster struct {
	Channels []Broadcaster
}

// Broadcast implements Broadcaster.
func (m MultiBroadcaster) Broadcast(ctx context.Context, storyID, title, category string) error {
	var errs []error
	for _, ch := range m.Channels {
		if err := ch.Broadcast(ctx, storyID, title, category); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
