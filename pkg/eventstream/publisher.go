// Package eventstream defines the transport-neutral turn event payload and
// the publisher contract. Publishing is best-effort: a failed publish is
// logged by the caller and never fails the turn.
package eventstream

import "context"

// Publisher publishes turn events to an event stream backend.
type Publisher interface {
	PublishTurn(ctx context.Context, event *TurnPersistedEvent) error
	Close() error
}
