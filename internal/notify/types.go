// Package notify defines the outbound notification surface and its Matrix
// implementation. The tracker and the digest loops speak only to Notifier;
// everything Matrix-specific stays in the adapter.
package notify

import (
	"context"

	"alertbridge/internal/alert"
)

// Notifier delivers alert notifications to the chat platform.
//
// SendNew returns the platform event id of the announcement; the caller
// records it so later updates edit the original message instead of spamming
// new ones. EditExisting and SendResolved address that event id; SendResolved
// accepts an empty id and falls back to a standalone notice.
type Notifier interface {
	SendNew(ctx context.Context, rec alert.Record) (eventID string, err error)
	EditExisting(ctx context.Context, eventID string, rec alert.Record) error
	SendResolved(ctx context.Context, eventID string, rec alert.Record) error
	SendDigest(ctx context.Context, tier alert.Tier, alerts []alert.Record, mentionToken string) error
}
