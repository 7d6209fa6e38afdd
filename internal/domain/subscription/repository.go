package subscription

import (
	"context"

	"github.com/dotapulse/matches-service/internal/domain/match"
)

// Index answers fan-out queries over the current follow rules. Adds and
// removes are idempotent; removing an absent rule is a no-op.
type Index interface {
	Add(ctx context.Context, subscriberID string, sub Subscription) error
	Remove(ctx context.Context, subscriberID string, sub Subscription) error
	RemoveAll(ctx context.Context, subscriberID string) error
	List(ctx context.Context, subscriberID string) ([]Subscription, error)
	RecipientsFor(ctx context.Context, d match.Descriptor) ([]string, error)
	Stats(ctx context.Context) (Stats, error)
}
