package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/dotapulse/matches-service/internal/domain/match"
	"github.com/dotapulse/matches-service/internal/domain/subscription"
	"github.com/dotapulse/matches-service/internal/platform/logging"
)

// SnapshotReader is the read side of the refresh scheduler.
type SnapshotReader interface {
	CurrentSnapshot() match.Snapshot
}

// SubscriptionService fronts the subscription index with input validation
// and the match-to-recipients fan-out.
type SubscriptionService struct {
	index     subscription.Index
	snapshots SnapshotReader
	logger    *logging.Logger
}

func NewSubscriptionService(index subscription.Index, snapshots SnapshotReader, logger *logging.Logger) (*SubscriptionService, error) {
	if index == nil {
		return nil, fmt.Errorf("subscription service: index is required")
	}
	if snapshots == nil {
		return nil, fmt.Errorf("subscription service: snapshot reader is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &SubscriptionService{index: index, snapshots: snapshots, logger: logger}, nil
}

func (s *SubscriptionService) Subscribe(ctx context.Context, subscriberID string, sub subscription.Subscription) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.SubscriptionService.Subscribe")
	defer span.End()

	subscriberID = strings.TrimSpace(subscriberID)
	if subscriberID == "" {
		return fmt.Errorf("%w: subscriber id is required", ErrInvalidInput)
	}
	if err := sub.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if err := s.index.Add(ctx, subscriberID, sub); err != nil {
		return fmt.Errorf("add subscription: %w", err)
	}
	s.logger.InfoContext(ctx, "subscription added", "subscriber_id", subscriberID, "kind", string(sub.Kind), "target_id", sub.TargetID)
	return nil
}

func (s *SubscriptionService) Unsubscribe(ctx context.Context, subscriberID string, sub subscription.Subscription) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.SubscriptionService.Unsubscribe")
	defer span.End()

	subscriberID = strings.TrimSpace(subscriberID)
	if subscriberID == "" {
		return fmt.Errorf("%w: subscriber id is required", ErrInvalidInput)
	}
	if err := sub.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if err := s.index.Remove(ctx, subscriberID, sub); err != nil {
		return fmt.Errorf("remove subscription: %w", err)
	}
	return nil
}

func (s *SubscriptionService) Clear(ctx context.Context, subscriberID string) error {
	ctx, span := startUsecaseSpan(ctx, "usecase.SubscriptionService.Clear")
	defer span.End()

	subscriberID = strings.TrimSpace(subscriberID)
	if subscriberID == "" {
		return fmt.Errorf("%w: subscriber id is required", ErrInvalidInput)
	}

	if err := s.index.RemoveAll(ctx, subscriberID); err != nil {
		return fmt.Errorf("clear subscriptions: %w", err)
	}
	return nil
}

func (s *SubscriptionService) List(ctx context.Context, subscriberID string) ([]subscription.Subscription, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.SubscriptionService.List")
	defer span.End()

	subscriberID = strings.TrimSpace(subscriberID)
	if subscriberID == "" {
		return nil, fmt.Errorf("%w: subscriber id is required", ErrInvalidInput)
	}

	subs, err := s.index.List(ctx, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}

// RecipientsForMatch resolves a match from the current snapshot and
// answers who should hear about it.
func (s *SubscriptionService) RecipientsForMatch(ctx context.Context, matchID int64) ([]string, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.SubscriptionService.RecipientsForMatch")
	defer span.End()

	snapshot := s.snapshots.CurrentSnapshot()
	m, found := snapshot.FindMatch(matchID)
	if !found {
		return nil, fmt.Errorf("%w: match %d is not in the current snapshot", ErrNotFound, matchID)
	}

	recipients, err := s.index.RecipientsFor(ctx, m.Descriptor())
	if err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}
	return recipients, nil
}

func (s *SubscriptionService) Stats(ctx context.Context) (subscription.Stats, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.SubscriptionService.Stats")
	defer span.End()

	stats, err := s.index.Stats(ctx)
	if err != nil {
		return subscription.Stats{}, fmt.Errorf("read subscription stats: %w", err)
	}
	return stats, nil
}
