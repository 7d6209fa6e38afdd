package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dotapulse/matches-service/internal/domain/match"
	"github.com/dotapulse/matches-service/internal/domain/subscription"
	"github.com/dotapulse/matches-service/internal/infrastructure/repository/memory"
	"github.com/dotapulse/matches-service/internal/platform/logging"
)

type recordingSink struct {
	mu        sync.Mutex
	delivered []string // "subscriber:matchID"
	fail      map[string]error
}

func (s *recordingSink) Deliver(_ context.Context, subscriberID string, _ match.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.fail[subscriberID]; ok {
		return err
	}
	s.delivered = append(s.delivered, subscriberID)
	return nil
}

func newTestReminderService(t *testing.T, reader SnapshotReader, index subscription.Index, sink ReminderSink) *ReminderService {
	t.Helper()
	svc, err := NewReminderService(reader, index, sink, ReminderConfig{Window: 15 * time.Minute}, logging.NewNop())
	if err != nil {
		t.Fatalf("new reminder service: %v", err)
	}
	return svc
}

func upcomingSnapshot(start time.Time) match.Snapshot {
	return match.Snapshot{
		Version: 1,
		Matches: []match.Match{{
			ID:         7,
			Team1:      &match.Team{Name: "A", Page: "/A"},
			Team2:      &match.Team{Name: "B", Page: "/B"},
			Tournament: match.Tournament{Name: "T", Page: "/T"},
			StartTime:  &start,
		}},
	}
}

func TestReminderService_Scan_RemindsOncePerMatch(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	reader := &stubSnapshotReader{snapshot: upcomingSnapshot(now.Add(10 * time.Minute))}

	index := memory.NewSubscriptionIndex()
	if err := index.Add(t.Context(), "chat-1", subscription.Subscription{Kind: subscription.KindTeam, TargetID: "/A"}); err != nil {
		t.Fatalf("seed index: %v", err)
	}

	sink := &recordingSink{}
	svc := newTestReminderService(t, reader, index, sink)
	svc.now = func() time.Time { return now }

	svc.scan(t.Context())
	svc.scan(t.Context())

	if len(sink.delivered) != 1 || sink.delivered[0] != "chat-1" {
		t.Fatalf("expected exactly one delivery to chat-1, got %v", sink.delivered)
	}
}

func TestReminderService_Scan_SkipsMatchesOutsideWindow(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	index := memory.NewSubscriptionIndex()
	if err := index.Add(t.Context(), "chat-1", subscription.Subscription{Kind: subscription.KindAll}); err != nil {
		t.Fatalf("seed index: %v", err)
	}

	for _, start := range []time.Time{now.Add(-time.Minute), now.Add(time.Hour)} {
		sink := &recordingSink{}
		svc := newTestReminderService(t, &stubSnapshotReader{snapshot: upcomingSnapshot(start)}, index, sink)
		svc.now = func() time.Time { return now }

		svc.scan(t.Context())
		if len(sink.delivered) != 0 {
			t.Fatalf("match starting at %v must not trigger a reminder, got %v", start, sink.delivered)
		}
	}
}

func TestReminderService_Scan_PrunesRemindedMatchesThatLeftSnapshot(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	reader := &stubSnapshotReader{snapshot: upcomingSnapshot(now.Add(10 * time.Minute))}

	index := memory.NewSubscriptionIndex()
	if err := index.Add(t.Context(), "chat-1", subscription.Subscription{Kind: subscription.KindAll}); err != nil {
		t.Fatalf("seed index: %v", err)
	}

	sink := &recordingSink{}
	svc := newTestReminderService(t, reader, index, sink)
	svc.now = func() time.Time { return now }

	svc.scan(t.Context())
	if len(svc.reminded) != 1 {
		t.Fatalf("expected the match to be recorded as reminded, got %d entries", len(svc.reminded))
	}

	// The match finished and dropped out of the feed; the next scan must
	// release its entry so the set does not grow for the process lifetime.
	reader.snapshot = match.Snapshot{Version: 2}
	svc.scan(t.Context())

	if len(svc.reminded) != 0 {
		t.Fatalf("expected reminded entries for departed matches to be pruned, got %d", len(svc.reminded))
	}
	if len(sink.delivered) != 1 {
		t.Fatalf("pruning must not re-deliver, got %v", sink.delivered)
	}
}

func TestReminderService_Scan_DeliveryFailureDoesNotStopFanOut(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	reader := &stubSnapshotReader{snapshot: upcomingSnapshot(now.Add(5 * time.Minute))}

	index := memory.NewSubscriptionIndex()
	for _, id := range []string{"chat-1", "chat-2", "chat-3"} {
		if err := index.Add(t.Context(), id, subscription.Subscription{Kind: subscription.KindAll}); err != nil {
			t.Fatalf("seed index: %v", err)
		}
	}

	sink := &recordingSink{fail: map[string]error{"chat-2": errors.New("blocked")}}
	svc := newTestReminderService(t, reader, index, sink)
	svc.now = func() time.Time { return now }

	svc.scan(t.Context())

	if len(sink.delivered) != 2 {
		t.Fatalf("expected the two healthy recipients to be reminded, got %v", sink.delivered)
	}
}
