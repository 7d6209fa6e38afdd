package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dotapulse/matches-service/internal/domain/match"
	"github.com/dotapulse/matches-service/internal/domain/subscription"
	"github.com/dotapulse/matches-service/internal/platform/logging"
)

// ReminderSink delivers one reminder to one subscriber. Implementations
// live in the delivery layer (chat bot, webhook); a returned error affects
// only that recipient.
type ReminderSink interface {
	Deliver(ctx context.Context, subscriberID string, m match.Match) error
}

type ReminderConfig struct {
	CheckPeriod time.Duration
	Window      time.Duration
}

func (c ReminderConfig) withDefaults() ReminderConfig {
	if c.CheckPeriod <= 0 {
		c.CheckPeriod = 30 * time.Second
	}
	if c.Window <= 0 {
		c.Window = 15 * time.Minute
	}
	return c
}

// ReminderService periodically scans the current snapshot for matches
// about to start and fans reminders out through the subscription index.
// Each match is reminded at most once; entries for matches that have left
// the snapshot are pruned on every scan.
type ReminderService struct {
	snapshots SnapshotReader
	index     subscription.Index
	sink      ReminderSink
	cfg       ReminderConfig
	logger    *logging.Logger
	now       func() time.Time

	mu       sync.Mutex
	reminded map[int64]struct{}

	started  atomic.Bool
	startAll sync.Once
	stopAll  sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewReminderService(snapshots SnapshotReader, index subscription.Index, sink ReminderSink, cfg ReminderConfig, logger *logging.Logger) (*ReminderService, error) {
	if snapshots == nil {
		return nil, fmt.Errorf("reminder service: snapshot reader is required")
	}
	if index == nil {
		return nil, fmt.Errorf("reminder service: subscription index is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("reminder service: sink is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &ReminderService{
		snapshots: snapshots,
		index:     index,
		sink:      sink,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		now:       time.Now,
		reminded:  make(map[int64]struct{}),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

func (s *ReminderService) Start() {
	s.startAll.Do(func() {
		s.started.Store(true)
		go s.run()
	})
}

func (s *ReminderService) Stop() {
	if !s.started.Load() {
		return
	}
	s.stopAll.Do(func() { close(s.stop) })
	<-s.done
}

func (s *ReminderService) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.CheckPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.scan(context.Background())
		}
	}
}

// scan walks the snapshot once and reminds every match whose start time
// has entered the window. Delivery failures are logged and skipped; they
// do not stop the loop or the rest of the scan.
func (s *ReminderService) scan(ctx context.Context) {
	snapshot := s.snapshots.CurrentSnapshot()
	now := s.now()
	s.prune(snapshot)

	for _, m := range snapshot.Matches {
		if m.StartTime == nil {
			continue
		}
		if m.StartTime.Before(now) || m.StartTime.After(now.Add(s.cfg.Window)) {
			continue
		}
		if !s.markReminded(m.ID) {
			continue
		}

		recipients, err := s.index.RecipientsFor(ctx, m.Descriptor())
		if err != nil {
			s.logger.WarnContext(ctx, "reminder fan-out failed", "match_id", m.ID, "error", err)
			continue
		}

		for _, subscriberID := range recipients {
			if err := s.sink.Deliver(ctx, subscriberID, m); err != nil {
				s.logger.WarnContext(ctx, "reminder delivery failed",
					"match_id", m.ID, "subscriber_id", subscriberID, "error", err)
			}
		}
		if len(recipients) > 0 {
			s.logger.InfoContext(ctx, "reminders sent", "match_id", m.ID, "recipients", len(recipients))
		}
	}
}

// prune drops reminded entries for matches no longer in the snapshot.
// Match ids are never reused, so an id that left the feed cannot need a
// reminder again and the set stays bounded by the snapshot size.
func (s *ReminderService) prune(snapshot match.Snapshot) {
	current := make(map[int64]struct{}, len(snapshot.Matches))
	for _, m := range snapshot.Matches {
		current[m.ID] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.reminded {
		if _, ok := current[id]; !ok {
			delete(s.reminded, id)
		}
	}
}

// markReminded records the match and reports whether it was new.
func (s *ReminderService) markReminded(matchID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.reminded[matchID]; seen {
		return false
	}
	s.reminded[matchID] = struct{}{}
	return true
}
