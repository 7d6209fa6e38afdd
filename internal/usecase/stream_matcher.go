package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dotapulse/matches-service/internal/domain/match"
	"github.com/dotapulse/matches-service/internal/platform/logging"
	"github.com/dotapulse/matches-service/internal/platform/resilience"
)

// LiveStream is one currently-live broadcast as reported by the streaming
// platform, before any relevance scoring.
type LiveStream struct {
	ChannelLogin string
	ChannelName  string
	Title        string
	Language     string
	Viewers      int
	ThumbnailURL string
}

// StreamProvider lists everything currently live for one game.
type StreamProvider interface {
	ListLiveStreams(ctx context.Context, gameID string) ([]LiveStream, error)
}

type StreamMatcherConfig struct {
	GameID          string
	RefreshInterval time.Duration
	MinScore        float64
	MaxResults      int
}

func (c StreamMatcherConfig) withDefaults() StreamMatcherConfig {
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 100 * time.Second
	}
	if c.MinScore <= 0 {
		c.MinScore = 0.5
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 6
	}
	return c
}

// StreamMatcher turns a match into its ranked relevant broadcasts. The
// full live list is cached and reloaded only once the cache outlives the
// refresh interval; a failed reload keeps the previous list.
type StreamMatcher struct {
	provider StreamProvider
	scorer   *StreamScorer
	cfg      StreamMatcherConfig
	logger   *logging.Logger
	now      func() time.Time

	flight resilience.SingleFlight

	mu       sync.Mutex
	cache    []LiveStream
	loadedAt time.Time
	loaded   bool
}

func NewStreamMatcher(provider StreamProvider, scorer *StreamScorer, cfg StreamMatcherConfig, logger *logging.Logger) (*StreamMatcher, error) {
	if provider == nil {
		return nil, fmt.Errorf("stream matcher: provider is required")
	}
	if scorer == nil {
		return nil, fmt.Errorf("stream matcher: scorer is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &StreamMatcher{
		provider: provider,
		scorer:   scorer,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}, nil
}

// FindMatchStreams scores every cached live stream against the triple and
// returns the top results. An undetermined team or tournament name yields
// an empty result without touching the platform.
func (m *StreamMatcher) FindMatchStreams(ctx context.Context, team1, team2, tournament string) ([]match.StreamInfo, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.StreamMatcher.FindMatchStreams")
	defer span.End()

	if team1 == "" || team2 == "" || tournament == "" {
		return nil, nil
	}

	streams, err := m.liveStreams(ctx)
	if err != nil {
		return nil, err
	}

	type scored struct {
		stream LiveStream
		score  float64
	}

	candidates := make([]scored, 0, len(streams))
	for _, s := range streams {
		score := m.scorer.Score(s.Title, s.Language, s.Viewers, team1, team2, tournament)
		if score < m.cfg.MinScore {
			continue
		}
		candidates = append(candidates, scored{stream: s, score: score})
	}

	// Stable sort keeps cache order for equal scores.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > m.cfg.MaxResults {
		candidates = candidates[:m.cfg.MaxResults]
	}

	out := make([]match.StreamInfo, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, match.StreamInfo{
			ChannelLogin: c.stream.ChannelLogin,
			ChannelName:  c.stream.ChannelName,
			Thumbnail:    c.stream.ThumbnailURL,
			Title:        c.stream.Title,
			Language:     c.stream.Language,
			Viewers:      c.stream.Viewers,
		})
	}
	return out, nil
}

func (m *StreamMatcher) liveStreams(ctx context.Context) ([]LiveStream, error) {
	if cached, ok := m.freshCache(); ok {
		return cached, nil
	}

	// Reload outside the lock so readers of the stale cache never wait on
	// the platform call; singleflight keeps concurrent enrichment workers
	// from each issuing their own full listing.
	out, err, _ := m.flight.Do(m.cfg.GameID, func() (any, error) {
		if cached, ok := m.freshCache(); ok {
			return cached, nil
		}

		fresh, err := m.provider.ListLiveStreams(ctx, m.cfg.GameID)
		if err != nil {
			return nil, fmt.Errorf("reload live streams: %w", err)
		}

		m.mu.Lock()
		m.cache = fresh
		m.loadedAt = m.now()
		m.loaded = true
		m.mu.Unlock()

		m.logger.DebugContext(ctx, "live stream cache reloaded", "game_id", m.cfg.GameID, "streams", len(fresh))
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]LiveStream), nil
}

func (m *StreamMatcher) freshCache() ([]LiveStream, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded && m.now().Sub(m.loadedAt) < m.cfg.RefreshInterval {
		return m.cache, true
	}
	return nil, false
}
