package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/dotapulse/matches-service/internal/domain/match"
	"github.com/dotapulse/matches-service/internal/platform/logging"
)

type SchedulerState string

const (
	SchedulerStateIdle        SchedulerState = "idle"
	SchedulerStateFetching    SchedulerState = "fetching"
	SchedulerStateEnriching   SchedulerState = "enriching"
	SchedulerStateReconciling SchedulerState = "reconciling"
	SchedulerStatePublishing  SchedulerState = "publishing"
)

// MatchSource is the structured-page side of a refresh cycle.
type MatchSource interface {
	FetchMatches(ctx context.Context) ([]match.Match, []error, error)
	FetchTeams(ctx context.Context) ([]match.Team, error)
	FetchTournaments(ctx context.Context) ([]match.Tournament, error)
}

// StreamFinder resolves the relevant broadcasts for one match.
type StreamFinder interface {
	FindMatchStreams(ctx context.Context, team1, team2, tournament string) ([]match.StreamInfo, error)
}

type RefreshConfig struct {
	Interval         time.Duration
	MaxMatches       int
	StreamLeadWindow time.Duration
	MaxWorkers       int
}

func (c RefreshConfig) withDefaults() RefreshConfig {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	if c.MaxMatches <= 0 {
		c.MaxMatches = 5
	}
	if c.StreamLeadWindow <= 0 {
		c.StreamLeadWindow = 15 * time.Minute
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 4
	}
	return c
}

// RefreshService runs the periodic refresh loop on one background
// goroutine: fetch, enrich, reconcile, publish, strictly in that order and
// never overlapping. Readers see the last published snapshot at all times;
// a failed cycle changes nothing and is retried on the next tick.
type RefreshService struct {
	source     MatchSource
	streams    StreamFinder
	reconciler *Reconciler
	cfg        RefreshConfig
	logger     *logging.Logger
	now        func() time.Time

	state atomic.Value // SchedulerState

	mu       sync.RWMutex
	snapshot match.Snapshot

	started  atomic.Bool
	startAll sync.Once
	stopAll  sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewRefreshService(source MatchSource, streams StreamFinder, reconciler *Reconciler, cfg RefreshConfig, logger *logging.Logger) (*RefreshService, error) {
	if source == nil {
		return nil, fmt.Errorf("refresh service: match source is required")
	}
	if streams == nil {
		return nil, fmt.Errorf("refresh service: stream finder is required")
	}
	if reconciler == nil {
		return nil, fmt.Errorf("refresh service: reconciler is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	s := &RefreshService{
		source:     source,
		streams:    streams,
		reconciler: reconciler,
		cfg:        cfg.withDefaults(),
		logger:     logger,
		now:        time.Now,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		snapshot: match.Snapshot{
			TeamPageByName:       map[string]string{},
			TournamentPageByName: map[string]string{},
		},
	}
	s.state.Store(SchedulerStateIdle)
	return s, nil
}

// Start launches the background loop. The first cycle runs immediately.
func (s *RefreshService) Start() {
	s.startAll.Do(func() {
		s.started.Store(true)
		go s.run()
	})
}

// Stop requests shutdown and blocks until the in-flight cycle finishes and
// the loop goroutine has exited. Safe to call more than once.
func (s *RefreshService) Stop() {
	if !s.started.Load() {
		return
	}
	s.stopAll.Do(func() { close(s.stop) })
	<-s.done
}

// CurrentSnapshot returns the last published snapshot without blocking on
// any external call.
func (s *RefreshService) CurrentSnapshot() match.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

func (s *RefreshService) CurrentVersion() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.Version
}

func (s *RefreshService) State() SchedulerState {
	return s.state.Load().(SchedulerState)
}

func (s *RefreshService) run() {
	defer close(s.done)

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		s.runCycle(context.Background())

		select {
		case <-s.stop:
			return
		case <-time.After(s.cfg.Interval):
		}
	}
}

func (s *RefreshService) runCycle(ctx context.Context) {
	defer s.state.Store(SchedulerStateIdle)

	s.state.Store(SchedulerStateFetching)
	fetched, rowErrs, err := s.source.FetchMatches(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "refresh cycle aborted fetching matches", "error", err)
		return
	}
	for _, rowErr := range rowErrs {
		s.logger.WarnContext(ctx, "match row dropped", "error", rowErr)
	}
	if len(fetched) > s.cfg.MaxMatches {
		fetched = fetched[:s.cfg.MaxMatches]
	}

	teams, err := s.source.FetchTeams(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "refresh cycle aborted fetching teams", "error", err)
		return
	}
	tournaments, err := s.source.FetchTournaments(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "refresh cycle aborted fetching tournaments", "error", err)
		return
	}

	s.state.Store(SchedulerStateEnriching)
	join := buildJoinMaps(teams, tournaments)
	enriched := s.enrichAll(ctx, fetched, join)

	s.state.Store(SchedulerStateReconciling)
	previous := s.CurrentSnapshot()
	reconciled := s.reconciler.Assign(previous.Matches, enriched)

	s.state.Store(SchedulerStatePublishing)
	s.mu.Lock()
	version := s.snapshot.Version + 1
	s.snapshot = match.Snapshot{
		Version:              version,
		Matches:              reconciled,
		TeamPageByName:       join.teamPageByName,
		TournamentPageByName: join.tournamentPageByName,
	}
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "snapshot published", "version", version, "matches", len(reconciled))
}

type joinMaps struct {
	teamByPage           map[string]match.Team
	tournamentByPage     map[string]match.Tournament
	teamPageByName       map[string]string
	tournamentPageByName map[string]string
}

func buildJoinMaps(teams []match.Team, tournaments []match.Tournament) joinMaps {
	j := joinMaps{
		teamByPage:           make(map[string]match.Team, len(teams)),
		tournamentByPage:     make(map[string]match.Tournament, len(tournaments)),
		teamPageByName:       make(map[string]string, len(teams)),
		tournamentPageByName: make(map[string]string, len(tournaments)),
	}
	for _, t := range teams {
		j.teamByPage[t.Page] = t
		j.teamPageByName[t.Name] = t.Page
	}
	for _, t := range tournaments {
		j.tournamentByPage[t.Page] = t
		j.tournamentPageByName[t.Name] = t.Page
	}
	return j
}

// enrichAll runs per-match enrichment on a worker pool. A match whose
// enrichment fails is dropped; the rest of the cycle continues.
func (s *RefreshService) enrichAll(ctx context.Context, matches []match.Match, join joinMaps) []match.Match {
	kept := make([]match.Match, len(matches))
	ok := make([]bool, len(matches))

	pool, err := ants.NewPool(s.cfg.MaxWorkers)
	if err != nil {
		// Pool creation only fails on invalid size; fall back to inline.
		s.logger.WarnContext(ctx, "enrichment pool unavailable, running inline", "error", err)
		for i := range matches {
			if m, enrichErr := s.enrichMatch(ctx, matches[i], join); enrichErr == nil {
				kept[i], ok[i] = m, true
			} else {
				s.logger.WarnContext(ctx, "match enrichment failed, match dropped", "error", enrichErr)
			}
		}
		return compact(kept, ok)
	}
	defer pool.Release()

	var workers sync.WaitGroup
	for i := range matches {
		i := i
		workers.Add(1)
		submitErr := pool.Submit(func() {
			defer workers.Done()
			m, enrichErr := s.enrichMatch(ctx, matches[i], join)
			if enrichErr != nil {
				s.logger.WarnContext(ctx, "match enrichment failed, match dropped", "error", enrichErr)
				return
			}
			kept[i], ok[i] = m, true
		})
		if submitErr != nil {
			workers.Done()
			s.logger.WarnContext(ctx, "enrichment task rejected, match dropped", "error", submitErr)
		}
	}
	workers.Wait()

	return compact(kept, ok)
}

func compact(matches []match.Match, ok []bool) []match.Match {
	out := make([]match.Match, 0, len(matches))
	for i, m := range matches {
		if ok[i] {
			out = append(out, m)
		}
	}
	return out
}

func (s *RefreshService) enrichMatch(ctx context.Context, m match.Match, join joinMaps) (match.Match, error) {
	if m.Team1 != nil {
		m.Team1 = s.enrichTeam(ctx, m.Team1, join)
	}
	if m.Team2 != nil {
		m.Team2 = s.enrichTeam(ctx, m.Team2, join)
	}

	if full, found := join.tournamentByPage[m.Tournament.Page]; found {
		name := m.Tournament.Name
		if name == "" {
			name = full.Name
		}
		m.Tournament = full
		m.Tournament.Name = name
	} else {
		s.logger.DebugContext(ctx, "tournament portal row missing", "page", m.Tournament.Page)
	}

	if m.Team1 != nil && m.Team2 != nil && m.StartsWithin(s.now(), s.cfg.StreamLeadWindow) {
		streams, err := s.streams.FindMatchStreams(ctx, m.Team1.Name, m.Team2.Name, m.Tournament.Name)
		if err != nil {
			return match.Match{}, fmt.Errorf("find streams: %w", err)
		}
		m.Streams = streams
	}

	return m, nil
}

func (s *RefreshService) enrichTeam(ctx context.Context, t *match.Team, join joinMaps) *match.Team {
	// Copy before mutating; the fetched match may share team pointers.
	out := *t
	full, found := join.teamByPage[out.Page]
	if !found {
		s.logger.DebugContext(ctx, "team portal row missing", "page", out.Page)
		return &out
	}
	if out.Region == "" {
		out.Region = full.Region
	}
	if out.Icon == "" {
		out.Icon = full.Icon
	}
	if out.Name == "" {
		out.Name = full.Name
	}
	return &out
}
