package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dotapulse/matches-service/internal/platform/logging"
)

type stubStreamProvider struct {
	streams []LiveStream
	err     error
	calls   int
}

func (p *stubStreamProvider) ListLiveStreams(_ context.Context, _ string) ([]LiveStream, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.streams, nil
}

func newTestMatcher(t *testing.T, provider StreamProvider, cfg StreamMatcherConfig) *StreamMatcher {
	t.Helper()
	matcher, err := NewStreamMatcher(provider, NewStreamScorer(StreamScorerConfig{}), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("new stream matcher: %v", err)
	}
	return matcher
}

func TestStreamMatcher_FindMatchStreams_EmptyNameShortCircuits(t *testing.T) {
	provider := &stubStreamProvider{}
	matcher := newTestMatcher(t, provider, StreamMatcherConfig{})

	streams, err := matcher.FindMatchStreams(t.Context(), "Team Spirit", "", "DreamLeague")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(streams) != 0 {
		t.Fatalf("expected no streams, got %d", len(streams))
	}
	if provider.calls != 0 {
		t.Fatalf("platform must not be queried for an undetermined team, got %d calls", provider.calls)
	}
}

func TestStreamMatcher_FindMatchStreams_RanksAndTruncates(t *testing.T) {
	provider := &stubStreamProvider{streams: []LiveStream{
		{ChannelLogin: "weak", Title: "spirit scrims", Language: "de", Viewers: 10},
		{ChannelLogin: "main", Title: "Team Spirit vs PARIVISION bo3", Language: "ru", Viewers: 9000},
		{ChannelLogin: "second", Title: "Team Spirit vs PARIVISION", Language: "en", Viewers: 2000},
		{ChannelLogin: "rerun", Title: "rerun Team Spirit vs PARIVISION", Language: "ru", Viewers: 9000},
	}}
	matcher := newTestMatcher(t, provider, StreamMatcherConfig{MaxResults: 2})

	streams, err := matcher.FindMatchStreams(t.Context(), "Team Spirit", "PARIVISION", "DreamLeague")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(streams) != 2 {
		t.Fatalf("expected 2 streams, got %d", len(streams))
	}
	if streams[0].ChannelLogin != "main" || streams[1].ChannelLogin != "second" {
		t.Fatalf("unexpected ranking: %s, %s", streams[0].ChannelLogin, streams[1].ChannelLogin)
	}
}

func TestStreamMatcher_CacheReusedWithinInterval(t *testing.T) {
	provider := &stubStreamProvider{streams: []LiveStream{
		{ChannelLogin: "main", Title: "Team Spirit vs PARIVISION", Language: "ru", Viewers: 9000},
	}}
	matcher := newTestMatcher(t, provider, StreamMatcherConfig{RefreshInterval: 100 * time.Second})

	clock := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	matcher.now = func() time.Time { return clock }

	for range 3 {
		if _, err := matcher.FindMatchStreams(t.Context(), "Team Spirit", "PARIVISION", "DreamLeague"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if provider.calls != 1 {
		t.Fatalf("expected a single platform call inside the interval, got %d", provider.calls)
	}

	clock = clock.Add(101 * time.Second)
	if _, err := matcher.FindMatchStreams(t.Context(), "Team Spirit", "PARIVISION", "DreamLeague"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.calls != 2 {
		t.Fatalf("expected a reload after the interval elapsed, got %d calls", provider.calls)
	}
}

type slowStreamProvider struct {
	streams []LiveStream
	delay   time.Duration
	calls   atomic.Int32
}

func (p *slowStreamProvider) ListLiveStreams(_ context.Context, _ string) ([]LiveStream, error) {
	p.calls.Add(1)
	time.Sleep(p.delay)
	return p.streams, nil
}

func TestStreamMatcher_ConcurrentColdLookupsShareOneReload(t *testing.T) {
	provider := &slowStreamProvider{
		streams: []LiveStream{{ChannelLogin: "main", Title: "Team Spirit vs PARIVISION", Language: "ru", Viewers: 9000}},
		delay:   20 * time.Millisecond,
	}
	matcher := newTestMatcher(t, provider, StreamMatcherConfig{})

	const workers = 8
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			<-start
			streams, err := matcher.FindMatchStreams(context.Background(), "Team Spirit", "PARIVISION", "DreamLeague")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if len(streams) != 1 {
				t.Errorf("expected 1 stream, got %d", len(streams))
			}
		}()
	}

	close(start)
	wg.Wait()

	if got := provider.calls.Load(); got != 1 {
		t.Fatalf("cold cache triggered %d platform listings, want 1", got)
	}
}

func TestStreamMatcher_ReloadFailurePropagates(t *testing.T) {
	provider := &stubStreamProvider{err: errors.New("platform down")}
	matcher := newTestMatcher(t, provider, StreamMatcherConfig{})

	_, err := matcher.FindMatchStreams(t.Context(), "Team Spirit", "PARIVISION", "DreamLeague")
	if err == nil {
		t.Fatal("expected reload failure to propagate")
	}
}
