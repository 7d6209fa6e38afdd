package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/valyala/fasthttp"

	"github.com/dotapulse/matches-service/external/twitch"
	"github.com/dotapulse/matches-service/internal/domain/match"
	"github.com/dotapulse/matches-service/internal/platform/logging"
	"github.com/dotapulse/matches-service/internal/usecase"
)

// streamThumbnails serves preview downloads over a shared CDN client.
type streamThumbnails struct {
	fetcher *fasthttp.Client
}

func newStreamThumbnails() *streamThumbnails {
	return &streamThumbnails{fetcher: &fasthttp.Client{}}
}

func (s *streamThumbnails) FetchThumbnail(template string, width, height int) ([]byte, error) {
	return twitch.FetchThumbnail(s.fetcher, template, width, height)
}

// twitchStreamProvider adapts the Helix client to the matcher's provider
// contract. The matcher hands over the configured game name; the numeric
// id is resolved once and cached for the process lifetime.
type twitchStreamProvider struct {
	client *twitch.Client

	mu     sync.Mutex
	gameID string
}

func newTwitchStreamProvider(client *twitch.Client) *twitchStreamProvider {
	return &twitchStreamProvider{client: client}
}

func (p *twitchStreamProvider) ListLiveStreams(ctx context.Context, gameName string) ([]usecase.LiveStream, error) {
	gameID, err := p.resolveGameID(ctx, gameName)
	if err != nil {
		return nil, err
	}

	streams, err := p.client.ListLiveStreams(ctx, gameID)
	if err != nil {
		return nil, err
	}

	out := make([]usecase.LiveStream, 0, len(streams))
	for _, s := range streams {
		out = append(out, usecase.LiveStream{
			ChannelLogin: s.UserLogin,
			ChannelName:  s.UserName,
			Title:        s.Title,
			Language:     s.Language,
			Viewers:      s.ViewerCount,
			ThumbnailURL: s.ThumbnailURL,
		})
	}

	return out, nil
}

func (p *twitchStreamProvider) resolveGameID(ctx context.Context, gameName string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.gameID != "" {
		return p.gameID, nil
	}

	gameID, err := p.client.ResolveGameID(ctx, gameName)
	if err != nil {
		return "", fmt.Errorf("resolve game id for %q: %w", gameName, err)
	}
	p.gameID = gameID

	return gameID, nil
}

// noopStreamProvider serves deployments without streaming credentials.
type noopStreamProvider struct{}

func (noopStreamProvider) ListLiveStreams(context.Context, string) ([]usecase.LiveStream, error) {
	return nil, nil
}

// loggingReminderSink is the default reminder delivery: it only records
// that a reminder fired. Real deployments plug a messenger sink through
// Options.
type loggingReminderSink struct {
	logger *logging.Logger
}

func (s loggingReminderSink) Deliver(_ context.Context, subscriberID string, m match.Match) error {
	s.logger.Info("match reminder",
		"subscriber_id", subscriberID,
		"match_id", m.ID,
		"tournament", m.Tournament.Name,
	)

	return nil
}
