package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"

	"github.com/dotapulse/matches-service/internal/domain/match"
	"github.com/dotapulse/matches-service/internal/domain/subscription"
	"github.com/dotapulse/matches-service/internal/platform/logging"
	"github.com/dotapulse/matches-service/internal/usecase"
)

// SnapshotSource is the read surface of the refresh scheduler.
type SnapshotSource interface {
	CurrentSnapshot() match.Snapshot
	CurrentVersion() int64
	State() usecase.SchedulerState
}

// ThumbnailFetcher downloads a stream preview image from its templated URL.
// nil disables the preview endpoint.
type ThumbnailFetcher interface {
	FetchThumbnail(template string, width, height int) ([]byte, error)
}

type Handler struct {
	snapshots     SnapshotSource
	subscriptions *usecase.SubscriptionService
	thumbnails    ThumbnailFetcher
	logger        *logging.Logger
	validator     *validator.Validate
}

func NewHandler(snapshots SnapshotSource, subscriptions *usecase.SubscriptionService, thumbnails ThumbnailFetcher, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}

	return &Handler{
		snapshots:     snapshots,
		subscriptions: subscriptions,
		thumbnails:    thumbnails,
		logger:        logger,
		validator:     validator.New(),
	}
}

func (h *Handler) validateRequest(ctx context.Context, payload any) error {
	ctx, span := startSpan(ctx, "httpapi.Handler.validateRequest")
	defer span.End()

	if err := h.validator.StructCtx(ctx, payload); err != nil {
		return fmt.Errorf("%w: validation failed: %v", usecase.ErrInvalidInput, err)
	}

	return nil
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	writeSuccess(ctx, w, http.StatusOK, map[string]any{
		"status":          "ok",
		"scheduler_state": string(h.snapshots.State()),
		"version":         h.snapshots.CurrentVersion(),
	})
}

type teamResponse struct {
	Name   string `json:"name"`
	Region string `json:"region,omitempty"`
	Page   string `json:"page"`
	Icon   string `json:"icon,omitempty"`
}

type tournamentResponse struct {
	Name         string `json:"name"`
	Page         string `json:"page"`
	Icon         string `json:"icon,omitempty"`
	Tier         string `json:"tier,omitempty"`
	Dates        string `json:"dates,omitempty"`
	PrizePoolUSD *int   `json:"prize_pool_usd,omitempty"`
	TeamsCount   *int   `json:"teams_count,omitempty"`
	Location     string `json:"location,omitempty"`
}

type scoreResponse struct {
	Team1 int `json:"team1"`
	Team2 int `json:"team2"`
}

type streamResponse struct {
	ChannelLogin string `json:"channel_login"`
	ChannelName  string `json:"channel_name"`
	Thumbnail    string `json:"thumbnail,omitempty"`
	Title        string `json:"title"`
	Language     string `json:"language"`
	Viewers      int    `json:"viewers"`
}

type matchResponse struct {
	ID         int64              `json:"id"`
	Team1      *teamResponse      `json:"team1,omitempty"`
	Team2      *teamResponse      `json:"team2,omitempty"`
	Tournament tournamentResponse `json:"tournament"`
	Score      *scoreResponse     `json:"score,omitempty"`
	Format     string             `json:"format,omitempty"`
	StartTime  *time.Time         `json:"start_time,omitempty"`
	Live       bool               `json:"live"`
	Streams    []streamResponse   `json:"streams"`
}

type snapshotResponse struct {
	Version int64           `json:"version"`
	Matches []matchResponse `json:"matches"`
}

func (h *Handler) ListMatches(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListMatches")
	defer span.End()

	snapshot := h.snapshots.CurrentSnapshot()

	matches := make([]matchResponse, 0, len(snapshot.Matches))
	for _, m := range snapshot.Matches {
		matches = append(matches, toMatchResponse(m))
	}

	writeSuccess(ctx, w, http.StatusOK, snapshotResponse{
		Version: snapshot.Version,
		Matches: matches,
	})
}

func (h *Handler) GetVersion(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetVersion")
	defer span.End()

	writeSuccess(ctx, w, http.StatusOK, map[string]int64{"version": h.snapshots.CurrentVersion()})
}

func (h *Handler) ListTeams(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListTeams")
	defer span.End()

	writeSuccess(ctx, w, http.StatusOK, map[string]any{
		"pages_by_name": h.snapshots.CurrentSnapshot().TeamPageByName,
	})
}

func (h *Handler) ListTournaments(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListTournaments")
	defer span.End()

	writeSuccess(ctx, w, http.StatusOK, map[string]any{
		"pages_by_name": h.snapshots.CurrentSnapshot().TournamentPageByName,
	})
}

func (h *Handler) ListMatchRecipients(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListMatchRecipients")
	defer span.End()

	matchID, err := strconv.ParseInt(r.PathValue("matchID"), 10, 64)
	if err != nil {
		writeError(ctx, w, fmt.Errorf("%w: invalid match id: %v", usecase.ErrInvalidInput, err))
		return
	}

	recipients, err := h.subscriptions.RecipientsForMatch(ctx, matchID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, map[string]any{
		"match_id":   matchID,
		"recipients": recipients,
	})
}

type subscriptionResponse struct {
	Kind     string `json:"kind"`
	TargetID string `json:"target_id,omitempty"`
}

func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListSubscriptions")
	defer span.End()

	subs, err := h.subscriptions.List(ctx, r.PathValue("subscriberID"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	out := make([]subscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		out = append(out, subscriptionResponse{Kind: string(sub.Kind), TargetID: sub.TargetID})
	}

	writeSuccess(ctx, w, http.StatusOK, map[string]any{"subscriptions": out})
}

type addSubscriptionRequest struct {
	Kind     string `json:"kind" validate:"required,oneof=team tournament all"`
	TargetID string `json:"target_id" validate:"omitempty,max=256"`
}

func (h *Handler) AddSubscription(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.AddSubscription")
	defer span.End()

	var req addSubscriptionRequest
	decoder := sonic.ConfigDefault.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(ctx, w, fmt.Errorf("%w: invalid JSON payload: %v", usecase.ErrInvalidInput, err))
		return
	}
	if err := h.validateRequest(ctx, req); err != nil {
		writeError(ctx, w, err)
		return
	}

	sub := subscription.Subscription{Kind: subscription.Kind(req.Kind), TargetID: strings.TrimSpace(req.TargetID)}
	if err := h.subscriptions.Subscribe(ctx, r.PathValue("subscriberID"), sub); err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusCreated, subscriptionResponse{Kind: req.Kind, TargetID: sub.TargetID})
}

func (h *Handler) RemoveSubscription(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RemoveSubscription")
	defer span.End()

	sub := subscription.Subscription{
		Kind:     subscription.Kind(r.PathValue("kind")),
		TargetID: strings.TrimSpace(r.URL.Query().Get("target")),
	}
	if err := h.subscriptions.Unsubscribe(ctx, r.PathValue("subscriberID"), sub); err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *Handler) ClearSubscriptions(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ClearSubscriptions")
	defer span.End()

	if err := h.subscriptions.Clear(ctx, r.PathValue("subscriberID")); err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, map[string]string{"status": "cleared"})
}

const (
	defaultThumbnailWidth  = 640
	defaultThumbnailHeight = 360
)

// GetStreamPreview serves the current preview image of one of a match's
// relevant broadcasts. Unlike the rest of the API it answers with raw
// image bytes, not the JSON envelope.
func (h *Handler) GetStreamPreview(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetStreamPreview")
	defer span.End()

	if h.thumbnails == nil {
		writeError(ctx, w, fmt.Errorf("%w: stream previews are not configured", usecase.ErrDependencyUnavailable))
		return
	}

	matchID, err := strconv.ParseInt(r.PathValue("matchID"), 10, 64)
	if err != nil {
		writeError(ctx, w, fmt.Errorf("%w: invalid match id: %v", usecase.ErrInvalidInput, err))
		return
	}

	m, ok := h.snapshots.CurrentSnapshot().FindMatch(matchID)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: match %d", usecase.ErrNotFound, matchID))
		return
	}

	login := r.PathValue("channelLogin")
	var template string
	for _, s := range m.Streams {
		if s.ChannelLogin == login {
			template = s.Thumbnail
			break
		}
	}
	if template == "" {
		writeError(ctx, w, fmt.Errorf("%w: stream %q for match %d", usecase.ErrNotFound, login, matchID))
		return
	}

	width := queryDimension(r, "width", defaultThumbnailWidth)
	height := queryDimension(r, "height", defaultThumbnailHeight)

	body, err := h.thumbnails.FetchThumbnail(template, width, height)
	if err != nil {
		h.logger.WarnContext(ctx, "thumbnail fetch failed", "match_id", matchID, "channel", login, "error", err)
		writeError(ctx, w, fmt.Errorf("%w: thumbnail fetch failed", usecase.ErrDependencyUnavailable))
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(body))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func queryDimension(r *http.Request, key string, fallback int) int {
	value, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || value < 1 || value > 3840 {
		return fallback
	}
	return value
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetStats")
	defer span.End()

	stats, err := h.subscriptions.Stats(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, map[string]int{
		"unique_subscribers":        stats.UniqueSubscribers,
		"active_team_follows":       stats.ActiveTeamFollows,
		"active_tournament_follows": stats.ActiveTournamentFollows,
		"active_all_follows":        stats.ActiveAllFollows,
	})
}

func toMatchResponse(m match.Match) matchResponse {
	out := matchResponse{
		ID:         m.ID,
		Format:     m.Format,
		StartTime:  m.StartTime,
		Live:       m.IsLive(),
		Streams:    make([]streamResponse, 0, len(m.Streams)),
		Tournament: toTournamentResponse(m.Tournament),
	}
	if m.Team1 != nil {
		out.Team1 = toTeamResponse(*m.Team1)
	}
	if m.Team2 != nil {
		out.Team2 = toTeamResponse(*m.Team2)
	}
	if m.Score != nil {
		out.Score = &scoreResponse{Team1: m.Score.Team1, Team2: m.Score.Team2}
	}
	for _, s := range m.Streams {
		out.Streams = append(out.Streams, streamResponse{
			ChannelLogin: s.ChannelLogin,
			ChannelName:  s.ChannelName,
			Thumbnail:    s.Thumbnail,
			Title:        s.Title,
			Language:     s.Language,
			Viewers:      s.Viewers,
		})
	}
	return out
}

func toTeamResponse(t match.Team) *teamResponse {
	return &teamResponse{Name: t.Name, Region: t.Region, Page: t.Page, Icon: t.Icon}
}

func toTournamentResponse(t match.Tournament) tournamentResponse {
	return tournamentResponse{
		Name:         t.Name,
		Page:         t.Page,
		Icon:         t.Icon,
		Tier:         t.Tier,
		Dates:        t.Dates,
		PrizePoolUSD: t.PrizePoolUSD,
		TeamsCount:   t.TeamsCount,
		Location:     t.Location,
	}
}
