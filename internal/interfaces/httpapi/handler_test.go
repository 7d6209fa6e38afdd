package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sonic "github.com/bytedance/sonic"

	"github.com/dotapulse/matches-service/internal/domain/match"
	"github.com/dotapulse/matches-service/internal/infrastructure/repository/memory"
	"github.com/dotapulse/matches-service/internal/platform/logging"
	"github.com/dotapulse/matches-service/internal/usecase"
)

type stubSnapshotSource struct {
	snapshot match.Snapshot
	state    usecase.SchedulerState
}

func (s *stubSnapshotSource) CurrentSnapshot() match.Snapshot { return s.snapshot }
func (s *stubSnapshotSource) CurrentVersion() int64           { return s.snapshot.Version }
func (s *stubSnapshotSource) State() usecase.SchedulerState   { return s.state }

func testSnapshot() match.Snapshot {
	start := time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)
	return match.Snapshot{
		Version: 3,
		Matches: []match.Match{{
			ID:         7,
			Team1:      &match.Team{Name: "Team Spirit", Page: "/dota2/Team_Spirit", Region: "EEU"},
			Team2:      &match.Team{Name: "PARIVISION", Page: "/dota2/PARIVISION"},
			Tournament: match.Tournament{Name: "DreamLeague", Page: "/dota2/DreamLeague", Tier: "Tier 1"},
			Format:     "Bo3",
			StartTime:  &start,
			Streams: []match.StreamInfo{{
				ChannelLogin: "caster_one",
				ChannelName:  "Caster One",
				Thumbnail:    "https://cdn.example/live-{width}x{height}.jpg",
				Title:        "Team Spirit vs PARIVISION",
				Language:     "ru",
				Viewers:      12000,
			}},
		}},
		TeamPageByName:       map[string]string{"Team Spirit": "/dota2/Team_Spirit"},
		TournamentPageByName: map[string]string{"DreamLeague": "/dota2/DreamLeague"},
	}
}

type stubThumbnailFetcher struct {
	lastTemplate string
	lastWidth    int
	lastHeight   int
	body         []byte
	err          error
}

func (f *stubThumbnailFetcher) FetchThumbnail(template string, width, height int) ([]byte, error) {
	f.lastTemplate = template
	f.lastWidth = width
	f.lastHeight = height
	return f.body, f.err
}

func newTestRouter(t *testing.T) http.Handler {
	return newTestRouterWithThumbnails(t, nil)
}

func newTestRouterWithThumbnails(t *testing.T, thumbnails ThumbnailFetcher) http.Handler {
	t.Helper()

	source := &stubSnapshotSource{snapshot: testSnapshot(), state: usecase.SchedulerStateIdle}
	subsSvc, err := usecase.NewSubscriptionService(memory.NewSubscriptionIndex(), source, logging.NewNop())
	if err != nil {
		t.Fatalf("new subscription service: %v", err)
	}

	handler := NewHandler(source, subsSvc, thumbnails, logging.NewNop())
	return NewRouter(handler, logging.NewNop(), []string{"*"})
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := sonic.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response body: %v", err)
	}
	return body
}

func TestHandler_Healthz(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	data, _ := decodeEnvelope(t, rec)["data"].(map[string]any)
	if data["scheduler_state"] != "idle" {
		t.Fatalf("unexpected scheduler state: %v", data["scheduler_state"])
	}
	if data["version"] != float64(3) {
		t.Fatalf("unexpected version: %v", data["version"])
	}
}

func TestHandler_ListMatches(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/matches", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	data, _ := decodeEnvelope(t, rec)["data"].(map[string]any)
	if data["version"] != float64(3) {
		t.Fatalf("unexpected version: %v", data["version"])
	}
	matches, _ := data["matches"].([]any)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	row, _ := matches[0].(map[string]any)
	if row["id"] != float64(7) || row["format"] != "Bo3" {
		t.Fatalf("unexpected match row: %v", row)
	}
	team1, _ := row["team1"].(map[string]any)
	if team1["region"] != "EEU" {
		t.Fatalf("unexpected team1: %v", team1)
	}
}

func TestHandler_SubscriptionLifecycle(t *testing.T) {
	router := newTestRouter(t)

	body := `{"kind":"team","target_id":"/dota2/Team_Spirit"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/subscribers/chat-1/subscriptions", strings.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/matches/7/recipients", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data, _ := decodeEnvelope(t, rec)["data"].(map[string]any)
	recipients, _ := data["recipients"].([]any)
	if len(recipients) != 1 || recipients[0] != "chat-1" {
		t.Fatalf("unexpected recipients: %v", recipients)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/subscribers/chat-1/subscriptions/team?target=/dota2/Team_Spirit", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/subscribers/chat-1/subscriptions", nil))
	data, _ = decodeEnvelope(t, rec)["data"].(map[string]any)
	subs, _ := data["subscriptions"].([]any)
	if len(subs) != 0 {
		t.Fatalf("expected no subscriptions after removal, got %v", subs)
	}
}

func TestHandler_AddSubscription_RejectsUnknownKind(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/subscribers/chat-1/subscriptions", strings.NewReader(`{"kind":"player"}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	envelope := decodeEnvelope(t, rec)
	errBody, _ := envelope["error"].(map[string]any)
	if errBody["status"] != "INVALID_ARGUMENT" {
		t.Fatalf("unexpected error status: %v", errBody["status"])
	}
}

func TestHandler_ListMatchRecipients_UnknownMatch(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/matches/42/recipients", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_GetStats(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/subscribers/chat-1/subscriptions", strings.NewReader(`{"kind":"all"}`)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data, _ := decodeEnvelope(t, rec)["data"].(map[string]any)
	if data["unique_subscribers"] != float64(1) || data["active_all_follows"] != float64(1) {
		t.Fatalf("unexpected stats: %v", data)
	}
}

func TestHandler_GetStreamPreview(t *testing.T) {
	fetcher := &stubThumbnailFetcher{body: []byte("\xff\xd8\xffjpeg-bytes")}
	router := newTestRouterWithThumbnails(t, fetcher)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/matches/7/streams/caster_one/thumbnail?width=320&height=180", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if fetcher.lastTemplate != "https://cdn.example/live-{width}x{height}.jpg" {
		t.Fatalf("unexpected template: %q", fetcher.lastTemplate)
	}
	if fetcher.lastWidth != 320 || fetcher.lastHeight != 180 {
		t.Fatalf("unexpected dimensions: %dx%d", fetcher.lastWidth, fetcher.lastHeight)
	}
	if !strings.Contains(rec.Body.String(), "jpeg-bytes") {
		t.Fatalf("unexpected body: %q", rec.Body.String())
	}
}

func TestHandler_GetStreamPreview_UnknownChannel(t *testing.T) {
	router := newTestRouterWithThumbnails(t, &stubThumbnailFetcher{body: []byte("x")})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/matches/7/streams/nobody/thumbnail", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_GetStreamPreview_NotConfigured(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/matches/7/streams/caster_one/thumbnail", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
