package liquipedia

import (
	"fmt"

	"github.com/dotapulse/matches-service/internal/domain/match"
)

// Source pages this client knows how to fetch.
const (
	PageMatches     = "Liquipedia:Upcoming_and_ongoing_matches"
	PageTeams       = "Portal:Teams"
	PageTournaments = "Portal:Tournaments"
)

// RequestError reports a non-2xx answer or a structurally unusable payload
// from the source, carrying the status code and raw body for diagnosis.
type RequestError struct {
	StatusCode int
	Body       []byte
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("liquipedia request failed: status=%d body=%s", e.StatusCode, abbreviate(e.Body))
}

// PageContent is the final result of a structured fetch. RedirectTarget is
// set when the source answered with a redirect stub and the fetch was
// re-issued against the target.
type PageContent struct {
	HTML           string
	RedirectTarget string
}

// PageParser turns fetched page HTML into domain entities. All DOM
// handling lives behind this boundary; parse failures for individual
// match rows come back in the error slice so one broken row never sinks
// the rest of the page.
type PageParser interface {
	DetectRedirect(html string) (target string, ok bool)
	ParseMatches(html string) ([]match.Match, []error)
	ParseTeams(html string) ([]match.Team, error)
	ParseTournaments(html string) ([]match.Tournament, error)
}

func abbreviate(body []byte) string {
	const limit = 256
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "..."
}
