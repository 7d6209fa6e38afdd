package liquipedia

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/dotapulse/matches-service/internal/domain/match"
)

const tbdHighlightClass = "TBD"

// WikiParser decodes the MediaWiki-rendered portal pages. Selectors follow
// the markup liquipedia serves today; a layout change shows up as decode
// errors, not as silently empty results.
type WikiParser struct{}

func NewWikiParser() *WikiParser {
	return &WikiParser{}
}

// DetectRedirect reports whether the HTML is a redirect stub and returns
// the escaped target page name.
func (p *WikiParser) DetectRedirect(html string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false
	}
	if doc.Find("ul.redirectText").Length() == 0 {
		return "", false
	}

	target := strings.TrimSpace(doc.Find("a").First().Text())
	if target == "" {
		return "", false
	}
	return url.PathEscape(target), true
}

// ParseMatches decodes the upcoming-and-ongoing matches page. A malformed
// match table yields a row error and is skipped.
func (p *WikiParser) ParseMatches(html string) ([]match.Match, []error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, []error{fmt.Errorf("parse matches html: %w", err)}
	}

	area := doc.Find(`div[data-toggle-area-content="1"]`).First()
	if area.Length() == 0 {
		return nil, []error{fmt.Errorf("matches list container not found")}
	}

	var matches []match.Match
	var rowErrs []error

	area.Find("table").Each(func(i int, table *goquery.Selection) {
		m, err := parseMatchTable(table)
		if err != nil {
			rowErrs = append(rowErrs, fmt.Errorf("match table %d: %w", i, err))
			return
		}
		matches = append(matches, m)
	})

	return matches, rowErrs
}

func parseMatchTable(table *goquery.Selection) (match.Match, error) {
	rows := table.Find("tr")
	if rows.Length() < 2 {
		return match.Match{}, fmt.Errorf("expected versus and info rows, got %d", rows.Length())
	}
	vsRow := rows.Eq(0)
	infoRow := rows.Eq(1)

	cells := vsRow.Find("td")
	if cells.Length() < 3 {
		return match.Match{}, fmt.Errorf("expected 3 versus cells, got %d", cells.Length())
	}

	team1 := parseTeamCell(cells.Eq(0))
	team2 := parseTeamCell(cells.Eq(2))
	score := parseScoreCell(cells.Eq(1))
	format := strings.TrimSpace(cells.Eq(1).Find("abbr").First().Text())

	tournamentLink := infoRow.Find("td div a").First()
	if tournamentLink.Length() == 0 {
		return match.Match{}, fmt.Errorf("tournament link not found")
	}
	tournament := match.Tournament{
		Name: tournamentLink.AttrOr("title", ""),
		Page: tournamentLink.AttrOr("href", ""),
		Icon: infoRow.Find("td div img").First().AttrOr("src", ""),
	}

	m := match.Match{
		Team1:      team1,
		Team2:      team2,
		Tournament: tournament,
		Score:      score,
		Format:     format,
	}

	// A running series shows its score; an upcoming one its countdown.
	if score == nil {
		raw := infoRow.Find("span[data-timestamp]").First().AttrOr("data-timestamp", "")
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return match.Match{}, fmt.Errorf("parse start timestamp %q: %w", raw, err)
		}
		start := time.Unix(ts, 0).UTC()
		m.StartTime = &start
	}

	return m, nil
}

func parseTeamCell(cell *goquery.Selection) *match.Team {
	name := cell.Find("span").First().AttrOr("data-highlightingclass", "")
	if name == "" || name == tbdHighlightClass {
		return nil
	}
	return &match.Team{
		Name: name,
		Page: cell.Find("a").First().AttrOr("href", ""),
		Icon: cell.Find("img").First().AttrOr("src", ""),
	}
}

func parseScoreCell(cell *goquery.Selection) *match.Score {
	text := strings.TrimSpace(cell.Find("div").First().Text())
	if text == "" || strings.Contains(text, "vs") || !strings.Contains(text, ":") {
		return nil
	}

	parts := strings.SplitN(text, ":", 2)
	team1, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	team2, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return nil
	}
	return &match.Score{Team1: team1, Team2: team2}
}

// ParseTeams decodes the notable-teams portal, grouped by region panels.
func (p *WikiParser) ParseTeams(html string) ([]match.Team, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse teams html: %w", err)
	}

	container := doc.Find("div.lp-container-fluid").First()
	if container.Length() == 0 {
		return nil, fmt.Errorf("teams container not found")
	}

	var teams []match.Team
	container.Find("div.panel-box").Each(func(_ int, panel *goquery.Selection) {
		region := strings.TrimSpace(panel.Find("div.panel-box-heading").First().Text())

		panel.Find("div.panel-box-body").Children().Each(func(_ int, row *goquery.Selection) {
			icon := row.Find("img").First()
			if icon.Length() == 0 {
				// Known liquipedia glitch: a row without a team icon.
				return
			}

			link := row.Find("span.team-template-text a").First()
			name := strings.TrimSpace(link.Text())
			if name == "" {
				return
			}

			teams = append(teams, match.Team{
				Name:   name,
				Region: region,
				Page:   link.AttrOr("href", ""),
				Icon:   icon.AttrOr("src", ""),
			})
		})
	})

	return teams, nil
}

// ParseTournaments decodes the ongoing-tournaments table of the
// tournaments portal.
func (p *WikiParser) ParseTournaments(html string) ([]match.Tournament, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse tournaments html: %w", err)
	}

	tables := doc.Find("div.table-responsive")
	if tables.Length() < 2 {
		return nil, fmt.Errorf("expected at least 2 tournament tables, got %d", tables.Length())
	}

	var tournaments []match.Tournament
	tables.Eq(1).Find("div.divRow").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("div.divCell")
		if cells.Length() < 6 {
			return
		}

		link := cells.Eq(1).Find("b a").First()
		tournaments = append(tournaments, match.Tournament{
			Name:         strings.TrimSpace(link.Text()),
			Page:         link.AttrOr("href", ""),
			Tier:         strings.TrimSpace(cells.Eq(0).Find("a").First().Text()),
			Dates:        strings.TrimSpace(cells.Eq(2).Text()),
			PrizePoolUSD: parsePrizePool(cells.Eq(3).Text()),
			TeamsCount:   parseTeamsCount(cells.Eq(4).Text()),
			Location:     strings.TrimSpace(strings.ReplaceAll(cells.Eq(5).Text(), " ", " ")),
		})
	})

	return tournaments, nil
}

func parsePrizePool(raw string) *int {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "$") {
		return nil
	}
	text = strings.ReplaceAll(strings.TrimPrefix(text, "$"), ",", "")
	value, err := strconv.Atoi(text)
	if err != nil {
		return nil
	}
	return &value
}

func parseTeamsCount(raw string) *int {
	text := strings.TrimSpace(strings.ReplaceAll(raw, " teams", ""))
	value, err := strconv.Atoi(text)
	if err != nil {
		return nil
	}
	return &value
}
