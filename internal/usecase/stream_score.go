package usecase

import (
	"regexp"
	"strings"
)

const (
	tournamentWeight = 0.3
	teamWeight       = 0.6

	wordOverlapFactor = 0.7

	versusBonus       = 0.1
	castedByBonus     = 0.04
	scorePatternBonus = 0.1
	bestOfBonus       = 0.07

	primaryLanguageBonus   = 0.2
	secondaryLanguageBonus = 0.05

	viewersHighBonus = 0.3
	viewersMidBonus  = 0.1
	viewersLowBonus  = 0.05

	viewersHighFloor = 5400
	viewersMidFloor  = 1000
	viewersLowFloor  = 100
)

var (
	scorePatternRe = regexp.MustCompile(`\d\s?[:\-]\s?\d`)
	bestOfRe       = regexp.MustCompile(`bo\d`)
)

type StreamScorerConfig struct {
	PrimaryLanguage   string
	SecondaryLanguage string
}

// StreamScorer rates how likely a live broadcast is to actually show a
// given match, from its title, language and audience size. Pure and
// stateless; safe for concurrent use.
type StreamScorer struct {
	primaryLanguage   string
	secondaryLanguage string
}

func NewStreamScorer(cfg StreamScorerConfig) *StreamScorer {
	primary := strings.ToLower(strings.TrimSpace(cfg.PrimaryLanguage))
	if primary == "" {
		primary = "ru"
	}
	secondary := strings.ToLower(strings.TrimSpace(cfg.SecondaryLanguage))
	if secondary == "" {
		secondary = "en"
	}

	return &StreamScorer{primaryLanguage: primary, secondaryLanguage: secondary}
}

// Score returns the relevance of a stream for the (team1, team2,
// tournament) triple. Reruns always score zero, as does a title mentioning
// none of the three phrases.
func (s *StreamScorer) Score(title, language string, viewers int, team1, team2, tournament string) float64 {
	title = strings.ToLower(title)
	if strings.Contains(title, "rerun") {
		return 0
	}

	tournamentScore := phraseScore(title, strings.ToLower(tournament))
	team1Score := phraseScore(title, strings.ToLower(team1))
	team2Score := phraseScore(title, strings.ToLower(team2))
	if tournamentScore == 0 && team1Score == 0 && team2Score == 0 {
		return 0
	}

	score := tournamentWeight*tournamentScore + teamWeight*team1Score + teamWeight*team2Score

	if strings.Contains(title, " vs ") {
		score += versusBonus
	}
	if strings.Contains(title, " by ") {
		score += castedByBonus
	}
	if scorePatternRe.MatchString(title) {
		score += scorePatternBonus
	}
	if bestOfRe.MatchString(title) {
		score += bestOfBonus
	}

	switch strings.ToLower(language) {
	case s.primaryLanguage:
		score += primaryLanguageBonus
	case s.secondaryLanguage:
		score += secondaryLanguageBonus
	}

	switch {
	case viewers > viewersHighFloor:
		score += viewersHighBonus
	case viewers > viewersMidFloor:
		score += viewersMidBonus
	case viewers > viewersLowFloor:
		score += viewersLowBonus
	}

	return score
}

// phraseScore is 1 when the whole phrase appears in the title, a damped
// word-overlap fraction when only some of its words do, and 0 otherwise.
func phraseScore(title, phrase string) float64 {
	if phrase == "" {
		return 0
	}
	if strings.Contains(title, phrase) {
		return 1
	}

	words := strings.Fields(phrase)
	if len(words) == 0 {
		return 0
	}

	matched := 0
	for _, word := range words {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(word) + `\b`)
		if re.MatchString(title) {
			matched++
		}
	}
	if matched == 0 {
		return 0
	}

	return float64(matched) / float64(len(words)) * wordOverlapFactor
}
