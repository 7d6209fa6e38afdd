package match

import "time"

// Team is a competing side as shown on its source page. The source-page
// path is the stable identity; everything else is display metadata.
type Team struct {
	Name   string
	Region string // empty when the teams portal did not resolve it
	Page   string
	Icon   string
}

// Tournament carries the event reference embedded in a match row plus the
// metadata joined in from the tournaments portal. Joined fields stay zero
// when the portal row was missing.
type Tournament struct {
	Name         string
	Page         string
	Icon         string
	Tier         string
	Dates        string
	PrizePoolUSD *int
	TeamsCount   *int
	Location     string
}

// Score is the current map/game score of a running series.
type Score struct {
	Team1 int
	Team2 int
}

// StreamInfo describes one live broadcast considered relevant to a match.
// Sourced from the streaming platform on each refresh, never persisted.
type StreamInfo struct {
	ChannelLogin string
	ChannelName  string
	Thumbnail    string // templated URL with {width}x{height} placeholder
	Title        string
	Language     string
	Viewers      int
}

// Match is one upcoming or running series. ID is assigned by the
// reconciler and stays stable across refreshes for the same real-world
// match; it is unique within a snapshot.
type Match struct {
	ID         int64
	Team1      *Team // nil means the slot is still to be determined
	Team2      *Team
	Tournament Tournament
	Score      *Score     // present only for games in progress
	Format     string     // e.g. "Bo3", empty when unknown
	StartTime  *time.Time // nil means the game is in progress
	Streams    []StreamInfo
}

// IsLive reports whether the match is already in progress.
func (m Match) IsLive() bool {
	return m.StartTime == nil
}

// StartsWithin reports whether the match is live or starts inside the lead
// window measured from now.
func (m Match) StartsWithin(now time.Time, lead time.Duration) bool {
	if m.StartTime == nil {
		return true
	}
	return m.StartTime.Add(-lead).Before(now)
}

// Descriptor reduces a match to the identities the subscription index
// keys on. An undetermined team slot yields an empty page.
func (m Match) Descriptor() Descriptor {
	d := Descriptor{TournamentPage: m.Tournament.Page}
	if m.Team1 != nil {
		d.Team1Page = m.Team1.Page
	}
	if m.Team2 != nil {
		d.Team2Page = m.Team2.Page
	}
	return d
}

// Descriptor identifies the parties of a match for fan-out queries.
type Descriptor struct {
	Team1Page      string
	Team2Page      string
	TournamentPage string
}
