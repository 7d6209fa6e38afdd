package match

// Snapshot is the immutable published view of everything currently known.
// It is built by the refresh scheduler, swapped atomically, and read-shared
// by any number of goroutines; neither the matches slice nor the maps may
// be mutated after publication.
type Snapshot struct {
	Version              int64
	Matches              []Match
	TeamPageByName       map[string]string
	TournamentPageByName map[string]string
}

// FindMatch returns the match with the given identity, if present.
func (s Snapshot) FindMatch(id int64) (Match, bool) {
	for _, m := range s.Matches {
		if m.ID == id {
			return m, true
		}
	}
	return Match{}, false
}
