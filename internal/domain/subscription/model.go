package subscription

import "fmt"

type Kind string

const (
	KindTeam       Kind = "team"
	KindTournament Kind = "tournament"
	KindAll        Kind = "all"
)

// Subscription is one follow rule held by a subscriber. TargetID is the
// followed team or tournament identity and stays empty for KindAll.
type Subscription struct {
	Kind     Kind
	TargetID string
}

func (s Subscription) Validate() error {
	switch s.Kind {
	case KindTeam, KindTournament:
		if s.TargetID == "" {
			return fmt.Errorf("%s subscription needs a target id", s.Kind)
		}
	case KindAll:
		if s.TargetID != "" {
			return fmt.Errorf("all subscription must not carry a target id")
		}
	default:
		return fmt.Errorf("unknown subscription kind %q", s.Kind)
	}

	return nil
}

// Stats summarizes index occupancy for the operator surface.
type Stats struct {
	UniqueSubscribers       int
	ActiveTeamFollows       int
	ActiveTournamentFollows int
	ActiveAllFollows        int
}
