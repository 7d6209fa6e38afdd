package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/dotapulse/matches-service/internal/domain/match"
	"github.com/dotapulse/matches-service/internal/domain/subscription"
)

type subscriberSet map[string]struct{}

// SubscriptionIndex keeps every follow rule in memory behind one mutex.
// The lock is held only for map updates, never across external calls.
type SubscriptionIndex struct {
	mu           sync.Mutex
	bySubscriber map[string]map[subscription.Subscription]struct{}
	byTeam       map[string]subscriberSet
	byTournament map[string]subscriberSet
	allFollowers subscriberSet
}

func NewSubscriptionIndex() *SubscriptionIndex {
	return &SubscriptionIndex{
		bySubscriber: make(map[string]map[subscription.Subscription]struct{}),
		byTeam:       make(map[string]subscriberSet),
		byTournament: make(map[string]subscriberSet),
		allFollowers: make(subscriberSet),
	}
}

func (i *SubscriptionIndex) Add(_ context.Context, subscriberID string, sub subscription.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	owned := i.bySubscriber[subscriberID]
	if owned == nil {
		owned = make(map[subscription.Subscription]struct{})
		i.bySubscriber[subscriberID] = owned
	}
	if _, exists := owned[sub]; exists {
		return nil
	}
	owned[sub] = struct{}{}

	switch sub.Kind {
	case subscription.KindTeam:
		addToSet(i.byTeam, sub.TargetID, subscriberID)
	case subscription.KindTournament:
		addToSet(i.byTournament, sub.TargetID, subscriberID)
	case subscription.KindAll:
		i.allFollowers[subscriberID] = struct{}{}
	}

	return nil
}

func (i *SubscriptionIndex) Remove(_ context.Context, subscriberID string, sub subscription.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	owned := i.bySubscriber[subscriberID]
	if _, exists := owned[sub]; !exists {
		return nil
	}
	delete(owned, sub)

	i.dropReverse(subscriberID, sub)
	return nil
}

func (i *SubscriptionIndex) RemoveAll(_ context.Context, subscriberID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	for sub := range i.bySubscriber[subscriberID] {
		i.dropReverse(subscriberID, sub)
	}
	delete(i.bySubscriber, subscriberID)
	return nil
}

func (i *SubscriptionIndex) List(_ context.Context, subscriberID string) ([]subscription.Subscription, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	owned := i.bySubscriber[subscriberID]
	out := make([]subscription.Subscription, 0, len(owned))
	for sub := range owned {
		out = append(out, sub)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Kind != out[b].Kind {
			return out[a].Kind < out[b].Kind
		}
		return out[a].TargetID < out[b].TargetID
	})
	return out, nil
}

func (i *SubscriptionIndex) RecipientsFor(_ context.Context, d match.Descriptor) ([]string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	union := make(subscriberSet)
	if d.Team1Page != "" {
		for id := range i.byTeam[d.Team1Page] {
			union[id] = struct{}{}
		}
	}
	if d.Team2Page != "" {
		for id := range i.byTeam[d.Team2Page] {
			union[id] = struct{}{}
		}
	}
	for id := range i.byTournament[d.TournamentPage] {
		union[id] = struct{}{}
	}
	for id := range i.allFollowers {
		union[id] = struct{}{}
	}

	out := make([]string, 0, len(union))
	for id := range union {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (i *SubscriptionIndex) Stats(_ context.Context) (subscription.Stats, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	stats := subscription.Stats{
		UniqueSubscribers: len(i.bySubscriber),
		ActiveAllFollows:  len(i.allFollowers),
	}
	for _, followers := range i.byTeam {
		stats.ActiveTeamFollows += len(followers)
	}
	for _, followers := range i.byTournament {
		stats.ActiveTournamentFollows += len(followers)
	}
	return stats, nil
}

// dropReverse must be called with the mutex held.
func (i *SubscriptionIndex) dropReverse(subscriberID string, sub subscription.Subscription) {
	switch sub.Kind {
	case subscription.KindTeam:
		removeFromSet(i.byTeam, sub.TargetID, subscriberID)
	case subscription.KindTournament:
		removeFromSet(i.byTournament, sub.TargetID, subscriberID)
	case subscription.KindAll:
		delete(i.allFollowers, subscriberID)
	}
}

func addToSet(sets map[string]subscriberSet, key, subscriberID string) {
	set := sets[key]
	if set == nil {
		set = make(subscriberSet)
		sets[key] = set
	}
	set[subscriberID] = struct{}{}
}

func removeFromSet(sets map[string]subscriberSet, key, subscriberID string) {
	set, ok := sets[key]
	if !ok {
		return
	}
	delete(set, subscriberID)
	if len(set) == 0 {
		delete(sets, key)
	}
}
