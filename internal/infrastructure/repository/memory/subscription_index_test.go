package memory

import (
	"reflect"
	"testing"

	"github.com/dotapulse/matches-service/internal/domain/match"
	"github.com/dotapulse/matches-service/internal/domain/subscription"
)

func TestSubscriptionIndex_AddIsIdempotent(t *testing.T) {
	index := NewSubscriptionIndex()
	ctx := t.Context()
	sub := subscription.Subscription{Kind: subscription.KindTeam, TargetID: "/dota2/Team_Spirit"}

	if err := index.Add(ctx, "chat-1", sub); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := index.Add(ctx, "chat-1", sub); err != nil {
		t.Fatalf("second add: %v", err)
	}

	subs, err := index.List(ctx, "chat-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("expected 1 subscription after duplicate add, got %d", len(subs))
	}

	stats, err := index.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.ActiveTeamFollows != 1 || stats.UniqueSubscribers != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSubscriptionIndex_AddRejectsInvalid(t *testing.T) {
	index := NewSubscriptionIndex()

	if err := index.Add(t.Context(), "chat-1", subscription.Subscription{Kind: subscription.KindTeam}); err == nil {
		t.Fatal("expected error for team subscription without target")
	}
	if err := index.Add(t.Context(), "chat-1", subscription.Subscription{Kind: subscription.KindAll, TargetID: "x"}); err == nil {
		t.Fatal("expected error for all subscription with target")
	}
}

func TestSubscriptionIndex_RecipientsForUnionsAllKinds(t *testing.T) {
	index := NewSubscriptionIndex()
	ctx := t.Context()

	mustAdd(t, index, "team-fan", subscription.Subscription{Kind: subscription.KindTeam, TargetID: "/dota2/Team_Spirit"})
	mustAdd(t, index, "rival-fan", subscription.Subscription{Kind: subscription.KindTeam, TargetID: "/dota2/BetBoom_Team"})
	mustAdd(t, index, "event-fan", subscription.Subscription{Kind: subscription.KindTournament, TargetID: "/dota2/The_International/2026"})
	mustAdd(t, index, "everything", subscription.Subscription{Kind: subscription.KindAll})
	mustAdd(t, index, "bystander", subscription.Subscription{Kind: subscription.KindTeam, TargetID: "/dota2/Other"})

	got, err := index.RecipientsFor(ctx, match.Descriptor{
		Team1Page:      "/dota2/Team_Spirit",
		Team2Page:      "/dota2/BetBoom_Team",
		TournamentPage: "/dota2/The_International/2026",
	})
	if err != nil {
		t.Fatalf("recipients: %v", err)
	}

	want := []string{"event-fan", "everything", "rival-fan", "team-fan"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected recipients: got %v, want %v", got, want)
	}
}

func TestSubscriptionIndex_RecipientsForSkipsUndeterminedSlots(t *testing.T) {
	index := NewSubscriptionIndex()

	// A follow keyed on the empty page must never match a TBD slot.
	mustAdd(t, index, "team-fan", subscription.Subscription{Kind: subscription.KindTeam, TargetID: "/dota2/Team_Spirit"})

	got, err := index.RecipientsFor(t.Context(), match.Descriptor{TournamentPage: "/dota2/Minor_Cup"})
	if err != nil {
		t.Fatalf("recipients: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no recipients, got %v", got)
	}
}

func TestSubscriptionIndex_RemoveDropsFanOut(t *testing.T) {
	index := NewSubscriptionIndex()
	ctx := t.Context()
	sub := subscription.Subscription{Kind: subscription.KindTournament, TargetID: "/dota2/The_International/2026"}

	mustAdd(t, index, "chat-1", sub)
	if err := index.Remove(ctx, "chat-1", sub); err != nil {
		t.Fatalf("remove: %v", err)
	}

	got, err := index.RecipientsFor(ctx, match.Descriptor{TournamentPage: sub.TargetID})
	if err != nil {
		t.Fatalf("recipients: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no recipients after removal, got %v", got)
	}

	// Removing a rule that was never added stays silent.
	if err := index.Remove(ctx, "chat-2", sub); err != nil {
		t.Fatalf("remove of absent rule: %v", err)
	}
}

func TestSubscriptionIndex_RemoveAll(t *testing.T) {
	index := NewSubscriptionIndex()
	ctx := t.Context()

	mustAdd(t, index, "chat-1", subscription.Subscription{Kind: subscription.KindTeam, TargetID: "/dota2/Team_Spirit"})
	mustAdd(t, index, "chat-1", subscription.Subscription{Kind: subscription.KindAll})
	mustAdd(t, index, "chat-2", subscription.Subscription{Kind: subscription.KindAll})

	if err := index.RemoveAll(ctx, "chat-1"); err != nil {
		t.Fatalf("remove all: %v", err)
	}

	subs, err := index.List(ctx, "chat-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("expected empty list, got %v", subs)
	}

	stats, err := index.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.UniqueSubscribers != 1 || stats.ActiveAllFollows != 1 {
		t.Fatalf("unexpected stats after wipe: %+v", stats)
	}
}

func mustAdd(t *testing.T, index *SubscriptionIndex, subscriberID string, sub subscription.Subscription) {
	t.Helper()
	if err := index.Add(t.Context(), subscriberID, sub); err != nil {
		t.Fatalf("add %v for %s: %v", sub, subscriberID, err)
	}
}
