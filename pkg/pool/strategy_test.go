package pool

import (
	"testing"

	"keywheel-hq/keywheel/pkg/credential"
	"keywheel-hq/keywheel/pkg/pool/connections"
	"keywheel-hq/keywheel/pkg/settings"
)

func creds(ids ...string) []*credential.Credential {
	out := make([]*credential.Credential, len(ids))
	for i, id := range ids {
		out[i] = &credential.Credential{ID: id, IsActive: true}
	}
	return out
}

func TestRoundRobinSelect(t *testing.T) {
	all := creds("a", "b", "c")

	tests := []struct {
		name       string
		candidates []*credential.Credential
		lastID     string
		want       string
	}{
		{"no cursor picks first", all, "", "a"},
		{"advances past last", all, "a", "b"},
		{"wraps around", all, "c", "a"},
		{"skips ineligible neighbor", []*credential.Credential{all[0], all[2]}, "a", "c"},
		{"anchor survives missing last", []*credential.Credential{all[0], all[2]}, "b", "c"},
		{"single candidate", []*credential.Credential{all[1]}, "b", "b"},
	}

	s := &RoundRobinStrategy{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Select(Selection{All: all, Candidates: tt.candidates, LastID: tt.lastID})
			if got.ID != tt.want {
				t.Errorf("Select = %q, want %q", got.ID, tt.want)
			}
		})
	}
}

func TestRandomSelectStaysInCandidates(t *testing.T) {
	all := creds("a", "b", "c", "d")
	candidates := []*credential.Credential{all[1], all[3]}

	s := &RandomStrategy{}
	for i := 0; i < 50; i++ {
		got := s.Select(Selection{All: all, Candidates: candidates})
		if got.ID != "b" && got.ID != "d" {
			t.Fatalf("Select returned non-candidate %q", got.ID)
		}
	}
}

func TestLeastConnectionsSelect(t *testing.T) {
	all := creds("a", "b", "c")
	tracker := connections.NewTracker()
	tracker.Increment("a")
	tracker.Increment("a")
	tracker.Increment("c")

	s := &LeastConnectionsStrategy{Tracker: tracker}

	got := s.Select(Selection{All: all, Candidates: all})
	if got.ID != "b" {
		t.Errorf("Select = %q, want b (zero connections)", got.ID)
	}
}

func TestLeastConnectionsTieBreaksRoundRobin(t *testing.T) {
	all := creds("a", "b", "c")
	tracker := connections.NewTracker()

	s := &LeastConnectionsStrategy{Tracker: tracker}

	got := s.Select(Selection{All: all, Candidates: all, LastID: "a"})
	if got.ID != "b" {
		t.Errorf("tie break after a = %q, want b", got.ID)
	}
	got = s.Select(Selection{All: all, Candidates: all, LastID: "c"})
	if got.ID != "a" {
		t.Errorf("tie break after c = %q, want a", got.ID)
	}
}

func TestNewStrategyMapping(t *testing.T) {
	tracker := connections.NewTracker()

	for _, name := range []settings.Strategy{
		settings.StrategyRoundRobin,
		settings.StrategyRandom,
		settings.StrategyLeastConnections,
	} {
		s, err := newStrategy(name, tracker)
		if err != nil {
			t.Fatalf("newStrategy(%q) failed: %v", name, err)
		}
		if s.Name() != name {
			t.Errorf("Name = %q, want %q", s.Name(), name)
		}
	}

	if _, err := newStrategy("weighted", tracker); err == nil {
		t.Error("expected error for unknown strategy")
	}
}
