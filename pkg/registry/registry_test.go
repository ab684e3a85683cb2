package registry

import (
	"testing"

	"github.com/go-training/authz-server/pkg/core"
)

func newTestRegistry() *Registry {
	return New(
		core.Client{
			ID:           "c2",
			Secret:       "s2",
			Name:         "Second",
			RedirectURIs: []string{"https://b/cb"},
			Scope:        core.ParseScope("read profile"),
		},
		core.Client{
			ID:           "c1",
			Secret:       "s1",
			Name:         "First",
			RedirectURIs: []string{"https://a/cb"},
			Scope:        core.ParseScope("read write"),
		},
	)
}

func TestRegistry_Find(t *testing.T) {
	r := newTestRegistry()

	tests := []struct {
		name     string
		clientID string
		wantOK   bool
		wantName string
	}{
		{name: "registered", clientID: "c1", wantOK: true, wantName: "First"},
		{name: "unknown", clientID: "unknown", wantOK: false},
		{name: "empty id", clientID: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := r.Find(tt.clientID)
			if ok != tt.wantOK {
				t.Fatalf("Find(%q) ok = %v, want %v", tt.clientID, ok, tt.wantOK)
			}
			if ok && c.Name != tt.wantName {
				t.Errorf("Find(%q) name = %q, want %q", tt.clientID, c.Name, tt.wantName)
			}
			if !ok && c != nil {
				t.Errorf("Find(%q) returned non-nil client for a miss", tt.clientID)
			}
		})
	}
}

func TestRegistry_FindReturnsCopy(t *testing.T) {
	r := newTestRegistry()

	c, _ := r.Find("c1")
	c.Name = "mutated"

	again, _ := r.Find("c1")
	if again.Name != "First" {
		t.Errorf("registry entry was mutated through Find result: %q", again.Name)
	}
}

func TestRegistry_List(t *testing.T) {
	clients := newTestRegistry().List()
	if len(clients) != 2 {
		t.Fatalf("List() returned %d clients", len(clients))
	}
	if clients[0].ID != "c1" || clients[1].ID != "c2" {
		t.Errorf("List() order = %s, %s", clients[0].ID, clients[1].ID)
	}
}

func TestRegistry_Scopes(t *testing.T) {
	got := newTestRegistry().Scopes()
	want := []string{"profile", "read", "write"}
	if len(got) != len(want) {
		t.Fatalf("Scopes() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Scopes()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
