package gateway

import (
	"reflect"
	"testing"
)

func newTestRegistry(names ...string) (*Registry, map[string]*mockConnector) {
	conns := make(map[string]*mockConnector, len(names))
	entries := make([]RegistryEntry, 0, len(names))
	for _, name := range names {
		mc := newMockConnector()
		conns[name] = mc
		entries = append(entries, RegistryEntry{
			Name: name,
			Conn: mc,
			Ctx:  BotContext{BotName: name},
		})
	}
	return NewRegistry(entries), conns
}

func TestRegistryLookup(t *testing.T) {
	r, _ := newTestRegistry("alpha", "beta")

	if _, ok := r.Lookup("alpha"); !ok {
		t.Error("expected alpha to be registered")
	}
	if _, ok := r.Lookup("gamma"); ok {
		t.Error("gamma should not be registered")
	}
}

func TestRegistryResolveSingle(t *testing.T) {
	r, _ := newTestRegistry("alpha", "beta")

	targets := r.ResolveTargets("beta")
	if len(targets) != 1 {
		t.Fatalf("expected 1 target, got %d", len(targets))
	}
	if targets[0].Name != "beta" {
		t.Errorf("expected beta, got %s", targets[0].Name)
	}
}

func TestRegistryResolveUnknownIsEmpty(t *testing.T) {
	r, _ := newTestRegistry("alpha")

	if targets := r.ResolveTargets("nobody"); len(targets) != 0 {
		t.Errorf("unknown name should resolve to no targets, got %d", len(targets))
	}
}

func TestRegistryResolveWildcardSorted(t *testing.T) {
	r, _ := newTestRegistry("zulu", "alpha", "mike")

	targets := r.ResolveTargets(Wildcard)
	if len(targets) != 3 {
		t.Fatalf("expected 3 targets, got %d", len(targets))
	}
	var names []string
	for _, tg := range targets {
		names = append(names, tg.Name)
	}
	want := []string{"alpha", "mike", "zulu"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("expected sorted order %v, got %v", want, names)
	}
}

func TestRegistryDuplicateNamesIgnored(t *testing.T) {
	first := newMockConnector()
	second := newMockConnector()
	r := NewRegistry([]RegistryEntry{
		{Name: "dup", Conn: first},
		{Name: "dup", Conn: second},
	})

	conn, ok := r.Lookup("dup")
	if !ok {
		t.Fatal("dup should be registered")
	}
	if conn != first {
		t.Error("first registration should win")
	}
	if len(r.Names()) != 1 {
		t.Errorf("expected 1 name, got %v", r.Names())
	}
}
