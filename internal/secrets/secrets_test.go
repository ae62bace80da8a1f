package secrets

import "testing"

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvPrefix+"DEPLOY_KEY", "k3y")
	t.Setenv("UNRELATED_VAR", "ignored")

	store := FromEnv()

	v, ok := store.Lookup("DEPLOY_KEY")
	if !ok || v != "k3y" {
		t.Errorf("expected k3y, got %q (%v)", v, ok)
	}

	if _, ok := store.Lookup("UNRELATED_VAR"); ok {
		t.Error("variables without prefix must not be visible")
	}
}

func TestStore_Lookup(t *testing.T) {
	store := NewStore(map[string]string{"TOKEN": "abc"})

	if v, ok := store.Lookup("TOKEN"); !ok || v != "abc" {
		t.Errorf("expected abc, got %q (%v)", v, ok)
	}
	if _, ok := store.Lookup("MISSING"); ok {
		t.Error("missing secret should not resolve")
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 secret, got %d", store.Len())
	}
}

func TestNewStore_Copies(t *testing.T) {
	src := map[string]string{"TOKEN": "abc"}
	store := NewStore(src)

	src["TOKEN"] = "mutated"
	if v, _ := store.Lookup("TOKEN"); v != "abc" {
		t.Error("store must not share the source map")
	}
}
