package store_test

import (
	"testing"

	"cipherline/internal/store"
)

func TestProfile_SaveLoad(t *testing.T) {
	ps := store.NewProfileFileStore(t.TempDir())

	if _, ok, err := ps.LoadProfile("alice"); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	want := store.Profile{Relay: "http://127.0.0.1:8080", Username: "alice", UserID: "u-1", Token: "t"}
	if err := ps.SaveProfile(want); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := ps.SaveProfile(store.Profile{Username: "bob", UserID: "u-2"}); err != nil {
		t.Fatalf("save bob: %v", err)
	}

	got, ok, err := ps.LoadProfile("alice")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Fatalf("profile mismatch: %+v", got)
	}
}
