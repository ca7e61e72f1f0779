package store

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_New_InvalidPath(t *testing.T) {
	_, err := New("/nonexistent/path/test.db")
	if err == nil {
		t.Error("expected error for invalid path")
	}
}

func TestStore_KV(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Errorf("expected missing key, got ok=%v err=%v", ok, err)
	}

	if err := s.Set(ctx, "session:a", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Set(ctx, "session:a", []byte(`{"v":2}`)); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	got, ok, err := s.Get(ctx, "session:a")
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	if string(got) != `{"v":2}` {
		t.Errorf("expected last write to win, got %s", got)
	}

	if err := s.Delete(ctx, "session:a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "session:a"); ok {
		t.Error("expected key to be deleted")
	}
	if err := s.Delete(ctx, "session:a"); err != nil {
		t.Errorf("deleting a missing key should succeed, got %v", err)
	}
}

func TestStore_Keys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, k := range []string{"session:1", "session:2", "queue:1"} {
		if err := s.Set(ctx, k, []byte("x")); err != nil {
			t.Fatalf("Set %s failed: %v", k, err)
		}
	}

	keys, err := s.Keys(ctx, "session:")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("expected 2 session keys, got %v", keys)
	}
	for _, k := range keys {
		if k == "queue:1" {
			t.Error("prefix filter leaked queue key")
		}
	}
}

func TestStore_Glossary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.AddGlossaryTerm(ctx, "en", "ko", " Apple ", "사과", "fruit"); err != nil {
		t.Fatalf("AddGlossaryTerm failed: %v", err)
	}
	if _, err := s.AddGlossaryTerm(ctx, "en", "ko", "Sword", "검", ""); err != nil {
		t.Fatalf("AddGlossaryTerm failed: %v", err)
	}
	if _, err := s.AddGlossaryTerm(ctx, "en", "ja", "Apple", "りんご", ""); err != nil {
		t.Fatalf("AddGlossaryTerm failed: %v", err)
	}
	if _, err := s.AddGlossaryTerm(ctx, "en", "ko", "", "x", ""); err == nil {
		t.Error("expected error for empty term")
	}

	entries, err := s.GlossaryFor(ctx, "en", "ko")
	if err != nil {
		t.Fatalf("GlossaryFor failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Source != "Apple" || entries[0].Target != "사과" || entries[0].Note != "fruit" {
		t.Errorf("unexpected entry %+v", entries[0])
	}

	all, err := s.ListGlossaryTerms(ctx, "", "")
	if err != nil {
		t.Fatalf("ListGlossaryTerms failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 entries, got %d", len(all))
	}

	if err := s.DeleteGlossaryTerm(ctx, all[0].ID); err != nil {
		t.Fatalf("DeleteGlossaryTerm failed: %v", err)
	}
	if err := s.DeleteGlossaryTerm(ctx, "no-such-id"); err == nil {
		t.Error("expected error deleting unknown id")
	}
	remaining, _ := s.ListGlossaryTerms(ctx, "en", "")
	if len(remaining) != 2 {
		t.Errorf("expected 2 entries after delete, got %d", len(remaining))
	}
}

func TestStore_GlossaryReplace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.AddGlossaryTerm(ctx, "en", "ko", "Apple", "사과", "")
	s.AddGlossaryTerm(ctx, "en", "ko", "Apple", "애플", "company")

	entries, _ := s.GlossaryFor(ctx, "en", "ko")
	if len(entries) != 1 || entries[0].Target != "애플" {
		t.Errorf("expected replacement, got %+v", entries)
	}
}
