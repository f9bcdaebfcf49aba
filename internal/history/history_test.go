package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func TestRecordAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Record(ctx, Event{
		Kind:    KindPublish,
		Package: "my-pkg",
		Version: "1.2.0",
		Status:  "ok",
		Summary: "published to registry",
		Detail:  map[string]string{"tag": "latest"},
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if id == 0 {
		t.Fatal("Record returned zero id")
	}

	ev, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ev.Kind != KindPublish || ev.Version != "1.2.0" || ev.Status != "ok" {
		t.Errorf("got event %+v", ev)
	}
	if ev.Detail["tag"] != "latest" {
		t.Errorf("detail = %v, want tag=latest", ev.Detail)
	}
	if ev.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestRecordRequiresKind(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Record(context.Background(), Event{Version: "1.0.0"}); err == nil {
		t.Fatal("expected error for missing kind")
	}
}

func TestListFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	events := []Event{
		{Kind: KindBump, Version: "1.0.0", Status: "ok", CreatedAt: base},
		{Kind: KindPublish, Version: "1.0.0", Status: "ok", CreatedAt: base.Add(time.Minute)},
		{Kind: KindPublish, Version: "1.1.0", Status: "failed", CreatedAt: base.Add(48 * time.Hour)},
		{Kind: KindRollback, Version: "1.1.0", Status: "ok", CreatedAt: base.Add(49 * time.Hour)},
	}
	for _, ev := range events {
		if _, err := s.Record(ctx, ev); err != nil {
			t.Fatalf("Record %s: %v", ev.Kind, err)
		}
	}

	all, err := s.List(ctx, Query{})
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("len(all) = %d, want 4", len(all))
	}
	// Newest first.
	if all[0].Kind != KindRollback {
		t.Errorf("first event = %s, want rollback", all[0].Kind)
	}

	publishes, err := s.List(ctx, Query{Kind: KindPublish})
	if err != nil {
		t.Fatalf("List publishes: %v", err)
	}
	if len(publishes) != 2 {
		t.Errorf("len(publishes) = %d, want 2", len(publishes))
	}

	recent, err := s.List(ctx, Query{Since: base.Add(24 * time.Hour)})
	if err != nil {
		t.Fatalf("List since: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("len(recent) = %d, want 2", len(recent))
	}

	forVersion, err := s.List(ctx, Query{Version: "1.0.0"})
	if err != nil {
		t.Fatalf("List version: %v", err)
	}
	if len(forVersion) != 2 {
		t.Errorf("len(forVersion) = %d, want 2", len(forVersion))
	}

	limited, err := s.List(ctx, Query{Limit: 1})
	if err != nil {
		t.Fatalf("List limited: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("len(limited) = %d, want 1", len(limited))
	}
}

func TestVersionsReleased(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i, ev := range []Event{
		{Kind: KindPublish, Version: "1.0.0", Status: "ok"},
		{Kind: KindPublish, Version: "1.1.0", Status: "failed"},
		{Kind: KindPublish, Version: "1.2.0", Status: "ok"},
	} {
		ev.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		if _, err := s.Record(ctx, ev); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	versions, err := s.VersionsReleased(ctx)
	if err != nil {
		t.Fatalf("VersionsReleased: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("len(versions) = %d, want 2", len(versions))
	}
	if versions[0] != "1.2.0" || versions[1] != "1.0.0" {
		t.Errorf("versions = %v", versions)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if _, err := s1.Record(context.Background(), Event{Kind: KindTag, Version: "1.0.0", Status: "ok"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer s2.Close()

	events, err := s2.List(context.Background(), Query{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("len(events) = %d, want 1", len(events))
	}
}
