package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rexliu/swtedit/pkg/core"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Init(context.Background(), Options{JournalMode: "WAL", Synchronous: "NORMAL"}); err != nil {
		t.Fatalf("init: %v", err)
	}
	return store
}

func TestStoreRevisions(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	if v, err := store.SchemaVersion(ctx); err != nil || v != "1" {
		t.Fatalf("schema version = %q, %v", v, err)
	}

	base := time.UnixMilli(1_700_000_000_000)
	first, err := store.RecordRevision(ctx, Revision{Path: "/m/a.swt", EventCount: 1, Content: "<Mission/>", CreatedAt: base})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected generated id")
	}
	second, err := store.RecordRevision(ctx, Revision{
		Path:       "/m/a.swt",
		Version:    core.StrPtr("1.2"),
		EventCount: 3,
		Content:    "<Mission version=\"1.2\"/>",
		CreatedAt:  base.Add(time.Second),
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := store.RecordRevision(ctx, Revision{Path: "/m/b.swt", Content: "<Mission/>"}); err != nil {
		t.Fatalf("record other: %v", err)
	}

	revs, err := store.ListRevisions(ctx, "/m/a.swt", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(revs) != 2 {
		t.Fatalf("expected 2 revisions, got %d", len(revs))
	}
	if revs[0].ID != second.ID || revs[1].ID != first.ID {
		t.Fatalf("expected newest first, got %s then %s", revs[0].ID, revs[1].ID)
	}
	if revs[0].Content != "" {
		t.Fatal("list should not return content")
	}
	if revs[0].Version == nil || *revs[0].Version != "1.2" || revs[1].Version != nil {
		t.Fatalf("unexpected versions %v %v", revs[0].Version, revs[1].Version)
	}

	limited, err := store.ListRevisions(ctx, "/m/a.swt", 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("limit: %d, %v", len(limited), err)
	}

	loaded, err := store.LoadRevision(ctx, second.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Content != second.Content || loaded.EventCount != 3 || !loaded.CreatedAt.Equal(second.CreatedAt) {
		t.Fatalf("unexpected revision %+v", loaded)
	}

	if _, err := store.LoadRevision(ctx, "rev_missing"); !errors.Is(err, ErrRevisionNotFound) {
		t.Fatalf("expected ErrRevisionNotFound, got %v", err)
	}
}

func TestStoreEdits(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	ops := []core.Op{
		core.AddEventOp{ParentID: "evt_1", Kind: core.KindAction},
		core.UpdateEventOp{EventID: "evt_2", Name: core.StrPtr("Spawn")},
		core.DeleteEventOp{EventID: "evt_3"},
	}
	if err := store.RecordEdits(ctx, "/m/a.swt", ops); err != nil {
		t.Fatalf("record edits: %v", err)
	}
	edits, err := store.ListEdits(ctx, "/m/a.swt")
	if err != nil {
		t.Fatalf("list edits: %v", err)
	}
	if len(edits) != 3 {
		t.Fatalf("expected 3 edits, got %d", len(edits))
	}
	if edits[0].Type != "add" || edits[1].EventID != "evt_2" || edits[2].Type != "delete" {
		t.Fatalf("unexpected edits %+v", edits)
	}
	if edits[0].Seq >= edits[1].Seq {
		t.Fatal("expected increasing sequence numbers")
	}
}
