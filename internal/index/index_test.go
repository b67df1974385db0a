package index

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/starford/sidenote/internal/annotation"
	"github.com/starford/sidenote/internal/apperr"
	"github.com/starford/sidenote/internal/models"
	"github.com/starford/sidenote/internal/storage"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "sidenote-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustAnnotation(t *testing.T, base string, start, end int, comment string) annotation.Annotation {
	t.Helper()
	a, err := annotation.New(base, start, end, comment, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"documents", "annotations", "recent_projects"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestUpsertAndAnnotations(t *testing.T) {
	db := testDB(t)
	base := "hello world"
	a := mustAnnotation(t, base, 6, 11, "nice")
	b := mustAnnotation(t, base, 0, 5, "greeting")
	row := DocumentRow{Path: "hello.md", Title: "Hello", Checksum: "abc", Tags: []string{"go"}, UpdatedAt: time.Now()}
	if err := db.UpsertDocument(row, []annotation.Annotation{a, b}); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}

	cs, err := db.GetChecksum("hello.md")
	if err != nil || cs != "abc" {
		t.Errorf("checksum = %q, %v", cs, err)
	}
	list, err := db.Annotations("hello.md")
	if err != nil {
		t.Fatalf("Annotations: %v", err)
	}
	if len(list) != 2 || list[0].ID != a.ID || list[1].ID != b.ID {
		t.Fatalf("annotations out of order: %+v", list)
	}
	if list[0].Range != a.Range || !list[0].CreatedAt.Equal(a.CreatedAt) {
		t.Errorf("fields not preserved: %+v", list[0])
	}
}

func TestUpsertReplacesAnnotations(t *testing.T) {
	db := testDB(t)
	base := "hello world"
	old := mustAnnotation(t, base, 6, 11, "old")
	_ = db.UpsertDocument(DocumentRow{Path: "up.md", Checksum: "1", UpdatedAt: time.Now()}, []annotation.Annotation{old})
	_ = db.UpsertDocument(DocumentRow{Path: "up.md", Checksum: "2", UpdatedAt: time.Now()}, nil)

	list, err := db.Annotations("up.md")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("old annotations should be removed on upsert: %+v", list)
	}
}

func TestAnnotations_UnknownDocument(t *testing.T) {
	db := testDB(t)
	if _, err := db.Annotations("missing.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteDocument(t *testing.T) {
	db := testDB(t)
	a := mustAnnotation(t, "abc", 0, 1, "x")
	_ = db.UpsertDocument(DocumentRow{Path: "del.md", Checksum: "x", UpdatedAt: time.Now()}, []annotation.Annotation{a})

	if err := db.DeleteDocument("del.md"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	cs, _ := db.GetChecksum("del.md")
	if cs != "" {
		t.Errorf("deleted document still has checksum %q", cs)
	}
	hits, _ := db.SearchAnnotations("x", 10)
	if len(hits) != 0 {
		t.Errorf("annotations of deleted document still searchable: %+v", hits)
	}
}

func TestGetChecksum_NotFound(t *testing.T) {
	db := testDB(t)
	cs, err := db.GetChecksum("nonexistent.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs != "" {
		t.Errorf("expected empty checksum, got %q", cs)
	}
}

func TestListDocuments_TagFilter(t *testing.T) {
	db := testDB(t)
	a := mustAnnotation(t, "abc", 0, 1, "x")
	_ = db.UpsertDocument(DocumentRow{Path: "b.md", Tags: []string{"draft"}, UpdatedAt: time.Now()}, []annotation.Annotation{a})
	_ = db.UpsertDocument(DocumentRow{Path: "a.md", Tags: []string{"final"}, UpdatedAt: time.Now()}, nil)

	all, err := db.ListDocuments("")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Path != "a.md" || all[1].Annotations != 1 {
		t.Errorf("all = %+v", all)
	}
	drafts, err := db.ListDocuments("draft")
	if err != nil {
		t.Fatal(err)
	}
	if len(drafts) != 1 || drafts[0].Path != "b.md" {
		t.Errorf("drafts = %+v", drafts)
	}
}

func TestSearchAnnotations_Basic(t *testing.T) {
	db := testDB(t)
	a := mustAnnotation(t, "the quick fox", 4, 9, "uniqueword appears here")
	_ = db.UpsertDocument(DocumentRow{Path: "s.md", Title: "Search Me", UpdatedAt: time.Now()}, []annotation.Annotation{a})

	hits, err := db.SearchAnnotations("uniqueword", 10)
	if err != nil {
		t.Fatalf("SearchAnnotations: %v", err)
	}
	if len(hits) != 1 || hits[0].Path != "s.md" || hits[0].ID != a.ID || hits[0].Selection != "quick" {
		t.Errorf("hits = %+v, want 1 hit for s.md", hits)
	}
	if hits[0].Title != "Search Me" {
		t.Errorf("title = %q", hits[0].Title)
	}
}

func TestRecentRoundTrip(t *testing.T) {
	db := testDB(t)
	now := time.Now().UTC().Truncate(time.Second)
	in := []models.RecentProject{
		{ID: "2", Name: "b", RootPath: "/b", CreatedAt: now, LastOpened: now.Add(time.Minute)},
		{ID: "1", Name: "a", RootPath: "/a", CreatedAt: now, LastOpened: now},
	}
	if err := db.SaveRecent(in); err != nil {
		t.Fatal(err)
	}
	out, err := db.LoadRecent()
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[0].RootPath != "/b" || out[1].RootPath != "/a" {
		t.Errorf("recent = %+v", out)
	}
	if err := db.SaveRecent(in[:1]); err != nil {
		t.Fatal(err)
	}
	out, _ = db.LoadRecent()
	if len(out) != 1 {
		t.Errorf("SaveRecent should replace: %+v", out)
	}
}

func TestSync(t *testing.T) {
	db := testDB(t)
	fs, err := storage.NewFS(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	base := "# Keep\nsome text"
	a := mustAnnotation(t, base, 7, 11, "first")
	_ = fs.WriteTextAtomic(ctx, "keep.md", annotation.Add(base, a))
	_ = fs.WriteTextAtomic(ctx, "gone.md", "# Gone")
	if err := Sync(ctx, db, fs, logger); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	docs, _ := db.ListDocuments("")
	if len(docs) != 2 {
		t.Fatalf("docs = %+v", docs)
	}

	_ = os.Remove(fs.Root() + "/gone.md")
	if err := Sync(ctx, db, fs, logger); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	docs, _ = db.ListDocuments("")
	if len(docs) != 1 || docs[0].Path != "keep.md" || docs[0].Title != "Keep" || docs[0].Annotations != 1 {
		t.Errorf("after resync docs = %+v", docs)
	}
}
