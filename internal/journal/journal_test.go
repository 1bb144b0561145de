package journal

import (
	"context"
	"database/sql"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chatbridge/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func openTest(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "nested", "journal.db"), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournal_RecordAndRecent(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()
	base := time.Unix(1700000000, 0)

	turns := []domain.Turn{
		{Role: domain.RoleUser, Parts: []domain.Part{domain.TextPart("[Language] en"), domain.TextPart("hi")}, At: base},
		{Role: domain.RoleAssistant, Parts: []domain.Part{domain.TextPart("hello")}, At: base.Add(time.Second)},
		{Role: domain.RoleUser, Parts: []domain.Part{domain.ImagePart(image.NewRGBA(image.Rect(0, 0, 1, 1)))}, At: base.Add(2 * time.Second)},
	}
	for _, turn := range turns {
		if err := j.RecordTurn(ctx, turn); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0].Text != "[Language] en\nhi" || rows[0].Role != domain.RoleUser {
		t.Errorf("first row = %+v", rows[0])
	}
	if rows[1].Role != domain.RoleAssistant {
		t.Errorf("second row role = %q", rows[1].Role)
	}
	if rows[2].ImageParts != 1 || rows[2].Text != "" {
		t.Errorf("image row = %+v", rows[2])
	}
	if !rows[0].At.Equal(base) {
		t.Errorf("timestamp = %v, want %v", rows[0].At, base)
	}
}

func TestJournal_ClearsInterleave(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()
	clock := time.Unix(1700000000, 0)
	j.now = func() time.Time { return clock }

	_ = j.RecordTurn(ctx, domain.Turn{Role: domain.RoleUser, Parts: []domain.Part{domain.TextPart("a")}})
	clock = clock.Add(time.Second)
	if err := j.RecordClear(ctx); err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(time.Second)
	_ = j.RecordTurn(ctx, domain.Turn{Role: domain.RoleUser, Parts: []domain.Part{domain.TextPart("b")}})

	rows, err := j.Recent(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	kinds := []string{rows[0].Kind, rows[1].Kind, rows[2].Kind}
	if kinds[0] != "turn" || kinds[1] != "clear" || kinds[2] != "turn" {
		t.Errorf("kinds = %v", kinds)
	}
}

func TestJournal_RecentLimitKeepsNewest(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()
	base := time.Unix(1700000000, 0)

	for i, text := range []string{"one", "two", "three"} {
		turn := domain.Turn{Role: domain.RoleUser, Parts: []domain.Part{domain.TextPart(text)}, At: base.Add(time.Duration(i) * time.Second)}
		if err := j.RecordTurn(ctx, turn); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := j.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].Text != "two" || rows[1].Text != "three" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestJournal_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	_ = j.RecordClear(context.Background())
	j.Close()

	j, err = Open(path, testLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j.Close()

	rows, err := j.Recent(context.Background(), 5)
	if err != nil || len(rows) != 1 || rows[0].Kind != "clear" {
		t.Errorf("rows = %+v err = %v", rows, err)
	}
}

func TestRunMigrations_FreshAndIdempotent(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if v, _ := SchemaVersion(db); v != 0 {
		t.Errorf("fresh version = %d", v)
	}
	for i := 0; i < 2; i++ {
		if err := RunMigrations(db, testLogger()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if v, err := SchemaVersion(db); err != nil || v != schemaVersion {
		t.Errorf("version = %d, %v", v, err)
	}
}

func TestRunMigrations_BaseSchemaColumns(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := RunMigrations(db, testLogger()); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO turns (role, text, image_parts, created_at) VALUES ('user', 'hi', 3, 1)`); err != nil {
		t.Fatalf("turns table lacks expected columns: %v", err)
	}
	var n int
	if err := db.QueryRow(`SELECT image_parts FROM turns`).Scan(&n); err != nil || n != 3 {
		t.Fatalf("image_parts = %d, %v", n, err)
	}
}

func TestRunMigrations_RejectsNewerSchema(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := RunMigrations(db, testLogger()); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO schema_version (version, description) VALUES (?, 'future')`, schemaVersion+1); err != nil {
		t.Fatal(err)
	}
	if err := RunMigrations(db, testLogger()); err == nil {
		t.Fatal("expected error for a journal from a newer version")
	}
}
