// Package journal keeps a write-only SQLite transcript of the conversation.
// It is never read back into the session.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"chatbridge/internal/domain"

	_ "modernc.org/sqlite"
)

const defaultRecentLimit = 20

// Row is one journal line: a recorded turn or a clear.
type Row struct {
	Kind       string // "turn" or "clear"
	Role       domain.Role
	Text       string
	ImageParts int
	At         time.Time
}

type Journal struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open creates the database file and its directory if needed and migrates it.
func Open(dbPath string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create journal directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal migration failed: %w", err)
	}
	return &Journal{db: db, logger: logger, now: time.Now}, nil
}

func (j *Journal) Close() error { return j.db.Close() }

// RecordTurn stores the turn's text parts joined by newlines and the number
// of image parts.
func (j *Journal) RecordTurn(ctx context.Context, turn domain.Turn) error {
	var texts []string
	images := 0
	for _, p := range turn.Parts {
		if p.IsText() {
			texts = append(texts, p.Text)
		} else {
			images++
		}
	}

	at := turn.At
	if at.IsZero() {
		at = j.now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO turns (role, text, image_parts, created_at) VALUES (?, ?, ?, ?)`,
		string(turn.Role), strings.Join(texts, "\n"), images, at.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record turn: %w", err)
	}
	return nil
}

func (j *Journal) RecordClear(ctx context.Context) error {
	if _, err := j.db.ExecContext(ctx, `INSERT INTO clears (created_at) VALUES (?)`, j.now().UnixNano()); err != nil {
		return fmt.Errorf("record clear: %w", err)
	}
	return nil
}

// Recent returns the last limit rows, oldest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT kind, role, text, image_parts, created_at FROM (
			SELECT 'turn' AS kind, role, text, image_parts, created_at, id FROM turns
			UNION ALL
			SELECT 'clear', '', '', 0, created_at, id FROM clears
		)
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var role string
		var nanos int64
		if err := rows.Scan(&r.Kind, &role, &r.Text, &r.ImageParts, &nanos); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		r.Role = domain.Role(role)
		r.At = time.Unix(0, nanos)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}
