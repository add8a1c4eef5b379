// Package sqlite keeps labeled pairs in a SQLite database.
//
// The table is append-only: each judgment is stored under its position in the
// sequence and positions already present are never rewritten.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"dedupe/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS judgments (
	ordinal      INTEGER PRIMARY KEY,
	left_id      TEXT NOT NULL,
	right_id     TEXT NOT NULL,
	label        TEXT NOT NULL,
	session      TEXT,
	labeled_at   TEXT NOT NULL,
	left_values  TEXT,
	right_values TEXT
);
CREATE INDEX IF NOT EXISTS idx_judgments_pair ON judgments(left_id, right_id);
`

// Store is a JudgmentStore backed by a SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path, creating its directory on first use.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, eris.Wrapf(err, "sqlite: create directory for %s", path)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: open %s", path)
	}
	// writes are serialized by SQLite anyway
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, eris.Wrapf(err, "sqlite: connect %s", path)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "sqlite: initialize schema")
	}
	return &Store{db: db}, nil
}

// Load returns every stored judgment in insertion order.
func (s *Store) Load(ctx context.Context) ([]domain.LabeledPair, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT left_id, right_id, label, session, labeled_at, left_values, right_values
		FROM judgments ORDER BY ordinal`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query judgments")
	}
	defer rows.Close()

	out := []domain.LabeledPair{}
	for rows.Next() {
		var (
			lp                  domain.LabeledPair
			left, right, label  string
			session             sql.NullString
			labeledAt           string
			leftJSON, rightJSON sql.NullString
		)
		if err := rows.Scan(&left, &right, &label, &session, &labeledAt, &leftJSON, &rightJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan judgment")
		}
		lp.Left, lp.Right, lp.Label, lp.Session = domain.ID(left), domain.ID(right), domain.Label(label), session.String
		if lp.LabeledAt, err = time.Parse(time.RFC3339Nano, labeledAt); err != nil {
			return nil, fmt.Errorf("sqlite: judgment (%s, %s): bad timestamp %q: %w", left, right, labeledAt, err)
		}
		if lp.LeftValues, err = decodeValues(leftJSON); err != nil {
			return nil, err
		}
		if lp.RightValues, err = decodeValues(rightJSON); err != nil {
			return nil, err
		}
		out = append(out, lp)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate judgments")
	}
	return out, nil
}

// Save appends the judgments not yet stored. It runs to completion even when
// ctx is already cancelled so an interrupted labeling session still flushes.
func (s *Store) Save(ctx context.Context, judgments []domain.LabeledPair) error {
	ctx = context.WithoutCancel(ctx)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO judgments
			(ordinal, left_id, right_id, label, session, labeled_at, left_values, right_values)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close()

	for i, lp := range judgments {
		left, err := encodeValues(lp.LeftValues)
		if err != nil {
			return err
		}
		right, err := encodeValues(lp.RightValues)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, i, string(lp.Left), string(lp.Right), string(lp.Label),
			lp.Session, lp.LabeledAt.UTC().Format(time.RFC3339Nano), left, right); err != nil {
			return eris.Wrapf(err, "sqlite: insert judgment %d", i)
		}
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit")
	}
	return nil
}

// Count returns the number of stored judgments.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM judgments`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count judgments")
	}
	return n, nil
}

func (s *Store) Close() error { return s.db.Close() }

func encodeValues(values map[string]string) (sql.NullString, error) {
	if len(values) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("sqlite: encode values: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeValues(raw sql.NullString) (map[string]string, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		return nil, fmt.Errorf("sqlite: decode values: %w", err)
	}
	return out, nil
}
