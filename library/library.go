// Package library stores scores in a SQLite database so that they can be
// opened again later.
package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/etudelab/scoresync"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type (
	// Library wraps the score database.
	Library struct {
		db *sql.DB
	}

	// Entry is one saved score.
	Entry struct {
		ID       string
		Settings scoresync.ScoreSettings
		Body     string
		Token    string
		Saved    time.Time
	}
)

var ErrNotFound = errors.New("score not found")

const schema = `
CREATE TABLE IF NOT EXISTS scores (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	tempo INTEGER NOT NULL,
	meter TEXT NOT NULL,
	notated_key TEXT NOT NULL,
	playback_key TEXT NOT NULL,
	body TEXT NOT NULL,
	token TEXT NOT NULL,
	saved INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scores_saved ON scores(saved);
`

// Open opens the database at path, creating it and its directory if
// needed. The path ":memory:" opens a private in-memory database.
func Open(path string) (*Library, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create library directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open library: %w", err)
	}
	// an in-memory database lives only as long as its connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create library tables: %w", err)
	}
	return &Library{db: db}, nil
}

func (l *Library) Close() error {
	return l.db.Close()
}

// Save stores a new entry for the settings and body and returns it.
func (l *Library) Save(ctx context.Context, settings scoresync.ScoreSettings, body string) (Entry, error) {
	e := Entry{
		ID:       uuid.NewString(),
		Settings: settings.WithDefaults(),
		Body:     body,
		Token:    scoresync.IdentityToken(body),
		Saved:    time.Now().UTC().Truncate(time.Second),
	}
	s := e.Settings
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO scores (id, title, tempo, meter, notated_key, playback_key, body, token, saved)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, s.Title, s.Tempo, s.TimeSignature.String(), s.NotatedKey, s.PlaybackKey, e.Body, e.Token, e.Saved.Unix())
	if err != nil {
		return Entry{}, fmt.Errorf("failed to save score: %w", err)
	}
	return e, nil
}

// List returns all entries, the most recently saved first.
func (l *Library) List(ctx context.Context) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, title, tempo, meter, notated_key, playback_key, body, token, saved
		FROM scores ORDER BY saved DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list scores: %w", err)
	}
	defer rows.Close()
	var ret []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list scores: %w", err)
	}
	return ret, nil
}

// Load returns the entry with the given id. A unique prefix of the id is
// enough.
func (l *Library) Load(ctx context.Context, id string) (Entry, error) {
	if id == "" {
		return Entry{}, ErrNotFound
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, title, tempo, meter, notated_key, playback_key, body, token, saved
		FROM scores WHERE id LIKE ? || '%' ESCAPE '\' LIMIT 2`, likeEscaper.Replace(id))
	if err != nil {
		return Entry{}, fmt.Errorf("failed to load score: %w", err)
	}
	defer rows.Close()
	var found []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return Entry{}, err
		}
		found = append(found, e)
	}
	if err := rows.Err(); err != nil {
		return Entry{}, fmt.Errorf("failed to load score: %w", err)
	}
	switch len(found) {
	case 0:
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
		return found[0], nil
	}
	return Entry{}, fmt.Errorf("score id %q is ambiguous", id)
}

// Delete removes the entry with the given id.
func (l *Library) Delete(ctx context.Context, id string) error {
	res, err := l.db.ExecContext(ctx, "DELETE FROM scores WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete score: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func scanEntry(rows *sql.Rows) (Entry, error) {
	var e Entry
	var meter string
	var saved int64
	s := &e.Settings
	if err := rows.Scan(&e.ID, &s.Title, &s.Tempo, &meter, &s.NotatedKey, &s.PlaybackKey, &e.Body, &e.Token, &saved); err != nil {
		return Entry{}, fmt.Errorf("failed to read score: %w", err)
	}
	sig, ok := scoresync.FindTimeSignature(meter)
	if !ok {
		sig = scoresync.DefaultTimeSignature
	}
	s.TimeSignature = sig
	e.Saved = time.Unix(saved, 0).UTC()
	return e, nil
}
