// Package store implements Component E (Fingerprint Store): a durable
// two-table SQLite index — songs and fingerprints, with an index on
// fingerprints.hash and a cascading foreign key — matching the schema
// the distilled Python original keeps in backend/database.py.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"musica/internal/config"
	"musica/internal/xerr"
)

const schema = `
CREATE TABLE IF NOT EXISTS songs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	title       TEXT    NOT NULL,
	artist      TEXT    DEFAULT 'Unknown',
	album       TEXT    DEFAULT '',
	duration    REAL    DEFAULT 0,
	file_hash   TEXT    UNIQUE,
	artwork_url TEXT    DEFAULT '',
	created_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS fingerprints (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	song_id     INTEGER NOT NULL,
	hash        TEXT    NOT NULL,
	anchor_time INTEGER NOT NULL,
	FOREIGN KEY (song_id) REFERENCES songs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_fp_hash ON fingerprints(hash);
`

// Song is a persisted Song Record (spec.md §3).
type Song struct {
	ID         int64
	Title      string
	Artist     string
	Album      string
	Duration   float64
	FileHash   string
	ArtworkURL string
}

// Match is one row returned by GetMatches: a stored fingerprint that
// shares a hash with a query fingerprint.
type Match struct {
	Hash       string
	SongID     int64
	AnchorTime int
}

// Store is a single-writer, multi-reader handle onto the fingerprint
// database. A Store is safe for concurrent use.
type Store struct {
	db       *sql.DB
	writeMu  sync.Mutex // spec.md §5: a single process-wide writer lock suffices
}

// Open opens (creating if necessary) the SQLite database at path,
// enables WAL mode and foreign keys, and ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, xerr.Wrap(fmt.Errorf("open database: %w", err))
	}
	db.SetMaxOpenConns(1) // mattn/go-sqlite3 connections aren't safe to multiplex against a single file under WAL writers

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, xerr.Wrap(fmt.Errorf("enable WAL: %w", err))
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, xerr.Wrap(fmt.Errorf("enable foreign keys: %w", err))
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, xerr.Wrap(fmt.Errorf("apply schema: %w", err))
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// AddSong inserts a song, or returns the existing song's id if
// fileHash is already present (spec.md §3: re-adding the same file is
// a no-op returning the existing id).
func (s *Store) AddSong(ctx context.Context, title, artist, album string, duration float64, fileHash, artworkURL string) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO songs (title, artist, album, duration, file_hash, artwork_url)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		title, artist, album, duration, fileHash, artworkURL)
	if err != nil {
		return 0, xerr.Wrap(fmt.Errorf("insert song: %w", err))
	}

	// An ignored insert still reports the connection's previous rowid,
	// so only trust LastInsertId when a row was actually written.
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, xerr.Wrap(err)
	}
	if affected > 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return 0, xerr.Wrap(err)
		}
		return id, nil
	}

	// Already existed — look it up by file_hash.
	var existing int64
	err = s.db.QueryRowContext(ctx, `SELECT id FROM songs WHERE file_hash = ?`, fileHash).Scan(&existing)
	if err != nil {
		return 0, xerr.Wrap(fmt.Errorf("lookup existing song: %w", err))
	}
	return existing, nil
}

// SongExists reports whether a song with the given file hash is
// already indexed.
func (s *Store) SongExists(ctx context.Context, fileHash string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM songs WHERE file_hash = ?`, fileHash).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, xerr.Wrap(err)
	}
	return true, nil
}

// GetSong fetches a song by id.
func (s *Store) GetSong(ctx context.Context, id int64) (Song, bool, error) {
	var song Song
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, artist, album, duration, file_hash, artwork_url FROM songs WHERE id = ?`, id,
	).Scan(&song.ID, &song.Title, &song.Artist, &song.Album, &song.Duration, &song.FileHash, &song.ArtworkURL)
	if err == sql.ErrNoRows {
		return Song{}, false, nil
	}
	if err != nil {
		return Song{}, false, xerr.Wrap(err)
	}
	return song, true, nil
}

// GetAllSongs returns every indexed song, most recently added first.
func (s *Store) GetAllSongs(ctx context.Context) ([]Song, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, artist, album, duration, file_hash, artwork_url FROM songs ORDER BY created_at DESC`)
	if err != nil {
		return nil, xerr.Wrap(err)
	}
	defer rows.Close()

	var songs []Song
	for rows.Next() {
		var song Song
		if err := rows.Scan(&song.ID, &song.Title, &song.Artist, &song.Album, &song.Duration, &song.FileHash, &song.ArtworkURL); err != nil {
			return nil, xerr.Wrap(err)
		}
		songs = append(songs, song)
	}
	return songs, rows.Err()
}

// DeleteSong removes the song row and every fingerprint row
// referencing it, atomically.
func (s *Store) DeleteSong(ctx context.Context, id int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return xerr.Wrap(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fingerprints WHERE song_id = ?`, id); err != nil {
		return xerr.Wrap(fmt.Errorf("delete fingerprints: %w", err))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM songs WHERE id = ?`, id); err != nil {
		return xerr.Wrap(fmt.Errorf("delete song: %w", err))
	}
	return xerr.Wrap(tx.Commit())
}

// AddFingerprints stores a batch of (hash, anchorTime) fingerprints
// for songID, committed atomically in a single transaction.
func (s *Store) AddFingerprints(ctx context.Context, songID int64, hash []string, anchorTime []int) error {
	if len(hash) != len(anchorTime) {
		return fmt.Errorf("store: hash/anchorTime length mismatch")
	}
	if len(hash) == 0 {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return xerr.Wrap(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO fingerprints (song_id, hash, anchor_time) VALUES (?, ?, ?)`)
	if err != nil {
		return xerr.Wrap(err)
	}
	defer stmt.Close()

	for i := range hash {
		if _, err := stmt.ExecContext(ctx, songID, hash[i], anchorTime[i]); err != nil {
			return xerr.Wrap(fmt.Errorf("insert fingerprint: %w", err))
		}
	}
	return xerr.Wrap(tx.Commit())
}

// GetMatches returns every fingerprint row whose hash is in hashes,
// batching the underlying query at config.MatchBatchSize placeholders
// to stay under SQLite's parameter-count limit.
func (s *Store) GetMatches(ctx context.Context, hashes []string) ([]Match, error) {
	var out []Match

	for start := 0; start < len(hashes); start += config.MatchBatchSize {
		end := start + config.MatchBatchSize
		if end > len(hashes) {
			end = len(hashes)
		}
		batch := hashes[start:end]

		placeholders := strings.TrimRight(strings.Repeat("?,", len(batch)), ",")
		args := make([]any, len(batch))
		for i, h := range batch {
			args[i] = h
		}

		query := fmt.Sprintf(`SELECT hash, song_id, anchor_time FROM fingerprints WHERE hash IN (%s)`, placeholders)
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, xerr.Wrap(err)
		}

		for rows.Next() {
			var m Match
			if err := rows.Scan(&m.Hash, &m.SongID, &m.AnchorTime); err != nil {
				rows.Close()
				return nil, xerr.Wrap(err)
			}
			out = append(out, m)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, xerr.Wrap(err)
		}
	}

	return out, nil
}

// Stats returns the total song and fingerprint counts.
func (s *Store) Stats(ctx context.Context) (songCount, fingerprintCount int, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM songs`).Scan(&songCount); err != nil {
		return 0, 0, xerr.Wrap(err)
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fingerprints`).Scan(&fingerprintCount); err != nil {
		return 0, 0, xerr.Wrap(err)
	}
	return songCount, fingerprintCount, nil
}

// EraseAll drops every row from both tables (used by the CLI's erase
// command). It does not drop the schema itself.
func (s *Store) EraseAll(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM fingerprints`); err != nil {
		return xerr.Wrap(err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM songs`); err != nil {
		return xerr.Wrap(err)
	}
	return nil
}
