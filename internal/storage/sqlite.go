package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"autopost/internal/post"
	logx "autopost/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// sqliteStore keeps one row per post; the body column holds the post JSON so
// keys written by other tools survive a rewrite. SaveAll replaces every row in
// a single transaction.
type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LoadAll(ctx context.Context) ([]post.Post, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, body FROM posts ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []post.Post{}
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, err
		}
		var p post.Post
		if err := p.UnmarshalJSON([]byte(body)); err != nil {
			s.log.Warn("unreadable post row kept as-is", logx.String("id", id), logx.Err(err))
			p = post.Unreadable([]byte(body))
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (s *sqliteStore) SaveAll(ctx context.Context, posts []post.Post) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM posts`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO posts(seq, id, status, body) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, p := range posts {
		body, mErr := p.MarshalJSON()
		if mErr != nil {
			err = fmt.Errorf("encode post %s: %w", p.ID, mErr)
			return err
		}
		if _, err = stmt.ExecContext(ctx, i, p.ID, string(p.Status), string(body)); err != nil {
			return fmt.Errorf("insert post %s: %w", p.ID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	s.log.Debug("posts saved", logx.Int("count", len(posts)))
	return nil
}
