package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"autopost/internal/post"
	logx "autopost/pkg/logx"
)

// fileStore keeps all posts in a single pretty-printed JSON array.
//
// Writes go to <path>.tmp first and are renamed over <path>, so a crash
// mid-write leaves the previous snapshot intact.
type fileStore struct {
	log logx.Logger

	mu     sync.Mutex
	path   string
	closed bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fileStore) LoadAll(ctx context.Context) ([]post.Post, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []post.Post{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodePosts(b, s.log)
}

func (s *fileStore) SaveAll(ctx context.Context, posts []post.Post) error {
	_ = ctx
	b, err := encodePosts(posts)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	s.log.Debug("posts saved", logx.String("path", s.path), logx.Int("count", len(posts)))
	return nil
}

// decodePosts reads a JSON array of posts. A record that is not an object is
// logged and carried through as-is so the next SaveAll writes it back.
func decodePosts(b []byte, log logx.Logger) ([]post.Post, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return []post.Post{}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, fmt.Errorf("decode posts: %w", err)
	}
	posts := make([]post.Post, 0, len(items))
	for i, raw := range items {
		var p post.Post
		if err := p.UnmarshalJSON(raw); err != nil {
			log.Warn("unreadable post record kept as-is", logx.Int("index", i), logx.Err(err))
			p = post.Unreadable(raw)
		}
		posts = append(posts, p)
	}
	return posts, nil
}

// encodePosts writes the two-space indented layout without HTML escaping.
func encodePosts(posts []post.Post) ([]byte, error) {
	if posts == nil {
		posts = []post.Post{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(posts); err != nil {
		return nil, fmt.Errorf("encode posts: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
