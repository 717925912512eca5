package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// CursorStore persists the resume offset of a source between runs. Load
// returns 0 when nothing was saved.
type CursorStore interface {
	Load(ctx context.Context, source string) (int, error)
	Save(ctx context.Context, source string, offset int) error
	Clear(ctx context.Context, source string) error
}

type cursorState struct {
	NextOffset int       `json:"next_offset"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// FileCursorStore keeps one small JSON file per source.
type FileCursorStore struct {
	dir string
}

func NewFileCursorStore(dir string) (*FileCursorStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cursor directory: %w", err)
	}
	return &FileCursorStore{dir: dir}, nil
}

func (s *FileCursorStore) path(source string) string {
	return filepath.Join(s.dir, source+".resume.json")
}

func (s *FileCursorStore) Load(_ context.Context, source string) (int, error) {
	data, err := os.ReadFile(s.path(source))
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cursor: %w", err)
	}

	var state cursorState
	if err := json.Unmarshal(data, &state); err != nil {
		return 0, fmt.Errorf("failed to decode cursor: %w", err)
	}
	if state.NextOffset < 0 {
		return 0, nil
	}
	return state.NextOffset, nil
}

func (s *FileCursorStore) Save(_ context.Context, source string, offset int) error {
	data, err := json.Marshal(cursorState{NextOffset: offset, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	tmp := s.path(source) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cursor: %w", err)
	}
	return os.Rename(tmp, s.path(source))
}

func (s *FileCursorStore) Clear(_ context.Context, source string) error {
	if err := os.Remove(s.path(source)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear cursor: %w", err)
	}
	return nil
}

// RedisClient is the subset of the redis client used for cursors.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisCursorStore keeps cursors under "cursor:<source>".
type RedisCursorStore struct {
	client RedisClient
	ttl    time.Duration
}

func NewRedisCursorStore(client RedisClient, ttl time.Duration) *RedisCursorStore {
	return &RedisCursorStore{client: client, ttl: ttl}
}

func cursorKey(source string) string {
	return "cursor:" + source
}

func (s *RedisCursorStore) Load(ctx context.Context, source string) (int, error) {
	val, err := s.client.Get(ctx, cursorKey(source)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cursor: %w", err)
	}

	offset, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("failed to decode cursor %q: %w", val, err)
	}
	return max(offset, 0), nil
}

func (s *RedisCursorStore) Save(ctx context.Context, source string, offset int) error {
	if err := s.client.Set(ctx, cursorKey(source), strconv.Itoa(offset), s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

func (s *RedisCursorStore) Clear(ctx context.Context, source string) error {
	if err := s.client.Del(ctx, cursorKey(source)).Err(); err != nil {
		return fmt.Errorf("failed to clear cursor: %w", err)
	}
	return nil
}
