package session

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/technosupport/ts-dashboard/internal/state"
)

// SessionTTL bounds how long a saved session is resumable. Matches the
// backend's token lifetime class rather than tracking it exactly; expired
// tokens are caught by the claims peek on resume anyway.
const SessionTTL = 7 * 24 * time.Hour

const redisKey = "dashboard:session"

// Record is the persisted session: the credential plus the identity it
// belongs to.
type Record struct {
	Token   string     `json:"token"`
	User    state.User `json:"user"`
	SavedAt time.Time  `json:"saved_at"`
}

// Store persists the session across restarts in the host environment's
// durable key-value storage.
type Store interface {
	Save(ctx context.Context, rec Record) error
	// Load returns found=false when no session is stored.
	Load(ctx context.Context) (rec Record, found bool, err error)
	Clear(ctx context.Context) error
}

// RedisStore keeps the session in Redis with a bounded TTL.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisKey, data, SessionTTL).Err()
}

func (s *RedisStore) Load(ctx context.Context) (Record, bool, error) {
	data, err := s.client.Get(ctx, redisKey).Result()
	if err == redis.Nil {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, redisKey).Err()
}

// FileStore is the fallback when no Redis is available: one JSON file with
// owner-only permissions.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Save(_ context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.Path, data, 0o600)
}

func (s *FileStore) Load(_ context.Context) (Record, bool, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, err
	}
	if time.Since(rec.SavedAt) > SessionTTL {
		return Record{}, false, nil
	}
	return rec, true, nil
}

func (s *FileStore) Clear(_ context.Context) error {
	err := os.Remove(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
