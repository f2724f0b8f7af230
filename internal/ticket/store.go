package ticket

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rezonia/arca-fiscal/internal/model"
)

// ErrNotFound is returned by a Store when no ticket is stored for the service
var ErrNotFound = errors.New("ticket not found")

// Store persists the raw loginTicketResponse document, one slot per service.
// Stored documents are opaque; deleting one forces a renewal.
type Store interface {
	Load(ctx context.Context, service model.Service) ([]byte, error)
	Save(ctx context.Context, service model.Service, raw []byte, expiresAt time.Time) error
	Delete(ctx context.Context, service model.Service) error
}

// MemoryStore keeps tickets in process memory
type MemoryStore struct {
	mu    sync.RWMutex
	slots map[model.Service][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[model.Service][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, service model.Service) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.slots[service]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), raw...), nil
}

func (s *MemoryStore) Save(_ context.Context, service model.Service, raw []byte, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[service] = append([]byte(nil), raw...)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, service model.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, service)
	return nil
}

// FileStore writes each ticket to <dir>/<service>.xml
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create ticket directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(service model.Service) string {
	return filepath.Join(s.dir, string(service)+".xml")
}

func (s *FileStore) Load(_ context.Context, service model.Service) ([]byte, error) {
	raw, err := os.ReadFile(s.path(service))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ticket: %w", err)
	}
	return raw, nil
}

// Save writes through a temp file and rename so readers never see a partial document
func (s *FileStore) Save(_ context.Context, service model.Service, raw []byte, _ time.Time) error {
	tmp, err := os.CreateTemp(s.dir, "."+string(service)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp ticket file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write ticket: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync ticket: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close ticket file: %w", err)
	}
	if err := os.Rename(tmpName, s.path(service)); err != nil {
		return fmt.Errorf("failed to replace ticket: %w", err)
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, service model.Service) error {
	err := os.Remove(s.path(service))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete ticket: %w", err)
	}
	return nil
}

// RedisOptions configures a RedisStore connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisStore keeps tickets in Redis with a TTL equal to their remaining validity
type RedisStore struct {
	client *redis.Client
	prefix string
}

// ConnectRedis opens a client and verifies it with a ping
func ConnectRedis(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxRetries:   3,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("error pinging Redis: %w", err)
	}

	return NewRedisStore(client, opts.Prefix), nil
}

// NewRedisStore wraps an existing client. An empty prefix means "arca:ticket:".
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "arca:ticket:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(service model.Service) string {
	return s.prefix + string(service)
}

func (s *RedisStore) Load(ctx context.Context, service model.Service) ([]byte, error) {
	raw, err := s.client.Get(ctx, s.key(service)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ticket from Redis: %w", err)
	}
	return raw, nil
}

func (s *RedisStore) Save(ctx context.Context, service model.Service, raw []byte, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return s.Delete(ctx, service)
	}
	if err := s.client.Set(ctx, s.key(service), raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save ticket to Redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, service model.Service) error {
	if err := s.client.Del(ctx, s.key(service)).Err(); err != nil {
		return fmt.Errorf("failed to delete ticket from Redis: %w", err)
	}
	return nil
}

// Close releases the Redis connection pool
func (s *RedisStore) Close() error {
	return s.client.Close()
}
