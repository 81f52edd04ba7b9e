package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chatmate/chatmate/internal/model"
	"github.com/chatmate/chatmate/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface.
// Messages live in a capped list so the backlog survives restarts.
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Account operations

func (s *Storage) SaveAccount(ctx context.Context, account *model.Account) error {
	data, err := json.Marshal(account)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, accountKey(account.Key), data, s.cfg.AccountTTL).Err()
}

func (s *Storage) GetAccount(ctx context.Context, key model.AccountKey) (*model.Account, error) {
	data, err := s.client.Get(ctx, accountKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrAccountNotFound
		}
		return nil, err
	}

	var account model.Account
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *Storage) AccountExists(ctx context.Context, key model.AccountKey) (bool, error) {
	exists, err := s.client.Exists(ctx, accountKey(key)).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

func (s *Storage) DeleteAccount(ctx context.Context, key model.AccountKey) error {
	return s.client.Del(ctx, accountKey(key)).Err()
}

// Message operations

func (s *Storage) AppendMessage(ctx context.Context, event *model.ChatEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	// Push then trim in one pipeline so the backlog never exceeds the cap
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, messagesKey(), data)
	pipe.LTrim(ctx, messagesKey(), int64(-s.cfg.MessageCap), -1)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) RecentMessages(ctx context.Context, k int) ([]*model.ChatEvent, error) {
	if k <= 0 {
		return nil, nil
	}

	values, err := s.client.LRange(ctx, messagesKey(), int64(-k), -1).Result()
	if err != nil {
		return nil, err
	}

	events := make([]*model.ChatEvent, 0, len(values))
	for _, val := range values {
		var event model.ChatEvent
		if err := json.Unmarshal([]byte(val), &event); err != nil {
			continue // Skip invalid data
		}
		events = append(events, &event)
	}
	return events, nil
}
