package memory

import (
	"context"
	"sync"

	"github.com/chatmate/chatmate/internal/model"
	"github.com/chatmate/chatmate/internal/storage"
)

// DefaultMessageCap bounds the stored message backlog
const DefaultMessageCap = 100

// Storage is an in-memory implementation of the storage interface
type Storage struct {
	mu sync.RWMutex

	accounts   map[model.AccountKey]*model.Account
	messages   []*model.ChatEvent
	messageCap int
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		accounts:   make(map[model.AccountKey]*model.Account),
		messageCap: DefaultMessageCap,
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Account operations

func (s *Storage) SaveAccount(ctx context.Context, account *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.Key] = account
	return nil
}

func (s *Storage) GetAccount(ctx context.Context, key model.AccountKey) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[key]
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	return account, nil
}

func (s *Storage) AccountExists(ctx context.Context, key model.AccountKey) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.accounts[key]
	return ok, nil
}

func (s *Storage) DeleteAccount(ctx context.Context, key model.AccountKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, key)
	return nil
}

// Message operations

func (s *Storage) AppendMessage(ctx context.Context, event *model.ChatEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, event)
	if len(s.messages) > s.messageCap {
		s.messages = s.messages[len(s.messages)-s.messageCap:]
	}
	return nil
}

func (s *Storage) RecentMessages(ctx context.Context, k int) ([]*model.ChatEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k < 0 {
		k = 0
	}
	if k > len(s.messages) {
		k = len(s.messages)
	}
	result := make([]*model.ChatEvent, k)
	copy(result, s.messages[len(s.messages)-k:])
	return result, nil
}
