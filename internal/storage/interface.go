package storage

import (
	"context"

	"github.com/chatmate/chatmate/internal/model"
)

// Storage defines the interface for data persistence.
// Accounts back the credential directory; messages back the
// durable side of the in-memory history log.
type Storage interface {
	// Account operations
	SaveAccount(ctx context.Context, account *model.Account) error
	GetAccount(ctx context.Context, key model.AccountKey) (*model.Account, error)
	AccountExists(ctx context.Context, key model.AccountKey) (bool, error)
	DeleteAccount(ctx context.Context, key model.AccountKey) error

	// Message operations
	AppendMessage(ctx context.Context, event *model.ChatEvent) error
	RecentMessages(ctx context.Context, k int) ([]*model.ChatEvent, error)
}
