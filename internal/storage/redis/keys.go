package redis

import (
	"fmt"

	"github.com/chatmate/chatmate/internal/model"
)

// Key prefix for all chat-related data
const keyPrefix = "chatmate"

// accountKey returns the Redis key for an Account
func accountKey(key model.AccountKey) string {
	return fmt.Sprintf("%s:account:%s", keyPrefix, key)
}

// messagesKey returns the Redis key for the message backlog list
func messagesKey() string {
	return fmt.Sprintf("%s:messages", keyPrefix)
}
