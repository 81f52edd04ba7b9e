package response

import (
	"github.com/chatmate/chatmate/internal/model"
	"github.com/chatmate/chatmate/internal/services/avatar"
)

// Account represents a registered account in API responses
type Account struct {
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
	AvatarColor string `json:"avatar_color"`
}

// AccountFromModel converts a model.Account to a response Account
func AccountFromModel(a *model.Account) Account {
	return Account{
		Username:    a.Username,
		Email:       a.Email,
		AvatarColor: avatar.ColorFor(a.Username),
	}
}

// Health is the liveness response
type Health struct {
	Status string `json:"status"`
	Online int    `json:"online"`
}
