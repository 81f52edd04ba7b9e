// Package identity validates registration input and authenticates join
// attempts against the account directory.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/chatmate/chatmate/internal/dependencies/clock"
	"github.com/chatmate/chatmate/internal/model"
	"github.com/chatmate/chatmate/internal/storage"
)

// ErrInvalidCredentials covers both unknown account and wrong password.
// The two cases are deliberately indistinguishable to callers.
var ErrInvalidCredentials = errors.New("invalid username or password")

// Username length bounds
const (
	MinUsernameLen = 2
	MaxUsernameLen = 20
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// dummyHash absorbs a bcrypt comparison when the account key is unknown,
// so authentication latency does not reveal whether the key exists.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("chatmate-timing-pad"), bcrypt.DefaultCost)

// Config holds configuration for the identity service
type Config struct {
	// KeyMode selects whether accounts are keyed by username or email
	KeyMode model.AccountKeyMode
	// MinPasswordLen is the minimum accepted password length
	MinPasswordLen int
}

// DefaultConfig returns default identity configuration
func DefaultConfig() Config {
	return Config{
		KeyMode:        model.KeyByUsername,
		MinPasswordLen: 3,
	}
}

// Service handles registration and credential verification
type Service struct {
	storage storage.Storage
	clock   clock.Clock
	cfg     Config
	logger  *slog.Logger
}

// New creates a new identity service
func New(store storage.Storage, clk clock.Clock, cfg Config, logger *slog.Logger) *Service {
	if cfg.KeyMode == "" {
		cfg.KeyMode = model.KeyByUsername
	}
	if cfg.MinPasswordLen == 0 {
		cfg.MinPasswordLen = DefaultConfig().MinPasswordLen
	}
	return &Service{
		storage: store,
		clock:   clk,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "identity")),
	}
}

// KeyMode returns the configured account key mode
func (s *Service) KeyMode() model.AccountKeyMode {
	return s.cfg.KeyMode
}

// ValidateRegistration checks registration input. Malformed input is an
// expected, recoverable case reported as a validation sentinel.
func (s *Service) ValidateRegistration(username, password, email string) error {
	if utf8.RuneCountInString(username) < MinUsernameLen {
		return model.ErrUsernameTooShort
	}
	if utf8.RuneCountInString(username) > MaxUsernameLen {
		return model.ErrUsernameTooLong
	}
	for _, r := range username {
		if !unicode.IsPrint(r) {
			return model.ErrUsernameInvalid
		}
	}
	if len(password) < s.cfg.MinPasswordLen {
		return model.ErrPasswordTooShort
	}
	if s.cfg.KeyMode == model.KeyByEmail && !emailPattern.MatchString(email) {
		return model.ErrEmailInvalid
	}
	return nil
}

// Register validates input and creates the account, hashing the password
// before it ever reaches storage.
func (s *Service) Register(ctx context.Context, username, password, email string) (*model.Account, error) {
	if err := s.ValidateRegistration(username, password, email); err != nil {
		return nil, err
	}

	key := s.accountKey(username, email)

	exists, err := s.storage.AccountExists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("checking account %q: %w", key, err)
	}
	if exists {
		return nil, model.ErrAccountExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	account := &model.Account{
		Key:          key,
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    s.clock.Now(),
	}
	if s.cfg.KeyMode == model.KeyByEmail {
		account.Email = email
	}

	if err := s.storage.SaveAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("saving account %q: %w", key, err)
	}

	s.logger.Info("account registered", slog.String("username", username))
	return account, nil
}

// Authenticate verifies a key/password pair. Unknown keys and wrong
// passwords both yield ErrInvalidCredentials; a bcrypt comparison runs
// either way.
func (s *Service) Authenticate(ctx context.Context, key model.AccountKey, password string) (*model.Account, error) {
	account, err := s.storage.GetAccount(ctx, key)
	if err != nil {
		if errors.Is(err, model.ErrAccountNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return account, nil
}

// accountKey derives the directory key for the configured mode
func (s *Service) accountKey(username, email string) model.AccountKey {
	if s.cfg.KeyMode == model.KeyByEmail {
		return model.AccountKey(email)
	}
	return model.AccountKey(username)
}
