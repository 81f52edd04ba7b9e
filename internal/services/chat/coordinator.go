// Package chat orchestrates connection lifecycle and client events:
// authentication, history replay, presence bookkeeping, and fan-out.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/chatmate/chatmate/internal/dependencies/clock"
	"github.com/chatmate/chatmate/internal/model"
	"github.com/chatmate/chatmate/internal/presence"
	"github.com/chatmate/chatmate/internal/services/avatar"
	"github.com/chatmate/chatmate/internal/services/history"
	"github.com/chatmate/chatmate/internal/services/identity"
)

const (
	// ReplayLimit caps how much history a new session receives
	ReplayLimit = 50
	// MaxMessageLen bounds room and private message bodies, in characters
	MaxMessageLen = 1000
)

// Generic client-facing error messages. Authentication failures never
// distinguish unknown account from wrong password, and collaborator
// failures never leak internals.
const (
	msgNotJoined   = "You must join the chat first"
	msgServerError = "Server error, please try again"
)

// Sender delivers an event to one live connection. Implemented by the
// transport hub; delivery to a closed connection must be a safe no-op.
type Sender interface {
	Send(conn model.ConnID, event model.ServerEvent)
}

// Coordinator drives the per-connection state machine. Connections
// start unauthenticated, become authenticated on a verified join, and
// end at disconnect. Session and history state live in the presence
// registry and the history log; the coordinator adds only the fan-out
// mutex that keeps log order and delivery order consistent.
type Coordinator struct {
	presence *presence.Registry
	history  *history.Service
	identity *identity.Service
	sender   Sender
	clock    clock.Clock
	logger   *slog.Logger

	// mu serializes every section that appends to the log, enumerates
	// broadcast targets, or changes who the targets are. A session
	// therefore becomes a broadcast target only once its join_success
	// and replay are enqueued, no message is delivered both replayed
	// and live, and log timestamps are non-decreasing. Slow
	// collaborator calls (bcrypt, the credential lookup) stay outside.
	mu sync.Mutex
}

// NewCoordinator wires the chat core together
func NewCoordinator(
	reg *presence.Registry,
	hist *history.Service,
	ident *identity.Service,
	sender Sender,
	clk clock.Clock,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		presence: reg,
		history:  hist,
		identity: ident,
		sender:   sender,
		clock:    clk,
		logger:   logger.With(slog.String("component", "chat")),
	}
}

// Connect greets a freshly accepted, still unauthenticated connection
func (c *Coordinator) Connect(conn model.ConnID) {
	c.send(conn, model.EventConnected, model.ConnectedPayload{
		Message: "Connected to ChatMate server",
	})
}

// Join authenticates a connection and attaches its session. The
// credential check runs before any registry mutation, so a failed join
// leaves no trace. Attach, join_success, and the replay happen in one
// critical section: a concurrent room message either lands in the
// replayed history or is broadcast after it, never before and never
// twice.
func (c *Coordinator) Join(ctx context.Context, conn model.ConnID, req model.JoinPayload) {
	if c.presence.Lookup(conn) != nil {
		c.sendError(conn, model.ErrAlreadyAttached.Error())
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		c.sendError(conn, "Username cannot be empty")
		return
	}
	if utf8.RuneCountInString(username) > identity.MaxUsernameLen {
		c.sendError(conn, "Username too long (max 20 characters)")
		return
	}

	key := model.AccountKey(username)
	if c.identity.KeyMode() == model.KeyByEmail {
		key = model.AccountKey(strings.TrimSpace(req.Email))
	}

	account, err := c.identity.Authenticate(ctx, key, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			c.sendError(conn, identity.ErrInvalidCredentials.Error())
		} else {
			c.logger.Error("authentication lookup failed",
				slog.String("conn", string(conn)), slog.Any("error", err))
			c.sendError(conn, msgServerError)
		}
		return
	}

	session := &presence.Session{
		Conn:        conn,
		Username:    account.Username,
		Email:       account.Email,
		AvatarColor: avatar.ColorFor(account.Username),
		JoinedAt:    c.clock.Now(),
	}

	c.mu.Lock()
	if err := c.presence.Attach(session); err != nil {
		c.mu.Unlock()
		c.sendError(conn, err.Error())
		return
	}

	c.send(conn, model.EventJoinSuccess, model.JoinSuccessPayload{
		Username: account.Username,
		Email:    account.Email,
	})

	// Replay happens after join_success so the client never sees a
	// message before its own session is confirmed.
	for _, event := range c.history.Recent(ReplayLimit) {
		c.send(conn, model.EventNewMessage, newMessagePayload(event))
	}

	c.sendMany(c.presence.BroadcastTargets(conn), model.EventUserJoined, model.UserJoinedPayload{
		Username:    session.Username,
		AvatarColor: session.AvatarColor,
	})
	c.broadcastOnlineUsers()
	c.mu.Unlock()

	c.logger.Info("user joined", slog.String("username", session.Username))
}

// SendMessage validates, records, and fans out a room message. The
// sender receives the same new_message event as everyone else.
func (c *Coordinator) SendMessage(ctx context.Context, conn model.ConnID, body string) {
	session := c.presence.Lookup(conn)
	if session == nil {
		c.sendError(conn, msgNotJoined)
		return
	}

	message := strings.TrimSpace(body)
	if message == "" {
		return
	}
	if utf8.RuneCountInString(message) > MaxMessageLen {
		c.sendError(conn, model.ErrMessageTooLong.Error())
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Stamped inside the critical section so log order and timestamp
	// order agree.
	event := &model.ChatEvent{
		Username:    session.Username,
		Message:     message,
		AvatarColor: session.AvatarColor,
		SentAt:      c.clock.Now(),
	}
	if err := c.history.Append(ctx, event); err != nil {
		c.logger.Error("message append failed",
			slog.String("username", session.Username), slog.Any("error", err))
		c.sendError(conn, msgServerError)
		return
	}

	c.sendMany(c.presence.BroadcastTargets(""), model.EventNewMessage, newMessagePayload(event))
}

// TypingStart notifies everyone else that the user started typing.
// Ephemeral: never logged, never replayed.
func (c *Coordinator) TypingStart(conn model.ConnID) {
	session := c.presence.Lookup(conn)
	if session == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendMany(c.presence.BroadcastTargets(conn), model.EventUserTyping, model.UserTypingPayload{
		Username: session.Username,
	})
}

// TypingStop clears the typing signal for everyone else
func (c *Coordinator) TypingStop(conn model.ConnID) {
	if c.presence.Lookup(conn) == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendMany(c.presence.BroadcastTargets(conn), model.EventUserStoppedTyping, struct{}{})
}

// PrivateMessage delivers a message to every live connection of the
// target identity and echoes a confirmation to the sender. An offline
// target is a silent no-op; private messages never touch the history.
func (c *Coordinator) PrivateMessage(ctx context.Context, conn model.ConnID, req model.PrivateMessagePayload) {
	session := c.presence.Lookup(conn)
	if session == nil {
		c.sendError(conn, msgNotJoined)
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return
	}
	if utf8.RuneCountInString(message) > MaxMessageLen {
		c.sendError(conn, model.ErrMessageTooLong.Error())
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	targets := c.presence.ConnectionsFor(req.Target)
	if len(targets) == 0 {
		return
	}

	timestamp := c.clock.Now().Format(model.TimestampFormat)
	c.sendMany(targets, model.EventPrivateReceived, model.PrivateReceivedPayload{
		From:        session.Username,
		Message:     message,
		AvatarColor: session.AvatarColor,
		Timestamp:   timestamp,
	})
	c.send(conn, model.EventPrivateSent, model.PrivateSentPayload{
		To:        req.Target,
		Message:   message,
		Timestamp: timestamp,
	})
}

// GetOnlineUsers answers only the requesting connection; valid in any state
func (c *Coordinator) GetOnlineUsers(conn model.ConnID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.send(conn, model.EventOnlineUsers, model.OnlineUsersPayload{
		Users: c.presence.ListOnline(),
	})
}

// Disconnect tears down the connection's session, if any. Safe to call
// repeatedly; duplicate disconnect signals detach nothing.
func (c *Coordinator) Disconnect(conn model.ConnID) {
	c.mu.Lock()
	session := c.presence.Detach(conn)
	if session == nil {
		c.mu.Unlock()
		return
	}

	c.sendMany(c.presence.BroadcastTargets(""), model.EventUserLeft, model.UserLeftPayload{
		Username: session.Username,
	})
	c.broadcastOnlineUsers()
	c.mu.Unlock()

	c.logger.Info("user left", slog.String("username", session.Username))
}

// broadcastOnlineUsers is called with mu held
func (c *Coordinator) broadcastOnlineUsers() {
	payload := model.OnlineUsersPayload{Users: c.presence.ListOnline()}
	c.sendMany(c.presence.BroadcastTargets(""), model.EventOnlineUsers, payload)
}

func (c *Coordinator) send(conn model.ConnID, name model.EventName, data any) {
	c.sender.Send(conn, model.ServerEvent{Event: name, Data: data})
}

func (c *Coordinator) sendMany(conns []model.ConnID, name model.EventName, data any) {
	event := model.ServerEvent{Event: name, Data: data}
	for _, conn := range conns {
		c.sender.Send(conn, event)
	}
}

func (c *Coordinator) sendError(conn model.ConnID, message string) {
	c.send(conn, model.EventError, model.ErrorPayload{Message: message})
}

func newMessagePayload(event *model.ChatEvent) model.NewMessagePayload {
	return model.NewMessagePayload{
		Username:    event.Username,
		Message:     event.Message,
		AvatarColor: event.AvatarColor,
		Timestamp:   event.Timestamp(),
	}
}
