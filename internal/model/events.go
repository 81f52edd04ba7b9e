package model

import "encoding/json"

// EventName identifies an event on the wire
type EventName string

// Outbound events (server -> client)
const (
	EventConnected         EventName = "connected"
	EventJoinSuccess       EventName = "join_success"
	EventError             EventName = "error"
	EventNewMessage        EventName = "new_message"
	EventUserJoined        EventName = "user_joined"
	EventUserLeft          EventName = "user_left"
	EventOnlineUsers       EventName = "online_users_list"
	EventUserTyping        EventName = "user_typing"
	EventUserStoppedTyping EventName = "user_stopped_typing"
	EventPrivateReceived   EventName = "private_message_received"
	EventPrivateSent       EventName = "private_message_sent"
)

// Inbound events (client -> server)
const (
	EventJoin           EventName = "join"
	EventSendMessage    EventName = "send_message"
	EventTypingStart    EventName = "typing_start"
	EventTypingStop     EventName = "typing_stop"
	EventPrivateMessage EventName = "private_message"
	EventGetOnlineUsers EventName = "get_online_users"
)

// ServerEvent is the outbound wire envelope
type ServerEvent struct {
	Event EventName `json:"event"`
	Data  any       `json:"data"`
}

// ClientEvent is the inbound wire envelope. Data stays raw until the
// event name selects a payload type.
type ClientEvent struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ConnectedPayload greets a freshly accepted connection
type ConnectedPayload struct {
	Message string `json:"message"`
}

// JoinPayload carries a join attempt's credentials.
// Email is the account key in email-keyed deployments.
type JoinPayload struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// JoinSuccessPayload confirms an authenticated join
type JoinSuccessPayload struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// ErrorPayload reports a recoverable error to one connection
type ErrorPayload struct {
	Message string `json:"message"`
}

// SendMessagePayload carries a room message body
type SendMessagePayload struct {
	Message string `json:"message"`
}

// NewMessagePayload is a room message fanned out to all sessions
type NewMessagePayload struct {
	Username    string `json:"username"`
	Message     string `json:"message"`
	AvatarColor string `json:"avatar_color"`
	Timestamp   string `json:"timestamp"`
}

// UserJoinedPayload announces a new session to the other connections
type UserJoinedPayload struct {
	Username    string `json:"username"`
	AvatarColor string `json:"avatar_color"`
}

// UserLeftPayload announces a departed session
type UserLeftPayload struct {
	Username string `json:"username"`
}

// OnlineUser is one entry of an online_users_list snapshot
type OnlineUser struct {
	Username    string `json:"username"`
	AvatarColor string `json:"avatar_color"`
}

// OnlineUsersPayload is the presence snapshot
type OnlineUsersPayload struct {
	Users []OnlineUser `json:"users"`
}

// UserTypingPayload signals that a user started typing
type UserTypingPayload struct {
	Username string `json:"username"`
}

// PrivateMessagePayload carries a private message request
type PrivateMessagePayload struct {
	Target  string `json:"target"`
	Message string `json:"message"`
}

// PrivateReceivedPayload delivers a private message to the target's connections
type PrivateReceivedPayload struct {
	From        string `json:"from"`
	Message     string `json:"message"`
	AvatarColor string `json:"avatar_color"`
	Timestamp   string `json:"timestamp"`
}

// PrivateSentPayload echoes a delivered private message back to the sender only
type PrivateSentPayload struct {
	To        string `json:"to"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}
