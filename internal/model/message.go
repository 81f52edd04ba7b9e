package model

import "time"

// ConnID identifies one live connection for the lifetime of its socket
type ConnID string

// TimestampFormat renders message times as HH:MM:SS on the wire
const TimestampFormat = "15:04:05"

// ChatEvent is one room message as held by the message log and the
// durable store. Recipient is set only on private messages, which are
// never logged; it exists so stored payloads round-trip losslessly.
type ChatEvent struct {
	Username    string    `json:"username"`
	Message     string    `json:"message"`
	AvatarColor string    `json:"avatar_color"`
	Recipient   string    `json:"recipient,omitempty"`
	SentAt      time.Time `json:"sent_at"`
}

// Timestamp renders the event time in the wire format
func (e *ChatEvent) Timestamp() string {
	return e.SentAt.Format(TimestampFormat)
}
