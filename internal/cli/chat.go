package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/chatmate/chatmate/internal/model"
)

func newChatCmd() *cobra.Command {
	var user, pass, email string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Join the room interactively",
		Long: `chat connects to the server over WebSocket, joins the room with the
given credentials, and relays stdin lines as chat messages.

In-session commands:
  /pm <user> <message>   send a private message
  /users                 list who is online
  /quit                  leave`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" || pass == "" {
				return fmt.Errorf("--user and --pass are required")
			}
			return runChat(cfg, user, pass, email)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Username (required)")
	cmd.Flags().StringVar(&pass, "pass", "", "Password (required)")
	cmd.Flags().StringVar(&email, "email", "", "Email (required on email-keyed servers)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("pass")

	return cmd
}

func runChat(cfg *Config, user, pass, email string) error {
	conn, _, err := websocket.DefaultDialer.Dial(cfg.SocketURL(), nil)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", cfg.SocketURL(), err)
	}
	defer func() { _ = conn.Close() }()

	if err := writeEvent(conn, model.EventJoin, model.JoinPayload{
		Username: user,
		Email:    email,
		Password: pass,
	}); err != nil {
		return err
	}

	// Reader goroutine prints server events until the connection drops
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			printEvent(raw)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-done:
			return fmt.Errorf("connection closed by server")
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil

		case line == "/users":
			if err := writeEvent(conn, model.EventGetOnlineUsers, nil); err != nil {
				return err
			}

		case strings.HasPrefix(line, "/pm "):
			parts := strings.SplitN(strings.TrimPrefix(line, "/pm "), " ", 2)
			if len(parts) < 2 {
				fmt.Println("usage: /pm <user> <message>")
				continue
			}
			if err := writeEvent(conn, model.EventPrivateMessage, model.PrivateMessagePayload{
				Target:  parts[0],
				Message: parts[1],
			}); err != nil {
				return err
			}

		default:
			if err := writeEvent(conn, model.EventSendMessage, model.SendMessagePayload{
				Message: line,
			}); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}

func writeEvent(conn *websocket.Conn, name model.EventName, data any) error {
	payload := map[string]any{"event": name}
	if data != nil {
		payload["data"] = data
	}
	if err := conn.WriteJSON(payload); err != nil {
		return fmt.Errorf("sending %s: %w", name, err)
	}
	return nil
}

// printEvent renders one server event as a terminal line
func printEvent(raw []byte) {
	var event model.ClientEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		fmt.Printf("?? %s\n", raw)
		return
	}

	switch event.Event {
	case model.EventConnected:
		var p model.ConnectedPayload
		_ = json.Unmarshal(event.Data, &p)
		fmt.Printf("* %s\n", p.Message)

	case model.EventJoinSuccess:
		var p model.JoinSuccessPayload
		_ = json.Unmarshal(event.Data, &p)
		fmt.Printf("* joined as %s\n", p.Username)

	case model.EventError:
		var p model.ErrorPayload
		_ = json.Unmarshal(event.Data, &p)
		fmt.Printf("! %s\n", p.Message)

	case model.EventNewMessage:
		var p model.NewMessagePayload
		_ = json.Unmarshal(event.Data, &p)
		fmt.Printf("[%s] %s: %s\n", p.Timestamp, p.Username, p.Message)

	case model.EventUserJoined:
		var p model.UserJoinedPayload
		_ = json.Unmarshal(event.Data, &p)
		fmt.Printf("* %s joined\n", p.Username)

	case model.EventUserLeft:
		var p model.UserLeftPayload
		_ = json.Unmarshal(event.Data, &p)
		fmt.Printf("* %s left\n", p.Username)

	case model.EventOnlineUsers:
		var p model.OnlineUsersPayload
		_ = json.Unmarshal(event.Data, &p)
		names := make([]string, 0, len(p.Users))
		for _, u := range p.Users {
			names = append(names, u.Username)
		}
		fmt.Printf("* online (%d): %s\n", len(p.Users), strings.Join(names, ", "))

	case model.EventUserTyping:
		var p model.UserTypingPayload
		_ = json.Unmarshal(event.Data, &p)
		fmt.Printf("* %s is typing...\n", p.Username)

	case model.EventUserStoppedTyping:
		// Not worth a terminal line

	case model.EventPrivateReceived:
		var p model.PrivateReceivedPayload
		_ = json.Unmarshal(event.Data, &p)
		fmt.Printf("[%s] (pm) %s: %s\n", p.Timestamp, p.From, p.Message)

	case model.EventPrivateSent:
		var p model.PrivateSentPayload
		_ = json.Unmarshal(event.Data, &p)
		fmt.Printf("[%s] (pm to %s) %s\n", p.Timestamp, p.To, p.Message)

	default:
		fmt.Printf("?? %s\n", raw)
	}
}
