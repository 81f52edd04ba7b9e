package chat

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/chatmate/chatmate/internal/dependencies/mocks"
	"github.com/chatmate/chatmate/internal/model"
	"github.com/chatmate/chatmate/internal/presence"
	"github.com/chatmate/chatmate/internal/services/history"
	"github.com/chatmate/chatmate/internal/services/identity"
	"github.com/chatmate/chatmate/internal/storage/memory"
	"github.com/chatmate/chatmate/internal/testutil"
)

// fakeSender records every delivered event for assertions
type fakeSender struct {
	mu     sync.Mutex
	events map[model.ConnID][]model.ServerEvent
}

func newFakeSender() *fakeSender {
	return &fakeSender{events: make(map[model.ConnID][]model.ServerEvent)}
}

func (f *fakeSender) Send(conn model.ConnID, event model.ServerEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[conn] = append(f.events[conn], event)
}

func (f *fakeSender) eventsFor(conn model.ConnID) []model.ServerEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ServerEvent(nil), f.events[conn]...)
}

func (f *fakeSender) names(conn model.ConnID) []model.EventName {
	var names []model.EventName
	for _, ev := range f.eventsFor(conn) {
		names = append(names, ev.Event)
	}
	return names
}

func (f *fakeSender) count(conn model.ConnID, name model.EventName) int {
	n := 0
	for _, ev := range f.eventsFor(conn) {
		if ev.Event == name {
			n++
		}
	}
	return n
}

func (f *fakeSender) last(conn model.ConnID, name model.EventName) (model.ServerEvent, bool) {
	events := f.eventsFor(conn)
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Event == name {
			return events[i], true
		}
	}
	return model.ServerEvent{}, false
}

func (f *fakeSender) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = make(map[model.ConnID][]model.ServerEvent)
}

// stallingSender delays one connection's join_success delivery while a
// concurrently fired room event races the join.
type stallingSender struct {
	*fakeSender
	stallConn model.ConnID
	trigger   func()
	done      chan struct{}
	once      sync.Once
}

func (s *stallingSender) Send(conn model.ConnID, event model.ServerEvent) {
	if conn == s.stallConn && event.Event == model.EventJoinSuccess {
		s.once.Do(func() {
			go func() {
				s.trigger()
				close(s.done)
			}()
			time.Sleep(50 * time.Millisecond)
		})
	}
	s.fakeSender.Send(conn, event)
}

// stepClock advances one second per reading
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type CoordinatorSuite struct {
	suite.Suite
	storage     *memory.Storage
	clock       *mocks.MockClock
	registry    *presence.Registry
	history     *history.Service
	identitySvc *identity.Service
	sender      *fakeSender
	coord       *Coordinator
	ctx         context.Context
}

func TestCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorSuite))
}

func (s *CoordinatorSuite) SetupTest() {
	logger := testutil.NopLogger()
	s.storage = memory.New()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.registry = presence.NewRegistry(logger)
	s.history = history.New(history.DefaultCapacity, nil, logger)
	s.identitySvc = identity.New(s.storage, s.clock, identity.DefaultConfig(), logger)
	s.sender = newFakeSender()
	s.coord = NewCoordinator(s.registry, s.history, s.identitySvc, s.sender, s.clock, logger)
	s.ctx = context.Background()
}

func (s *CoordinatorSuite) register(username, password string) {
	_, err := s.identitySvc.Register(s.ctx, username, password, "")
	s.Require().NoError(err)
}

func (s *CoordinatorSuite) join(conn model.ConnID, username, password string) {
	s.coord.Join(s.ctx, conn, model.JoinPayload{Username: username, Password: password})
}

// Connect

func (s *CoordinatorSuite) TestConnectGreetsConnection() {
	s.coord.Connect("c1")

	ev, ok := s.sender.last("c1", model.EventConnected)
	s.Require().True(ok)
	s.Contains(ev.Data.(model.ConnectedPayload).Message, "Connected")
}

// Join

func (s *CoordinatorSuite) TestJoinHappyPath() {
	s.register("alice", "secret")
	s.join("c1", "alice", "secret")

	ev, ok := s.sender.last("c1", model.EventJoinSuccess)
	s.Require().True(ok)
	s.Equal("alice", ev.Data.(model.JoinSuccessPayload).Username)

	s.Require().NotNil(s.registry.Lookup("c1"))
	s.Equal("alice", s.registry.Lookup("c1").Username)

	// Fresh log: no history replayed
	s.Equal(0, s.sender.count("c1", model.EventNewMessage))

	// Joiner gets the presence snapshot
	list, ok := s.sender.last("c1", model.EventOnlineUsers)
	s.Require().True(ok)
	s.Len(list.Data.(model.OnlineUsersPayload).Users, 1)
}

func (s *CoordinatorSuite) TestJoinWrongPasswordLeavesNoSession() {
	s.register("alice", "secret")
	s.join("c1", "alice", "wrong")

	ev, ok := s.sender.last("c1", model.EventError)
	s.Require().True(ok)
	s.Equal("invalid username or password", ev.Data.(model.ErrorPayload).Message)
	s.Nil(s.registry.Lookup("c1"))
}

func (s *CoordinatorSuite) TestJoinUnknownUserGetsSameGenericError() {
	s.register("alice", "secret")

	s.join("c1", "alice", "wrong")
	wrong, _ := s.sender.last("c1", model.EventError)

	s.join("c2", "nobody", "secret")
	unknown, _ := s.sender.last("c2", model.EventError)

	s.Equal(wrong.Data, unknown.Data)
}

func (s *CoordinatorSuite) TestJoinEmptyUsernameRejected() {
	s.join("c1", "   ", "secret")

	ev, ok := s.sender.last("c1", model.EventError)
	s.Require().True(ok)
	s.Contains(ev.Data.(model.ErrorPayload).Message, "empty")
}

func (s *CoordinatorSuite) TestJoinOverlongUsernameRejected() {
	s.join("c1", strings.Repeat("a", 21), "secret")

	_, ok := s.sender.last("c1", model.EventError)
	s.True(ok)
	s.Nil(s.registry.Lookup("c1"))
}

func (s *CoordinatorSuite) TestDoubleJoinRejected() {
	s.register("alice", "secret")
	s.register("bob", "hunter")
	s.join("c1", "alice", "secret")
	s.sender.reset()

	s.join("c1", "bob", "hunter")

	ev, ok := s.sender.last("c1", model.EventError)
	s.Require().True(ok)
	s.Equal(model.ErrAlreadyAttached.Error(), ev.Data.(model.ErrorPayload).Message)
	s.Equal("alice", s.registry.Lookup("c1").Username)
}

func (s *CoordinatorSuite) TestJoinNotifiesOthersButNotSelf() {
	s.register("alice", "secret")
	s.register("bob", "hunter")
	s.join("c1", "alice", "secret")
	s.sender.reset()

	s.join("c2", "bob", "hunter")

	s.Equal(1, s.sender.count("c1", model.EventUserJoined))
	s.Equal(0, s.sender.count("c2", model.EventUserJoined))

	ev, _ := s.sender.last("c1", model.EventUserJoined)
	s.Equal("bob", ev.Data.(model.UserJoinedPayload).Username)

	// Both get the refreshed snapshot
	for _, conn := range []model.ConnID{"c1", "c2"} {
		list, ok := s.sender.last(conn, model.EventOnlineUsers)
		s.Require().True(ok)
		s.Len(list.Data.(model.OnlineUsersPayload).Users, 2)
	}
}

func (s *CoordinatorSuite) TestJoinReplaysHistoryAfterJoinSuccess() {
	s.register("alice", "secret")
	s.register("bob", "hunter")
	s.join("c1", "alice", "secret")
	s.coord.SendMessage(s.ctx, "c1", "hello")
	s.coord.SendMessage(s.ctx, "c1", "world")

	s.join("c2", "bob", "hunter")

	names := s.sender.names("c2")
	joinIdx, firstMsgIdx := -1, -1
	for i, name := range names {
		if name == model.EventJoinSuccess {
			joinIdx = i
		}
		if name == model.EventNewMessage && firstMsgIdx == -1 {
			firstMsgIdx = i
		}
	}
	s.Require().GreaterOrEqual(joinIdx, 0)
	s.Require().GreaterOrEqual(firstMsgIdx, 0)
	s.Less(joinIdx, firstMsgIdx, "join_success must precede replay")
	s.Equal(2, s.sender.count("c2", model.EventNewMessage))
}

func (s *CoordinatorSuite) TestSendRacingJoinNeverPrecedesJoinSuccess() {
	s.register("alice", "secret")
	s.register("bob", "hunter")

	stalling := &stallingSender{
		fakeSender: s.sender,
		stallConn:  "c2",
		done:       make(chan struct{}),
	}
	coord := NewCoordinator(s.registry, s.history, s.identitySvc, stalling, s.clock, testutil.NopLogger())
	stalling.trigger = func() { coord.SendMessage(s.ctx, "c1", "hi") }

	coord.Join(s.ctx, "c1", model.JoinPayload{Username: "alice", Password: "secret"})
	s.sender.reset()

	coord.Join(s.ctx, "c2", model.JoinPayload{Username: "bob", Password: "hunter"})
	<-stalling.done

	names := s.sender.names("c2")
	joinIdx, firstMsgIdx := -1, -1
	for i, name := range names {
		if name == model.EventJoinSuccess && joinIdx == -1 {
			joinIdx = i
		}
		if name == model.EventNewMessage && firstMsgIdx == -1 {
			firstMsgIdx = i
		}
	}
	s.Require().GreaterOrEqual(joinIdx, 0)
	s.Require().GreaterOrEqual(firstMsgIdx, 0)
	s.Less(joinIdx, firstMsgIdx, "join_success must precede any new_message")

	// Delivered live or replayed, never both
	s.Equal(1, s.sender.count("c2", model.EventNewMessage))
	s.Equal(1, s.sender.count("c1", model.EventNewMessage))
}

func (s *CoordinatorSuite) TestJoinAcceptsMultibyteUsername() {
	s.register("привлекающий", "secret") // 12 runes, 24 bytes
	s.join("c1", "привлекающий", "secret")

	ev, ok := s.sender.last("c1", model.EventJoinSuccess)
	s.Require().True(ok)
	s.Equal("привлекающий", ev.Data.(model.JoinSuccessPayload).Username)
	s.Equal(0, s.sender.count("c1", model.EventError))
	s.NotNil(s.registry.Lookup("c1"))
}

func (s *CoordinatorSuite) TestSameIdentityOnTwoConnections() {
	s.register("alice", "secret")
	s.join("c1", "alice", "secret")
	s.join("c2", "alice", "secret")

	s.NotNil(s.registry.Lookup("c1"))
	s.NotNil(s.registry.Lookup("c2"))
	s.Len(s.registry.ConnectionsFor("alice"), 2)
}

// SendMessage

func (s *CoordinatorSuite) TestSendMessageBroadcastIncludesSender() {
	s.register("alice", "secret")
	s.register("bob", "hunter")
	s.join("c1", "alice", "secret")
	s.join("c2", "bob", "hunter")
	s.sender.reset()

	s.coord.SendMessage(s.ctx, "c1", "hi")

	for _, conn := range []model.ConnID{"c1", "c2"} {
		ev, ok := s.sender.last(conn, model.EventNewMessage)
		s.Require().True(ok, "conn %s", conn)
		payload := ev.Data.(model.NewMessagePayload)
		s.Equal("alice", payload.Username)
		s.Equal("hi", payload.Message)
		s.Equal("12:00:00", payload.Timestamp)
		s.NotEmpty(payload.AvatarColor)
	}
	s.Equal(1, s.history.Len())
}

func (s *CoordinatorSuite) TestSendMessageEmptyBodyIsSilentNoop() {
	s.register("alice", "secret")
	s.join("c1", "alice", "secret")
	s.sender.reset()

	s.coord.SendMessage(s.ctx, "c1", "   ")

	s.Empty(s.sender.eventsFor("c1"))
	s.Equal(0, s.history.Len())
}

func (s *CoordinatorSuite) TestSendMessageOverlongBodyRejected() {
	s.register("alice", "secret")
	s.join("c1", "alice", "secret")
	s.sender.reset()

	s.coord.SendMessage(s.ctx, "c1", strings.Repeat("x", MaxMessageLen+1))

	s.Equal(1, s.sender.count("c1", model.EventError))
	s.Equal(0, s.sender.count("c1", model.EventNewMessage))
	s.Equal(0, s.history.Len())
}

func (s *CoordinatorSuite) TestMessageLengthCountsCharactersNotBytes() {
	s.register("alice", "secret")
	s.join("c1", "alice", "secret")
	s.sender.reset()

	s.coord.SendMessage(s.ctx, "c1", strings.Repeat("ж", MaxMessageLen))
	s.Equal(1, s.sender.count("c1", model.EventNewMessage))
	s.Equal(0, s.sender.count("c1", model.EventError))
	s.Equal(1, s.history.Len())

	s.coord.SendMessage(s.ctx, "c1", strings.Repeat("ж", MaxMessageLen+1))
	s.Equal(1, s.sender.count("c1", model.EventError))
	s.Equal(1, s.history.Len())
}

func (s *CoordinatorSuite) TestConcurrentSendsKeepLogInTimestampOrder() {
	s.register("alice", "secret")
	s.join("c1", "alice", "secret")

	clk := &stepClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	coord := NewCoordinator(s.registry, s.history, s.identitySvc, s.sender, clk, testutil.NopLogger())

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				coord.SendMessage(s.ctx, "c1", "tick")
			}
		}()
	}
	wg.Wait()

	events := s.history.Recent(s.history.Len())
	s.Require().Len(events, 100)
	for i := 1; i < len(events); i++ {
		s.False(events[i].SentAt.Before(events[i-1].SentAt), "event %d out of order", i)
	}
}

func (s *CoordinatorSuite) TestSendMessageUnauthenticatedRejected() {
	s.coord.SendMessage(s.ctx, "c1", "hi")

	ev, ok := s.sender.last("c1", model.EventError)
	s.Require().True(ok)
	s.Equal(msgNotJoined, ev.Data.(model.ErrorPayload).Message)
	s.Equal(0, s.history.Len())
}

// Typing

func (s *CoordinatorSuite) TestTypingNotifiesOthersOnly() {
	s.register("alice", "secret")
	s.register("bob", "hunter")
	s.join("c1", "alice", "secret")
	s.join("c2", "bob", "hunter")
	s.sender.reset()

	s.coord.TypingStart("c1")
	s.coord.TypingStop("c1")

	s.Equal(1, s.sender.count("c2", model.EventUserTyping))
	s.Equal(1, s.sender.count("c2", model.EventUserStoppedTyping))
	s.Empty(s.sender.eventsFor("c1"))

	ev, _ := s.sender.last("c2", model.EventUserTyping)
	s.Equal("alice", ev.Data.(model.UserTypingPayload).Username)
}

func (s *CoordinatorSuite) TestTypingFromUnauthenticatedIsSilent() {
	s.coord.TypingStart("c1")
	s.coord.TypingStop("c1")
	s.Empty(s.sender.eventsFor("c1"))
}

func (s *CoordinatorSuite) TestTypingNeverLogged() {
	s.register("alice", "secret")
	s.join("c1", "alice", "secret")

	s.coord.TypingStart("c1")
	s.Equal(0, s.history.Len())
}

// Private messages

func (s *CoordinatorSuite) TestPrivateMessageDeliveredToAllTargetConnections() {
	s.register("alice", "secret")
	s.register("bob", "hunter")
	s.join("c1", "alice", "secret")
	s.join("c2", "bob", "hunter")
	s.join("c3", "bob", "hunter")
	s.sender.reset()

	s.coord.PrivateMessage(s.ctx, "c1", model.PrivateMessagePayload{Target: "bob", Message: "psst"})

	for _, conn := range []model.ConnID{"c2", "c3"} {
		ev, ok := s.sender.last(conn, model.EventPrivateReceived)
		s.Require().True(ok, "conn %s", conn)
		payload := ev.Data.(model.PrivateReceivedPayload)
		s.Equal("alice", payload.From)
		s.Equal("psst", payload.Message)
	}

	echo, ok := s.sender.last("c1", model.EventPrivateSent)
	s.Require().True(ok)
	s.Equal("bob", echo.Data.(model.PrivateSentPayload).To)

	// Never logged, never broadcast beyond sender+targets
	s.Equal(0, s.history.Len())
	s.Equal(0, s.sender.count("c1", model.EventPrivateReceived))
}

func (s *CoordinatorSuite) TestPrivateMessageToOfflineTargetIsSilent() {
	s.register("alice", "secret")
	s.join("c1", "alice", "secret")
	s.sender.reset()

	s.coord.PrivateMessage(s.ctx, "c1", model.PrivateMessagePayload{Target: "ghost", Message: "psst"})

	s.Empty(s.sender.eventsFor("c1"))
	s.Equal(0, s.history.Len())
}

func (s *CoordinatorSuite) TestPrivateMessageValidation() {
	s.register("alice", "secret")
	s.register("bob", "hunter")
	s.join("c1", "alice", "secret")
	s.join("c2", "bob", "hunter")
	s.sender.reset()

	s.coord.PrivateMessage(s.ctx, "c1", model.PrivateMessagePayload{Target: "bob", Message: " "})
	s.Empty(s.sender.eventsFor("c2"))

	s.coord.PrivateMessage(s.ctx, "c1", model.PrivateMessagePayload{
		Target: "bob", Message: strings.Repeat("x", MaxMessageLen+1),
	})
	s.Equal(1, s.sender.count("c1", model.EventError))
}

// Online users

func (s *CoordinatorSuite) TestGetOnlineUsersRespondsOnlyToRequester() {
	s.register("alice", "secret")
	s.join("c1", "alice", "secret")
	s.sender.reset()

	s.coord.GetOnlineUsers("c2") // unauthenticated requester is fine

	list, ok := s.sender.last("c2", model.EventOnlineUsers)
	s.Require().True(ok)
	users := list.Data.(model.OnlineUsersPayload).Users
	s.Require().Len(users, 1)
	s.Equal("alice", users[0].Username)
	s.Empty(s.sender.eventsFor("c1"))
}

// Disconnect

func (s *CoordinatorSuite) TestDisconnectBroadcastsUserLeft() {
	s.register("alice", "secret")
	s.register("bob", "hunter")
	s.join("c1", "alice", "secret")
	s.join("c2", "bob", "hunter")
	s.sender.reset()

	s.coord.Disconnect("c1")

	ev, ok := s.sender.last("c2", model.EventUserLeft)
	s.Require().True(ok)
	s.Equal("alice", ev.Data.(model.UserLeftPayload).Username)

	list, ok := s.sender.last("c2", model.EventOnlineUsers)
	s.Require().True(ok)
	s.Len(list.Data.(model.OnlineUsersPayload).Users, 1)

	s.Nil(s.registry.Lookup("c1"))
}

func (s *CoordinatorSuite) TestDisconnectIsIdempotent() {
	s.register("alice", "secret")
	s.join("c1", "alice", "secret")

	s.coord.Disconnect("c1")
	s.sender.reset()
	s.coord.Disconnect("c1")
	s.coord.Disconnect("never-connected")

	s.Empty(s.sender.eventsFor("c1"))
}

// Full lifecycle

func (s *CoordinatorSuite) TestRegisterJoinSendDisconnectScenario() {
	s.register("alice", "secret")

	s.join("c1", "alice", "wrong")
	s.Nil(s.registry.Lookup("c1"))

	s.join("c1", "alice", "secret")
	_, ok := s.sender.last("c1", model.EventJoinSuccess)
	s.Require().True(ok)
	s.Equal(0, s.sender.count("c1", model.EventNewMessage))

	s.coord.SendMessage(s.ctx, "c1", "hi")
	ev, ok := s.sender.last("c1", model.EventNewMessage)
	s.Require().True(ok)
	s.Equal("alice", ev.Data.(model.NewMessagePayload).Username)
	s.Equal("hi", ev.Data.(model.NewMessagePayload).Message)

	s.coord.Disconnect("c1")
	s.Nil(s.registry.Lookup("c1"))
}
