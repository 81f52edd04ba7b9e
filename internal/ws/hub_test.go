package ws

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/chatmate/chatmate/internal/model"
	"github.com/chatmate/chatmate/internal/testutil"
)

type HubSuite struct {
	suite.Suite
	hub *Hub
}

func TestHubSuite(t *testing.T) {
	suite.Run(t, new(HubSuite))
}

func (s *HubSuite) SetupTest() {
	s.hub = NewHub(testutil.NopLogger())
}

func (s *HubSuite) client(id string) *Client {
	return NewClient(model.ConnID(id), nil, testutil.NopLogger())
}

func (s *HubSuite) TestRegisterAndSend() {
	client := s.client("c1")
	s.hub.Register(client)
	s.Equal(1, s.hub.Len())

	s.hub.Send("c1", model.ServerEvent{
		Event: model.EventConnected,
		Data:  model.ConnectedPayload{Message: "hello"},
	})

	s.Require().Len(client.send, 1)
	var event struct {
		Event string                 `json:"event"`
		Data  model.ConnectedPayload `json:"data"`
	}
	s.Require().NoError(json.Unmarshal(<-client.send, &event))
	s.Equal("connected", event.Event)
	s.Equal("hello", event.Data.Message)
}

func (s *HubSuite) TestSendToUnknownConnectionIsNoop() {
	s.hub.Send("ghost", model.ServerEvent{Event: model.EventConnected})
	s.Equal(0, s.hub.Len())
}

func (s *HubSuite) TestSendDropsWhenQueueFull() {
	client := s.client("c1")
	s.hub.Register(client)

	event := model.ServerEvent{Event: model.EventNewMessage, Data: model.NewMessagePayload{Message: "x"}}
	for i := 0; i < sendQueueSize+10; i++ {
		s.hub.Send("c1", event)
	}

	// Overflow is dropped, not blocked on
	s.Len(client.send, sendQueueSize)
}

func (s *HubSuite) TestUnregisterClosesQueue() {
	client := s.client("c1")
	s.hub.Register(client)

	s.hub.Unregister("c1")
	s.Equal(0, s.hub.Len())

	_, open := <-client.send
	s.False(open)

	// Repeated and unknown unregisters are harmless
	s.hub.Unregister("c1")
	s.hub.Unregister("never-registered")
}

func (s *HubSuite) TestSendAfterUnregisterIsNoop() {
	client := s.client("c1")
	s.hub.Register(client)
	s.hub.Unregister("c1")

	s.hub.Send("c1", model.ServerEvent{Event: model.EventConnected})
}

// recordingHandler captures dispatched events for dispatch tests
type recordingHandler struct {
	joins    []model.JoinPayload
	messages []string
	privates []model.PrivateMessagePayload
	typing   int
	stopped  int
	listed   int
}

func (r *recordingHandler) Connect(model.ConnID)    {}
func (r *recordingHandler) Disconnect(model.ConnID) {}
func (r *recordingHandler) Join(_ context.Context, _ model.ConnID, req model.JoinPayload) {
	r.joins = append(r.joins, req)
}
func (r *recordingHandler) SendMessage(_ context.Context, _ model.ConnID, body string) {
	r.messages = append(r.messages, body)
}
func (r *recordingHandler) PrivateMessage(_ context.Context, _ model.ConnID, req model.PrivateMessagePayload) {
	r.privates = append(r.privates, req)
}
func (r *recordingHandler) TypingStart(model.ConnID)    { r.typing++ }
func (r *recordingHandler) TypingStop(model.ConnID)     { r.stopped++ }
func (r *recordingHandler) GetOnlineUsers(model.ConnID) { r.listed++ }

type DispatchSuite struct {
	suite.Suite
	client  *Client
	handler *recordingHandler
	ctx     context.Context
}

func TestDispatchSuite(t *testing.T) {
	suite.Run(t, new(DispatchSuite))
}

func (s *DispatchSuite) SetupTest() {
	s.client = NewClient("c1", nil, testutil.NopLogger())
	s.handler = &recordingHandler{}
	s.ctx = context.Background()
}

func (s *DispatchSuite) dispatch(raw string) {
	s.client.dispatch(s.ctx, []byte(raw), s.handler)
}

func (s *DispatchSuite) TestDispatchJoin() {
	s.dispatch(`{"event":"join","data":{"username":"alice","password":"secret"}}`)

	s.Require().Len(s.handler.joins, 1)
	s.Equal("alice", s.handler.joins[0].Username)
	s.Equal("secret", s.handler.joins[0].Password)
}

func (s *DispatchSuite) TestDispatchSendMessage() {
	s.dispatch(`{"event":"send_message","data":{"message":"hi"}}`)

	s.Equal([]string{"hi"}, s.handler.messages)
}

func (s *DispatchSuite) TestDispatchTypingAndList() {
	s.dispatch(`{"event":"typing_start"}`)
	s.dispatch(`{"event":"typing_stop"}`)
	s.dispatch(`{"event":"get_online_users"}`)

	s.Equal(1, s.handler.typing)
	s.Equal(1, s.handler.stopped)
	s.Equal(1, s.handler.listed)
}

func (s *DispatchSuite) TestDispatchPrivateMessage() {
	s.dispatch(`{"event":"private_message","data":{"target":"bob","message":"psst"}}`)

	s.Require().Len(s.handler.privates, 1)
	s.Equal("bob", s.handler.privates[0].Target)
}

func (s *DispatchSuite) TestMalformedEnvelopeYieldsWireError() {
	s.dispatch(`{not json`)

	s.Require().Len(s.client.send, 1)
	var event model.ServerEvent
	s.Require().NoError(json.Unmarshal(<-s.client.send, &event))
	s.Equal(model.EventError, event.Event)
	s.Empty(s.handler.messages)
}

func (s *DispatchSuite) TestMalformedPayloadYieldsWireError() {
	s.dispatch(`{"event":"send_message","data":"not-an-object"}`)

	s.Len(s.client.send, 1)
	s.Empty(s.handler.messages)
}

func (s *DispatchSuite) TestUnknownEventYieldsWireError() {
	s.dispatch(`{"event":"dance"}`)

	s.Require().Len(s.client.send, 1)
	var event model.ServerEvent
	s.Require().NoError(json.Unmarshal(<-s.client.send, &event))
	s.Equal(model.EventError, event.Event)
}
