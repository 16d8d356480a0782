package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentchain/core"
)

type mockChannel struct {
	mock.Mock
}

func (m *mockChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	return m.Called(name, kind, durable, autoDelete).Error(0)
}

func (m *mockChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return m.Called(exchange, key, msg).Error(0)
}

func (m *mockChannel) Close() error { return m.Called().Error(0) }

var testKey = core.SessionKey{AppName: "chain", UserID: "u", SessionID: "s"}

func TestPublish(t *testing.T) {
	ch := &mockChannel{}
	ch.On("ExchangeDeclare", "agentchain.events", amqp.ExchangeTopic, false, true).Return(nil)

	var published amqp.Publishing
	ch.On("PublishWithContext", "agentchain.events", "events.chain.wallet_agent", mock.Anything).
		Run(func(args mock.Arguments) { published = args.Get(2).(amqp.Publishing) }).
		Return(nil)

	sink, err := NewFromChannel(ch, Config{})
	require.NoError(t, err)

	ev := core.NewMessageEvent("wallet_agent", "did:bid:abc")
	ev.InvocationID = "run-1"
	ev.Final = true

	require.NoError(t, sink.Publish(context.Background(), testKey, ev))
	ch.AssertExpectations(t)

	assert.Equal(t, "application/json", published.ContentType)
	assert.Equal(t, ev.ID, published.MessageId)
	assert.Equal(t, "run-1", published.CorrelationId)
	assert.Equal(t, "final", published.Type)

	var msg Message
	require.NoError(t, json.Unmarshal(published.Body, &msg))
	assert.Equal(t, testKey, msg.Session)
	assert.Equal(t, "did:bid:abc", msg.Event.Text())
}

func TestPublish_RoutingKeySanitized(t *testing.T) {
	ch := &mockChannel{}
	ch.On("ExchangeDeclare", "x", amqp.ExchangeTopic, true, false).Return(nil)
	ch.On("PublishWithContext", "x", "runs.my_app.orchestrator", mock.Anything).Return(nil)

	sink, err := NewFromChannel(ch, Config{Exchange: "x", RoutingKey: "runs", Durable: true})
	require.NoError(t, err)

	key := core.SessionKey{AppName: "my.app", UserID: "u", SessionID: "s"}
	ev := core.NewErrorEvent("orchestrator", core.CodePreconditionFailed, "missing key")

	require.NoError(t, sink.Publish(context.Background(), key, ev))
	ch.AssertExpectations(t)
}

func TestPublish_Error(t *testing.T) {
	ch := &mockChannel{}
	ch.On("ExchangeDeclare", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	ch.On("PublishWithContext", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("channel closed"))

	sink, err := NewFromChannel(ch, Config{})
	require.NoError(t, err)

	err = sink.Publish(context.Background(), testKey, core.NewMessageEvent("a", "b"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel closed")
}

func TestNewFromChannel_DeclareError(t *testing.T) {
	ch := &mockChannel{}
	ch.On("ExchangeDeclare", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("access refused"))

	_, err := NewFromChannel(ch, Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to declare exchange")
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(Config{})
	require.EqualError(t, err, "rabbitmq url must not be empty")
}

func TestClose(t *testing.T) {
	ch := &mockChannel{}
	ch.On("ExchangeDeclare", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	ch.On("Close").Return(nil)

	sink, err := NewFromChannel(ch, Config{})
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	ch.AssertCalled(t, "Close")
}
