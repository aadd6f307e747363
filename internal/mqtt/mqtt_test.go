package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"wisefido-allocator/internal/events"
	"wisefido-allocator/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool { return true }

func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (t *fakeToken) Error() error { return t.err }

// fakePaho 只实现用到的方法
type fakePaho struct {
	mqtt.Client
	token     *fakeToken
	published []string
	connected bool
	quiesce   uint
}

func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.published = append(f.published, topic)
	return f.token
}

func (f *fakePaho) IsConnected() bool { return f.connected }

func (f *fakePaho) Disconnect(quiesce uint) {
	f.quiesce = quiesce
	f.connected = false
}

func TestClient_Publish(t *testing.T) {
	paho := &fakePaho{token: &fakeToken{}, connected: true}
	c := newClient(paho, zap.NewNop())

	require.NoError(t, c.Publish("ed/board", 1, true, []byte("{}")))
	assert.Equal(t, []string{"ed/board"}, paho.published)
	assert.True(t, c.IsConnected())

	c.Disconnect()
	assert.False(t, c.IsConnected())
	assert.Equal(t, uint(250), paho.quiesce)
}

func TestClient_PublishErrors(t *testing.T) {
	boom := errors.New("not connected")
	c := newClient(&fakePaho{token: &fakeToken{err: boom}}, zap.NewNop())
	err := c.Publish("ed/board", 1, false, nil)
	assert.ErrorIs(t, err, boom)

	c = newClient(&fakePaho{token: &fakeToken{timeout: true}}, zap.NewNop())
	err = c.Publish("ed/board", 1, false, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.msgs = append(f.msgs, published{topic, qos, retained, payload})
	return f.err
}

func TestNotifier_Topics(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNotifier(pub, "ed/", 1)
	ctx := context.Background()

	require.NoError(t, n.Handle(ctx, events.Event{Notification: &models.Notification{ID: "N1", Type: models.NotificationAlert, Message: "Critical patient P009"}}))
	require.NoError(t, n.Handle(ctx, events.Event{Assignment: &models.AssignmentEvent{EventID: "E1", ResourceID: "R007", PatientID: "P008"}}))
	require.NoError(t, n.Handle(ctx, events.Event{Board: &models.Board{Utilization: 0.75}}))
	require.NoError(t, n.Handle(ctx, events.Event{}))

	require.Len(t, pub.msgs, 3)

	assert.Equal(t, "ed/notifications/alert", pub.msgs[0].topic)
	assert.Equal(t, byte(1), pub.msgs[0].qos)
	assert.False(t, pub.msgs[0].retained)
	var note models.Notification
	require.NoError(t, json.Unmarshal(pub.msgs[0].payload, &note))
	assert.Equal(t, "N1", note.ID)

	assert.Equal(t, "ed/assignments/R007", pub.msgs[1].topic)
	assert.False(t, pub.msgs[1].retained)

	assert.Equal(t, "ed/board", pub.msgs[2].topic)
	assert.True(t, pub.msgs[2].retained)
}

func TestNotifier_PublishError(t *testing.T) {
	boom := errors.New("broker down")
	n := NewNotifier(&fakePublisher{err: boom}, "ed/", 0)

	err := n.Handle(context.Background(), events.Event{Notification: &models.Notification{Type: models.NotificationInfo}})
	assert.ErrorIs(t, err, boom)
}

func TestNotifier_CancelledContext(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNotifier(pub, "ed/", 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := n.Handle(ctx, events.Event{Board: &models.Board{}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, pub.msgs)
}
