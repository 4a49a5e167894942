package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, queue string, body []byte) error {
	args := m.Called(ctx, queue, body)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	return m.Called().Error(0)
}

func TestNotifier_SendSMS(t *testing.T) {
	pub := new(MockPublisher)
	n := NewNotifier(pub, "support@example.com")

	pub.On("Publish", mock.Anything, QueueSMS, mock.MatchedBy(func(body []byte) bool {
		var msg SMSMessage
		return json.Unmarshal(body, &msg) == nil && msg.To == "+919812345678" && msg.Purpose == "otp"
	})).Return(nil).Once()

	err := n.SendSMS(context.Background(), SMSMessage{To: "+919812345678", Body: "code 123456", Purpose: "otp"})
	assert.NoError(t, err)
	pub.AssertExpectations(t)
}

func TestNotifier_SendEmail(t *testing.T) {
	t.Run("defaults recipient to contact inbox", func(t *testing.T) {
		pub := new(MockPublisher)
		n := NewNotifier(pub, "support@example.com")

		pub.On("Publish", mock.Anything, QueueEmail, mock.MatchedBy(func(body []byte) bool {
			var msg EmailMessage
			return json.Unmarshal(body, &msg) == nil && msg.To == "support@example.com" && msg.ReplyTo == "a@b.com"
		})).Return(nil).Once()

		err := n.SendEmail(context.Background(), EmailMessage{ReplyTo: "a@b.com", Subject: "hi", Body: "hello"})
		assert.NoError(t, err)
		pub.AssertExpectations(t)
	})

	t.Run("publish failure is returned", func(t *testing.T) {
		pub := new(MockPublisher)
		n := NewNotifier(pub, "support@example.com")
		pub.On("Publish", mock.Anything, QueueEmail, mock.Anything).Return(errors.New("channel closed")).Once()

		err := n.SendEmail(context.Background(), EmailMessage{Subject: "hi"})
		assert.ErrorContains(t, err, "publish to notifications.email")
	})
}

func TestNotifier_PublishEventSwallowsErrors(t *testing.T) {
	pub := new(MockPublisher)
	n := NewNotifier(pub, "")
	pub.On("Publish", mock.Anything, QueueEvents, mock.Anything).Return(errors.New("broker down")).Once()

	assert.NotPanics(t, func() {
		n.PublishEvent(context.Background(), Event{Type: "batch.processing", EntityID: "b-1"})
	})
	pub.AssertExpectations(t)
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, p.Publish(context.Background(), QueueSMS, []byte(`{"to":"x"}`)))
	assert.Contains(t, buf.String(), "notifications.sms")
	assert.NoError(t, p.Close())
}
