package messaging

import (
	"context"
	"testing"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sentMessage struct {
	userID, messageType, topic string
	payload                    interface{}
}

type fakeNotifier struct {
	sent []sentMessage
}

func (f *fakeNotifier) SendToUser(userID, messageType, topic string, payload interface{}) {
	f.sent = append(f.sent, sentMessage{userID, messageType, topic, payload})
}

func TestResultHandler_ForwardsToUser(t *testing.T) {
	n := &fakeNotifier{}
	h := NewResultHandler(n, zap.NewNop())

	ok := h.HandleDelivery(context.Background(), amqp091.Delivery{
		Body: []byte(`{"taskId":"t1","userId":"u1","success":true,"imageUrl":"https://img/1.jpg","service":"kie.ai"}`),
	})

	assert.True(t, ok)
	require.Len(t, n.sent, 1)
	assert.Equal(t, "u1", n.sent[0].userID)
	assert.Equal(t, MessageTypeImageResult, n.sent[0].messageType)
	res := n.sent[0].payload.(ImageResultPayload)
	assert.Equal(t, "https://img/1.jpg", res.ImageURL)
}

func TestResultHandler_BadMessagesAreAcked(t *testing.T) {
	n := &fakeNotifier{}
	h := NewResultHandler(n, zap.NewNop())

	assert.True(t, h.HandleDelivery(context.Background(), amqp091.Delivery{Body: []byte("not json")}))
	assert.True(t, h.HandleDelivery(context.Background(), amqp091.Delivery{Body: []byte(`{"taskId":"t1"}`)}))
	assert.Empty(t, n.sent)
}
