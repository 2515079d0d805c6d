//go:build integration

package messaging_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"vnovel-server/internal/messaging"
)

type collectingNotifier struct {
	got chan messaging.ImageResultPayload
}

func (c *collectingNotifier) SendToUser(_, _, _ string, payload interface{}) {
	c.got <- payload.(messaging.ImageResultPayload)
}

type RabbitSuite struct {
	suite.Suite
	container *rabbitmq.RabbitMQContainer
	url       string
}

func (s *RabbitSuite) SetupSuite() {
	ctx := context.Background()
	container, err := rabbitmq.Run(ctx,
		"rabbitmq:3-management-alpine",
		testcontainers.WithWaitStrategy(wait.ForLog("Server startup complete")),
	)
	require.NoError(s.T(), err)
	s.container = container

	s.url, err = container.AmqpURL(ctx)
	require.NoError(s.T(), err)
}

func (s *RabbitSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
}

func (s *RabbitSuite) TestPublishAndConsumeResult() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger := zap.NewNop()
	conn, err := messaging.Connect(ctx, s.url, logger)
	s.Require().NoError(err)
	defer conn.Close()

	pub, err := messaging.NewRabbitPublisher(conn, "test_results", logger)
	s.Require().NoError(err)
	defer pub.Close()

	notifier := &collectingNotifier{got: make(chan messaging.ImageResultPayload, 1)}
	go func() {
		_ = messaging.Consume(ctx, conn, messaging.ConsumerConfig{Queue: "test_results", Tag: "test"},
			messaging.NewResultHandler(notifier, logger), logger)
	}()

	s.Require().NoError(pub.Publish(ctx, messaging.ImageResultPayload{
		TaskID: "t1", UserID: "u1", Success: true, ImageURL: "https://img/1.jpg",
	}, "t1"))

	select {
	case res := <-notifier.got:
		s.Equal("t1", res.TaskID)
		s.Equal("https://img/1.jpg", res.ImageURL)
	case <-ctx.Done():
		s.Fail("result was not delivered")
	}
}

func TestRabbitSuite(t *testing.T) {
	suite.Run(t, new(RabbitSuite))
}
