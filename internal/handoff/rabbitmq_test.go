//go:build integration

package handoff

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	model "bidding-live/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

func TestRabbitMQPublisher(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := rabbitmq.Run(ctx,
		"rabbitmq:3.12-management-alpine",
		rabbitmq.WithAdminPassword("password"),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if termErr := container.Terminate(context.Background()); termErr != nil {
			t.Logf("failed to terminate container: %v", termErr)
		}
	})

	amqpURL, err := container.AmqpURL(ctx)
	require.NoError(t, err)

	pubConn, err := amqp.Dial(amqpURL)
	require.NoError(t, err)
	defer pubConn.Close()

	publisher, err := NewRabbitMQPublisher(pubConn, "auction.events")
	require.NoError(t, err)
	defer publisher.Close()

	// separate consumer bound to the sale routing key
	conn, err := amqp.Dial(amqpURL)
	require.NoError(t, err)
	defer conn.Close()

	ch, err := conn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	q, err := ch.QueueDeclare("", false, false, true, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(q.Name, RoutingKeySaleCompleted, "auction.events", false, nil))

	msgs, err := ch.Consume(q.Name, "", true, false, false, false, nil)
	require.NoError(t, err)

	sale := testSale()
	require.NoError(t, publisher.PublishSale(ctx, sale))

	select {
	case msg := <-msgs:
		require.Equal(t, "application/json", msg.ContentType)
		require.Equal(t, sale.SaleID, msg.MessageId)

		var got model.Sale
		require.NoError(t, json.Unmarshal(msg.Body, &got))
		require.Equal(t, sale.AuctionID, got.AuctionID)
		require.True(t, sale.Amount.Equal(got.Amount))
		require.True(t, sale.PlatformFee.Equal(got.PlatformFee))
	case <-time.After(10 * time.Second):
		t.Fatal("sale message was not delivered")
	}
}
