// Package handoff passes completed sales on to payment processing.
package handoff

import (
	"context"
	"encoding/json"
	"fmt"

	model "bidding-live/internal/models"
	"bidding-live/utils"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RoutingKeySaleCompleted is the routing key of sale messages
const RoutingKeySaleCompleted = "sale.completed"

// Publisher hands a committed sale to whatever settles payment
type Publisher interface {
	PublishSale(ctx context.Context, sale model.Sale) error
}

// LogPublisher only logs sales. It is used when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) PublishSale(_ context.Context, sale model.Sale) error {
	utils.Info("handoff: sale completed", map[string]any{
		"sale_id":    sale.SaleID,
		"auction_id": sale.AuctionID,
		"buyer_id":   sale.BuyerID,
		"seller_id":  sale.SellerID,
		"amount":     sale.Amount.String(),
	})
	return nil
}

// RabbitMQPublisher publishes sales as JSON to a topic exchange
type RabbitMQPublisher struct {
	channel  *amqp.Channel
	exchange string
}

// NewRabbitMQPublisher opens a channel on conn and declares the exchange
func NewRabbitMQPublisher(conn *amqp.Connection, exchange string) (*RabbitMQPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &RabbitMQPublisher{channel: ch, exchange: exchange}, nil
}

// Close closes the channel
func (p *RabbitMQPublisher) Close() error {
	return p.channel.Close()
}

// PublishSale publishes the sale under RoutingKeySaleCompleted
func (p *RabbitMQPublisher) PublishSale(ctx context.Context, sale model.Sale) error {
	body, err := json.Marshal(sale)
	if err != nil {
		return fmt.Errorf("failed to marshal sale: %w", err)
	}
	return p.channel.PublishWithContext(ctx,
		p.exchange,              // exchange
		RoutingKeySaleCompleted, // routing key
		false,                   // mandatory
		false,                   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    sale.SaleID,
			Timestamp:    sale.CreatedAt,
			Body:         body,
		},
	)
}
