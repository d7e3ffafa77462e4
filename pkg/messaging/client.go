package messaging

import (
	"context"
)

// Client is the messaging surface used by services. It hides the
// concrete broker so event publishers and consumers can be mocked.
type Client interface {
	PublishEvent(exchange, routingKey string, message interface{}) error
	ConsumeQueue(ctx context.Context, queueName string, handler func([]byte) error) error
	Close() error
}

type client struct {
	rabbit *RabbitMQ
}

// NewClient connects to RabbitMQ and declares the service topology.
func NewClient(url string) (Client, error) {
	rabbit, err := NewRabbitMQ(url)
	if err != nil {
		return nil, err
	}

	if err := rabbit.SetupTopology(); err != nil {
		rabbit.Close()
		return nil, err
	}

	return &client{
		rabbit: rabbit,
	}, nil
}

func (c *client) PublishEvent(exchange, routingKey string, message interface{}) error {
	return c.rabbit.Publish(exchange, routingKey, NewMessage(routingKey, message))
}

func (c *client) ConsumeQueue(ctx context.Context, queueName string, handler func([]byte) error) error {
	consumerName := "consumer-" + queueName
	return c.rabbit.ConsumeWithHandler(ctx, queueName, consumerName, handler)
}

func (c *client) Close() error {
	return c.rabbit.Close()
}
