package queue

import (
	"context"
	"encoding/json"

	"github.com/loreweave/backend/pkg/rebuild"

	"github.com/rabbitmq/amqp091-go"
)

// Publisher dispatches rebuild requests onto the rebuild queue. It satisfies
// rebuild.Dispatcher.
type Publisher struct {
	ch *amqp091.Channel
}

func NewPublisher(ch *amqp091.Channel) *Publisher {
	return &Publisher{ch: ch}
}

func (p *Publisher) PublishRebuild(ctx context.Context, req rebuild.Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return PublishFIFO(p.ch, RebuildQueue, data)
}
