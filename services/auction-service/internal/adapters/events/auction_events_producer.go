package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	pkgdb "github.com/floroz/lotmarket/pkg/database"
	pkgevents "github.com/floroz/lotmarket/pkg/events"
)

// ProducerConfig tunes the outbox polling loop
type ProducerConfig struct {
	BatchSize int
	Interval  time.Duration
}

// DefaultProducerConfig is used for zero fields
var DefaultProducerConfig = ProducerConfig{
	BatchSize: 10,
	Interval:  500 * time.Millisecond,
}

// AuctionEventsProducer orchestrates the process of relaying item and bid events from the outbox to RabbitMQ
type AuctionEventsProducer struct {
	relay     *pkgevents.OutboxRelay
	publisher *pkgevents.RabbitMQPublisher
}

// NewAuctionEventsProducer creates a new producer over any outbox store
func NewAuctionEventsProducer(
	outboxRepo pkgevents.OutboxRepository,
	txManager pkgdb.TransactionManager,
	conn *amqp.Connection,
	cfg ProducerConfig,
	logger *slog.Logger,
) (*AuctionEventsProducer, error) {
	publisher, err := pkgevents.NewRabbitMQPublisher(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create publisher: %w", err)
	}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultProducerConfig.BatchSize
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultProducerConfig.Interval
	}

	relay := pkgevents.NewOutboxRelay(
		outboxRepo,
		publisher,
		txManager,
		cfg.BatchSize,
		cfg.Interval,
		pkgevents.Exchange,
		logger,
	)

	return &AuctionEventsProducer{
		relay:     relay,
		publisher: publisher,
	}, nil
}

// Run starts the relay loop
func (p *AuctionEventsProducer) Run(ctx context.Context) error {
	return p.relay.Run(ctx)
}

// Close closes the publisher channel
func (p *AuctionEventsProducer) Close() error {
	return p.publisher.Close()
}
