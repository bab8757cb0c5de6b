package notification

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// KindSavingSuccessful is emitted after a deposit is credited.
	KindSavingSuccessful = "SavingSuccessful"
	// KindWithdrawSuccessful is emitted after a withdrawal is debited.
	KindWithdrawSuccessful = "WithdrawSuccessful"
)

// Event describes a vault notification carrying the acting account and the amount moved.
type Event struct {
	ID         string
	Kind       string
	Account    string
	Amount     uint64
	Token      string
	OccurredAt time.Time
}

// NewEvent stamps an event with an identifier and the current time.
func NewEvent(kind, account, tokenAddress string, amount uint64) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		Account:    account,
		Amount:     amount,
		Token:      tokenAddress,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers events to downstream systems.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// LoggerPublisher writes events to the structured logger.
type LoggerPublisher struct {
	logger *slog.Logger
}

// NewLoggerPublisher constructs a logging publisher.
func NewLoggerPublisher(logger *slog.Logger) *LoggerPublisher {
	return &LoggerPublisher{logger: logger}
}

// Publish writes the event to the structured logger.
func (p *LoggerPublisher) Publish(_ context.Context, event Event) error {
	if p == nil || p.logger == nil {
		return nil
	}
	p.logger.Info("event", "id", event.ID, "kind", event.Kind, "account", event.Account, "amount", event.Amount, "token", event.Token)
	return nil
}

// RedisPublisher appends events to a Redis stream.
type RedisPublisher struct {
	cache  *redis.Client
	stream string
}

// NewRedisPublisher builds a publisher writing to the given stream key.
func NewRedisPublisher(cache *redis.Client, stream string) *RedisPublisher {
	return &RedisPublisher{cache: cache, stream: stream}
}

// Publish appends the event with XADD.
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	return p.cache.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"id":          event.ID,
			"kind":        event.Kind,
			"account":     event.Account,
			"amount":      strconv.FormatUint(event.Amount, 10),
			"token":       event.Token,
			"occurred_at": event.OccurredAt.Format(time.RFC3339Nano),
		},
	}).Err()
}

// Fanout publishes to every wrapped publisher and returns the first error.
type Fanout []Publisher

// Publish forwards the event to each publisher.
func (f Fanout) Publish(ctx context.Context, event Event) error {
	var first error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
