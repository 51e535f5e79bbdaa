// Package notify publishes user-facing notification events to Kafka. Emission
// is fire and forget: a failed publish is logged and counted, never surfaced
// to the operation that triggered it.
package notify

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/velesbank/moneymove/internal/domain"
	"github.com/velesbank/moneymove/internal/observability"
)

// Event is the notification payload consumed by the notification service.
type Event struct {
	EventID   string    `json:"eventId"`
	UserID    string    `json:"userId"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// KafkaWriter is the part of kafka.Writer the emitter needs.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var titles = map[string]string{
	domain.EventCashDeposit:  "Cash deposit",
	domain.EventCashWithdraw: "Cash withdrawal",
	domain.EventTransferOut:  "Transfer sent",
	domain.EventTransferIn:   "Transfer received",
}

// Emitter fans notification publishes out to a bounded worker pool so a slow
// broker never blocks the request path.
type Emitter struct {
	writer  KafkaWriter
	pool    *ants.Pool
	timeout time.Duration
	logger  *zap.Logger
}

func NewWriter(brokers, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(brokers, ",")...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
}

func NewEmitter(writer KafkaWriter, poolSize int, logger *zap.Logger) (*Emitter, error) {
	pool, err := ants.NewPool(poolSize, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}
	return &Emitter{
		writer:  writer,
		pool:    pool,
		timeout: 5 * time.Second,
		logger:  logger,
	}, nil
}

// Emit schedules one notification publish. It never blocks and never returns
// an error to the caller; a full pool drops the event and counts the drop.
func (e *Emitter) Emit(login, eventType, content string) {
	event := Event{
		EventID:   uuid.NewString(),
		UserID:    login,
		Type:      eventType,
		Title:     titles[eventType],
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	err := e.pool.Submit(func() { e.publish(event) })
	if err != nil {
		e.logger.Warn("notification dropped, publish pool saturated",
			zap.String("login", login), zap.String("type", eventType))
		observability.IncrementNotifyPublish("dropped")
	}
}

func (e *Emitter) publish(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		e.logger.Error("encode notification", zap.Error(err))
		observability.IncrementNotifyPublish("error")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	err = e.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.UserID),
		Value: payload,
	})
	if err != nil {
		e.logger.Warn("publish notification",
			zap.String("login", event.UserID), zap.String("type", event.Type), zap.Error(err))
		observability.IncrementNotifyPublish("error")
		return
	}
	observability.IncrementNotifyPublish("ok")
}

// Close drains the pool and closes the underlying writer.
func (e *Emitter) Close() error {
	e.pool.Release()
	return e.writer.Close()
}
