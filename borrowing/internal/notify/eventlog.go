package notify

import (
	"context"
	"time"

	"github.com/Astemirdum/library-borrowing/pkg/kafka"
	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

type Event struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// sendTimeout bounds the wait for room in the producer buffer.
const sendTimeout = 100 * time.Millisecond

// EventLog publishes every message to the borrowing events topic.
type EventLog struct {
	producer    sarama.AsyncProducer
	sendTimeout time.Duration
	done        chan struct{}
	now      func() time.Time
	log      *zap.Logger
}

func NewEventLog(producer sarama.AsyncProducer, log *zap.Logger) *EventLog {
	e := &EventLog{
		producer:    producer,
		sendTimeout: sendTimeout,
		done:        make(chan struct{}),
		now:      time.Now,
		log:      log.Named("eventlog"),
	}
	go e.drain()
	return e
}

func (e *EventLog) drain() {
	defer close(e.done)
	for perr := range e.producer.Errors() {
		e.log.Warn("produce", zap.String("topic", perr.Msg.Topic), zap.Error(perr.Err))
	}
}

func (e *EventLog) Notify(ctx context.Context, text string) {
	msg, err := kafka.Message(kafka.BorrowingEventsTopic, Event{Text: text, At: e.now().UTC()})
	if err != nil {
		e.log.Error("kafka.Message", zap.Error(err))
		return
	}
	timer := time.NewTimer(e.sendTimeout)
	defer timer.Stop()
	select {
	case e.producer.Input() <- msg:
	case <-timer.C:
		e.log.Warn("dropped", zap.String("reason", "producer buffer is full"))
	case <-ctx.Done():
		e.log.Warn("dropped", zap.Error(ctx.Err()))
	}
}

func (e *EventLog) Close() error {
	err := e.producer.Close()
	<-e.done
	return err
}
