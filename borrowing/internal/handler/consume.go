package handler

import (
	"context"
	"time"

	"github.com/Astemirdum/library-borrowing/borrowing/internal/errs"
	"github.com/Astemirdum/library-borrowing/borrowing/internal/model"
	"github.com/Astemirdum/library-borrowing/pkg/kafka"
	"github.com/Astemirdum/library-borrowing/pkg/retry"
	"github.com/IBM/sarama"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type confirmSession func(ctx context.Context, sessionID string) (model.ConfirmResult, error)

// Consumer replays payment confirmations that could not be reconciled when the gateway called us.
type Consumer struct {
	confirm   confirmSession
	retryOpts []retry.Option
	log       *zap.Logger
}

func NewConsumer(confirm confirmSession, log *zap.Logger, opts ...retry.Option) *Consumer {
	return &Consumer{
		confirm:   confirm,
		retryOpts: append([]retry.Option{retry.If(isTransient)}, opts...),
		log:       log.Named("consumer"),
	}
}

func isTransient(err error) bool {
	return errors.Is(err, errs.ErrGatewayUnavailable)
}

func (consumer *Consumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (consumer *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (consumer *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				consumer.log.Warn("message channel was closed")
				return nil
			}
			consumer.handle(session.Context(), message)
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func (consumer *Consumer) handle(ctx context.Context, message *sarama.ConsumerMessage) {
	var msg model.ConfirmationMsg
	if err := kafka.Decode(message.Value, &msg); err != nil || msg.SessionID == "" {
		consumer.log.Error("bad confirmation message", zap.ByteString("value", message.Value), zap.Error(err))
		return
	}

	var res model.ConfirmResult
	err := retry.Do(ctx, func(ctx context.Context) (err error) {
		res, err = consumer.confirm(ctx, msg.SessionID)
		return err
	}, consumer.retryOpts...)
	if err != nil {
		consumer.log.Error("confirm", zap.String("sessionID", msg.SessionID), zap.Error(err))
		return
	}
	consumer.log.Debug("Message claimed:",
		zap.String("sessionID", msg.SessionID),
		zap.String("outcome", string(res.Outcome)),
		zap.Time("timestamp", message.Timestamp),
		zap.Duration("lag", time.Since(message.Timestamp)))
}
