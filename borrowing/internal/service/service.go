package service

import (
	"context"
	"time"

	"github.com/Astemirdum/library-borrowing/borrowing/internal/gateway"
	"github.com/Astemirdum/library-borrowing/borrowing/internal/model"
	"github.com/Astemirdum/library-borrowing/borrowing/internal/repository"
	"go.uber.org/zap"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type PaymentGateway interface {
	CreateSession(ctx context.Context, req gateway.SessionRequest) (gateway.Session, error)
	RetrieveSession(ctx context.Context, sessionID string) (gateway.SessionStatus, error)
	ParseWebhook(payload []byte, signature string) (gateway.WebhookEvent, error)
}

type Notifier interface {
	Notify(ctx context.Context, text string)
}

var _ PaymentGateway = (*gateway.Stripe)(nil)

// DefaultHoldTTL is the longest checkout session the gateway allows.
const DefaultHoldTTL = gateway.MaxSessionTTL

type Service struct {
	repo     repository.Repository
	gateway  PaymentGateway
	notifier Notifier
	now      func() time.Time
	holdTTL  time.Duration
	log      *zap.Logger
}

type Option func(s *Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithHoldTTL sets how long an unpaid borrowing reserves a copy. Checkout sessions expire
// at the same moment, so the value must fit the gateway session bounds; other values are ignored.
func WithHoldTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl >= gateway.MinSessionTTL && ttl <= gateway.MaxSessionTTL {
			s.holdTTL = ttl
		}
	}
}

func NewService(repo repository.Repository, gw PaymentGateway, notifier Notifier, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		gateway:  gw,
		notifier: notifier,
		now:      time.Now,
		holdTTL:  DefaultHoldTTL,
		log:      log.Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) today() time.Time {
	return model.DateOf(s.now().UTC())
}
