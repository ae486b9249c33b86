package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/Astemirdum/library-borrowing/borrowing/internal/errs"
	"github.com/Astemirdum/library-borrowing/borrowing/internal/pricing"
	cb "github.com/Astemirdum/library-borrowing/pkg/circuit_breaker"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Config struct {
	SecretKey     string        `envconfig:"STRIPE_SECRET_KEY"`
	WebhookSecret string        `envconfig:"STRIPE_WEBHOOK_SECRET"`
	SuccessURL    string        `envconfig:"STRIPE_SUCCESS_URL" default:"http://localhost:8080/api/v1/payments/success?session_id={CHECKOUT_SESSION_ID}"`
	CancelURL     string        `envconfig:"STRIPE_CANCEL_URL" default:"http://localhost:8080/api/v1/payments/cancel"`
	Currency      string        `envconfig:"STRIPE_CURRENCY" default:"usd"`
	Timeout       time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"10s"`
}

type Stripe struct {
	cfg Config
	api *client.API
	cb  cb.CircuitBreaker
	log *zap.Logger
}

func NewStripe(cfg Config, log *zap.Logger) *Stripe {
	backends := stripe.NewBackends(&http.Client{Timeout: cfg.Timeout})
	return newStripe(cfg, client.New(cfg.SecretKey, backends), log)
}

func newStripe(cfg Config, api *client.API, log *zap.Logger) *Stripe {
	const (
		recordLength     = 20
		openTimeout      = 30 * time.Second
		percentile       = 0.5
		recoveryRequests = 3
	)
	return &Stripe{
		cfg: cfg,
		api: api,
		cb:  cb.New(recordLength, openTimeout, percentile, recoveryRequests),
		log: log.Named("stripe"),
	}
}

func (s *Stripe) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(s.cfg.SuccessURL),
		CancelURL:  stripe.String(s.cfg.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(s.cfg.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.ProductName),
					},
					UnitAmount: stripe.Int64(pricing.ToMinorUnits(req.Amount)),
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	if !req.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(req.ExpiresAt.Unix())
	}
	params.Context = ctx
	for k, v := range req.metadata() {
		params.AddMetadata(k, v)
	}

	var sess *stripe.CheckoutSession
	err := s.call(func() (err error) {
		sess, err = s.api.CheckoutSessions.New(params)
		return err
	})
	if err != nil {
		s.log.Error("CreateSession", zap.Int64("borrowingID", req.BorrowingID), zap.Error(err))
		return Session{}, err
	}
	return Session{ID: sess.ID, URL: sess.URL}, nil
}

func (s *Stripe) RetrieveSession(ctx context.Context, sessionID string) (SessionStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	var sess *stripe.CheckoutSession
	err := s.call(func() (err error) {
		sess, err = s.api.CheckoutSessions.Get(sessionID, params)
		return err
	})
	if err != nil {
		s.log.Error("RetrieveSession", zap.String("sessionID", sessionID), zap.Error(err))
		return SessionStatus{}, err
	}
	return SessionStatus{
		ID:       sess.ID,
		Paid:     sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Metadata: parseMetadata(sess.Metadata),
	}, nil
}

func (s *Stripe) ParseWebhook(payload []byte, signature string) (WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return WebhookEvent{}, errors.Wrap(errs.ErrValidation, err.Error())
	}
	res := WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if res.Type != EventSessionDone || event.Data == nil {
		return res, nil
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return WebhookEvent{}, errors.Wrap(errs.ErrValidation, err.Error())
	}
	res.SessionID = sess.ID
	return res, nil
}

// call runs fn under the breaker. Request errors reported by the gateway itself do not count
// as failures.
func (s *Stripe) call(fn func() error) error {
	var reqErr error
	err := s.cb.Call(func() error {
		err := fn()
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode > 0 && stripeErr.HTTPStatusCode < http.StatusInternalServerError {
			reqErr = stripeErr
			return nil
		}
		return err
	})
	if reqErr != nil {
		err = reqErr
	}
	return mapErr(err)
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Code == stripe.ErrorCodeAmountTooLarge {
			return errors.Wrap(errs.ErrAmountTooLarge, stripeErr.Msg)
		}
		if stripeErr.HTTPStatusCode == http.StatusNotFound {
			return errors.Wrap(errs.ErrNotFound, stripeErr.Msg)
		}
	}
	return errors.Wrap(errs.ErrGatewayUnavailable, err.Error())
}
