package gateway

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

const (
	MetaBorrowingID  = "borrowing_id"
	MetaIsFine       = "is_fine_payment"
	EventSessionDone = "checkout.session.completed"
)

// Bounds the gateway accepts for a checkout session lifetime.
const (
	MinSessionTTL = 30 * time.Minute
	MaxSessionTTL = 24 * time.Hour
)

type SessionRequest struct {
	Amount      decimal.Decimal
	ProductName string
	BorrowingID int64
	IsFine      bool
	// ExpiresAt closes the checkout; the gateway default applies when zero.
	ExpiresAt time.Time
}

func (r SessionRequest) metadata() map[string]string {
	return map[string]string{
		MetaBorrowingID: strconv.FormatInt(r.BorrowingID, 10),
		MetaIsFine:      strconv.FormatBool(r.IsFine),
	}
}

type Session struct {
	ID  string
	URL string
}

type SessionStatus struct {
	ID       string
	Paid     bool
	Metadata Metadata
}

type Metadata struct {
	BorrowingID int64
	IsFine      bool
}

func parseMetadata(m map[string]string) Metadata {
	var md Metadata
	md.BorrowingID, _ = strconv.ParseInt(m[MetaBorrowingID], 10, 64)
	md.IsFine, _ = strconv.ParseBool(m[MetaIsFine])
	return md
}

// WebhookEvent is a verified gateway notification. SessionID is set for session events only.
type WebhookEvent struct {
	ID        string
	Type      string
	SessionID string
}

type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
	RetrieveSession(ctx context.Context, sessionID string) (SessionStatus, error)
	ParseWebhook(payload []byte, signature string) (WebhookEvent, error)
}
