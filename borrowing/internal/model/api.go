package model

import (
	"github.com/shopspring/decimal"
)

// Caller is the identity the request is executed for.
type Caller struct {
	Username string
	Staff    bool
}

func (c Caller) CanAccess(username string) bool {
	return c.Staff || c.Username == username
}

type CreateBorrowingRequest struct {
	BookID             int64  `json:"bookId" validate:"required,gt=0"`
	ExpectedReturnDate Date   `json:"expectedReturnDate"`
	UserName           string `json:"-" validate:"required"`
}

type BookBrief struct {
	ID       int64           `json:"id"`
	Title    string          `json:"title"`
	Author   string          `json:"author"`
	Cover    Cover           `json:"cover"`
	DailyFee decimal.Decimal `json:"dailyFee"`
}

func NewBookBrief(b Book) BookBrief {
	return BookBrief{ID: b.ID, Title: b.Title, Author: b.Author, Cover: b.Cover, DailyFee: b.DailyFee}
}

// BookResponse hides inventory from borrowers.
type BookResponse struct {
	BookBrief
	Inventory *int `json:"inventory,omitempty"`
}

func NewBookResponse(b Book, withInventory bool) BookResponse {
	res := BookResponse{BookBrief: NewBookBrief(b)}
	if withInventory {
		inv := b.Inventory
		res.Inventory = &inv
	}
	return res
}

type PaymentResponse struct {
	PaymentUid   string          `json:"paymentUid"`
	BorrowingUid string          `json:"borrowingUid"`
	Username     string          `json:"username,omitempty"`
	Status       PaymentStatus   `json:"status"`
	Type         PaymentType     `json:"type"`
	SessionID    string          `json:"sessionId"`
	SessionURL   string          `json:"sessionUrl"`
	MoneyToPay   decimal.Decimal `json:"moneyToPay"`
}

func NewPaymentResponse(p Payment, borrowingUid, username string) PaymentResponse {
	return PaymentResponse{
		PaymentUid:   p.PaymentUid,
		BorrowingUid: borrowingUid,
		Username:     username,
		Status:       p.Status,
		Type:         p.Type,
		SessionID:    p.SessionID,
		SessionURL:   p.SessionURL,
		MoneyToPay:   p.MoneyToPay,
	}
}

type BorrowingResponse struct {
	BorrowingUid       string            `json:"borrowingUid"`
	Username           string            `json:"username"`
	BorrowDate         Date              `json:"borrowDate"`
	ExpectedReturnDate Date              `json:"expectedReturnDate"`
	ActualReturnDate   *Date             `json:"actualReturnDate"`
	State              State             `json:"state"`
	Price              decimal.Decimal   `json:"price"`
	Book               BookBrief         `json:"book"`
	Payments           []PaymentResponse `json:"payments"`
}

type CreateBorrowingResponse struct {
	BorrowingResponse
	CheckoutSessionURL string `json:"checkoutSessionUrl"`
}

type ReturnBorrowingResponse struct {
	BorrowingUid string `json:"borrowingUid"`
	// Completed is false when the return turned into fine collection.
	Completed          bool             `json:"completed"`
	Message            string           `json:"message"`
	ActualReturnDate   *Date            `json:"actualReturnDate,omitempty"`
	Fine               *decimal.Decimal `json:"fine,omitempty"`
	CheckoutSessionURL string           `json:"checkoutSessionUrl,omitempty"`
}

type CreateBookRequest struct {
	Title     string          `json:"title" validate:"required,max=255"`
	Author    string          `json:"author" validate:"required,max=500"`
	Cover     Cover           `json:"cover" validate:"required,oneof=HARD SOFT"`
	Inventory int             `json:"inventory" validate:"gte=0"`
	DailyFee  decimal.Decimal `json:"dailyFee"`
}

type ConfirmOutcome string

const (
	OutcomeNotFound         ConfirmOutcome = "NOT_FOUND"
	OutcomeUnpaid           ConfirmOutcome = "UNPAID"
	OutcomeAlreadyConfirmed ConfirmOutcome = "ALREADY_CONFIRMED"
	OutcomePaid             ConfirmOutcome = "PAID"
	OutcomeReturned         ConfirmOutcome = "RETURNED"
	OutcomeIgnored          ConfirmOutcome = "IGNORED"
)

type ConfirmResult struct {
	SessionID    string         `json:"sessionId"`
	Outcome      ConfirmOutcome `json:"outcome"`
	PaymentType  PaymentType    `json:"paymentType,omitempty"`
	BorrowingUid string         `json:"borrowingUid,omitempty"`
	Message      string         `json:"message"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// ConfirmationMsg is queued when a gateway callback could not be reconciled right away.
type ConfirmationMsg struct {
	SessionID string `json:"sessionId"`
}
