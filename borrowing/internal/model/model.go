package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Cover string

const (
	CoverHard Cover = "HARD"
	CoverSoft Cover = "SOFT"
)

type Book struct {
	ID        int64           `json:"id" db:"id"`
	Title     string          `json:"title" db:"title"`
	Author    string          `json:"author" db:"author"`
	Cover     Cover           `json:"cover" db:"cover"`
	Inventory int             `json:"inventory" db:"inventory"`
	DailyFee  decimal.Decimal `json:"dailyFee" db:"daily_fee"`
}

type Borrowing struct {
	ID                 int64      `db:"id"`
	BorrowingUid       string     `db:"borrowing_uid"`
	Username           string     `db:"username"`
	BookID             int64      `db:"book_id"`
	BorrowDate         time.Time  `db:"borrow_date"`
	ExpectedReturnDate time.Time  `db:"expected_return_date"`
	ActualReturnDate   *time.Time `db:"actual_return_date"`
}

func (b Borrowing) IsReturned() bool {
	return b.ActualReturnDate != nil
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
)

type PaymentType string

const (
	// PaymentTypePayment covers the loan price.
	PaymentTypePayment PaymentType = "PAYMENT"
	// PaymentTypeFine covers an overdue penalty.
	PaymentTypeFine PaymentType = "FINE"
)

type Payment struct {
	ID          int64           `db:"id"`
	PaymentUid  string          `db:"payment_uid"`
	BorrowingID int64           `db:"borrowing_id"`
	Status      PaymentStatus   `db:"status"`
	Type        PaymentType     `db:"type"`
	SessionID   string          `db:"session_id"`
	SessionURL  string          `db:"session_url"`
	MoneyToPay  decimal.Decimal `db:"money_to_pay"`
	CreatedAt   time.Time       `db:"created_at"`
}

type PaymentDetails struct {
	Payment
	BorrowingUid string `db:"borrowing_uid"`
	Username     string `db:"username"`
}

type OverdueBorrowing struct {
	Borrowing
	Title    string          `db:"title"`
	Author   string          `db:"author"`
	Cover    Cover           `db:"cover"`
	DailyFee decimal.Decimal `db:"daily_fee"`
}

type BorrowingFilter struct {
	IsActive bool
	Username string
}

// DateOf drops the clock part; all lifecycle dates are calendar days in UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type Date struct {
	time.Time `json:",inline"`
}

func NewDate(t time.Time) Date {
	return Date{Time: DateOf(t)}
}

func (d *Date) UnmarshalJSON(b []byte) (err error) {
	s := strings.Trim(string(b), "\"")
	if s == "" || s == "null" {
		return nil
	}
	date, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return err
	}
	d.Time = date
	return
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(time.DateOnly) + `"`), nil
}
