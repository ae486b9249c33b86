package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type State string

const (
	StateUnpaid            State = "UNPAID"
	StatePaidActive        State = "PAID_ACTIVE"
	StateOverdueUnpaidFine State = "OVERDUE_UNPAID_FINE"
	StateReturned          State = "RETURNED"
)

// FindPayment matches by type, status and exact amount. Recency is irrelevant.
func FindPayment(payments []Payment, typ PaymentType, status PaymentStatus, amount decimal.Decimal) (Payment, bool) {
	for _, p := range payments {
		if p.Type == typ && p.Status == status && p.MoneyToPay.Equal(amount) {
			return p, true
		}
	}
	return Payment{}, false
}

// DeriveState reports where the borrowing is in the lifecycle. price is the expected loan price.
func DeriveState(b Borrowing, payments []Payment, price decimal.Decimal, today time.Time) State {
	if b.IsReturned() {
		return StateReturned
	}
	if _, ok := FindPayment(payments, PaymentTypePayment, PaymentStatusPaid, price); !ok {
		return StateUnpaid
	}
	if DateOf(today).After(b.ExpectedReturnDate) {
		return StateOverdueUnpaidFine
	}
	return StatePaidActive
}
