// Package pricing computes loan prices and overdue fines. Amounts are fixed-point with two
// fractional digits; the gateway receives minor units.
package pricing

import (
	"time"

	"github.com/Astemirdum/library-borrowing/borrowing/internal/errs"
	"github.com/Astemirdum/library-borrowing/borrowing/internal/model"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// FineMultiplier is applied on top of the overdue rental cost.
const FineMultiplier = 2

const places = 2

var hundred = decimal.NewFromInt(100)

// Days is the number of calendar days from -> to.
func Days(from, to time.Time) int {
	return int(model.DateOf(to).Sub(model.DateOf(from)).Hours() / 24)
}

// CalculateBorrowingPrice charges both the borrow day and the expected return day.
func CalculateBorrowingPrice(dailyFee decimal.Decimal, borrowDate, expectedReturnDate time.Time) decimal.Decimal {
	days := Days(borrowDate, expectedReturnDate) + 1
	return dailyFee.Mul(decimal.NewFromInt(int64(days))).Round(places)
}

func CalculateFine(dailyFee decimal.Decimal, expectedReturnDate, today time.Time) (decimal.Decimal, error) {
	overdue := Days(expectedReturnDate, today)
	if overdue <= 0 {
		return decimal.Zero, errors.Wrapf(errs.ErrNotOverdue, "overdue days %d", overdue)
	}
	base := dailyFee.Mul(decimal.NewFromInt(int64(overdue)))
	return base.Mul(decimal.NewFromInt(FineMultiplier)).Round(places), nil
}

func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).IntPart()
}
