package errs

import (
	"errors"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation error")
	ErrForbidden          = errors.New("forbidden")
	ErrOutOfStock         = errors.New("book is out of stock")
	ErrPaymentNotFound    = errors.New("paid payment for the borrowing not found")
	ErrAlreadyReturned    = errors.New("borrowing has already been returned")
	ErrNotOverdue         = errors.New("borrowing is not overdue")
	ErrAmountTooLarge     = errors.New("the amount for the transaction is too large")
	ErrGatewayUnavailable = errors.New("payment gateway is unavailable")
)
