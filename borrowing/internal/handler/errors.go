package handler

import (
	"net/http"

	"github.com/Astemirdum/library-borrowing/borrowing/internal/errs"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

var statusByErr = []struct {
	err  error
	code int
}{
	{errs.ErrValidation, http.StatusBadRequest},
	{errs.ErrOutOfStock, http.StatusBadRequest},
	{errs.ErrPaymentNotFound, http.StatusBadRequest},
	{errs.ErrAlreadyReturned, http.StatusBadRequest},
	{errs.ErrNotOverdue, http.StatusBadRequest},
	{errs.ErrNotFound, http.StatusNotFound},
	{errs.ErrForbidden, http.StatusForbidden},
	{errs.ErrAmountTooLarge, http.StatusUnprocessableEntity},
	{errs.ErrGatewayUnavailable, http.StatusServiceUnavailable},
}

func statusCode(err error) int {
	for _, se := range statusByErr {
		if errors.Is(err, se.err) {
			return se.code
		}
	}
	return http.StatusInternalServerError
}

func httpError(err error) *echo.HTTPError {
	return echo.NewHTTPError(statusCode(err), err.Error())
}
