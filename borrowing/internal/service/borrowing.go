package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Astemirdum/library-borrowing/borrowing/internal/errs"
	"github.com/Astemirdum/library-borrowing/borrowing/internal/gateway"
	"github.com/Astemirdum/library-borrowing/borrowing/internal/model"
	"github.com/Astemirdum/library-borrowing/borrowing/internal/pricing"
	"github.com/Astemirdum/library-borrowing/borrowing/internal/repository"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *Service) CreateBorrowing(ctx context.Context, req model.CreateBorrowingRequest) (model.CreateBorrowingResponse, error) {
	today := s.today()
	if req.BookID <= 0 {
		return model.CreateBorrowingResponse{}, errors.Wrap(errs.ErrValidation, "bookId is required")
	}
	if req.UserName == "" {
		return model.CreateBorrowingResponse{}, errors.Wrap(errs.ErrValidation, "username is required")
	}
	if req.ExpectedReturnDate.IsZero() {
		return model.CreateBorrowingResponse{}, errors.Wrap(errs.ErrValidation, "expectedReturnDate is required")
	}
	expected := model.DateOf(req.ExpectedReturnDate.Time)
	if expected.Before(today) {
		return model.CreateBorrowingResponse{}, errors.Wrap(errs.ErrValidation, "expectedReturnDate can not be in the past")
	}

	var (
		book      model.Book
		borrowing model.Borrowing
		payment   model.Payment
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		if book, err = tx.LockBook(ctx, req.BookID); err != nil {
			return err
		}
		holds, err := tx.CountActiveHolds(ctx, book.ID, s.now().Add(-s.holdTTL))
		if err != nil {
			return errors.Wrap(err, "CountActiveHolds")
		}
		if book.Inventory-holds <= 0 {
			return errors.Wrapf(errs.ErrOutOfStock, "book %q", book.Title)
		}

		borrowing, err = tx.CreateBorrowing(ctx, model.Borrowing{
			BorrowingUid:       uuid.NewString(),
			Username:           req.UserName,
			BookID:             book.ID,
			BorrowDate:         today,
			ExpectedReturnDate: expected,
		})
		if err != nil {
			return errors.Wrap(err, "CreateBorrowing")
		}

		price := pricing.CalculateBorrowingPrice(book.DailyFee, borrowing.BorrowDate, borrowing.ExpectedReturnDate)
		payment, err = s.openSession(ctx, tx, borrowing, price, model.PaymentTypePayment,
			fmt.Sprintf("Payment for borrowing of %s", book.Title))
		return err
	})
	if err != nil {
		return model.CreateBorrowingResponse{}, err
	}

	s.notifier.Notify(ctx, fmt.Sprintf("The borrowing #%s is created, expected return date: %s",
		borrowing.BorrowingUid, borrowing.ExpectedReturnDate.Format(time.DateOnly)))

	return model.CreateBorrowingResponse{
		BorrowingResponse:  s.newBorrowingResponse(borrowing, book, []model.Payment{payment}),
		CheckoutSessionURL: payment.SessionURL,
	}, nil
}

// openSession creates a gateway session and records it as a pending payment.
func (s *Service) openSession(ctx context.Context, tx repository.Tx, b model.Borrowing, amount decimal.Decimal, typ model.PaymentType, product string) (model.Payment, error) {
	sess, err := s.gateway.CreateSession(ctx, gateway.SessionRequest{
		Amount:      amount,
		ProductName: product,
		BorrowingID: b.ID,
		IsFine:      typ == model.PaymentTypeFine,
		ExpiresAt:   s.now().Add(s.holdTTL),
	})
	if err != nil {
		return model.Payment{}, errors.Wrap(err, "gateway.CreateSession")
	}
	p, err := tx.CreatePayment(ctx, model.Payment{
		PaymentUid:  uuid.NewString(),
		BorrowingID: b.ID,
		Status:      model.PaymentStatusPending,
		Type:        typ,
		SessionID:   sess.ID,
		SessionURL:  sess.URL,
		MoneyToPay:  amount,
	})
	if err != nil {
		return model.Payment{}, errors.Wrap(err, "CreatePayment")
	}
	return p, nil
}

func (s *Service) ReturnBorrowing(ctx context.Context, caller model.Caller, borrowingUid string) (model.ReturnBorrowingResponse, error) {
	today := s.today()
	var (
		borrowing model.Borrowing
		res       model.ReturnBorrowingResponse
		completed bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		b, err := tx.LockBorrowing(ctx, borrowingUid)
		if err != nil {
			return err
		}
		if !caller.CanAccess(b.Username) {
			return errors.Wrap(errs.ErrNotFound, "borrowing")
		}
		if b.IsReturned() {
			return errors.Wrapf(errs.ErrAlreadyReturned, "borrowing %s", b.BorrowingUid)
		}
		bk, err := tx.GetBook(ctx, b.BookID)
		if err != nil {
			return err
		}
		payments, err := tx.PaymentsByBorrowing(ctx, b.ID)
		if err != nil {
			return errors.Wrap(err, "PaymentsByBorrowing")
		}
		price := pricing.CalculateBorrowingPrice(bk.DailyFee, b.BorrowDate, b.ExpectedReturnDate)
		if _, ok := model.FindPayment(payments, model.PaymentTypePayment, model.PaymentStatusPaid, price); !ok {
			return errors.Wrapf(errs.ErrPaymentNotFound, "borrowing %s", b.BorrowingUid)
		}
		borrowing = b

		if today.After(b.ExpectedReturnDate) {
			fine, err := pricing.CalculateFine(bk.DailyFee, b.ExpectedReturnDate, today)
			if err != nil {
				return err
			}
			p, err := s.openSession(ctx, tx, b, fine, model.PaymentTypeFine,
				fmt.Sprintf("Fine for overdue borrowing of %s", bk.Title))
			if err != nil {
				return err
			}
			res = model.ReturnBorrowingResponse{
				BorrowingUid:       b.BorrowingUid,
				Message:            fmt.Sprintf("The borrowing is overdue, pay the fine of %s$ to return the book", fine.StringFixed(2)),
				Fine:               &fine,
				CheckoutSessionURL: p.SessionURL,
			}
			return nil
		}

		if err := completeReturn(ctx, tx, b, today); err != nil {
			return err
		}
		completed = true
		date := model.NewDate(today)
		res = model.ReturnBorrowingResponse{
			BorrowingUid:     b.BorrowingUid,
			Completed:        true,
			Message:          fmt.Sprintf("The book %s has been returned.", bk.Title),
			ActualReturnDate: &date,
		}
		return nil
	})
	if err != nil {
		return model.ReturnBorrowingResponse{}, err
	}
	if completed {
		s.notifyReturned(ctx, borrowing.BorrowingUid, today)
	} else {
		s.log.Info("fine session opened", zap.String("borrowingUid", borrowing.BorrowingUid), zap.Stringer("fine", res.Fine))
	}
	return res, nil
}

// completeReturn closes the borrowing and puts the copy back on the shelf.
func completeReturn(ctx context.Context, tx repository.Tx, b model.Borrowing, today time.Time) error {
	if err := tx.SetActualReturnDate(ctx, b.ID, today); err != nil {
		return err
	}
	if err := tx.IncrementInventory(ctx, b.BookID); err != nil {
		return errors.Wrap(err, "IncrementInventory")
	}
	return nil
}

func (s *Service) notifyReturned(ctx context.Context, borrowingUid string, date time.Time) {
	s.notifier.Notify(ctx, fmt.Sprintf("The borrowing #%s is returned, the actual return date: %s",
		borrowingUid, date.Format(time.DateOnly)))
}

func (s *Service) ListBorrowings(ctx context.Context, caller model.Caller, filter model.BorrowingFilter) ([]model.BorrowingResponse, error) {
	if !caller.Staff {
		filter.Username = caller.Username
	}
	items, err := s.repo.ListBorrowings(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "ListBorrowings")
	}
	return s.newBorrowingResponses(ctx, items)
}

func (s *Service) GetBorrowing(ctx context.Context, caller model.Caller, borrowingUid string) (model.BorrowingResponse, error) {
	b, err := s.repo.GetBorrowing(ctx, borrowingUid)
	if err != nil {
		return model.BorrowingResponse{}, err
	}
	if !caller.CanAccess(b.Username) {
		return model.BorrowingResponse{}, errors.Wrap(errs.ErrNotFound, "borrowing")
	}
	res, err := s.newBorrowingResponses(ctx, []model.Borrowing{b})
	if err != nil {
		return model.BorrowingResponse{}, err
	}
	return res[0], nil
}

func (s *Service) newBorrowingResponses(ctx context.Context, items []model.Borrowing) ([]model.BorrowingResponse, error) {
	res := make([]model.BorrowingResponse, 0, len(items))
	if len(items) == 0 {
		return res, nil
	}
	bookIDs := make([]int64, 0, len(items))
	borrowingIDs := make([]int64, 0, len(items))
	seen := make(map[int64]struct{}, len(items))
	for _, b := range items {
		borrowingIDs = append(borrowingIDs, b.ID)
		if _, ok := seen[b.BookID]; !ok {
			seen[b.BookID] = struct{}{}
			bookIDs = append(bookIDs, b.BookID)
		}
	}

	books, err := s.repo.GetBooks(ctx, bookIDs)
	if err != nil {
		return nil, errors.Wrap(err, "GetBooks")
	}
	bookByID := make(map[int64]model.Book, len(books))
	for _, bk := range books {
		bookByID[bk.ID] = bk
	}
	payments, err := s.repo.ListPaymentsByBorrowings(ctx, borrowingIDs)
	if err != nil {
		return nil, errors.Wrap(err, "ListPaymentsByBorrowings")
	}
	paymentsByBorrowing := make(map[int64][]model.Payment, len(items))
	for _, p := range payments {
		paymentsByBorrowing[p.BorrowingID] = append(paymentsByBorrowing[p.BorrowingID], p)
	}

	for _, b := range items {
		res = append(res, s.newBorrowingResponse(b, bookByID[b.BookID], paymentsByBorrowing[b.ID]))
	}
	return res, nil
}

func (s *Service) newBorrowingResponse(b model.Borrowing, book model.Book, payments []model.Payment) model.BorrowingResponse {
	price := pricing.CalculateBorrowingPrice(book.DailyFee, b.BorrowDate, b.ExpectedReturnDate)
	res := model.BorrowingResponse{
		BorrowingUid:       b.BorrowingUid,
		Username:           b.Username,
		BorrowDate:         model.NewDate(b.BorrowDate),
		ExpectedReturnDate: model.NewDate(b.ExpectedReturnDate),
		State:              model.DeriveState(b, payments, price, s.today()),
		Price:              price,
		Book:               model.NewBookBrief(book),
		Payments:           make([]model.PaymentResponse, 0, len(payments)),
	}
	if b.ActualReturnDate != nil {
		d := model.NewDate(*b.ActualReturnDate)
		res.ActualReturnDate = &d
	}
	for _, p := range payments {
		res.Payments = append(res.Payments, model.NewPaymentResponse(p, b.BorrowingUid, ""))
	}
	return res
}
