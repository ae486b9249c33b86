package service

import (
	"context"
	"fmt"

	"github.com/Astemirdum/library-borrowing/borrowing/internal/errs"
	"github.com/Astemirdum/library-borrowing/borrowing/internal/gateway"
	"github.com/Astemirdum/library-borrowing/borrowing/internal/model"
	"github.com/Astemirdum/library-borrowing/borrowing/internal/repository"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const datePretty = "02 January 2006"

// ConfirmSession reconciles a gateway session with the payment recorded for it.
// It is safe to call any number of times for the same session.
func (s *Service) ConfirmSession(ctx context.Context, sessionID string) (model.ConfirmResult, error) {
	res := model.ConfirmResult{SessionID: sessionID}
	if sessionID == "" {
		return res, errors.Wrap(errs.ErrValidation, "session_id is required")
	}

	if _, err := s.repo.GetPaymentBySession(ctx, sessionID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			res.Outcome = model.OutcomeNotFound
			res.Message = "Payment does not exist"
			return res, nil
		}
		return res, err
	}

	status, err := s.gateway.RetrieveSession(ctx, sessionID)
	if err != nil {
		return res, errors.Wrap(err, "gateway.RetrieveSession")
	}
	if !status.Paid {
		res.Outcome = model.OutcomeUnpaid
		res.Message = "Payment status: unpaid"
		return res, nil
	}

	var (
		borrowing model.Borrowing
		returned  bool
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		p, err := tx.LockPaymentBySession(ctx, sessionID)
		if err != nil {
			return err
		}
		res.PaymentType = p.Type
		if p.Status == model.PaymentStatusPaid {
			res.Outcome = model.OutcomeAlreadyConfirmed
			res.Message = "Payment has already been confirmed"
			return nil
		}
		if err := tx.MarkPaymentPaid(ctx, p.ID); err != nil {
			return err
		}
		if borrowing, err = tx.LockBorrowingByID(ctx, p.BorrowingID); err != nil {
			return err
		}
		res.BorrowingUid = borrowing.BorrowingUid
		book, err := tx.GetBook(ctx, borrowing.BookID)
		if err != nil {
			return err
		}

		switch p.Type {
		case model.PaymentTypePayment:
			if err := tx.DecrementInventory(ctx, borrowing.BookID); err != nil {
				return err
			}
			res.Outcome = model.OutcomePaid
			res.Message = fmt.Sprintf("Payment is successful. Thank you for your purchase! "+
				"You can now show this confirmation to a library staff and they will give you a book. "+
				"Book: %s. You can use your book starting from %s to %s.",
				book.Title, borrowing.BorrowDate.Format(datePretty), borrowing.ExpectedReturnDate.Format(datePretty))
		case model.PaymentTypeFine:
			if borrowing.IsReturned() {
				res.Outcome = model.OutcomePaid
				res.Message = fmt.Sprintf("The fine for %s is paid.", book.Title)
				return nil
			}
			if err := completeReturn(ctx, tx, borrowing, s.today()); err != nil {
				return err
			}
			returned = true
			res.Outcome = model.OutcomeReturned
			res.Message = fmt.Sprintf("The book %s has been returned.", book.Title)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errs.ErrOutOfStock) {
			// the borrower is charged but the copy is gone
			s.log.Error("paid session cannot be reconciled",
				zap.String("sessionID", sessionID), zap.String("borrowingUid", res.BorrowingUid), zap.Error(err))
			s.notifier.Notify(ctx, fmt.Sprintf("ATTENTION: paid session %s for the borrowing #%s cannot be reconciled: %s",
				sessionID, res.BorrowingUid, err))
			return model.ConfirmResult{SessionID: sessionID}, err
		}
		s.log.Error("ConfirmSession", zap.String("sessionID", sessionID), zap.Error(err))
		return model.ConfirmResult{SessionID: sessionID}, err
	}

	switch {
	case returned:
		s.notifyReturned(ctx, borrowing.BorrowingUid, s.today())
	case res.Outcome == model.OutcomePaid:
		s.notifier.Notify(ctx, fmt.Sprintf("PURCHASED: %s payment for the borrowing #%s", res.PaymentType, borrowing.BorrowingUid))
	}
	return res, nil
}

// HandleWebhook verifies a gateway notification and reconciles the session it refers to.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (model.ConfirmResult, error) {
	ev, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		return model.ConfirmResult{}, err
	}
	if ev.Type != gateway.EventSessionDone || ev.SessionID == "" {
		s.log.Debug("webhook ignored", zap.String("type", ev.Type), zap.String("id", ev.ID))
		return model.ConfirmResult{Outcome: model.OutcomeIgnored, Message: ev.Type}, nil
	}
	return s.ConfirmSession(ctx, ev.SessionID)
}

func (s *Service) ListPayments(ctx context.Context, caller model.Caller) ([]model.PaymentResponse, error) {
	username := caller.Username
	if caller.Staff {
		username = ""
	}
	items, err := s.repo.ListPayments(ctx, username)
	if err != nil {
		return nil, errors.Wrap(err, "ListPayments")
	}
	res := make([]model.PaymentResponse, 0, len(items))
	for _, p := range items {
		res = append(res, model.NewPaymentResponse(p.Payment, p.BorrowingUid, p.Username))
	}
	return res, nil
}
