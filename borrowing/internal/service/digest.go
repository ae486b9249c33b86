package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Astemirdum/library-borrowing/borrowing/internal/model"
	"github.com/Astemirdum/library-borrowing/borrowing/internal/pricing"
	"github.com/pkg/errors"
)

// OverdueDigest reports borrowings due by tomorrow and returns how many there are.
func (s *Service) OverdueDigest(ctx context.Context) (int, error) {
	today := s.today()
	items, err := s.repo.ListOverdue(ctx, today.AddDate(0, 0, 1))
	if err != nil {
		return 0, errors.Wrap(err, "ListOverdue")
	}
	date := today.Format("January 02, 2006")
	if len(items) == 0 {
		s.notifier.Notify(ctx, fmt.Sprintf("date: %s. No overdue books today", date))
		return 0, nil
	}

	s.notifier.Notify(ctx, fmt.Sprintf("Overdue borrowings, date: %s", date))
	for _, b := range items {
		s.notifier.Notify(ctx, overdueMessage(b))
	}
	return len(items), nil
}

func overdueMessage(b model.OverdueBorrowing) string {
	price := pricing.CalculateBorrowingPrice(b.DailyFee, b.BorrowDate, b.ExpectedReturnDate)
	return fmt.Sprintf("Borrowing ID: %s,\n\n"+
		"Borrower: %s\n\n"+
		"Book:\nTitle: %s,\nAuthor: %s,\nCover: %s\n\n"+
		"Expected return date: %s\n"+
		"The total price is: %s$",
		b.BorrowingUid, b.Username, b.Title, b.Author, b.Cover,
		b.ExpectedReturnDate.Format(time.DateOnly), price.StringFixed(2))
}
