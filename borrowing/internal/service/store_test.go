package service_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Astemirdum/library-borrowing/borrowing/internal/errs"
	"github.com/Astemirdum/library-borrowing/borrowing/internal/model"
	"github.com/Astemirdum/library-borrowing/borrowing/internal/repository"
	"github.com/pkg/errors"
)

// memStore is an in-memory repository. A transaction holds the store lock for its whole
// duration and is rolled back by restoring a snapshot.
type memStore struct {
	mu   sync.Mutex
	data *memData
	now  func() time.Time
}

type memData struct {
	nextID     int64
	books      map[int64]model.Book
	borrowings map[int64]model.Borrowing
	payments   map[int64]model.Payment
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		data: &memData{
			books:      map[int64]model.Book{},
			borrowings: map[int64]model.Borrowing{},
			payments:   map[int64]model.Payment{},
		},
		now: now,
	}
}

func (d *memData) clone() *memData {
	c := &memData{
		nextID:     d.nextID,
		books:      make(map[int64]model.Book, len(d.books)),
		borrowings: make(map[int64]model.Borrowing, len(d.borrowings)),
		payments:   make(map[int64]model.Payment, len(d.payments)),
	}
	for k, v := range d.books {
		c.books[k] = v
	}
	for k, v := range d.borrowings {
		c.borrowings[k] = v
	}
	for k, v := range d.payments {
		c.payments[k] = v
	}
	return c
}

func (d *memData) id() int64 {
	d.nextID++
	return d.nextID
}

func (s *memStore) addBook(b model.Book) model.Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.ID = s.data.id()
	s.data.books[b.ID] = b
	return b
}

func (s *memStore) inventory(bookID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.books[bookID].Inventory
}

func (s *memStore) borrowingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.borrowings)
}

func (s *memStore) borrowing(uid string) model.Borrowing {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, _ := s.data.findBorrowing(uid)
	return b
}

func (s *memStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.data.clone()
	if err := fn(ctx, &memTx{memData: s.data, now: s.now}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func (s *memStore) CreateBook(_ context.Context, book model.Book) (model.Book, error) {
	return s.addBook(book), nil
}

func (s *memStore) GetBook(_ context.Context, id int64) (model.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.book(id)
}

func (s *memStore) ListBooks(context.Context) ([]model.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]model.Book, 0, len(s.data.books))
	for _, b := range s.data.books {
		res = append(res, b)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *memStore) GetBooks(_ context.Context, ids []int64) ([]model.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []model.Book
	for _, id := range ids {
		if b, ok := s.data.books[id]; ok {
			res = append(res, b)
		}
	}
	return res, nil
}

func (s *memStore) GetBorrowing(_ context.Context, uid string) (model.Borrowing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data.findBorrowing(uid)
	if !ok {
		return model.Borrowing{}, errs.ErrNotFound
	}
	return b, nil
}

func (s *memStore) ListBorrowings(_ context.Context, filter model.BorrowingFilter) ([]model.Borrowing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]model.Borrowing, 0)
	for _, b := range s.data.borrowings {
		if filter.IsActive && b.IsReturned() {
			continue
		}
		if filter.Username != "" && b.Username != filter.Username {
			continue
		}
		res = append(res, b)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID > res[j].ID })
	return res, nil
}

func (s *memStore) ListOverdue(_ context.Context, dueBy time.Time) ([]model.OverdueBorrowing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []model.OverdueBorrowing
	for _, b := range s.data.borrowings {
		if b.IsReturned() || b.ExpectedReturnDate.After(dueBy) {
			continue
		}
		bk := s.data.books[b.BookID]
		res = append(res, model.OverdueBorrowing{Borrowing: b, Title: bk.Title, Author: bk.Author, Cover: bk.Cover, DailyFee: bk.DailyFee})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *memStore) GetPaymentBySession(_ context.Context, sessionID string) (model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.paymentBySession(sessionID)
}

func (s *memStore) ListPaymentsByBorrowings(_ context.Context, ids []int64) ([]model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []model.Payment
	for _, id := range ids {
		res = append(res, s.data.paymentsOf(id)...)
	}
	return res, nil
}

func (s *memStore) ListPayments(_ context.Context, username string) ([]model.PaymentDetails, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]model.PaymentDetails, 0)
	for _, p := range s.data.payments {
		b := s.data.borrowings[p.BorrowingID]
		if username != "" && b.Username != username {
			continue
		}
		res = append(res, model.PaymentDetails{Payment: p, BorrowingUid: b.BorrowingUid, Username: b.Username})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID > res[j].ID })
	return res, nil
}

func (d *memData) book(id int64) (model.Book, error) {
	b, ok := d.books[id]
	if !ok {
		return model.Book{}, errors.Wrapf(errs.ErrNotFound, "book %d", id)
	}
	return b, nil
}

func (d *memData) findBorrowing(uid string) (model.Borrowing, bool) {
	for _, b := range d.borrowings {
		if b.BorrowingUid == uid {
			return b, true
		}
	}
	return model.Borrowing{}, false
}

func (d *memData) paymentBySession(sessionID string) (model.Payment, error) {
	for _, p := range d.payments {
		if p.SessionID == sessionID {
			return p, nil
		}
	}
	return model.Payment{}, errors.Wrap(errs.ErrNotFound, "payment")
}

func (d *memData) paymentsOf(borrowingID int64) []model.Payment {
	var res []model.Payment
	for _, p := range d.payments {
		if p.BorrowingID == borrowingID {
			res = append(res, p)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

type memTx struct {
	*memData
	now func() time.Time
}

func (t *memTx) LockBook(_ context.Context, id int64) (model.Book, error) {
	return t.book(id)
}

func (t *memTx) GetBook(_ context.Context, id int64) (model.Book, error) {
	return t.book(id)
}

func (t *memTx) CountActiveHolds(_ context.Context, bookID int64, since time.Time) (int, error) {
	count := 0
	for _, b := range t.borrowings {
		if b.BookID != bookID || b.IsReturned() {
			continue
		}
		var pending, paid bool
		for _, p := range t.paymentsOf(b.ID) {
			if p.Type != model.PaymentTypePayment {
				continue
			}
			if p.Status == model.PaymentStatusPaid {
				paid = true
			} else if !p.CreatedAt.Before(since) {
				pending = true
			}
		}
		if pending && !paid {
			count++
		}
	}
	return count, nil
}

func (t *memTx) DecrementInventory(_ context.Context, bookID int64) error {
	b, err := t.book(bookID)
	if err != nil {
		return err
	}
	if b.Inventory <= 0 {
		return errs.ErrOutOfStock
	}
	b.Inventory--
	t.books[bookID] = b
	return nil
}

func (t *memTx) IncrementInventory(_ context.Context, bookID int64) error {
	b, err := t.book(bookID)
	if err != nil {
		return err
	}
	b.Inventory++
	t.books[bookID] = b
	return nil
}

func (t *memTx) CreateBorrowing(_ context.Context, b model.Borrowing) (model.Borrowing, error) {
	if _, ok := t.books[b.BookID]; !ok {
		return model.Borrowing{}, errs.ErrNotFound
	}
	b.ID = t.id()
	t.borrowings[b.ID] = b
	return b, nil
}

func (t *memTx) LockBorrowing(_ context.Context, uid string) (model.Borrowing, error) {
	b, ok := t.findBorrowing(uid)
	if !ok {
		return model.Borrowing{}, errors.Wrap(errs.ErrNotFound, "borrowing")
	}
	return b, nil
}

func (t *memTx) LockBorrowingByID(_ context.Context, id int64) (model.Borrowing, error) {
	b, ok := t.borrowings[id]
	if !ok {
		return model.Borrowing{}, errors.Wrap(errs.ErrNotFound, "borrowing")
	}
	return b, nil
}

func (t *memTx) SetActualReturnDate(_ context.Context, borrowingID int64, date time.Time) error {
	b, ok := t.borrowings[borrowingID]
	if !ok || b.IsReturned() {
		return errs.ErrAlreadyReturned
	}
	b.ActualReturnDate = &date
	t.borrowings[borrowingID] = b
	return nil
}

func (t *memTx) CreatePayment(_ context.Context, p model.Payment) (model.Payment, error) {
	if _, err := t.paymentBySession(p.SessionID); err == nil {
		return model.Payment{}, errs.ErrValidation
	}
	p.ID = t.id()
	p.CreatedAt = t.now()
	t.payments[p.ID] = p
	return p, nil
}

func (t *memTx) PaymentsByBorrowing(_ context.Context, borrowingID int64) ([]model.Payment, error) {
	return t.paymentsOf(borrowingID), nil
}

func (t *memTx) LockPaymentBySession(_ context.Context, sessionID string) (model.Payment, error) {
	return t.paymentBySession(sessionID)
}

func (t *memTx) MarkPaymentPaid(_ context.Context, paymentID int64) error {
	p, ok := t.payments[paymentID]
	if !ok || p.Status != model.PaymentStatusPending {
		return errs.ErrNotFound
	}
	p.Status = model.PaymentStatusPaid
	t.payments[paymentID] = p
	return nil
}

var (
	_ repository.Repository = (*memStore)(nil)
	_ repository.Tx         = (*memTx)(nil)
)
