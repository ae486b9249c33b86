package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Astemirdum/library-borrowing/borrowing/internal/errs"
	"github.com/Astemirdum/library-borrowing/borrowing/internal/gateway"
	"github.com/Astemirdum/library-borrowing/borrowing/internal/model"
	"github.com/Astemirdum/library-borrowing/borrowing/internal/service"
	"github.com/golang/mock/gomock"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	service_mocks "github.com/Astemirdum/library-borrowing/borrowing/internal/service/mocks"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func day(d int) time.Time {
	return time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	svc      *service.Service
	store    *memStore
	gw       *service_mocks.MockPaymentGateway
	notifier *service_mocks.MockNotifier
	clock    *clock
	book     model.Book
}

func newFixture(t *testing.T, inventory int, opts ...service.Option) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	clk := &clock{t: day(1).Add(10 * time.Hour)}
	store := newMemStore(clk.Now)
	f := &fixture{
		store:    store,
		gw:       service_mocks.NewMockPaymentGateway(ctrl),
		notifier: service_mocks.NewMockNotifier(ctrl),
		clock:    clk,
		book: store.addBook(model.Book{
			Title:     "The Go Programming Language",
			Author:    "Alan Donovan",
			Cover:     model.CoverHard,
			Inventory: inventory,
			DailyFee:  decimal.RequireFromString("1.99"),
		}),
	}
	f.svc = service.NewService(store, f.gw, f.notifier, zap.NewNop(), append([]service.Option{service.WithClock(clk.Now)}, opts...)...)
	return f
}

// expectSessions makes the gateway hand out sequential sessions and records the requests.
func (f *fixture) expectSessions(reqs *[]gateway.SessionRequest) {
	var (
		mu sync.Mutex
		n  int
	)
	f.gw.EXPECT().CreateSession(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req gateway.SessionRequest) (gateway.Session, error) {
			mu.Lock()
			defer mu.Unlock()
			n++
			if reqs != nil {
				*reqs = append(*reqs, req)
			}
			id := fmt.Sprintf("cs_test_%d", n)
			return gateway.Session{ID: id, URL: "https://checkout.example/" + id}, nil
		}).AnyTimes()
}

func (f *fixture) expectPaid(sessionID string, times int) {
	f.gw.EXPECT().RetrieveSession(gomock.Any(), sessionID).
		Return(gateway.SessionStatus{ID: sessionID, Paid: true}, nil).
		Times(times)
}

func (f *fixture) quietNotifier() {
	f.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).AnyTimes()
}

func (f *fixture) create(t *testing.T, user string, expected time.Time) model.CreateBorrowingResponse {
	t.Helper()
	res, err := f.svc.CreateBorrowing(context.Background(), model.CreateBorrowingRequest{
		BookID:             f.book.ID,
		ExpectedReturnDate: model.NewDate(expected),
		UserName:           user,
	})
	require.NoError(t, err)
	return res
}

func sessionOf(res model.CreateBorrowingResponse) string {
	return res.Payments[0].SessionID
}

func TestService_BorrowPayReturn(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 10)
	var reqs []gateway.SessionRequest
	f.expectSessions(&reqs)
	f.quietNotifier()
	ctx := context.Background()
	user := model.Caller{Username: "alice"}

	created := f.create(t, user.Username, day(2))
	require.Equal(t, model.StateUnpaid, created.State)
	require.True(t, decimal.RequireFromString("3.98").Equal(created.Price))
	require.Equal(t, "https://checkout.example/cs_test_1", created.CheckoutSessionURL)
	require.Len(t, reqs, 1)
	require.True(t, decimal.RequireFromString("3.98").Equal(reqs[0].Amount))
	require.False(t, reqs[0].IsFine)
	require.Equal(t, 10, f.store.inventory(f.book.ID), "inventory moves only on payment")

	f.expectPaid(sessionOf(created), 2)
	res, err := f.svc.ConfirmSession(ctx, sessionOf(created))
	require.NoError(t, err)
	require.Equal(t, model.OutcomePaid, res.Outcome)
	require.Equal(t, model.PaymentTypePayment, res.PaymentType)
	require.Equal(t, created.BorrowingUid, res.BorrowingUid)
	require.Equal(t, 9, f.store.inventory(f.book.ID))

	res, err = f.svc.ConfirmSession(ctx, sessionOf(created))
	require.NoError(t, err)
	require.Equal(t, model.OutcomeAlreadyConfirmed, res.Outcome)
	require.Equal(t, 9, f.store.inventory(f.book.ID))

	got, err := f.svc.GetBorrowing(ctx, user, created.BorrowingUid)
	require.NoError(t, err)
	require.Equal(t, model.StatePaidActive, got.State)

	f.clock.Set(day(2).Add(9 * time.Hour))
	ret, err := f.svc.ReturnBorrowing(ctx, user, created.BorrowingUid)
	require.NoError(t, err)
	require.True(t, ret.Completed)
	require.Equal(t, day(2), ret.ActualReturnDate.Time)
	require.Equal(t, 10, f.store.inventory(f.book.ID))

	_, err = f.svc.ReturnBorrowing(ctx, user, created.BorrowingUid)
	require.ErrorIs(t, err, errs.ErrAlreadyReturned)
	require.Equal(t, 10, f.store.inventory(f.book.ID))

	got, err = f.svc.GetBorrowing(ctx, user, created.BorrowingUid)
	require.NoError(t, err)
	require.Equal(t, model.StateReturned, got.State)
}

func TestService_ReturnBeforePayment(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 3)
	f.expectSessions(nil)
	f.quietNotifier()

	created := f.create(t, "alice", day(5))
	_, err := f.svc.ReturnBorrowing(context.Background(), model.Caller{Username: "alice"}, created.BorrowingUid)
	require.ErrorIs(t, err, errs.ErrPaymentNotFound)
	require.Equal(t, 3, f.store.inventory(f.book.ID))
	require.Nil(t, f.store.borrowing(created.BorrowingUid).ActualReturnDate)
}

func TestService_OverdueReturn(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 2)
	var reqs []gateway.SessionRequest
	f.expectSessions(&reqs)
	f.quietNotifier()
	ctx := context.Background()
	user := model.Caller{Username: "bob"}

	created := f.create(t, user.Username, day(1))
	f.expectPaid(sessionOf(created), 1)
	_, err := f.svc.ConfirmSession(ctx, sessionOf(created))
	require.NoError(t, err)
	require.Equal(t, 1, f.store.inventory(f.book.ID))

	f.clock.Set(day(8).Add(time.Hour))
	got, err := f.svc.GetBorrowing(ctx, user, created.BorrowingUid)
	require.NoError(t, err)
	require.Equal(t, model.StateOverdueUnpaidFine, got.State)

	ret, err := f.svc.ReturnBorrowing(ctx, user, created.BorrowingUid)
	require.NoError(t, err)
	require.False(t, ret.Completed)
	require.NotNil(t, ret.Fine)
	require.True(t, decimal.RequireFromString("27.86").Equal(*ret.Fine))
	require.Equal(t, "https://checkout.example/cs_test_2", ret.CheckoutSessionURL)
	require.Len(t, reqs, 2)
	require.True(t, reqs[1].IsFine)
	require.Nil(t, f.store.borrowing(created.BorrowingUid).ActualReturnDate)
	require.Equal(t, 1, f.store.inventory(f.book.ID))

	f.expectPaid("cs_test_2", 2)
	res, err := f.svc.ConfirmSession(ctx, "cs_test_2")
	require.NoError(t, err)
	require.Equal(t, model.OutcomeReturned, res.Outcome)
	require.Equal(t, model.PaymentTypeFine, res.PaymentType)
	require.Equal(t, day(8), *f.store.borrowing(created.BorrowingUid).ActualReturnDate)
	require.Equal(t, 2, f.store.inventory(f.book.ID))

	res, err = f.svc.ConfirmSession(ctx, "cs_test_2")
	require.NoError(t, err)
	require.Equal(t, model.OutcomeAlreadyConfirmed, res.Outcome)
	require.Equal(t, 2, f.store.inventory(f.book.ID))
}

func TestService_CreateBorrowing_GatewayFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 1)
	f.gw.EXPECT().CreateSession(gomock.Any(), gomock.Any()).
		Return(gateway.Session{}, errors.Wrap(errs.ErrGatewayUnavailable, "timeout"))

	_, err := f.svc.CreateBorrowing(context.Background(), model.CreateBorrowingRequest{
		BookID:             f.book.ID,
		ExpectedReturnDate: model.NewDate(day(3)),
		UserName:           "alice",
	})
	require.ErrorIs(t, err, errs.ErrGatewayUnavailable)
	require.Zero(t, f.store.borrowingCount())
	require.Equal(t, 1, f.store.inventory(f.book.ID))
}

func TestService_CreateBorrowing_Validation(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 1)

	tests := []struct {
		name    string
		req     model.CreateBorrowingRequest
		wantErr error
	}{
		{
			name:    "err. past date",
			req:     model.CreateBorrowingRequest{BookID: f.book.ID, ExpectedReturnDate: model.NewDate(day(1).AddDate(0, 0, -1)), UserName: "alice"},
			wantErr: errs.ErrValidation,
		},
		{
			name:    "err. no date",
			req:     model.CreateBorrowingRequest{BookID: f.book.ID, UserName: "alice"},
			wantErr: errs.ErrValidation,
		},
		{
			name:    "err. no book",
			req:     model.CreateBorrowingRequest{ExpectedReturnDate: model.NewDate(day(2)), UserName: "alice"},
			wantErr: errs.ErrValidation,
		},
		{
			name:    "err. unknown book",
			req:     model.CreateBorrowingRequest{BookID: 404, ExpectedReturnDate: model.NewDate(day(2)), UserName: "alice"},
			wantErr: errs.ErrNotFound,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateBorrowing(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
	require.Zero(t, f.store.borrowingCount())
}

func TestService_CreateBorrowing_Holds(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 1)
	f.expectSessions(nil)
	f.quietNotifier()

	const borrowers = 8
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		succeeded  int
		outOfStock int
	)
	for i := 0; i < borrowers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.CreateBorrowing(context.Background(), model.CreateBorrowingRequest{
				BookID:             f.book.ID,
				ExpectedReturnDate: model.NewDate(day(3)),
				UserName:           fmt.Sprintf("user%d", i),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, errs.ErrOutOfStock):
				outOfStock++
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, 1, succeeded)
	require.Equal(t, borrowers-1, outOfStock)
	require.Equal(t, 1, f.store.inventory(f.book.ID))

	// an abandoned checkout stops holding the copy once its session expires
	f.clock.Set(day(2).Add(11 * time.Hour))
	f.create(t, "late", day(3))
}

func TestService_ReturnBorrowing_Access(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 2)
	f.expectSessions(nil)
	f.quietNotifier()
	ctx := context.Background()

	created := f.create(t, "alice", day(3))
	f.expectPaid(sessionOf(created), 1)
	_, err := f.svc.ConfirmSession(ctx, sessionOf(created))
	require.NoError(t, err)

	_, err = f.svc.ReturnBorrowing(ctx, model.Caller{Username: "mallory"}, created.BorrowingUid)
	require.ErrorIs(t, err, errs.ErrNotFound)
	_, err = f.svc.GetBorrowing(ctx, model.Caller{Username: "mallory"}, created.BorrowingUid)
	require.ErrorIs(t, err, errs.ErrNotFound)

	ret, err := f.svc.ReturnBorrowing(ctx, model.Caller{Username: "librarian", Staff: true}, created.BorrowingUid)
	require.NoError(t, err)
	require.True(t, ret.Completed)
	require.Equal(t, 2, f.store.inventory(f.book.ID))
}

func TestService_ConfirmSession_Outcomes(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 2)
	f.expectSessions(nil)
	f.quietNotifier()
	ctx := context.Background()

	res, err := f.svc.ConfirmSession(ctx, "cs_unknown")
	require.NoError(t, err)
	require.Equal(t, model.OutcomeNotFound, res.Outcome)

	_, err = f.svc.ConfirmSession(ctx, "")
	require.ErrorIs(t, err, errs.ErrValidation)

	created := f.create(t, "alice", day(3))
	f.gw.EXPECT().RetrieveSession(gomock.Any(), sessionOf(created)).
		Return(gateway.SessionStatus{ID: sessionOf(created)}, nil)
	res, err = f.svc.ConfirmSession(ctx, sessionOf(created))
	require.NoError(t, err)
	require.Equal(t, model.OutcomeUnpaid, res.Outcome)
	require.Equal(t, 2, f.store.inventory(f.book.ID))

	f.gw.EXPECT().RetrieveSession(gomock.Any(), sessionOf(created)).
		Return(gateway.SessionStatus{}, errors.Wrap(errs.ErrGatewayUnavailable, "down"))
	_, err = f.svc.ConfirmSession(ctx, sessionOf(created))
	require.ErrorIs(t, err, errs.ErrGatewayUnavailable)
}

func TestService_ConfirmSession_ExpiredHoldOutOfStock(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 1)
	f.expectSessions(nil)
	var (
		mu       sync.Mutex
		messages []string
	)
	f.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, text string) {
			mu.Lock()
			defer mu.Unlock()
			messages = append(messages, text)
		}).AnyTimes()
	ctx := context.Background()

	first := f.create(t, "alice", day(3))
	f.clock.Set(day(2).Add(11 * time.Hour))
	second := f.create(t, "bob", day(3))

	f.expectPaid(sessionOf(second), 1)
	_, err := f.svc.ConfirmSession(ctx, sessionOf(second))
	require.NoError(t, err)
	require.Zero(t, f.store.inventory(f.book.ID))

	f.expectPaid(sessionOf(first), 1)
	_, err = f.svc.ConfirmSession(ctx, sessionOf(first))
	require.ErrorIs(t, err, errs.ErrOutOfStock)

	p, err := f.store.GetPaymentBySession(ctx, sessionOf(first))
	require.NoError(t, err)
	require.Equal(t, model.PaymentStatusPending, p.Status)
	require.Zero(t, f.store.inventory(f.book.ID))

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, messages[len(messages)-1], "paid session "+sessionOf(first))
	require.Contains(t, messages[len(messages)-1], first.BorrowingUid)
}

func TestService_ShortHold(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 1, service.WithHoldTTL(time.Hour))
	var reqs []gateway.SessionRequest
	f.expectSessions(&reqs)
	f.quietNotifier()
	ctx := context.Background()
	start := f.clock.Now()

	first := f.create(t, "alice", day(3))
	require.Len(t, reqs, 1)
	require.Equal(t, start.Add(time.Hour), reqs[0].ExpiresAt, "checkout closes when the hold ends")

	f.clock.Set(start.Add(59 * time.Minute))
	_, err := f.svc.CreateBorrowing(ctx, model.CreateBorrowingRequest{
		BookID:             f.book.ID,
		ExpectedReturnDate: model.NewDate(day(3)),
		UserName:           "bob",
	})
	require.ErrorIs(t, err, errs.ErrOutOfStock)

	f.clock.Set(start.Add(2 * time.Hour))
	second := f.create(t, "bob", day(3))
	require.Len(t, reqs, 2)
	require.False(t, reqs[0].ExpiresAt.After(f.clock.Now()), "the first checkout is closed before the copy is offered again")
	require.Equal(t, f.clock.Now().Add(time.Hour), reqs[1].ExpiresAt)

	f.expectPaid(sessionOf(second), 1)
	res, err := f.svc.ConfirmSession(ctx, sessionOf(second))
	require.NoError(t, err)
	require.Equal(t, model.OutcomePaid, res.Outcome)
	require.Zero(t, f.store.inventory(f.book.ID))

	// the gateway no longer reports the expired checkout as paid
	f.gw.EXPECT().RetrieveSession(gomock.Any(), sessionOf(first)).
		Return(gateway.SessionStatus{ID: sessionOf(first)}, nil)
	res, err = f.svc.ConfirmSession(ctx, sessionOf(first))
	require.NoError(t, err)
	require.Equal(t, model.OutcomeUnpaid, res.Outcome)
}

func TestService_HoldTTLBounds(t *testing.T) {
	t.Parallel()
	for _, ttl := range []time.Duration{0, 10 * time.Minute, 48 * time.Hour} {
		ttl := ttl
		t.Run(ttl.String(), func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, 1, service.WithHoldTTL(ttl))
			var reqs []gateway.SessionRequest
			f.expectSessions(&reqs)
			f.quietNotifier()

			f.create(t, "alice", day(3))
			require.Equal(t, f.clock.Now().Add(service.DefaultHoldTTL), reqs[0].ExpiresAt)
		})
	}
}

func TestService_HandleWebhook(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 1)
	f.expectSessions(nil)
	f.quietNotifier()
	ctx := context.Background()

	f.gw.EXPECT().ParseWebhook([]byte("other"), "sig").
		Return(gateway.WebhookEvent{ID: "evt_1", Type: "payment_intent.created"}, nil)
	res, err := f.svc.HandleWebhook(ctx, []byte("other"), "sig")
	require.NoError(t, err)
	require.Equal(t, model.OutcomeIgnored, res.Outcome)

	f.gw.EXPECT().ParseWebhook([]byte("forged"), "bad").
		Return(gateway.WebhookEvent{}, errors.Wrap(errs.ErrValidation, "signature"))
	_, err = f.svc.HandleWebhook(ctx, []byte("forged"), "bad")
	require.ErrorIs(t, err, errs.ErrValidation)

	created := f.create(t, "alice", day(2))
	f.gw.EXPECT().ParseWebhook([]byte("done"), "sig").
		Return(gateway.WebhookEvent{ID: "evt_2", Type: gateway.EventSessionDone, SessionID: sessionOf(created)}, nil)
	f.expectPaid(sessionOf(created), 1)
	res, err = f.svc.HandleWebhook(ctx, []byte("done"), "sig")
	require.NoError(t, err)
	require.Equal(t, model.OutcomePaid, res.Outcome)
	require.Zero(t, f.store.inventory(f.book.ID))
}

func TestService_ListBorrowings(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 5)
	f.expectSessions(nil)
	f.quietNotifier()
	ctx := context.Background()

	f.create(t, "alice", day(2))
	f.create(t, "alice", day(3))
	f.create(t, "bob", day(4))

	items, err := f.svc.ListBorrowings(ctx, model.Caller{Username: "alice"}, model.BorrowingFilter{Username: "bob"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, it := range items {
		require.Equal(t, "alice", it.Username)
		require.Len(t, it.Payments, 1)
		require.Equal(t, f.book.Title, it.Book.Title)
	}

	items, err = f.svc.ListBorrowings(ctx, model.Caller{Username: "staff", Staff: true}, model.BorrowingFilter{Username: "bob", IsActive: true})
	require.NoError(t, err)
	require.Len(t, items, 1)

	payments, err := f.svc.ListPayments(ctx, model.Caller{Username: "bob"})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	require.Equal(t, "bob", payments[0].Username)
}

func TestService_OverdueDigest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, 1)
		f.notifier.EXPECT().Notify(gomock.Any(), "date: January 01, 2024. No overdue books today")
		n, err := f.svc.OverdueDigest(ctx)
		require.NoError(t, err)
		require.Zero(t, n)
	})

	t.Run("due soon", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, 3)
		f.expectSessions(nil)
		f.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Times(3)
		f.create(t, "alice", day(1))
		f.create(t, "bob", day(2))
		f.create(t, "carol", day(9))

		var texts []string
		f.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).
			Do(func(_ context.Context, text string) { texts = append(texts, text) }).
			Times(3)
		n, err := f.svc.OverdueDigest(ctx)
		require.NoError(t, err)
		require.Equal(t, 2, n)
		require.Equal(t, "Overdue borrowings, date: January 01, 2024", texts[0])
		require.Contains(t, texts[1], "Borrower: alice")
		require.Contains(t, texts[2], "The total price is: 3.98$")
	})
}

func TestService_Books(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 4)
	ctx := context.Background()

	_, err := f.svc.CreateBook(ctx, model.Caller{Username: "alice"}, model.CreateBookRequest{Title: "Dune", Author: "Herbert", Cover: model.CoverSoft})
	require.ErrorIs(t, err, errs.ErrForbidden)

	created, err := f.svc.CreateBook(ctx, model.Caller{Username: "staff", Staff: true}, model.CreateBookRequest{
		Title: "Dune", Author: "Herbert", Cover: model.CoverSoft, Inventory: 2, DailyFee: decimal.RequireFromString("0.5"),
	})
	require.NoError(t, err)
	require.Equal(t, 2, *created.Inventory)

	books, err := f.svc.ListBooks(ctx, model.Caller{Username: "alice"})
	require.NoError(t, err)
	require.Len(t, books, 2)
	require.Nil(t, books[0].Inventory)

	book, err := f.svc.GetBook(ctx, model.Caller{Username: "staff", Staff: true}, f.book.ID)
	require.NoError(t, err)
	require.Equal(t, 4, *book.Inventory)
}
