package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/Astemirdum/library-borrowing/borrowing/internal/errs"
	"github.com/Astemirdum/library-borrowing/borrowing/internal/model"
	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Repository interface {
	// WithTx runs fn in one transaction; fn's error rolls everything back.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	CreateBook(ctx context.Context, book model.Book) (model.Book, error)
	GetBook(ctx context.Context, id int64) (model.Book, error)
	ListBooks(ctx context.Context) ([]model.Book, error)
	GetBooks(ctx context.Context, ids []int64) ([]model.Book, error)

	GetBorrowing(ctx context.Context, borrowingUid string) (model.Borrowing, error)
	ListBorrowings(ctx context.Context, filter model.BorrowingFilter) ([]model.Borrowing, error)
	ListOverdue(ctx context.Context, dueBy time.Time) ([]model.OverdueBorrowing, error)

	GetPaymentBySession(ctx context.Context, sessionID string) (model.Payment, error)
	ListPaymentsByBorrowings(ctx context.Context, borrowingIDs []int64) ([]model.Payment, error)
	ListPayments(ctx context.Context, username string) ([]model.PaymentDetails, error)
}

// Tx is the set of operations that must run under the caller's transaction.
type Tx interface {
	LockBook(ctx context.Context, id int64) (model.Book, error)
	GetBook(ctx context.Context, id int64) (model.Book, error)
	// CountActiveHolds counts unreturned borrowings of the book whose base payment
	// is still pending and was opened after since.
	CountActiveHolds(ctx context.Context, bookID int64, since time.Time) (int, error)
	DecrementInventory(ctx context.Context, bookID int64) error
	IncrementInventory(ctx context.Context, bookID int64) error

	CreateBorrowing(ctx context.Context, b model.Borrowing) (model.Borrowing, error)
	LockBorrowing(ctx context.Context, borrowingUid string) (model.Borrowing, error)
	LockBorrowingByID(ctx context.Context, id int64) (model.Borrowing, error)
	SetActualReturnDate(ctx context.Context, borrowingID int64, date time.Time) error

	CreatePayment(ctx context.Context, p model.Payment) (model.Payment, error)
	PaymentsByBorrowing(ctx context.Context, borrowingID int64) ([]model.Payment, error)
	LockPaymentBySession(ctx context.Context, sessionID string) (model.Payment, error)
	MarkPaymentPaid(ctx context.Context, paymentID int64) error
}

type repository struct {
	db  *sqlx.DB
	log *zap.Logger
}

func NewRepository(db *sqlx.DB, log *zap.Logger) (*repository, error) {
	return &repository{
		db:  db,
		log: log.Named("repo"),
	}, nil
}

const (
	booksTableName      = `books`
	borrowingsTableName = `borrowings`
	paymentsTableName   = `payments`
)

var (
	bookColumns      = []string{"id", "title", "author", "cover", "inventory", "daily_fee"}
	borrowingColumns = []string{"id", "borrowing_uid", "username", "book_id", "borrow_date", "expected_return_date", "actual_return_date"}
	paymentColumns   = []string{"id", "payment_uid", "borrowing_id", "status", "type", "session_id", "session_url", "money_to_pay", "created_at"}
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func (r *repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) (err error) {
	sqlTx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := sqlTx.Rollback(); rbErr != nil {
				r.log.Error("rollback", zap.Error(rbErr))
			}
			return
		}
		err = errors.Wrap(sqlTx.Commit(), "commit tx")
	}()

	return fn(ctx, &txRepository{tx: sqlTx, log: r.log})
}

func (r *repository) CreateBook(ctx context.Context, book model.Book) (model.Book, error) {
	q, args, err := qb.Insert(booksTableName).
		Columns("title", "author", "cover", "inventory", "daily_fee").
		Values(book.Title, book.Author, book.Cover, book.Inventory, book.DailyFee).
		Suffix("returning *").
		ToSql()
	if err != nil {
		return model.Book{}, err
	}
	var res model.Book
	if err := r.db.GetContext(ctx, &res, q, args...); err != nil {
		r.log.Error("CreateBook", zap.String("q", q), zap.Any("args", args))
		return model.Book{}, mapErr(err)
	}
	return res, nil
}

func (r *repository) GetBook(ctx context.Context, id int64) (model.Book, error) {
	return getBook(ctx, r.db, id, false)
}

func (r *repository) ListBooks(ctx context.Context) ([]model.Book, error) {
	q, args, err := qb.Select(bookColumns...).
		From(booksTableName).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}
	books := make([]model.Book, 0)
	if err := r.db.SelectContext(ctx, &books, q, args...); err != nil {
		return nil, err
	}
	return books, nil
}

func (r *repository) GetBooks(ctx context.Context, ids []int64) ([]model.Book, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q, args, err := qb.Select(bookColumns...).
		From(booksTableName).
		Where(sq.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return nil, err
	}
	var books []model.Book
	if err := r.db.SelectContext(ctx, &books, q, args...); err != nil {
		return nil, err
	}
	return books, nil
}

func (r *repository) GetBorrowing(ctx context.Context, borrowingUid string) (model.Borrowing, error) {
	return getBorrowing(ctx, r.db, sq.Eq{"borrowing_uid": borrowingUid}, false)
}

func (r *repository) ListBorrowings(ctx context.Context, filter model.BorrowingFilter) ([]model.Borrowing, error) {
	sb := qb.Select(borrowingColumns...).
		From(borrowingsTableName).
		OrderBy("id desc")
	if filter.IsActive {
		sb = sb.Where(sq.Eq{"actual_return_date": nil})
	}
	if filter.Username != "" {
		sb = sb.Where(sq.Eq{"username": filter.Username})
	}
	q, args, err := sb.ToSql()
	if err != nil {
		return nil, err
	}
	r.log.Debug("ListBorrowings", zap.String("query", q), zap.Any("args", args))

	items := make([]model.Borrowing, 0)
	if err := r.db.SelectContext(ctx, &items, q, args...); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) ListOverdue(ctx context.Context, dueBy time.Time) ([]model.OverdueBorrowing, error) {
	q, args, err := qb.Select(
		"b.id", "b.borrowing_uid", "b.username", "b.book_id", "b.borrow_date",
		"b.expected_return_date", "b.actual_return_date",
		"bk.title", "bk.author", "bk.cover", "bk.daily_fee").
		From(borrowingsTableName + " b").
		Join(booksTableName + " bk on bk.id = b.book_id").
		Where(sq.Eq{"b.actual_return_date": nil}).
		Where(sq.LtOrEq{"b.expected_return_date": dueBy}).
		OrderBy("b.expected_return_date", "b.id").
		ToSql()
	if err != nil {
		return nil, err
	}
	var items []model.OverdueBorrowing
	if err := r.db.SelectContext(ctx, &items, q, args...); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) GetPaymentBySession(ctx context.Context, sessionID string) (model.Payment, error) {
	return getPayment(ctx, r.db, sessionID, false)
}

func (r *repository) ListPaymentsByBorrowings(ctx context.Context, borrowingIDs []int64) ([]model.Payment, error) {
	if len(borrowingIDs) == 0 {
		return nil, nil
	}
	q, args, err := qb.Select(paymentColumns...).
		From(paymentsTableName).
		Where(sq.Eq{"borrowing_id": borrowingIDs}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}
	var items []model.Payment
	if err := r.db.SelectContext(ctx, &items, q, args...); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) ListPayments(ctx context.Context, username string) ([]model.PaymentDetails, error) {
	sb := qb.Select(
		"p.id", "p.payment_uid", "p.borrowing_id", "p.status", "p.type", "p.session_id",
		"p.session_url", "p.money_to_pay", "p.created_at", "b.borrowing_uid", "b.username").
		From(paymentsTableName + " p").
		Join(borrowingsTableName + " b on b.id = p.borrowing_id").
		OrderBy("p.id desc")
	if username != "" {
		sb = sb.Where(sq.Eq{"b.username": username})
	}
	q, args, err := sb.ToSql()
	if err != nil {
		return nil, err
	}
	items := make([]model.PaymentDetails, 0)
	if err := r.db.SelectContext(ctx, &items, q, args...); err != nil {
		return nil, err
	}
	return items, nil
}

type txRepository struct {
	tx  *sqlx.Tx
	log *zap.Logger
}

func (t *txRepository) LockBook(ctx context.Context, id int64) (model.Book, error) {
	return getBook(ctx, t.tx, id, true)
}

func (t *txRepository) GetBook(ctx context.Context, id int64) (model.Book, error) {
	return getBook(ctx, t.tx, id, false)
}

const countActiveHoldsQuery = `
select count(distinct b.id)
from borrowings b
    join payments p on p.borrowing_id = b.id
where b.book_id = $1
  and b.actual_return_date is null
  and p.type = 'PAYMENT' and p.status = 'PENDING' and p.created_at >= $2
  and not exists (
    select 1 from payments pp
    where pp.borrowing_id = b.id and pp.type = 'PAYMENT' and pp.status = 'PAID'
  )`

func (t *txRepository) CountActiveHolds(ctx context.Context, bookID int64, since time.Time) (int, error) {
	var count int
	if err := t.tx.QueryRowContext(ctx, countActiveHoldsQuery, bookID, since).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

const (
	decrementInventoryQuery = `update books set inventory = inventory - 1 where id = $1 and inventory > 0`
	incrementInventoryQuery = `update books set inventory = inventory + 1 where id = $1`
)

func (t *txRepository) DecrementInventory(ctx context.Context, bookID int64) error {
	res, err := t.tx.ExecContext(ctx, decrementInventoryQuery, bookID)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(errs.ErrOutOfStock, "book %d", bookID)
	}
	return nil
}

func (t *txRepository) IncrementInventory(ctx context.Context, bookID int64) error {
	res, err := t.tx.ExecContext(ctx, incrementInventoryQuery, bookID)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(errs.ErrNotFound, "book %d", bookID)
	}
	return nil
}

func (t *txRepository) CreateBorrowing(ctx context.Context, b model.Borrowing) (model.Borrowing, error) {
	q, args, err := qb.Insert(borrowingsTableName).
		Columns("borrowing_uid", "username", "book_id", "borrow_date", "expected_return_date").
		Values(b.BorrowingUid, b.Username, b.BookID, b.BorrowDate, b.ExpectedReturnDate).
		Suffix("returning *").
		ToSql()
	if err != nil {
		return model.Borrowing{}, err
	}
	var res model.Borrowing
	if err := t.tx.GetContext(ctx, &res, q, args...); err != nil {
		t.log.Error("CreateBorrowing", zap.String("q", q), zap.Any("args", args))
		return model.Borrowing{}, mapErr(err)
	}
	return res, nil
}

func (t *txRepository) LockBorrowing(ctx context.Context, borrowingUid string) (model.Borrowing, error) {
	return getBorrowing(ctx, t.tx, sq.Eq{"borrowing_uid": borrowingUid}, true)
}

func (t *txRepository) LockBorrowingByID(ctx context.Context, id int64) (model.Borrowing, error) {
	return getBorrowing(ctx, t.tx, sq.Eq{"id": id}, true)
}

const setActualReturnDateQuery = `update borrowings set actual_return_date = $2 where id = $1 and actual_return_date is null`

func (t *txRepository) SetActualReturnDate(ctx context.Context, borrowingID int64, date time.Time) error {
	res, err := t.tx.ExecContext(ctx, setActualReturnDateQuery, borrowingID, date)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(errs.ErrAlreadyReturned, "borrowing %d", borrowingID)
	}
	return nil
}

func (t *txRepository) CreatePayment(ctx context.Context, p model.Payment) (model.Payment, error) {
	q, args, err := qb.Insert(paymentsTableName).
		Columns("payment_uid", "borrowing_id", "status", "type", "session_id", "session_url", "money_to_pay").
		Values(p.PaymentUid, p.BorrowingID, p.Status, p.Type, p.SessionID, p.SessionURL, p.MoneyToPay).
		Suffix("returning *").
		ToSql()
	if err != nil {
		return model.Payment{}, err
	}
	var res model.Payment
	if err := t.tx.GetContext(ctx, &res, q, args...); err != nil {
		t.log.Error("CreatePayment", zap.String("q", q), zap.Any("args", args))
		return model.Payment{}, mapErr(err)
	}
	return res, nil
}

func (t *txRepository) PaymentsByBorrowing(ctx context.Context, borrowingID int64) ([]model.Payment, error) {
	q, args, err := qb.Select(paymentColumns...).
		From(paymentsTableName).
		Where(sq.Eq{"borrowing_id": borrowingID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}
	var items []model.Payment
	if err := t.tx.SelectContext(ctx, &items, q, args...); err != nil {
		return nil, err
	}
	return items, nil
}

func (t *txRepository) LockPaymentBySession(ctx context.Context, sessionID string) (model.Payment, error) {
	return getPayment(ctx, t.tx, sessionID, true)
}

const markPaymentPaidQuery = `update payments set status = 'PAID' where id = $1 and status = 'PENDING'`

func (t *txRepository) MarkPaymentPaid(ctx context.Context, paymentID int64) error {
	res, err := t.tx.ExecContext(ctx, markPaymentPaidQuery, paymentID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(errs.ErrNotFound, "pending payment %d", paymentID)
	}
	return nil
}

func getBook(ctx context.Context, q sqlx.QueryerContext, id int64, lock bool) (model.Book, error) {
	sb := qb.Select(bookColumns...).
		From(booksTableName).
		Where(sq.Eq{"id": id})
	if lock {
		sb = sb.Suffix("for update")
	}
	query, args, err := sb.ToSql()
	if err != nil {
		return model.Book{}, err
	}
	var book model.Book
	if err := sqlx.GetContext(ctx, q, &book, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Book{}, errors.Wrapf(errs.ErrNotFound, "book %d", id)
		}
		return model.Book{}, err
	}
	return book, nil
}

func getBorrowing(ctx context.Context, q sqlx.QueryerContext, where sq.Eq, lock bool) (model.Borrowing, error) {
	sb := qb.Select(borrowingColumns...).
		From(borrowingsTableName).
		Where(where)
	if lock {
		sb = sb.Suffix("for update")
	}
	query, args, err := sb.ToSql()
	if err != nil {
		return model.Borrowing{}, err
	}
	var b model.Borrowing
	if err := sqlx.GetContext(ctx, q, &b, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Borrowing{}, errors.Wrap(errs.ErrNotFound, "borrowing")
		}
		return model.Borrowing{}, err
	}
	return b, nil
}

func getPayment(ctx context.Context, q sqlx.QueryerContext, sessionID string, lock bool) (model.Payment, error) {
	sb := qb.Select(paymentColumns...).
		From(paymentsTableName).
		Where(sq.Eq{"session_id": sessionID})
	if lock {
		sb = sb.Suffix("for update")
	}
	query, args, err := sb.ToSql()
	if err != nil {
		return model.Payment{}, err
	}
	var p model.Payment
	if err := sqlx.GetContext(ctx, q, &p, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Payment{}, errors.Wrap(errs.ErrNotFound, "payment")
		}
		return model.Payment{}, err
	}
	return p, nil
}

// mapErr turns constraint violations into domain errors.
func mapErr(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgerrcode.CheckViolation:
		if pgErr.ConstraintName == "books_inventory_check" {
			return errors.Wrap(errs.ErrOutOfStock, pgErr.Message)
		}
		return errors.Wrap(errs.ErrValidation, pgErr.Message)
	case pgerrcode.ForeignKeyViolation:
		return errors.Wrap(errs.ErrNotFound, pgErr.Message)
	case pgerrcode.UniqueViolation:
		return errors.Wrap(errs.ErrValidation, pgErr.Message)
	}
	return err
}
