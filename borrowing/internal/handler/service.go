package handler

import (
	"context"

	"github.com/Astemirdum/library-borrowing/borrowing/internal/model"
	"github.com/Astemirdum/library-borrowing/borrowing/internal/service"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type BorrowingService interface {
	CreateBorrowing(ctx context.Context, req model.CreateBorrowingRequest) (model.CreateBorrowingResponse, error)
	ReturnBorrowing(ctx context.Context, caller model.Caller, borrowingUid string) (model.ReturnBorrowingResponse, error)
	ListBorrowings(ctx context.Context, caller model.Caller, filter model.BorrowingFilter) ([]model.BorrowingResponse, error)
	GetBorrowing(ctx context.Context, caller model.Caller, borrowingUid string) (model.BorrowingResponse, error)

	ConfirmSession(ctx context.Context, sessionID string) (model.ConfirmResult, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (model.ConfirmResult, error)
	ListPayments(ctx context.Context, caller model.Caller) ([]model.PaymentResponse, error)

	ListBooks(ctx context.Context, caller model.Caller) ([]model.BookResponse, error)
	GetBook(ctx context.Context, caller model.Caller, id int64) (model.BookResponse, error)
	CreateBook(ctx context.Context, caller model.Caller, req model.CreateBookRequest) (model.BookResponse, error)
}

var _ BorrowingService = (*service.Service)(nil)
