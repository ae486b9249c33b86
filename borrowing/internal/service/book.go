package service

import (
	"context"

	"github.com/Astemirdum/library-borrowing/borrowing/internal/errs"
	"github.com/Astemirdum/library-borrowing/borrowing/internal/model"
	"github.com/pkg/errors"
)

func (s *Service) ListBooks(ctx context.Context, caller model.Caller) ([]model.BookResponse, error) {
	books, err := s.repo.ListBooks(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "ListBooks")
	}
	res := make([]model.BookResponse, 0, len(books))
	for _, b := range books {
		res = append(res, model.NewBookResponse(b, caller.Staff))
	}
	return res, nil
}

func (s *Service) GetBook(ctx context.Context, caller model.Caller, id int64) (model.BookResponse, error) {
	b, err := s.repo.GetBook(ctx, id)
	if err != nil {
		return model.BookResponse{}, err
	}
	return model.NewBookResponse(b, caller.Staff), nil
}

func (s *Service) CreateBook(ctx context.Context, caller model.Caller, req model.CreateBookRequest) (model.BookResponse, error) {
	if !caller.Staff {
		return model.BookResponse{}, errors.Wrap(errs.ErrForbidden, "only staff can add books")
	}
	if req.DailyFee.IsNegative() {
		return model.BookResponse{}, errors.Wrap(errs.ErrValidation, "dailyFee can not be negative")
	}
	b, err := s.repo.CreateBook(ctx, model.Book{
		Title:     req.Title,
		Author:    req.Author,
		Cover:     req.Cover,
		Inventory: req.Inventory,
		DailyFee:  req.DailyFee.Round(2),
	})
	if err != nil {
		return model.BookResponse{}, err
	}
	return model.NewBookResponse(b, true), nil
}
