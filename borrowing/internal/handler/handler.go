package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/Astemirdum/library-borrowing/borrowing/internal/model"
	"github.com/Astemirdum/library-borrowing/pkg/auth"
	"github.com/Astemirdum/library-borrowing/pkg/kafka"
	md "github.com/Astemirdum/library-borrowing/pkg/middleware"
	"github.com/Astemirdum/library-borrowing/pkg/validate"
	_ "github.com/Astemirdum/library-borrowing/swagger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/zap"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	paymentTypeHeader     = "payment_type"

	borrowingPayment = "borrowing_payment"
	finePayment      = "fine_payment"

	maxWebhookBody = 64 << 10 // 64 KB
)

type Handler struct {
	svc      BorrowingService
	enqueuer Enqueuer
	log      *zap.Logger
}

func New(svc BorrowingService, enqueuer Enqueuer, log *zap.Logger) *Handler {
	return &Handler{
		svc:      svc,
		enqueuer: enqueuer,
		log:      log.Named("handler"),
	}
}

func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
		AllowCredentials: true,
	}))

	base := e.Group("", md.NewRateLimiter(baseRPS))
	base.GET("/manage/health", h.Health)
	base.GET("/swagger/*", echoSwagger.WrapHandler)
	base.POST("/webhooks/payment", h.PaymentWebhook,
		middleware.RequestLoggerWithConfig(md.RequestLoggerConfig(h.log)))

	e.Validator = validate.NewCustomValidator()
	api := e.Group("/api/v1",
		middleware.RequestLoggerWithConfig(md.RequestLoggerConfig(h.log)),
		middleware.RequestID(),
		md.NewRateLimiter(apiRPS),
	)
	// the gateway redirects the borrower's browser here without our identity headers
	api.GET("/payments/success", h.PaymentSuccess)
	api.GET("/payments/cancel", h.PaymentCancel)

	api = api.Group("", md.AuthContext)

	api.GET("/books", h.ListBooks)
	api.GET("/books/:id", h.GetBook)
	api.POST("/books", h.CreateBook)

	api.POST("/borrowings", h.CreateBorrowing)
	api.GET("/borrowings", h.ListBorrowings)
	api.GET("/borrowings/:borrowingUid", h.GetBorrowing)
	api.POST("/borrowings/:borrowingUid/return", h.ReturnBorrowing)

	api.GET("/payments", h.ListPayments)

	return e
}

func callerOf(c echo.Context) model.Caller {
	u, _ := auth.GetUser(c.Request().Context())
	return model.Caller{Username: u.Name, Staff: u.IsStaff()}
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// CreateBorrowing godoc
// @Summary      Borrow a book
// @Tags         borrowings
// @Accept       json
// @Produce      json
// @Param        X-User-Name header string true "borrower"
// @Param        request body model.CreateBorrowingRequest true "borrowing"
// @Success      201 {object} model.CreateBorrowingResponse
// @Failure      400 {object} echo.HTTPError
// @Failure      503 {object} echo.HTTPError
// @Router       /borrowings [post]
func (h *Handler) CreateBorrowing(c echo.Context) error {
	var req model.CreateBorrowingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.UserName = callerOf(c).Username
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.CreateBorrowing(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

// ListBorrowings godoc
// @Summary      List borrowings
// @Tags         borrowings
// @Produce      json
// @Param        is_active query bool false "unreturned only"
// @Param        username query string false "borrower, staff only"
// @Success      200 {array} model.BorrowingResponse
// @Router       /borrowings [get]
func (h *Handler) ListBorrowings(c echo.Context) error {
	var (
		filter model.BorrowingFilter
		err    error
	)
	if isActive := c.QueryParam("is_active"); isActive != "" {
		if filter.IsActive, err = strconv.ParseBool(isActive); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, errors.New("is_active is invalid"))
		}
	}
	filter.Username = c.QueryParam("username")

	items, err := h.svc.ListBorrowings(c.Request().Context(), callerOf(c), filter)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetBorrowing(c echo.Context) error {
	res, err := h.svc.GetBorrowing(c.Request().Context(), callerOf(c), c.Param("borrowingUid"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// ReturnBorrowing godoc
// @Summary      Return a borrowed book
// @Description  An overdue borrowing answers 202 with a fine checkout session instead of completing.
// @Tags         borrowings
// @Produce      json
// @Param        borrowingUid path string true "borrowing uid"
// @Success      200 {object} model.ReturnBorrowingResponse
// @Success      202 {object} model.ReturnBorrowingResponse
// @Failure      400 {object} echo.HTTPError
// @Failure      404 {object} echo.HTTPError
// @Router       /borrowings/{borrowingUid}/return [post]
func (h *Handler) ReturnBorrowing(c echo.Context) error {
	res, err := h.svc.ReturnBorrowing(c.Request().Context(), callerOf(c), c.Param("borrowingUid"))
	if err != nil {
		return httpError(err)
	}
	if !res.Completed {
		return c.JSON(http.StatusAccepted, res)
	}
	return c.JSON(http.StatusOK, res)
}

// PaymentSuccess godoc
// @Summary      Checkout success redirect
// @Tags         payments
// @Produce      json
// @Param        session_id query string true "checkout session"
// @Success      200 {object} model.ConfirmResult
// @Success      201 {object} model.ConfirmResult
// @Success      204
// @Router       /payments/success [get]
func (h *Handler) PaymentSuccess(c echo.Context) error {
	sessionID := c.QueryParam("session_id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, errors.New("session_id is required"))
	}
	res, err := h.svc.ConfirmSession(c.Request().Context(), sessionID)
	if err != nil {
		return httpError(err)
	}

	switch res.Outcome {
	case model.OutcomeNotFound:
		return c.NoContent(http.StatusNoContent)
	case model.OutcomePaid:
		if res.PaymentType == model.PaymentTypeFine {
			c.Response().Header().Set(paymentTypeHeader, finePayment)
			return c.JSON(http.StatusOK, res)
		}
		c.Response().Header().Set(paymentTypeHeader, borrowingPayment)
		return c.JSON(http.StatusCreated, res)
	case model.OutcomeReturned:
		c.Response().Header().Set(paymentTypeHeader, finePayment)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) PaymentCancel(c echo.Context) error {
	return c.JSON(http.StatusOK, model.MessageResponse{
		Message: "Payment can be made later. The session is available for 24 hours.",
	})
}

// PaymentWebhook godoc
// @Summary      Payment gateway notifications
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        Stripe-Signature header string true "signature"
// @Success      200 {object} model.ConfirmResult
// @Failure      400 {object} echo.HTTPError
// @Failure      413 {object} echo.HTTPError
// @Router       /webhooks/payment [post]
func (h *Handler) PaymentWebhook(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(payload) > maxWebhookBody {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, errors.New("webhook payload is too large"))
	}
	ctx := c.Request().Context()
	res, err := h.svc.HandleWebhook(ctx, payload, c.Request().Header.Get(stripeSignatureHeader))
	if err == nil {
		return c.JSON(http.StatusOK, res)
	}
	if statusCode(err) != http.StatusServiceUnavailable || res.SessionID == "" {
		return httpError(err)
	}

	if qErr := h.enqueuer.Enqueue(kafka.PaymentConfirmationTopic, model.ConfirmationMsg{SessionID: res.SessionID}); qErr != nil {
		h.log.Error("enqueue confirmation", zap.String("sessionID", res.SessionID), zap.Error(qErr))
		return httpError(err)
	}
	h.log.Warn("confirmation queued", zap.String("sessionID", res.SessionID), zap.Error(err))
	return c.JSON(http.StatusOK, model.ConfirmResult{
		SessionID: res.SessionID,
		Message:   "confirmation queued",
	})
}

func (h *Handler) ListPayments(c echo.Context) error {
	items, err := h.svc.ListPayments(c.Request().Context(), callerOf(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListBooks(c echo.Context) error {
	books, err := h.svc.ListBooks(c.Request().Context(), callerOf(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, books)
}

func (h *Handler) GetBook(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.New("id is invalid"))
	}
	book, err := h.svc.GetBook(c.Request().Context(), callerOf(c), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, book)
}

func (h *Handler) CreateBook(c echo.Context) error {
	var req model.CreateBookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	book, err := h.svc.CreateBook(c.Request().Context(), callerOf(c), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, book)
}
