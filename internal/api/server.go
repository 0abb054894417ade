package api

import (
	"context"
	"net/http"

	"stockfolio/internal/errors"
	"stockfolio/internal/model"
	"stockfolio/internal/obs"
	"stockfolio/internal/order"
	"stockfolio/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"
)

// Server is the HTTP request layer in front of the order processor.
type Server struct {
	app     *fiber.App
	orders  *order.Usecase
	metrics *obs.Metrics
}

// New builds the fiber app and its routes. metrics may be nil.
func New(orders *order.Usecase, metrics *obs.Metrics) *Server {
	s := &Server{
		orders:  orders,
		metrics: metrics,
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          handleFiberError,
		JSONEncoder:           sonic.ConfigStd.Marshal,
		JSONDecoder:           sonic.ConfigStd.Unmarshal,
	})
	s.app.Use(cors.New())

	api := s.app.Group("/api")
	api.Get("/test", s.test)
	api.Get("/info", s.info)
	api.Post("/buy_stock", s.buy)
	api.Post("/sell_stock", s.sell)
	api.Get("/transactions", s.transactions)
	api.Post("/accounts", s.openAccount)
	api.Get("/metrics", s.snapshot)

	return s
}

// App exposes the fiber app, used by tests through App().Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen blocks serving addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	logs.Infof("api listening on %s", addr)
	return s.app.Listen(addr)
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) test(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": "API is working!"})
}

type infoResponse struct {
	model.Portfolio
	TotalValue decimal.Decimal `json:"total_value"`
}

func (s *Server) info(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if len(userID) == 0 {
		return replyError(c, http.StatusBadRequest, "User ID is required")
	}

	portfolio, err := s.orders.Portfolio(c.UserContext(), userID)
	if err != nil {
		return replyErr(c, err)
	}
	if portfolio.Holdings == nil {
		portfolio.Holdings = []model.Holding{}
	}

	return c.JSON(infoResponse{
		Portfolio:  portfolio,
		TotalValue: portfolio.TotalValue(),
	})
}

func (s *Server) buy(c *fiber.Ctx) error {
	return s.trade(c, s.orders.Buy, "Stock purchased successfully")
}

func (s *Server) sell(c *fiber.Ctx) error {
	return s.trade(c, s.orders.Sell, "Stock sold successfully!")
}

func (s *Server) trade(c *fiber.Ctx, exec func(context.Context, order.Request) (order.Result, error), message string) error {
	if !c.Is("json") {
		return replyError(c, http.StatusUnsupportedMediaType, "Request must be JSON")
	}

	var req tradeRequest
	if err := c.BodyParser(&req); err != nil {
		return replyError(c, http.StatusBadRequest, "Invalid request body")
	}
	if req.missing() {
		return replyError(c, http.StatusBadRequest, "Missing required parameters")
	}

	result, err := exec(c.UserContext(), order.Request{
		UserID: string(req.UserID),
		Symbol: req.Symbol,
		Shares: *req.Shares,
	})
	if err != nil {
		return replyErr(c, err)
	}

	return c.JSON(fiber.Map{
		"message":     message,
		"symbol":      result.Symbol,
		"shares":      result.Shares,
		"price":       result.Price,
		"new_balance": result.NewBalance,
	})
}

func (s *Server) transactions(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if len(userID) == 0 {
		return replyError(c, http.StatusBadRequest, "User ID is required")
	}

	records, err := s.orders.History(c.UserContext(), userID)
	if err != nil {
		return replyErr(c, err)
	}
	if records == nil {
		records = []model.TransactionRecord{}
	}

	return c.JSON(fiber.Map{"transactions": records})
}

func (s *Server) openAccount(c *fiber.Ctx) error {
	if !c.Is("json") {
		return replyError(c, http.StatusUnsupportedMediaType, "Request must be JSON")
	}

	var req accountRequest
	if err := c.BodyParser(&req); err != nil {
		return replyError(c, http.StatusBadRequest, "Invalid request body")
	}
	if len(req.UserID) == 0 {
		return replyError(c, http.StatusBadRequest, "User ID is required")
	}

	balance := decimal.Zero
	if req.Balance != nil {
		balance = *req.Balance
	}

	account, err := s.orders.OpenAccount(c.UserContext(), string(req.UserID), balance)
	if err != nil {
		return replyErr(c, err)
	}

	return c.Status(http.StatusCreated).JSON(account)
}

func (s *Server) snapshot(c *fiber.Ctx) error {
	return c.JSON(s.metrics.Snapshot())
}

func replyErr(c *fiber.Ctx, err error) error {
	status := exception.StatusCode(err)
	if status >= http.StatusInternalServerError {
		logs.Errorf("%s %s, err: %+v", c.Method(), c.Path(), err)
		return replyError(c, status, "Internal server error")
	}
	return replyError(c, status, err.Error())
}

func replyError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message})
}

func handleFiberError(c *fiber.Ctx, err error) error {
	status := http.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}
	if status >= http.StatusInternalServerError {
		logs.Errorf("%s %s, err: %+v", c.Method(), c.Path(), err)
	}
	return replyError(c, status, http.StatusText(status))
}
