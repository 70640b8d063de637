package marketplace

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sudo-init-do/gigmarket/internal/idempotency"
	mware "github.com/sudo-init-do/gigmarket/internal/middleware"
)

// PurchaseKeys de-duplicates purchase requests carrying an Idempotency-Key.
type PurchaseKeys interface {
	Reserve(ctx context.Context, key string) (idempotency.Reservation, error)
	Complete(ctx context.Context, key string, orderID int64) error
	Release(ctx context.Context, key string) error
}

const HeaderIdempotencyKey = "Idempotency-Key"

type Handler struct {
	svc  *Service
	keys PurchaseKeys
	log  *zap.Logger
}

// NewHandler builds the HTTP layer. keys may be nil.
func NewHandler(svc *Service, keys PurchaseKeys, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, keys: keys, log: log}
}

// Register mounts every marketplace route on e. auth must verify the token
// and set the actor on the context.
func (h *Handler) Register(e *echo.Echo, auth echo.MiddlewareFunc) {
	e.GET("/gigs/all", h.GetAllGigs)
	e.GET("/gig/:id", h.GetGig)
	e.GET("/freelancer/:id/reviews", h.GetFreelancerReviews)

	client := mware.RequireRoles(mware.RoleClient)
	freelancer := mware.RequireRoles(mware.RoleFreelancer)

	api := e.Group("", auth)

	api.POST("/gig/addgig", h.AddGig, freelancer)
	api.POST("/gig/edit/:id", h.EditGig, freelancer)
	api.DELETE("/gig/delete/:id", h.DeleteGig, freelancer)
	api.GET("/gig/freelancerposts/all", h.GetFreelancerGigs, freelancer)
	api.GET("/gig/freelancerposts/count/all", h.CountFreelancerGigs, freelancer)

	api.POST("/gig/:id/buy", h.BuyGig, client)
	api.GET("/gig/client/orders/pending", h.clientOrders(StatusPending), client)
	api.GET("/gig/client/orders/completed", h.clientOrders(StatusCompleted), client)
	api.GET("/gig/client/orders/history", h.GetClientHistory, client)
	api.GET("/client/order/:orderId", h.GetClientOrder, client)
	api.POST("/client/order/:orderId/cancel", h.CancelOrder, client)
	api.POST("/client/order/:orderId/confirm", h.ConfirmOrder, client)

	api.GET("/gig/freelancer/orders/pending", h.freelancerOrders(StatusPending), freelancer)
	api.GET("/gig/freelancer/orders/completed", h.freelancerOrders(StatusCompleted), freelancer)
	api.GET("/gig/freelancer/orders/history", h.GetFreelancerHistory, freelancer)
	api.GET("/freelancer/order/:orderId", h.GetFreelancerOrder, freelancer)
	api.POST("/freelancer/order/:orderId/submit", h.SubmitOrder, freelancer)
}

func fail(c echo.Context, err error) error {
	return c.JSON(StatusCode(err), echo.Map{"success": false, "message": UserMessage(err)})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "message": msg})
}

func ok(c echo.Context, status int, body echo.Map) error {
	body["success"] = true
	return c.JSON(status, body)
}

func pathID(c echo.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "message": "Please log in to continue"})
}

// listOrEmpty answers 404 for an empty list, otherwise 200 with the list under key.
func listOrEmpty[T any](c echo.Context, key string, items []T, empty string) error {
	if len(items) == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"success": false, "message": empty})
	}
	return ok(c, http.StatusOK, echo.Map{key: items})
}

// =========================
// Gigs
// =========================

type gigRequest struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Type        *GigType         `json:"gig_type"`
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func (h *Handler) AddGig(c echo.Context) error {
	freelancerID, authed := mware.ActorID(c)
	if !authed {
		return unauthorized(c)
	}
	var req gigRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	gig, err := h.svc.CreateGig(c.Request().Context(), freelancerID, GigInput{
		Title:       deref(req.Title),
		Description: deref(req.Description),
		Price:       req.Price,
		Type:        deref(req.Type),
	})
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusCreated, echo.Map{"message": "New gig posted successfully", "gig": gig})
}

func (h *Handler) EditGig(c echo.Context) error {
	freelancerID, authed := mware.ActorID(c)
	if !authed {
		return unauthorized(c)
	}
	gigID, valid := pathID(c, "id")
	if !valid {
		return badRequest(c, "Invalid gig id")
	}
	var req gigRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	gig, err := h.svc.EditGig(c.Request().Context(), freelancerID, gigID, GigPatch{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		Type:        req.Type,
	})
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"message": "Gig updated successfully", "gig": gig})
}

func (h *Handler) DeleteGig(c echo.Context) error {
	freelancerID, authed := mware.ActorID(c)
	if !authed {
		return unauthorized(c)
	}
	gigID, valid := pathID(c, "id")
	if !valid {
		return badRequest(c, "Invalid gig id")
	}
	if err := h.svc.DeleteGig(c.Request().Context(), freelancerID, gigID); err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"message": "Gig deleted successfully"})
}

func (h *Handler) GetAllGigs(c echo.Context) error {
	gigs, err := h.svc.Gigs(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"gigs": gigs})
}

func (h *Handler) GetGig(c echo.Context) error {
	gigID, valid := pathID(c, "id")
	if !valid {
		return badRequest(c, "Invalid gig id")
	}
	gig, err := h.svc.Gig(c.Request().Context(), gigID)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"gig": gig})
}

func (h *Handler) GetFreelancerGigs(c echo.Context) error {
	freelancerID, authed := mware.ActorID(c)
	if !authed {
		return unauthorized(c)
	}
	gigs, err := h.svc.FreelancerGigs(c.Request().Context(), freelancerID)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"gigs": gigs})
}

func (h *Handler) CountFreelancerGigs(c echo.Context) error {
	freelancerID, authed := mware.ActorID(c)
	if !authed {
		return unauthorized(c)
	}
	n, err := h.svc.CountFreelancerGigs(c.Request().Context(), freelancerID)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"count": n})
}

func (h *Handler) GetFreelancerReviews(c echo.Context) error {
	freelancerID, valid := pathID(c, "id")
	if !valid {
		return badRequest(c, "Invalid freelancer id")
	}
	reviews, err := h.svc.FreelancerReviews(c.Request().Context(), freelancerID)
	if err != nil {
		return fail(c, err)
	}
	return listOrEmpty(c, "reviews", reviews, "No reviews found")
}

// =========================
// Orders (client)
// =========================

type buyRequest struct {
	Amount      *decimal.Decimal `json:"amount"`
	Description string           `json:"description"`
}

// BuyGig places an order. With an Idempotency-Key header a retried request
// for the same gig returns the order created by the first one.
func (h *Handler) BuyGig(c echo.Context) error {
	clientID, authed := mware.ActorID(c)
	if !authed {
		return unauthorized(c)
	}
	gigID, valid := pathID(c, "id")
	if !valid {
		return badRequest(c, "Invalid gig id")
	}
	var req buyRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	ctx := c.Request().Context()
	key := c.Request().Header.Get(HeaderIdempotencyKey)
	if key != "" && h.keys != nil {
		key = fmt.Sprintf("%d:%d:%s", clientID, gigID, key)
		res, err := h.keys.Reserve(ctx, key)
		if err != nil {
			h.log.Error("idempotency reserve failed", zap.String("key", key), zap.Error(err))
			return fail(c, err)
		}
		switch res.State {
		case idempotency.InFlight:
			return c.JSON(http.StatusConflict, echo.Map{"success": false, "message": "This purchase is already being processed"})
		case idempotency.Done:
			return ok(c, http.StatusOK, echo.Map{"message": "Gig purchased successfully", "orderId": res.OrderID})
		}
	} else {
		key = ""
	}

	orderID, err := h.svc.Purchase(ctx, clientID, PurchaseRequest{
		GigID:       gigID,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		if key != "" {
			if rerr := h.keys.Release(ctx, key); rerr != nil {
				h.log.Warn("idempotency release failed", zap.String("key", key), zap.Error(rerr))
			}
		}
		return fail(c, err)
	}
	if key != "" {
		if cerr := h.keys.Complete(ctx, key, orderID); cerr != nil {
			h.log.Warn("idempotency complete failed", zap.String("key", key), zap.Error(cerr))
		}
	}
	return ok(c, http.StatusCreated, echo.Map{"message": "Gig purchased successfully", "orderId": orderID})
}

func (h *Handler) clientOrders(status OrderStatus) echo.HandlerFunc {
	empty := "No pending order found"
	if status == StatusCompleted {
		empty = "No completed order found"
	}
	return func(c echo.Context) error {
		clientID, authed := mware.ActorID(c)
		if !authed {
			return unauthorized(c)
		}
		orders, err := h.svc.ClientOrders(c.Request().Context(), clientID, status)
		if err != nil {
			return fail(c, err)
		}
		return listOrEmpty(c, "orders", orders, empty)
	}
}

func (h *Handler) GetClientHistory(c echo.Context) error {
	clientID, authed := mware.ActorID(c)
	if !authed {
		return unauthorized(c)
	}
	history, err := h.svc.ClientHistory(c.Request().Context(), clientID)
	if err != nil {
		return fail(c, err)
	}
	return listOrEmpty(c, "orders", history, "No order history found")
}

func (h *Handler) GetClientOrder(c echo.Context) error {
	clientID, authed := mware.ActorID(c)
	if !authed {
		return unauthorized(c)
	}
	orderID, valid := pathID(c, "orderId")
	if !valid {
		return badRequest(c, "Invalid order id")
	}
	order, err := h.svc.ClientOrder(c.Request().Context(), clientID, orderID)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"order": order})
}

func (h *Handler) CancelOrder(c echo.Context) error {
	clientID, authed := mware.ActorID(c)
	if !authed {
		return unauthorized(c)
	}
	orderID, valid := pathID(c, "orderId")
	if !valid {
		return badRequest(c, "Invalid order id")
	}
	if err := h.svc.Cancel(c.Request().Context(), clientID, orderID); err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"message": "Order cancelled and payment has been returned"})
}

type confirmRequest struct {
	Action     ConfirmAction `json:"action"`
	ReviewText string        `json:"reviewText"`
}

func (h *Handler) ConfirmOrder(c echo.Context) error {
	clientID, authed := mware.ActorID(c)
	if !authed {
		return unauthorized(c)
	}
	orderID, valid := pathID(c, "orderId")
	if !valid {
		return badRequest(c, "Invalid order id")
	}
	var req confirmRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := h.svc.ConfirmCompletion(c.Request().Context(), clientID, orderID, req.Action, req.ReviewText); err != nil {
		return fail(c, err)
	}
	msg := "Order marked as done"
	if req.Action == ActionGiveReview {
		msg = "Order marked as done and review submitted"
	}
	return ok(c, http.StatusOK, echo.Map{"message": msg})
}

// =========================
// Orders (freelancer)
// =========================

func (h *Handler) freelancerOrders(status OrderStatus) echo.HandlerFunc {
	empty := "No pending order found"
	if status == StatusCompleted {
		empty = "No completed order found"
	}
	return func(c echo.Context) error {
		freelancerID, authed := mware.ActorID(c)
		if !authed {
			return unauthorized(c)
		}
		orders, err := h.svc.FreelancerOrders(c.Request().Context(), freelancerID, status)
		if err != nil {
			return fail(c, err)
		}
		return listOrEmpty(c, "orders", orders, empty)
	}
}

func (h *Handler) GetFreelancerHistory(c echo.Context) error {
	freelancerID, authed := mware.ActorID(c)
	if !authed {
		return unauthorized(c)
	}
	history, err := h.svc.FreelancerHistory(c.Request().Context(), freelancerID)
	if err != nil {
		return fail(c, err)
	}
	return listOrEmpty(c, "orders", history, "No order history found")
}

func (h *Handler) GetFreelancerOrder(c echo.Context) error {
	freelancerID, authed := mware.ActorID(c)
	if !authed {
		return unauthorized(c)
	}
	orderID, valid := pathID(c, "orderId")
	if !valid {
		return badRequest(c, "Invalid order id")
	}
	order, err := h.svc.FreelancerOrder(c.Request().Context(), freelancerID, orderID)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"order": order})
}

func (h *Handler) SubmitOrder(c echo.Context) error {
	freelancerID, authed := mware.ActorID(c)
	if !authed {
		return unauthorized(c)
	}
	orderID, valid := pathID(c, "orderId")
	if !valid {
		return badRequest(c, "Invalid order id")
	}
	if err := h.svc.Submit(c.Request().Context(), freelancerID, orderID); err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"message": "Order submitted successfully"})
}
