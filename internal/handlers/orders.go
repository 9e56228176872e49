package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.temporal.io/sdk/client"
	"gorm.io/gorm"

	"github.com/clawcart/clawcart/internal/models"
	"github.com/clawcart/clawcart/internal/notifications"
	"github.com/clawcart/clawcart/internal/orders"
	"github.com/clawcart/clawcart/internal/search"
	"github.com/clawcart/clawcart/internal/telemetry"
	"github.com/clawcart/clawcart/internal/workflows"
)

type OrderHandler struct {
	db             *gorm.DB
	orders         *orders.Service
	sessions       *search.SessionStore
	notifications  *notifications.Store
	temporalClient client.Client
	taskQueue      string
}

func NewOrderHandler(
	db *gorm.DB,
	orderSvc *orders.Service,
	sessions *search.SessionStore,
	notificationStore *notifications.Store,
	temporalClient client.Client,
	taskQueue string,
) *OrderHandler {
	return &OrderHandler{
		db:             db,
		orders:         orderSvc,
		sessions:       sessions,
		notifications:  notificationStore,
		temporalClient: temporalClient,
		taskQueue:      taskQueue,
	}
}

// CreateOrderRequest accepts either a direct product snapshot or a search
// session reference (session_id + candidate index). Exactly one of the two
// must be present.
type CreateOrderRequest struct {
	UserID  string `json:"user_id"`
	AgentID string `json:"agent_id,omitempty"`

	Product *ProductRequest `json:"product,omitempty"`

	SessionID      string `json:"session_id,omitempty"`
	CandidateIndex *int   `json:"candidate_index,omitempty"`

	SearchQuery string `json:"search_query,omitempty"`
	DryRun      bool   `json:"dry_run,omitempty"`
}

type ProductRequest struct {
	Title    string  `json:"title"`
	URL      string  `json:"url"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency,omitempty"`
	Retailer string  `json:"retailer,omitempty"`
	ImageURL string  `json:"image_url,omitempty"`
	Category string  `json:"category,omitempty"`
}

func (h *OrderHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	var req CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	if (req.Product == nil) == (req.SessionID == "") {
		return echo.NewHTTPError(http.StatusBadRequest, "provide either product or session_id with candidate_index")
	}

	var user models.User
	if err := h.db.WithContext(ctx).Where("user_id = ?", req.UserID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "unknown user")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load user")
	}

	snapshot, searchQuery, err := h.resolveProduct(c, &req)
	if err != nil {
		return err
	}
	if snapshot.URL == "" || snapshot.Price <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "product url and a positive price are required")
	}

	order, err := h.orders.Create(ctx, orders.CreateParams{
		UserID:  req.UserID,
		AgentID: req.AgentID,
		Product: *snapshot,
		Payment: models.PaymentSnapshot{
			Method:   "virtual_card",
			Amount:   snapshot.Price,
			Currency: snapshot.Currency,
		},
		SearchQuery:          searchQuery,
		SessionID:            req.SessionID,
		AutoApproveThreshold: user.AutoApproveThreshold,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create order")
	}
	telemetry.RecordOrderCreated(ctx, order.Approval.Auto)

	if order.Status == models.OrderStatusPendingApproval {
		h.notifications.Notify(ctx, user.UserID, order.OrderID, notifications.TypeApprovalRequired,
			fmt.Sprintf("Order %s (%.2f %s) needs your approval.", order.OrderID, order.Payment.Amount, order.Payment.Currency))
		return c.JSON(http.StatusCreated, map[string]interface{}{
			"order": order,
		})
	}

	workflowID, err := h.startPurchase(c, order, &user, req.DryRun)
	if err != nil {
		return err
	}
	order.WorkflowID = workflowID

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"order":       order,
		"workflow_id": workflowID,
	})
}

// resolveProduct turns the request into an immutable product snapshot,
// pulling from the search session when one is referenced.
func (h *OrderHandler) resolveProduct(c echo.Context, req *CreateOrderRequest) (*models.ProductSnapshot, string, error) {
	if req.Product != nil {
		currency := req.Product.Currency
		if currency == "" {
			currency = "USD"
		}
		return &models.ProductSnapshot{
			Title:    req.Product.Title,
			Price:    req.Product.Price,
			Currency: currency,
			Retailer: req.Product.Retailer,
			URL:      req.Product.URL,
			ImageURL: req.Product.ImageURL,
			Category: req.Product.Category,
		}, req.SearchQuery, nil
	}

	if req.CandidateIndex == nil {
		return nil, "", echo.NewHTTPError(http.StatusBadRequest, "candidate_index is required with session_id")
	}
	candidate, session, err := h.sessions.Candidate(c.Request().Context(), req.SessionID, *req.CandidateIndex)
	if err != nil {
		if errors.Is(err, search.ErrSessionExpired) {
			return nil, "", echo.NewHTTPError(http.StatusGone, "search session expired")
		}
		return nil, "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if session.UserID != req.UserID {
		return nil, "", echo.NewHTTPError(http.StatusForbidden, "session belongs to another user")
	}

	return &models.ProductSnapshot{
		Title:    candidate.Title,
		Price:    candidate.Price,
		Currency: candidate.Currency,
		Retailer: candidate.Retailer,
		URL:      candidate.URL,
		ImageURL: candidate.ImageURL,
		Category: candidate.Category,
	}, session.Query, nil
}

func (h *OrderHandler) startPurchase(c echo.Context, order *models.Order, user *models.User, dryRun bool) (string, error) {
	ctx := c.Request().Context()

	workflowID := "purchase-" + order.OrderID
	opts := client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: h.taskQueue,
	}

	_, err := h.temporalClient.ExecuteWorkflow(ctx, opts, workflows.PurchaseWorkflow, workflows.PurchaseInput{
		OrderID:       order.OrderID,
		UserID:        order.UserID,
		WalletAddress: user.WalletAddress,
		ProductURL:    order.Product.URL,
		Amount:        order.Payment.Amount,
		Currency:      order.Payment.Currency,
		DryRun:        dryRun,
	})
	if err != nil {
		return "", echo.NewHTTPError(http.StatusInternalServerError, "failed to start purchase: "+err.Error())
	}

	h.db.WithContext(ctx).Model(&models.Order{}).
		Where("order_id = ?", order.OrderID).
		Update("workflow_id", workflowID)

	return workflowID, nil
}

type ApprovalRequest struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason,omitempty"`
}

func (h *OrderHandler) Approve(c echo.Context) error {
	ctx := c.Request().Context()
	orderID := c.Param("id")

	var req ApprovalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	order, err := h.orders.Approve(ctx, orderID, req.UserID)
	if err != nil {
		return approvalError(err)
	}

	var user models.User
	if err := h.db.WithContext(ctx).Where("user_id = ?", order.UserID).First(&user).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load user")
	}

	h.notifications.Notify(ctx, order.UserID, order.OrderID, notifications.TypeOrderApproved, "Order approved; purchase is starting.")

	workflowID, herr := h.startPurchase(c, order, &user, false)
	if herr != nil {
		return herr
	}
	order.WorkflowID = workflowID

	return c.JSON(http.StatusOK, map[string]interface{}{
		"order":       order,
		"workflow_id": workflowID,
	})
}

func (h *OrderHandler) Reject(c echo.Context) error {
	ctx := c.Request().Context()
	orderID := c.Param("id")

	var req ApprovalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	order, err := h.orders.Reject(ctx, orderID, req.UserID, req.Reason)
	if err != nil {
		return approvalError(err)
	}

	h.notifications.Notify(ctx, order.UserID, order.OrderID, notifications.TypeOrderRejected, "Order rejected.")

	return c.JSON(http.StatusOK, map[string]interface{}{
		"order": order,
	})
}

func approvalError(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "order not found")
	case errors.Is(err, orders.ErrNotOwner):
		return echo.NewHTTPError(http.StatusForbidden, "not your order")
	case errors.Is(err, orders.ErrNotPending):
		return echo.NewHTTPError(http.StatusConflict, "order is not awaiting approval")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Cancel stops an order. A purchase already in flight is signalled and
// winds down through the workflow; an order that never started a workflow
// is cancelled directly.
func (h *OrderHandler) Cancel(c echo.Context) error {
	ctx := c.Request().Context()
	orderID := c.Param("id")

	var req CancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	reason := req.Reason
	if reason == "" {
		reason = "cancelled by user"
	}

	order, err := h.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load order")
	}
	if order.Status.IsTerminal() {
		return echo.NewHTTPError(http.StatusConflict, "order is already in a terminal state")
	}

	if order.WorkflowID != "" {
		err := h.temporalClient.SignalWorkflow(ctx, order.WorkflowID, "", workflows.CancelPurchaseSignal, reason)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to signal cancellation: "+err.Error())
		}
		return c.JSON(http.StatusAccepted, map[string]interface{}{
			"order_id": orderID,
			"status":   "cancellation_requested",
		})
	}

	cancelled, err := h.orders.Transition(ctx, orderID, models.OrderStatusCancelled, reason)
	if err != nil {
		if errors.Is(err, orders.ErrIllegalTransition) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.notifications.Notify(ctx, cancelled.UserID, orderID, notifications.TypeOrderCancelled, "Your order was cancelled.")

	return c.JSON(http.StatusOK, map[string]interface{}{
		"order": cancelled,
	})
}

func (h *OrderHandler) Get(c echo.Context) error {
	order, err := h.orders.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to fetch order")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"order": order,
	})
}

func (h *OrderHandler) List(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	list, err := h.orders.List(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to fetch orders")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"orders": list,
	})
}
