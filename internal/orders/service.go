package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/clawcart/clawcart/internal/models"
	"github.com/clawcart/clawcart/internal/telemetry"
)

// Service owns every mutation of an order's status. Transition is the single
// entry point permitted to change Order.Status; it validates the move against
// the lifecycle graph, bumps the version under a compare-and-swap, and
// appends exactly one history entry, all in one transaction.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) DB() *gorm.DB { return s.db }

// Get loads an order by its external id, history included.
func (s *Service) Get(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).
		Preload("History", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		Where("order_id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// CreateParams carries everything purchase intake knows about the attempt.
type CreateParams struct {
	UserID      string
	AgentID     string
	Product     models.ProductSnapshot
	Payment     models.PaymentSnapshot
	SearchQuery string
	SessionID   string
	// AutoApproveThreshold is the owning user's limit; amounts strictly
	// below it skip human approval.
	AutoApproveThreshold float64
}

// Create persists a new order in pending_approval or approved depending on
// the approval gate, seeding the history with the initial status.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.Order, error) {
	status := models.OrderStatusPendingApproval
	approval := models.ApprovalRecord{Required: true}
	now := time.Now().UTC()

	if AutoApproved(p.Payment.Amount, p.AutoApproveThreshold) {
		status = models.OrderStatusApproved
		approval = models.ApprovalRecord{
			Required:   false,
			Auto:       true,
			ApprovedAt: &now,
			Actor:      "auto",
		}
	}

	order := models.Order{
		UserID:      p.UserID,
		AgentID:     p.AgentID,
		Status:      status,
		Product:     p.Product,
		Payment:     p.Payment,
		Approval:    approval,
		SearchQuery: p.SearchQuery,
		SessionID:   p.SessionID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&order).Error; err != nil {
			return err
		}
		return tx.Create(&models.OrderStatusChange{
			OrderRef: order.ID,
			Seq:      0,
			Status:   status,
			Note:     "order created",
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	slog.InfoContext(ctx, "order created",
		slog.String("order_id", order.OrderID),
		slog.String("user_id", order.UserID),
		slog.String("status", string(order.Status)),
		slog.Float64("amount", order.Payment.Amount),
	)
	return &order, nil
}

// Mutation applies optional field updates alongside a transition, inside the
// same transaction, so checkout results land atomically with the status.
type Mutation func(*models.Order)

// Transition moves an order to the given status. A concurrent writer that
// advanced the version first wins; the loser gets ErrStaleOrder and must
// re-read. One history row is appended per successful transition, no more,
// no fewer.
func (s *Service) Transition(ctx context.Context, orderID string, to models.OrderStatus, note string, muts ...Mutation) (*models.Order, error) {
	ctx, span := otel.Tracer("orders").Start(ctx, "order_transition",
		trace.WithAttributes(
			attribute.String("order.id", orderID),
			attribute.String("order.to_status", string(to)),
		),
	)
	defer span.End()

	var order models.Order
	var from models.OrderStatus
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", orderID).First(&order).Error; err != nil {
			return err
		}
		from = order.Status

		if !CanTransition(order.Status, to) {
			return illegal(order.Status, to)
		}

		for _, m := range muts {
			m(&order)
		}
		prevVersion := order.Version
		order.Status = to
		order.Version = prevVersion + 1

		res := tx.Model(&models.Order{}).
			Where("id = ? AND version = ?", order.ID, prevVersion).
			Select("*").Omit("id", "created_at").
			Updates(&order)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStaleOrder
		}

		return tx.Create(&models.OrderStatusChange{
			OrderRef: order.ID,
			Seq:      order.Version,
			Status:   to,
			Note:     note,
		}).Error
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrIllegalTransition) || errors.Is(err, ErrStaleOrder) {
			return nil, err
		}
		return nil, fmt.Errorf("transition order %s: %w", orderID, err)
	}

	span.SetAttributes(attribute.String("order.from_status", string(from)))
	telemetry.RecordOrderTransition(ctx, string(from), string(to))
	slog.InfoContext(ctx, "order status changed",
		slog.String("order_id", orderID),
		slog.String("from", string(from)),
		slog.String("status", string(to)),
		slog.String("note", note),
	)
	return &order, nil
}

// Approve advances a pending order on behalf of its owner. Legal only while
// the order sits in pending_approval.
func (s *Service) Approve(ctx context.Context, orderID, userID string) (*models.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrNotOwner
	}
	if order.Status != models.OrderStatusPendingApproval {
		return nil, ErrNotPending
	}

	now := time.Now().UTC()
	return s.Transition(ctx, orderID, models.OrderStatusApproved, "approved by user", func(o *models.Order) {
		o.Approval.ApprovedAt = &now
		o.Approval.Actor = userID
	})
}

// Reject cancels a pending order, recording the human-supplied reason in
// both the approval record and the failure metadata.
func (s *Service) Reject(ctx context.Context, orderID, userID, reason string) (*models.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrNotOwner
	}
	if order.Status != models.OrderStatusPendingApproval {
		return nil, ErrNotPending
	}

	now := time.Now().UTC()
	note := "rejected by user"
	if reason != "" {
		note = "rejected: " + reason
	}
	return s.Transition(ctx, orderID, models.OrderStatusCancelled, note, func(o *models.Order) {
		o.Approval.RejectedAt = &now
		o.Approval.Actor = userID
		o.Approval.Reason = reason
		o.FailureReason = reason
	})
}

// List returns a user's orders, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]models.Order, error) {
	var out []models.Order
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}
