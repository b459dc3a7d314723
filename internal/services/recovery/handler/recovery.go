package handler

import (
	"context"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/usman4222/Pharma-Backend-sub000/internal/apperrors"
	"github.com/usman4222/Pharma-Backend-sub000/internal/database/models"
	"github.com/usman4222/Pharma-Backend-sub000/internal/ledger"
)

type RecoveryHandler struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewRecoveryHandler(db *gorm.DB, redisClient *redis.Client) *RecoveryHandler {
	return &RecoveryHandler{
		db:    db,
		redis: redisClient,
	}
}

func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

type ApplyRecoveryRequest struct {
	OrderIDs     []int64
	Amount       string
	RecoveryDate time.Time
	RecordedBy   int64
}

type RecoveryApplication struct {
	OrderID      int64  `json:"order_id"`
	Applied      string `json:"applied"`
	RemainingDue string `json:"remaining_due"`
	Status       string `json:"status"`
}

type ApplyRecoveryResponse struct {
	Applications []RecoveryApplication `json:"applications"`
	TotalApplied string                `json:"total_applied"`
}

// ApplyRecovery settles one payment against a set of invoices belonging to
// the same counterparty, oldest first. The amount must not exceed the total
// outstanding across the set; partial allocation leaves the youngest
// invoices open.
func (s *RecoveryHandler) ApplyRecovery(ctx context.Context, req *ApplyRecoveryRequest) (*ApplyRecoveryResponse, error) {
	if len(req.OrderIDs) == 0 {
		return nil, apperrors.Validation("at least one order required")
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		return nil, apperrors.Validation("amount must be a positive number")
	}
	if req.RecoveryDate.IsZero() {
		req.RecoveryDate = time.Now()
	}

	var resp ApplyRecoveryResponse

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var orders []models.Order
		if err := lockForUpdate(tx).
			Where("id IN ?", req.OrderIDs).
			Find(&orders).Error; err != nil {
			return apperrors.Internal(err)
		}
		if len(orders) != len(req.OrderIDs) {
			return apperrors.NotFound("one or more orders not found")
		}

		counterpartyID := orders[0].CounterpartyID
		totalDue := decimal.Zero
		for _, order := range orders {
			if order.CounterpartyID != counterpartyID {
				return apperrors.Invariant("orders belong to different counterparties")
			}
			if order.Type != models.OrderTypeSale && order.Type != models.OrderTypePurchase {
				return apperrors.Invariant("order %d is a %s order", order.ID, order.Type)
			}
			due, _ := decimal.NewFromString(order.DueAmount)
			if !due.IsPositive() {
				return apperrors.Validation("order %d has nothing due", order.ID)
			}
			totalDue = totalDue.Add(due)
		}
		if amount.GreaterThan(totalDue) {
			return apperrors.Validation("amount %s exceeds total due %s",
				amount.StringFixed(2), totalDue.StringFixed(2))
		}

		orderType := orders[0].Type
		for _, order := range orders {
			if order.Type != orderType {
				return apperrors.Invariant("orders mix sale and purchase invoices")
			}
		}

		sort.Slice(orders, func(i, j int) bool {
			return orders[i].CreatedAt.Before(orders[j].CreatedAt)
		})

		now := time.Now()
		remaining := amount

		for i := range orders {
			if !remaining.IsPositive() {
				break
			}
			order := &orders[i]
			due, _ := decimal.NewFromString(order.DueAmount)

			applied := due
			if remaining.LessThan(due) {
				applied = remaining
			}
			newDue := due.Sub(applied)
			paid, _ := decimal.NewFromString(order.PaidAmount)
			newPaid := paid.Add(applied)

			status := order.Status
			if newDue.IsZero() {
				status = models.OrderStatusRecovered
			}

			if err := tx.Model(order).Updates(map[string]interface{}{
				"due_amount":  newDue.StringFixed(2),
				"paid_amount": newPaid.StringFixed(2),
				"status":      status,
				"updated_at":  now,
			}).Error; err != nil {
				return apperrors.Internal(err)
			}

			recovery := models.Recovery{
				OrderID:        order.ID,
				CounterpartyID: counterpartyID,
				Amount:         applied.StringFixed(2),
				RecoveryDate:   req.RecoveryDate,
				RecordedBy:     req.RecordedBy,
				CreatedAt:      now,
			}
			if err := tx.Create(&recovery).Error; err != nil {
				return apperrors.Internal(err)
			}

			resp.Applications = append(resp.Applications, RecoveryApplication{
				OrderID:      order.ID,
				Applied:      applied.StringFixed(2),
				RemainingDue: newDue.StringFixed(2),
				Status:       status,
			})
			remaining = remaining.Sub(applied)
		}

		var counterparty models.Counterparty
		if err := lockForUpdate(tx).First(&counterparty, counterpartyID).Error; err != nil {
			return apperrors.Internal(err)
		}
		pay, _ := decimal.NewFromString(counterparty.Pay)
		receive, _ := decimal.NewFromString(counterparty.Receive)
		newPay, newReceive := ledger.SettlePayment(pay, receive, amount, orderType)
		if err := tx.Model(&counterparty).Updates(map[string]interface{}{
			"pay":        newPay.StringFixed(2),
			"receive":    newReceive.StringFixed(2),
			"updated_at": now,
		}).Error; err != nil {
			return apperrors.Internal(err)
		}

		resp.TotalApplied = amount.StringFixed(2)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

type ListRecoveriesRequest struct {
	CounterpartyID *int64
	OrderID        *int64
	Page           int
	PageSize       int
}

type ListRecoveriesResponse struct {
	Recoveries []models.Recovery `json:"recoveries"`
	TotalCount int64             `json:"total_count"`
}

func (s *RecoveryHandler) ListRecoveries(ctx context.Context, req *ListRecoveriesRequest) (*ListRecoveriesResponse, error) {
	query := s.db.WithContext(ctx).Model(&models.Recovery{})
	if req.CounterpartyID != nil {
		query = query.Where("counterparty_id = ?", *req.CounterpartyID)
	}
	if req.OrderID != nil {
		query = query.Where("order_id = ?", *req.OrderID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, apperrors.Internal(err)
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	pageNumber := req.Page
	if pageNumber <= 0 {
		pageNumber = 1
	}

	var recoveries []models.Recovery
	if err := query.Offset((pageNumber - 1) * pageSize).Limit(pageSize).
		Order("recovery_date desc, id desc").
		Find(&recoveries).Error; err != nil {
		return nil, apperrors.Internal(err)
	}
	return &ListRecoveriesResponse{Recoveries: recoveries, TotalCount: total}, nil
}
