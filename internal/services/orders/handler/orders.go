package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/usman4222/Pharma-Backend-sub000/internal/apperrors"
	"github.com/usman4222/Pharma-Backend-sub000/internal/database/models"
	"github.com/usman4222/Pharma-Backend-sub000/internal/ledger"
	invhandler "github.com/usman4222/Pharma-Backend-sub000/internal/services/inventory/handler"
	profithandler "github.com/usman4222/Pharma-Backend-sub000/internal/services/profit/handler"
)

const (
	ORDER_EVENT_CHANNEL_PREFIX = "orders:events:"

	EventSaleCreated     = "sale.created"
	EventPurchaseCreated = "purchase.created"
	EventOrderReturned   = "order.returned"
	EventOrderDeleted    = "order.deleted"
	EventPaymentApplied  = "payment.applied"
)

type OrderEvent struct {
	Type           string    `json:"type"`
	OrderID        int64     `json:"order_id"`
	InvoiceNumber  string    `json:"invoice_number"`
	CounterpartyID int64     `json:"counterparty_id"`
	Total          string    `json:"total"`
	OccurredAt     time.Time `json:"occurred_at"`
}

type OrdersHandler struct {
	db        *gorm.DB
	redis     *redis.Client
	inventory *invhandler.InventoryHandler
	profit    *profithandler.ProfitHandler
}

func NewOrdersHandler(db *gorm.DB, redisClient *redis.Client, inventory *invhandler.InventoryHandler, profit *profithandler.ProfitHandler) *OrdersHandler {
	return &OrdersHandler{
		db:        db,
		redis:     redisClient,
		inventory: inventory,
		profit:    profit,
	}
}

func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// publishOrderEvent fires after a successful commit. Delivery is best
// effort; subscribers missing an event must reconcile from the database.
func (s *OrdersHandler) publishOrderEvent(ctx context.Context, eventType string, order *models.Order) {
	if s.redis == nil {
		return
	}
	event := OrderEvent{
		Type:           eventType,
		OrderID:        order.ID,
		InvoiceNumber:  order.InvoiceNumber,
		CounterpartyID: order.CounterpartyID,
		Total:          order.Total,
		OccurredAt:     time.Now(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	_ = s.redis.Publish(ctx, ORDER_EVENT_CHANNEL_PREFIX+eventType, payload)
}

func (s *OrdersHandler) lockCounterparty(tx *gorm.DB, id int64) (*models.Counterparty, error) {
	var counterparty models.Counterparty
	if err := lockForUpdate(tx).First(&counterparty, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("counterparty %d not found", id)
		}
		return nil, apperrors.Internal(err)
	}
	return &counterparty, nil
}

func (s *OrdersHandler) saveCounterpartyBalance(tx *gorm.DB, counterparty *models.Counterparty, pay, receive decimal.Decimal) error {
	if err := tx.Model(counterparty).Updates(map[string]interface{}{
		"pay":        pay.StringFixed(2),
		"receive":    receive.StringFixed(2),
		"updated_at": time.Now(),
	}).Error; err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

func (s *OrdersHandler) checkDuplicateInvoice(tx *gorm.DB, invoiceNumber string) error {
	var existing models.Order
	err := tx.Where("invoice_number = ?", invoiceNumber).First(&existing).Error
	if err == nil {
		return apperrors.Conflict("invoice %s already exists", invoiceNumber)
	}
	if err != gorm.ErrRecordNotFound {
		return apperrors.Internal(err)
	}
	return nil
}

func (s *OrdersHandler) checkBooker(tx *gorm.DB, bookerID *int64) error {
	if bookerID == nil {
		return nil
	}
	var booker models.Booker
	if err := tx.First(&booker, *bookerID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return apperrors.NotFound("booker %d not found", *bookerID)
		}
		return apperrors.Internal(err)
	}
	return nil
}

func parseAmount(value, field string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, apperrors.Validation("invalid amount %q for %s", value, field)
	}
	if amount.IsNegative() {
		return decimal.Zero, apperrors.Validation("%s cannot be negative", field)
	}
	return amount, nil
}

// -- Sales --

type SaleItemRequest struct {
	ProductID   int64
	BatchNumber string
	Units       int32
	UnitPrice   string
	Discount    string
}

type CreateSaleRequest struct {
	InvoiceNumber  string
	CounterpartyID int64
	BookerID       *int64
	Items          []SaleItemRequest
	PaidAmount     string
	DueDate        *time.Time
	CreatedBy      int64
}

type CreateSaleResponse struct {
	Order         *models.Order `json:"order"`
	TotalProfit   string        `json:"total_profit"`
	Distributable string        `json:"distributable"`
}

// CreateSale runs the whole sale as one unit: exact-batch stock deduction,
// per-line profit, counterparty balance netting and profit distribution all
// commit together or not at all.
func (s *OrdersHandler) CreateSale(ctx context.Context, req *CreateSaleRequest) (*CreateSaleResponse, error) {
	if req.InvoiceNumber == "" {
		return nil, apperrors.Validation("invoice number required")
	}
	if len(req.Items) == 0 {
		return nil, apperrors.Validation("at least one item required")
	}
	for i, item := range req.Items {
		if item.BatchNumber == "" {
			return nil, apperrors.Validation("item %d: batch number required", i)
		}
		if item.Units <= 0 {
			return nil, apperrors.Validation("item %d: units must be greater than 0", i)
		}
	}

	paid, err := parseAmount(req.PaidAmount, "paid_amount")
	if err != nil {
		return nil, err
	}

	var order models.Order
	var result *profithandler.DistributionResult

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkDuplicateInvoice(tx, req.InvoiceNumber); err != nil {
			return err
		}
		counterparty, err := s.lockCounterparty(tx, req.CounterpartyID)
		if err != nil {
			return err
		}
		if err := s.checkBooker(tx, req.BookerID); err != nil {
			return err
		}

		now := time.Now()
		subtotal := decimal.Zero
		totalProfit := decimal.Zero
		items := make([]models.OrderItem, 0, len(req.Items))

		for i, line := range req.Items {
			unitPrice, err := parseAmount(line.UnitPrice, "unit_price")
			if err != nil {
				return err
			}
			discount, err := parseAmount(line.Discount, "discount")
			if err != nil {
				return err
			}

			batch, err := s.inventory.DeductExact(tx, line.ProductID, line.BatchNumber,
				line.Units, models.RefSale, &req.InvoiceNumber, req.CreatedBy)
			if err != nil {
				return err
			}

			units := decimal.NewFromInt32(line.Units)
			lineTotal := unitPrice.Mul(units).Sub(discount)
			if lineTotal.IsNegative() {
				return apperrors.Validation("item %d: discount exceeds line amount", i)
			}

			unitCost, _ := decimal.NewFromString(batch.UnitCost)
			profit := lineTotal.Sub(unitCost.Mul(units))

			expiry := batch.ExpiryDate
			items = append(items, models.OrderItem{
				ProductID:   &line.ProductID,
				BatchNumber: line.BatchNumber,
				ExpiryDate:  &expiry,
				Units:       line.Units,
				UnitPrice:   unitPrice.StringFixed(2),
				Discount:    discount.StringFixed(2),
				LineTotal:   lineTotal.StringFixed(2),
				Profit:      profit.StringFixed(2),
				CreatedAt:   now,
			})

			subtotal = subtotal.Add(lineTotal)
			totalProfit = totalProfit.Add(profit)
		}

		total := subtotal
		if paid.GreaterThan(total) {
			return apperrors.Validation("paid amount exceeds total")
		}
		due := total.Sub(paid)

		status := models.OrderStatusPending
		if due.IsZero() {
			status = models.OrderStatusCompleted
		}

		order = models.Order{
			InvoiceNumber:  req.InvoiceNumber,
			Type:           models.OrderTypeSale,
			CounterpartyID: req.CounterpartyID,
			BookerID:       req.BookerID,
			Subtotal:       subtotal.StringFixed(2),
			Total:          total.StringFixed(2),
			PaidAmount:     paid.StringFixed(2),
			DueAmount:      due.StringFixed(2),
			NetValue:       total.StringFixed(2),
			TotalProfit:    totalProfit.StringFixed(2),
			Status:         status,
			DueDate:        req.DueDate,
			OrderItems:     items,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Create(&order).Error; err != nil {
			return apperrors.Internal(err)
		}

		pay, _ := decimal.NewFromString(counterparty.Pay)
		receive, _ := decimal.NewFromString(counterparty.Receive)
		newPay, newReceive := ledger.NetBalance(pay, receive, decimal.Zero, due)
		if err := s.saveCounterpartyBalance(tx, counterparty, newPay, newReceive); err != nil {
			return err
		}

		result, err = s.profit.DistributeWithinTx(tx, order.ID, total, totalProfit, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	productIDs := make([]int64, 0, len(req.Items))
	for _, item := range req.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	s.inventory.InvalidateInventoryCaches(ctx, productIDs...)
	s.publishOrderEvent(ctx, EventSaleCreated, &order)

	return &CreateSaleResponse{
		Order:         &order,
		TotalProfit:   order.TotalProfit,
		Distributable: result.Distributable.StringFixed(2),
	}, nil
}

// -- Purchases --

type PurchaseItemRequest struct {
	ProductID   int64
	BatchNumber string
	Units       int32
	UnitCost    string
	RetailPrice string
	ExpiryDate  time.Time
	Discount    string
}

type CreatePurchaseRequest struct {
	InvoiceNumber  string
	CounterpartyID int64
	Items          []PurchaseItemRequest
	PaidAmount     string
	DueDate        *time.Time
	CreatedBy      int64
}

type CreatePurchaseResponse struct {
	Order *models.Order `json:"order"`
}

// CreatePurchase receives stock against a supplier invoice. Each line
// creates or credits its named batch; the unpaid portion raises the
// supplier's pay side.
func (s *OrdersHandler) CreatePurchase(ctx context.Context, req *CreatePurchaseRequest) (*CreatePurchaseResponse, error) {
	if req.InvoiceNumber == "" {
		return nil, apperrors.Validation("invoice number required")
	}
	if len(req.Items) == 0 {
		return nil, apperrors.Validation("at least one item required")
	}
	for i, item := range req.Items {
		if item.BatchNumber == "" {
			return nil, apperrors.Validation("item %d: batch number required", i)
		}
		if item.Units <= 0 {
			return nil, apperrors.Validation("item %d: units must be greater than 0", i)
		}
		if item.ExpiryDate.IsZero() {
			return nil, apperrors.Validation("item %d: expiry date required", i)
		}
	}

	paid, err := parseAmount(req.PaidAmount, "paid_amount")
	if err != nil {
		return nil, err
	}

	var order models.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkDuplicateInvoice(tx, req.InvoiceNumber); err != nil {
			return err
		}
		counterparty, err := s.lockCounterparty(tx, req.CounterpartyID)
		if err != nil {
			return err
		}

		now := time.Now()
		subtotal := decimal.Zero
		items := make([]models.OrderItem, 0, len(req.Items))

		for i, line := range req.Items {
			unitCost, err := parseAmount(line.UnitCost, "unit_cost")
			if err != nil {
				return err
			}
			discount, err := parseAmount(line.Discount, "discount")
			if err != nil {
				return err
			}
			retailPrice, err := parseAmount(line.RetailPrice, "retail_price")
			if err != nil {
				return err
			}

			if err := s.inventory.AddPurchaseStock(tx, line.ProductID, line.BatchNumber,
				line.Units, unitCost.StringFixed(2), retailPrice.StringFixed(2),
				line.ExpiryDate, &req.InvoiceNumber, req.CreatedBy); err != nil {
				return err
			}

			units := decimal.NewFromInt32(line.Units)
			lineTotal := unitCost.Mul(units).Sub(discount)
			if lineTotal.IsNegative() {
				return apperrors.Validation("item %d: discount exceeds line amount", i)
			}

			expiry := line.ExpiryDate
			items = append(items, models.OrderItem{
				ProductID:   &line.ProductID,
				BatchNumber: line.BatchNumber,
				ExpiryDate:  &expiry,
				Units:       line.Units,
				UnitPrice:   unitCost.StringFixed(2),
				Discount:    discount.StringFixed(2),
				LineTotal:   lineTotal.StringFixed(2),
				CreatedAt:   now,
			})
			subtotal = subtotal.Add(lineTotal)
		}

		total := subtotal
		if paid.GreaterThan(total) {
			return apperrors.Validation("paid amount exceeds total")
		}
		due := total.Sub(paid)

		status := models.OrderStatusPending
		if due.IsZero() {
			status = models.OrderStatusCompleted
		}

		order = models.Order{
			InvoiceNumber:  req.InvoiceNumber,
			Type:           models.OrderTypePurchase,
			CounterpartyID: req.CounterpartyID,
			Subtotal:       subtotal.StringFixed(2),
			Total:          total.StringFixed(2),
			PaidAmount:     paid.StringFixed(2),
			DueAmount:      due.StringFixed(2),
			NetValue:       total.StringFixed(2),
			TotalProfit:    "0.00",
			Status:         status,
			DueDate:        req.DueDate,
			OrderItems:     items,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Create(&order).Error; err != nil {
			return apperrors.Internal(err)
		}

		pay, _ := decimal.NewFromString(counterparty.Pay)
		receive, _ := decimal.NewFromString(counterparty.Receive)
		newPay, newReceive := ledger.NetBalance(pay, receive, due, decimal.Zero)
		return s.saveCounterpartyBalance(tx, counterparty, newPay, newReceive)
	})
	if err != nil {
		return nil, err
	}

	productIDs := make([]int64, 0, len(req.Items))
	for _, item := range req.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	s.inventory.InvalidateInventoryCaches(ctx, productIDs...)
	s.publishOrderEvent(ctx, EventPurchaseCreated, &order)

	return &CreatePurchaseResponse{Order: &order}, nil
}

// -- Estimates --

type EstimateItemRequest struct {
	ProductID    *int64
	EstimateName *string
	BatchNumber  string
	Units        int32
	UnitPrice    string
	Discount     string
}

type CreateEstimateRequest struct {
	InvoiceNumber  string
	CounterpartyID int64
	BookerID       *int64
	Items          []EstimateItemRequest
	CreatedBy      int64
}

// CreateEstimate records a quotation. It touches no stock, no balances and
// no profit; lines without a product master carry a free-text name.
func (s *OrdersHandler) CreateEstimate(ctx context.Context, req *CreateEstimateRequest) (*models.Order, error) {
	if req.InvoiceNumber == "" {
		return nil, apperrors.Validation("invoice number required")
	}
	if len(req.Items) == 0 {
		return nil, apperrors.Validation("at least one item required")
	}
	for i, item := range req.Items {
		if item.Units <= 0 {
			return nil, apperrors.Validation("item %d: units must be greater than 0", i)
		}
		if item.ProductID == nil && (item.EstimateName == nil || *item.EstimateName == "") {
			return nil, apperrors.Validation("item %d: product or estimate name required", i)
		}
	}

	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkDuplicateInvoice(tx, req.InvoiceNumber); err != nil {
			return err
		}
		if _, err := s.lockCounterparty(tx, req.CounterpartyID); err != nil {
			return err
		}
		if err := s.checkBooker(tx, req.BookerID); err != nil {
			return err
		}

		now := time.Now()
		subtotal := decimal.Zero
		items := make([]models.OrderItem, 0, len(req.Items))

		for i, line := range req.Items {
			unitPrice, err := parseAmount(line.UnitPrice, "unit_price")
			if err != nil {
				return err
			}
			discount, err := parseAmount(line.Discount, "discount")
			if err != nil {
				return err
			}

			units := decimal.NewFromInt32(line.Units)
			lineTotal := unitPrice.Mul(units).Sub(discount)
			if lineTotal.IsNegative() {
				return apperrors.Validation("item %d: discount exceeds line amount", i)
			}

			items = append(items, models.OrderItem{
				ProductID:    line.ProductID,
				EstimateName: line.EstimateName,
				BatchNumber:  line.BatchNumber,
				Units:        line.Units,
				UnitPrice:    unitPrice.StringFixed(2),
				Discount:     discount.StringFixed(2),
				LineTotal:    lineTotal.StringFixed(2),
				CreatedAt:    now,
			})
			subtotal = subtotal.Add(lineTotal)
		}

		order = models.Order{
			InvoiceNumber:  req.InvoiceNumber,
			Type:           models.OrderTypeEstimated,
			CounterpartyID: req.CounterpartyID,
			BookerID:       req.BookerID,
			Subtotal:       subtotal.StringFixed(2),
			Total:          subtotal.StringFixed(2),
			PaidAmount:     "0.00",
			DueAmount:      "0.00",
			NetValue:       subtotal.StringFixed(2),
			TotalProfit:    "0.00",
			Status:         models.OrderStatusPending,
			OrderItems:     items,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Create(&order).Error; err != nil {
			return apperrors.Internal(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// -- Returns --

type ReturnLineRequest struct {
	OrderItemID int64
	Units       int32
}

type ReturnByInvoiceRequest struct {
	InvoiceNumber string
	Lines         []ReturnLineRequest
	CreatedBy     int64
}

type ReturnByInvoiceResponse struct {
	ReturnOrder *models.Order `json:"return_order"`
	RefundTotal string        `json:"refund_total"`
}

// ReturnByInvoice reverses part or all of a sale or purchase. The refund per
// line is proportional to the units coming back; the counterparty balance is
// adjusted the opposite way the original moved it.
func (s *OrdersHandler) ReturnByInvoice(ctx context.Context, req *ReturnByInvoiceRequest) (*ReturnByInvoiceResponse, error) {
	if req.InvoiceNumber == "" {
		return nil, apperrors.Validation("invoice number required")
	}
	if len(req.Lines) == 0 {
		return nil, apperrors.Validation("at least one return line required")
	}
	for i, line := range req.Lines {
		if line.Units <= 0 {
			return nil, apperrors.Validation("line %d: units must be greater than 0", i)
		}
	}

	var returnOrder models.Order
	var refundTotal decimal.Decimal
	var productIDs []int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var original models.Order
		if err := lockForUpdate(tx).Preload("OrderItems").
			Where("invoice_number = ?", req.InvoiceNumber).
			First(&original).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperrors.NotFound("invoice %s not found", req.InvoiceNumber)
			}
			return apperrors.Internal(err)
		}

		if original.Type != models.OrderTypeSale && original.Type != models.OrderTypePurchase {
			return apperrors.Conflict("order type %s cannot be returned", original.Type)
		}
		if original.Status == models.OrderStatusCancelled || original.Status == models.OrderStatusReturned {
			return apperrors.Conflict("order %s is already %s", original.InvoiceNumber, original.Status)
		}

		itemsByID := make(map[int64]*models.OrderItem, len(original.OrderItems))
		for i := range original.OrderItems {
			itemsByID[original.OrderItems[i].ID] = &original.OrderItems[i]
		}

		returnType := models.OrderTypeSaleReturn
		refType := models.RefSaleReturn
		if original.Type == models.OrderTypePurchase {
			returnType = models.OrderTypePurchaseReturn
			refType = models.RefPurchaseReturn
		}

		now := time.Now()
		returnInvoice := fmt.Sprintf("%s-R%d", original.InvoiceNumber, now.Unix())
		refundTotal = decimal.Zero
		returnItems := make([]models.OrderItem, 0, len(req.Lines))

		for _, line := range req.Lines {
			item, ok := itemsByID[line.OrderItemID]
			if !ok {
				return apperrors.NotFound("item %d not found on invoice %s", line.OrderItemID, req.InvoiceNumber)
			}
			if item.ProductID == nil {
				return apperrors.Invariant("item %d has no product", item.ID)
			}

			returnable := item.Units - item.ReturnedUnits
			if line.Units > returnable {
				return apperrors.Validation("item %d: only %d of %d units returnable",
					item.ID, returnable, item.Units)
			}

			lineTotal, _ := decimal.NewFromString(item.LineTotal)
			refund := lineTotal.Div(decimal.NewFromInt32(item.Units)).
				Mul(decimal.NewFromInt32(line.Units)).Round(2)

			if original.Type == models.OrderTypeSale {
				if err := s.inventory.RestoreStock(tx, *item.ProductID, item.BatchNumber,
					line.Units, refType, &returnInvoice, req.CreatedBy); err != nil {
					return err
				}
			} else {
				if _, err := s.inventory.DeductExact(tx, *item.ProductID, item.BatchNumber,
					line.Units, refType, &returnInvoice, req.CreatedBy); err != nil {
					return err
				}
			}

			if err := tx.Model(item).
				UpdateColumn("returned_units", gorm.Expr("returned_units + ?", line.Units)).Error; err != nil {
				return apperrors.Internal(err)
			}
			item.ReturnedUnits += line.Units

			returnItems = append(returnItems, models.OrderItem{
				ProductID:   item.ProductID,
				BatchNumber: item.BatchNumber,
				ExpiryDate:  item.ExpiryDate,
				Units:       line.Units,
				UnitPrice:   item.UnitPrice,
				Discount:    "0.00",
				LineTotal:   refund.StringFixed(2),
				CreatedAt:   now,
			})
			refundTotal = refundTotal.Add(refund)
			productIDs = append(productIDs, *item.ProductID)
		}

		returnOrder = models.Order{
			InvoiceNumber:  returnInvoice,
			Type:           returnType,
			CounterpartyID: original.CounterpartyID,
			BookerID:       original.BookerID,
			Subtotal:       refundTotal.StringFixed(2),
			Total:          refundTotal.StringFixed(2),
			PaidAmount:     refundTotal.StringFixed(2),
			DueAmount:      "0.00",
			NetValue:       refundTotal.StringFixed(2),
			TotalProfit:    "0.00",
			Status:         models.OrderStatusCompleted,
			ReturnOf:       &original.ID,
			OrderItems:     returnItems,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Create(&returnOrder).Error; err != nil {
			return apperrors.Internal(err)
		}

		counterparty, err := s.lockCounterparty(tx, original.CounterpartyID)
		if err != nil {
			return err
		}
		pay, _ := decimal.NewFromString(counterparty.Pay)
		receive, _ := decimal.NewFromString(counterparty.Receive)
		newPay, newReceive, err := ledger.ReverseAdjustment(pay, receive, refundTotal, original.Type)
		if err != nil {
			return err
		}
		if err := s.saveCounterpartyBalance(tx, counterparty, newPay, newReceive); err != nil {
			return err
		}

		fullyReturned := true
		for i := range original.OrderItems {
			if original.OrderItems[i].ReturnedUnits < original.OrderItems[i].Units {
				fullyReturned = false
				break
			}
		}
		if fullyReturned {
			if err := tx.Model(&original).Updates(map[string]interface{}{
				"status":     models.OrderStatusReturned,
				"updated_at": now,
			}).Error; err != nil {
				return apperrors.Internal(err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.inventory.InvalidateInventoryCaches(ctx, productIDs...)
	s.publishOrderEvent(ctx, EventOrderReturned, &returnOrder)

	return &ReturnByInvoiceResponse{
		ReturnOrder: &returnOrder,
		RefundTotal: refundTotal.StringFixed(2),
	}, nil
}

// -- Delete --

// DeleteOrder undoes an order completely: stock back (sale) or out again
// (purchase, which may fail on insufficient stock), balance reversed by the
// order's outstanding amount, then order and items removed.
func (s *OrdersHandler) DeleteOrder(ctx context.Context, orderID int64, deletedBy int64) error {
	var productIDs []int64
	var deleted models.Order

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := lockForUpdate(tx).Preload("OrderItems").First(&order, orderID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperrors.NotFound("order %d not found", orderID)
			}
			return apperrors.Internal(err)
		}

		if order.Status != models.OrderStatusPending && order.Status != models.OrderStatusCompleted {
			return apperrors.Conflict("order %d is %s and cannot be deleted", orderID, order.Status)
		}
		if order.Type == models.OrderTypeSaleReturn || order.Type == models.OrderTypePurchaseReturn {
			return apperrors.Conflict("return orders cannot be deleted")
		}

		refID := order.InvoiceNumber
		for _, item := range order.OrderItems {
			if item.ProductID == nil {
				continue
			}
			switch order.Type {
			case models.OrderTypeSale:
				if err := s.inventory.RestoreStock(tx, *item.ProductID, item.BatchNumber,
					item.Units, models.RefOrderDelete, &refID, deletedBy); err != nil {
					return err
				}
			case models.OrderTypePurchase:
				if _, err := s.inventory.DeductExact(tx, *item.ProductID, item.BatchNumber,
					item.Units, models.RefOrderDelete, &refID, deletedBy); err != nil {
					return err
				}
			}
			productIDs = append(productIDs, *item.ProductID)
		}

		if order.Type == models.OrderTypeSale || order.Type == models.OrderTypePurchase {
			counterparty, err := s.lockCounterparty(tx, order.CounterpartyID)
			if err != nil {
				return err
			}
			due, _ := decimal.NewFromString(order.DueAmount)
			pay, _ := decimal.NewFromString(counterparty.Pay)
			receive, _ := decimal.NewFromString(counterparty.Receive)
			newPay, newReceive, err := ledger.ReverseAdjustment(pay, receive, due, order.Type)
			if err != nil {
				return err
			}
			if err := s.saveCounterpartyBalance(tx, counterparty, newPay, newReceive); err != nil {
				return err
			}
		}

		if err := tx.Where("order_id = ?", order.ID).Delete(&models.OrderItem{}).Error; err != nil {
			return apperrors.Internal(err)
		}
		if err := tx.Delete(&order).Error; err != nil {
			return apperrors.Internal(err)
		}
		deleted = order
		return nil
	})
	if err != nil {
		return err
	}

	s.inventory.InvalidateInventoryCaches(ctx, productIDs...)
	s.publishOrderEvent(ctx, EventOrderDeleted, &deleted)
	return nil
}

// -- Payments --

type ProcessPaymentRequest struct {
	OrderID     int64
	Amount      string
	PaymentDate time.Time
	RecordedBy  int64
}

type ProcessPaymentResponse struct {
	Order     *models.Order    `json:"order"`
	Recovery  *models.Recovery `json:"recovery"`
	DueAmount string           `json:"due_amount"`
}

// ProcessPayment applies a payment against one order, paying down its due
// amount and the counterparty's aggregate exposure. Fully paid orders move
// to recovered.
func (s *OrdersHandler) ProcessPayment(ctx context.Context, req *ProcessPaymentRequest) (*ProcessPaymentResponse, error) {
	amount, err := parseAmount(req.Amount, "amount")
	if err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, apperrors.Validation("amount must be greater than 0")
	}
	if req.PaymentDate.IsZero() {
		req.PaymentDate = time.Now()
	}

	var order models.Order
	var recovery models.Recovery

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&order, req.OrderID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperrors.NotFound("order %d not found", req.OrderID)
			}
			return apperrors.Internal(err)
		}

		if order.Type != models.OrderTypeSale && order.Type != models.OrderTypePurchase {
			return apperrors.Conflict("payments cannot be applied to %s orders", order.Type)
		}

		due, _ := decimal.NewFromString(order.DueAmount)
		if !due.IsPositive() {
			return apperrors.Conflict("order %d has nothing due", order.ID)
		}
		if amount.GreaterThan(due) {
			return apperrors.Validation("amount %s exceeds due %s", amount.StringFixed(2), due.StringFixed(2))
		}

		paid, _ := decimal.NewFromString(order.PaidAmount)
		newDue := due.Sub(amount)
		newPaid := paid.Add(amount)

		status := order.Status
		if newDue.IsZero() {
			status = models.OrderStatusRecovered
		}

		now := time.Now()
		if err := tx.Model(&order).Updates(map[string]interface{}{
			"due_amount":  newDue.StringFixed(2),
			"paid_amount": newPaid.StringFixed(2),
			"status":      status,
			"updated_at":  now,
		}).Error; err != nil {
			return apperrors.Internal(err)
		}
		order.DueAmount = newDue.StringFixed(2)
		order.PaidAmount = newPaid.StringFixed(2)
		order.Status = status

		counterparty, err := s.lockCounterparty(tx, order.CounterpartyID)
		if err != nil {
			return err
		}
		pay, _ := decimal.NewFromString(counterparty.Pay)
		receive, _ := decimal.NewFromString(counterparty.Receive)
		newPay, newReceive := ledger.SettlePayment(pay, receive, amount, order.Type)
		if err := s.saveCounterpartyBalance(tx, counterparty, newPay, newReceive); err != nil {
			return err
		}

		recovery = models.Recovery{
			OrderID:        order.ID,
			CounterpartyID: order.CounterpartyID,
			Amount:         amount.StringFixed(2),
			RecoveryDate:   req.PaymentDate,
			RecordedBy:     req.RecordedBy,
			CreatedAt:      now,
		}
		if err := tx.Create(&recovery).Error; err != nil {
			return apperrors.Internal(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishOrderEvent(ctx, EventPaymentApplied, &order)

	return &ProcessPaymentResponse{
		Order:     &order,
		Recovery:  &recovery,
		DueAmount: order.DueAmount,
	}, nil
}

// -- Reads --

func (s *OrdersHandler) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).
		Preload("OrderItems").
		Preload("OrderItems.Product").
		Preload("Counterparty").
		Preload("Booker").
		First(&order, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("order %d not found", id)
		}
		return nil, apperrors.Internal(err)
	}
	return &order, nil
}

type ListOrdersRequest struct {
	Type           string
	Status         string
	CounterpartyID *int64
	Page           int
	PageSize       int
}

type ListOrdersResponse struct {
	Orders     []models.Order `json:"orders"`
	TotalCount int64          `json:"total_count"`
}

func (s *OrdersHandler) ListOrders(ctx context.Context, req *ListOrdersRequest) (*ListOrdersResponse, error) {
	query := s.db.WithContext(ctx).Model(&models.Order{})
	if req.Type != "" {
		query = query.Where("type = ?", req.Type)
	}
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.CounterpartyID != nil {
		query = query.Where("counterparty_id = ?", *req.CounterpartyID)
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

	var orders []models.Order
	if err := query.Preload("OrderItems").Preload("Counterparty").
		Offset((pageNumber - 1) * pageSize).Limit(pageSize).
		Order("created_at desc").
		Find(&orders).Error; err != nil {
		return nil, apperrors.Internal(err)
	}

	return &ListOrdersResponse{Orders: orders, TotalCount: total}, nil
}

// -- Counterparties and bookers --

type CreateCounterpartyRequest struct {
	Name    string
	Role    string
	Phone   *string
	Address *string
	AreaID  *int64
}

func (s *OrdersHandler) CreateCounterparty(ctx context.Context, req *CreateCounterpartyRequest) (*models.Counterparty, error) {
	if req.Name == "" {
		return nil, apperrors.Validation("name required")
	}
	if req.Role != models.RoleSupplier && req.Role != models.RoleCustomer && req.Role != models.RoleBoth {
		return nil, apperrors.Validation("role must be supplier, customer or both")
	}

	counterparty := models.Counterparty{
		Name:     req.Name,
		Role:     req.Role,
		Pay:      "0.00",
		Receive:  "0.00",
		Phone:    req.Phone,
		Address:  req.Address,
		AreaID:   req.AreaID,
		IsActive: true,
	}
	if err := s.db.WithContext(ctx).Create(&counterparty).Error; err != nil {
		return nil, apperrors.Internal(err)
	}
	return &counterparty, nil
}

func (s *OrdersHandler) GetCounterparty(ctx context.Context, id int64) (*models.Counterparty, error) {
	var counterparty models.Counterparty
	if err := s.db.WithContext(ctx).First(&counterparty, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("counterparty %d not found", id)
		}
		return nil, apperrors.Internal(err)
	}
	return &counterparty, nil
}

func (s *OrdersHandler) ListCounterparties(ctx context.Context, role string) ([]models.Counterparty, error) {
	query := s.db.WithContext(ctx).Model(&models.Counterparty{})
	if role != "" {
		query = query.Where("role = ? OR role = ?", role, models.RoleBoth)
	}
	var counterparties []models.Counterparty
	if err := query.Order("name asc").Find(&counterparties).Error; err != nil {
		return nil, apperrors.Internal(err)
	}
	return counterparties, nil
}

type CreateBookerRequest struct {
	Name   string
	Phone  *string
	AreaID *int64
}

func (s *OrdersHandler) CreateBooker(ctx context.Context, req *CreateBookerRequest) (*models.Booker, error) {
	if req.Name == "" {
		return nil, apperrors.Validation("name required")
	}
	booker := models.Booker{
		Name:     req.Name,
		Phone:    req.Phone,
		AreaID:   req.AreaID,
		IsActive: true,
	}
	if err := s.db.WithContext(ctx).Create(&booker).Error; err != nil {
		return nil, apperrors.Internal(err)
	}
	return &booker, nil
}

func (s *OrdersHandler) ListBookers(ctx context.Context) ([]models.Booker, error) {
	var bookers []models.Booker
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("name asc").Find(&bookers).Error; err != nil {
		return nil, apperrors.Internal(err)
	}
	return bookers, nil
}
