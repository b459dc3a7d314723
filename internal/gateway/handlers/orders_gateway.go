package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/usman4222/Pharma-Backend-sub000/internal/gateway/middleware"
	ordershandler "github.com/usman4222/Pharma-Backend-sub000/internal/services/orders/handler"
)

type OrdersHTTPHandler struct {
	orders *ordershandler.OrdersHandler
}

func NewOrdersHTTPHandler(orders *ordershandler.OrdersHandler) *OrdersHTTPHandler {
	return &OrdersHTTPHandler{
		orders: orders,
	}
}

type SaleItemRequest struct {
	ProductID   int64  `json:"product_id" binding:"required"`
	BatchNumber string `json:"batch_number" binding:"required"`
	Units       int32  `json:"units" binding:"required,min=1"`
	UnitPrice   string `json:"unit_price" binding:"required"`
	Discount    string `json:"discount,omitempty"`
}

type CreateSaleRequest struct {
	InvoiceNumber  string            `json:"invoice_number" binding:"required"`
	CounterpartyID int64             `json:"counterparty_id" binding:"required"`
	BookerID       *int64            `json:"booker_id,omitempty"`
	Items          []SaleItemRequest `json:"items" binding:"required,min=1"`
	PaidAmount     string            `json:"paid_amount,omitempty"`
	DueDate        *time.Time        `json:"due_date,omitempty"`
}

type PurchaseItemRequest struct {
	ProductID   int64     `json:"product_id" binding:"required"`
	BatchNumber string    `json:"batch_number" binding:"required"`
	Units       int32     `json:"units" binding:"required,min=1"`
	UnitCost    string    `json:"unit_cost" binding:"required"`
	RetailPrice string    `json:"retail_price,omitempty"`
	ExpiryDate  time.Time `json:"expiry_date" binding:"required"`
	Discount    string    `json:"discount,omitempty"`
}

type CreatePurchaseRequest struct {
	InvoiceNumber  string                `json:"invoice_number" binding:"required"`
	CounterpartyID int64                 `json:"counterparty_id" binding:"required"`
	Items          []PurchaseItemRequest `json:"items" binding:"required,min=1"`
	PaidAmount     string                `json:"paid_amount,omitempty"`
	DueDate        *time.Time            `json:"due_date,omitempty"`
}

type EstimateItemRequest struct {
	ProductID    *int64  `json:"product_id,omitempty"`
	EstimateName *string `json:"estimate_name,omitempty"`
	BatchNumber  string  `json:"batch_number,omitempty"`
	Units        int32   `json:"units" binding:"required,min=1"`
	UnitPrice    string  `json:"unit_price" binding:"required"`
	Discount     string  `json:"discount,omitempty"`
}

type CreateEstimateRequest struct {
	InvoiceNumber  string                `json:"invoice_number" binding:"required"`
	CounterpartyID int64                 `json:"counterparty_id" binding:"required"`
	BookerID       *int64                `json:"booker_id,omitempty"`
	Items          []EstimateItemRequest `json:"items" binding:"required,min=1"`
}

type ReturnLineRequest struct {
	OrderItemID int64 `json:"order_item_id" binding:"required"`
	Units       int32 `json:"units" binding:"required,min=1"`
}

type ReturnByInvoiceRequest struct {
	InvoiceNumber string              `json:"invoice_number" binding:"required"`
	Lines         []ReturnLineRequest `json:"lines" binding:"required,min=1"`
}

type ProcessPaymentRequest struct {
	OrderID     int64     `json:"order_id" binding:"required"`
	Amount      string    `json:"amount" binding:"required"`
	PaymentDate time.Time `json:"payment_date,omitempty"`
}

type ListOrdersQuery struct {
	Type           string `form:"type,omitempty"`
	Status         string `form:"status,omitempty"`
	CounterpartyID *int64 `form:"counterparty_id,omitempty"`
	Page           int    `form:"page,default=1"`
	PageSize       int    `form:"page_size,default=10"`
}

type CreateCounterpartyRequest struct {
	Name    string  `json:"name" binding:"required"`
	Role    string  `json:"role" binding:"required"`
	Phone   *string `json:"phone,omitempty"`
	Address *string `json:"address,omitempty"`
	AreaID  *int64  `json:"area_id,omitempty"`
}

type CreateBookerRequest struct {
	Name   string  `json:"name" binding:"required"`
	Phone  *string `json:"phone,omitempty"`
	AreaID *int64  `json:"area_id,omitempty"`
}

func (h *OrdersHTTPHandler) CreateSale(c *gin.Context) {
	var req CreateSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	items := make([]ordershandler.SaleItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, ordershandler.SaleItemRequest{
			ProductID:   item.ProductID,
			BatchNumber: item.BatchNumber,
			Units:       item.Units,
			UnitPrice:   item.UnitPrice,
			Discount:    item.Discount,
		})
	}

	resp, err := h.orders.CreateSale(ctx, &ordershandler.CreateSaleRequest{
		InvoiceNumber:  req.InvoiceNumber,
		CounterpartyID: req.CounterpartyID,
		BookerID:       req.BookerID,
		Items:          items,
		PaidAmount:     req.PaidAmount,
		DueDate:        req.DueDate,
		CreatedBy:      c.GetInt64(middleware.ContextUserID),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("Sale created", resp))
}

func (h *OrdersHTTPHandler) CreatePurchase(c *gin.Context) {
	var req CreatePurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	items := make([]ordershandler.PurchaseItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, ordershandler.PurchaseItemRequest{
			ProductID:   item.ProductID,
			BatchNumber: item.BatchNumber,
			Units:       item.Units,
			UnitCost:    item.UnitCost,
			RetailPrice: item.RetailPrice,
			ExpiryDate:  item.ExpiryDate,
			Discount:    item.Discount,
		})
	}

	resp, err := h.orders.CreatePurchase(ctx, &ordershandler.CreatePurchaseRequest{
		InvoiceNumber:  req.InvoiceNumber,
		CounterpartyID: req.CounterpartyID,
		Items:          items,
		PaidAmount:     req.PaidAmount,
		DueDate:        req.DueDate,
		CreatedBy:      c.GetInt64(middleware.ContextUserID),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("Purchase created", resp))
}

func (h *OrdersHTTPHandler) CreateEstimate(c *gin.Context) {
	var req CreateEstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	items := make([]ordershandler.EstimateItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, ordershandler.EstimateItemRequest{
			ProductID:    item.ProductID,
			EstimateName: item.EstimateName,
			BatchNumber:  item.BatchNumber,
			Units:        item.Units,
			UnitPrice:    item.UnitPrice,
			Discount:     item.Discount,
		})
	}

	order, err := h.orders.CreateEstimate(ctx, &ordershandler.CreateEstimateRequest{
		InvoiceNumber:  req.InvoiceNumber,
		CounterpartyID: req.CounterpartyID,
		BookerID:       req.BookerID,
		Items:          items,
		CreatedBy:      c.GetInt64(middleware.ContextUserID),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("Estimate created", order))
}

func (h *OrdersHTTPHandler) ReturnByInvoice(c *gin.Context) {
	var req ReturnByInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	lines := make([]ordershandler.ReturnLineRequest, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, ordershandler.ReturnLineRequest{
			OrderItemID: line.OrderItemID,
			Units:       line.Units,
		})
	}

	resp, err := h.orders.ReturnByInvoice(ctx, &ordershandler.ReturnByInvoiceRequest{
		InvoiceNumber: req.InvoiceNumber,
		Lines:         lines,
		CreatedBy:     c.GetInt64(middleware.ContextUserID),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Return processed", resp))
}

func (h *OrdersHTTPHandler) ProcessPayment(c *gin.Context) {
	var req ProcessPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	resp, err := h.orders.ProcessPayment(ctx, &ordershandler.ProcessPaymentRequest{
		OrderID:     req.OrderID,
		Amount:      req.Amount,
		PaymentDate: req.PaymentDate,
		RecordedBy:  c.GetInt64(middleware.ContextUserID),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Payment applied", resp))
}

func (h *OrdersHTTPHandler) GetOrder(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	order, err := h.orders.GetOrder(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Order retrieved", order))
}

func (h *OrdersHTTPHandler) ListOrders(c *gin.Context) {
	var query ListOrdersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid query parameters"))
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	resp, err := h.orders.ListOrders(ctx, &ordershandler.ListOrdersRequest{
		Type:           query.Type,
		Status:         query.Status,
		CounterpartyID: query.CounterpartyID,
		Page:           query.Page,
		PageSize:       query.PageSize,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Orders retrieved", resp.Orders, gin.H{
		"total_count": resp.TotalCount,
		"page":        query.Page,
		"page_size":   query.PageSize,
	}))
}

func (h *OrdersHTTPHandler) DeleteOrder(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	if err := h.orders.DeleteOrder(ctx, id, c.GetInt64(middleware.ContextUserID)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Order deleted", nil))
}

func (h *OrdersHTTPHandler) CreateCounterparty(c *gin.Context) {
	var req CreateCounterpartyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	counterparty, err := h.orders.CreateCounterparty(ctx, &ordershandler.CreateCounterpartyRequest{
		Name:    req.Name,
		Role:    req.Role,
		Phone:   req.Phone,
		Address: req.Address,
		AreaID:  req.AreaID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("Counterparty created", counterparty))
}

func (h *OrdersHTTPHandler) GetCounterparty(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	counterparty, err := h.orders.GetCounterparty(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Counterparty retrieved", counterparty))
}

func (h *OrdersHTTPHandler) ListCounterparties(c *gin.Context) {
	ctx, cancel := requestContext()
	defer cancel()

	counterparties, err := h.orders.ListCounterparties(ctx, c.Query("role"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Counterparties retrieved", counterparties))
}

func (h *OrdersHTTPHandler) CreateBooker(c *gin.Context) {
	var req CreateBookerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	booker, err := h.orders.CreateBooker(ctx, &ordershandler.CreateBookerRequest{
		Name:   req.Name,
		Phone:  req.Phone,
		AreaID: req.AreaID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("Booker created", booker))
}

func (h *OrdersHTTPHandler) ListBookers(c *gin.Context) {
	ctx, cancel := requestContext()
	defer cancel()

	bookers, err := h.orders.ListBookers(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Bookers retrieved", bookers))
}
