package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/usman4222/Pharma-Backend-sub000/internal/gateway/middleware"
	invhandler "github.com/usman4222/Pharma-Backend-sub000/internal/services/inventory/handler"
)

type InventoryHTTPHandler struct {
	inventory *invhandler.InventoryHandler
}

func NewInventoryHTTPHandler(inventory *invhandler.InventoryHandler) *InventoryHTTPHandler {
	return &InventoryHTTPHandler{
		inventory: inventory,
	}
}

type CreateProductRequest struct {
	Name           string `json:"name" binding:"required"`
	RetailPrice    string `json:"retail_price" binding:"required"`
	TradePrice     string `json:"trade_price" binding:"required"`
	WholesalePrice string `json:"wholesale_price" binding:"required"`
	SalesTaxRate   string `json:"sales_tax_rate,omitempty"`
	FurtherTaxRate string `json:"further_tax_rate,omitempty"`
	CompanyID      *int64 `json:"company_id,omitempty"`
	GenericID      *int64 `json:"generic_id,omitempty"`
	PackSizeID     *int64 `json:"pack_size_id,omitempty"`
	TypeID         *int64 `json:"type_id,omitempty"`
}

type UpdateProductRequest struct {
	RetailPrice    *string `json:"retail_price,omitempty"`
	TradePrice     *string `json:"trade_price,omitempty"`
	WholesalePrice *string `json:"wholesale_price,omitempty"`
	SalesTaxRate   *string `json:"sales_tax_rate,omitempty"`
	FurtherTaxRate *string `json:"further_tax_rate,omitempty"`
	IsActive       *bool   `json:"is_active,omitempty"`
}

type ListProductsQuery struct {
	Page       int     `form:"page,default=1"`
	PageSize   int     `form:"page_size,default=10"`
	IsActive   *bool   `form:"is_active,omitempty"`
	SearchTerm *string `form:"search,omitempty"`
}

type AllocateStockRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Units     int32 `json:"units" binding:"required,min=1"`
}

type FreeSaleRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Units     int32 `json:"units" binding:"required,min=1"`
}

func parseIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid id"))
		return 0, false
	}
	return id, true
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func (h *InventoryHTTPHandler) CreateProduct(c *gin.Context) {
	var req CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	product, err := h.inventory.CreateProduct(ctx, &invhandler.CreateProductRequest{
		Name:           req.Name,
		RetailPrice:    req.RetailPrice,
		TradePrice:     req.TradePrice,
		WholesalePrice: req.WholesalePrice,
		SalesTaxRate:   req.SalesTaxRate,
		FurtherTaxRate: req.FurtherTaxRate,
		CompanyID:      req.CompanyID,
		GenericID:      req.GenericID,
		PackSizeID:     req.PackSizeID,
		TypeID:         req.TypeID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("Product created", product))
}

func (h *InventoryHTTPHandler) UpdateProduct(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	product, err := h.inventory.UpdateProduct(ctx, id, &invhandler.UpdateProductRequest{
		RetailPrice:    req.RetailPrice,
		TradePrice:     req.TradePrice,
		WholesalePrice: req.WholesalePrice,
		SalesTaxRate:   req.SalesTaxRate,
		FurtherTaxRate: req.FurtherTaxRate,
		IsActive:       req.IsActive,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Product updated", product))
}

func (h *InventoryHTTPHandler) GetProduct(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	product, err := h.inventory.GetProduct(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Product retrieved", product))
}

func (h *InventoryHTTPHandler) ListProducts(c *gin.Context) {
	var query ListProductsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid query parameters"))
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	req := &invhandler.ListProductsRequest{
		Page:     query.Page,
		PageSize: query.PageSize,
		IsActive: query.IsActive,
	}
	if query.SearchTerm != nil {
		req.SearchTerm = *query.SearchTerm
	}

	resp, err := h.inventory.ListProducts(ctx, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Products retrieved", resp.Products, gin.H{
		"total_count": resp.TotalCount,
		"page":        query.Page,
		"page_size":   query.PageSize,
	}))
}

func (h *InventoryHTTPHandler) ListBatches(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	batches, err := h.inventory.ListBatches(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Batches retrieved", batches))
}

func (h *InventoryHTTPHandler) CheckStock(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	resp, err := h.inventory.CheckStock(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Stock checked", resp))
}

func (h *InventoryHTTPHandler) AllocateStock(c *gin.Context) {
	var req AllocateStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	resp, err := h.inventory.AllocateStock(ctx, &invhandler.AllocateStockRequest{
		ProductID: req.ProductID,
		Units:     req.Units,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Allocation planned", resp))
}

func (h *InventoryHTTPHandler) DeductFreeSale(c *gin.Context) {
	var req FreeSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	resp, err := h.inventory.DeductFreeSale(ctx, &invhandler.FreeSaleRequest{
		ProductID: req.ProductID,
		Units:     req.Units,
		CreatedBy: c.GetInt64(middleware.ContextUserID),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Free sale deducted", resp))
}
