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
)

const (
	INVENTORY_CACHE_PREFIX  = "inventory:"
	PRODUCT_LIST_CACHE_KEY  = "inventory:products"
	CACHE_TTL_MEDIUM        = 30 * time.Minute
	RESTORED_BATCH_PREFIX   = "RST"
	RESTORED_BATCH_LIFETIME = 365 * 24 * time.Hour
)

// --- Helpers ---
func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// lockForUpdate takes a row lock on postgres; sqlite (tests) has no row
// locks and serializes writers itself.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// -- Handler --
type InventoryHandler struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewInventoryHandler(db *gorm.DB, redisClient *redis.Client) *InventoryHandler {
	return &InventoryHandler{
		db:    db,
		redis: redisClient,
	}
}

func (s *InventoryHandler) InvalidateInventoryCaches(ctx context.Context, productIDs ...int64) {
	if s.redis == nil {
		return
	}
	_ = s.redis.Del(ctx, PRODUCT_LIST_CACHE_KEY)
	for _, id := range productIDs {
		cacheKey := fmt.Sprintf("%s%d", INVENTORY_CACHE_PREFIX, id)
		_ = s.redis.Del(ctx, cacheKey)
	}
}

// -- Allocation --

// PlanStock loads the product's batches soonest-expiry-first inside the
// caller's transaction and plans a FIFO allocation. It performs no writes;
// a shortfall fails the whole operation before anything is deducted.
func (s *InventoryHandler) PlanStock(tx *gorm.DB, productID int64, units int32) ([]ledger.Allocation, error) {
	if units <= 0 {
		return nil, apperrors.Validation("units must be greater than 0")
	}

	var batches []models.Batch
	if err := lockForUpdate(tx).
		Where("product_id = ? AND stock > 0", productID).
		Order("expiry_date asc").
		Find(&batches).Error; err != nil {
		return nil, apperrors.Internal(err)
	}

	lots := make([]ledger.BatchLot, 0, len(batches))
	for _, b := range batches {
		lots = append(lots, ledger.BatchLot{
			BatchNumber: b.BatchNumber,
			ExpiryDate:  b.ExpiryDate,
			Stock:       b.Stock,
		})
	}

	allocations, shortfall := ledger.PlanAllocation(lots, units)
	if shortfall > 0 {
		return nil, apperrors.InsufficientStock("", shortfall,
			"insufficient stock for product %d: short by %d units", productID, shortfall)
	}
	return allocations, nil
}

// ApplyAllocation deducts a planned allocation batch by batch, writing one
// stock movement per batch. The guarded update keeps stock from going
// negative under concurrent writers.
func (s *InventoryHandler) ApplyAllocation(tx *gorm.DB, productID int64, allocations []ledger.Allocation, refType string, refID *string, by int64) error {
	now := time.Now()
	for _, alloc := range allocations {
		res := tx.Model(&models.Batch{}).
			Where("product_id = ? AND batch_number = ? AND stock >= ?", productID, alloc.BatchNumber, alloc.Units).
			UpdateColumn("stock", gorm.Expr("stock - ?", alloc.Units))
		if res.Error != nil {
			return apperrors.Internal(res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.InsufficientStock(alloc.BatchNumber, alloc.Units,
				"batch %s no longer has %d units", alloc.BatchNumber, alloc.Units)
		}

		movement := models.StockMovement{
			ProductID:     productID,
			BatchNumber:   alloc.BatchNumber,
			MovementType:  models.MovementOut,
			Quantity:      alloc.Units,
			ReferenceType: refType,
			ReferenceID:   refID,
			CreatedBy:     by,
			CreatedAt:     now,
		}
		if err := tx.Create(&movement).Error; err != nil {
			return apperrors.Internal(err)
		}
	}
	return nil
}

// DeductExact removes units from one named batch. Sales pin a batch per
// line, so this path does not go through the FIFO planner.
func (s *InventoryHandler) DeductExact(tx *gorm.DB, productID int64, batchNumber string, units int32, refType string, refID *string, by int64) (*models.Batch, error) {
	if units <= 0 {
		return nil, apperrors.Validation("units must be greater than 0")
	}

	var batch models.Batch
	if err := lockForUpdate(tx).
		Where("product_id = ? AND batch_number = ?", productID, batchNumber).
		First(&batch).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("batch %s not found for product %d", batchNumber, productID)
		}
		return nil, apperrors.Internal(err)
	}

	if batch.Stock < units {
		return nil, apperrors.InsufficientStock(batchNumber, units-batch.Stock,
			"batch %s has %d units, requested %d", batchNumber, batch.Stock, units)
	}

	batch.Stock -= units
	batch.UpdatedAt = time.Now()
	if err := tx.Save(&batch).Error; err != nil {
		return nil, apperrors.Internal(err)
	}

	movement := models.StockMovement{
		ProductID:     productID,
		BatchNumber:   batchNumber,
		MovementType:  models.MovementOut,
		Quantity:      units,
		UnitCost:      strPtr(batch.UnitCost),
		ReferenceType: refType,
		ReferenceID:   refID,
		CreatedBy:     by,
		CreatedAt:     time.Now(),
	}
	if err := tx.Create(&movement).Error; err != nil {
		return nil, apperrors.Internal(err)
	}

	return &batch, nil
}

// RestoreStock reverses a prior deduction. If the originating batch row is
// gone the quantity lands in a synthetic replacement batch with a one-year
// expiry, so stock is never silently lost.
func (s *InventoryHandler) RestoreStock(tx *gorm.DB, productID int64, batchNumber string, units int32, refType string, refID *string, by int64) error {
	if units <= 0 {
		return apperrors.Validation("units must be greater than 0")
	}

	var batch models.Batch
	err := lockForUpdate(tx).
		Where("product_id = ? AND batch_number = ?", productID, batchNumber).
		First(&batch).Error

	if err == gorm.ErrRecordNotFound {
		batch = models.Batch{
			ProductID:   productID,
			BatchNumber: fmt.Sprintf("%s-%d-%d", RESTORED_BATCH_PREFIX, productID, time.Now().Unix()),
			UnitCost:    "0.00",
			RetailPrice: "0.00",
			ExpiryDate:  time.Now().Add(RESTORED_BATCH_LIFETIME),
			Stock:       units,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}
		if err := tx.Create(&batch).Error; err != nil {
			return apperrors.Internal(err)
		}
	} else if err != nil {
		return apperrors.Internal(err)
	} else {
		batch.Stock += units
		batch.UpdatedAt = time.Now()
		if err := tx.Save(&batch).Error; err != nil {
			return apperrors.Internal(err)
		}
	}

	movement := models.StockMovement{
		ProductID:     productID,
		BatchNumber:   batch.BatchNumber,
		MovementType:  models.MovementIn,
		Quantity:      units,
		ReferenceType: refType,
		ReferenceID:   refID,
		CreatedBy:     by,
		CreatedAt:     time.Now(),
	}
	if err := tx.Create(&movement).Error; err != nil {
		return apperrors.Internal(err)
	}

	return nil
}

// AddPurchaseStock credits a batch on purchase receipt, creating it on the
// first receipt for that batch number and snapshotting the latest cost,
// price and expiry otherwise.
func (s *InventoryHandler) AddPurchaseStock(tx *gorm.DB, productID int64, batchNumber string, units int32, unitCost, retailPrice string, expiry time.Time, refID *string, by int64) error {
	if units <= 0 {
		return apperrors.Validation("units must be greater than 0")
	}

	var batch models.Batch
	err := lockForUpdate(tx).
		Where("product_id = ? AND batch_number = ?", productID, batchNumber).
		First(&batch).Error

	if err == gorm.ErrRecordNotFound {
		batch = models.Batch{
			ProductID:   productID,
			BatchNumber: batchNumber,
			UnitCost:    unitCost,
			RetailPrice: retailPrice,
			ExpiryDate:  expiry,
			Stock:       units,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}
		if err := tx.Create(&batch).Error; err != nil {
			return apperrors.Internal(err)
		}
	} else if err != nil {
		return apperrors.Internal(err)
	} else {
		batch.Stock += units
		batch.UnitCost = unitCost
		batch.RetailPrice = retailPrice
		batch.ExpiryDate = expiry
		batch.UpdatedAt = time.Now()
		if err := tx.Save(&batch).Error; err != nil {
			return apperrors.Internal(err)
		}
	}

	movement := models.StockMovement{
		ProductID:     productID,
		BatchNumber:   batchNumber,
		MovementType:  models.MovementIn,
		Quantity:      units,
		UnitCost:      strPtr(unitCost),
		ReferenceType: models.RefPurchase,
		ReferenceID:   refID,
		CreatedBy:     by,
		CreatedAt:     time.Now(),
	}
	if err := tx.Create(&movement).Error; err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

// -- Allocation Endpoints --

type AllocateStockRequest struct {
	ProductID int64
	Units     int32
}

type AllocateStockResponse struct {
	Allocations []ledger.Allocation `json:"allocations"`
}

// AllocateStock is the dry-run used by callers that want the FIFO plan
// without deducting anything.
func (s *InventoryHandler) AllocateStock(ctx context.Context, req *AllocateStockRequest) (*AllocateStockResponse, error) {
	var allocations []ledger.Allocation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := s.PlanStock(tx, req.ProductID, req.Units)
		if err != nil {
			return err
		}
		allocations = plan
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &AllocateStockResponse{Allocations: allocations}, nil
}

type FreeSaleRequest struct {
	ProductID int64
	Units     int32
	CreatedBy int64
}

type FreeSaleResponse struct {
	Allocations []ledger.Allocation `json:"allocations"`
}

// DeductFreeSale allocates and deducts bonus units FIFO-by-expiry in one
// transaction. Nothing is deducted when total stock is short.
func (s *InventoryHandler) DeductFreeSale(ctx context.Context, req *FreeSaleRequest) (*FreeSaleResponse, error) {
	var allocations []ledger.Allocation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := s.PlanStock(tx, req.ProductID, req.Units)
		if err != nil {
			return err
		}
		if err := s.ApplyAllocation(tx, req.ProductID, plan, models.RefFreeSale, nil, req.CreatedBy); err != nil {
			return err
		}
		allocations = plan
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.InvalidateInventoryCaches(ctx, req.ProductID)
	return &FreeSaleResponse{Allocations: allocations}, nil
}

// -- Products --

type CreateProductRequest struct {
	Name           string
	RetailPrice    string
	TradePrice     string
	WholesalePrice string
	SalesTaxRate   string
	FurtherTaxRate string
	CompanyID      *int64
	GenericID      *int64
	PackSizeID     *int64
	TypeID         *int64
}

func (s *InventoryHandler) CreateProduct(ctx context.Context, req *CreateProductRequest) (*models.Product, error) {
	if req.Name == "" {
		return nil, apperrors.Validation("name required")
	}
	for _, amount := range []string{req.RetailPrice, req.TradePrice, req.WholesalePrice} {
		if _, err := decimal.NewFromString(amount); err != nil {
			return nil, apperrors.Validation("invalid price %q", amount)
		}
	}

	var existing models.Product
	err := s.db.WithContext(ctx).Where("name = ?", req.Name).First(&existing).Error
	if err == nil {
		return nil, apperrors.Conflict("product %q already exists", req.Name)
	} else if err != gorm.ErrRecordNotFound {
		return nil, apperrors.Internal(err)
	}

	product := models.Product{
		Name:           req.Name,
		RetailPrice:    req.RetailPrice,
		TradePrice:     req.TradePrice,
		WholesalePrice: req.WholesalePrice,
		SalesTaxRate:   defaultAmount(req.SalesTaxRate),
		FurtherTaxRate: defaultAmount(req.FurtherTaxRate),
		CompanyID:      req.CompanyID,
		GenericID:      req.GenericID,
		PackSizeID:     req.PackSizeID,
		TypeID:         req.TypeID,
		IsActive:       true,
	}
	if err := s.db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, apperrors.Internal(err)
	}

	s.InvalidateInventoryCaches(ctx, product.ID)
	return &product, nil
}

type UpdateProductRequest struct {
	RetailPrice    *string
	TradePrice     *string
	WholesalePrice *string
	SalesTaxRate   *string
	FurtherTaxRate *string
	IsActive       *bool
}

// UpdateProduct merges an allow-listed field set. Stock and balances are
// never reachable from update payloads.
func (s *InventoryHandler) UpdateProduct(ctx context.Context, id int64, req *UpdateProductRequest) (*models.Product, error) {
	var product models.Product
	if err := s.db.WithContext(ctx).First(&product, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("product %d not found", id)
		}
		return nil, apperrors.Internal(err)
	}

	updates := map[string]interface{}{}
	for field, value := range map[string]*string{
		"retail_price":     req.RetailPrice,
		"trade_price":      req.TradePrice,
		"wholesale_price":  req.WholesalePrice,
		"sales_tax_rate":   req.SalesTaxRate,
		"further_tax_rate": req.FurtherTaxRate,
	} {
		if value == nil {
			continue
		}
		if _, err := decimal.NewFromString(*value); err != nil {
			return nil, apperrors.Validation("invalid amount %q for %s", *value, field)
		}
		updates[field] = *value
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) == 0 {
		return &product, nil
	}

	if err := s.db.WithContext(ctx).Model(&product).Updates(updates).Error; err != nil {
		return nil, apperrors.Internal(err)
	}

	s.InvalidateInventoryCaches(ctx, id)
	return &product, nil
}

func (s *InventoryHandler) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	if err := s.db.WithContext(ctx).Preload("Batches", func(db *gorm.DB) *gorm.DB {
		return db.Order("expiry_date asc")
	}).First(&product, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("product %d not found", id)
		}
		return nil, apperrors.Internal(err)
	}
	return &product, nil
}

type ListProductsRequest struct {
	Page       int
	PageSize   int
	IsActive   *bool
	SearchTerm string
}

type ListProductsResponse struct {
	Products   []models.Product `json:"products"`
	TotalCount int64            `json:"total_count"`
}

func (s *InventoryHandler) ListProducts(ctx context.Context, req *ListProductsRequest) (*ListProductsResponse, error) {
	cacheable := req.IsActive == nil && req.SearchTerm == "" && req.Page <= 1

	if cacheable && s.redis != nil {
		if cached, err := s.redis.Get(ctx, PRODUCT_LIST_CACHE_KEY).Result(); err == nil {
			var resp ListProductsResponse
			if json.Unmarshal([]byte(cached), &resp) == nil {
				return &resp, nil
			}
		}
	}

	query := s.db.WithContext(ctx).Model(&models.Product{})
	if req.IsActive != nil {
		query = query.Where("is_active = ?", *req.IsActive)
	}
	if req.SearchTerm != "" {
		searchTerm := "%" + req.SearchTerm + "%"
		query = query.Where("name ILIKE ?", searchTerm)
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

	var products []models.Product
	offset := (pageNumber - 1) * pageSize
	if err := query.Offset(offset).Limit(pageSize).Order("name asc").Find(&products).Error; err != nil {
		return nil, apperrors.Internal(err)
	}

	resp := &ListProductsResponse{Products: products, TotalCount: total}

	if cacheable && s.redis != nil {
		if payload, err := json.Marshal(resp); err == nil {
			_ = s.redis.Set(ctx, PRODUCT_LIST_CACHE_KEY, payload, CACHE_TTL_MEDIUM)
		}
	}

	return resp, nil
}

// -- Batches --

func (s *InventoryHandler) ListBatches(ctx context.Context, productID int64) ([]models.Batch, error) {
	var batches []models.Batch
	if err := s.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("expiry_date asc").
		Find(&batches).Error; err != nil {
		return nil, apperrors.Internal(err)
	}
	return batches, nil
}

type CheckStockResponse struct {
	IsAvailable    bool           `json:"is_available"`
	TotalAvailable int32          `json:"total_available"`
	Batches        []models.Batch `json:"batches"`
}

func (s *InventoryHandler) CheckStock(ctx context.Context, productID int64) (*CheckStockResponse, error) {
	batches, err := s.ListBatches(ctx, productID)
	if err != nil {
		return nil, err
	}

	var total int32
	for _, b := range batches {
		total += b.Stock
	}

	return &CheckStockResponse{
		IsAvailable:    total > 0,
		TotalAvailable: total,
		Batches:        batches,
	}, nil
}

func defaultAmount(s string) string {
	if s == "" {
		return "0.00"
	}
	return s
}
