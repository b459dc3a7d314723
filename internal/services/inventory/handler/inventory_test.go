package handler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/usman4222/Pharma-Backend-sub000/internal/apperrors"
	"github.com/usman4222/Pharma-Backend-sub000/internal/database/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_pragma=foreign_keys(1)"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Product{},
		&models.Batch{},
		&models.StockMovement{},
	))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, name string) *models.Product {
	t.Helper()
	product := models.Product{
		Name:           name,
		RetailPrice:    "150.00",
		TradePrice:     "120.00",
		WholesalePrice: "110.00",
		SalesTaxRate:   "0.00",
		FurtherTaxRate: "0.00",
		IsActive:       true,
	}
	require.NoError(t, db.Create(&product).Error)
	return &product
}

func seedBatch(t *testing.T, db *gorm.DB, productID int64, batchNumber string, stock int32, expiry time.Time) {
	t.Helper()
	batch := models.Batch{
		ProductID:   productID,
		BatchNumber: batchNumber,
		UnitCost:    "100.00",
		RetailPrice: "150.00",
		ExpiryDate:  expiry,
		Stock:       stock,
	}
	require.NoError(t, db.Create(&batch).Error)
}

func batchStock(t *testing.T, db *gorm.DB, productID int64, batchNumber string) int32 {
	t.Helper()
	var batch models.Batch
	require.NoError(t, db.Where("product_id = ? AND batch_number = ?", productID, batchNumber).First(&batch).Error)
	return batch.Stock
}

func TestDeductFreeSaleFIFOByExpiry(t *testing.T) {
	db := setupTestDB(t)
	h := NewInventoryHandler(db, nil)
	product := seedProduct(t, db, "Panadol 500mg")

	base := time.Now().AddDate(0, 1, 0)
	seedBatch(t, db, product.ID, "B1", 5, base)
	seedBatch(t, db, product.ID, "B2", 5, base.AddDate(0, 1, 0))
	seedBatch(t, db, product.ID, "B3", 5, base.AddDate(0, 2, 0))

	resp, err := h.DeductFreeSale(context.Background(), &FreeSaleRequest{
		ProductID: product.ID,
		Units:     7,
		CreatedBy: 1,
	})
	require.NoError(t, err)
	require.Len(t, resp.Allocations, 2)

	assert.Equal(t, "B1", resp.Allocations[0].BatchNumber)
	assert.Equal(t, int32(5), resp.Allocations[0].Units)
	assert.Equal(t, "B2", resp.Allocations[1].BatchNumber)
	assert.Equal(t, int32(2), resp.Allocations[1].Units)

	assert.Equal(t, int32(0), batchStock(t, db, product.ID, "B1"))
	assert.Equal(t, int32(3), batchStock(t, db, product.ID, "B2"))
	assert.Equal(t, int32(5), batchStock(t, db, product.ID, "B3"))

	var movements []models.StockMovement
	require.NoError(t, db.Where("product_id = ?", product.ID).Order("id asc").Find(&movements).Error)
	require.Len(t, movements, 2)
	assert.Equal(t, models.MovementOut, movements[0].MovementType)
	assert.Equal(t, models.RefFreeSale, movements[0].ReferenceType)
}

func TestDeductFreeSaleInsufficientStockDeductsNothing(t *testing.T) {
	db := setupTestDB(t)
	h := NewInventoryHandler(db, nil)
	product := seedProduct(t, db, "Brufen 400mg")

	seedBatch(t, db, product.ID, "B1", 3, time.Now().AddDate(0, 1, 0))
	seedBatch(t, db, product.ID, "B2", 4, time.Now().AddDate(0, 2, 0))

	_, err := h.DeductFreeSale(context.Background(), &FreeSaleRequest{
		ProductID: product.ID,
		Units:     10,
		CreatedBy: 1,
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInsufficientStock, apperrors.KindOf(err))

	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, int32(3), appErr.Shortfall)

	assert.Equal(t, int32(3), batchStock(t, db, product.ID, "B1"))
	assert.Equal(t, int32(4), batchStock(t, db, product.ID, "B2"))

	var count int64
	require.NoError(t, db.Model(&models.StockMovement{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDeductExact(t *testing.T) {
	db := setupTestDB(t)
	h := NewInventoryHandler(db, nil)
	product := seedProduct(t, db, "Augmentin 625mg")
	seedBatch(t, db, product.ID, "AG-01", 10, time.Now().AddDate(1, 0, 0))

	batch, err := h.DeductExact(db, product.ID, "AG-01", 4, models.RefSale, strPtr("INV-001"), 1)
	require.NoError(t, err)
	assert.Equal(t, int32(6), batch.Stock)
	assert.Equal(t, "100.00", batch.UnitCost)

	_, err = h.DeductExact(db, product.ID, "AG-01", 7, models.RefSale, nil, 1)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInsufficientStock, apperrors.KindOf(err))

	_, err = h.DeductExact(db, product.ID, "NOPE", 1, models.RefSale, nil, 1)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestRestoreStockExistingBatch(t *testing.T) {
	db := setupTestDB(t)
	h := NewInventoryHandler(db, nil)
	product := seedProduct(t, db, "Flagyl 400mg")
	seedBatch(t, db, product.ID, "FL-01", 2, time.Now().AddDate(0, 6, 0))

	require.NoError(t, h.RestoreStock(db, product.ID, "FL-01", 3, models.RefSaleReturn, nil, 1))
	assert.Equal(t, int32(5), batchStock(t, db, product.ID, "FL-01"))
}

func TestRestoreStockCreatesSyntheticBatch(t *testing.T) {
	db := setupTestDB(t)
	h := NewInventoryHandler(db, nil)
	product := seedProduct(t, db, "Disprin")

	require.NoError(t, h.RestoreStock(db, product.ID, "GONE-01", 6, models.RefOrderDelete, nil, 1))

	var batches []models.Batch
	require.NoError(t, db.Where("product_id = ?", product.ID).Find(&batches).Error)
	require.Len(t, batches, 1)

	assert.True(t, strings.HasPrefix(batches[0].BatchNumber, RESTORED_BATCH_PREFIX+"-"))
	assert.Equal(t, int32(6), batches[0].Stock)
	assert.Equal(t, "0.00", batches[0].UnitCost)
	assert.True(t, batches[0].ExpiryDate.After(time.Now().AddDate(0, 11, 0)))
}

func TestAddPurchaseStock(t *testing.T) {
	db := setupTestDB(t)
	h := NewInventoryHandler(db, nil)
	product := seedProduct(t, db, "Ciproxin 500mg")
	expiry := time.Now().AddDate(2, 0, 0)

	require.NoError(t, h.AddPurchaseStock(db, product.ID, "CP-01", 20, "80.00", "120.00", expiry, strPtr("PO-1"), 1))
	assert.Equal(t, int32(20), batchStock(t, db, product.ID, "CP-01"))

	// second receipt for the same batch credits and re-snapshots cost
	require.NoError(t, h.AddPurchaseStock(db, product.ID, "CP-01", 10, "85.00", "125.00", expiry, strPtr("PO-2"), 1))

	var batch models.Batch
	require.NoError(t, db.Where("product_id = ? AND batch_number = ?", product.ID, "CP-01").First(&batch).Error)
	assert.Equal(t, int32(30), batch.Stock)
	assert.Equal(t, "85.00", batch.UnitCost)
}

func TestCreateProduct(t *testing.T) {
	db := setupTestDB(t)
	h := NewInventoryHandler(db, nil)

	product, err := h.CreateProduct(context.Background(), &CreateProductRequest{
		Name:           "Amoxil 250mg",
		RetailPrice:    "95.50",
		TradePrice:     "80.00",
		WholesalePrice: "75.00",
	})
	require.NoError(t, err)
	assert.True(t, product.IsActive)
	assert.Equal(t, "0.00", product.SalesTaxRate)

	_, err = h.CreateProduct(context.Background(), &CreateProductRequest{
		Name:           "Amoxil 250mg",
		RetailPrice:    "95.50",
		TradePrice:     "80.00",
		WholesalePrice: "75.00",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))

	_, err = h.CreateProduct(context.Background(), &CreateProductRequest{
		Name:        "Bad Price",
		RetailPrice: "not-a-number",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestUpdateProductAllowList(t *testing.T) {
	db := setupTestDB(t)
	h := NewInventoryHandler(db, nil)
	product := seedProduct(t, db, "Calpol Syrup")

	newPrice := "175.00"
	inactive := false
	updated, err := h.UpdateProduct(context.Background(), product.ID, &UpdateProductRequest{
		RetailPrice: &newPrice,
		IsActive:    &inactive,
	})
	require.NoError(t, err)

	var reloaded models.Product
	require.NoError(t, db.First(&reloaded, updated.ID).Error)
	assert.Equal(t, "175.00", reloaded.RetailPrice)
	assert.False(t, reloaded.IsActive)

	bad := "abc"
	_, err = h.UpdateProduct(context.Background(), product.ID, &UpdateProductRequest{TradePrice: &bad})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = h.UpdateProduct(context.Background(), 9999, &UpdateProductRequest{})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestCheckStock(t *testing.T) {
	db := setupTestDB(t)
	h := NewInventoryHandler(db, nil)
	product := seedProduct(t, db, "Ventolin Inhaler")

	resp, err := h.CheckStock(context.Background(), product.ID)
	require.NoError(t, err)
	assert.False(t, resp.IsAvailable)
	assert.Equal(t, int32(0), resp.TotalAvailable)

	seedBatch(t, db, product.ID, "V1", 8, time.Now().AddDate(0, 3, 0))
	seedBatch(t, db, product.ID, "V2", 4, time.Now().AddDate(0, 6, 0))

	resp, err = h.CheckStock(context.Background(), product.ID)
	require.NoError(t, err)
	assert.True(t, resp.IsAvailable)
	assert.Equal(t, int32(12), resp.TotalAvailable)
	require.Len(t, resp.Batches, 2)
	assert.Equal(t, "V1", resp.Batches[0].BatchNumber)
}
