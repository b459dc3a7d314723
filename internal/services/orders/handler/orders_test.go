package handler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/usman4222/Pharma-Backend-sub000/internal/apperrors"
	"github.com/usman4222/Pharma-Backend-sub000/internal/database/models"
	invhandler "github.com/usman4222/Pharma-Backend-sub000/internal/services/inventory/handler"
	profithandler "github.com/usman4222/Pharma-Backend-sub000/internal/services/profit/handler"
)

type testEnv struct {
	db     *gorm.DB
	orders *OrdersHandler
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_pragma=foreign_keys(1)"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Product{},
		&models.Batch{},
		&models.StockMovement{},
		&models.Order{},
		&models.OrderItem{},
		&models.Counterparty{},
		&models.Booker{},
		&models.Investor{},
		&models.InvestorProfitShare{},
		&models.HouseAccount{},
		&models.Recovery{},
	))
	require.NoError(t, db.Create(&models.HouseAccount{Name: "House", Balance: "0.00"}).Error)

	inventory := invhandler.NewInventoryHandler(db, nil)
	profit := profithandler.NewProfitHandler(db, nil)
	orders := NewOrdersHandler(db, nil, inventory, profit)

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})
	return &testEnv{db: db, orders: orders}
}

func (e *testEnv) seedProduct(t *testing.T, name string) *models.Product {
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
	require.NoError(t, e.db.Create(&product).Error)
	return &product
}

func (e *testEnv) seedBatch(t *testing.T, productID int64, batchNumber string, stock int32, unitCost string) {
	t.Helper()
	batch := models.Batch{
		ProductID:   productID,
		BatchNumber: batchNumber,
		UnitCost:    unitCost,
		RetailPrice: "150.00",
		ExpiryDate:  time.Now().AddDate(1, 0, 0),
		Stock:       stock,
	}
	require.NoError(t, e.db.Create(&batch).Error)
}

func (e *testEnv) seedCounterparty(t *testing.T, name, role string) *models.Counterparty {
	t.Helper()
	counterparty := models.Counterparty{
		Name: name, Role: role,
		Pay: "0.00", Receive: "0.00",
		IsActive: true,
	}
	require.NoError(t, e.db.Create(&counterparty).Error)
	return &counterparty
}

func (e *testEnv) seedInvestor(t *testing.T, name, shares string) *models.Investor {
	t.Helper()
	investor := models.Investor{
		Name:     name,
		Shares:   shares,
		JoinDate: time.Now().AddDate(-1, 0, 0),
		Balance:  "0.00",
		Status:   models.InvestorActive,
	}
	require.NoError(t, e.db.Create(&investor).Error)
	return &investor
}

func (e *testEnv) counterparty(t *testing.T, id int64) *models.Counterparty {
	t.Helper()
	var counterparty models.Counterparty
	require.NoError(t, e.db.First(&counterparty, id).Error)
	return &counterparty
}

func (e *testEnv) batchStock(t *testing.T, productID int64, batchNumber string) int32 {
	t.Helper()
	var batch models.Batch
	require.NoError(t, e.db.Where("product_id = ? AND batch_number = ?", productID, batchNumber).First(&batch).Error)
	return batch.Stock
}

func TestCreateSale(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	product := env.seedProduct(t, "Panadol 500mg")
	env.seedBatch(t, product.ID, "B1", 100, "100.00")
	customer := env.seedCounterparty(t, "City Pharmacy", models.RoleCustomer)
	env.seedInvestor(t, "Sole", "100.0000")

	resp, err := env.orders.CreateSale(ctx, &CreateSaleRequest{
		InvoiceNumber:  "INV-001",
		CounterpartyID: customer.ID,
		Items: []SaleItemRequest{
			{ProductID: product.ID, BatchNumber: "B1", Units: 10, UnitPrice: "150.00"},
		},
		PaidAmount: "500.00",
		CreatedBy:  1,
	})
	require.NoError(t, err)

	// 10 units at 150 = 1500 total, 500 paid, 1000 due
	order := resp.Order
	assert.Equal(t, models.OrderTypeSale, order.Type)
	assert.Equal(t, "1500.00", order.Total)
	assert.Equal(t, "1000.00", order.DueAmount)
	assert.Equal(t, models.OrderStatusPending, order.Status)

	// profit = (150 - 100) * 10 = 500
	assert.Equal(t, "500.00", resp.TotalProfit)

	// distributable = 500 - 50 charity - 30 expense (2% of 1500) = 420
	assert.Equal(t, "420.00", resp.Distributable)

	assert.Equal(t, int32(90), env.batchStock(t, product.ID, "B1"))

	reloaded := env.counterparty(t, customer.ID)
	assert.Equal(t, "0.00", reloaded.Pay)
	assert.Equal(t, "1000.00", reloaded.Receive)

	var share models.InvestorProfitShare
	require.NoError(t, env.db.First(&share).Error)
	assert.Equal(t, order.ID, share.OrderID)
	assert.Equal(t, "420.00", share.InvestorAmount)
}

func TestCreateSaleFullyPaidIsCompleted(t *testing.T) {
	env := setupTestEnv(t)
	product := env.seedProduct(t, "Brufen 400mg")
	env.seedBatch(t, product.ID, "B1", 50, "80.00")
	customer := env.seedCounterparty(t, "Walk In", models.RoleCustomer)

	resp, err := env.orders.CreateSale(context.Background(), &CreateSaleRequest{
		InvoiceNumber:  "INV-002",
		CounterpartyID: customer.ID,
		Items: []SaleItemRequest{
			{ProductID: product.ID, BatchNumber: "B1", Units: 5, UnitPrice: "100.00"},
		},
		PaidAmount: "500.00",
		CreatedBy:  1,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, resp.Order.Status)
	assert.Equal(t, "0.00", resp.Order.DueAmount)

	reloaded := env.counterparty(t, customer.ID)
	assert.Equal(t, "0.00", reloaded.Receive)
}

func TestCreateSaleInsufficientStockRollsBackEverything(t *testing.T) {
	env := setupTestEnv(t)
	product := env.seedProduct(t, "Augmentin 625mg")
	other := env.seedProduct(t, "Flagyl 400mg")
	env.seedBatch(t, product.ID, "A1", 20, "90.00")
	env.seedBatch(t, other.ID, "F1", 3, "40.00")
	customer := env.seedCounterparty(t, "Mehran Medical", models.RoleCustomer)

	_, err := env.orders.CreateSale(context.Background(), &CreateSaleRequest{
		InvoiceNumber:  "INV-003",
		CounterpartyID: customer.ID,
		Items: []SaleItemRequest{
			{ProductID: product.ID, BatchNumber: "A1", Units: 10, UnitPrice: "120.00"},
			{ProductID: other.ID, BatchNumber: "F1", Units: 5, UnitPrice: "60.00"},
		},
		CreatedBy: 1,
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInsufficientStock, apperrors.KindOf(err))

	// the first line's deduction must have rolled back with the rest
	assert.Equal(t, int32(20), env.batchStock(t, product.ID, "A1"))
	assert.Equal(t, int32(3), env.batchStock(t, other.ID, "F1"))

	var orderCount, movementCount int64
	require.NoError(t, env.db.Model(&models.Order{}).Count(&orderCount).Error)
	require.NoError(t, env.db.Model(&models.StockMovement{}).Count(&movementCount).Error)
	assert.Zero(t, orderCount)
	assert.Zero(t, movementCount)

	reloaded := env.counterparty(t, customer.ID)
	assert.Equal(t, "0.00", reloaded.Receive)
}

func TestCreateSaleDuplicateInvoice(t *testing.T) {
	env := setupTestEnv(t)
	product := env.seedProduct(t, "Disprin")
	env.seedBatch(t, product.ID, "D1", 100, "5.00")
	customer := env.seedCounterparty(t, "Corner Store", models.RoleCustomer)

	req := &CreateSaleRequest{
		InvoiceNumber:  "INV-DUP",
		CounterpartyID: customer.ID,
		Items: []SaleItemRequest{
			{ProductID: product.ID, BatchNumber: "D1", Units: 1, UnitPrice: "10.00"},
		},
		PaidAmount: "10.00",
		CreatedBy:  1,
	}
	_, err := env.orders.CreateSale(context.Background(), req)
	require.NoError(t, err)

	_, err = env.orders.CreateSale(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
}

func TestCreatePurchase(t *testing.T) {
	env := setupTestEnv(t)
	product := env.seedProduct(t, "Ciproxin 500mg")
	supplier := env.seedCounterparty(t, "Getz Pharma", models.RoleSupplier)

	resp, err := env.orders.CreatePurchase(context.Background(), &CreatePurchaseRequest{
		InvoiceNumber:  "PO-001",
		CounterpartyID: supplier.ID,
		Items: []PurchaseItemRequest{
			{
				ProductID:   product.ID,
				BatchNumber: "CP-01",
				Units:       50,
				UnitCost:    "80.00",
				RetailPrice: "120.00",
				ExpiryDate:  time.Now().AddDate(2, 0, 0),
			},
		},
		PaidAmount: "1000.00",
		CreatedBy:  1,
	})
	require.NoError(t, err)

	// 50 * 80 = 4000 total, 1000 paid, 3000 due to the supplier
	assert.Equal(t, "4000.00", resp.Order.Total)
	assert.Equal(t, "3000.00", resp.Order.DueAmount)
	assert.Equal(t, int32(50), env.batchStock(t, product.ID, "CP-01"))

	reloaded := env.counterparty(t, supplier.ID)
	assert.Equal(t, "3000.00", reloaded.Pay)
	assert.Equal(t, "0.00", reloaded.Receive)
}

func TestSaleReturnRestoresStockAndBalance(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	product := env.seedProduct(t, "Calpol Syrup")
	env.seedBatch(t, product.ID, "C1", 30, "60.00")
	customer := env.seedCounterparty(t, "Sehat Pharmacy", models.RoleCustomer)

	sale, err := env.orders.CreateSale(ctx, &CreateSaleRequest{
		InvoiceNumber:  "INV-RET",
		CounterpartyID: customer.ID,
		Items: []SaleItemRequest{
			{ProductID: product.ID, BatchNumber: "C1", Units: 10, UnitPrice: "100.00"},
		},
		CreatedBy: 1,
	})
	require.NoError(t, err)
	require.Equal(t, "1000.00", env.counterparty(t, customer.ID).Receive)

	itemID := sale.Order.OrderItems[0].ID
	resp, err := env.orders.ReturnByInvoice(ctx, &ReturnByInvoiceRequest{
		InvoiceNumber: "INV-RET",
		Lines:         []ReturnLineRequest{{OrderItemID: itemID, Units: 4}},
		CreatedBy:     1,
	})
	require.NoError(t, err)

	// refund = 1000 / 10 * 4 = 400
	assert.Equal(t, "400.00", resp.RefundTotal)
	assert.Equal(t, models.OrderTypeSaleReturn, resp.ReturnOrder.Type)
	require.NotNil(t, resp.ReturnOrder.ReturnOf)
	assert.Equal(t, sale.Order.ID, *resp.ReturnOrder.ReturnOf)

	assert.Equal(t, int32(24), env.batchStock(t, product.ID, "C1"))
	assert.Equal(t, "600.00", env.counterparty(t, customer.ID).Receive)

	var item models.OrderItem
	require.NoError(t, env.db.First(&item, itemID).Error)
	assert.Equal(t, int32(4), item.ReturnedUnits)

	// returning more than what is left must fail
	_, err = env.orders.ReturnByInvoice(ctx, &ReturnByInvoiceRequest{
		InvoiceNumber: "INV-RET",
		Lines:         []ReturnLineRequest{{OrderItemID: itemID, Units: 7}},
		CreatedBy:     1,
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestFullReturnMarksOriginalReturned(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	product := env.seedProduct(t, "Ventolin Inhaler")
	env.seedBatch(t, product.ID, "V1", 10, "200.00")
	customer := env.seedCounterparty(t, "Clinic", models.RoleCustomer)

	sale, err := env.orders.CreateSale(ctx, &CreateSaleRequest{
		InvoiceNumber:  "INV-FULL",
		CounterpartyID: customer.ID,
		Items: []SaleItemRequest{
			{ProductID: product.ID, BatchNumber: "V1", Units: 6, UnitPrice: "250.00"},
		},
		CreatedBy: 1,
	})
	require.NoError(t, err)

	_, err = env.orders.ReturnByInvoice(ctx, &ReturnByInvoiceRequest{
		InvoiceNumber: "INV-FULL",
		Lines:         []ReturnLineRequest{{OrderItemID: sale.Order.OrderItems[0].ID, Units: 6}},
		CreatedBy:     1,
	})
	require.NoError(t, err)

	var original models.Order
	require.NoError(t, env.db.First(&original, sale.Order.ID).Error)
	assert.Equal(t, models.OrderStatusReturned, original.Status)
	assert.Equal(t, int32(10), env.batchStock(t, product.ID, "V1"))
	assert.Equal(t, "0.00", env.counterparty(t, customer.ID).Receive)
}

func TestPurchaseReturnDeductsStock(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	product := env.seedProduct(t, "Amoxil 250mg")
	supplier := env.seedCounterparty(t, "GSK", models.RoleSupplier)

	purchase, err := env.orders.CreatePurchase(ctx, &CreatePurchaseRequest{
		InvoiceNumber:  "PO-RET",
		CounterpartyID: supplier.ID,
		Items: []PurchaseItemRequest{
			{ProductID: product.ID, BatchNumber: "AM-1", Units: 20, UnitCost: "50.00", RetailPrice: "75.00", ExpiryDate: time.Now().AddDate(1, 6, 0)},
		},
		CreatedBy: 1,
	})
	require.NoError(t, err)
	require.Equal(t, "1000.00", env.counterparty(t, supplier.ID).Pay)

	resp, err := env.orders.ReturnByInvoice(ctx, &ReturnByInvoiceRequest{
		InvoiceNumber: "PO-RET",
		Lines:         []ReturnLineRequest{{OrderItemID: purchase.Order.OrderItems[0].ID, Units: 8}},
		CreatedBy:     1,
	})
	require.NoError(t, err)

	assert.Equal(t, models.OrderTypePurchaseReturn, resp.ReturnOrder.Type)
	assert.Equal(t, "400.00", resp.RefundTotal)
	assert.Equal(t, int32(12), env.batchStock(t, product.ID, "AM-1"))
	assert.Equal(t, "600.00", env.counterparty(t, supplier.ID).Pay)
}

func TestDeleteSaleRestoresStockAndBalance(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	product := env.seedProduct(t, "Flagyl 200mg")
	env.seedBatch(t, product.ID, "FL-1", 40, "30.00")
	customer := env.seedCounterparty(t, "Noor Medical", models.RoleCustomer)

	sale, err := env.orders.CreateSale(ctx, &CreateSaleRequest{
		InvoiceNumber:  "INV-DEL",
		CounterpartyID: customer.ID,
		Items: []SaleItemRequest{
			{ProductID: product.ID, BatchNumber: "FL-1", Units: 15, UnitPrice: "50.00"},
		},
		CreatedBy: 1,
	})
	require.NoError(t, err)
	require.Equal(t, int32(25), env.batchStock(t, product.ID, "FL-1"))

	require.NoError(t, env.orders.DeleteOrder(ctx, sale.Order.ID, 1))

	assert.Equal(t, int32(40), env.batchStock(t, product.ID, "FL-1"))
	assert.Equal(t, "0.00", env.counterparty(t, customer.ID).Receive)

	var orderCount, itemCount int64
	require.NoError(t, env.db.Model(&models.Order{}).Count(&orderCount).Error)
	require.NoError(t, env.db.Model(&models.OrderItem{}).Count(&itemCount).Error)
	assert.Zero(t, orderCount)
	assert.Zero(t, itemCount)
}

func TestDeleteOrderRejectsRecovered(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	product := env.seedProduct(t, "Risek 20mg")
	env.seedBatch(t, product.ID, "R1", 10, "20.00")
	customer := env.seedCounterparty(t, "Haji Store", models.RoleCustomer)

	sale, err := env.orders.CreateSale(ctx, &CreateSaleRequest{
		InvoiceNumber:  "INV-REC",
		CounterpartyID: customer.ID,
		Items: []SaleItemRequest{
			{ProductID: product.ID, BatchNumber: "R1", Units: 2, UnitPrice: "40.00"},
		},
		CreatedBy: 1,
	})
	require.NoError(t, err)

	_, err = env.orders.ProcessPayment(ctx, &ProcessPaymentRequest{
		OrderID: sale.Order.ID, Amount: "80.00", RecordedBy: 1,
	})
	require.NoError(t, err)

	err = env.orders.DeleteOrder(ctx, sale.Order.ID, 1)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
}

func TestProcessPayment(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	product := env.seedProduct(t, "Panadol Extra")
	env.seedBatch(t, product.ID, "PX-1", 100, "12.00")
	customer := env.seedCounterparty(t, "Madina Pharmacy", models.RoleCustomer)

	sale, err := env.orders.CreateSale(ctx, &CreateSaleRequest{
		InvoiceNumber:  "INV-PAY",
		CounterpartyID: customer.ID,
		Items: []SaleItemRequest{
			{ProductID: product.ID, BatchNumber: "PX-1", Units: 50, UnitPrice: "20.00"},
		},
		CreatedBy: 1,
	})
	require.NoError(t, err)
	require.Equal(t, "1000.00", sale.Order.DueAmount)

	resp, err := env.orders.ProcessPayment(ctx, &ProcessPaymentRequest{
		OrderID: sale.Order.ID, Amount: "600.00", RecordedBy: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "400.00", resp.DueAmount)
	assert.NotEqual(t, models.OrderStatusRecovered, resp.Order.Status)
	assert.Equal(t, "400.00", env.counterparty(t, customer.ID).Receive)
	assert.Equal(t, "600.00", resp.Recovery.Amount)

	resp, err = env.orders.ProcessPayment(ctx, &ProcessPaymentRequest{
		OrderID: sale.Order.ID, Amount: "400.00", RecordedBy: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "0.00", resp.DueAmount)
	assert.Equal(t, models.OrderStatusRecovered, resp.Order.Status)
	assert.Equal(t, "0.00", env.counterparty(t, customer.ID).Receive)

	// nothing left to pay
	_, err = env.orders.ProcessPayment(ctx, &ProcessPaymentRequest{
		OrderID: sale.Order.ID, Amount: "1.00", RecordedBy: 2,
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))

	// overpayment rejected up front
	var recoveries int64
	require.NoError(t, env.db.Model(&models.Recovery{}).Count(&recoveries).Error)
	assert.Equal(t, int64(2), recoveries)
}

func TestCreateEstimateTouchesNothing(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	customer := env.seedCounterparty(t, "Prospect", models.RoleCustomer)
	name := "Unlisted Tonic"

	order, err := env.orders.CreateEstimate(ctx, &CreateEstimateRequest{
		InvoiceNumber:  "EST-001",
		CounterpartyID: customer.ID,
		Items: []EstimateItemRequest{
			{EstimateName: &name, Units: 3, UnitPrice: "90.00"},
		},
		CreatedBy: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, models.OrderTypeEstimated, order.Type)
	assert.Equal(t, "270.00", order.Total)
	assert.Equal(t, "0.00", order.DueAmount)

	reloaded := env.counterparty(t, customer.ID)
	assert.Equal(t, "0.00", reloaded.Receive)

	var movements int64
	require.NoError(t, env.db.Model(&models.StockMovement{}).Count(&movements).Error)
	assert.Zero(t, movements)
}
