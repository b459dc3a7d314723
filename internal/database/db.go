package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/usman4222/Pharma-Backend-sub000/internal/database/models"
)

func NewConnection(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		log.Fatal("DSN is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to get sql.DB: %v", err)
	}

	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Product{},
		&models.Batch{},
		&models.StockMovement{},
		&models.Counterparty{},
		&models.Booker{},
		&models.Order{},
		&models.OrderItem{},
		&models.Recovery{},
		&models.Investor{},
		&models.InvestorProfitShare{},
		&models.HouseAccount{},
		&models.User{},
	)
}

// EnsureHouseAccount seeds the singleton owner account that collects
// distribution remainders.
func EnsureHouseAccount(db *gorm.DB, name string) error {
	var count int64
	if err := db.Model(&models.HouseAccount{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return db.Create(&models.HouseAccount{Name: name, Balance: "0.00"}).Error
}
