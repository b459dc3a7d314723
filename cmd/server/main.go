package main

import (
	"log"

	"github.com/gin-gonic/gin"

	"github.com/usman4222/Pharma-Backend-sub000/config"
	"github.com/usman4222/Pharma-Backend-sub000/internal/database"
	"github.com/usman4222/Pharma-Backend-sub000/internal/gateway/handlers"
	"github.com/usman4222/Pharma-Backend-sub000/internal/gateway/middleware"
	invhandler "github.com/usman4222/Pharma-Backend-sub000/internal/services/inventory/handler"
	ordershandler "github.com/usman4222/Pharma-Backend-sub000/internal/services/orders/handler"
	profithandler "github.com/usman4222/Pharma-Backend-sub000/internal/services/profit/handler"
	recoveryhandler "github.com/usman4222/Pharma-Backend-sub000/internal/services/recovery/handler"
	userhandler "github.com/usman4222/Pharma-Backend-sub000/internal/services/user/handler"
	"github.com/usman4222/Pharma-Backend-sub000/internal/utils"
)

func main() {
	cfg := config.LoadConfig()
	utils.JwtSecret = []byte(cfg.Auth.JWTSecret)

	db, err := database.NewConnection(cfg.DB.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	if err := database.EnsureHouseAccount(db, cfg.House.AccountName); err != nil {
		log.Fatalf("Failed to seed house account: %v", err)
	}

	redisClient := config.NewRedisClient(cfg.Redis)

	inventory := invhandler.NewInventoryHandler(db, redisClient)
	profit := profithandler.NewProfitHandler(db, redisClient)
	orders := ordershandler.NewOrdersHandler(db, redisClient, inventory, profit)
	recovery := recoveryhandler.NewRecoveryHandler(db, redisClient)
	users := userhandler.NewUserHandler(db)

	inventoryHandler := handlers.NewInventoryHTTPHandler(inventory)
	ordersHandler := handlers.NewOrdersHTTPHandler(orders)
	profitHandler := handlers.NewProfitHTTPHandler(profit)
	recoveryHandler := handlers.NewRecoveryHTTPHandler(recovery)
	userHandler := handlers.NewUserHTTPHandler(users)

	r := gin.Default()

	r.Use(middleware.CORS())
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.RateLimit())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// --- Public API Group ---
	public := r.Group("/api/v1")
	{
		auth := public.Group("/auth")
		{
			auth.POST("/login", userHandler.Login)
			auth.POST("/register", userHandler.Register)
		}
	}

	// --- Protected API Group ---
	protected := r.Group("/api/v1")
	protected.Use(middleware.JWTAuth())
	{
		products := protected.Group("/products")
		{
			products.POST("", inventoryHandler.CreateProduct)
			products.GET("", inventoryHandler.ListProducts)
			products.GET("/:id", inventoryHandler.GetProduct)
			products.PUT("/:id", inventoryHandler.UpdateProduct)
			products.GET("/:id/batches", inventoryHandler.ListBatches)
			products.GET("/:id/stock", inventoryHandler.CheckStock)
		}

		inventoryGroup := protected.Group("/inventory")
		{
			inventoryGroup.POST("/allocate", inventoryHandler.AllocateStock)
			inventoryGroup.POST("/free-sale", inventoryHandler.DeductFreeSale)
		}

		ordersGroup := protected.Group("/orders")
		{
			ordersGroup.GET("", ordersHandler.ListOrders)
			ordersGroup.GET("/:id", ordersHandler.GetOrder)
			ordersGroup.DELETE("/:id", ordersHandler.DeleteOrder)
			ordersGroup.POST("/payments", ordersHandler.ProcessPayment)
		}

		sales := protected.Group("/sales")
		{
			sales.POST("", ordersHandler.CreateSale)
		}

		purchases := protected.Group("/purchases")
		{
			purchases.POST("", ordersHandler.CreatePurchase)
		}

		estimates := protected.Group("/estimates")
		{
			estimates.POST("", ordersHandler.CreateEstimate)
		}

		returns := protected.Group("/returns")
		{
			returns.POST("", ordersHandler.ReturnByInvoice)
		}

		counterparties := protected.Group("/counterparties")
		{
			counterparties.POST("", ordersHandler.CreateCounterparty)
			counterparties.GET("", ordersHandler.ListCounterparties)
			counterparties.GET("/:id", ordersHandler.GetCounterparty)
		}

		bookers := protected.Group("/bookers")
		{
			bookers.POST("", ordersHandler.CreateBooker)
			bookers.GET("", ordersHandler.ListBookers)
		}

		recoveries := protected.Group("/recoveries")
		{
			recoveries.POST("", recoveryHandler.ApplyRecovery)
			recoveries.GET("", recoveryHandler.ListRecoveries)
		}

		investors := protected.Group("/investors")
		{
			investors.POST("", profitHandler.CreateInvestor)
			investors.GET("", profitHandler.ListInvestors)
			investors.GET("/:id", profitHandler.GetInvestor)
			investors.PUT("/:id/status", profitHandler.SetInvestorStatus)
		}

		profitGroup := protected.Group("/profit")
		{
			profitGroup.GET("/statements/:month", profitHandler.MonthlyStatement)
		}
	}

	log.Printf("Server listening on :%s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
