package router

import (
	"retailcore/internal/config"
	"retailcore/internal/handler"
	"retailcore/internal/infra"
	"retailcore/internal/middleware"
	"retailcore/internal/repository"
	"retailcore/internal/service"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Deps are the process-wide components built in main.
type Deps struct {
	Executor *infra.Executor
	Redis    *redis.Client
	Events   service.EventNotifier
	Feed     handler.OrderFeed
	Broker   *infra.CircuitBreaker // nil when no broker is configured
	Limiter  *middleware.Limiter
}

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← Executor/Redis
func New(cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler())
	if d.Limiter != nil {
		r.Use(middleware.RateLimiter(d.Limiter))
	}

	// ── Repositories ─────────────────────────────────────────────────────────
	orderRepo := repository.NewOrderRepository()
	inventoryRepo := repository.NewInventoryRepository()
	catalogRepo := repository.NewCatalogRepository()

	// ── Services ─────────────────────────────────────────────────────────────
	orderSvc := service.NewOrderService(d.Executor, orderRepo, inventoryRepo, catalogRepo, d.Events)
	inventorySvc := service.NewInventoryService(d.Executor, inventoryRepo, catalogRepo)

	// ── Handlers ─────────────────────────────────────────────────────────────
	shopH := handler.NewShopOrdersHandler(orderSvc)
	ordersH := handler.NewOrdersHandler(orderSvc)
	inventoryH := handler.NewInventoryHandler(inventorySvc)
	eventsH := handler.NewEventsHandler(d.Feed)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(d.Executor.DB(), d.Redis, d.Broker))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Protected routes: every request is bound to the token's tenant.
	v1 := r.Group("/v1", middleware.JWTAuth(cfg.JWTSecret), middleware.TenantScope())
	{
		shop := v1.Group("/shop/orders", middleware.RequireRole(middleware.RoleCustomer))
		{
			shop.POST("", shopH.PlaceOrder)
			shop.GET("", shopH.ListMine)
			shop.GET("/:id", shopH.GetMine)
			shop.POST("/:id/cancel", shopH.Cancel)
		}

		orders := v1.Group("/orders", middleware.RequireRole(middleware.RoleStaff, middleware.RoleManager, middleware.RoleAdmin))
		{
			orders.GET("", ordersH.List)
			orders.GET("/events", eventsH.Stream)
			orders.GET("/:id", ordersH.Get)
			orders.PATCH("/:id/status", ordersH.UpdateStatus)
		}

		inv := v1.Group("/inventory", middleware.RequireRole(middleware.RoleManager, middleware.RoleAdmin))
		{
			inv.POST("/adjust", inventoryH.Adjust)
			inv.GET("/movements", inventoryH.Movements)
		}
	}

	// Swagger UI, only enabled outside production
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
