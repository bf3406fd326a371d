package router

import (
	"fmt"
	"strings"

	"github.com/laptop-next/internal/cache"
	"github.com/laptop-next/internal/config"
	adminhandlers "github.com/laptop-next/internal/http/handlers/admin"
	publichandlers "github.com/laptop-next/internal/http/handlers/public"
	"github.com/laptop-next/internal/logger"
	"github.com/laptop-next/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)

	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "lt"
	}
	loginRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:login", redisPrefix),
		WindowSeconds: cfg.Security.LoginRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.LoginRateLimit.MaxAttempts,
		Message:       "登录过于频繁，请稍后再试",
	}

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	apiV1 := r.Group("/api/v1")
	{
		// 公开接口
		apiV1.GET("/products", publicHandler.ListProducts)
		apiV1.GET("/products/:slug", publicHandler.GetProduct)

		// 用户认证接口
		auth := apiV1.Group("/auth")
		{
			auth.POST("/register", publicHandler.Register)
			auth.POST("/login", RateLimitMiddleware(cache.Client(), loginRule, KeyByIPAndJSONField("email")), publicHandler.Login)
		}

		// 支付回调（网关服务端调用，无需鉴权）
		apiV1.POST("/payments/zalopay/callback", publicHandler.HandleZaloPayCallback)

		// 用户接口（需鉴权）
		user := apiV1.Group("")
		user.Use(UserJWTAuthMiddleware(cfg.UserJWT.SecretKey, c.UserRepo))
		{
			user.POST("/orders", publicHandler.CreateOrder)
			user.GET("/orders", publicHandler.ListOrders)
			user.GET("/orders/:id", publicHandler.GetOrder)
			user.POST("/orders/:id/cancel", publicHandler.CancelOrder)
			user.POST("/orders/:id/pay", publicHandler.StartPayment)
			user.GET("/notifications", publicHandler.ListNotifications)
			user.POST("/notifications/:id/read", publicHandler.MarkNotificationRead)
		}

		// 管理员接口
		admin := apiV1.Group("/admin")
		admin.Use(UserJWTAuthMiddleware(cfg.UserJWT.SecretKey, c.UserRepo), AdminAuthMiddleware())
		{
			admin.GET("/orders", adminHandler.ListOrders)
			admin.GET("/orders/:id", adminHandler.GetOrder)
			admin.PUT("/orders/:id/status", adminHandler.UpdateOrderStatus)

			admin.GET("/products", adminHandler.ListProducts)
			admin.POST("/products", adminHandler.CreateProduct)
			admin.PUT("/products/:id", adminHandler.UpdateProduct)
			admin.DELETE("/products/:id", adminHandler.DeleteProduct)

			admin.GET("/vouchers", adminHandler.ListVouchers)
			admin.POST("/vouchers", adminHandler.CreateVoucher)
			admin.PUT("/vouchers/:id", adminHandler.UpdateVoucher)
			admin.DELETE("/vouchers/:id", adminHandler.DeleteVoucher)
		}
	}

	return r
}
