package provider

import (
	"github.com/laptop-next/internal/cache"
	"github.com/laptop-next/internal/config"
	"github.com/laptop-next/internal/logger"
	"github.com/laptop-next/internal/payment/zalopay"
	"github.com/laptop-next/internal/queue"
	"github.com/laptop-next/internal/repository"
	"github.com/laptop-next/internal/service"

	"gorm.io/gorm"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	DB          *gorm.DB
	QueueClient *queue.Client

	// Repositories
	UserRepo         repository.UserRepository
	ProductRepo      repository.ProductRepository
	OrderRepo        repository.OrderRepository
	VoucherRepo      repository.VoucherRepository
	VoucherUsageRepo repository.VoucherUsageRepository
	NotificationRepo repository.NotificationRepository

	// Services
	AuthService         *service.AuthService
	ProductService      *service.ProductService
	VoucherService      *service.VoucherService
	OrderService        *service.OrderService
	PaymentService      *service.PaymentService
	NotificationService *service.NotificationService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config, db *gorm.DB) *Container {
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		DB:          db,
		QueueClient: queueClient,
	}

	c.initRepositories()
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := c.DB
	c.UserRepo = repository.NewUserRepository(db)
	c.ProductRepo = repository.NewProductRepository(db)
	c.OrderRepo = repository.NewOrderRepository(db)
	c.VoucherRepo = repository.NewVoucherRepository(db)
	c.VoucherUsageRepo = repository.NewVoucherUsageRepository(db)
	c.NotificationRepo = repository.NewNotificationRepository(db)
}

func (c *Container) initServices() {
	cfg := c.Config

	c.AuthService = service.NewAuthService(cfg, c.UserRepo)
	c.ProductService = service.NewProductService(c.ProductRepo)
	c.VoucherService = service.NewVoucherService(c.VoucherRepo, c.VoucherUsageRepo)
	c.NotificationService = service.NewNotificationService(c.NotificationRepo, c.UserRepo, c.QueueClient)

	zaloCfg := &zalopay.Config{
		AppID:       cfg.ZaloPay.AppID,
		Key1:        cfg.ZaloPay.Key1,
		Key2:        cfg.ZaloPay.Key2,
		Endpoint:    cfg.ZaloPay.Endpoint,
		CallbackURL: cfg.ZaloPay.CallbackURL,
		TimeoutMS:   cfg.ZaloPay.TimeoutMS,
	}
	var gateway service.PaymentGateway
	if cfg.ZaloPay.Enabled {
		gateway = service.NewZaloPayGateway(zaloCfg)
	}

	c.OrderService = service.NewOrderService(
		c.DB,
		c.OrderRepo,
		c.ProductRepo,
		c.VoucherService,
		c.NotificationService,
		gateway,
		c.QueueClient,
		cfg.Order.PaymentExpireMinutes,
	)
	c.PaymentService = service.NewPaymentService(c.DB, c.OrderRepo, gateway, zaloCfg, c.NotificationService)
}
