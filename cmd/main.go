package main

import (
	"context"
	"database/sql"
	"fashion-store-backend/config"
	"fashion-store-backend/internal/api/admin"
	"fashion-store-backend/internal/api/order"
	"fashion-store-backend/internal/api/payment"
	"fashion-store-backend/internal/api/product"
	"fashion-store-backend/internal/api/user"
	"fashion-store-backend/internal/cache"
	"fashion-store-backend/internal/errors"
	"fashion-store-backend/internal/gateway"
	"fashion-store-backend/internal/middleware"
	"fashion-store-backend/internal/queue"
	"fashion-store-backend/internal/repository/mysql"
	"fashion-store-backend/internal/service"
	"fashion-store-backend/internal/storage"
	"fashion-store-backend/internal/util"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	_ "github.com/go-sql-driver/mysql"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			util.Logger.Error("程序发生严重错误", zap.Any("error", r))
		}
	}()

	// 初始化配置
	config.Init()
	cfg := config.AppConfig

	// 初始化日志
	util.InitLogger(cfg.LogLevel)
	defer util.Logger.Sync()

	util.Logger.Info("应用程序启动")

	db := openDB(cfg)
	defer db.Close()

	// 注册自定义验证器
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		util.RegisterValidators(v)
	}

	// Redis 不可用时降级：不做幂等、限流和浏览记录
	var (
		appCache cache.Cache
		rdb      *rd.Client
		scripter rd.Scripter
	)
	if client, err := cache.NewClient(context.Background(), cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB); err != nil {
		util.Logger.Warn("Redis 连接失败，缓存功能已关闭", zap.Error(err), zap.String("addr", cfg.RedisAddr))
	} else {
		rdb = client
		scripter = client
		appCache = cache.NewRedisCache(client)
		defer rdb.Close()
		util.Logger.Info("Redis 连接成功")
	}

	// 发票存储失败时不影响下单
	var invoices service.InvoiceIssuer
	orderRepo := mysql.NewOrderRepository(db)
	uploader, err := storage.New(context.Background(), storage.Options{
		Driver:             cfg.StorageDriver,
		LocalPath:          cfg.LocalStoragePath,
		S3Region:           cfg.S3Region,
		S3Bucket:           cfg.S3Bucket,
		GCSProjectID:       cfg.GCSProjectID,
		GCSBucketName:      cfg.GCSBucketName,
		GCSCredentialsFile: cfg.GCSCredentialsFile,
	})
	if err != nil {
		util.Logger.Error("初始化发票存储失败，发票功能已关闭", zap.Error(err), zap.String("driver", cfg.StorageDriver))
	} else {
		invoices = service.NewInvoiceService(uploader, orderRepo, cfg.StoreName)
	}

	// 初始化存储库和服务
	userRepo := mysql.NewUserRepository(db)
	productRepo := mysql.NewProductRepository(db)
	loyaltyRepo := mysql.NewLoyaltyRepository(db)
	outboxRepo := mysql.NewOutboxRepository(db)
	uow := mysql.NewUnitOfWork(db)

	userService := service.NewUserService(userRepo, appCache)
	emailService := service.NewEmailService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.StoreName)
	whatsappService := service.NewWhatsAppService(cfg.WhatsAppEnabled)
	notificationService := service.NewNotificationService(outboxRepo, userRepo, emailService, whatsappService, cfg.StoreName, cfg.FrontendURL)
	inventoryService := service.NewInventoryService(orderRepo, productRepo, uow)
	loyaltyService := service.NewLoyaltyService(loyaltyRepo, orderRepo, uow, cfg.LoyaltyRate)

	orderService := service.NewOrderService(service.OrderServiceDeps{
		Orders:            orderRepo,
		Products:          productRepo,
		Users:             userRepo,
		UnitOfWork:        uow,
		Inventory:         inventoryService,
		Loyalty:           loyaltyService,
		Notifier:          notificationService,
		Invoices:          invoices,
		Cache:             appCache,
		PaymentWindow:     cfg.PaymentWindow,
		DeliveryFee:       cfg.DeliveryFee,
		FreeDeliveryAbove: cfg.FreeDeliveryAbove,
	})
	paymentService := service.NewPaymentService(service.PaymentServiceDeps{
		Orders:      orderRepo,
		UnitOfWork:  uow,
		OrderFlow:   orderService,
		Loyalty:     loyaltyService,
		Notifier:    notificationService,
		Gateway:     gateway.NewRazorpayGateway(cfg.RazorpayKeyID, cfg.RazorpayKeySecret),
		Verifier:    gateway.NewSignatureVerifier(cfg.RazorpayKeySecret),
		Currency:    cfg.Currency,
		FrontendURL: cfg.FrontendURL,
	})
	productService := service.NewProductService(productRepo, appCache)
	statsService := service.NewStatsService(userRepo, orderRepo)
	adminService := service.NewAdminService(orderService, loyaltyService, inventoryService, statsService, outboxRepo)

	// 后台任务
	jobsCtx, stopJobs := context.WithCancel(context.Background())
	var jobs sync.WaitGroup

	var sink queue.Sink = queue.NewDirectSink(notificationService)
	if cfg.KafkaEnabled() {
		producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		sink = producer

		consumer := queue.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, notificationService, appCache)
		defer consumer.Close()
		jobs.Add(1)
		go func() {
			defer jobs.Done()
			if err := consumer.Run(jobsCtx); err != nil {
				util.Logger.Error("通知消费者退出", zap.Error(err))
			}
		}()
		util.Logger.Info("通知经 Kafka 投递", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	relay := queue.NewRelay(outboxRepo, sink, queue.DefaultRelayBatch, queue.DefaultRelayMaxAttempts)
	jobs.Add(1)
	go func() {
		defer jobs.Done()
		relay.Run(jobsCtx, cfg.RelayInterval)
	}()

	runEvery(jobsCtx, &jobs, "超时订单清理", cfg.SweepInterval, func(ctx context.Context) error {
		n, err := orderService.ExpirePendingOrders(ctx)
		if n > 0 {
			util.Logger.Info("已取消超时未付款订单", zap.Int("count", n))
		}
		return err
	})
	runEvery(jobsCtx, &jobs, "积分补发", cfg.BackfillInterval, func(ctx context.Context) error {
		_, err := adminService.BackfillLoyalty(ctx, 0)
		return err
	})

	// 初始化处理器
	errorAnalytics := errors.NewErrorAnalytics()
	authHandler := user.NewAuthHandler(userService)
	userHandler := user.NewUserHandler(userService)
	profileHandler := user.NewProfileHandler(userService, loyaltyService)
	orderHandler := order.NewOrderHandler(orderService)
	paymentHandler := payment.NewPaymentHandler(paymentService)
	productHandler := product.NewProductHandler(productService)
	adminHandler := admin.NewAdminHandler(adminService, errorAnalytics)

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(middleware.ErrorMonitorMiddleware(errorAnalytics))
	r.Use(middleware.RecoveryMiddleware())

	// 配置 CORS
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.FrontendURL}
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "OPTIONS"}
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Length",
		"Content-Type",
		"Authorization",
		"Idempotency-Key",
	}
	r.Use(cors.New(corsConfig))

	if cfg.StorageDriver == "" || cfg.StorageDriver == "local" {
		r.Static("/uploads", cfg.LocalStoragePath)
	}

	auth := middleware.AuthMiddleware(userService)
	requireAdmin := middleware.AdminMiddleware(userService)
	checkoutLimit := middleware.RateLimitMiddleware(scripter, "checkout", cfg.RateLimitPerMin, time.Minute)
	verifyLimit := middleware.RateLimitMiddleware(scripter, "payment_verify", cfg.RateLimitPerMin, time.Minute)

	api := r.Group("/api")
	{
		// 用户相关路由
		api.POST("/register", authHandler.Register)
		api.POST("/login", authHandler.Login)

		// 商品
		api.GET("/products/trending", productHandler.Trending)
		api.GET("/products/:id", middleware.OptionalAuthMiddleware(userService), productHandler.GetProduct)

		// 支付回调无需登录，按 IP 限流
		api.POST("/payments/verify", verifyLimit, paymentHandler.VerifyPayment)

		// 需要认证的路由
		authorized := api.Group("/")
		authorized.Use(auth)
		{
			authorized.POST("/logout", authHandler.Logout)
			authorized.GET("/profile", profileHandler.GetProfile)
			authorized.GET("/addresses", userHandler.ListAddresses)
			authorized.POST("/addresses", userHandler.CreateAddress)
			authorized.GET("/loyalty", profileHandler.GetLoyalty)
			authorized.POST("/loyalty/redeem", profileHandler.RedeemPoints)
			authorized.GET("/me/recently-viewed", productHandler.RecentlyViewed)

			authorized.POST("/orders", checkoutLimit, orderHandler.CreateOrder)
			authorized.GET("/orders", orderHandler.ListMyOrders)
			authorized.GET("/orders/:id", orderHandler.GetOrder)
			authorized.POST("/orders/:id/cancel", orderHandler.CancelOrder)
			authorized.PATCH("/orders/:id", requireAdmin, orderHandler.UpdateOrder)
			authorized.POST("/orders/payment-reminder", paymentHandler.SendPaymentReminder)

			authorized.POST("/payments/create", paymentHandler.CreatePaymentOrder)
		}

		// 管理员路由组
		adminRoutes := api.Group("/admin")
		adminRoutes.Use(auth, requireAdmin)
		{
			orderAdmin := adminRoutes.Group("/orders")
			{
				orderAdmin.GET("", orderHandler.ListOrders)
				orderAdmin.GET("/:id", orderHandler.GetOrder)
				orderAdmin.PATCH("/:id", orderHandler.UpdateOrder)
				orderAdmin.POST("/expire", adminHandler.ExpireOrders)
			}

			adminRoutes.POST("/products/:id/stock-movements", adminHandler.CreateStockMovement)
			adminRoutes.POST("/loyalty/backfill", adminHandler.BackfillLoyalty)
			adminRoutes.GET("/loyalty/reconcile", adminHandler.ReconcileLoyalty)
			adminRoutes.POST("/loyalty/reconcile", adminHandler.ReconcileLoyalty)
			adminRoutes.GET("/outbox", adminHandler.OutboxSummary)

			// 系统管理
			adminRoutes.GET("/stats", adminHandler.GetSystemStats)
			adminRoutes.GET("/errors", adminHandler.GetErrorStats)
		}
	}

	if cfg.Debug {
		for _, route := range r.Routes() {
			util.Logger.Debug("路由",
				zap.String("method", route.Method),
				zap.String("path", route.Path),
				zap.String("handler", route.Handler))
		}
	}

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		util.Logger.Info("服务器正在启动", zap.String("addr", cfg.ServerAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Logger.Fatal("启动服务器失败", zap.Error(err))
		}
	}()

	// 等待中断信号以优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	util.Logger.Info("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		util.Logger.Error("服务器强制关闭", zap.Error(err))
	}

	stopJobs()
	jobs.Wait()

	util.Logger.Info("服务器已优雅关闭")
}

func openDB(cfg config.Config) *sql.DB {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		util.Logger.Fatal("连接数据库失败", zap.Error(err))
	}

	if err := db.Ping(); err != nil {
		util.Logger.Fatal("数据库连接测试失败", zap.Error(err))
	}
	util.Logger.Info("数据库连接成功")

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db
}

// runEvery 按固定间隔执行后台任务，直到 ctx 取消
func runEvery(ctx context.Context, wg *sync.WaitGroup, name string, interval time.Duration, fn func(context.Context) error) {
	if interval <= 0 {
		util.Logger.Info("后台任务未启用", zap.String("job", name))
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := fn(ctx); err != nil && ctx.Err() == nil {
					util.Logger.Error("后台任务执行失败", zap.String("job", name), zap.Error(err))
				}
			}
		}
	}()
}
