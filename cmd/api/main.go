package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/portal-api/internal/config"
	"github.com/yourusername/portal-api/internal/domain/repository"
	"github.com/yourusername/portal-api/internal/handler"
	"github.com/yourusername/portal-api/internal/middleware"
	pgRepo "github.com/yourusername/portal-api/internal/repository/postgres"
	redisRepo "github.com/yourusername/portal-api/internal/repository/redis"
	"github.com/yourusername/portal-api/internal/service"
	"github.com/yourusername/portal-api/pkg/database"
)

func main() {
	// Загружаем конфигурацию
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Загрузка конфигурации из %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к PostgreSQL
	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	// Применяем миграции
	if err := database.MigrateDB(db); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	// Redis опционален: без него Validate ходит напрямую в PostgreSQL
	var cacheRepo repository.CacheRepository
	if cfg.Redis.Addr != "" || len(cfg.Redis.Addrs) > 0 {
		redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
		if err != nil {
			log.Printf("Failed to connect to Redis: %v", err)
			os.Exit(1)
		}
		log.Println("Successfully connected to Redis")

		cacheRepo, err = redisRepo.NewCacheRepo(redisClient)
		if err != nil {
			log.Printf("Failed to initialize CacheRepo: %v", err)
			os.Exit(1)
		}
	} else {
		log.Println("Redis не сконфигурирован, кеш сессий отключен")
	}

	// Инициализируем репозитории
	userRepo := pgRepo.NewUserRepo(db)
	codeRepo := pgRepo.NewVerificationCodeRepo(db)
	sessionRepo := pgRepo.NewSessionRepo(db)

	// Инициализируем сервисы
	emailService, err := buildEmailService(cfg.Email)
	if err != nil {
		log.Printf("Failed to initialize EmailService: %v", err)
		os.Exit(1)
	}

	codeService, err := service.NewCodeService(
		codeRepo,
		time.Duration(cfg.Auth.CodeTTLMinutes)*time.Minute,
		cfg.Auth.CodeMaxAttempts,
		cfg.Auth.CodePepper,
	)
	if err != nil {
		log.Printf("Failed to initialize CodeService: %v", err)
		os.Exit(1)
	}

	sessionService, err := service.NewSessionService(
		sessionRepo,
		cacheRepo,
		time.Duration(cfg.Auth.SessionLifetimeDays)*24*time.Hour,
	)
	if err != nil {
		log.Printf("Failed to initialize SessionService: %v", err)
		os.Exit(1)
	}

	userService, err := service.NewUserService(userRepo)
	if err != nil {
		log.Printf("Failed to initialize UserService: %v", err)
		os.Exit(1)
	}

	throttleService := service.NewThrottleService(service.DefaultThrottleProfiles())

	authService, err := service.NewAuthService(
		throttleService,
		codeService,
		sessionService,
		userService,
		emailService,
	)
	if err != nil {
		log.Printf("Failed to initialize AuthService: %v", err)
		os.Exit(1)
	}

	// Контекст для фоновых задач
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Периодическая очистка просроченных сессий и кодов.
	// Для корректности не требуется: Validate и Verify сами отбрасывают
	// просроченные строки.
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweepCtx, sweepCancel := context.WithTimeout(ctx, 30*time.Second)
				if count, err := sessionService.PurgeExpired(sweepCtx); err != nil {
					log.Printf("[Maintenance] session purge failed: %v", err)
				} else if count > 0 {
					log.Printf("[Maintenance] purged %d expired sessions", count)
				}
				if count, err := codeService.PurgeExpired(sweepCtx); err != nil {
					log.Printf("[Maintenance] code purge failed: %v", err)
				} else if count > 0 {
					log.Printf("[Maintenance] purged %d expired verification codes", count)
				}
				sweepCancel()
			}
		}
	}()

	isProduction := gin.Mode() == gin.ReleaseMode

	authHandler := handler.NewAuthHandler(
		authService,
		sessionService,
		userService,
		throttleService,
		isProduction,
		time.Duration(cfg.Auth.SessionLifetimeDays)*24*time.Hour,
	)
	authMiddleware := middleware.NewAuthMiddleware(sessionService, userService)

	router := gin.Default()

	if isProduction {
		if err := router.SetTrustedProxies(nil); err != nil {
			log.Printf("Failed to set trusted proxies: %v", err)
		}
	} else {
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			log.Printf("Failed to set trusted proxies: %v", err)
		}
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := router.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/initiate", authHandler.InitiateAuth)
			auth.POST("/verify", authHandler.VerifyCode)
			auth.POST("/logout", authHandler.Logout)

			auth.GET("/me", authMiddleware.RequireAuth(), authHandler.Me)
			auth.GET("/sessions", authMiddleware.RequireAuth(), authHandler.ListSessions)
			auth.DELETE("/sessions/:id", authMiddleware.RequireAuth(), authHandler.RevokeSession)
		}

		admin := api.Group("/admin", authMiddleware.RequireAuth(), authMiddleware.AdminOnly())
		{
			admin.GET("/throttle/stats", authHandler.ThrottleStats)
		}
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Printf("Сервер запущен на порту %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Server error: %v", err)
			os.Exit(1)
		}
	}()

	// Ожидаем сигнал завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Завершение работы сервера...")

	cancel()

	// Контекст с таймаутом для graceful shutdown сервера
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Сервер остановлен")
}

func buildEmailService(cfg config.EmailConfig) (service.EmailService, error) {
	switch cfg.Provider {
	case "resend":
		return service.NewResendEmailService(cfg.ResendAPIKey, cfg.From)
	default:
		log.Println("[EmailService] провайдер почты не настроен, используется noop")
		return &service.NoopEmailService{}, nil
	}
}
