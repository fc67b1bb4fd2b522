package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/example/ec-shop/internal/api"
	"github.com/example/ec-shop/internal/auth"
	"github.com/example/ec-shop/internal/catalog"
	"github.com/example/ec-shop/internal/config"
	"github.com/example/ec-shop/internal/email"
	"github.com/example/ec-shop/internal/infrastructure/kafka"
	"github.com/example/ec-shop/internal/infrastructure/store"
	"github.com/example/ec-shop/internal/orders"
	"github.com/example/ec-shop/internal/otp"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[API] Configuration error: %v", err)
	}
	if err := cfg.RequireJWTSecret(); err != nil {
		log.Fatalf("[API] Configuration error: %v", err)
	}

	log.Println("[API] ========================================")
	log.Println("[API] EC Shop API")
	log.Println("[API] ========================================")
	log.Printf("[API] Kafka: %v", cfg.KafkaBrokers)
	log.Printf("[API] Topic: %s", cfg.KafkaTopic)
	log.Printf("[API] OTP backend: %s", cfg.OTPBackend)

	db, err := store.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[API] Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()
	if err := store.Migrate(db); err != nil {
		log.Fatalf("[API] Failed to run migrations: %v", err)
	}
	log.Println("[API] Connected to PostgreSQL")

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()

	userStore := store.NewUserStore(db)
	productStore := store.NewProductStore(db)
	categoryStore := store.NewCategoryStore(db)
	orderStore := store.NewOrderStore(db)

	otpStore, err := newOTPStore(ctx, cfg)
	if err != nil {
		log.Fatalf("[API] Failed to initialize OTP store: %v", err)
	}
	otpService := otp.NewService(otpStore)
	otp.StartSweeper(ctx, otpStore, 10*time.Minute)

	emailService := email.NewService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenExpiry, cfg.RefreshTokenExpiry)

	ordersService := orders.NewService(orderStore, productStore, producer)
	catalogService := catalog.NewService(productStore, categoryStore)

	authHandlers := api.NewAuthHandlers(userStore, otpService, emailService, jwtService)
	orderHandlers := api.NewOrderHandlers(ordersService)
	catalogHandlers := api.NewCatalogHandlers(catalogService)
	router := api.NewRouter(authHandlers, orderHandlers, catalogHandlers, jwtService)

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	go func() {
		log.Printf("[API] Server started on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[API] Server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[API] Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
}

func newOTPStore(ctx context.Context, cfg *config.Config) (otp.Store, error) {
	if cfg.OTPBackend == config.OTPBackendDynamo {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		return otp.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.OTPDynamoTable), nil
	}
	return otp.NewMemoryStore(), nil
}
