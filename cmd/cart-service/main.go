package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/cartsync/internal/auth"
	c "github.com/fjod/cartsync/internal/cache"
	"github.com/fjod/cartsync/internal/config"
	"github.com/fjod/cartsync/internal/health"
	h "github.com/fjod/cartsync/internal/http"
	"github.com/fjod/cartsync/internal/poller"
	"github.com/fjod/cartsync/internal/product"
	"github.com/fjod/cartsync/internal/repository"
	s "github.com/fjod/cartsync/internal/service"
	"github.com/fjod/cartsync/pkg/logger"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.LoadServer()
	log := logger.New(logger.Options{Service: "cart-service", Env: cfg.AppEnv, Level: cfg.LogLevel})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Set up MongoDB connection
	mongoDB, err := repository.ConnectMongoDB(ctx, repository.MongoConfig{
		URI:                    cfg.MongoURI,
		Database:               cfg.MongoDBName,
		AppName:                "cart-service",
		ConnectTimeout:         cfg.MongoConnectTimeout,
		ServerSelectionTimeout: cfg.MongoSelectTimeout,
		MaxPoolSize:            cfg.MongoMaxPoolSize,
		MinPoolSize:            cfg.MongoMinPoolSize,
	})
	if err != nil {
		log.Error("failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	log.Info("connected to MongoDB", "db", cfg.MongoDBName)

	repo := repository.NewMongoRepository(mongoDB)
	if err := repo.CreateIndexes(ctx); err != nil {
		log.Error("failed to create cart indexes", "error", err)
		os.Exit(1)
	}
	products := product.NewMongoStore(mongoDB)
	if err := products.CreateIndexes(ctx); err != nil {
		log.Error("failed to create product indexes", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	log.Info("redis ping succeeded")

	service := s.NewCartService(repo, c.NewRedisCache(redisClient), product.NewResolver(products), log)
	tokens := auth.NewManager(auth.Config{SecretKey: cfg.JWTSecret, Issuer: "cart-service"})

	cartHandler := h.NewCartHandler(service, cfg.RequestTimeout, cfg.MaxRequestBodySize, log)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      h.NewRouter(cartHandler, tokens, h.RouterConfig{RequestTimeout: cfg.RequestTimeout}, log),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	checker := health.NewChecker(health.PingerFunc(func(ctx context.Context) error {
		return mongoDB.Client().Ping(ctx, nil)
	}), cfg.HealthInterval, log)
	grpcServer := checker.NewGRPCServer()
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		log.Error("failed to listen", "port", cfg.GRPCPort, "error", err)
		os.Exit(1)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		checker.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		log.Info("grpc health listening", "port", cfg.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("grpc serve failed", "error", err)
		}
	}()

	if len(cfg.KafkaBrokers) > 0 {
		checkout := poller.NewPoller(service, cfg.CheckoutTopic, log, cfg.KafkaBrokers...)
		defer checkout.Close()
		wg.Add(1)
		go func() {
			defer wg.Done()
			checkout.Run(ctx)
		}()
	} else {
		log.Warn("KAFKA_BROKERS not set, checkout consumer disabled")
	}

	go func() {
		log.Info("cart service starting", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down cart service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	checker.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	grpcServer.GracefulStop()
	wg.Wait()

	if err := mongoDB.Client().Disconnect(shutdownCtx); err != nil {
		log.Error("mongo disconnect failed", "error", err)
	}
	log.Info("cart service stopped")
}
