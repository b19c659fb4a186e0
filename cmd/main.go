/**
 * @description
 * This is the main entry point for the billing-service. It is responsible for
 * initializing all components of the service, including configuration, the
 * payment processor client, the event producer, the rate limiter, the core
 * application service, and the HTTP server. It wires everything together and
 * starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/redis/go-redis/v9: Redis client for distributed rate limiting.
 * - internal/api, internal/app, internal/config: Internal packages for the service.
 * - pkg/stripeclient: Client for the payment processor API.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lumenpay/billing-service/internal/api"
	"github.com/lumenpay/billing-service/internal/app"
	"github.com/lumenpay/billing-service/internal/config"
	"github.com/lumenpay/billing-service/pkg/rabbitmq"
	"github.com/lumenpay/billing-service/pkg/stripeclient"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.StripeAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"stripe api key must be configured\" env=STRIPE_API_KEY")
	}

	log.Printf("level=info component=bootstrap msg=\"starting billing-service\" port=%s", cfg.ServerPort)

	// Initialize the client for the payment processor, the system of record
	// for customer balances and payment intents.
	stripeClient := stripeclient.NewClient(cfg.StripeAPIKey, cfg.StripeAPIBaseURL)
	if cfg.StripeAPIBaseURL != "" {
		log.Printf("level=info component=bootstrap msg=\"stripe api base url overridden\" base_url=%s", cfg.StripeAPIBaseURL)
	}

	// Initialize the RabbitMQ producer to publish billing events. The service
	// must keep serving payments when the broker is down, so failures degrade
	// to a no-op publisher.
	var producer rabbitmq.Publisher
	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"rabbitmq url missing; billing events disabled\" env=RABBITMQ_URL")
		producer = &rabbitmq.EventProducerFallback{}
	} else if eventProducer, prodErr := rabbitmq.NewEventProducer(cfg.RabbitMQURL); prodErr != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", prodErr)
		producer = &rabbitmq.EventProducerFallback{}
	} else {
		producer = eventProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}
	defer producer.Close()

	// Initialize the core application service with its dependencies.
	billingService := app.NewService(stripeClient, producer, cfg.PortalBaseURL)
	billingService.ConfigureRateLimits(cfg.TopUpRateLimitPerMinute, cfg.CreditRateLimitPerMin)

	// Optional Redis-backed rate limiting for the mutating endpoints.
	var redisClient *redis.Client
	rateLimitingEnabled := cfg.TopUpRateLimitPerMinute > 0 || cfg.CreditRateLimitPerMin > 0
	if rateLimitingEnabled {
		if cfg.RedisURL == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient = redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
					redisClient = nil
				} else {
					defer redisClient.Close()
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}
	if redisClient != nil {
		billingService.SetRateLimiter(app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix))
	}

	// Initialize the API handlers and router.
	billingHandlers := api.NewBillingHandlers(billingService)
	if cfg.PortalJWKSURL == "" {
		log.Println("level=warn component=bootstrap msg=\"portal jwks url missing; api endpoints are unauthenticated\" env=PORTAL_JWKS_URL")
	}
	router := api.BillingRoutes(billingHandlers, cfg.PortalJWKSURL)

	// Start the HTTP server.
	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
