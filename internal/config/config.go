/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the billing-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort              string `mapstructure:"SERVER_PORT"`
	StripeAPIKey            string `mapstructure:"STRIPE_API_KEY"`
	StripeAPIBaseURL        string `mapstructure:"STRIPE_API_BASE_URL"`
	PortalBaseURL           string `mapstructure:"PORTAL_BASE_URL"`
	PortalJWKSURL           string `mapstructure:"PORTAL_JWKS_URL"`
	RabbitMQURL             string `mapstructure:"RABBITMQ_URL"`
	RedisURL                string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix    string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	TopUpRateLimitPerMinute int    `mapstructure:"TOPUP_RATE_LIMIT_PER_MINUTE"`
	CreditRateLimitPerMin   int    `mapstructure:"CREDIT_RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("PORTAL_BASE_URL", "http://localhost:8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "billing:rate_limit")
	viper.SetDefault("TOPUP_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("CREDIT_RATE_LIMIT_PER_MINUTE", 30)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("STRIPE_API_KEY", "STRIPE_API_KEY", "STRIPE_SECRET_KEY")
	_ = viper.BindEnv("STRIPE_API_BASE_URL")
	_ = viper.BindEnv("PORTAL_BASE_URL")
	_ = viper.BindEnv("PORTAL_JWKS_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "BILLING_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("TOPUP_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("CREDIT_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.StripeAPIKey = strings.TrimSpace(config.StripeAPIKey)
	if config.StripeAPIKey == "" {
		config.StripeAPIKey = strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY"))
	}
	config.StripeAPIBaseURL = strings.TrimSpace(config.StripeAPIBaseURL)
	config.PortalBaseURL = strings.TrimRight(strings.TrimSpace(config.PortalBaseURL), "/")
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "billing:rate_limit"
	}

	if config.TopUpRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative top-up rate limit configured; disabling\" limit=%d", config.TopUpRateLimitPerMinute)
		config.TopUpRateLimitPerMinute = 0
	}
	if config.CreditRateLimitPerMin < 0 {
		log.Printf("level=warn component=config msg=\"negative credit rate limit configured; disabling\" limit=%d", config.CreditRateLimitPerMin)
		config.CreditRateLimitPerMin = 0
	}

	return
}
