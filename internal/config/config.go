/**
 * @description
 * This package handles the configuration management for the billing-service.
 * It uses the Viper library to read configuration from environment variables
 * or an optional local .env file, providing a centralized way to manage
 * application settings.
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
	ServerPort             string `mapstructure:"SERVER_PORT"`
	DatabaseURL            string `mapstructure:"DATABASE_URL"`
	RedisURL               string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix   string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL            string `mapstructure:"RABBITMQ_URL"`
	StripeSecretKey        string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret    string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	StripePriceIDMonthly   string `mapstructure:"STRIPE_PRICE_ID_MONTHLY"`
	StripePriceIDYearly    string `mapstructure:"STRIPE_PRICE_ID_YEARLY"`
	PublicBaseURL          string `mapstructure:"PUBLIC_BASE_URL"`
	CustomerPortalURL      string `mapstructure:"CUSTOMER_PORTAL_URL"`
	AdminJWTSecret         string `mapstructure:"ADMIN_JWT_SECRET"`
	CheckoutLimitPerMinute int    `mapstructure:"CHECKOUT_RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from environment variables from the given
// path. It uses Viper to automatically bind environment variables to the
// Config struct.
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
	viper.SetDefault("PUBLIC_BASE_URL", "http://localhost:3000")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "pawsuite:rate_limit")
	viper.SetDefault("CHECKOUT_RATE_LIMIT_PER_MINUTE", 20)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("STRIPE_SECRET_KEY")
	_ = viper.BindEnv("STRIPE_WEBHOOK_SECRET")
	_ = viper.BindEnv("STRIPE_PRICE_ID_MONTHLY")
	_ = viper.BindEnv("STRIPE_PRICE_ID_YEARLY")
	_ = viper.BindEnv("PUBLIC_BASE_URL")
	_ = viper.BindEnv("CUSTOMER_PORTAL_URL")
	_ = viper.BindEnv("ADMIN_JWT_SECRET")
	_ = viper.BindEnv("CHECKOUT_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
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
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "pawsuite:rate_limit"
	}
	config.PublicBaseURL = strings.TrimRight(strings.TrimSpace(config.PublicBaseURL), "/")
	if config.CheckoutLimitPerMinute <= 0 {
		config.CheckoutLimitPerMinute = 20
	}

	return
}
