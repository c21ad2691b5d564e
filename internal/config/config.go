package config

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/corray333/backend-labs/checkout/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func MustInit() {
	if err := godotenv.Load("./.env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic("error while loading .env file: " + err.Error())
	}
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/checkout-svc")
	viper.AddConfigPath(".")
	SetDefaults()
	if err := viper.ReadInConfig(); err != nil {
		panic("error while reading config file: " + err.Error())
	}
	SetupLogger()
}

// SetDefaults registers values used when config.yaml leaves a key out.
func SetDefaults() {
	viper.SetDefault("server.http.port", "8080")
	viper.SetDefault("server.http.shutdown_timeout_seconds", 10)
	viper.SetDefault("postgres.migrations_path", "./migrations")
	viper.SetDefault("checkout.max_quantity", 20)
	viper.SetDefault("checkout.site_url", "http://localhost:3000")
	viper.SetDefault("stripe.provider_name", "stripe")
	viper.SetDefault("rabbitmq.exchange", "orders")
	viper.SetDefault("sweeper.interval_seconds", 300)
	viper.SetDefault("sweeper.stale_after_minutes", 60)
	viper.SetDefault("sweeper.batch_size", 100)
	viper.SetDefault("tracing.service_name", "checkout-svc")
}

func SetupLogger() {
	handler := logger.NewHandler(&logger.HandlerOptions{
		Level: parseLevel(viper.GetString("log.level")),
	})
	log := slog.New(handler)
	slog.SetDefault(log)
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}

	return level
}
