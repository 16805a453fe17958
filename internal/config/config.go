package config

import (
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application settings, read from environment variables or an
// optional app.env file in the working directory.
type Config struct {
	ServerPort   string `mapstructure:"SERVER_PORT"`
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	JWTSecret    string `mapstructure:"JWT_SECRET"`
	ClientOrigin string `mapstructure:"CLIENT_ORIGIN"`

	// Pricing constants, read at pricing time. Money values are parsed into
	// fixed-point decimals by the accessors below.
	CommissionRate    string `mapstructure:"COMMISSION_RATE"`
	BaseFare          string `mapstructure:"BASE_FARE"`
	PerKmRate         string `mapstructure:"PER_KM_RATE"`
	DefaultDistanceKm string `mapstructure:"DEFAULT_DISTANCE_KM"`

	// Default coordinates used when a delivery carries no geocoded position.
	DefaultLat float64 `mapstructure:"DEFAULT_LAT"`
	DefaultLng float64 `mapstructure:"DEFAULT_LNG"`

	// Notifications older than this many days are purged by the sweeper.
	NotificationRetentionDays int `mapstructure:"NOTIFICATION_RETENTION_DAYS"`

	// AMQPURL, when set, backs the realtime bus with RabbitMQ so events reach
	// sessions on other processes. Empty selects the in-process bus.
	AMQPURL string `mapstructure:"AMQP_URL"`

	// AWSRegion and EmailFrom, when both set, enable the SES email channel on
	// the notification dispatcher.
	AWSRegion string `mapstructure:"AWS_REGION"`
	EmailFrom string `mapstructure:"EMAIL_FROM"`
}

// LoadConfig reads configuration from the given directory and the environment.
func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("app")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	// Unmarshal only sees keys viper knows about, so every key is bound
	// explicitly; otherwise env-only deployments (no app.env file) would
	// silently read zero values.
	for _, key := range []string{
		"SERVER_PORT", "DATABASE_URL", "JWT_SECRET", "CLIENT_ORIGIN",
		"COMMISSION_RATE", "BASE_FARE", "PER_KM_RATE", "DEFAULT_DISTANCE_KM",
		"DEFAULT_LAT", "DEFAULT_LNG", "NOTIFICATION_RETENTION_DAYS",
		"AMQP_URL", "AWS_REGION", "EMAIL_FROM",
	} {
		if err := viper.BindEnv(key); err != nil {
			return nil, err
		}
	}

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("COMMISSION_RATE", "0.15")
	viper.SetDefault("BASE_FARE", "5.00")
	viper.SetDefault("PER_KM_RATE", "2.00")
	viper.SetDefault("DEFAULT_DISTANCE_KM", "5.00")
	viper.SetDefault("DEFAULT_LAT", -22.2167)
	viper.SetDefault("DEFAULT_LNG", 30.0000)
	viper.SetDefault("NOTIFICATION_RETENTION_DAYS", 30)

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; the environment supplies everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Pricing returns the process-wide pricing constants as decimals.
func (c *Config) Pricing() (commissionRate, baseFare, perKmRate, defaultDistance decimal.Decimal, err error) {
	if commissionRate, err = decimal.NewFromString(c.CommissionRate); err != nil {
		return
	}
	if baseFare, err = decimal.NewFromString(c.BaseFare); err != nil {
		return
	}
	if perKmRate, err = decimal.NewFromString(c.PerKmRate); err != nil {
		return
	}
	defaultDistance, err = decimal.NewFromString(c.DefaultDistanceKm)
	return
}
