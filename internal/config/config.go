package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type PushConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	AccessToken string        `mapstructure:"access_token"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type DispatchConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Queue        string        `mapstructure:"queue"`
}

type ReconcileConfig struct {
	Schedule      string        `mapstructure:"schedule"`
	ReceiptWindow time.Duration `mapstructure:"receipt_window"`
}

type EmailConfig struct {
	From            string   `mapstructure:"from"`
	SMTPHost        string   `mapstructure:"smtp_host"`
	SMTPPort        int      `mapstructure:"smtp_port"`
	Username        string   `mapstructure:"username"`
	Password        string   `mapstructure:"password"`
	AlertRecipients []string `mapstructure:"alert_recipients"`
}

type Config struct {
	DatabaseURL string          `mapstructure:"database_url"`
	ServerPort  string          `mapstructure:"server_port"`
	JWTSecret   string          `mapstructure:"jwt_secret"`
	RedisURL    string          `mapstructure:"redis_url"`
	RabbitMQURL string          `mapstructure:"rabbitmq_url"`
	Push        PushConfig      `mapstructure:"push"`
	Dispatch    DispatchConfig  `mapstructure:"dispatch"`
	Reconcile   ReconcileConfig `mapstructure:"reconcile"`
	Email       EmailConfig     `mapstructure:"email"`
}

// Load reads the configuration from a YAML file and returns a Config instance.
func Load() *Config {
	v := viper.New()

	// Look for config in the current directory and ./config
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		log.Fatalf("Error unmarshalling config: %v", err)
	}

	// Fallback defaults
	if config.ServerPort == "" {
		config.ServerPort = "8080"
	}

	if config.JWTSecret == "" {
		log.Fatal("JWT secret must be set in the config file")
	}

	if config.Dispatch.PollInterval == 0 {
		config.Dispatch.PollInterval = 15 * time.Second
	}
	if config.Dispatch.Queue == "" {
		config.Dispatch.Queue = "notifications.dispatch"
	}
	if config.Reconcile.Schedule == "" {
		config.Reconcile.Schedule = "@hourly"
	}
	if config.Reconcile.ReceiptWindow == 0 {
		config.Reconcile.ReceiptWindow = 24 * time.Hour
	}
	if config.Email.SMTPPort == 0 {
		config.Email.SMTPPort = 587
	}

	return &config
}
