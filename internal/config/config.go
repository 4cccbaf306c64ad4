// Package config содержит логику чтения конфигурации сервиса доставки посылок.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	Port             string `env:"PORT"`
	DatabaseURI      string `env:"DATABASE_URI"`
	DatabaseUser     string `env:"DB_USER"`
	DatabasePassword string `env:"DB_PASSWORD"`
	DatabaseHost     string `env:"DB_HOST"`
	DatabaseName     string `env:"DB_NAME"`
	PaymentSecretKey string `env:"PAYMENT_SECRET_KEY"`
	PaymentAPIURL    string `env:"PAYMENT_API_ADDRESS"`
	SiteDomain       string `env:"SITE_DOMAIN"`
}

// RunAddress возвращает адрес для запуска HTTP-сервера.
func (c *Config) RunAddress() string {
	return ":" + c.Port
}

// DSN возвращает строку подключения к БД. Если DATABASE_URI не задан,
// строка собирается из отдельных переменных учётных данных.
func (c *Config) DSN() string {
	if c.DatabaseURI != "" {
		return c.DatabaseURI
	}
	if c.DatabaseUser == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s/%s",
		c.DatabaseUser, c.DatabasePassword, c.DatabaseHost, c.DatabaseName)
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envPort := cfg.Port
	envDatabaseURI := cfg.DatabaseURI
	envPaymentKey := cfg.PaymentSecretKey
	envPaymentAPI := cfg.PaymentAPIURL
	envSiteDomain := cfg.SiteDomain

	flag.StringVar(&cfg.Port, "p", "4000", "port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.PaymentSecretKey, "k", "", "payment provider secret key")
	flag.StringVar(&cfg.PaymentAPIURL, "r", "https://api.stripe.com", "payment provider API address")
	flag.StringVar(&cfg.SiteDomain, "s", "http://localhost:5173", "site domain for redirect URLs")

	flag.Parse()

	if envPort != "" {
		cfg.Port = envPort
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envPaymentKey != "" {
		cfg.PaymentSecretKey = envPaymentKey
	}
	if envPaymentAPI != "" {
		cfg.PaymentAPIURL = envPaymentAPI
	}
	if envSiteDomain != "" {
		cfg.SiteDomain = envSiteDomain
	}

	if cfg.Port == "" {
		cfg.Port = "4000"
	}
	if cfg.DatabaseHost == "" {
		cfg.DatabaseHost = "localhost:5432"
	}
	if cfg.DatabaseName == "" {
		cfg.DatabaseName = "zapshift"
	}

	return cfg, nil
}
