// Package config содержит логику чтения конфигурации сервиса витрины.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса витрины.
type Config struct {
	RunAddress      string `env:"RUN_ADDRESS"`
	DatabaseURI     string `env:"DATABASE_URI"`
	CatalogAddress  string `env:"CATALOG_ADDRESS"`
	NotifierAddress string `env:"NOTIFIER_ADDRESS"`
	AuthSecret      string `env:"AUTH_SECRET"`
	CartMaxItems    int    `env:"CART_MAX_ITEMS"`
	CartMaxTotal    int64  `env:"CART_MAX_TOTAL"`
	FiatRateCents   int64  `env:"FIAT_RATE_CENTS"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envCatalogAddress := cfg.CatalogAddress
	envNotifierAddress := cfg.NotifierAddress
	envAuthSecret := cfg.AuthSecret
	envCartMaxItems := cfg.CartMaxItems
	envCartMaxTotal := cfg.CartMaxTotal
	envFiatRate := cfg.FiatRateCents

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.CatalogAddress, "c", "", "catalog service address")
	flag.StringVar(&cfg.NotifierAddress, "n", "", "notifier service address")
	flag.StringVar(&cfg.AuthSecret, "s", "storefront-secret", "secret key for auth cookies")
	flag.IntVar(&cfg.CartMaxItems, "max-items", 25, "maximum items per cart")
	flag.Int64Var(&cfg.CartMaxTotal, "max-total", 1_000_000, "maximum cart total in units")
	flag.Int64Var(&cfg.FiatRateCents, "fiat-rate", 100, "fiat cents per one balance unit")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envCatalogAddress != "" {
		cfg.CatalogAddress = envCatalogAddress
	}
	if envNotifierAddress != "" {
		cfg.NotifierAddress = envNotifierAddress
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}
	if envCartMaxItems != 0 {
		cfg.CartMaxItems = envCartMaxItems
	}
	if envCartMaxTotal != 0 {
		cfg.CartMaxTotal = envCartMaxTotal
	}
	if envFiatRate != 0 {
		cfg.FiatRateCents = envFiatRate
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}
