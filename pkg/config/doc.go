// Package config provides application configuration management.
//
// # Overview
//
// Configuration starts from defaults, applies the YAML file named by
// BILLING_CONFIG_FILE when set, and finally applies environment variables,
// which always win.
//
// # Configuration Structure
//
// Pricing and periods:
//
//	BILLING_PRICE_USD="49"
//	BILLING_MARGIN_FX="0.02"
//	BILLING_CURRENCY_ID="ARS"
//	BILLING_EXPIRES_H="48"
//	BILLING_REPRICE_ON_REGENERATE="false"
//	BILLING_TIMEZONE="America/Argentina/Buenos_Aires"
//
// Payment gateway:
//
//	MP_ACCESS_TOKEN=""            # empty selects the demo adapter
//	MP_USE_SANDBOX="false"
//	BILLING_FX_OFFSET="-03:00"
//	BILLING_BACK_URL_BASE="https://app.example.com"
//
// Storage:
//
//	BILLING_STORE="redis"  # redis, postgres, firestore
//	BILLING_REDIS_URL="redis://localhost:6379/0"
//	BILLING_POSTGRES_URL="postgres://localhost/billing?sslmode=disable"
//	BILLING_FIRESTORE_PROJECT="my-project"
//
// Server and observability:
//
//	BILLING_PORT="8080"
//	BILLING_BEARER_TOKEN="..."
//	BILLING_LOG_LEVEL="info"  # debug, info, warn, error
//	BILLING_OTEL_ENABLED="true"
//
// The same settings in YAML:
//
//	billing:
//	  price_usd: 49
//	  link_ttl: 48h
//	storage:
//	  type: postgres
//	  postgres_url: postgres://localhost/billing
package config
