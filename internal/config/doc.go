// Package config handles configuration loading for bot-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${GATEWAY_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	retention:
//	  sweep_interval: "1h"
//	  delivery_retention: "168h"
//	  message_retention: "720h"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # Bot API and metrics
//
// Database:
//
//	database:
//	  path: "/var/lib/bot-gateway/gateway.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${GATEWAY_JWT_SECRET}"   # verifies owner/user sessions
//
// Quotas and rate limits (per-bot overrides win over these defaults):
//
//	limits:
//	  max_bots_per_owner: 20
//	  rate_limit_per_second: 30
//	  rate_limit_per_minute: 600
//
// Webhook delivery workers:
//
//	webhooks:
//	  workers: 4
//
// Platform collaborators (empty URLs select the no-op implementations):
//
//	platform:
//	  delivery_url: "http://chat-core:9000"
//	  media_url: "http://media-store:9001"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Metrics:
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// # Usage
//
// Load configuration from a path:
//
//	cfg, err := config.Load("/etc/bot-gateway/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
