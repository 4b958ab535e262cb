// Package config loads the engine configuration.
//
// Defaults are overlaid by an optional YAML file (MEMBERSHIP_CONFIG_FILE)
// and then by environment variables.
//
// Store settings:
//
//	MEMBERSHIP_STORE_DRIVER="postgres"  # memory, postgres, sqlite3
//	MEMBERSHIP_STORE_DSN="postgres://localhost/membership?sslmode=disable"
//	MEMBERSHIP_STORE_MAX_OPEN_CONNS="20"
//
// Cache and lock settings:
//
//	MEMBERSHIP_CACHE_BACKEND="redis"  # none, memory, redis
//	MEMBERSHIP_CACHE_TTL="5m"
//	MEMBERSHIP_LOCKS_BACKEND="redis"  # memory, redis
//	MEMBERSHIP_REDIS_ADDR="localhost:6379"
//
// Audit settings:
//
//	MEMBERSHIP_AUDIT_FILE_DIR="/var/log/membership/audit"
//	MEMBERSHIP_AUDIT_DATABASE="true"  # postgres only
//	MEMBERSHIP_AUDIT_ASYNC="false"
//
// Invitation settings:
//
//	MEMBERSHIP_INVITATION_EXPIRY="72h"
//	MEMBERSHIP_INVITATION_SWEEP_SCHEDULE="*/15 * * * *"
//
// Observability settings:
//
//	MEMBERSHIP_LOG_LEVEL="info"  # debug, info, warn, error
//	MEMBERSHIP_METRICS_ENABLED="true"
//	MEMBERSHIP_OTEL_ENABLED="true"
//	MEMBERSHIP_OTEL_ENDPOINT="otel-collector:4317"
//
// The same settings in a file:
//
//	store:
//	  driver: sqlite3
//	  dsn: file:membership.db
//	invitations:
//	  default_expiry: 48h
package config
