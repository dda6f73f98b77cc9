package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func (c *AppConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.New("invalid server port")
	}

	// Validate upstream configuration
	if c.Upstream.URL == "" {
		return errors.New("upstream.url must be specified")
	}
	if c.Upstream.ReconnectInitialMs < 1 {
		return errors.New("upstream reconnect initial delay must be positive")
	}
	if c.Upstream.ReconnectMaxMs < c.Upstream.ReconnectInitialMs {
		return errors.New("upstream reconnect max delay must be >= initial delay")
	}
	if c.Upstream.MaxReconnectAttempts < 1 {
		return errors.New("upstream max reconnect attempts must be positive")
	}
	if len(c.Upstream.Transports) == 0 {
		return errors.New("at least one upstream transport kind must be configured")
	}
	for _, kind := range c.Upstream.Transports {
		if kind != "websocket" && kind != "polling" {
			return fmt.Errorf("invalid upstream transport kind: %s. Must be 'websocket' or 'polling'", kind)
		}
	}

	// Validate auth config
	if c.Auth.Enabled {
		if c.Auth.JWTSecret == "" || c.Auth.JWTSecret == "default-secret" {
			return errors.New("auth.jwtSecret must be set to a strong secret when auth is enabled")
		}
		if c.Auth.TokenQueryParam == "" {
			return errors.New("auth.tokenQueryParam must be configured when auth is enabled")
		}
	}

	// Validate broker configuration
	switch strings.ToLower(c.Broker.Type) {
	case "redis":
		if c.Broker.Redis.Address == "" {
			return errors.New("redis address must be specified for redis broker")
		}
		if c.Broker.Redis.UpdatesChannel == "" {
			return errors.New("redis updates channel must be configured for redis broker")
		}
	case "kafka":
		if len(c.Broker.Kafka.Brokers) == 0 {
			return errors.New("kafka brokers must be specified for kafka broker")
		}
		if c.Broker.Kafka.GroupID == "" {
			return errors.New("kafka groupID must be specified for kafka broker")
		}
		if c.Broker.Kafka.UpdatesTopic == "" {
			return errors.New("kafka updates topic must be configured for kafka broker")
		}
	default:
		return fmt.Errorf("invalid broker type: %s. Must be 'redis' or 'kafka'", c.Broker.Type)
	}

	if c.WebSocket.MaxConnections < 1 {
		return errors.New("max connections must be positive")
	}

	if c.WebSocket.PingInterval >= c.WebSocket.ActivityTimeout {
		return errors.New("ping interval should be less than activity timeout")
	}

	if c.WebSocket.SessionTTL <= c.WebSocket.ActivityTimeout {
		return errors.New("session TTL should be greater than activity timeout")
	}

	return nil
}

func bindEnvVars() {
	// Server
	viper.BindEnv("server.port", "CAREVERSE_PORT")

	// Site
	viper.BindEnv("site.bootSiteName", "CAREVERSE_SITE_NAME")
	viper.BindEnv("site.fallbackHost", "CAREVERSE_SITE_HOST")

	// Upstream
	viper.BindEnv("upstream.url", "CAREVERSE_UPSTREAM_URL")
	viper.BindEnv("upstream.csrfToken", "CAREVERSE_UPSTREAM_CSRF_TOKEN")
	viper.BindEnv("upstream.credentialCookie", "CAREVERSE_UPSTREAM_COOKIE")
	viper.BindEnv("upstream.maxReconnectAttempts", "CAREVERSE_UPSTREAM_MAX_RECONNECTS")

	// Auth
	viper.BindEnv("auth.enabled", "CAREVERSE_AUTH_ENABLED")
	viper.BindEnv("auth.jwtSecret", "CAREVERSE_AUTH_JWT_SECRET")
	viper.BindEnv("auth.tokenQueryParam", "CAREVERSE_AUTH_TOKEN_PARAM")
	viper.BindEnv("auth.revocationListKey", "CAREVERSE_AUTH_REVOCATION_KEY")

	// Broker
	viper.BindEnv("broker.type", "CAREVERSE_BROKER_TYPE")
	viper.BindEnv("broker.redis.address", "CAREVERSE_REDIS_ADDRESS")
	viper.BindEnv("broker.redis.password", "CAREVERSE_REDIS_PASSWORD")
	viper.BindEnv("broker.redis.updatesChannel", "CAREVERSE_REDIS_UPDATES_CHANNEL")
	viper.BindEnv("broker.kafka.brokers", "CAREVERSE_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.groupID", "CAREVERSE_KAFKA_GROUPID")
	viper.BindEnv("broker.kafka.updatesTopic", "CAREVERSE_KAFKA_UPDATES_TOPIC")

	// WebSocket
	viper.BindEnv("websocket.maxConnections", "CAREVERSE_MAX_CONNECTIONS")
	viper.BindEnv("websocket.pingInterval", "CAREVERSE_PING_INTERVAL")
	viper.BindEnv("websocket.activityTimeout", "CAREVERSE_ACTIVITY_TIMEOUT")
	viper.BindEnv("websocket.writeTimeout", "CAREVERSE_WRITE_TIMEOUT")
	viper.BindEnv("websocket.sessionTTL", "CAREVERSE_SESSION_TTL")
}
