package config

import "github.com/spf13/viper"

func setDefaults() {
	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 15)
	viper.SetDefault("server.writeTimeout", 15)

	// Site resolution
	viper.SetDefault("site.bootSiteName", "")
	viper.SetDefault("site.fallbackHost", "")

	// Upstream realtime endpoint
	viper.SetDefault("upstream.url", "ws://localhost:9000/socket.io")
	viper.SetDefault("upstream.csrfToken", "")
	viper.SetDefault("upstream.credentialCookie", "")
	viper.SetDefault("upstream.transports", []string{"websocket", "polling"})
	viper.SetDefault("upstream.reconnectInitialMs", 1000)
	viper.SetDefault("upstream.reconnectMaxMs", 30000)
	viper.SetDefault("upstream.maxReconnectAttempts", 10)
	viper.SetDefault("upstream.handshakeTimeout", 10)
	viper.SetDefault("upstream.writeTimeout", 10)
	viper.SetDefault("upstream.pingInterval", 25)

	// Auth
	viper.SetDefault("auth.enabled", false) // Default to off for security
	viper.SetDefault("auth.jwtSecret", "default-secret")
	viper.SetDefault("auth.tokenQueryParam", "token")
	viper.SetDefault("auth.revocationListKey", "jwt:revoked")

	// Broker
	viper.SetDefault("broker.type", "redis")
	viper.SetDefault("broker.redis.address", "localhost:6379")
	viper.SetDefault("broker.redis.db", 0)
	viper.SetDefault("broker.redis.poolSize", 100)
	viper.SetDefault("broker.redis.poolTimeout", 5)
	viper.SetDefault("broker.redis.updatesChannel", "dashboard-updates")
	viper.SetDefault("broker.kafka.updatesTopic", "dashboard-updates")

	// WebSocket (viewer connections)
	viper.SetDefault("websocket.maxConnections", 10000)
	viper.SetDefault("websocket.messageSizeLimit", 4096)
	viper.SetDefault("websocket.pingInterval", 25)
	viper.SetDefault("websocket.activityTimeout", 60)
	viper.SetDefault("websocket.writeTimeout", 10)
	viper.SetDefault("websocket.keepAlive", true)
	viper.SetDefault("websocket.sessionTTL", 90)

	// Metrics
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", 9090)
	viper.SetDefault("metrics.path", "/metrics")
}
