package config

import (
	"fmt"
	"sync"

	"github.com/spf13/viper"
)

type AppConfig struct {
	Server    ServerConfig
	Site      SiteConfig
	Upstream  UpstreamConfig
	Auth      AuthConfig
	Broker    BrokerConfig
	WebSocket WebSocketConfig
	Metrics   MetricsConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  int // Seconds
	WriteTimeout int // Seconds
}

// SiteConfig controls how the deployment site identifier is resolved.
// Resolution order: BootSiteName, FallbackHost, the second path segment of
// the upstream URL, then the built-in default.
type SiteConfig struct {
	BootSiteName string
	FallbackHost string
}

// UpstreamConfig describes the ERP realtime endpoint and the reconnection
// schedule for the shared transport connection.
type UpstreamConfig struct {
	URL                  string
	CSRFToken            string
	CredentialCookie     string
	Transports           []string // preferred first; "websocket" and/or "polling"
	ReconnectInitialMs   int      // Milliseconds
	ReconnectMaxMs       int      // Milliseconds
	MaxReconnectAttempts int
	HandshakeTimeout     int // Seconds
	WriteTimeout         int // Seconds
	PingInterval         int // Seconds
}

type AuthConfig struct {
	Enabled           bool
	JWTSecret         string
	TokenQueryParam   string
	RevocationListKey string
}

type BrokerConfig struct {
	Type  string // "redis" or "kafka"
	Redis RedisConfig
	Kafka KafkaConfig
}

type RedisConfig struct {
	Address        string
	Password       string
	DB             int
	PoolSize       int
	PoolTimeout    int // Seconds
	UpdatesChannel string
}

type KafkaConfig struct {
	Brokers      []string
	GroupID      string
	UpdatesTopic string
}

// WebSocketConfig applies to downstream dashboard viewer connections.
type WebSocketConfig struct {
	MaxConnections   int
	MessageSizeLimit int
	PingInterval     int // Seconds
	ActivityTimeout  int // Seconds
	WriteTimeout     int // Seconds
	KeepAlive        bool
	SessionTTL       int // Seconds
}

type MetricsConfig struct {
	Enabled bool
	Port    int
	Path    string
}

var (
	instance *AppConfig
	once     sync.Once
)

func Initialize(env string) error {
	var initErr error
	once.Do(func() {
		viper.SetConfigName(fmt.Sprintf("config.%s", env))
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")

		viper.AutomaticEnv()
		viper.SetEnvPrefix("CAREVERSE")

		setDefaults()
		bindEnvVars()

		if err := viper.ReadInConfig(); err != nil {
			initErr = fmt.Errorf("config file error: %w", err)
			return
		}

		if err := viper.Unmarshal(&instance); err != nil {
			initErr = fmt.Errorf("config unmarshal error: %w", err)
			return
		}

		if err := instance.Validate(); err != nil {
			initErr = fmt.Errorf("config validation failed: %w", err)
			return
		}
	})
	return initErr
}

func Get() *AppConfig {
	return instance
}
