package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/saleemdev/careverse-hq-sub001/broker"
	"github.com/saleemdev/careverse-hq-sub001/config"
	"github.com/saleemdev/careverse-hq-sub001/dashboard"
	"github.com/saleemdev/careverse-hq-sub001/metrics"
	"github.com/saleemdev/careverse-hq-sub001/realtime"
	"github.com/saleemdev/careverse-hq-sub001/server"
	"github.com/saleemdev/careverse-hq-sub001/services"
	"github.com/saleemdev/careverse-hq-sub001/session"
	"github.com/saleemdev/careverse-hq-sub001/websocket"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}
	if err := config.Initialize(env); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}
	cfg := config.Get()

	// Unique ID for this relay instance
	instanceID := uuid.New().String()
	log.Printf("Starting relay instance with ID: %s", instanceID)

	// Viewer sessions always live in Redis so any instance can inspect them.
	redisClient, err := services.NewRedisClient(cfg.Broker.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer services.CloseRedisClient(redisClient)

	sessionStore := session.NewRedisStore(redisClient, time.Duration(cfg.WebSocket.SessionTTL)*time.Second)

	// --- Broker Initialization ---
	var messageBroker broker.MessageBroker
	var updatesChannel string

	log.Printf("Initializing message broker of type: %s", cfg.Broker.Type)
	switch strings.ToLower(cfg.Broker.Type) {
	case "redis":
		messageBroker = broker.NewRedisBroker(redisClient)
		updatesChannel = cfg.Broker.Redis.UpdatesChannel
	case "kafka":
		messageBroker, err = broker.NewKafkaBroker(cfg.Broker.Kafka.Brokers, cfg.Broker.Kafka.GroupID)
		if err != nil {
			log.Fatalf("Failed to create Kafka broker: %v", err)
		}
		updatesChannel = cfg.Broker.Kafka.UpdatesTopic
	default:
		// Caught by config validation; checked again as a safeguard.
		log.Fatalf("Invalid broker type specified: %s", cfg.Broker.Type)
	}

	// --- Auth Initialization ---
	var jwtValidator *websocket.JWTValidator
	if cfg.Auth.Enabled {
		jwtValidator = websocket.NewJWTValidator(&cfg.Auth, redisClient)
		log.Println("JWT Authentication is ENABLED.")
	} else {
		log.Println("JWT Authentication is DISABLED.")
	}

	// --- Upstream realtime connection + dashboard feed ---
	rt := realtime.NewService(realtime.Config{
		Site:     cfg.Site,
		Upstream: cfg.Upstream,
	}, nil)
	rt.Initialize()

	feed := dashboard.NewFeed(rt, messageBroker, updatesChannel, instanceID)
	feed.Start()

	// --- Viewer-facing side ---
	viewerManager := websocket.NewViewerManager(sessionStore, instanceID)
	handler := websocket.NewHandler(viewerManager, messageBroker, jwtValidator, &cfg.Auth, &cfg.WebSocket, feed, updatesChannel)

	port := ":" + strconv.Itoa(cfg.Server.Port)
	srv := server.NewServer(port, cfg.Server, handler.HandleViewer, rt, feed, viewerManager)

	go handler.ListenForUpdates(ctx)

	if cfg.Metrics.Enabled {
		metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path)
	}

	go srv.Start()
	log.Println("Dashboard relay started on " + port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx, messageBroker)
}
