package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"craftedge.io/chatsync/internal/client"
	"craftedge.io/chatsync/internal/core/port"
	"craftedge.io/chatsync/internal/core/service"
	"craftedge.io/chatsync/internal/infrastructure/amqp"
	"craftedge.io/chatsync/internal/server"
	"craftedge.io/chatsync/internal/storage"
)

func main() {
	// Initialize logger
	log.SetFormatter(&log.JSONFormatter{})
	log.SetLevel(log.InfoLevel)

	// Get configuration from environment
	amqpURL := os.Getenv("AMQP_URL")
	httpAddr := os.Getenv("HTTP_ADDR")
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbName := os.Getenv("DB_NAME")
	messageStorePath := os.Getenv("MESSAGE_STORE_PATH")
	messageStoreBackend := os.Getenv("MESSAGE_STORE_BACKEND")
	chatAPIBaseURL := os.Getenv("CHAT_API_BASE_URL")
	chatAPIToken := os.Getenv("CHAT_API_TOKEN")
	webhookSecret := os.Getenv("TELEGRAM_WEBHOOK_SECRET")

	if httpAddr == "" {
		httpAddr = ":8080"
	}
	if messageStorePath == "" {
		messageStorePath = "/var/lib/chatsync/messages"
	}

	// Create AMQP client
	amqpClient, err := amqp.NewClient(amqpURL)
	if err != nil {
		log.Fatalf("Failed to create AMQP client: %v", err)
	}
	defer amqpClient.Close()
	publisher := amqp.NewPublisher(amqpClient)
	notifier := client.NewAMQPNotifier(publisher)

	ctx := context.Background()
	db, err := storage.NewPostgresDB(ctx, dbHost, dbPort, dbUser, dbPassword, dbName)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	dealsStorage := storage.NewDealsStorage(db)
	lockStore := storage.NewLockStore(db)
	cursorStore := storage.NewCursorStore(db)

	var messages port.MessageStore
	var avatars port.AvatarStore
	if messageStoreBackend == "memory" {
		messages = storage.NewMemoryMessageStore()
		avatars = storage.NewMemoryAvatarStore()
	} else {
		badgerStore, err := storage.NewBadgerMessageStore(messageStorePath)
		if err != nil {
			log.Fatalf("Failed to open message store: %v", err)
		}
		defer badgerStore.Close()
		messages = badgerStore
		avatars = storage.NewBadgerAvatarStore(badgerStore)
	}

	// Set up topology (exchanges, queues, bindings)
	topologyManager := amqp.NewTopologyManager(amqpClient)
	if err := topologyManager.Setup(); err != nil {
		log.Fatalf("Failed to setup AMQP topology: %v", err)
	}

	var chatAPI port.ChatAPIClient
	if chatAPIBaseURL != "" {
		chatAPI = client.NewHTTPChatAPI(chatAPIBaseURL, chatAPIToken)
	} else {
		log.Warn("CHAT_API_BASE_URL not set, using mock chat API")
		chatAPI = client.NewMockChatAPI(50, 10)
	}

	projector := service.NewProjector(dealsStorage, messages, avatars, notifier)
	syncService := service.NewSyncService(chatAPI, projector, dealsStorage, cursorStore, lockStore, service.SyncConfig{})
	webhookService := service.NewWebhookService(projector, dealsStorage, messages, notifier)

	// Create HTTP server
	httpServer := server.NewHTTPServer(syncService, webhookService, dealsStorage, messages, server.Config{
		WebhookSecret: webhookSecret,
	})

	// Start HTTP server in a goroutine
	go func() {
		if err := httpServer.Start(httpAddr); err != nil {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	log.Info("Chat sync service started successfully")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down chat sync service...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Error shutting down HTTP server: %v", err)
	}
}
