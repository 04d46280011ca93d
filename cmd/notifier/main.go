package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"craftedge.io/chatsync/internal/core/domain"
	"craftedge.io/chatsync/internal/handler"
	"craftedge.io/chatsync/internal/infrastructure/amqp"
	"craftedge.io/chatsync/internal/realtime"
	"craftedge.io/chatsync/internal/server"
)

func main() {
	// Initialize logger
	log.SetFormatter(&log.JSONFormatter{})
	log.SetLevel(log.InfoLevel)

	// Get configuration from environment
	amqpURL := os.Getenv("AMQP_URL")
	httpAddr := os.Getenv("HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8081"
	}

	// Create AMQP client
	amqpClient, err := amqp.NewClient(amqpURL)
	if err != nil {
		log.Fatalf("Failed to create AMQP client: %v", err)
	}
	defer amqpClient.Close()

	// Set up topology (exchanges, queues, bindings)
	topologyManager := amqp.NewTopologyManager(amqpClient)
	if err := topologyManager.Setup(); err != nil {
		log.Fatalf("Failed to setup AMQP topology: %v", err)
	}

	hub := realtime.NewHub()
	validate := validator.New()
	messageHandler := handler.NewAMQPConsumer(hub, validate)

	consumer := amqp.NewConsumer(amqpClient, messageHandler)

	// Start consuming messages
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := consumer.Consume(ctx, domain.ChatNotificationsQueue); err != nil {
		log.Fatalf("Failed to start consumer: %v", err)
	}

	notifierServer := server.NewNotifierServer(hub)
	go func() {
		if err := notifierServer.Start(httpAddr); err != nil {
			log.Fatalf("Failed to start notifier server: %v", err)
		}
	}()

	log.Info("Notifier service started successfully")
	log.Infof("Consuming messages from queue: %s", domain.ChatNotificationsQueue)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down notifier service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := notifierServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Error shutting down notifier server: %v", err)
	}
}
