package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"

	"yappify/auth"
	"yappify/broker"
	"yappify/contract"
	"yappify/delivery"
	"yappify/internal"
	"yappify/repositories"
	"yappify/runtime"
	"yappify/runtime/workers"
	"yappify/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// Returning the error instead of exiting keeps every defer (database close,
// broker drain) running on the way out.
func run() error {
	// 1. Configuration & Logger
	config, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Broker: JetStream when a NATS URL is configured, in-process
	// otherwise (single node, no durability).
	var bus contract.Broker
	if config.NatsURL != "" {
		natsBroker, err := broker.NewNatsBroker(log, config.NatsURL)
		if err != nil {
			return fmt.Errorf("broker connection failed: %w", err)
		}
		defer natsBroker.Close()
		bus = natsBroker
	} else {
		log.Warn("NATS_URL not set, using in-process broker")
		bus = broker.NewMemoryBroker(log)
	}

	// 4. Repositories & Services
	userRepository := repositories.NewUserRepository(db)
	chatRepository := repositories.NewChatRepository(db)
	messageRepository := repositories.NewMessageRepository(db)

	publisher := delivery.NewPublisher(log, bus, config.PublishTimeout)
	tokens := auth.NewTokenManager(config.JWTSecret, config.AuthTokenDuration)

	authService := services.NewAuthService(log, userRepository, tokens)
	chatService := services.NewChatService(log, userRepository, chatRepository, messageRepository)
	messageService := services.NewMessageService(log, userRepository, chatRepository, messageRepository, publisher)

	// 5. Delivery pipeline workers
	registry := runtime.NewRegistry(log)
	counter := workers.NewDeliveryCounter()
	fanoutGroup := "fanout-" + config.InstanceID

	sup := workers.NewSupervisor(log)
	sup.Add(
		workers.NewFanoutConsumer(log, bus, chatRepository, registry, fanoutGroup, config.PushTimeout),
		workers.NewNotificationConsumer(log, bus, counter),
		workers.NewTelemetryWorker(log, counter, config.TelemetryInterval),
	)

	// 6. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	supDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supDone)
	}()

	// 7. HTTP & WebSocket server
	server := NewServer(log, config, authService, chatService, messageService, tokens, registry)
	app := server.App()

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := app.Listen(address); err != nil {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 9. Final Cleanup
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	sup.Stop()
	<-supDone
	log.Info("Program stopped cleanly")

	return nil
}
