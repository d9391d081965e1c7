package main

import (
	"campus-chat/auth"
	"campus-chat/badges"
	"campus-chat/contract"
	grpchealth "campus-chat/infrastructure/grpc"
	httpserver "campus-chat/infrastructure/http/server"
	redisstore "campus-chat/infrastructure/redis"
	wsserver "campus-chat/infrastructure/websocket/server"
	"campus-chat/moderation"
	"campus-chat/observability"
	"campus-chat/repositories"
	"campus-chat/runtime"
	"campus-chat/runtime/workers"
	"campus-chat/services"
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and owns their lifecycle, so deferred cleanups
// always execute before the process exits.
func run() error {
	// 1. Configuration & Logger
	// A missing .env is fine, the environment may already be set
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)
	metrics := observability.NewMetrics()

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
	messageRepository := repositories.NewMessageRepository(db, log, config.LimitMessages)

	// 3. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Broadcast dispatcher
	sup := workers.NewSupervisor(log, metrics, config.RestartInterval)
	registry := runtime.NewRegistry()
	orchestrator := runtime.NewOrchestrator(log, sup, registry,
		config.NumberOfShards, config.BufferSize, config.SinkTimeout, metrics).
		WithQueueSampling(config.QueueSampleInterval)
	orchestrator.Start(ctx)
	defer orchestrator.Stop()

	// 5. Presence, mirrored in Redis when configured
	var presenceStore contract.PresenceStore
	if config.RedisAddr != "" {
		client, err := redisstore.NewClient(config.RedisAddr)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		store := redisstore.NewPresenceStore(client)
		if err := store.Clear(ctx); err != nil {
			log.Warn("Could not clear stale presence", "error", err)
		}
		presenceStore = store
	}
	presence := runtime.NewPresence(log, orchestrator, presenceStore, metrics)

	// 6. Moderation
	words := moderation.ParseWords(config.CensoredWords)
	if config.CensoredWordsDir != "" {
		fromFiles, err := moderation.LoadWords(os.DirFS(config.CensoredWordsDir), ".")
		if err != nil {
			return fmt.Errorf("censored words loading failed: %w", err)
		}
		words = append(words, fromFiles...)
	}
	replacement, err := config.Replacement()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	moderator, err := moderation.NewModerator(words, replacement)
	if err != nil {
		return fmt.Errorf("moderator initialization failed: %w", err)
	}
	log.Info("Moderation ready", "words", len(words), "enabled", moderator.Enabled())

	// 7. Badges, published to Kafka when brokers are configured
	observers := badges.Multi{badges.NewCounter()}
	if brokers := config.Brokers(); len(brokers) > 0 {
		writer := badges.NewKafkaWriter(brokers, config.KafkaBadgeTopic)
		defer func() {
			if err := writer.Close(); err != nil {
				log.Warn("Kafka writer close failed", "error", err)
			}
		}()
		observers = append(observers, badges.NewKafkaObserver(log, writer))
	}

	// 8. Message lifecycle engine
	chatService := services.NewChatService(log, messageRepository, orchestrator,
		auth.ClaimsIdentity{}, moderator, observers, metrics, config.MaxContentLength)

	// 9. Servers
	tokens := auth.NewTokenManager(config.JwtSecret, config.AuthTokenDuration)
	live := wsserver.NewServer(log, chatService, registry, presence,
		config.ConnectionBufferSize, config.ActionsPerSecond, config.ActionBurst)
	httpServer := httpserver.NewServer(log, chatService, tokens, metrics, live)

	grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.GrpcPort)
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}
	health := grpchealth.NewHealthServer(log)

	errChan := make(chan error, 2)
	go func() {
		if err := health.Serve(listener); err != nil {
			errChan <- err
		}
	}()
	go func() {
		if err := httpServer.Start(fmt.Sprintf("%s:%d", config.Host, config.Port)); err != nil {
			errChan <- err
		}
	}()
	health.SetServing(true)

	// 10. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		health.Stop()
		return err
	}

	// 11. Final Cleanup, deferred closes run after the servers are down
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	health.Stop()
	log.Info("Program stopped cleanly")
	return nil
}
