// Command auditlog consumes login events from RabbitMQ and appends them
// to a log file, logs/auth.log by default.
package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/iliyamo/auth-service/internal/config"
	"github.com/iliyamo/auth-service/internal/queue"
)

func main() {
	logPath := pflag.String("log-file", "logs/auth.log", "file the login events are appended to")
	pflag.Parse()

	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("auditlog: consuming %s into %s", queue.LoginQueueName, *logPath)
	if err := queue.StartLoginConsumer(ctx, config.AMQPURL(), *logPath); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}
