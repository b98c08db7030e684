package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"liquidityreward/internal/app"
	"liquidityreward/pkg/config"
	"liquidityreward/pkg/jobs"

	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	envFileFlag := flag.String("env-file", ".env", "dotenv file to load before reading the environment")
	queueFlag := flag.String("queue", config.JobsQueue, "queue to consume jobs from")
	purgeFlag := flag.Bool("purge", false, "drop pending jobs before consuming")
	flag.Parse()

	log.SetFormatter(&log.JSONFormatter{})
	log.SetLevel(log.InfoLevel)

	settings, err := config.Load(*envFileFlag)
	if err != nil {
		return err
	}

	db, err := config.InitDB(settings)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	service, err := app.NewService(ctx, settings, db)
	if err != nil {
		return err
	}

	conn, err := config.InitRabbitMQ(settings)
	if err != nil {
		return err
	}
	defer conn.Close()

	consumer, err := config.NewConsumer(conn, *queueFlag)
	if err != nil {
		return err
	}
	defer consumer.Close()

	if *purgeFlag {
		if _, err := config.PurgeQueue(conn, *queueFlag); err != nil {
			return err
		}
	}

	log.WithField("queue", *queueFlag).Info("worker started, waiting for jobs")
	err = consumer.Consume(ctx, jobs.NewDispatcher(service).Handle)
	if errors.Is(err, context.Canceled) {
		log.Info("worker stopped")
		return nil
	}
	return err
}
