package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"liquidityreward/internal/app"
	"liquidityreward/internal/store"
	"liquidityreward/pkg/config"
	"liquidityreward/pkg/jobs"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
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
	queueFlag := flag.String("queue", config.JobsQueue, "queue to publish jobs to")
	competitionsFlag := flag.StringSlice("competition", nil, "competition slug to collect and settle daily (repeatable)")
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
	st := store.New(db, clockwork.NewRealClock())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var chains []string
	for _, p := range app.ChainPrograms(settings) {
		chains = append(chains, p.Name)
	}
	rewards := make(map[string][]string, len(*competitionsFlag))
	for _, slug := range *competitionsFlag {
		competition, err := st.GetCompetition(ctx, slug)
		if err != nil {
			return fmt.Errorf("competition %s: %w", slug, err)
		}
		for _, r := range competition.Rewards {
			rewards[slug] = append(rewards[slug], r.Name)
		}
	}

	conn, err := config.InitRabbitMQ(settings)
	if err != nil {
		return err
	}
	defer conn.Close()

	publisher, err := config.NewPublisher(conn)
	if err != nil {
		return err
	}
	defer publisher.Close()

	c := cron.New(cron.WithSeconds())
	entries := jobs.DefaultEntries(chains, *competitionsFlag, rewards)
	if err := jobs.Schedule(c, publisher, *queueFlag, entries); err != nil {
		return err
	}

	log.WithFields(log.Fields{"jobs": len(entries), "queue": *queueFlag}).Info("scheduler started")
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	log.Info("scheduler stopped")
	return nil
}
