package main

import (
	"context"
	"fmt"
	"os"

	"liquidityreward/internal/app"
	"liquidityreward/internal/handlers"
	"liquidityreward/internal/middleware"
	"liquidityreward/internal/routes"
	"liquidityreward/pkg/config"

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
	portFlag := flag.String("port", "", "listen port (or set PORT env var)")
	migrateFlag := flag.Bool("migrate", false, "run SQL migrations before serving (or set MIGRATE_ON_START=true)")
	migrationsDirFlag := flag.String("migrations-dir", config.DefaultMigrationsDir, "directory holding SQL migrations")
	rpsFlag := flag.Float64("rate-limit", 5, "requests per second allowed per client IP (0 disables)")
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if *verboseFlag {
		log.SetLevel(log.DebugLevel)
	}

	settings, err := config.Load(*envFileFlag)
	if err != nil {
		return err
	}
	if *portFlag != "" {
		settings.Port = *portFlag
	}

	db, err := config.InitDB(settings)
	if err != nil {
		return err
	}
	if *migrateFlag || settings.MigrateOnStart {
		if err := config.ExecuteMigrations(db, *migrationsDirFlag); err != nil {
			return err
		}
	}

	service, err := app.NewService(context.Background(), settings, db)
	if err != nil {
		return err
	}

	r := routes.SetupRouter(handlers.NewRewardHandler(service), routes.Config{
		CronSecret:     settings.CronSecret,
		AllowedOrigins: settings.AllowedOrigins,
		RateLimit:      middleware.RateLimiterConfig{RequestsPerSecond: *rpsFlag, Burst: 10},
	})

	log.WithField("port", settings.Port).Info("starting api server")
	if err := r.Run(":" + settings.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}
