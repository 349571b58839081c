package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"spinwheel/cmd"
	"spinwheel/database"

	log "github.com/sirupsen/logrus"
)

const migrateUsage = "usage: spinwheel migrate up | down [steps] | status"

var errMigrateUsage = errors.New(migrateUsage)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrationCommand(os.Args[2:]); err != nil {
			log.Fatal("Migration error: ", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx); err != nil {
		log.Fatal("Application error: ", err)
	}
}

// runMigrationCommand handles the arguments after "migrate"
func runMigrationCommand(args []string) error {
	if len(args) == 0 {
		return errMigrateUsage
	}

	switch args[0] {
	case "up":
		return database.MigrateUp()
	case "down":
		if len(args) > 2 {
			return errMigrateUsage
		}
		steps := "1"
		if len(args) == 2 {
			steps = args[1]
		}
		return database.MigrateDown(steps)
	case "status":
		status, err := database.MigrateStatus()
		if err != nil {
			return err
		}
		logMigrationStatus(status)
		return nil
	default:
		return fmt.Errorf("unknown migration command %q: %w", args[0], errMigrateUsage)
	}
}

func logMigrationStatus(status database.MigrationStatus) {
	logger := log.WithFields(log.Fields{
		"version": status.Version,
		"latest":  status.Latest,
		"dirty":   status.Dirty,
	})

	switch {
	case status.Dirty:
		logger.Warn("Schema is dirty, a migration failed midway and needs manual repair")
	case !status.Applied:
		logger.Info("No migrations have been applied yet")
	case status.Pending():
		logger.Info("Schema is behind, run migrate up")
	default:
		logger.Info("Schema is up to date")
	}
}
