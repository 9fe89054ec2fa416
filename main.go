package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"betmirror/cmd"
	"betmirror/database"

	log "github.com/sirupsen/logrus"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	var err error
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			err = handleMigrationCommand()
		case "act":
			err = cmd.Act(ctx, os.Args[2:])
		case "reconcile":
			err = cmd.Reconcile(ctx, os.Args[2:])
		case "serve":
			err = cmd.Run(ctx)
		default:
			err = fmt.Errorf("unknown command %q, expected serve, migrate, act or reconcile", os.Args[1])
		}
	} else {
		err = cmd.Run(ctx)
	}

	if err != nil {
		log.WithError(err).Fatal("betmirror exited with an error")
	}
}

func handleMigrationCommand() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: betmirror migrate [up|down|status] [args...]")
	}

	command := os.Args[2]
	switch command {
	case "up":
		return database.MigrateUp()
	case "down":
		steps := "1"
		if len(os.Args) > 3 {
			steps = os.Args[3]
		}
		return database.MigrateDown(steps)
	case "status":
		return database.MigrateStatus()
	default:
		return fmt.Errorf("unknown migration command: %s", command)
	}
}
