package main

import (
	"fmt"
	"strconv"

	"github.com/wardsight/occupancy.report/internal/db"
)

// runCommand dispatches CLI subcommands. Only "migrate" exists today:
//
//	occupancy-report migrate up
//	occupancy-report migrate down
//	occupancy-report migrate version
//	occupancy-report migrate force <version>
func runCommand(dbPath string, args []string) error {
	switch args[0] {
	case "migrate":
		return runMigrate(dbPath, args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runMigrate(dbPath string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("migrate requires a subcommand: up, down, version or force")
	}

	// OpenDB rather than NewDB: migrations are what we are here to
	// manage, so they must not run implicitly.
	database, err := db.OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer database.Close()

	switch args[0] {
	case "up":
		if err := database.MigrateUp(); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		fmt.Println("migrations applied")
	case "down":
		if err := database.MigrateDown(); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
		fmt.Println("migrations rolled back")
	case "version":
		version, dirty, err := database.MigrateVersion()
		if err != nil {
			return fmt.Errorf("migrate version: %w", err)
		}
		fmt.Printf("version=%d dirty=%v\n", version, dirty)
	case "force":
		if len(args) < 2 {
			return fmt.Errorf("migrate force requires a version")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		if err := database.MigrateForce(version); err != nil {
			return fmt.Errorf("migrate force: %w", err)
		}
		fmt.Printf("forced version to %d\n", version)
	default:
		return fmt.Errorf("unknown migrate subcommand %q", args[0])
	}
	return nil
}
