// Command migrate runs schema migrations against the orchestrator's
// Postgres database. It generalizes the teacher's multi-database
// migration CLI (cmd/migrate/main.go: up/down/status/goto/force/drop/
// create subcommands) down to the single Postgres schema this module
// owns — ClickHouse and the seed subcommand are dropped entirely, since
// this module has no analytics database and no seeder package.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"webscope/internal/config"
	"webscope/internal/migration"
	"webscope/pkg/logging"
)

func main() {
	var (
		steps   = flag.Int("steps", 0, "number of migration steps (0 = all for up, 1 for down)")
		version = flag.Uint("version", 0, "target version for goto/force")
		name    = flag.String("name", "", "migration name for create")
	)
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewTextLogger(logging.ParseLevel(cfg.Logging.Level))

	if command == "create" {
		if *name == "" {
			fmt.Fprintln(os.Stderr, "create requires -name")
			os.Exit(1)
		}
		if err := createMigration(cfg, *name); err != nil {
			fmt.Fprintf(os.Stderr, "create failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	manager, err := migration.NewManager(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize migration manager: %v\n", err)
		os.Exit(1)
	}
	defer manager.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	switch command {
	case "up":
		err = manager.Up(ctx, *steps)
	case "down":
		err = manager.Down(ctx, *steps)
	case "goto":
		err = manager.Goto(*version)
	case "force":
		err = manager.Force(int(*version))
	case "drop":
		if !confirm("This will drop every table. Continue?") {
			fmt.Println("aborted")
			return
		}
		err = manager.Drop()
	case "status":
		status := manager.Status(ctx)
		printStatus(status)
		return
	default:
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", command, err)
		os.Exit(1)
	}
	fmt.Printf("%s completed successfully\n", command)
}

func createMigration(cfg *config.Config, name string) error {
	manager, err := migration.NewManager(cfg, logging.NewTextLogger(logging.ParseLevel(cfg.Logging.Level)))
	if err != nil {
		return err
	}
	defer manager.Shutdown()

	up, down, err := manager.Create(name)
	if err != nil {
		return err
	}
	fmt.Printf("created migration pair:\n  %s\n  %s\n", up, down)
	return nil
}

func printStatus(status migration.Status) {
	fmt.Printf("version:     %d\n", status.CurrentVersion)
	fmt.Printf("dirty:       %t\n", status.IsDirty)
	fmt.Printf("state:       %s\n", status.State)
	fmt.Printf("migrations:  %d (%s)\n", status.TotalMigrations, status.MigrationsPath)
	if status.Error != "" {
		fmt.Printf("error:       %s\n", status.Error)
	}
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	var answer string
	fmt.Scanln(&answer)
	return answer == "y" || answer == "Y" || answer == "yes"
}

func printUsage() {
	fmt.Println(`migrate - run schema migrations against the orchestrator's Postgres database

Usage:
  migrate <command> [flags]

Commands:
  up       apply pending migrations (use -steps to limit)
  down     roll back one migration (use -steps for more)
  goto     migrate to a specific version (-version required)
  force    force the schema version without running migrations (-version required)
  drop     drop every table (asks for confirmation)
  status   print the current migration version and health
  create   scaffold a new up/down migration pair (-name required)

Flags:`)
	flag.PrintDefaults()
}
