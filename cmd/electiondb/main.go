package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/app"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/pkg/config"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/pkg/logger"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:  "electiondb",
		Usage: "OSSIP classroom election store",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML configuration file"},
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "dotenv file loaded before the configuration"},
			&cli.StringFlag{Name: "db-path", Usage: "SQLite database path (overrides the configuration)"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		},
		Commands: []*cli.Command{
			initCommand(),
			healthCommand(),
			statsCommand(),
			exportCommand(),
			backupCommand(),
			restoreCommand(),
			repairCommand(),
			castCommand(),
			resetCommand(),
			resetAllCommand(),
			statusCommand(),
			loginCommand(),
			adminLoginCommand(),
			auditCommand(),
			watchCommand(),
		},
	}

	if err := root.Run(context.Background(), args); err != nil {
		log.Fatal(err)
	}
}

// loadConfig reads the .env file, the configuration file and the global
// flag overrides.
func loadConfig(c *cli.Command) (*config.Config, error) {
	if path := c.String("env-file"); path != "" {
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	if path := c.String("db-path"); path != "" {
		cfg.Database.Path = path
	}
	if level := c.String("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, nil
}

// withServices starts the services for one command and stops them after
func withServices(ctx context.Context, c *cli.Command, fn func(*app.Services) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	log := logger.New(cfg.Logging)
	log.Debug("configuration loaded", "config", cfg.SanitizeForLogging())

	svc := app.NewServices(cfg, log)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := svc.Stop(); err != nil {
			log.Warning("shutdown incomplete", "error", err)
		}
	}()

	if svc.Repaired {
		fmt.Fprintln(os.Stderr, "warning: the database was damaged and has been rebuilt with the default data")
	}
	return fn(svc)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
