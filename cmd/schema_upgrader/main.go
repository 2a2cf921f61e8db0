package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/opst/modelflow/pkg/configs"
	kdb "github.com/opst/modelflow/pkg/db"
	"github.com/opst/modelflow/pkg/db/postgres"
	"github.com/opst/modelflow/pkg/utils/try"
	"github.com/youta-t/flarc"
)

type Flag struct {
	Config   string `flag:"config" help:"path to modelflow config file. Its database is upgraded."`
	Database string `flag:"database" help:"URL of the database. It takes precedence over --config."`
	Check    bool   `flag:"check" help:"Only report the schema version. Exits with error when it is not the latest."`
}

func main() {
	logger := log.Default()
	ctx, cancel := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
	)
	defer cancel()

	cmd := try.To(flarc.NewCommand(
		"database schema upgrader",
		Flag{
			Config:   os.Getenv(configs.EnvConfigPath),
			Database: os.Getenv("MODELFLOW_DATABASE"),
		},
		flarc.Args{},
		func(ctx context.Context, c flarc.Commandline[Flag], _ []any) error {
			flags := c.Flags()

			dburl := flags.Database
			if dburl == "" {
				if flags.Config == "" {
					return fmt.Errorf("%w: --database or --config is required", flarc.ErrUsage)
				}
				conf, err := configs.LoadConfig(flags.Config)
				if err != nil {
					return err
				}
				dburl = conf.Database()
			}

			db, err := postgres.New(ctx, dburl)
			if err != nil {
				return err
			}
			defer db.Close()

			return upgrade(ctx, logger, db.Schema(), flags.Check)
		},
	)).OrFatal(logger)

	os.Exit(flarc.Run(ctx, cmd))
}

var errOutdated = errors.New("schema is outdated")

func upgrade(ctx context.Context, logger *log.Logger, schema kdb.SchemaInterface, checkOnly bool) error {
	current, err := schema.Version(ctx)
	if err != nil {
		return err
	}
	latest, err := schema.Latest()
	if err != nil {
		return err
	}
	logger.Printf("schema version: current = v%d, latest = v%d", current, latest)

	if latest <= current {
		return nil
	}
	if checkOnly {
		return errOutdated
	}

	if err := schema.Upgrade(ctx); err != nil {
		return err
	}
	upgraded, err := schema.Version(ctx)
	if err != nil {
		return err
	}
	logger.Printf("schema is upgraded to v%d", upgraded)
	return nil
}
