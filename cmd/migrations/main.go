package main

import (
	"fmt"
	"os"

	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/readtrack/pkg/config"
	"github.com/shishobooks/readtrack/pkg/database"
	"github.com/shishobooks/readtrack/pkg/migrations"
	"github.com/uptrace/bun"
	"github.com/urfave/cli/v2"
)

func main() {
	log := logger.New()

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}

	if err := newApp(db).Run(os.Args); err != nil {
		log.Err(err).Fatal("app run error")
	}
}

// newApp covers what an operator does by hand. The api applies pending
// migrations itself on startup.
func newApp(db *bun.DB) *cli.App {
	return &cli.App{
		Name:        "migrations",
		Usage:       "manage the cleanup journal schema",
		Description: "Applies, rolls back and reports migrations of the local cleanup journal database.",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "create migration tables if needed and apply pending migrations",
				Action: func(c *cli.Context) error {
					group, err := migrations.BringUpToDate(c.Context, db)
					if err != nil {
						return err
					}

					if group.ID == 0 {
						fmt.Fprintf(c.App.Writer, "There are no new migrations to run\n")
						return nil
					}

					fmt.Fprintf(c.App.Writer, "Migrated to %s\n", group)
					return nil
				},
			},
			{
				Name:  "rollback",
				Usage: "rollback the last migration group",
				Action: func(c *cli.Context) error {
					group, err := migrations.NewMigrator(db).Rollback(c.Context)
					if err != nil {
						return err
					}

					if group.ID == 0 {
						fmt.Fprintf(c.App.Writer, "There are no groups to roll back\n")
						return nil
					}

					fmt.Fprintf(c.App.Writer, "Rolled back %s\n", group)
					return nil
				},
			},
			{
				Name:  "status",
				Usage: "print migrations status",
				Action: func(c *cli.Context) error {
					ms, err := migrations.NewMigrator(db).MigrationsWithStatus(c.Context)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "Migrations: %s\n", ms)
					fmt.Fprintf(c.App.Writer, "Unapplied migrations: %s\n", ms.Unapplied())
					fmt.Fprintf(c.App.Writer, "Last migration group: %s\n", ms.LastGroup())

					return nil
				},
			},
		},
	}
}
