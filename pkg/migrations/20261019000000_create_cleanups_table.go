package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			CREATE TABLE cleanups (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				saga_id TEXT NOT NULL,
				owner_id INTEGER NOT NULL,
				transition TEXT NOT NULL,
				source_kind TEXT NOT NULL,
				source_id INTEGER NOT NULL,
				target_kind TEXT NOT NULL,
				target_id INTEGER NOT NULL,
				title TEXT NOT NULL,
				status TEXT NOT NULL,
				attempts INTEGER NOT NULL DEFAULT 0,
				last_error TEXT,
				resolved_at TIMESTAMPTZ
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		// One row per saga.
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_cleanups_saga_id ON cleanups(saga_id)`)
		if err != nil {
			return errors.WithStack(err)
		}

		// The worker polls by status; the API lists by owner.
		_, err = db.Exec(`CREATE INDEX ix_cleanups_status ON cleanups(status, updated_at)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_cleanups_owner_id ON cleanups(owner_id, created_at)`)
		if err != nil {
			return errors.WithStack(err)
		}

		return nil
	}

	down := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec("DROP TABLE IF EXISTS cleanups")
		return errors.WithStack(err)
	}

	Migrations.MustRegister(up, down)
}
