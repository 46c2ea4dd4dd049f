package main

import (
	"github.com/pkg/errors"
	"github.com/shishobooks/readtrack/pkg/config"
	"github.com/shishobooks/readtrack/pkg/gateway"
	"github.com/shishobooks/readtrack/pkg/worker"
	"github.com/uptrace/bun"
)

// newWorker builds the cleanup worker from the configured service token. It
// returns nil when no token is configured. The worker only touches rows of
// the user the token belongs to.
func newWorker(cfg *config.Config, db *bun.DB) (*worker.Worker, error) {
	if cfg.APIToken == "" {
		return nil, nil
	}

	ownerID, err := gateway.SubjectFromToken(cfg.APIToken)
	if err != nil {
		return nil, errors.Wrap(err, "api_token")
	}

	client, err := gateway.NewFromConfig(cfg)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return worker.New(cfg, db, client.WithCredentials(gateway.StaticToken(cfg.APIToken)), &ownerID), nil
}
