package main

import (
	"context"
	"net"
	"net/http"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
	"github.com/shishobooks/readtrack/pkg/config"
	"github.com/shishobooks/readtrack/pkg/database"
	"github.com/shishobooks/readtrack/pkg/migrations"
	"github.com/shishobooks/readtrack/pkg/server"
	"github.com/shishobooks/readtrack/pkg/version"
)

func main() {
	ctx := context.Background()
	log := logger.New()

	log.Info("starting readtrack", logger.Data{"version": version.Version})

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}

	group, err := migrations.BringUpToDate(ctx, db)
	if err != nil {
		log.Err(err).Fatal("migrations error")
	}
	if group.ID == 0 {
		log.Info("no new migrations to run")
	} else {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
	}

	wrkr, err := newWorker(cfg, db)
	if err != nil {
		log.Err(err).Fatal("worker error")
	}

	srv, err := server.New(cfg, db)
	if err != nil {
		log.Err(err).Fatal("server error")
	}

	graceful := signals.Setup()

	go func() {
		lc := net.ListenConfig{}
		listener, err := lc.Listen(ctx, "tcp", srv.Addr)
		if err != nil {
			log.Err(err).Fatal("failed to bind port")
		}
		log.Info("server started", logger.Data{"addr": listener.Addr().String()})

		err = srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Fatal("server stopped")
		}
		log.Info("server stopped")
	}()

	if wrkr != nil {
		wrkr.Start()
		log.Info("worker started", logger.Data{"interval": cfg.CleanupInterval.String()})
	} else {
		log.Warn("api_token not set, leftover sources won't be retried in the background")
	}

	<-graceful
	log.Info("starting graceful shutdown")

	err = srv.Shutdown(ctx)
	if err != nil {
		log.Err(err).Error("server shutdown error")
	}
	log.Info("server shutdown")

	if wrkr != nil {
		wrkr.Shutdown()
		log.Info("worker shutdown")
	}

	err = db.Close()
	if err != nil {
		log.Err(err).Error("database close error")
	}
	log.Info("database closed")
}
