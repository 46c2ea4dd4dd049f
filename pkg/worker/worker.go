// Package worker retries the source deletions that transitions left behind.
package worker

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/shishobooks/readtrack/pkg/cleanups"
	"github.com/shishobooks/readtrack/pkg/config"
	"github.com/shishobooks/readtrack/pkg/models"
	"github.com/uptrace/bun"
)

var processID = randStringBytes(8)

type Worker struct {
	config *config.Config
	log    logger.Logger

	cleanupService *cleanups.Service
	deleter        cleanups.Deleter
	// ownerID limits the worker to rows of the user its token belongs to.
	ownerID *int64

	mu       sync.Mutex
	inFlight map[int]struct{}

	queue          chan *models.Cleanup
	shutdown       chan struct{}
	doneFetching   chan struct{}
	doneProcessing chan struct{}
}

// New builds a worker that deletes leftover sources through deleter. A nil
// ownerID processes every owner's rows.
func New(cfg *config.Config, db *bun.DB, deleter cleanups.Deleter, ownerID *int64) *Worker {
	return &Worker{
		config: cfg,
		log:    logger.New(),

		cleanupService: cleanups.NewService(db),
		deleter:        deleter,
		ownerID:        ownerID,

		inFlight: map[int]struct{}{},

		queue:          make(chan *models.Cleanup, cfg.WorkerProcesses),
		shutdown:       make(chan struct{}),
		doneFetching:   make(chan struct{}),
		doneProcessing: make(chan struct{}, cfg.WorkerProcesses),
	}
}

func (w *Worker) Start() {
	go w.fetchCleanups()
	for i := 0; i < w.config.WorkerProcesses; i++ {
		go w.processCleanups()
	}
}

func (w *Worker) fetchCleanups() {
	duration := w.config.CleanupInterval
	timer := time.NewTimer(duration)

	for {
		select {
		case <-w.shutdown:
			// We're shutting down, so stop adding more cleanups to the queue.
			timer.Stop()
			w.doneFetching <- struct{}{}
			return
		case <-timer.C:
			due, err := w.due(context.Background())
			if err != nil {
				w.log.Err(err).Error("list cleanups error")
				timer.Reset(duration)
				continue
			}
			if !w.enqueue(due) {
				w.doneFetching <- struct{}{}
				return
			}
			timer.Reset(duration)
		}
	}
}

// due returns pending rows that weren't touched in the last interval and
// aren't already queued, and marks them as in flight.
func (w *Worker) due(ctx context.Context) ([]*models.Cleanup, error) {
	before := time.Now().Add(-w.config.CleanupInterval)
	rows, err := w.cleanupService.ListCleanups(ctx, cleanups.ListCleanupsOptions{
		Limit:         pointerutil.Int(w.config.WorkerProcesses * 4),
		OwnerID:       w.ownerID,
		Statuses:      []string{models.CleanupStatusPending},
		UpdatedBefore: &before,
	})
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	due := make([]*models.Cleanup, 0, len(rows))
	for _, c := range rows {
		if _, ok := w.inFlight[c.ID]; ok {
			continue
		}
		w.inFlight[c.ID] = struct{}{}
		due = append(due, c)
	}
	return due, nil
}

// enqueue hands due rows to the processors. Once shutdown starts, nothing
// else is queued and the remaining rows are released. It reports false when
// the worker is shutting down.
func (w *Worker) enqueue(due []*models.Cleanup) bool {
	for i, c := range due {
		select {
		case <-w.shutdown:
			w.releaseAll(due[i:])
			return false
		default:
		}
		select {
		case w.queue <- c:
		case <-w.shutdown:
			w.releaseAll(due[i:])
			return false
		}
	}
	return true
}

func (w *Worker) releaseAll(rows []*models.Cleanup) {
	for _, c := range rows {
		w.release(c.ID)
	}
}

func (w *Worker) release(id int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inFlight, id)
}

func (w *Worker) processCleanups() {
	for {
		select {
		case <-w.shutdown:
			w.doneProcessing <- struct{}{}
			return
		case c := <-w.queue:
			w.process(c)
		}
	}
}

func (w *Worker) process(c *models.Cleanup) {
	defer w.release(c.ID)

	id, err := uuid.NewRandom()
	if err != nil {
		w.log.Err(err).Error("new uuid error")
		return
	}
	log := w.log.ID(id.String()).Root(logger.Data{
		"cleanup_id": c.ID,
		"saga_id":    c.SagaID,
		"source":     c.SourceRef().String(),
		"process_id": processID,
	})
	ctx := log.WithContext(context.Background())

	err = w.cleanupService.Retry(ctx, c, w.deleter, w.config.CleanupMaxAttempts)
	if err != nil {
		// Retry already counted the attempt.
		return
	}
	log.Info("leftover source removed")
}

func (w *Worker) Shutdown() {
	close(w.shutdown)

	<-w.doneFetching
	for i := 0; i < w.config.WorkerProcesses; i++ {
		<-w.doneProcessing
	}
}

const letterBytes = "abcdef0123456789"

func randStringBytes(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[rand.Intn(len(letterBytes))]
	}
	return string(b)
}
