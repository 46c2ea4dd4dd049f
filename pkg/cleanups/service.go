package cleanups

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/readtrack/pkg/errcodes"
	"github.com/shishobooks/readtrack/pkg/models"
	"github.com/uptrace/bun"
)

type RetrieveCleanupOptions struct {
	ID      *int
	OwnerID *int64
}

type ListCleanupsOptions struct {
	Limit    *int
	Offset   *int
	OwnerID  *int64
	Statuses []string
	// UpdatedBefore only returns rows last touched before this time, so the
	// worker doesn't pick a row up again right after trying it.
	UpdatedBefore *time.Time

	includeTotal bool
}

type UpdateCleanupOptions struct {
	Columns []string
}

// Deleter removes an entry from the backend. The gateway client implements
// it.
type Deleter interface {
	Delete(ctx context.Context, ref models.Ref) error
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

// Record inserts a new pending cleanup. It satisfies the orchestrator's
// journal.
func (svc *Service) Record(ctx context.Context, c *models.Cleanup) error {
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = c.CreatedAt
	if c.Status == "" {
		c.Status = models.CleanupStatusPending
	}

	_, err := svc.db.
		NewInsert().
		Model(c).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (svc *Service) RetrieveCleanup(ctx context.Context, opts RetrieveCleanupOptions) (*models.Cleanup, error) {
	c := &models.Cleanup{}

	q := svc.db.
		NewSelect().
		Model(c)

	if opts.ID != nil {
		q = q.Where("c.id = ?", *opts.ID)
	}
	if opts.OwnerID != nil {
		q = q.Where("c.owner_id = ?", *opts.OwnerID)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Cleanup")
		}
		return nil, errors.WithStack(err)
	}

	return c, nil
}

func (svc *Service) ListCleanups(ctx context.Context, opts ListCleanupsOptions) ([]*models.Cleanup, error) {
	c, _, err := svc.listCleanupsWithTotal(ctx, opts)
	return c, errors.WithStack(err)
}

func (svc *Service) ListCleanupsWithTotal(ctx context.Context, opts ListCleanupsOptions) ([]*models.Cleanup, int, error) {
	opts.includeTotal = true
	return svc.listCleanupsWithTotal(ctx, opts)
}

func (svc *Service) listCleanupsWithTotal(ctx context.Context, opts ListCleanupsOptions) ([]*models.Cleanup, int, error) {
	cleanups := []*models.Cleanup{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&cleanups).
		Order("c.created_at ASC", "c.id ASC")

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}
	if opts.OwnerID != nil {
		q = q.Where("c.owner_id = ?", *opts.OwnerID)
	}
	if opts.Statuses != nil {
		q = q.Where("c.status IN (?)", bun.In(opts.Statuses))
	}
	if opts.UpdatedBefore != nil {
		q = q.Where("c.updated_at < ?", *opts.UpdatedBefore)
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return cleanups, total, nil
}

func (svc *Service) UpdateCleanup(ctx context.Context, c *models.Cleanup, opts UpdateCleanupOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	c.UpdatedAt = time.Now()
	columns := append(opts.Columns, "updated_at")

	_, err := svc.db.
		NewUpdate().
		Model(c).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errcodes.NotFound("Cleanup")
		}
		return errors.WithStack(err)
	}

	return nil
}

func (svc *Service) Resolve(ctx context.Context, c *models.Cleanup) error {
	now := time.Now()
	c.Status = models.CleanupStatusResolved
	c.ResolvedAt = &now
	return svc.UpdateCleanup(ctx, c, UpdateCleanupOptions{Columns: []string{"status", "resolved_at"}})
}

// Dismiss marks the row as handled by the user, e.g. after deleting the
// leftover entry by hand.
func (svc *Service) Dismiss(ctx context.Context, c *models.Cleanup) error {
	if c.Status == models.CleanupStatusResolved {
		return errcodes.Conflict("This cleanup is already resolved.")
	}
	now := time.Now()
	c.Status = models.CleanupStatusDismissed
	c.ResolvedAt = &now
	return svc.UpdateCleanup(ctx, c, UpdateCleanupOptions{Columns: []string{"status", "resolved_at"}})
}

// Retry deletes the leftover source entry through deleter. A missing source
// resolves the row. Any other failure is counted, and the row is marked
// failed once it reaches maxAttempts; that error is returned.
func (svc *Service) Retry(ctx context.Context, c *models.Cleanup, deleter Deleter, maxAttempts int) error {
	switch c.Status {
	case models.CleanupStatusPending, models.CleanupStatusFailed:
	default:
		return errcodes.Conflict("This cleanup is already " + c.Status + ".")
	}

	log := logger.FromContext(ctx)
	source := c.SourceRef()

	err := deleter.Delete(ctx, source)
	if err == nil || isNotFound(err) {
		if err != nil {
			log.Info("leftover source already removed", logger.Data{"cleanup_id": c.ID, "source": source.String()})
		}
		return errors.WithStack(svc.Resolve(ctx, c))
	}

	msg := err.Error()
	c.Attempts++
	c.LastError = &msg
	columns := []string{"attempts", "last_error"}
	if maxAttempts > 0 && c.Attempts >= maxAttempts {
		c.Status = models.CleanupStatusFailed
		columns = append(columns, "status")
	}
	if uerr := svc.UpdateCleanup(ctx, c, UpdateCleanupOptions{Columns: columns}); uerr != nil {
		log.Err(uerr).Error("update cleanup error")
	}
	log.Err(err).Warn("cleanup retry failed", logger.Data{"cleanup_id": c.ID, "attempts": c.Attempts, "status": c.Status})

	return err
}

func isNotFound(err error) bool {
	var e *errcodes.Error
	return errors.As(err, &e) && e.Code == "not_found"
}
