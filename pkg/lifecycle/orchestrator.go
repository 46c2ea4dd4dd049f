// Package lifecycle moves entries between the reading states. Each transition
// creates the target entry and only then deletes the source, so a failure
// never loses the book: at worst it exists in both collections.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/readtrack/pkg/derived"
	"github.com/shishobooks/readtrack/pkg/duplicates"
	"github.com/shishobooks/readtrack/pkg/errcodes"
	"github.com/shishobooks/readtrack/pkg/models"
)

// Store is the subset of the gateway the orchestrator uses.
type Store interface {
	duplicates.Finder
	CreateWishlist(ctx context.Context, in models.WishlistInput) (*models.WishlistEntry, error)
	CreateCurrentlyReading(ctx context.Context, in models.CurrentlyReadingInput) (*models.CurrentlyReadingEntry, error)
	CreateCompleted(ctx context.Context, in models.CompletedBookInput) (*models.CompletedBookEntry, error)
	CreateDropped(ctx context.Context, in models.DroppedBookInput) (*models.DroppedBookEntry, error)
	Delete(ctx context.Context, ref models.Ref) error
}

// Journal records transitions whose source couldn't be deleted.
type Journal interface {
	Record(ctx context.Context, c *models.Cleanup) error
}

// ConfirmFunc decides whether to go ahead with a creation that has possible
// duplicates. A nil ConfirmFunc always proceeds.
type ConfirmFunc func(res *duplicates.Result) bool

type Options struct {
	// DeleteRetryAttempts is how many more times a delete that failed with a
	// network error is tried before the transition is a partial failure.
	DeleteRetryAttempts int
	DeleteRetryDelay    time.Duration
	Journal             Journal
}

type Orchestrator struct {
	store    Store
	detector *duplicates.Detector
	journal  Journal
	retries  int
	delay    time.Duration
	inputs   *inputChecker
	guard    *guard
	stop     chan struct{}
	stopOnce *sync.Once
}

func New(store Store, opts Options) *Orchestrator {
	return &Orchestrator{
		store:    store,
		detector: duplicates.New(store),
		journal:  opts.Journal,
		retries:  opts.DeleteRetryAttempts,
		delay:    opts.DeleteRetryDelay,
		inputs:   newInputChecker(),
		guard:    newGuard(),
		stop:     make(chan struct{}),
		stopOnce: &sync.Once{},
	}
}

// Close stops waiting between delete retries. Sagas still running give up on
// the source after their current attempt and are journaled as partial
// failures. Copies made with WithStore are closed too.
func (o *Orchestrator) Close() {
	o.stopOnce.Do(func() { close(o.stop) })
}

// WithStore returns a copy that talks to the backend through store, usually a
// gateway client carrying the caller's credentials. The copy shares the
// in-flight guard and journal with o.
func (o *Orchestrator) WithStore(store Store) *Orchestrator {
	cp := *o
	cp.store = store
	cp.detector = duplicates.New(store)
	return &cp
}

// InFlight reports whether a transition or delete is running for ref.
func (o *Orchestrator) InFlight(ref models.Ref) bool {
	return o.guard.held(ref)
}

// CheckDuplicate runs the duplicate detector against kind's collection.
func (o *Orchestrator) CheckDuplicate(ctx context.Context, kind models.Kind, title string, author *string) (*duplicates.Result, error) {
	res, err := o.detector.CheckDuplicate(ctx, kind, title, author)
	if err != nil {
		return nil, &Error{Kind: classify(err), Err: err}
	}
	return res, nil
}

func (o *Orchestrator) StartReading(ctx context.Context, source models.WishlistEntry, in ReadingInput) (*models.CurrentlyReadingEntry, error) {
	t := models.TransitionStartReading
	if err := o.prepare(ctx, t, source, &in); err != nil {
		return nil, err
	}
	return runSaga(ctx, o, t, source, func(ctx context.Context) (*models.CurrentlyReadingEntry, error) {
		return o.store.CreateCurrentlyReading(ctx, in.toCurrentlyReading(source.BookMetadata))
	})
}

func (o *Orchestrator) MarkAsRead(ctx context.Context, source models.CurrentlyReadingEntry, in MarkAsReadInput) (*models.CompletedBookEntry, error) {
	t := models.TransitionMarkAsRead
	if err := o.prepare(ctx, t, source, &in); err != nil {
		return nil, err
	}
	return runSaga(ctx, o, t, source, func(ctx context.Context) (*models.CompletedBookEntry, error) {
		return o.store.CreateCompleted(ctx, in.toCompleted(source.BookMetadata))
	})
}

func (o *Orchestrator) DropBook(ctx context.Context, source models.CurrentlyReadingEntry, in DropBookInput) (*models.DroppedBookEntry, error) {
	t := models.TransitionDropBook
	if err := o.prepare(ctx, t, source, &in); err != nil {
		return nil, err
	}
	return runSaga(ctx, o, t, source, func(ctx context.Context) (*models.DroppedBookEntry, error) {
		return o.store.CreateDropped(ctx, in.toDropped(source.BookMetadata))
	})
}

func (o *Orchestrator) ResumeReading(ctx context.Context, source models.DroppedBookEntry, in ReadingInput) (*models.CurrentlyReadingEntry, error) {
	t := models.TransitionResumeReading
	if err := o.prepare(ctx, t, source, &in); err != nil {
		return nil, err
	}
	return runSaga(ctx, o, t, source, func(ctx context.Context) (*models.CurrentlyReadingEntry, error) {
		return o.store.CreateCurrentlyReading(ctx, in.toCurrentlyReading(source.BookMetadata))
	})
}

// prepare validates the source and input before anything touches the network.
func (o *Orchestrator) prepare(ctx context.Context, t models.Transition, source models.Entry, in interface{}) error {
	if source.Kind() != t.From() {
		return &Error{
			Kind:       ValidationError,
			Transition: t,
			Source:     source.Ref(),
			Err:        errcodes.ValidationError(fmt.Sprintf("%s entries can't %s.", source.Kind().Label(), t)),
		}
	}
	if err := checkSource(source); err != nil {
		return &Error{Kind: ValidationError, Transition: t, Source: source.Ref(), Err: err}
	}
	if err := o.inputs.check(ctx, in); err != nil {
		return &Error{Kind: ValidationError, Transition: t, Source: source.Ref(), Err: err}
	}
	return nil
}

// runSaga creates the target, then deletes the source. The caller's
// cancellation is ignored from here on so a create is never left without its
// delete.
func runSaga[T models.Entry](ctx context.Context, o *Orchestrator, t models.Transition, source models.Entry, create func(context.Context) (*T, error)) (*T, error) {
	ref := source.Ref()
	if !o.guard.acquire(ref) {
		return nil, &Error{
			Kind:       ConflictError,
			Transition: t,
			Source:     ref,
			Err:        errcodes.Conflict(fmt.Sprintf("%q is already being moved.", source.Metadata().Title)),
		}
	}
	defer o.guard.release(ref)

	ctx = context.WithoutCancel(ctx)
	sagaID := uuid.New().String()
	log := logger.FromContext(ctx).Root(logger.Data{
		"saga_id":    sagaID,
		"transition": t,
		"source":     ref.String(),
	})
	ctx = log.WithContext(ctx)

	target, err := create(ctx)
	if err != nil {
		kind := classify(err)
		log.Err(err).Warn("transition create failed", logger.Data{"kind": kind})
		return nil, &Error{Kind: kind, Transition: t, Source: ref, Err: err}
	}
	targetRef := (*target).Ref()

	attempts, err := o.deleteSource(ctx, ref)
	if err != nil && classify(err) == NotFoundError {
		// Something else moved or deleted the source while the target was
		// being created. The target stays, and the caller's list is stale.
		log.Warn("source already removed", logger.Data{"target": targetRef.String()})
		return target, &Error{
			Kind:       NotFoundError,
			Transition: t,
			Source:     ref,
			Target:     *target,
			Err:        err,
		}
	}
	if err != nil {
		perr := &Error{
			Kind:       PartialFailureError,
			Transition: t,
			Source:     ref,
			Target:     *target,
			Err:        err,
		}
		perr.CleanupID = o.recordCleanup(ctx, sagaID, perr)
		log.Err(err).Error("transition left the source behind", logger.Data{
			"target":   targetRef.String(),
			"attempts": attempts,
		})
		return target, perr
	}

	log.Info("transition complete", logger.Data{"target": targetRef.String(), "attempts": attempts})
	return target, nil
}

// deleteSource deletes ref, retrying network failures until the attempts run
// out or the orchestrator is closed.
func (o *Orchestrator) deleteSource(ctx context.Context, ref models.Ref) (int, error) {
	attempts := 0
	for {
		attempts++
		err := o.store.Delete(ctx, ref)
		if err == nil {
			return attempts, nil
		}
		if classify(err) != NetworkError || attempts > o.retries {
			return attempts, err
		}
		timer := time.NewTimer(o.delay)
		select {
		case <-timer.C:
		case <-o.stop:
			timer.Stop()
			return attempts, err
		}
	}
}

// recordCleanup journals a partial failure. Journal errors are logged, not
// returned: the caller still needs to hear about the partial failure itself.
func (o *Orchestrator) recordCleanup(ctx context.Context, sagaID string, perr *Error) *int {
	if o.journal == nil {
		return nil
	}
	lastError := perr.Err.Error()
	targetRef := perr.Target.Ref()
	c := &models.Cleanup{
		SagaID:     sagaID,
		OwnerID:    perr.Target.Owner(),
		Transition: perr.Transition,
		SourceKind: perr.Source.Kind,
		SourceID:   perr.Source.ID,
		TargetKind: targetRef.Kind,
		TargetID:   targetRef.ID,
		Title:      perr.Target.Metadata().Title,
		Status:     models.CleanupStatusPending,
		LastError:  &lastError,
	}
	if err := o.journal.Record(ctx, c); err != nil {
		logger.FromContext(ctx).Err(err).Error("couldn't record cleanup")
		return nil
	}
	return &c.ID
}

// Delete removes an entry directly. It's rejected while a transition for the
// same entry is running.
func (o *Orchestrator) Delete(ctx context.Context, ref models.Ref) error {
	if !o.guard.acquire(ref) {
		return &Error{Kind: ConflictError, Source: ref, Err: errcodes.Conflict("The entry is being moved. Try again in a moment.")}
	}
	defer o.guard.release(ref)

	if err := o.store.Delete(ctx, ref); err != nil {
		return &Error{Kind: classify(err), Source: ref, Err: err}
	}
	return nil
}

func (o *Orchestrator) AddWishlist(ctx context.Context, in models.WishlistInput, confirm ConfirmFunc) (*models.WishlistEntry, *duplicates.Result, error) {
	return addEntry(ctx, o, models.KindWishlist, in.BookMetadata, confirm, func(ctx context.Context) (*models.WishlistEntry, error) {
		return o.store.CreateWishlist(ctx, in)
	})
}

// AddCurrentlyReading creates a currently-reading entry after a duplicate
// check. Its reading fields are checked like startReading's.
func (o *Orchestrator) AddCurrentlyReading(ctx context.Context, in models.CurrentlyReadingInput, confirm ConfirmFunc) (*models.CurrentlyReadingEntry, *duplicates.Result, error) {
	reading := ReadingInput{
		ReadingType:        in.ReadingType,
		DueDate:            in.DueDate,
		ProgressPercentage: float64(in.ProgressPercentage),
		Memo:               in.Memo,
	}
	if err := o.inputs.check(ctx, &reading); err != nil {
		return nil, nil, &Error{Kind: ValidationError, Err: err}
	}
	in = reading.toCurrentlyReading(in.BookMetadata)
	return addEntry(ctx, o, models.KindCurrentlyReading, in.BookMetadata, confirm, func(ctx context.Context) (*models.CurrentlyReadingEntry, error) {
		return o.store.CreateCurrentlyReading(ctx, in)
	})
}

func (o *Orchestrator) AddCompleted(ctx context.Context, in models.CompletedBookInput, confirm ConfirmFunc) (*models.CompletedBookEntry, *duplicates.Result, error) {
	done := MarkAsReadInput{Rating: in.Rating, Review: in.Review, FinishedDate: in.FinishedDate}
	if err := o.inputs.check(ctx, &done); err != nil {
		return nil, nil, &Error{Kind: ValidationError, Err: err}
	}
	in = done.toCompleted(in.BookMetadata)
	return addEntry(ctx, o, models.KindCompleted, in.BookMetadata, confirm, func(ctx context.Context) (*models.CompletedBookEntry, error) {
		return o.store.CreateCompleted(ctx, in)
	})
}

// AddDropped creates a dropped entry directly. Dropped books aren't checked
// for duplicates.
func (o *Orchestrator) AddDropped(ctx context.Context, in models.DroppedBookInput) (*models.DroppedBookEntry, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, &Error{Kind: ValidationError, Err: errcodes.ValidationError("Title can't be blank.")}
	}
	if strings.TrimSpace(in.DropReason) == "" {
		return nil, &Error{Kind: ValidationError, Err: errcodes.ValidationError("Drop reason can't be blank.")}
	}
	in.ProgressPercentage = derived.ClampProgress(float64(in.ProgressPercentage))
	e, err := o.store.CreateDropped(ctx, in)
	if err != nil {
		return nil, &Error{Kind: classify(err), Err: err}
	}
	return e, nil
}

// addEntry checks for duplicates and creates the entry unless confirm says
// not to. When it declines, the result is returned with a nil entry.
func addEntry[E models.Entry](ctx context.Context, o *Orchestrator, kind models.Kind, md models.BookMetadata, confirm ConfirmFunc, create func(context.Context) (*E, error)) (*E, *duplicates.Result, error) {
	res, err := o.detector.CheckDuplicate(ctx, kind, md.Title, md.Author)
	if err != nil {
		return nil, nil, &Error{Kind: classify(err), Err: err}
	}
	if res.Duplicate && confirm != nil && !confirm(res) {
		return nil, res, nil
	}

	e, err := create(ctx)
	if err != nil {
		return nil, res, &Error{Kind: classify(err), Err: err}
	}
	return e, res, nil
}
