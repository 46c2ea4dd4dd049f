// Package shelf keeps the four collections a reader sees in memory and applies
// orchestrator results to them. It's the state behind both the terminal client
// and any other front end.
package shelf

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/readtrack/pkg/duplicates"
	"github.com/shishobooks/readtrack/pkg/errcodes"
	"github.com/shishobooks/readtrack/pkg/lifecycle"
	"github.com/shishobooks/readtrack/pkg/models"
)

var ErrClosed = errors.New("shelf is closed")

// Lister loads a whole collection. The gateway client implements it.
type Lister interface {
	ListEntries(ctx context.Context, kind models.Kind) ([]models.Entry, error)
}

// Outcome describes what a transition did to the shelf.
type Outcome struct {
	Transition models.Transition
	Source     models.Ref
	// Added is the created entry. It's set for partial failures too.
	Added   models.Entry
	Removed bool
	Message string
	// Refreshed is set when the shelf reloaded because its lists were stale.
	Refreshed bool
	// Discarded is set when the result arrived after Close or after the
	// caller's context ended and wasn't applied.
	Discarded bool
}

type Shelf struct {
	lister Lister
	orch   *lifecycle.Orchestrator

	mu          sync.Mutex
	collections map[models.Kind][]models.Entry
	pending     map[models.Ref]bool
	mode        Mode
	selected    *models.Ref
	closed      bool
}

func New(lister Lister, orch *lifecycle.Orchestrator) *Shelf {
	return &Shelf{
		lister:      lister,
		orch:        orch,
		collections: map[models.Kind][]models.Entry{},
		pending:     map[models.Ref]bool{},
	}
}

// Close stops the shelf from applying any more results.
func (s *Shelf) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.mode = ModeNone
	s.selected = nil
}

// Refresh reloads every collection.
func (s *Shelf) Refresh(ctx context.Context) error {
	loaded := make(map[models.Kind][]models.Entry, len(models.Kinds))
	for _, kind := range models.Kinds {
		entries, err := s.lister.ListEntries(ctx, kind)
		if err != nil {
			return errors.WithStack(err)
		}
		loaded[kind] = entries
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if ctx.Err() != nil {
		return errors.WithStack(ctx.Err())
	}
	s.collections = loaded
	if s.selected != nil {
		if _, ok := s.find(*s.selected); !ok {
			s.mode = ModeNone
			s.selected = nil
		}
	}
	return nil
}

// Collection returns a copy of kind's entries.
func (s *Shelf) Collection(kind models.Kind) []models.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Entry(nil), s.collections[kind]...)
}

// Overdue returns the currently-reading entries that are overdue at now.
func (s *Shelf) Overdue(now time.Time) []models.CurrentlyReadingEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CurrentlyReadingEntry
	for _, e := range s.collections[models.KindCurrentlyReading] {
		cr, ok := e.(models.CurrentlyReadingEntry)
		if !ok {
			continue
		}
		cr.Derive(now)
		if cr.IsOverdue {
			out = append(out, cr)
		}
	}
	return out
}

// Pending reports whether ref has a transition in flight; its controls should
// be disabled.
func (s *Shelf) Pending(ref models.Ref) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[ref]
}

// Open opens the dialog for mode on ref, replacing any open dialog.
func (s *Shelf) Open(mode Mode, ref models.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if mode == ModeNone {
		s.mode, s.selected = ModeNone, nil
		return nil
	}
	if _, ok := s.find(ref); !ok {
		return errcodes.NotFound(ref.Kind.Label() + " entry")
	}
	if _, ok := mode.Transition(ref.Kind); !ok {
		return errcodes.ValidationError(fmt.Sprintf("%s entries can't be opened in %s mode.", ref.Kind.Label(), mode))
	}
	if s.pending[ref] {
		return errcodes.Conflict("This book is already being moved.")
	}
	s.mode = mode
	s.selected = &ref
	return nil
}

// Dismiss closes the open dialog without doing anything.
func (s *Shelf) Dismiss() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode, s.selected = ModeNone, nil
}

// Mode returns the open dialog and its entry.
func (s *Shelf) Mode() (Mode, *models.Ref) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return s.mode, nil
	}
	ref := *s.selected
	return s.mode, &ref
}

// Submit runs the open dialog's transition with in, which must be the input
// type the mode expects.
func (s *Shelf) Submit(ctx context.Context, in interface{}) (*Outcome, error) {
	mode, ref := s.Mode()
	if mode == ModeNone || ref == nil {
		return nil, errcodes.ValidationError("No dialog is open.")
	}

	var (
		out *Outcome
		err error
	)
	switch v := in.(type) {
	case lifecycle.ReadingInput:
		if mode != ModeStartReading {
			return nil, errcodes.ValidationError("Reading details don't apply to " + mode.String() + ".")
		}
		if ref.Kind == models.KindDropped {
			out, err = s.ResumeReading(ctx, *ref, v)
		} else {
			out, err = s.StartReading(ctx, *ref, v)
		}
	case lifecycle.MarkAsReadInput:
		if mode != ModeComplete {
			return nil, errcodes.ValidationError("A rating doesn't apply to " + mode.String() + ".")
		}
		out, err = s.MarkAsRead(ctx, *ref, v)
	case lifecycle.DropBookInput:
		if mode != ModeDrop {
			return nil, errcodes.ValidationError("A drop reason doesn't apply to " + mode.String() + ".")
		}
		out, err = s.DropBook(ctx, *ref, v)
	default:
		return nil, errors.Errorf("unsupported input %T", in)
	}

	if out != nil && !out.Discarded && (err == nil || out.Added != nil) {
		s.Dismiss()
	}
	return out, err
}

func (s *Shelf) StartReading(ctx context.Context, ref models.Ref, in lifecycle.ReadingInput) (*Outcome, error) {
	return s.run(ctx, ref, models.TransitionStartReading, func(ctx context.Context, src models.Entry) (models.Entry, error) {
		e, err := s.orch.StartReading(ctx, src.(models.WishlistEntry), in)
		return entryOf(e), err
	})
}

func (s *Shelf) MarkAsRead(ctx context.Context, ref models.Ref, in lifecycle.MarkAsReadInput) (*Outcome, error) {
	return s.run(ctx, ref, models.TransitionMarkAsRead, func(ctx context.Context, src models.Entry) (models.Entry, error) {
		e, err := s.orch.MarkAsRead(ctx, src.(models.CurrentlyReadingEntry), in)
		return entryOf(e), err
	})
}

func (s *Shelf) DropBook(ctx context.Context, ref models.Ref, in lifecycle.DropBookInput) (*Outcome, error) {
	return s.run(ctx, ref, models.TransitionDropBook, func(ctx context.Context, src models.Entry) (models.Entry, error) {
		e, err := s.orch.DropBook(ctx, src.(models.CurrentlyReadingEntry), in)
		return entryOf(e), err
	})
}

func (s *Shelf) ResumeReading(ctx context.Context, ref models.Ref, in lifecycle.ReadingInput) (*Outcome, error) {
	return s.run(ctx, ref, models.TransitionResumeReading, func(ctx context.Context, src models.Entry) (models.Entry, error) {
		e, err := s.orch.ResumeReading(ctx, src.(models.DroppedBookEntry), in)
		return entryOf(e), err
	})
}

// run applies one transition: it marks ref pending, calls do, and applies the
// result unless the shelf was closed or ctx ended in the meantime.
func (s *Shelf) run(ctx context.Context, ref models.Ref, t models.Transition, do func(context.Context, models.Entry) (models.Entry, error)) (*Outcome, error) {
	out := &Outcome{Transition: t, Source: ref}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if t.From() != ref.Kind {
		s.mu.Unlock()
		return nil, &lifecycle.Error{
			Kind:       lifecycle.ValidationError,
			Transition: t,
			Source:     ref,
			Err:        errcodes.ValidationError(fmt.Sprintf("%s entries can't %s.", ref.Kind.Label(), t)),
		}
	}
	src, ok := s.find(ref)
	if !ok {
		s.mu.Unlock()
		return nil, &lifecycle.Error{Kind: lifecycle.NotFoundError, Transition: t, Source: ref, Err: errcodes.NotFound(ref.Kind.Label() + " entry")}
	}
	if s.pending[ref] {
		s.mu.Unlock()
		return nil, &lifecycle.Error{Kind: lifecycle.ConflictError, Transition: t, Source: ref, Err: errcodes.Conflict("This book is already being moved.")}
	}
	s.pending[ref] = true
	s.mu.Unlock()

	added, err := do(ctx, src)

	s.mu.Lock()
	delete(s.pending, ref)
	if s.closed || ctx.Err() != nil {
		s.mu.Unlock()
		out.Discarded = true
		logger.FromContext(ctx).Info("discarding transition result", logger.Data{"transition": t, "source": ref.String()})
		return out, err
	}
	out.Added = added
	out.Message = message(t, src, err)

	kind := lifecycle.KindOf(err)
	switch {
	case err == nil:
		s.remove(ref)
		s.add(added)
		out.Removed = true
	case kind == lifecycle.PartialFailureError && added != nil:
		s.add(added)
	case kind == lifecycle.NotFoundError && added != nil:
		// The source was gone by the time it was deleted.
		s.remove(ref)
		s.add(added)
		out.Removed = true
	}
	s.mu.Unlock()

	if kind == lifecycle.NotFoundError {
		if rerr := s.Refresh(ctx); rerr != nil {
			logger.FromContext(ctx).Err(rerr).Warn("refresh after not found failed")
		} else {
			out.Refreshed = true
		}
	}

	return out, err
}

// AddWishlist creates a wishlist entry after a duplicate check. When confirm
// declines, the returned entry is nil.
func (s *Shelf) AddWishlist(ctx context.Context, in models.WishlistInput, confirm lifecycle.ConfirmFunc) (*models.WishlistEntry, *duplicates.Result, error) {
	e, res, err := s.orch.AddWishlist(ctx, in, confirm)
	if e != nil {
		s.apply(ctx, *e)
	}
	return e, res, err
}

func (s *Shelf) AddCurrentlyReading(ctx context.Context, in models.CurrentlyReadingInput, confirm lifecycle.ConfirmFunc) (*models.CurrentlyReadingEntry, *duplicates.Result, error) {
	e, res, err := s.orch.AddCurrentlyReading(ctx, in, confirm)
	if e != nil {
		s.apply(ctx, *e)
	}
	return e, res, err
}

func (s *Shelf) AddCompleted(ctx context.Context, in models.CompletedBookInput, confirm lifecycle.ConfirmFunc) (*models.CompletedBookEntry, *duplicates.Result, error) {
	e, res, err := s.orch.AddCompleted(ctx, in, confirm)
	if e != nil {
		s.apply(ctx, *e)
	}
	return e, res, err
}

func (s *Shelf) AddDropped(ctx context.Context, in models.DroppedBookInput) (*models.DroppedBookEntry, error) {
	e, err := s.orch.AddDropped(ctx, in)
	if e != nil {
		s.apply(ctx, *e)
	}
	return e, err
}

// Delete removes ref from the backend and the shelf.
func (s *Shelf) Delete(ctx context.Context, ref models.Ref) error {
	if err := s.orch.Delete(ctx, ref); err != nil && lifecycle.KindOf(err) != lifecycle.NotFoundError {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed && ctx.Err() == nil {
		s.remove(ref)
	}
	return nil
}

func (s *Shelf) apply(ctx context.Context, e models.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || ctx.Err() != nil {
		return
	}
	s.add(e)
}

func (s *Shelf) find(ref models.Ref) (models.Entry, bool) {
	for _, e := range s.collections[ref.Kind] {
		if e.Ref() == ref {
			return e, true
		}
	}
	return nil, false
}

func (s *Shelf) remove(ref models.Ref) {
	entries := s.collections[ref.Kind]
	for i, e := range entries {
		if e.Ref() == ref {
			s.collections[ref.Kind] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

func (s *Shelf) add(e models.Entry) {
	if e == nil {
		return
	}
	kind := e.Kind()
	if _, ok := s.find(e.Ref()); ok {
		return
	}
	s.collections[kind] = append([]models.Entry{e}, s.collections[kind]...)
}

func entryOf[E models.Entry](e *E) models.Entry {
	if e == nil {
		return nil
	}
	return *e
}

// message is the line shown to the reader after a transition.
func message(t models.Transition, src models.Entry, err error) string {
	title := src.Metadata().Title
	if err == nil {
		switch t {
		case models.TransitionStartReading:
			return fmt.Sprintf("Started reading %q.", title)
		case models.TransitionMarkAsRead:
			return fmt.Sprintf("Marked %q as read.", title)
		case models.TransitionDropBook:
			return fmt.Sprintf("Dropped %q.", title)
		case models.TransitionResumeReading:
			return fmt.Sprintf("Resumed reading %q.", title)
		}
		return ""
	}
	switch lifecycle.KindOf(err) {
	case lifecycle.ValidationError, lifecycle.PartialFailureError:
		return err.Error()
	case lifecycle.ConflictError:
		return fmt.Sprintf("%q is already being moved.", title)
	case lifecycle.NotFoundError:
		var lerr *lifecycle.Error
		if errors.As(err, &lerr) && lerr.Target != nil {
			return err.Error()
		}
		return fmt.Sprintf("%q no longer exists. The shelf has been refreshed.", title)
	case lifecycle.UnauthorizedError:
		return "Your session has expired. Please sign in again."
	case lifecycle.NetworkError:
		return fmt.Sprintf("Couldn't reach the reading service. %q wasn't moved; try again.", title)
	}
	return err.Error()
}
