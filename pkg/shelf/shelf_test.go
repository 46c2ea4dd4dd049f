package shelf

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/shishobooks/readtrack/pkg/duplicates"
	"github.com/shishobooks/readtrack/pkg/gateway"
	"github.com/shishobooks/readtrack/pkg/lifecycle"
	"github.com/shishobooks/readtrack/pkg/models"
	"github.com/shishobooks/readtrack/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*Shelf, *testutils.FakeBackend) {
	t.Helper()
	b := testutils.StartFakeBackend(t)
	client, err := gateway.New(gateway.Options{BaseURL: b.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	client = client.WithCredentials(gateway.StaticToken("t"))
	return New(client, lifecycle.New(client, lifecycle.Options{})), b
}

func refs(entries []models.Entry) []models.Ref {
	out := make([]models.Ref, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Ref())
	}
	return out
}

func entryPath(ref models.Ref) string {
	return gateway.PathFor(ref.Kind) + "/" + strconv.FormatInt(ref.ID, 10)
}

func TestRefresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, b := setup(t)

	w := b.SeedWishlist(models.WishlistInput{BookMetadata: models.BookMetadata{Title: "Dune"}})
	cr := b.SeedCurrentlyReading(models.CurrentlyReadingInput{BookMetadata: models.BookMetadata{Title: "Emma"}, ReadingType: models.ReadingTypeEBook})

	require.NoError(t, s.Refresh(ctx))
	assert.Equal(t, []models.Ref{w.Ref()}, refs(s.Collection(models.KindWishlist)))
	assert.Equal(t, []models.Ref{cr.Ref()}, refs(s.Collection(models.KindCurrentlyReading)))
	assert.Empty(t, s.Collection(models.KindCompleted))
	assert.Empty(t, s.Collection(models.KindDropped))

	b.Fail(http.MethodGet, "/books", http.StatusServiceUnavailable, 1)
	require.Error(t, s.Refresh(ctx))
	assert.Len(t, s.Collection(models.KindWishlist), 1, "a failed refresh keeps the old lists")
}

func TestTransitionsUpdateCollections(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, b := setup(t)

	w := b.SeedWishlist(models.WishlistInput{BookMetadata: models.BookMetadata{Title: "Dune"}})
	require.NoError(t, s.Refresh(ctx))

	out, err := s.StartReading(ctx, w.Ref(), lifecycle.ReadingInput{ReadingType: models.ReadingTypePaperBook})
	require.NoError(t, err)
	assert.True(t, out.Removed)
	assert.Equal(t, `Started reading "Dune".`, out.Message)
	assert.Empty(t, s.Collection(models.KindWishlist))
	reading := s.Collection(models.KindCurrentlyReading)
	require.Len(t, reading, 1)
	assert.Equal(t, out.Added.Ref(), reading[0].Ref())

	out, err = s.DropBook(ctx, reading[0].Ref(), lifecycle.DropBookInput{DropReason: "slow", ProgressPercentage: 12})
	require.NoError(t, err)
	assert.Empty(t, s.Collection(models.KindCurrentlyReading))
	require.Len(t, s.Collection(models.KindDropped), 1)

	out, err = s.ResumeReading(ctx, out.Added.Ref(), lifecycle.ReadingInput{ReadingType: models.ReadingTypeEBook, ProgressPercentage: 12})
	require.NoError(t, err)
	assert.Empty(t, s.Collection(models.KindDropped))

	out, err = s.MarkAsRead(ctx, out.Added.Ref(), lifecycle.MarkAsReadInput{Rating: 4, FinishedDate: "2024-05-05"})
	require.NoError(t, err)
	assert.Equal(t, `Marked "Dune" as read.`, out.Message)
	assert.Empty(t, s.Collection(models.KindCurrentlyReading))
	assert.Len(t, s.Collection(models.KindCompleted), 1)
}

func TestTransitionRejectsWrongKind(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, b := setup(t)
	w := b.SeedWishlist(models.WishlistInput{BookMetadata: models.BookMetadata{Title: "Dune"}})
	require.NoError(t, s.Refresh(ctx))

	_, err := s.MarkAsRead(ctx, w.Ref(), lifecycle.MarkAsReadInput{Rating: 4, FinishedDate: "2024-05-05"})
	require.Error(t, err)
	assert.Equal(t, lifecycle.ValidationError, lifecycle.KindOf(err))

	_, err = s.StartReading(ctx, models.Ref{Kind: models.KindWishlist, ID: 999}, lifecycle.ReadingInput{ReadingType: models.ReadingTypePaperBook})
	require.Error(t, err)
	assert.Equal(t, lifecycle.NotFoundError, lifecycle.KindOf(err))
	assert.Len(t, b.Requests(), len(models.Kinds), "no requests beyond the refresh")
}

func TestPartialFailureKeepsBoth(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, b := setup(t)
	cr := b.SeedCurrentlyReading(models.CurrentlyReadingInput{BookMetadata: models.BookMetadata{Title: "Dune"}, ReadingType: models.ReadingTypeEBook})
	require.NoError(t, s.Refresh(ctx))

	b.Fail(http.MethodDelete, entryPath(cr.Ref()), 0, 1)

	out, err := s.DropBook(ctx, cr.Ref(), lifecycle.DropBookInput{DropReason: "lost interest", ProgressPercentage: 40})
	require.Error(t, err)
	assert.Equal(t, lifecycle.PartialFailureError, lifecycle.KindOf(err))
	require.NotNil(t, out)
	assert.False(t, out.Removed)
	assert.Contains(t, out.Message, "couldn't be removed")

	assert.Len(t, s.Collection(models.KindCurrentlyReading), 1)
	dropped := s.Collection(models.KindDropped)
	require.Len(t, dropped, 1)
	assert.Equal(t, out.Added.Ref(), dropped[0].Ref())
}

func TestNotFoundRefreshes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, b := setup(t)
	w := b.SeedWishlist(models.WishlistInput{BookMetadata: models.BookMetadata{Title: "Dune"}})
	require.NoError(t, s.Refresh(ctx))

	b.SeedWishlist(models.WishlistInput{BookMetadata: models.BookMetadata{Title: "Added elsewhere"}})
	b.Fail(http.MethodPost, "/currently-reading", http.StatusNotFound, 1)

	out, err := s.StartReading(ctx, w.Ref(), lifecycle.ReadingInput{ReadingType: models.ReadingTypeEBook})
	require.Error(t, err)
	assert.Equal(t, lifecycle.NotFoundError, lifecycle.KindOf(err))
	assert.True(t, out.Refreshed)
	assert.Len(t, s.Collection(models.KindWishlist), 2)
	assert.Equal(t, 1, b.Count(http.MethodPost, "/currently-reading"), "the transition isn't retried")
}

func TestSourceGoneBeforeDeleteRefreshes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, b := setup(t)
	cr := b.SeedCurrentlyReading(models.CurrentlyReadingInput{
		BookMetadata: models.BookMetadata{Title: "Dune"},
		ReadingType:  models.ReadingTypeEBook,
	})
	require.NoError(t, s.Refresh(ctx))

	b.Fail(http.MethodDelete, entryPath(cr.Ref()), http.StatusNotFound, 1)

	out, err := s.MarkAsRead(ctx, cr.Ref(), lifecycle.MarkAsReadInput{Rating: 5, FinishedDate: "2024-03-01"})
	require.Error(t, err)
	assert.Equal(t, lifecycle.NotFoundError, lifecycle.KindOf(err))
	require.NotNil(t, out.Added)
	assert.True(t, out.Removed)
	assert.True(t, out.Refreshed)
	assert.Contains(t, out.Message, "list is stale")

	// The fake still holds the source because the 404 was injected, so the
	// refresh brings it back next to the new entry.
	assert.Equal(t, []models.Ref{out.Added.Ref()}, refs(s.Collection(models.KindCompleted)))
	assert.Equal(t, []models.Ref{cr.Ref()}, refs(s.Collection(models.KindCurrentlyReading)))
}

func TestPendingAndConflict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, b := setup(t)
	cr := b.SeedCurrentlyReading(models.CurrentlyReadingInput{BookMetadata: models.BookMetadata{Title: "Dune"}, ReadingType: models.ReadingTypeEBook})
	require.NoError(t, s.Refresh(ctx))

	hold := b.Hold(http.MethodPost, "/books")
	done := make(chan error, 1)
	go func() {
		_, err := s.MarkAsRead(ctx, cr.Ref(), lifecycle.MarkAsReadInput{Rating: 5, FinishedDate: "2024-05-05"})
		done <- err
	}()
	<-hold.Arrived()

	assert.True(t, s.Pending(cr.Ref()))
	assert.Error(t, s.Open(ModeDrop, cr.Ref()))

	_, err := s.DropBook(ctx, cr.Ref(), lifecycle.DropBookInput{DropReason: "slow"})
	require.Error(t, err)
	assert.Equal(t, lifecycle.ConflictError, lifecycle.KindOf(err))
	assert.Zero(t, b.Count(http.MethodPost, "/dropped-books"))

	hold.Release()
	require.NoError(t, <-done)
	assert.False(t, s.Pending(cr.Ref()))
}

func TestResultsDiscardedAfterClose(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, b := setup(t)
	w := b.SeedWishlist(models.WishlistInput{BookMetadata: models.BookMetadata{Title: "Dune"}})
	require.NoError(t, s.Refresh(ctx))

	hold := b.Hold(http.MethodPost, "/currently-reading")
	done := make(chan *Outcome, 1)
	go func() {
		out, _ := s.StartReading(ctx, w.Ref(), lifecycle.ReadingInput{ReadingType: models.ReadingTypeEBook})
		done <- out
	}()
	<-hold.Arrived()
	s.Close()
	hold.Release()

	out := <-done
	require.NotNil(t, out)
	assert.True(t, out.Discarded)
	assert.Len(t, s.Collection(models.KindWishlist), 1)
	assert.Empty(t, s.Collection(models.KindCurrentlyReading))

	// The backend still finished the saga.
	assert.False(t, b.Has(w.Ref()))

	_, err := s.StartReading(ctx, w.Ref(), lifecycle.ReadingInput{ReadingType: models.ReadingTypeEBook})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestResultsDiscardedAfterCancel(t *testing.T) {
	t.Parallel()
	s, b := setup(t)
	w := b.SeedWishlist(models.WishlistInput{BookMetadata: models.BookMetadata{Title: "Dune"}})
	require.NoError(t, s.Refresh(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	hold := b.Hold(http.MethodPost, "/currently-reading")
	done := make(chan *Outcome, 1)
	go func() {
		out, _ := s.StartReading(ctx, w.Ref(), lifecycle.ReadingInput{ReadingType: models.ReadingTypeEBook})
		done <- out
	}()
	<-hold.Arrived()
	cancel()
	hold.Release()

	out := <-done
	assert.True(t, out.Discarded)
	assert.Len(t, s.Collection(models.KindWishlist), 1)
}

func TestModes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, b := setup(t)
	w := b.SeedWishlist(models.WishlistInput{BookMetadata: models.BookMetadata{Title: "Dune"}})
	d := b.SeedDropped(models.DroppedBookInput{BookMetadata: models.BookMetadata{Title: "Emma"}, DropReason: "busy"})
	require.NoError(t, s.Refresh(ctx))

	require.Error(t, s.Open(ModeComplete, w.Ref()))
	require.Error(t, s.Open(ModeDrop, d.Ref()))
	require.Error(t, s.Open(ModeStartReading, models.Ref{Kind: models.KindWishlist, ID: 404}))

	_, err := s.Submit(ctx, lifecycle.ReadingInput{ReadingType: models.ReadingTypeEBook})
	require.Error(t, err, "nothing is open")

	require.NoError(t, s.Open(ModeStartReading, w.Ref()))
	require.NoError(t, s.Open(ModeStartReading, d.Ref()))
	mode, ref := s.Mode()
	assert.Equal(t, ModeStartReading, mode)
	assert.Equal(t, d.Ref(), *ref, "opening a dialog replaces the open one")

	_, err = s.Submit(ctx, lifecycle.DropBookInput{DropReason: "x"})
	require.Error(t, err)

	out, err := s.Submit(ctx, lifecycle.ReadingInput{ReadingType: models.ReadingTypeEBook})
	require.NoError(t, err)
	assert.Equal(t, models.TransitionResumeReading, out.Transition)
	mode, ref = s.Mode()
	assert.Equal(t, ModeNone, mode)
	assert.Nil(t, ref)

	require.NoError(t, s.Open(ModeStartReading, w.Ref()))
	s.Dismiss()
	mode, _ = s.Mode()
	assert.Equal(t, ModeNone, mode)
}

func TestModeTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode Mode
		kind models.Kind
		want models.Transition
		ok   bool
	}{
		{ModeStartReading, models.KindWishlist, models.TransitionStartReading, true},
		{ModeStartReading, models.KindDropped, models.TransitionResumeReading, true},
		{ModeComplete, models.KindCurrentlyReading, models.TransitionMarkAsRead, true},
		{ModeDrop, models.KindCurrentlyReading, models.TransitionDropBook, true},
		{ModeComplete, models.KindCompleted, "", false},
		{ModeNone, models.KindWishlist, "", false},
	}
	for _, tt := range tests {
		got, ok := tt.mode.Transition(tt.kind)
		assert.Equal(t, tt.ok, ok, "%s on %s", tt.mode, tt.kind)
		assert.Equal(t, tt.want, got, "%s on %s", tt.mode, tt.kind)
	}
}

func TestOverdue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, b := setup(t)
	late := b.SeedCurrentlyReading(models.CurrentlyReadingInput{
		BookMetadata: models.BookMetadata{Title: "Late"},
		ReadingType:  models.ReadingTypeLibraryRental,
		DueDate:      pointerutil.String("2024-01-01"),
	})
	b.SeedCurrentlyReading(models.CurrentlyReadingInput{
		BookMetadata: models.BookMetadata{Title: "No due date"},
		ReadingType:  models.ReadingTypePaperBook,
	})
	require.NoError(t, s.Refresh(ctx))

	overdue := s.Overdue(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	require.Len(t, overdue, 1)
	assert.Equal(t, late.ID, overdue[0].ID)

	assert.Empty(t, s.Overdue(time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)))
}

func TestAddAndDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, b := setup(t)
	b.SeedWishlist(models.WishlistInput{BookMetadata: models.BookMetadata{Title: "Dune"}})
	require.NoError(t, s.Refresh(ctx))

	e, res, err := s.AddWishlist(ctx, models.WishlistInput{BookMetadata: models.BookMetadata{Title: "DUNE"}}, func(*duplicates.Result) bool { return false })
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.True(t, res.Duplicate)
	assert.Len(t, s.Collection(models.KindWishlist), 1)

	e, _, err = s.AddWishlist(ctx, models.WishlistInput{BookMetadata: models.BookMetadata{Title: "Emma"}}, nil)
	require.NoError(t, err)
	assert.Len(t, s.Collection(models.KindWishlist), 2)

	require.NoError(t, s.Delete(ctx, e.Ref()))
	assert.Len(t, s.Collection(models.KindWishlist), 1)
	assert.False(t, b.Has(e.Ref()))
}
