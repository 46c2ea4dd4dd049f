package duplicates

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/shishobooks/readtrack/pkg/errcodes"
	"github.com/shishobooks/readtrack/pkg/gateway"
	"github.com/shishobooks/readtrack/pkg/models"
	"github.com/shishobooks/readtrack/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFinder struct {
	entries []models.Entry
	calls   int
	title   string
}

func (s *stubFinder) FindDuplicates(_ context.Context, _ models.Kind, title string, _ *string) ([]models.Entry, error) {
	s.calls++
	s.title = title
	return s.entries, nil
}

func wishlist(title string, author *string) models.WishlistEntry {
	return models.WishlistEntry{
		Record:       models.Record{ID: 1},
		BookMetadata: models.BookMetadata{Title: title, Author: author},
	}
}

func TestNormalizeTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Clean Code", "clean code"},
		{"  clean   code ", "clean code"},
		{"CLEAN\tCODE", "clean code"},
		{"Ｃｌｅａｎ Ｃｏｄｅ", "clean code"},
		{"   ", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeTitle(tt.in), tt.in)
	}
}

func TestMatches(t *testing.T) {
	t.Parallel()

	md := models.BookMetadata{Title: "Clean Code", Author: pointerutil.String("Robert C. Martin")}

	assert.True(t, Matches("clean code", nil, md))
	assert.True(t, Matches(" CLEAN CODE ", pointerutil.String("robert c. martin"), md))
	assert.False(t, Matches("Clean Coder", nil, md))
	assert.False(t, Matches("Clean Code", pointerutil.String("Someone Else"), md))
	assert.True(t, Matches("Clean Code", pointerutil.String(""), md))
	assert.True(t, Matches("Clean Code", pointerutil.String("Someone"), models.BookMetadata{Title: "Clean Code"}))
}

func TestCheckDuplicate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("blank title is rejected before any lookup", func(t *testing.T) {
		f := &stubFinder{}
		_, err := New(f).CheckDuplicate(ctx, models.KindWishlist, "  ", nil)
		require.Error(t, err)
		var e *errcodes.Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, "validation_error", e.Code)
		assert.Zero(t, f.calls)
	})

	t.Run("filters the backend's candidates", func(t *testing.T) {
		f := &stubFinder{entries: []models.Entry{
			wishlist("Clean Code", pointerutil.String("Robert C. Martin")),
			wishlist("Clean Code", pointerutil.String("Other Author")),
			wishlist("Clean Architecture", nil),
		}}
		res, err := New(f).CheckDuplicate(ctx, models.KindWishlist, " clean code ", pointerutil.String("robert c. martin"))
		require.NoError(t, err)
		assert.True(t, res.Duplicate)
		assert.Len(t, res.Matches, 1)
		assert.Equal(t, "clean code", f.title)
	})

	t.Run("no matches", func(t *testing.T) {
		f := &stubFinder{}
		res, err := New(f).CheckDuplicate(ctx, models.KindCompleted, "Dune", nil)
		require.NoError(t, err)
		assert.False(t, res.Duplicate)
		assert.Empty(t, res.Matches)
		assert.Equal(t, models.KindCompleted, res.Kind)
	})
}

func TestCheckDuplicate_AgainstBackend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := testutils.StartFakeBackend(t)
	client, err := gateway.New(gateway.Options{BaseURL: b.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	d := New(client.WithCredentials(gateway.StaticToken("t")))

	b.SeedWishlist(models.WishlistInput{BookMetadata: models.BookMetadata{Title: "Clean Code", Author: pointerutil.String("Robert C. Martin")}})

	for _, title := range []string{"Clean Code", " clean code "} {
		res, err := d.CheckDuplicate(ctx, models.KindWishlist, title, nil)
		require.NoError(t, err)
		assert.True(t, res.Duplicate, title)
	}

	res, err := d.CheckDuplicate(ctx, models.KindCurrentlyReading, "Clean Code", nil)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)

	b.Fail(http.MethodGet, "/books/check-duplicate", http.StatusServiceUnavailable, 1)
	_, err = d.CheckDuplicate(ctx, models.KindCompleted, "Clean Code", nil)
	require.Error(t, err)
}
