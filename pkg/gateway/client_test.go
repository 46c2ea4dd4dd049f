package gateway

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/shishobooks/readtrack/pkg/errcodes"
	"github.com/shishobooks/readtrack/pkg/models"
	"github.com/shishobooks/readtrack/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, b *testutils.FakeBackend) *Client {
	t.Helper()
	c, err := New(Options{BaseURL: b.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c.WithCredentials(StaticToken("test-token"))
}

func errCode(t *testing.T, err error) string {
	t.Helper()
	var e *errcodes.Error
	require.ErrorAs(t, err, &e)
	return e.Code
}

type refreshingToken struct {
	token     string
	next      string
	refreshed int
}

func (r *refreshingToken) Token(_ context.Context) (string, error) {
	return r.token, nil
}

func (r *refreshingToken) Refresh(_ context.Context) (string, error) {
	r.refreshed++
	r.token = r.next
	return r.token, nil
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := New(Options{})
	require.Error(t, err)

	_, err = New(Options{BaseURL: "/api"})
	require.Error(t, err)

	c, err := New(Options{BaseURL: "https://reading.example.com/api/"})
	require.NoError(t, err)
	assert.Equal(t, "/api", c.baseURL.Path)
}

func TestCreateAndList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := testutils.StartFakeBackend(t)
	b.OwnerID = 7
	c := newTestClient(t, b)

	created, err := c.CreateWishlist(ctx, models.WishlistInput{
		BookMetadata: models.BookMetadata{Title: "Clean Code", Author: pointerutil.String("Robert C. Martin")},
		Memo:         pointerutil.String("recommended"),
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, int64(7), created.OwnerID)
	assert.Equal(t, "Clean Code", created.Title)

	page, err := c.Wishlists().List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, page.Content, 1)
	assert.Equal(t, created.ID, page.Content[0].ID)
	assert.True(t, page.First)
	assert.True(t, page.Last)

	reqs := b.Requests()
	require.NotEmpty(t, reqs)
	assert.Equal(t, "Bearer test-token", reqs[0].Authorization)
}

func TestListAllWalksPages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := testutils.StartFakeBackend(t)
	c := newTestClient(t, b)

	for i := 0; i < 150; i++ {
		b.SeedWishlist(models.WishlistInput{BookMetadata: models.BookMetadata{Title: "Book"}})
	}

	all, err := c.Wishlists().ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 150)
	assert.Equal(t, 2, b.Count(http.MethodGet, "/wishlists"))
}

func TestStatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		code   string
	}{
		{"bad request", http.StatusBadRequest, "validation_error"},
		{"unauthorized", http.StatusUnauthorized, "unauthorized"},
		{"forbidden", http.StatusForbidden, "forbidden"},
		{"not found", http.StatusNotFound, "not_found"},
		{"conflict", http.StatusConflict, "conflict"},
		{"server error", http.StatusServiceUnavailable, "network_error"},
		{"dropped connection", 0, "network_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := testutils.StartFakeBackend(t)
			c := newTestClient(t, b)
			e := b.SeedWishlist(models.WishlistInput{BookMetadata: models.BookMetadata{Title: "Dune"}})

			b.Fail(http.MethodDelete, entryPath(models.KindWishlist, e.ID), tt.status, 1)
			err := c.Delete(context.Background(), e.Ref())
			require.Error(t, err)
			assert.Equal(t, tt.code, errCode(t, err))
			assert.True(t, b.Has(e.Ref()))
		})
	}
}

func TestNotFoundNamesTheResource(t *testing.T) {
	t.Parallel()
	b := testutils.StartFakeBackend(t)
	c := newTestClient(t, b)

	err := c.Delete(context.Background(), models.Ref{Kind: models.KindCurrentlyReading, ID: 99})
	require.Error(t, err)
	assert.Equal(t, "Currently Reading entry not found.", err.Error())
}

func TestFind(t *testing.T) {
	t.Parallel()
	b := testutils.StartFakeBackend(t)
	c := newTestClient(t, b)
	ctx := context.Background()

	for _, title := range []string{"Emma", "Persuasion"} {
		b.SeedDropped(models.DroppedBookInput{BookMetadata: models.BookMetadata{Title: title}, DropReason: "slow"})
	}
	seeded := b.SeedDropped(models.DroppedBookInput{
		BookMetadata:       models.BookMetadata{Title: "Dune"},
		DropReason:         "too long",
		ProgressPercentage: 30,
	})

	got, err := c.Dropped().Find(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune", got.Title)
	assert.Equal(t, 30, got.ProgressPercentage)

	_, err = c.Dropped().Find(ctx, seeded.ID+1)
	require.Error(t, err)
	assert.Equal(t, "not_found", errCode(t, err))
	assert.Equal(t, "Dropped entry not found.", err.Error())

	// Only the collection listing is used.
	for _, r := range b.Requests() {
		assert.Equal(t, "/dropped-books", r.Path)
	}
}

func TestRefreshesOnceOnUnauthorized(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := testutils.StartFakeBackend(t)
	b.Token = "fresh"

	base, err := New(Options{BaseURL: b.URL})
	require.NoError(t, err)

	t.Run("retries with the refreshed token", func(t *testing.T) {
		creds := &refreshingToken{token: "stale", next: "fresh"}
		c := base.WithCredentials(creds)

		_, err := c.Wishlists().List(ctx, ListOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1, creds.refreshed)
	})

	t.Run("gives up after one refresh", func(t *testing.T) {
		creds := &refreshingToken{token: "stale", next: "still-stale"}
		c := base.WithCredentials(creds)

		_, err := c.Wishlists().List(ctx, ListOptions{})
		require.Error(t, err)
		assert.Equal(t, "unauthorized", errCode(t, err))
		assert.Equal(t, 1, creds.refreshed)
	})

	t.Run("static tokens are not retried", func(t *testing.T) {
		c := base.WithCredentials(StaticToken("stale"))

		_, err := c.Wishlists().List(ctx, ListOptions{})
		require.Error(t, err)
		assert.Equal(t, "unauthorized", errCode(t, err))
	})
}

func TestDerivedFieldsAreRecomputed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := testutils.StartFakeBackend(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	c, err := New(Options{BaseURL: b.URL, Now: func() time.Time { return now }})
	require.NoError(t, err)
	c = c.WithCredentials(StaticToken("t"))

	past := b.SeedCurrentlyReading(models.CurrentlyReadingInput{
		BookMetadata: models.BookMetadata{Title: "Past"},
		ReadingType:  models.ReadingTypeLibraryRental,
		DueDate:      pointerutil.String("2024-05-01"),
	})
	b.SeedCurrentlyReading(models.CurrentlyReadingInput{
		BookMetadata: models.BookMetadata{Title: "Future"},
		ReadingType:  models.ReadingTypeLibraryRental,
		DueDate:      pointerutil.String("2024-07-01"),
	})

	page, err := c.CurrentlyReading().List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, page.Content, 2)
	assert.True(t, page.Content[0].IsOverdue)
	assert.False(t, page.Content[1].IsOverdue)

	overdue, err := c.CurrentlyReading().ListOverdue(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, past.ID, overdue[0].ID)
}

func TestUpdateProgress(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := testutils.StartFakeBackend(t)
	c := newTestClient(t, b)

	e := b.SeedCurrentlyReading(models.CurrentlyReadingInput{
		BookMetadata: models.BookMetadata{Title: "Dune"},
		ReadingType:  models.ReadingTypePaperBook,
	})

	updated, err := c.CurrentlyReading().UpdateProgress(ctx, e.ID, 42)
	require.NoError(t, err)
	assert.Equal(t, 42, updated.ProgressPercentage)

	_, err = c.CurrentlyReading().UpdateProgress(ctx, e.ID, 140)
	require.Error(t, err)
	assert.Equal(t, "validation_error", errCode(t, err))
}

func TestFindDuplicates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := testutils.StartFakeBackend(t)
	c := newTestClient(t, b)

	b.SeedCompleted(models.CompletedBookInput{
		BookMetadata: models.BookMetadata{Title: "Dune", Author: pointerutil.String("Frank Herbert")},
		Rating:       5,
		FinishedDate: "2024-01-01",
	})

	found, err := c.FindDuplicates(ctx, models.KindCompleted, "dune", pointerutil.String("frank herbert"))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, models.KindCompleted, found[0].Kind())

	found, err = c.FindDuplicates(ctx, models.KindWishlist, "Dune", nil)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestSubjectFromToken(t *testing.T) {
	t.Parallel()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "42"}).SignedString([]byte("secret"))
	require.NoError(t, err)

	id, err := SubjectFromToken("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "alice"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = SubjectFromToken(token)
	require.Error(t, err)

	_, err = SubjectFromToken("not-a-jwt")
	require.Error(t, err)
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	b := testutils.StartFakeBackend(t)
	c, err := New(Options{BaseURL: b.URL, RequestsPerSecond: 1, Burst: 1})
	require.NoError(t, err)
	c = c.WithCredentials(StaticToken("test-token"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = c.Wishlists().List(ctx, ListOptions{})
	require.NoError(t, err)

	// The next token is a second away, past the deadline.
	_, err = c.Wishlists().List(ctx, ListOptions{})
	require.Error(t, err)
	assert.Equal(t, "network_error", errCode(t, err))
	assert.Equal(t, 1, b.Count(http.MethodGet, "/wishlists"))
}
