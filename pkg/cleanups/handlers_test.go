package cleanups

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/segmentio/encoding/json"
	"github.com/shishobooks/readtrack/pkg/auth"
	"github.com/shishobooks/readtrack/pkg/binder"
	"github.com/shishobooks/readtrack/pkg/config"
	"github.com/shishobooks/readtrack/pkg/errcodes"
	"github.com/shishobooks/readtrack/pkg/gateway"
	"github.com/shishobooks/readtrack/pkg/models"
	"github.com/shishobooks/readtrack/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type handlerEnv struct {
	e       *echo.Echo
	db      *bun.DB
	svc     *Service
	backend *testutils.FakeBackend
	token   string
}

func setupHandlers(t *testing.T) *handlerEnv {
	t.Helper()

	db := newTestDB(t)
	backend := testutils.StartFakeBackend(t)

	cfg := config.NewForTest()
	cfg.APIBaseURL = backend.URL
	cfg.CleanupMaxAttempts = 2

	client, err := gateway.NewFromConfig(cfg)
	require.NoError(t, err)

	e := echo.New()
	b, err := binder.New()
	require.NoError(t, err)
	e.Binder = b
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	authMiddleware := auth.NewMiddleware(client)
	RegisterRoutesWithGroup(e.Group("/cleanups", authMiddleware.Authenticate), db, cfg)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "1"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	backend.Token = token

	return &handlerEnv{e: e, db: db, svc: NewService(db), backend: backend, token: token}
}

func (env *handlerEnv) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+env.token)
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func (env *handlerEnv) record(t *testing.T, ownerID int64, sagaID string, source models.Ref) *models.Cleanup {
	t.Helper()
	c := newCleanup(ownerID, sagaID)
	c.SourceKind = source.Kind
	c.SourceID = source.ID
	require.NoError(t, env.svc.Record(context.Background(), c))
	return c
}

func TestListHandler(t *testing.T) {
	env := setupHandlers(t)
	env.record(t, 1, "mine", models.Ref{Kind: models.KindCurrentlyReading, ID: 1})
	env.record(t, 2, "theirs", models.Ref{Kind: models.KindCurrentlyReading, ID: 2})

	rec := env.do(t, http.MethodGet, "/cleanups")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Cleanups []models.Cleanup `json:"cleanups"`
		Total    int              `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	require.Len(t, resp.Cleanups, 1)
	assert.Equal(t, "mine", resp.Cleanups[0].SagaID)

	rec = env.do(t, http.MethodGet, "/cleanups?status=bogus")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestListHandler_RequiresAuth(t *testing.T) {
	env := setupHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/cleanups", nil)
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRetryHandler(t *testing.T) {
	env := setupHandlers(t)
	leftover := env.backend.SeedCurrentlyReading(models.CurrentlyReadingInput{
		BookMetadata: models.BookMetadata{Title: "Clean Code"},
		ReadingType:  models.ReadingTypePaperBook,
	})
	c := env.record(t, 1, "saga-1", leftover.Ref())

	rec := env.do(t, http.MethodPost, "/cleanups/"+strconv.Itoa(c.ID)+"/retry")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.False(t, env.backend.Has(leftover.Ref()))
	got, err := env.svc.RetrieveCleanup(context.Background(), RetrieveCleanupOptions{ID: &c.ID})
	require.NoError(t, err)
	assert.Equal(t, models.CleanupStatusResolved, got.Status)

	// The backend saw the caller's token, not a configured one.
	last := env.backend.Requests()[len(env.backend.Requests())-1]
	assert.Equal(t, "Bearer "+env.token, last.Authorization)
}

func TestRetryHandler_FailedRowGetsAnotherAttempt(t *testing.T) {
	env := setupHandlers(t)
	leftover := env.backend.SeedCurrentlyReading(models.CurrentlyReadingInput{
		BookMetadata: models.BookMetadata{Title: "Clean Code"},
		ReadingType:  models.ReadingTypePaperBook,
	})
	c := env.record(t, 1, "saga-1", leftover.Ref())
	c.Status = models.CleanupStatusFailed
	c.Attempts = 2
	require.NoError(t, env.svc.UpdateCleanup(context.Background(), c, UpdateCleanupOptions{Columns: []string{"status", "attempts"}}))

	path := gateway.PathFor(models.KindCurrentlyReading) + "/" + strconv.FormatInt(leftover.ID, 10)
	env.backend.Fail(http.MethodDelete, path, http.StatusServiceUnavailable, 1)

	rec := env.do(t, http.MethodPost, "/cleanups/"+strconv.Itoa(c.ID)+"/retry")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	got, err := env.svc.RetrieveCleanup(context.Background(), RetrieveCleanupOptions{ID: &c.ID})
	require.NoError(t, err)
	assert.Equal(t, 3, got.Attempts)
	assert.Equal(t, models.CleanupStatusFailed, got.Status)

	rec = env.do(t, http.MethodPost, "/cleanups/"+strconv.Itoa(c.ID)+"/retry")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, env.backend.Has(leftover.Ref()))
}

func TestRetryHandler_OtherOwner(t *testing.T) {
	env := setupHandlers(t)
	c := env.record(t, 2, "theirs", models.Ref{Kind: models.KindCurrentlyReading, ID: 5})

	rec := env.do(t, http.MethodPost, "/cleanups/"+strconv.Itoa(c.ID)+"/retry")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, env.backend.Requests())
}

func TestDismissHandler(t *testing.T) {
	env := setupHandlers(t)
	c := env.record(t, 1, "saga-1", models.Ref{Kind: models.KindCurrentlyReading, ID: 5})

	rec := env.do(t, http.MethodDelete, "/cleanups/"+strconv.Itoa(c.ID))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got, err := env.svc.RetrieveCleanup(context.Background(), RetrieveCleanupOptions{ID: &c.ID})
	require.NoError(t, err)
	assert.Equal(t, models.CleanupStatusDismissed, got.Status)

	rec = env.do(t, http.MethodDelete, "/cleanups/abc")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
