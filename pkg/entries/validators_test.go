package entries

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shishobooks/readtrack/pkg/binder"
	"github.com/shishobooks/readtrack/pkg/errcodes"
	"github.com/shishobooks/readtrack/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadBinding(t *testing.T) {
	t.Parallel()
	b, err := binder.New()
	require.NoError(t, err)

	bind := func(t *testing.T, payload interface{}, body string) error {
		t.Helper()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		return b.Bind(payload, echo.New().NewContext(req, httptest.NewRecorder()))
	}

	t.Run("drop payload", func(t *testing.T) {
		p := DropPayload{}
		require.NoError(t, bind(t, &p, `{"source":7,"input":{"dropReason":" slow start ","progressPercentage":12}}`))
		assert.EqualValues(t, 7, p.Source)
		assert.Equal(t, "slow start", p.Input.DropReason)

		err := bind(t, &DropPayload{}, `{"source":7,"input":{"dropReason":"  "}}`)
		assertValidation(t, err, http.StatusUnprocessableEntity, `"dropReason" can't be blank`)
	})

	t.Run("start reading payload", func(t *testing.T) {
		p := StartReadingPayload{}
		require.NoError(t, bind(t, &p, `{"source":2,"input":{"readingType":"LIBRARY_RENTAL","dueDate":" 2024-06-01 "}}`))
		assert.Equal(t, models.ReadingTypeLibraryRental, p.Input.ReadingType)
		require.NotNil(t, p.Input.DueDate)
		assert.Equal(t, "2024-06-01", *p.Input.DueDate)

		err := bind(t, &StartReadingPayload{}, `{"source":2,"input":{"readingType":"AUDIOBOOK"}}`)
		assertValidation(t, err, http.StatusUnprocessableEntity, `"readingType" must be one of the following`)

		err = bind(t, &StartReadingPayload{}, `{"source":2,"input":{"readingType":"E_BOOK","dueDate":"soon"}}`)
		assertValidation(t, err, http.StatusUnprocessableEntity, `"dueDate" should be a date`)

		err = bind(t, &StartReadingPayload{}, `{"source":2,"target":3,"input":{"readingType":"E_BOOK"}}`)
		assertValidation(t, err, http.StatusUnprocessableEntity, `Unknown Parameter "target"`)
	})

	t.Run("mark as read payload", func(t *testing.T) {
		err := bind(t, &MarkAsReadPayload{}, `{"source":2,"input":{"rating":5}}`)
		assertValidation(t, err, http.StatusUnprocessableEntity, `"finishedDate" is required`)

		err = bind(t, &MarkAsReadPayload{}, `{"source":2,"input":{"rating":9,"finishedDate":"2024-03-01"}}`)
		assertValidation(t, err, http.StatusUnprocessableEntity, `"rating" must be less than or equal to 5`)
	})

	t.Run("missing source", func(t *testing.T) {
		err := bind(t, &ResumeReadingPayload{}, `{"input":{"readingType":"E_BOOK"}}`)
		assertValidation(t, err, http.StatusUnprocessableEntity, `"source" is required`)
	})
}

func assertValidation(t *testing.T, err error, status int, msg string) {
	t.Helper()
	require.Error(t, err)
	var e *errcodes.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, status, e.HTTPCode)
	assert.Contains(t, e.Message, msg)
}
