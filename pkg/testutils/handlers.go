package testutils

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/segmentio/encoding/json"
	"github.com/shishobooks/readtrack/pkg/derived"
	"github.com/shishobooks/readtrack/pkg/models"
)

const defaultPageSize = 20

func (b *FakeBackend) mount(g *echo.Group, prefix string) {
	b.prefix = prefix
	g.Use(b.intercept)

	mountCollection(b, g, "/wishlists", func(r models.Record, in models.WishlistInput) models.WishlistEntry {
		return models.WishlistEntry{Record: r, BookMetadata: in.BookMetadata, Memo: in.Memo}
	})
	mountCollection(b, g, "/currently-reading", buildCurrentlyReading)
	mountCollection(b, g, "/books", buildCompleted)
	mountCollection(b, g, "/dropped-books", buildDropped)

	g.PUT("/currently-reading/:id/progress", b.updateProgress)
	g.GET("/currently-reading/overdue", b.listOverdue)
}

// mountCollection registers the CRUD and duplicate-check endpoints shared by
// every collection.
func mountCollection[E models.Entry, I any](b *FakeBackend, g *echo.Group, path string, build func(models.Record, I) E) {
	var zero I
	kind := build(models.Record{}, zero).Kind()

	g.GET(path, func(c echo.Context) error {
		page, size := pageParams(c)

		b.mu.Lock()
		all := b.sorted(kind)
		b.mu.Unlock()

		total := len(all)
		totalPages := int(math.Ceil(float64(total) / float64(size)))
		start := page * size
		if start > total {
			start = total
		}
		end := start + size
		if end > total {
			end = total
		}
		content := make([]E, 0, end-start)
		for _, e := range all[start:end] {
			content = append(content, e.(E))
		}

		return b.ok(c, http.StatusOK, models.Page[E]{
			Content:       content,
			TotalElements: int64(total),
			TotalPages:    totalPages,
			Number:        page,
			Size:          size,
			First:         page == 0,
			Last:          page >= totalPages-1,
		})
	})

	g.POST(path, func(c echo.Context) error {
		var in I
		if err := json.NewDecoder(c.Request().Body).Decode(&in); err != nil {
			return fail(c, http.StatusBadRequest, "malformed body")
		}
		if msg := check(build(models.Record{}, in)); msg != "" {
			return fail(c, http.StatusBadRequest, msg)
		}

		b.mu.Lock()
		e := build(b.record(), in)
		b.put(e)
		b.mu.Unlock()

		return b.ok(c, http.StatusCreated, e)
	})

	g.GET(path+"/check-duplicate", func(c echo.Context) error {
		title := strings.TrimSpace(c.QueryParam("title"))
		author := strings.TrimSpace(c.QueryParam("author"))
		if title == "" {
			return fail(c, http.StatusBadRequest, "title is required")
		}

		b.mu.Lock()
		all := b.sorted(kind)
		b.mu.Unlock()

		matches := []E{}
		for _, e := range all {
			md := e.Metadata()
			if !strings.EqualFold(strings.TrimSpace(md.Title), title) {
				continue
			}
			if author != "" && md.Author != nil && !strings.EqualFold(strings.TrimSpace(*md.Author), author) {
				continue
			}
			matches = append(matches, e.(E))
		}
		return b.ok(c, http.StatusOK, matches)
	})

	g.PUT(path+"/:id", func(c echo.Context) error {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			return fail(c, http.StatusBadRequest, "invalid id")
		}
		var in I
		if err := json.NewDecoder(c.Request().Body).Decode(&in); err != nil {
			return fail(c, http.StatusBadRequest, "malformed body")
		}
		if msg := check(build(models.Record{}, in)); msg != "" {
			return fail(c, http.StatusBadRequest, msg)
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		existing, ok := b.entries[kind][id]
		if !ok {
			return fail(c, http.StatusNotFound, "entry not found")
		}
		r := recordOf(existing)
		r.UpdatedAt = b.Now().UTC()
		e := build(r, in)
		b.put(e)
		return b.ok(c, http.StatusOK, e)
	})

	g.DELETE(path+"/:id", func(c echo.Context) error {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			return fail(c, http.StatusBadRequest, "invalid id")
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.entries[kind][id]; !ok {
			return fail(c, http.StatusNotFound, "entry not found")
		}
		delete(b.entries[kind], id)
		return b.ok(c, http.StatusOK, nil)
	})
}

func (b *FakeBackend) updateProgress(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid id")
	}
	var in models.ProgressInput
	if err := json.NewDecoder(c.Request().Body).Decode(&in); err != nil {
		return fail(c, http.StatusBadRequest, "malformed body")
	}
	if in.ProgressPercentage < derived.MinProgress || in.ProgressPercentage > derived.MaxProgress {
		return fail(c, http.StatusBadRequest, "progressPercentage must be between 0 and 100")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	existing, ok := b.entries[models.KindCurrentlyReading][id]
	if !ok {
		return fail(c, http.StatusNotFound, "entry not found")
	}
	e := existing.(models.CurrentlyReadingEntry)
	e.ProgressPercentage = in.ProgressPercentage
	e.UpdatedAt = b.Now().UTC()
	b.put(e)
	return b.ok(c, http.StatusOK, e)
}

func (b *FakeBackend) listOverdue(c echo.Context) error {
	b.mu.Lock()
	all := b.sorted(models.KindCurrentlyReading)
	now := b.Now()
	b.mu.Unlock()

	overdue := []models.CurrentlyReadingEntry{}
	for _, e := range all {
		cr := e.(models.CurrentlyReadingEntry)
		if derived.ComputeOverdue(cr.DueDate, now) {
			overdue = append(overdue, cr)
		}
	}
	return b.ok(c, http.StatusOK, overdue)
}

func (b *FakeBackend) reset(c echo.Context) error {
	b.Reset()
	return c.NoContent(http.StatusNoContent)
}

// check applies the backend's own field rules.
func check(e models.Entry) string {
	if strings.TrimSpace(e.Metadata().Title) == "" {
		return "title is required"
	}
	switch v := e.(type) {
	case models.CurrentlyReadingEntry:
		if v.ProgressPercentage < derived.MinProgress || v.ProgressPercentage > derived.MaxProgress {
			return "progressPercentage must be between 0 and 100"
		}
		if !v.ReadingType.Valid() {
			return "readingType is invalid"
		}
	case models.CompletedBookEntry:
		if v.Rating < 1 || v.Rating > 5 {
			return "rating must be between 1 and 5"
		}
		if v.FinishedDate == "" {
			return "finishedDate is required"
		}
	case models.DroppedBookEntry:
		if strings.TrimSpace(v.DropReason) == "" {
			return "dropReason is required"
		}
	}
	return ""
}

func recordOf(e models.Entry) models.Record {
	switch v := e.(type) {
	case models.WishlistEntry:
		return v.Record
	case models.CurrentlyReadingEntry:
		return v.Record
	case models.CompletedBookEntry:
		return v.Record
	case models.DroppedBookEntry:
		return v.Record
	}
	return models.Record{}
}

func pageParams(c echo.Context) (int, int) {
	page, err := strconv.Atoi(c.QueryParam("page"))
	if err != nil || page < 0 {
		page = 0
	}
	size, err := strconv.Atoi(c.QueryParam("size"))
	if err != nil || size < 1 {
		size = defaultPageSize
	}
	return page, size
}
