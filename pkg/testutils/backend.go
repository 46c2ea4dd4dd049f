package testutils

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shishobooks/readtrack/pkg/models"
)

// FakeBackend is an in-memory stand-in for the reading backend. It serves the
// same paths and envelopes, and lets tests inject failures, hold requests
// open, and inspect what was sent.
type FakeBackend struct {
	// OwnerID is stamped on every created entry.
	OwnerID int64
	// Token, when set, is the only bearer token accepted. Anything else gets
	// a 401.
	Token string
	// Now is the clock used for timestamps.
	Now func() time.Time
	// URL is set by StartFakeBackend.
	URL string

	prefix   string
	mu       sync.Mutex
	nextID   int64
	entries  map[models.Kind]map[int64]models.Entry
	faults   []*fault
	holds    []*Hold
	requests []Request
}

// Request is one request the fake received.
type Request struct {
	Method        string
	Path          string
	Query         string
	Authorization string
}

type fault struct {
	method string
	path   string
	status int
	times  int
}

// Hold keeps the next matching request open until Release is called.
type Hold struct {
	method  string
	path    string
	arrived chan struct{}
	release chan struct{}
	once    sync.Once
}

// Arrived is closed once the held request reaches the fake.
func (h *Hold) Arrived() <-chan struct{} {
	return h.arrived
}

func (h *Hold) Release() {
	h.once.Do(func() { close(h.release) })
}

type envelope struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data"`
	Message   string      `json:"message,omitempty"`
	Timestamp string      `json:"timestamp"`
}

func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		OwnerID: 1,
		Now:     time.Now,
		nextID:  1,
		entries: map[models.Kind]map[int64]models.Entry{},
	}
}

// StartFakeBackend serves a new fake on a local listener for the duration of
// the test.
func StartFakeBackend(t testing.TB) *FakeBackend {
	t.Helper()
	b := NewFakeBackend()
	e := echo.New()
	e.HideBanner = true
	b.mount(e.Group(""), "")
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	b.URL = srv.URL
	return b
}

// Fail makes the next `times` requests matching method and path fail with
// status. A status of 0 drops the connection without a response.
func (b *FakeBackend) Fail(method, path string, status, times int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults = append(b.faults, &fault{method: method, path: path, status: status, times: times})
}

// Hold registers a one-shot hold for the next request matching method and
// path.
func (b *FakeBackend) Hold(method, path string) *Hold {
	h := &Hold{
		method:  method,
		path:    path,
		arrived: make(chan struct{}),
		release: make(chan struct{}),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holds = append(b.holds, h)
	return h
}

func (b *FakeBackend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Request(nil), b.requests...)
}

// Count returns how many requests matched method and path.
func (b *FakeBackend) Count(method, path string) int {
	n := 0
	for _, r := range b.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// Has reports whether the entry ref points at is stored.
func (b *FakeBackend) Has(ref models.Ref) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.entries[ref.Kind][ref.ID]
	return ok
}

// Entries returns the stored entries of kind ordered by id.
func (b *FakeBackend) Entries(kind models.Kind) []models.Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sorted(kind)
}

// Reset drops all entries, faults, holds and recorded requests.
func (b *FakeBackend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = map[models.Kind]map[int64]models.Entry{}
	b.faults = nil
	for _, h := range b.holds {
		h.Release()
	}
	b.holds = nil
	b.requests = nil
}

func (b *FakeBackend) SeedWishlist(in models.WishlistInput) models.WishlistEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := models.WishlistEntry{Record: b.record(), BookMetadata: in.BookMetadata, Memo: in.Memo}
	b.put(e)
	return e
}

func (b *FakeBackend) SeedCurrentlyReading(in models.CurrentlyReadingInput) models.CurrentlyReadingEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := buildCurrentlyReading(b.record(), in)
	b.put(e)
	return e
}

func (b *FakeBackend) SeedCompleted(in models.CompletedBookInput) models.CompletedBookEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := buildCompleted(b.record(), in)
	b.put(e)
	return e
}

func (b *FakeBackend) SeedDropped(in models.DroppedBookInput) models.DroppedBookEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := buildDropped(b.record(), in)
	b.put(e)
	return e
}

func (b *FakeBackend) record() models.Record {
	now := b.Now().UTC()
	r := models.Record{ID: b.nextID, OwnerID: b.OwnerID, CreatedAt: now, UpdatedAt: now}
	b.nextID++
	return r
}

func (b *FakeBackend) put(e models.Entry) {
	ref := e.Ref()
	if b.entries[ref.Kind] == nil {
		b.entries[ref.Kind] = map[int64]models.Entry{}
	}
	b.entries[ref.Kind][ref.ID] = e
}

func (b *FakeBackend) sorted(kind models.Kind) []models.Entry {
	out := make([]models.Entry, 0, len(b.entries[kind]))
	for _, e := range b.entries[kind] {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref().ID < out[j].Ref().ID })
	return out
}

// intercept records the request and applies auth, faults and holds.
func (b *FakeBackend) intercept(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		path := strings.TrimPrefix(req.URL.Path, b.prefix)

		b.mu.Lock()
		b.requests = append(b.requests, Request{
			Method:        req.Method,
			Path:          path,
			Query:         req.URL.RawQuery,
			Authorization: req.Header.Get(echo.HeaderAuthorization),
		})
		var hold *Hold
		for i, h := range b.holds {
			if h.method == req.Method && h.path == path {
				hold = h
				b.holds = append(b.holds[:i], b.holds[i+1:]...)
				break
			}
		}
		var matched *fault
		for _, f := range b.faults {
			if f.times > 0 && f.method == req.Method && f.path == path {
				f.times--
				matched = f
				break
			}
		}
		token := b.Token
		b.mu.Unlock()

		if hold != nil {
			close(hold.arrived)
			select {
			case <-hold.release:
			case <-req.Context().Done():
				return nil
			}
		}

		if token != "" && req.Header.Get(echo.HeaderAuthorization) != "Bearer "+token {
			return fail(c, http.StatusUnauthorized, "invalid token")
		}

		if matched != nil {
			if matched.status == 0 {
				conn, _, err := c.Response().Hijack()
				if err != nil {
					return err
				}
				return conn.Close()
			}
			return fail(c, matched.status, fmt.Sprintf("injected failure %d", matched.status))
		}

		return next(c)
	}
}

func (b *FakeBackend) ok(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, envelope{
		Success:   true,
		Data:      data,
		Timestamp: b.Now().UTC().Format(time.RFC3339),
	})
}

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, envelope{
		Success:   false,
		Message:   msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func buildCurrentlyReading(r models.Record, in models.CurrentlyReadingInput) models.CurrentlyReadingEntry {
	return models.CurrentlyReadingEntry{
		Record:             r,
		BookMetadata:       in.BookMetadata,
		ReadingType:        in.ReadingType,
		DueDate:            in.DueDate,
		ProgressPercentage: in.ProgressPercentage,
		Memo:               in.Memo,
	}
}

func buildCompleted(r models.Record, in models.CompletedBookInput) models.CompletedBookEntry {
	return models.CompletedBookEntry{
		Record:       r,
		BookMetadata: in.BookMetadata,
		Rating:       in.Rating,
		Review:       in.Review,
		FinishedDate: in.FinishedDate,
	}
}

func buildDropped(r models.Record, in models.DroppedBookInput) models.DroppedBookEntry {
	return models.DroppedBookEntry{
		Record:             r,
		BookMetadata:       in.BookMetadata,
		DropReason:         in.DropReason,
		ProgressPercentage: in.ProgressPercentage,
	}
}
