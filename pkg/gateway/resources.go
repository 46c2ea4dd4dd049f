package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shishobooks/readtrack/pkg/errcodes"
	"github.com/shishobooks/readtrack/pkg/models"
)

const (
	pathWishlists        = "/wishlists"
	pathCurrentlyReading = "/currently-reading"
	pathCompleted        = "/books"
	pathDropped          = "/dropped-books"
)

var kindsByPath = []models.Kind{
	models.KindWishlist,
	models.KindCurrentlyReading,
	models.KindDropped,
	models.KindCompleted,
}

// PathFor returns the collection root of a kind.
func PathFor(k models.Kind) string {
	switch k {
	case models.KindWishlist:
		return pathWishlists
	case models.KindCurrentlyReading:
		return pathCurrentlyReading
	case models.KindCompleted:
		return pathCompleted
	case models.KindDropped:
		return pathDropped
	}
	return ""
}

type ListOptions struct {
	Page *int
	Size *int
	Sort *string
}

func (opts ListOptions) query() url.Values {
	q := url.Values{}
	if opts.Page != nil {
		q.Set("page", strconv.Itoa(*opts.Page))
	}
	if opts.Size != nil {
		q.Set("size", strconv.Itoa(*opts.Size))
	}
	if opts.Sort != nil {
		q.Set("sort", *opts.Sort)
	}
	return q
}

// Resource is the typed mapping of one collection: E is the persisted entry,
// I the create/update request.
type Resource[E models.Entry, I any] struct {
	client *Client
	kind   models.Kind
}

func (r Resource[E, I]) Kind() models.Kind {
	return r.kind
}

func (r Resource[E, I]) List(ctx context.Context, opts ListOptions) (*models.Page[E], error) {
	page, err := call[models.Page[E]](ctx, r.client, http.MethodGet, PathFor(r.kind), opts.query(), nil)
	if err != nil {
		return nil, err
	}
	for i := range page.Content {
		derive(&page.Content[i], r.client.now())
	}
	return &page, nil
}

// ListAll walks every page of the collection.
func (r Resource[E, I]) ListAll(ctx context.Context) ([]E, error) {
	var all []E
	size := 100
	for number := 0; ; number++ {
		n := number
		page, err := r.List(ctx, ListOptions{Page: &n, Size: &size})
		if err != nil {
			return nil, err
		}
		all = append(all, page.Content...)
		if page.Last || len(page.Content) == 0 || number+1 >= page.TotalPages {
			break
		}
	}
	return all, nil
}

// Find looks an entry up by id. The backend has no single-entry endpoint, so
// this walks the collection.
func (r Resource[E, I]) Find(ctx context.Context, id int64) (*E, error) {
	all, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].Ref().ID == id {
			return &all[i], nil
		}
	}
	return nil, errcodes.NotFound(r.kind.Label() + " entry")
}

func (r Resource[E, I]) Create(ctx context.Context, in I) (*E, error) {
	e, err := call[E](ctx, r.client, http.MethodPost, PathFor(r.kind), nil, in)
	if err != nil {
		return nil, err
	}
	derive(&e, r.client.now())
	return &e, nil
}

func (r Resource[E, I]) Update(ctx context.Context, id int64, in I) (*E, error) {
	e, err := call[E](ctx, r.client, http.MethodPut, entryPath(r.kind, id), nil, in)
	if err != nil {
		return nil, err
	}
	derive(&e, r.client.now())
	return &e, nil
}

func (r Resource[E, I]) Delete(ctx context.Context, id int64) error {
	_, err := call[struct{}](ctx, r.client, http.MethodDelete, entryPath(r.kind, id), nil, nil)
	return err
}

// CheckDuplicate returns the entries the backend considers duplicates of the
// given title and author. Callers apply their own matching on top.
func (r Resource[E, I]) CheckDuplicate(ctx context.Context, title string, author *string) ([]E, error) {
	q := url.Values{}
	q.Set("title", title)
	if author != nil && strings.TrimSpace(*author) != "" {
		q.Set("author", *author)
	}
	matches, err := call[[]E](ctx, r.client, http.MethodGet, PathFor(r.kind)+"/check-duplicate", q, nil)
	if err != nil {
		return nil, err
	}
	for i := range matches {
		derive(&matches[i], r.client.now())
	}
	return matches, nil
}

// ReadingResource adds the endpoints only the currently-reading collection
// has.
type ReadingResource struct {
	Resource[models.CurrentlyReadingEntry, models.CurrentlyReadingInput]
}

func (r ReadingResource) UpdateProgress(ctx context.Context, id int64, progress int) (*models.CurrentlyReadingEntry, error) {
	path := entryPath(models.KindCurrentlyReading, id) + "/progress"
	e, err := call[models.CurrentlyReadingEntry](ctx, r.client, http.MethodPut, path, nil, models.ProgressInput{ProgressPercentage: progress})
	if err != nil {
		return nil, err
	}
	e.Derive(r.client.now())
	return &e, nil
}

// ListOverdue asks the backend for overdue entries and keeps only those that
// are overdue right now by the local clock.
func (r ReadingResource) ListOverdue(ctx context.Context) ([]models.CurrentlyReadingEntry, error) {
	entries, err := call[[]models.CurrentlyReadingEntry](ctx, r.client, http.MethodGet, pathCurrentlyReading+"/overdue", nil, nil)
	if err != nil {
		return nil, err
	}
	now := r.client.now()
	overdue := make([]models.CurrentlyReadingEntry, 0, len(entries))
	for _, e := range entries {
		e.Derive(now)
		if e.IsOverdue {
			overdue = append(overdue, e)
		}
	}
	return overdue, nil
}

func (c *Client) Wishlists() Resource[models.WishlistEntry, models.WishlistInput] {
	return Resource[models.WishlistEntry, models.WishlistInput]{c, models.KindWishlist}
}

func (c *Client) CurrentlyReading() ReadingResource {
	return ReadingResource{Resource[models.CurrentlyReadingEntry, models.CurrentlyReadingInput]{c, models.KindCurrentlyReading}}
}

func (c *Client) Completed() Resource[models.CompletedBookEntry, models.CompletedBookInput] {
	return Resource[models.CompletedBookEntry, models.CompletedBookInput]{c, models.KindCompleted}
}

func (c *Client) Dropped() Resource[models.DroppedBookEntry, models.DroppedBookInput] {
	return Resource[models.DroppedBookEntry, models.DroppedBookInput]{c, models.KindDropped}
}

// Kind-agnostic helpers used by the orchestrator, the duplicate detector and
// the cleanup worker.

func (c *Client) CreateWishlist(ctx context.Context, in models.WishlistInput) (*models.WishlistEntry, error) {
	return c.Wishlists().Create(ctx, in)
}

func (c *Client) CreateCurrentlyReading(ctx context.Context, in models.CurrentlyReadingInput) (*models.CurrentlyReadingEntry, error) {
	return c.CurrentlyReading().Create(ctx, in)
}

func (c *Client) CreateCompleted(ctx context.Context, in models.CompletedBookInput) (*models.CompletedBookEntry, error) {
	return c.Completed().Create(ctx, in)
}

func (c *Client) CreateDropped(ctx context.Context, in models.DroppedBookInput) (*models.DroppedBookEntry, error) {
	return c.Dropped().Create(ctx, in)
}

// Delete removes the entry ref points at.
func (c *Client) Delete(ctx context.Context, ref models.Ref) error {
	switch ref.Kind {
	case models.KindWishlist:
		return c.Wishlists().Delete(ctx, ref.ID)
	case models.KindCurrentlyReading:
		return c.CurrentlyReading().Delete(ctx, ref.ID)
	case models.KindCompleted:
		return c.Completed().Delete(ctx, ref.ID)
	case models.KindDropped:
		return c.Dropped().Delete(ctx, ref.ID)
	}
	return errors.Errorf("unknown kind %q", ref.Kind)
}

// FindDuplicates runs the backend duplicate check on the collection of kind.
func (c *Client) FindDuplicates(ctx context.Context, kind models.Kind, title string, author *string) ([]models.Entry, error) {
	switch kind {
	case models.KindWishlist:
		es, err := c.Wishlists().CheckDuplicate(ctx, title, author)
		return models.Entries(es), err
	case models.KindCurrentlyReading:
		es, err := c.CurrentlyReading().CheckDuplicate(ctx, title, author)
		return models.Entries(es), err
	case models.KindCompleted:
		es, err := c.Completed().CheckDuplicate(ctx, title, author)
		return models.Entries(es), err
	case models.KindDropped:
		es, err := c.Dropped().CheckDuplicate(ctx, title, author)
		return models.Entries(es), err
	}
	return nil, errors.Errorf("unknown kind %q", kind)
}

// ListEntries loads a whole collection as the sum type.
func (c *Client) ListEntries(ctx context.Context, kind models.Kind) ([]models.Entry, error) {
	switch kind {
	case models.KindWishlist:
		es, err := c.Wishlists().ListAll(ctx)
		return models.Entries(es), err
	case models.KindCurrentlyReading:
		es, err := c.CurrentlyReading().ListAll(ctx)
		return models.Entries(es), err
	case models.KindCompleted:
		es, err := c.Completed().ListAll(ctx)
		return models.Entries(es), err
	case models.KindDropped:
		es, err := c.Dropped().ListAll(ctx)
		return models.Entries(es), err
	}
	return nil, errors.Errorf("unknown kind %q", kind)
}

func entryPath(k models.Kind, id int64) string {
	return PathFor(k) + "/" + strconv.FormatInt(id, 10)
}

type deriver interface {
	Derive(now time.Time)
}

func derive(v interface{}, now time.Time) {
	if d, ok := v.(deriver); ok {
		d.Derive(now)
	}
}
