package entries

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shishobooks/readtrack/pkg/auth"
	"github.com/shishobooks/readtrack/pkg/derived"
	"github.com/shishobooks/readtrack/pkg/duplicates"
	"github.com/shishobooks/readtrack/pkg/errcodes"
	"github.com/shishobooks/readtrack/pkg/gateway"
	"github.com/shishobooks/readtrack/pkg/lifecycle"
	"github.com/shishobooks/readtrack/pkg/models"
)

// TransitionResponse is returned by every lifecycle move.
type TransitionResponse struct {
	Transition models.Transition `json:"transition"`
	Removed    models.Ref        `json:"removed"`
	Added      models.Entry      `json:"added"`
}

type handler struct {
	orchestrator *lifecycle.Orchestrator
}

// scoped returns the caller's gateway client and an orchestrator that uses
// it.
func (h *handler) scoped(c echo.Context) (*gateway.Client, *lifecycle.Orchestrator, error) {
	client, err := auth.Client(c)
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}
	return client, h.orchestrator.WithStore(client), nil
}

// collection serves the routes every kind shares. P is the create/update
// payload.
type collection[E models.Entry, I any, P any] struct {
	h        *handler
	kind     models.Kind
	resource func(*gateway.Client) gateway.Resource[E, I]
	input    func(P) I
}

func (col collection[E, I, P]) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := ListEntriesQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	client, _, err := col.h.scoped(c)
	if err != nil {
		return errors.WithStack(err)
	}

	page, err := col.resource(client).List(ctx, gateway.ListOptions{
		Page: &params.Page,
		Size: &params.Size,
		Sort: params.Sort,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, page))
}

func (col collection[E, I, P]) retrieve(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := entryID(c, col.kind)
	if err != nil {
		return errors.WithStack(err)
	}

	client, _, err := col.h.scoped(c)
	if err != nil {
		return errors.WithStack(err)
	}

	e, err := col.resource(client).Find(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, e))
}

func (col collection[E, I, P]) update(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := entryID(c, col.kind)
	if err != nil {
		return errors.WithStack(err)
	}

	var params P
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	client, orch, err := col.h.scoped(c)
	if err != nil {
		return errors.WithStack(err)
	}
	ref := models.Ref{Kind: col.kind, ID: id}
	if orch.InFlight(ref) {
		return errcodes.Conflict("The entry is being moved. Try again in a moment.")
	}

	e, err := col.resource(client).Update(ctx, id, col.input(params))
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, e))
}

func (col collection[E, I, P]) delete(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := entryID(c, col.kind)
	if err != nil {
		return errors.WithStack(err)
	}

	_, orch, err := col.h.scoped(c)
	if err != nil {
		return errors.WithStack(err)
	}

	if err := orch.Delete(ctx, models.Ref{Kind: col.kind, ID: id}); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.NoContent(http.StatusNoContent))
}

func (col collection[E, I, P]) checkDuplicate(c echo.Context) error {
	ctx := c.Request().Context()

	params := CheckDuplicateQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	_, orch, err := col.h.scoped(c)
	if err != nil {
		return errors.WithStack(err)
	}

	res, err := orch.CheckDuplicate(ctx, col.kind, params.Title, params.Author)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, res))
}

func (h *handler) createWishlist(c echo.Context) error {
	params := WishlistPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}
	return create(c, h, func(ctx context.Context, orch *lifecycle.Orchestrator, confirm lifecycle.ConfirmFunc) (*models.WishlistEntry, *duplicates.Result, error) {
		return orch.AddWishlist(ctx, params.input(), confirm)
	})
}

func (h *handler) createCurrentlyReading(c echo.Context) error {
	params := CurrentlyReadingPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}
	return create(c, h, func(ctx context.Context, orch *lifecycle.Orchestrator, confirm lifecycle.ConfirmFunc) (*models.CurrentlyReadingEntry, *duplicates.Result, error) {
		return orch.AddCurrentlyReading(ctx, params.input(), confirm)
	})
}

func (h *handler) createCompleted(c echo.Context) error {
	params := CompletedPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}
	return create(c, h, func(ctx context.Context, orch *lifecycle.Orchestrator, confirm lifecycle.ConfirmFunc) (*models.CompletedBookEntry, *duplicates.Result, error) {
		return orch.AddCompleted(ctx, params.input(), confirm)
	})
}

func (h *handler) createDropped(c echo.Context) error {
	ctx := c.Request().Context()

	params := DroppedPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	_, orch, err := h.scoped(c)
	if err != nil {
		return errors.WithStack(err)
	}

	e, err := orch.AddDropped(ctx, params.input())
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusCreated, e))
}

// create runs add with a confirm func that holds back duplicates unless the
// request has ?force=true.
func create[E models.Entry](c echo.Context, h *handler, add func(context.Context, *lifecycle.Orchestrator, lifecycle.ConfirmFunc) (*E, *duplicates.Result, error)) error {
	ctx := c.Request().Context()

	force, _ := strconv.ParseBool(c.QueryParam("force"))

	_, orch, err := h.scoped(c)
	if err != nil {
		return errors.WithStack(err)
	}

	e, res, err := add(ctx, orch, func(*duplicates.Result) bool { return force })
	if err != nil {
		return errors.WithStack(err)
	}
	if e == nil {
		return errcodes.Duplicate(
			fmt.Sprintf("%q may already be in %s. Add it anyway with force=true.", res.Matches[0].Metadata().Title, res.Kind.Label()),
			map[string]interface{}{"kind": res.Kind, "matches": res.Matches},
		)
	}

	return errors.WithStack(c.JSON(http.StatusCreated, e))
}

func (h *handler) updateProgress(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := entryID(c, models.KindCurrentlyReading)
	if err != nil {
		return errors.WithStack(err)
	}

	params := ProgressPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	client, orch, err := h.scoped(c)
	if err != nil {
		return errors.WithStack(err)
	}
	if orch.InFlight(models.Ref{Kind: models.KindCurrentlyReading, ID: id}) {
		return errcodes.Conflict("The entry is being moved. Try again in a moment.")
	}

	e, err := client.CurrentlyReading().UpdateProgress(ctx, id, derived.ClampProgress(params.ProgressPercentage))
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, e))
}

func (h *handler) listOverdue(c echo.Context) error {
	ctx := c.Request().Context()

	client, _, err := h.scoped(c)
	if err != nil {
		return errors.WithStack(err)
	}

	overdue, err := client.CurrentlyReading().ListOverdue(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, overdue))
}

func (h *handler) startReading(c echo.Context) error {
	params := StartReadingPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}
	return transition(c, h, models.TransitionStartReading, params.Source,
		func(client *gateway.Client) gateway.Resource[models.WishlistEntry, models.WishlistInput] {
			return client.Wishlists()
		},
		func(ctx context.Context, orch *lifecycle.Orchestrator, source models.WishlistEntry) (models.Entry, error) {
			return added(orch.StartReading(ctx, source, params.Input))
		})
}

func (h *handler) markAsRead(c echo.Context) error {
	params := MarkAsReadPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}
	return transition(c, h, models.TransitionMarkAsRead, params.Source, currentlyReading,
		func(ctx context.Context, orch *lifecycle.Orchestrator, source models.CurrentlyReadingEntry) (models.Entry, error) {
			return added(orch.MarkAsRead(ctx, source, params.Input))
		})
}

func (h *handler) drop(c echo.Context) error {
	params := DropPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}
	return transition(c, h, models.TransitionDropBook, params.Source, currentlyReading,
		func(ctx context.Context, orch *lifecycle.Orchestrator, source models.CurrentlyReadingEntry) (models.Entry, error) {
			return added(orch.DropBook(ctx, source, params.Input))
		})
}

func (h *handler) resumeReading(c echo.Context) error {
	params := ResumeReadingPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}
	return transition(c, h, models.TransitionResumeReading, params.Source,
		func(client *gateway.Client) gateway.Resource[models.DroppedBookEntry, models.DroppedBookInput] {
			return client.Dropped()
		},
		func(ctx context.Context, orch *lifecycle.Orchestrator, source models.DroppedBookEntry) (models.Entry, error) {
			return added(orch.ResumeReading(ctx, source, params.Input))
		})
}

// transition looks the source entry up in its collection on the backend and
// runs move on it. A partial failure is returned as an error; its details carry the entry
// that was added.
func transition[S models.Entry, I any](
	c echo.Context,
	h *handler,
	t models.Transition,
	id int64,
	resource func(*gateway.Client) gateway.Resource[S, I],
	move func(context.Context, *lifecycle.Orchestrator, S) (models.Entry, error),
) error {
	ctx := c.Request().Context()

	client, orch, err := h.scoped(c)
	if err != nil {
		return errors.WithStack(err)
	}

	source, err := resource(client).Find(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	target, err := move(ctx, orch, *source)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, TransitionResponse{
		Transition: t,
		Removed:    (*source).Ref(),
		Added:      target,
	}))
}

// added widens a transition's typed result. A nil entry stays a nil
// interface.
func added[E models.Entry](e *E, err error) (models.Entry, error) {
	if err != nil {
		return nil, err
	}
	return *e, nil
}

func currentlyReading(client *gateway.Client) gateway.Resource[models.CurrentlyReadingEntry, models.CurrentlyReadingInput] {
	return client.CurrentlyReading().Resource
}

func entryID(c echo.Context, kind models.Kind) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, errcodes.NotFound(kind.Label() + " entry")
	}
	return id, nil
}
