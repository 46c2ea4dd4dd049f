package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/readtrack/pkg/duplicates"
	"github.com/shishobooks/readtrack/pkg/gateway"
	"github.com/shishobooks/readtrack/pkg/lifecycle"
	"github.com/shishobooks/readtrack/pkg/models"
	"github.com/shishobooks/readtrack/pkg/shelf"
	"github.com/urfave/cli/v2"
)

type session struct {
	ctx   context.Context
	shelf *shelf.Shelf
	orch  *lifecycle.Orchestrator
}

// open builds a shelf over the backend and loads it.
func open(c *cli.Context) (*session, error) {
	ctx := logger.NewWithLevel("warn").WithContext(c.Context)

	client, err := gateway.New(gateway.Options{
		BaseURL: c.String("api-base-url"),
		Timeout: c.Duration("timeout"),
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	client = client.WithCredentials(gateway.StaticToken(c.String("token")))

	orch := lifecycle.New(client, lifecycle.Options{
		DeleteRetryAttempts: 2,
		DeleteRetryDelay:    500 * time.Millisecond,
	})
	s := shelf.New(client, orch)
	if err := s.Refresh(ctx); err != nil {
		return nil, errors.Wrap(err, "load shelf")
	}
	return &session{ctx: ctx, shelf: s, orch: orch}, nil
}

func printShelf(c *cli.Context) error {
	sess, err := open(c)
	if err != nil {
		return err
	}
	defer sess.shelf.Close()

	for _, kind := range models.Kinds {
		entries := sess.shelf.Collection(kind)
		fmt.Fprintf(c.App.Writer, "%s (%d)\n", kind.Label(), len(entries))
		for _, e := range entries {
			fmt.Fprintf(c.App.Writer, "  %s\n", describe(e))
		}
	}
	return nil
}

func printOverdue(c *cli.Context) error {
	sess, err := open(c)
	if err != nil {
		return err
	}
	defer sess.shelf.Close()

	overdue := sess.shelf.Overdue(time.Now())
	if len(overdue) == 0 {
		fmt.Fprintln(c.App.Writer, "Nothing is overdue.")
		return nil
	}
	for _, e := range overdue {
		fmt.Fprintf(c.App.Writer, "%s\n", describe(e))
	}
	return nil
}

func checkDuplicate(c *cli.Context) error {
	kind, err := models.ParseKind(strings.ToUpper(c.String("kind")))
	if err != nil {
		return errors.WithStack(err)
	}
	sess, err := open(c)
	if err != nil {
		return err
	}
	defer sess.shelf.Close()

	res, err := sess.orch.CheckDuplicate(sess.ctx, kind, c.String("title"), optional(c, "author"))
	if err != nil {
		return err
	}
	printMatches(c, res)
	return nil
}

func addWishlist(c *cli.Context) error {
	sess, err := open(c)
	if err != nil {
		return err
	}
	defer sess.shelf.Close()

	in := models.WishlistInput{
		BookMetadata: models.BookMetadata{
			Title:      c.String("title"),
			Author:     optional(c, "author"),
			CoverImage: optional(c, "cover-image"),
		},
		Memo: optional(c, "memo"),
	}
	force := c.Bool("force")
	e, res, err := sess.shelf.AddWishlist(sess.ctx, in, func(*duplicates.Result) bool { return force })
	if err != nil {
		return err
	}
	if e == nil {
		printMatches(c, res)
		fmt.Fprintln(c.App.Writer, "Not added. Pass --force to add it anyway.")
		return nil
	}
	fmt.Fprintf(c.App.Writer, "Added %s\n", describe(*e))
	return nil
}

func startReading(c *cli.Context) error {
	return transition(c, shelf.ModeStartReading, models.KindWishlist, readingInput(c))
}

func resumeReading(c *cli.Context) error {
	return transition(c, shelf.ModeStartReading, models.KindDropped, readingInput(c))
}

func markAsRead(c *cli.Context) error {
	finished := c.String("finished-date")
	if finished == "" {
		finished = time.Now().Format("2006-01-02")
	}
	return transition(c, shelf.ModeComplete, models.KindCurrentlyReading, lifecycle.MarkAsReadInput{
		Rating:       c.Int("rating"),
		Review:       optional(c, "review"),
		FinishedDate: finished,
	})
}

func drop(c *cli.Context) error {
	return transition(c, shelf.ModeDrop, models.KindCurrentlyReading, lifecycle.DropBookInput{
		DropReason:         c.String("reason"),
		ProgressPercentage: c.Float64("progress"),
	})
}

// transition opens mode's dialog on the entry named by the first argument and
// submits in.
func transition(c *cli.Context, mode shelf.Mode, kind models.Kind, in interface{}) error {
	id, err := strconv.ParseInt(c.Args().First(), 10, 64)
	if err != nil {
		return errors.Errorf("expected a %s entry id, got %q", kind.Label(), c.Args().First())
	}

	sess, err := open(c)
	if err != nil {
		return err
	}
	defer sess.shelf.Close()

	if err := sess.shelf.Open(mode, models.Ref{Kind: kind, ID: id}); err != nil {
		return err
	}
	out, err := sess.shelf.Submit(sess.ctx, in)
	if out != nil && out.Message != "" {
		fmt.Fprintln(c.App.Writer, out.Message)
	}
	return err
}

func readingInput(c *cli.Context) lifecycle.ReadingInput {
	return lifecycle.ReadingInput{
		ReadingType:        models.ReadingType(strings.ToUpper(c.String("reading-type"))),
		DueDate:            optional(c, "due-date"),
		ProgressPercentage: c.Float64("progress"),
		Memo:               optional(c, "memo"),
	}
}

func printMatches(c *cli.Context, res *duplicates.Result) {
	if !res.Duplicate {
		fmt.Fprintf(c.App.Writer, "No duplicates in %s.\n", res.Kind.Label())
		return
	}
	fmt.Fprintf(c.App.Writer, "Possible duplicates in %s:\n", res.Kind.Label())
	for _, m := range res.Matches {
		fmt.Fprintf(c.App.Writer, "  %s\n", describe(m))
	}
}

func describe(e models.Entry) string {
	md := e.Metadata()
	line := fmt.Sprintf("#%d %s", e.Ref().ID, md.Title)
	if md.Author != nil {
		line += " by " + *md.Author
	}
	switch v := e.(type) {
	case models.CurrentlyReadingEntry:
		line += fmt.Sprintf(" [%s, %d%%]", v.ReadingType, v.ProgressPercentage)
		if v.DueDate != nil {
			line += " due " + *v.DueDate
		}
		if v.IsOverdue {
			line += " OVERDUE"
		}
	case models.CompletedBookEntry:
		line += fmt.Sprintf(" [%d/5, finished %s]", v.Rating, v.FinishedDate)
	case models.DroppedBookEntry:
		line += fmt.Sprintf(" [dropped at %d%%: %s]", v.ProgressPercentage, v.DropReason)
	}
	return line
}

func optional(c *cli.Context, name string) *string {
	v := strings.TrimSpace(c.String(name))
	if v == "" {
		return nil
	}
	return &v
}
