package lifecycle

import (
	"context"
	"strings"

	"github.com/go-playground/mold/v4"
	"github.com/go-playground/mold/v4/modifiers"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shishobooks/readtrack/pkg/binder"
	"github.com/shishobooks/readtrack/pkg/derived"
	"github.com/shishobooks/readtrack/pkg/errcodes"
	"github.com/shishobooks/readtrack/pkg/models"
)

// ReadingInput is what startReading and resumeReading need beyond the
// source's metadata. ProgressPercentage is clamped, not rejected.
type ReadingInput struct {
	ReadingType        models.ReadingType `json:"readingType" mod:"trim" validate:"required,oneof=PAPER_BOOK LIBRARY_RENTAL MILLIE E_BOOK"`
	DueDate            *string            `json:"dueDate,omitempty" mod:"trim" validate:"omitempty,duedate"`
	ProgressPercentage float64            `json:"progressPercentage"`
	Memo               *string            `json:"memo,omitempty" mod:"trim"`
}

type MarkAsReadInput struct {
	Rating       int     `json:"rating" validate:"required,min=1,max=5"`
	Review       *string `json:"review,omitempty" mod:"trim"`
	FinishedDate string  `json:"finishedDate" mod:"trim" validate:"required,date"`
}

type DropBookInput struct {
	DropReason         string  `json:"dropReason" mod:"trim" validate:"notblank"`
	ProgressPercentage float64 `json:"progressPercentage"`
}

// inputChecker trims and validates inputs the same way the HTTP binder does.
type inputChecker struct {
	conform  *mold.Transformer
	validate *validator.Validate
}

func newInputChecker() *inputChecker {
	return &inputChecker{
		conform:  modifiers.New(),
		validate: binder.NewValidator(),
	}
}

// check cleans up i in place and returns a ValidationError describing the
// first invalid field.
func (c *inputChecker) check(ctx context.Context, i interface{}) error {
	if err := c.conform.Struct(ctx, i); err != nil {
		return errors.WithStack(err)
	}
	if err := c.validate.Struct(i); err != nil {
		return errcodes.ValidationError(binder.ValidationMessage(err))
	}
	return nil
}

// checkSource rejects entries that can't have come from the backend.
func checkSource(e models.Entry) error {
	if e.Ref().ID == 0 {
		return errcodes.ValidationError("The selected entry has no id. Refresh and try again.")
	}
	if strings.TrimSpace(e.Metadata().Title) == "" {
		return errcodes.ValidationError("The selected entry has no title.")
	}
	return nil
}

func (in ReadingInput) toCurrentlyReading(md models.BookMetadata) models.CurrentlyReadingInput {
	return models.CurrentlyReadingInput{
		BookMetadata:       md,
		ReadingType:        in.ReadingType,
		DueDate:            blankToNil(in.DueDate),
		ProgressPercentage: derived.ClampProgress(in.ProgressPercentage),
		Memo:               blankToNil(in.Memo),
	}
}

func (in MarkAsReadInput) toCompleted(md models.BookMetadata) models.CompletedBookInput {
	return models.CompletedBookInput{
		BookMetadata: md,
		Rating:       in.Rating,
		Review:       blankToNil(in.Review),
		FinishedDate: in.FinishedDate,
	}
}

func (in DropBookInput) toDropped(md models.BookMetadata) models.DroppedBookInput {
	return models.DroppedBookInput{
		BookMetadata:       md,
		DropReason:         in.DropReason,
		ProgressPercentage: derived.ClampProgress(in.ProgressPercentage),
	}
}

func blankToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}
