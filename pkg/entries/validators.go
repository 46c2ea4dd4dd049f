package entries

import (
	"github.com/shishobooks/readtrack/pkg/derived"
	"github.com/shishobooks/readtrack/pkg/lifecycle"
	"github.com/shishobooks/readtrack/pkg/models"
)

type ListEntriesQuery struct {
	Page int     `query:"page" json:"page,omitempty" validate:"min=0"`
	Size int     `query:"size" json:"size,omitempty" default:"20" validate:"min=1,max=100"`
	Sort *string `query:"sort" json:"sort,omitempty" mod:"trim"`
}

type CheckDuplicateQuery struct {
	Title  string  `query:"title" json:"title" mod:"trim" validate:"notblank"`
	Author *string `query:"author" json:"author,omitempty" mod:"trim"`
}

type MetadataPayload struct {
	Title         string  `json:"title" mod:"trim" validate:"notblank,max=500"`
	Author        *string `json:"author,omitempty" mod:"trim"`
	CoverImage    *string `json:"coverImage,omitempty" mod:"trim" validate:"omitempty,url"`
	Publisher     *string `json:"publisher,omitempty" mod:"trim"`
	PublishedDate *string `json:"publishedDate,omitempty" mod:"trim"`
	Description   *string `json:"description,omitempty" mod:"trim"`
}

func (p MetadataPayload) metadata() models.BookMetadata {
	return models.BookMetadata{
		Title:         p.Title,
		Author:        blankToNil(p.Author),
		CoverImage:    blankToNil(p.CoverImage),
		Publisher:     blankToNil(p.Publisher),
		PublishedDate: blankToNil(p.PublishedDate),
		Description:   blankToNil(p.Description),
	}
}

type WishlistPayload struct {
	MetadataPayload
	Memo *string `json:"memo,omitempty" mod:"trim"`
}

func (p WishlistPayload) input() models.WishlistInput {
	return models.WishlistInput{BookMetadata: p.metadata(), Memo: blankToNil(p.Memo)}
}

type CurrentlyReadingPayload struct {
	MetadataPayload
	ReadingType        models.ReadingType `json:"readingType" mod:"trim" validate:"required,oneof=PAPER_BOOK LIBRARY_RENTAL MILLIE E_BOOK"`
	DueDate            *string            `json:"dueDate,omitempty" mod:"trim" validate:"omitempty,duedate"`
	ProgressPercentage float64            `json:"progressPercentage"`
	Memo               *string            `json:"memo,omitempty" mod:"trim"`
}

func (p CurrentlyReadingPayload) input() models.CurrentlyReadingInput {
	return models.CurrentlyReadingInput{
		BookMetadata:       p.metadata(),
		ReadingType:        p.ReadingType,
		DueDate:            blankToNil(p.DueDate),
		ProgressPercentage: derived.ClampProgress(p.ProgressPercentage),
		Memo:               blankToNil(p.Memo),
	}
}

type CompletedPayload struct {
	MetadataPayload
	Rating       int     `json:"rating" validate:"required,min=1,max=5"`
	Review       *string `json:"review,omitempty" mod:"trim"`
	FinishedDate string  `json:"finishedDate" mod:"trim" validate:"required,date"`
}

func (p CompletedPayload) input() models.CompletedBookInput {
	return models.CompletedBookInput{
		BookMetadata: p.metadata(),
		Rating:       p.Rating,
		Review:       blankToNil(p.Review),
		FinishedDate: p.FinishedDate,
	}
}

type DroppedPayload struct {
	MetadataPayload
	DropReason         string  `json:"dropReason" mod:"trim" validate:"notblank"`
	ProgressPercentage float64 `json:"progressPercentage"`
}

func (p DroppedPayload) input() models.DroppedBookInput {
	return models.DroppedBookInput{
		BookMetadata:       p.metadata(),
		DropReason:         p.DropReason,
		ProgressPercentage: derived.ClampProgress(p.ProgressPercentage),
	}
}

type ProgressPayload struct {
	ProgressPercentage float64 `json:"progressPercentage"`
}

// Transition payloads name the source entry by id within the collection the
// route belongs to.

type StartReadingPayload struct {
	Source int64                  `json:"source" validate:"required,min=1"`
	Input  lifecycle.ReadingInput `json:"input"`
}

type MarkAsReadPayload struct {
	Source int64                     `json:"source" validate:"required,min=1"`
	Input  lifecycle.MarkAsReadInput `json:"input"`
}

type DropPayload struct {
	Source int64                   `json:"source" validate:"required,min=1"`
	Input  lifecycle.DropBookInput `json:"input"`
}

type ResumeReadingPayload struct {
	Source int64                  `json:"source" validate:"required,min=1"`
	Input  lifecycle.ReadingInput `json:"input"`
}

func blankToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
