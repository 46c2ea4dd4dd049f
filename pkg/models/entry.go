package models

import (
	"time"

	"github.com/shishobooks/readtrack/pkg/derived"
)

type ReadingType string

const (
	ReadingTypePaperBook     ReadingType = "PAPER_BOOK"
	ReadingTypeLibraryRental ReadingType = "LIBRARY_RENTAL"
	ReadingTypeMillie        ReadingType = "MILLIE"
	ReadingTypeEBook         ReadingType = "E_BOOK"
)

func (rt ReadingType) Valid() bool {
	switch rt {
	case ReadingTypePaperBook, ReadingTypeLibraryRental, ReadingTypeMillie, ReadingTypeEBook:
		return true
	}
	return false
}

// BookMetadata is shared by every entry and copied verbatim across
// transitions.
type BookMetadata struct {
	Title         string  `json:"title"`
	Author        *string `json:"author,omitempty"`
	CoverImage    *string `json:"coverImage,omitempty"`
	Publisher     *string `json:"publisher,omitempty"`
	PublishedDate *string `json:"publishedDate,omitempty"`
	Description   *string `json:"description,omitempty"`
}

// Record holds the server-assigned identity of a persisted entry.
type Record struct {
	ID        int64     `json:"id"`
	OwnerID   int64     `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Entry is the closed set of lifecycle entries. Only the four types in this
// file implement it.
type Entry interface {
	Kind() Kind
	Ref() Ref
	Metadata() BookMetadata
	Owner() int64
	isEntry()
}

type WishlistEntry struct {
	Record
	BookMetadata
	Memo *string `json:"memo,omitempty"`
}

func (e WishlistEntry) Kind() Kind             { return KindWishlist }
func (e WishlistEntry) Ref() Ref               { return Ref{KindWishlist, e.ID} }
func (e WishlistEntry) Metadata() BookMetadata { return e.BookMetadata }
func (e WishlistEntry) Owner() int64           { return e.OwnerID }
func (WishlistEntry) isEntry()                 {}

type CurrentlyReadingEntry struct {
	Record
	BookMetadata
	ReadingType        ReadingType `json:"readingType"`
	DueDate            *string     `json:"dueDate,omitempty"`
	ProgressPercentage int         `json:"progressPercentage"`
	Memo               *string     `json:"memo,omitempty"`
	IsOverdue          bool        `json:"isOverdue"`
}

func (e CurrentlyReadingEntry) Kind() Kind             { return KindCurrentlyReading }
func (e CurrentlyReadingEntry) Ref() Ref               { return Ref{KindCurrentlyReading, e.ID} }
func (e CurrentlyReadingEntry) Metadata() BookMetadata { return e.BookMetadata }
func (e CurrentlyReadingEntry) Owner() int64           { return e.OwnerID }
func (CurrentlyReadingEntry) isEntry()                 {}

// Derive recomputes the fields that are never trusted from storage. It must
// run on every read.
func (e *CurrentlyReadingEntry) Derive(now time.Time) {
	e.ProgressPercentage = derived.ClampProgress(float64(e.ProgressPercentage))
	e.IsOverdue = derived.ComputeOverdue(e.DueDate, now)
}

type CompletedBookEntry struct {
	Record
	BookMetadata
	Rating       int     `json:"rating"`
	Review       *string `json:"review,omitempty"`
	FinishedDate string  `json:"finishedDate"`
}

func (e CompletedBookEntry) Kind() Kind             { return KindCompleted }
func (e CompletedBookEntry) Ref() Ref               { return Ref{KindCompleted, e.ID} }
func (e CompletedBookEntry) Metadata() BookMetadata { return e.BookMetadata }
func (e CompletedBookEntry) Owner() int64           { return e.OwnerID }
func (CompletedBookEntry) isEntry()                 {}

type DroppedBookEntry struct {
	Record
	BookMetadata
	DropReason         string `json:"dropReason"`
	ProgressPercentage int    `json:"progressPercentage"`
}

func (e DroppedBookEntry) Kind() Kind             { return KindDropped }
func (e DroppedBookEntry) Ref() Ref               { return Ref{KindDropped, e.ID} }
func (e DroppedBookEntry) Metadata() BookMetadata { return e.BookMetadata }
func (e DroppedBookEntry) Owner() int64           { return e.OwnerID }
func (DroppedBookEntry) isEntry()                 {}

// Entries widens a typed slice to the sum type.
func Entries[E Entry](es []E) []Entry {
	out := make([]Entry, 0, len(es))
	for _, e := range es {
		out = append(out, e)
	}
	return out
}

// Request shapes sent to the backend on create and update.

type WishlistInput struct {
	BookMetadata
	Memo *string `json:"memo,omitempty"`
}

type CurrentlyReadingInput struct {
	BookMetadata
	ReadingType        ReadingType `json:"readingType"`
	DueDate            *string     `json:"dueDate,omitempty"`
	ProgressPercentage int         `json:"progressPercentage"`
	Memo               *string     `json:"memo,omitempty"`
}

type CompletedBookInput struct {
	BookMetadata
	Rating       int     `json:"rating"`
	Review       *string `json:"review,omitempty"`
	FinishedDate string  `json:"finishedDate"`
}

type DroppedBookInput struct {
	BookMetadata
	DropReason         string `json:"dropReason"`
	ProgressPercentage int    `json:"progressPercentage"`
}

type ProgressInput struct {
	ProgressPercentage int `json:"progressPercentage"`
}

// Page is the backend's pagination wrapper.
type Page[T any] struct {
	Content       []T   `json:"content"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	Number        int   `json:"number"`
	Size          int   `json:"size"`
	First         bool  `json:"first"`
	Last          bool  `json:"last"`
}
