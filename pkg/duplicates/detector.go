// Package duplicates warns when a book being added already exists in a
// collection. Its answers are advisory: callers decide whether to proceed.
package duplicates

import (
	"context"
	"strings"

	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/readtrack/pkg/errcodes"
	"github.com/shishobooks/readtrack/pkg/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Finder returns candidate duplicates from a collection. The gateway client
// implements it with the backend's check-duplicate endpoint.
type Finder interface {
	FindDuplicates(ctx context.Context, kind models.Kind, title string, author *string) ([]models.Entry, error)
}

type Result struct {
	Kind      models.Kind    `json:"kind"`
	Duplicate bool           `json:"duplicate"`
	Matches   []models.Entry `json:"matches"`
}

type Detector struct {
	finder Finder
}

func New(finder Finder) *Detector {
	return &Detector{finder: finder}
}

// CheckDuplicate looks for entries in kind's collection with the same title
// (and author, when both sides have one).
func (d *Detector) CheckDuplicate(ctx context.Context, kind models.Kind, title string, author *string) (*Result, error) {
	if NormalizeTitle(title) == "" {
		return nil, errcodes.ValidationError("Title can't be blank.")
	}
	if !kind.Valid() {
		return nil, errcodes.ValidationError("Unknown collection " + string(kind) + ".")
	}

	trimmed := strings.TrimSpace(title)
	var trimmedAuthor *string
	if author != nil && strings.TrimSpace(*author) != "" {
		a := strings.TrimSpace(*author)
		trimmedAuthor = &a
	}

	candidates, err := d.finder.FindDuplicates(ctx, kind, trimmed, trimmedAuthor)
	if err != nil {
		return nil, err
	}

	res := &Result{Kind: kind, Matches: []models.Entry{}}
	for _, c := range candidates {
		if Matches(title, author, c.Metadata()) {
			res.Matches = append(res.Matches, c)
		}
	}
	res.Duplicate = len(res.Matches) > 0

	if res.Duplicate {
		logger.FromContext(ctx).Info("possible duplicate", logger.Data{
			"kind":    kind,
			"title":   trimmed,
			"matches": len(res.Matches),
		})
	}

	return res, nil
}

// NormalizeTitle folds a title or author into the form used for comparison:
// NFKC, surrounding and repeated whitespace collapsed, case folded.
func NormalizeTitle(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Join(strings.Fields(s), " ")
	return cases.Fold().String(s)
}

// Matches reports whether md describes the same book as title and author.
// Author only counts when both sides have a non-blank one.
func Matches(title string, author *string, md models.BookMetadata) bool {
	if NormalizeTitle(title) != NormalizeTitle(md.Title) {
		return false
	}
	if author == nil || md.Author == nil {
		return true
	}
	a, b := NormalizeTitle(*author), NormalizeTitle(*md.Author)
	if a == "" || b == "" {
		return true
	}
	return a == b
}
