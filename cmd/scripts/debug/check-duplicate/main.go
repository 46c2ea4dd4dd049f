package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/readtrack/pkg/derived"
	"github.com/shishobooks/readtrack/pkg/duplicates"
	"github.com/shishobooks/readtrack/pkg/models"
)

func main() {
	log := logger.New()

	var opts struct {
		Author         string `short:"a" long:"author" description:"Author of the candidate book"`
		ExistingAuthor string `short:"e" long:"existing-author" description:"Author of the existing entry"`
		DueDate        string `short:"d" long:"due-date" description:"Also print whether this due date is overdue"`
	}

	args, err := flags.Parse(&opts)
	if err != nil {
		log.Err(err).Fatal("flags parse error")
	}

	if len(args) != 2 {
		fmt.Println("go run ./cmd/scripts/debug/check-duplicate [-a author] [-e existing-author] <candidate title> <existing title>")
		os.Exit(1)
	}

	existing := models.BookMetadata{Title: args[1]}
	if opts.ExistingAuthor != "" {
		existing.Author = &opts.ExistingAuthor
	}
	var author *string
	if opts.Author != "" {
		author = &opts.Author
	}

	fmt.Printf("Candidate: %q\nExisting: %q\nMatch: %v\n",
		duplicates.NormalizeTitle(args[0]),
		duplicates.NormalizeTitle(args[1]),
		duplicates.Matches(args[0], author, existing),
	)

	if opts.DueDate != "" {
		due, err := derived.ParseDueDate(opts.DueDate)
		if err != nil {
			log.Err(err).Fatal("due date parse error")
		}
		fmt.Printf("Due: %s\nOverdue: %v\n", due.Format(time.RFC3339), derived.ComputeOverdue(&opts.DueDate, time.Now()))
	}
}
