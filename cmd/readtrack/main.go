package main

import (
	"os"
	"time"

	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/readtrack/pkg/version"
	"github.com/urfave/cli/v2"
)

func main() {
	log := logger.New()

	if err := newApp().Run(os.Args); err != nil {
		log.Err(err).Fatal("app run error")
	}
}

func newApp() *cli.App {
	readingFlags := []cli.Flag{
		&cli.StringFlag{Name: "reading-type", Usage: "PAPER_BOOK, LIBRARY_RENTAL, MILLIE or E_BOOK", Required: true},
		&cli.StringFlag{Name: "due-date", Usage: "YYYY-MM-DD"},
		&cli.Float64Flag{Name: "progress", Usage: "progress percentage, clamped to 0-100"},
		&cli.StringFlag{Name: "memo"},
	}

	return &cli.App{
		Name:    "readtrack",
		Usage:   "move books through your reading shelf",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "api-base-url", EnvVars: []string{"API_BASE_URL"}, Required: true},
			&cli.StringFlag{Name: "token", EnvVars: []string{"READTRACK_TOKEN", "API_TOKEN"}, Required: true},
			&cli.DurationFlag{Name: "timeout", Value: 10 * time.Second},
		},
		Commands: []*cli.Command{
			{
				Name:   "shelf",
				Usage:  "print every collection",
				Action: printShelf,
			},
			{
				Name:   "overdue",
				Usage:  "print currently reading books past their due date",
				Action: printOverdue,
			},
			{
				Name:  "check-duplicate",
				Usage: "check whether a collection already has a book",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "kind", Value: "WISHLIST", Usage: "WISHLIST, CURRENTLY_READING, COMPLETED or DROPPED"},
					&cli.StringFlag{Name: "title", Required: true},
					&cli.StringFlag{Name: "author"},
				},
				Action: checkDuplicate,
			},
			{
				Name:  "add-wishlist",
				Usage: "add a book to the wishlist",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Required: true},
					&cli.StringFlag{Name: "author"},
					&cli.StringFlag{Name: "cover-image"},
					&cli.StringFlag{Name: "memo"},
					&cli.BoolFlag{Name: "force", Usage: "add even if the wishlist already has it"},
				},
				Action: addWishlist,
			},
			{
				Name:      "start-reading",
				Usage:     "move a wishlist entry to currently reading",
				ArgsUsage: "<wishlist id>",
				Flags:     readingFlags,
				Action:    startReading,
			},
			{
				Name:      "mark-as-read",
				Usage:     "move a currently reading entry to completed",
				ArgsUsage: "<currently reading id>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "rating", Required: true},
					&cli.StringFlag{Name: "finished-date", Usage: "YYYY-MM-DD, defaults to today"},
					&cli.StringFlag{Name: "review"},
				},
				Action: markAsRead,
			},
			{
				Name:      "drop",
				Usage:     "move a currently reading entry to dropped",
				ArgsUsage: "<currently reading id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "reason", Required: true},
					&cli.Float64Flag{Name: "progress"},
				},
				Action: drop,
			},
			{
				Name:      "resume-reading",
				Usage:     "move a dropped entry back to currently reading",
				ArgsUsage: "<dropped id>",
				Flags:     readingFlags,
				Action:    resumeReading,
			},
		},
	}
}
