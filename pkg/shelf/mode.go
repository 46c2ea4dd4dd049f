package shelf

import "github.com/shishobooks/readtrack/pkg/models"

// Mode is the dialog the shelf has open. Only one can be open at a time.
type Mode int

const (
	ModeNone Mode = iota
	ModeStartReading
	ModeComplete
	ModeDrop
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "NONE"
	case ModeStartReading:
		return "START_READING"
	case ModeComplete:
		return "COMPLETE"
	case ModeDrop:
		return "DROP"
	}
	return "UNKNOWN"
}

// Transition returns the transition a mode performs on an entry of kind. The
// start-reading dialog doubles as the resume dialog for dropped books.
func (m Mode) Transition(kind models.Kind) (models.Transition, bool) {
	switch {
	case m == ModeStartReading && kind == models.KindWishlist:
		return models.TransitionStartReading, true
	case m == ModeStartReading && kind == models.KindDropped:
		return models.TransitionResumeReading, true
	case m == ModeComplete && kind == models.KindCurrentlyReading:
		return models.TransitionMarkAsRead, true
	case m == ModeDrop && kind == models.KindCurrentlyReading:
		return models.TransitionDropBook, true
	}
	return "", false
}
