package models

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is a lifecycle state. Each kind is backed by its own backend
// collection, and an entry id is only unique within its kind.
type Kind string

const (
	KindWishlist         Kind = "WISHLIST"
	KindCurrentlyReading Kind = "CURRENTLY_READING"
	KindCompleted        Kind = "COMPLETED"
	KindDropped          Kind = "DROPPED"
)

// Kinds lists every lifecycle state in display order.
var Kinds = []Kind{KindWishlist, KindCurrentlyReading, KindCompleted, KindDropped}

func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", errors.Errorf("unknown kind %q", s)
	}
	return k, nil
}

func (k Kind) Valid() bool {
	switch k {
	case KindWishlist, KindCurrentlyReading, KindCompleted, KindDropped:
		return true
	}
	return false
}

// Label is the human-readable collection name.
func (k Kind) Label() string {
	switch k {
	case KindWishlist:
		return "Wishlist"
	case KindCurrentlyReading:
		return "Currently Reading"
	case KindCompleted:
		return "Completed"
	case KindDropped:
		return "Dropped"
	}
	return string(k)
}

// Ref identifies an entry across collections.
type Ref struct {
	Kind Kind  `json:"kind"`
	ID   int64 `json:"id"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s/%d", r.Kind, r.ID)
}

// Transition is one of the four allowed moves between lifecycle states.
type Transition string

const (
	TransitionStartReading  Transition = "startReading"
	TransitionMarkAsRead    Transition = "markAsRead"
	TransitionDropBook      Transition = "dropBook"
	TransitionResumeReading Transition = "resumeReading"
)

func (t Transition) From() Kind {
	switch t {
	case TransitionStartReading:
		return KindWishlist
	case TransitionMarkAsRead, TransitionDropBook:
		return KindCurrentlyReading
	case TransitionResumeReading:
		return KindDropped
	}
	return ""
}

func (t Transition) To() Kind {
	switch t {
	case TransitionStartReading, TransitionResumeReading:
		return KindCurrentlyReading
	case TransitionMarkAsRead:
		return KindCompleted
	case TransitionDropBook:
		return KindDropped
	}
	return ""
}

// AllowedTransitions returns the outgoing transitions of a state. Completed
// entries are terminal.
func AllowedTransitions(k Kind) []Transition {
	switch k {
	case KindWishlist:
		return []Transition{TransitionStartReading}
	case KindCurrentlyReading:
		return []Transition{TransitionMarkAsRead, TransitionDropBook}
	case KindDropped:
		return []Transition{TransitionResumeReading}
	case KindCompleted:
		return nil
	}
	return nil
}

// CanTransition reports whether t starts from k.
func CanTransition(k Kind, t Transition) bool {
	for _, allowed := range AllowedTransitions(k) {
		if allowed == t {
			return true
		}
	}
	return false
}
