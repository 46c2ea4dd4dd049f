package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	CleanupStatusPending   = "pending"
	CleanupStatusResolved  = "resolved"
	CleanupStatusDismissed = "dismissed"
	CleanupStatusFailed    = "failed"
)

// Cleanup records a transition whose target was created but whose source
// could not be deleted. The source entry is a leftover duplicate until the
// row is resolved or dismissed.
type Cleanup struct {
	bun.BaseModel `bun:"table:cleanups,alias:c"`

	ID         int        `bun:",pk,nullzero" json:"id"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	SagaID     string     `bun:",nullzero" json:"sagaId"`
	OwnerID    int64      `json:"ownerId"`
	Transition Transition `bun:",nullzero" json:"transition"`
	SourceKind Kind       `bun:",nullzero" json:"sourceKind"`
	SourceID   int64      `json:"sourceId"`
	TargetKind Kind       `bun:",nullzero" json:"targetKind"`
	TargetID   int64      `json:"targetId"`
	Title      string     `bun:",nullzero" json:"title"`
	Status     string     `bun:",nullzero" json:"status"`
	Attempts   int        `json:"attempts"`
	LastError  *string    `json:"lastError,omitempty"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

func (c *Cleanup) SourceRef() Ref {
	return Ref{Kind: c.SourceKind, ID: c.SourceID}
}

func (c *Cleanup) TargetRef() Ref {
	return Ref{Kind: c.TargetKind, ID: c.TargetID}
}
