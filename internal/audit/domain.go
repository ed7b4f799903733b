// Package audit provides the append-only trail written after every
// mutating ledger operation. Entries are created once and never updated
// or deleted; no mutating API exists beyond Record.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Entry is one immutable audit record.
type Entry struct {
	ID        uuid.UUID
	ActorID   uuid.UUID
	Action    string
	Entity    string
	EntityID  string
	OldValues map[string]any
	NewValues map[string]any
	Details   map[string]any
	At        time.Time
}

// TimelineFilters narrows a trail query.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	ActorID  uuid.UUID
	Entity   string
	Action   string
	Page     int
	PageSize int
}

// PagingInfo describes the window returned by Timeline.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Result wraps timeline rows with paging information.
type Result struct {
	Rows   []Entry
	Paging PagingInfo
}
