package types

import (
	"time"
)

// DiffType represents the kind of change a diff describes
type DiffType string

const (
	DiffTypeAdd    DiffType = "add"
	DiffTypeRemove DiffType = "remove"
	DiffTypeChange DiffType = "change"
)

// Snapshot represents one fetched record for a ticker at a point in time.
// Data holds the domain fields; the storage layer flattens them into the
// stored document alongside the ticker and date keys.
type Snapshot struct {
	Ticker string         `bson:"ticker" json:"ticker"`
	Date   time.Time      `bson:"date" json:"date"`
	Data   map[string]any `bson:"-" json:"data"`
}

// Diff represents one field-level change between two snapshots.
// Delivered starts false and is flipped to true exactly once by the
// dispatcher; it is never reverted.
type Diff struct {
	ID         string    `bson:"_id" json:"id"`
	Ticker     string    `bson:"ticker" json:"ticker"`
	Date       time.Time `bson:"date" json:"date"`
	ChangedKey string    `bson:"changed_key" json:"changed_key"`
	Old        any       `bson:"old" json:"old"`
	New        any       `bson:"new" json:"new"`
	DiffType   DiffType  `bson:"diff_type" json:"diff_type"`
	Source     string    `bson:"source" json:"source"`
	Delivered  bool      `bson:"delivered" json:"delivered"`
}

// Subscription represents a user's alert delivery preference
type Subscription struct {
	UserName string `bson:"user_name" json:"user_name" validate:"required"`
	ChatID   string `bson:"chat_id" json:"chat_id" validate:"required"`
	Delay    bool   `bson:"delay" json:"delay"`
}
