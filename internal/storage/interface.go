// Package storage provides the event queue store of the eSocial server.
//
// Every generated event is recorded with status pending and moves through
// signed to sent, rejected or error as the submission proceeds. Records
// keep every XML document produced along the way for audit display.
//
// # Implementations
//
// The memory sub-package keeps records in process and is the default. The
// mongodb sub-package persists them in a MongoDB collection.
//
// # Concurrency
//
// All store implementations must be safe for concurrent use from multiple
// goroutines.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no record has the requested id.
var ErrNotFound = errors.New("event record not found")

// MaxListLimit caps the number of records returned by ListEvents.
const MaxListLimit = 50

// Store is the main storage interface
type Store interface {
	EventStore

	// Close releases storage resources
	Close(ctx context.Context) error

	// Ping checks database connectivity
	Ping(ctx context.Context) error
}

// EventStore manages event queue records
type EventStore interface {
	// CreateEvent stores a new record, assigning ID and timestamps when unset
	CreateEvent(ctx context.Context, rec *EventRecord) error

	// GetEvent retrieves a record by ID
	GetEvent(ctx context.Context, id string) (*EventRecord, error)

	// ListEvents returns records newest first
	ListEvents(ctx context.Context, filter *EventFilter) ([]*EventRecord, error)

	// UpdateEventStatus moves a record to a new status and stores the
	// documents produced by that step
	UpdateEventStatus(ctx context.Context, id string, update *StatusUpdate) error
}

// EventStatus is the position of a record in the queue
type EventStatus string

const (
	StatusPending  EventStatus = "pending"
	StatusSigned   EventStatus = "signed"
	StatusSent     EventStatus = "sent"
	StatusRejected EventStatus = "rejected"
	StatusError    EventStatus = "error"
)

// Valid reports whether s is a known status.
func (s EventStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSigned, StatusSent, StatusRejected, StatusError:
		return true
	}
	return false
}

// EventRecord is one event in the queue
type EventRecord struct {
	ID        string      `bson:"_id" json:"id"`
	EventType string      `bson:"event_type" json:"eventType"`
	RootTag   string      `bson:"root_tag" json:"rootTag"`
	EventID   string      `bson:"event_id" json:"eventId"`
	Group     int         `bson:"grupo" json:"grupo"`
	TpInsc    string      `bson:"tp_insc" json:"tpInsc"`
	NrInsc    string      `bson:"nr_insc" json:"nrInsc"`
	Status    EventStatus `bson:"status" json:"status"`

	// Documents
	XML       string `bson:"xml" json:"xml"`
	SignedXML string `bson:"signed_xml,omitempty" json:"signedXml,omitempty"`
	Envelope  string `bson:"envelope,omitempty" json:"envelope,omitempty"`
	Response  string `bson:"response,omitempty" json:"response,omitempty"`

	// Service answer
	StatusCode   int    `bson:"status_code,omitempty" json:"statusCode,omitempty"`
	ResponseCode string `bson:"response_code,omitempty" json:"responseCode,omitempty"`
	Protocol     string `bson:"protocol,omitempty" json:"protocol,omitempty"`
	LastError    string `bson:"last_error,omitempty" json:"lastError,omitempty"`

	// Timestamps
	CreatedAt time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updatedAt"`
	SignedAt  *time.Time `bson:"signed_at,omitempty" json:"signedAt,omitempty"`
	SentAt    *time.Time `bson:"sent_at,omitempty" json:"sentAt,omitempty"`
}

// StatusUpdate carries the new status and whatever the step produced.
// Empty fields leave the stored value unchanged.
type StatusUpdate struct {
	Status       EventStatus
	SignedXML    string
	Envelope     string
	Response     string
	StatusCode   int
	ResponseCode string
	Protocol     string
	Error        string
}

// Apply writes the update into rec.
func (u *StatusUpdate) Apply(rec *EventRecord, now time.Time) {
	rec.Status = u.Status
	rec.UpdatedAt = now
	if u.SignedXML != "" {
		rec.SignedXML = u.SignedXML
		rec.SignedAt = &now
	}
	if u.Envelope != "" {
		rec.Envelope = u.Envelope
	}
	if u.Response != "" {
		rec.Response = u.Response
	}
	if u.StatusCode != 0 {
		rec.StatusCode = u.StatusCode
	}
	if u.ResponseCode != "" {
		rec.ResponseCode = u.ResponseCode
	}
	if u.Protocol != "" {
		rec.Protocol = u.Protocol
	}
	if u.Error != "" {
		rec.LastError = u.Error
	}
	if u.Status == StatusSent || u.Status == StatusRejected {
		rec.SentAt = &now
	}
}

// EventFilter narrows ListEvents
type EventFilter struct {
	// NrInsc selects one employer
	NrInsc string
	Status EventStatus
	Limit  int
}

// EffectiveLimit returns the limit clamped to 1..MaxListLimit.
func (f *EventFilter) EffectiveLimit() int {
	if f == nil || f.Limit <= 0 || f.Limit > MaxListLimit {
		return MaxListLimit
	}
	return f.Limit
}
