// Package audit provides the tamper-evident event log of the signing
// pipeline. Events are hash-chained JSONL records, separate from technical
// logs. Audit failure is operation failure; secrets are never logged; all
// timestamps are UTC.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// EventType is the category of audit event.
type EventType string

const (
	// Document lifecycle events.
	EventDocRegistered EventType = "DOC_REGISTERED"
	EventDocCertified  EventType = "DOC_CERTIFIED"
	EventDocSigned     EventType = "DOC_SIGNED"
	EventDocCancelled  EventType = "DOC_CANCELLED"
	EventDocCompleted  EventType = "DOC_COMPLETED"

	// Authority events.
	EventCertIssued EventType = "CERT_ISSUED"
	EventTSASign    EventType = "TSA_SIGN"

	// Journal events.
	EventJournalSealed EventType = "JOURNAL_SEALED"

	// Security events.
	EventAuthFailed EventType = "AUTH_FAILED"
)

// Result is the outcome of an audited operation.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// Actor is who performed the action.
type Actor struct {
	Type string `json:"type"` // "signer", "system", "service"
	ID   string `json:"id"`
	Host string `json:"host,omitempty"`
}

// Object is what was acted upon.
type Object struct {
	Type       string `json:"type"` // "document", "certificate", "token", "journal"
	DocumentID string `json:"document_id,omitempty"`
	Field      string `json:"field,omitempty"`
	Serial     string `json:"serial,omitempty"`
	Subject    string `json:"subject,omitempty"`
}

// Context carries operation details.
type Context struct {
	SignerID  string `json:"signer_id,omitempty"`
	Algorithm string `json:"algorithm,omitempty"`
	Reason    string `json:"reason,omitempty"`
	GenTime   string `json:"gen_time,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// Event is one audit log entry.
type Event struct {
	EventType EventType `json:"event_type"`
	Timestamp string    `json:"timestamp"` // RFC3339 UTC
	Actor     Actor     `json:"actor"`
	Object    Object    `json:"object"`
	Context   Context   `json:"context,omitempty"`
	Result    Result    `json:"result"`
	HashPrev  string    `json:"hash_prev"`
	Hash      string    `json:"hash"`
}

// NewEvent creates an event stamped now, attributed to the service.
func NewEvent(eventType EventType, result Result) *Event {
	hostname, _ := os.Hostname()
	return &Event{
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Actor: Actor{
			Type: "service",
			ID:   "esign",
			Host: hostname,
		},
		Result: result,
	}
}

// WithObject sets the object field.
func (e *Event) WithObject(obj Object) *Event {
	e.Object = obj
	return e
}

// WithContext sets the context field.
func (e *Event) WithContext(ctx Context) *Event {
	e.Context = ctx
	return e
}

// WithActor overrides the default actor.
func (e *Event) WithActor(actor Actor) *Event {
	e.Actor = actor
	return e
}

// Validate checks required fields.
func (e *Event) Validate() error {
	if e.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if e.Timestamp == "" {
		return fmt.Errorf("timestamp is required")
	}
	if e.Actor.Type == "" || e.Actor.ID == "" {
		return fmt.Errorf("actor type and id are required")
	}
	if e.Result == "" {
		return fmt.Errorf("result is required")
	}
	return nil
}

// CanonicalJSON serializes the event without its Hash field, for hashing.
func (e *Event) CanonicalJSON() ([]byte, error) {
	type eventForHash struct {
		EventType EventType `json:"event_type"`
		Timestamp string    `json:"timestamp"`
		Actor     Actor     `json:"actor"`
		Object    Object    `json:"object"`
		Context   Context   `json:"context,omitempty"`
		Result    Result    `json:"result"`
		HashPrev  string    `json:"hash_prev"`
	}
	return json.Marshal(eventForHash{
		EventType: e.EventType,
		Timestamp: e.Timestamp,
		Actor:     e.Actor,
		Object:    e.Object,
		Context:   e.Context,
		Result:    e.Result,
		HashPrev:  e.HashPrev,
	})
}

// JSON serializes the full event.
func (e *Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}
