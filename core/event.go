package core

import (
	"fmt"
	"time"
)

// AuditEvent represents one audited database action consumed from the
// stream. The flattened JSON payload maps 1:1 onto these fields;
// encoding/json matches field names case-insensitively, which is what the
// producers rely on.
//
// An event is constructed once per decoded stream record and never
// mutated afterwards.
type AuditEvent struct {
	ID             string    `json:"id"`
	Target         string    `json:"target"`
	SessionID      int64     `json:"sessionId"`
	EntryID        int       `json:"entryId"`
	Statement      int       `json:"statement"`
	DBUser         string    `json:"dbUser"`
	UserHost       string    `json:"userHost"`
	Terminal       string    `json:"terminal"`
	Action         int       `json:"action"`
	ReturnCode     int       `json:"returnCode"`
	Owner          string    `json:"owner"`
	Name           string    `json:"name"`
	AuthPrivileges string    `json:"authPrivileges"`
	AuthGrantee    string    `json:"authGrantee"`
	NewOwner       string    `json:"newOwner"`
	NewName        string    `json:"newName"`
	OSUser         string    `json:"osUser"`
	PrivilegeUsed  string    `json:"privilegeUsed"`
	Timestamp      time.Time `json:"timestamp"`
	BindVariables  string    `json:"bindVariables"`
	SQLText        string    `json:"sqlText"`
	ProducedAt     time.Time `json:"producedAt"`
}

// EnsureID fills in the event ID when the producer did not supply one.
// The ID is the composite key SessionID_EntryID_Statement, which is stable
// across redeliveries of the same logical audited action.
func (e *AuditEvent) EnsureID() {
	if e.ID == "" {
		e.ID = fmt.Sprintf("%d_%d_%d", e.SessionID, e.EntryID, e.Statement)
	}
}

// Target represents a monitored database whose audit events are ingested.
// Targets own their extraction rules.
type Target struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
