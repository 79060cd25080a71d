// Package consume runs the ingestion loop: fetch a record, decode it,
// gate it on target, persist it, extract values, ensure a case, commit.
package consume

import (
	"encoding/json"
	"errors"
	"fmt"

	"auditsync/core"
)

// ErrDecode marks a malformed record. Decode failures are permanent, so
// the loop commits and skips the record instead of retrying it.
var ErrDecode = errors.New("malformed audit record")

// DecodeEvent parses a raw record payload into an audit event. Field name
// matching is case-insensitive, so producers with differing casing
// conventions decode the same way. The event id is derived from the
// session/entry/statement triple when the producer did not set one.
func DecodeEvent(payload []byte) (*core.AuditEvent, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}

	var event core.AuditEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	event.EnsureID()
	return &event, nil
}
