package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditEvent_EnsureID(t *testing.T) {
	tests := []struct {
		name     string
		event    AuditEvent
		expected string
	}{
		{
			name:     "synthesizes composite id when missing",
			event:    AuditEvent{SessionID: 1042, EntryID: 7, Statement: 3},
			expected: "1042_7_3",
		},
		{
			name:     "keeps producer-supplied id",
			event:    AuditEvent{ID: "upstream-id", SessionID: 1, EntryID: 2, Statement: 3},
			expected: "upstream-id",
		},
		{
			name:     "zero components still produce a stable id",
			event:    AuditEvent{},
			expected: "0_0_0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.event.EnsureID()
			assert.Equal(t, tt.expected, tt.event.ID)
		})
	}
}

func TestAuditEvent_JSONFieldNamesCaseInsensitive(t *testing.T) {
	// Producers are not consistent about field-name casing; decoding must
	// accept any casing of the documented names.
	payload := `{"ID":"e1","TARGET":"DB1","SessionId":5,"entryid":9,"SQLTEXT":"select 1","DbUser":"scott"}`

	var event AuditEvent
	require.NoError(t, json.Unmarshal([]byte(payload), &event))

	assert.Equal(t, "e1", event.ID)
	assert.Equal(t, "DB1", event.Target)
	assert.Equal(t, int64(5), event.SessionID)
	assert.Equal(t, 9, event.EntryID)
	assert.Equal(t, "select 1", event.SQLText)
	assert.Equal(t, "scott", event.DBUser)
}
