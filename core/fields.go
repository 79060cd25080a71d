package core

import "strings"

// SourceField accessors keyed by the symbolic names rules use. The set is
// fixed and exhaustive: a rule naming anything else resolves to "absent"
// rather than being dispatched dynamically against struct fields.
var sourceFieldAccessors = map[string]func(*AuditEvent) string{
	"text":           func(e *AuditEvent) string { return e.SQLText },
	"sqltext":        func(e *AuditEvent) string { return e.SQLText },
	"bindvariables":  func(e *AuditEvent) string { return e.BindVariables },
	"owner":          func(e *AuditEvent) string { return e.Owner },
	"name":           func(e *AuditEvent) string { return e.Name },
	"dbuser":         func(e *AuditEvent) string { return e.DBUser },
	"userhost":       func(e *AuditEvent) string { return e.UserHost },
	"terminal":       func(e *AuditEvent) string { return e.Terminal },
	"osuser":         func(e *AuditEvent) string { return e.OSUser },
	"target":         func(e *AuditEvent) string { return e.Target },
	"authprivileges": func(e *AuditEvent) string { return e.AuthPrivileges },
	"authgrantee":    func(e *AuditEvent) string { return e.AuthGrantee },
	"newowner":       func(e *AuditEvent) string { return e.NewOwner },
	"newname":        func(e *AuditEvent) string { return e.NewName },
	"privilegeused":  func(e *AuditEvent) string { return e.PrivilegeUsed },
}

// SourceValue resolves a rule's symbolic source field against an event.
// Field names are case-insensitive. Unknown fields resolve to ("", false)
// so callers can distinguish "absent field" from "known but empty".
func SourceValue(e *AuditEvent, sourceField string) (string, bool) {
	accessor, ok := sourceFieldAccessors[strings.ToLower(sourceField)]
	if !ok {
		return "", false
	}
	return accessor(e), true
}

// KnownSourceFields returns the canonical symbolic field names, for CLI
// help output and rule validation.
func KnownSourceFields() []string {
	fields := make([]string, 0, len(sourceFieldAccessors))
	for name := range sourceFieldAccessors {
		fields = append(fields, name)
	}
	return fields
}
