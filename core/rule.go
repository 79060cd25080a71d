package core

// ExtractionRule is one regex-based field extraction definition, owned by
// a target. Rules are authored externally and are read-only from the
// consumer's perspective; the rules package loads them per target on
// demand and caches them for the process lifetime.
type ExtractionRule struct {
	ID         string `json:"id"`
	TargetID   string `json:"target_id"`
	TargetName string `json:"target_name"`

	// RuleName is also the key of the extracted output field.
	RuleName string `json:"rule_name"`

	// SourceField is the symbolic name of the AuditEvent attribute the
	// pattern is evaluated against (see fields.go for the mapping).
	SourceField string `json:"source_field"`

	// RegexPattern is evaluated against the resolved source value. The
	// first capturing group is the extracted value; a pattern without
	// groups extracts the whole match.
	RegexPattern string `json:"regex_pattern"`

	// IsRequired makes a non-match abort extraction for the whole event.
	IsRequired bool `json:"is_required"`

	IsActive  bool `json:"is_active"`
	RuleOrder int  `json:"rule_order"`
}

// ExtractedValue is one (rule, matched text) pair produced for one
// AuditEvent. It carries enough rule provenance to be stored denormalized
// without a join. Ephemeral: produced and consumed within one ingestion
// cycle.
type ExtractedValue struct {
	RuleID       string `json:"rule_id"`
	RuleName     string `json:"rule_name"`
	RegexPattern string `json:"regex_pattern"`
	SourceField  string `json:"source_field"`
	Value        string `json:"value"`
}
