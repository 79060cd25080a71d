// Package core defines the domain model for the AuditSync consumer.
//
// The core package provides:
//   - Domain types (AuditEvent, ExtractionRule, ExtractedValue, Case, CaseExtraction, Target)
//   - The symbolic source-field mapping used by extraction rules
//   - Constants for case status and validity values
//
// Domain types are plain data carriers. Business logic lives in the
// rules, extract, cases and consume packages; persistence lives in
// storage. Interfaces are defined where they are consumed, not here.
package core
