// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// TripletStatus is the review state of a stored triplet.
type TripletStatus string

const (
	TripletPending  TripletStatus = "pending"
	TripletAccepted TripletStatus = "accepted"
	TripletRejected TripletStatus = "rejected"
)

// ValidTripletStatus reports whether s is a recognized review state.
func ValidTripletStatus(s TripletStatus) bool {
	switch s {
	case TripletPending, TripletAccepted, TripletRejected:
		return true
	}
	return false
}

// Triplet is a subject-action-object fact extracted from exactly one
// source. The tuple (subject, action, object, source ID) is unique;
// re-extraction of the same fact updates context sentences and validity
// in place rather than duplicating the row.
type Triplet struct {
	// ID is the internal database row ID.
	ID int64 `json:"id" yaml:"id"`

	// Subject, Action, Object form the fact itself.
	Subject string `json:"subject" yaml:"subject"`
	Action  string `json:"action" yaml:"action"`
	Object  string `json:"object" yaml:"object"`

	// Relation is the SNOMED-style relation label, e.g. "TREATS".
	Relation string `json:"relation" yaml:"relation"`

	// SourceID is the owning source's internal ID.
	SourceID int64 `json:"source_id" yaml:"source_id"`

	// ContextSentences holds 2-4 verbatim evidence sentences from the
	// source text.
	ContextSentences []string `json:"context_sentences" yaml:"context_sentences"`

	// SchemaValid reports whether the triplet passed relation-schema
	// validation at extraction time.
	SchemaValid bool `json:"schema_valid" yaml:"schema_valid"`

	// Status is the review state: pending, accepted, or rejected.
	Status TripletStatus `json:"status" yaml:"status"`
}

// RawTriplet is a triplet as returned by the extraction backend, before
// classification and storage.
type RawTriplet struct {
	Subject          string   `json:"subject" yaml:"subject"`
	Action           string   `json:"action" yaml:"action"`
	Object           string   `json:"object" yaml:"object"`
	Relation         string   `json:"relation" yaml:"relation"`
	ContextSentences []string `json:"context_sentences" yaml:"context_sentences"`
	SchemaValid      bool     `json:"schema_valid" yaml:"schema_valid"`
}

// Complete reports whether the triplet carries all required fields.
func (r RawTriplet) Complete() bool {
	return r.Subject != "" && r.Action != "" && r.Object != ""
}
