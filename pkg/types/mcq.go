// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// OptionCount is the required number of answer options on every MCQ.
const OptionCount = 5

// MCQStatus is the review state of a persisted MCQ record.
type MCQStatus string

const (
	MCQPending  MCQStatus = "pending"
	MCQApproved MCQStatus = "approved"
	MCQRejected MCQStatus = "rejected"
)

// ValidMCQStatus reports whether s is a recognized review state.
func ValidMCQStatus(s MCQStatus) bool {
	switch s {
	case MCQPending, MCQApproved, MCQRejected:
		return true
	}
	return false
}

// MCQRecord is a persisted multiple-choice question linked to a source
// and, when known, the primary triplet it assesses.
type MCQRecord struct {
	// ID is the internal database row ID.
	ID int64 `json:"id" yaml:"id"`

	// Stem is the clinical vignette preceding the question.
	Stem string `json:"stem" yaml:"stem"`

	// Question is the question text.
	Question string `json:"question" yaml:"question"`

	// Options holds exactly OptionCount answer options in order.
	Options []string `json:"options" yaml:"options"`

	// CorrectOption is the zero-based index of the correct option.
	CorrectOption int `json:"correct_option" yaml:"correct_option"`

	// SourceID is the owning source's internal ID.
	SourceID int64 `json:"source_id" yaml:"source_id"`

	// TripletID is the primary triplet this question assesses. Zero when
	// the record was created without a triplet link.
	TripletID int64 `json:"triplet_id,omitempty" yaml:"triplet_id,omitempty"`

	// VisualPrompt describes an illustrative image for the question.
	VisualPrompt string `json:"visual_prompt,omitempty" yaml:"visual_prompt,omitempty"`

	// VisualTriplet is a short "subject → action → object" note describing
	// what the illustration should depict.
	VisualTriplet string `json:"visual_triplet,omitempty" yaml:"visual_triplet,omitempty"`

	// Status is the review state.
	Status MCQStatus `json:"status" yaml:"status"`

	// CreatedAt is the creation timestamp.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// GenerationPayload is the normalized output of one MCQ generation or
// refinement call. Backends normalize whatever shape the model returns
// into this struct immediately after the call; nothing downstream
// inspects raw response keys.
type GenerationPayload struct {
	Stem          string       `json:"stem" yaml:"stem"`
	Question      string       `json:"question" yaml:"question"`
	Options       []string     `json:"options" yaml:"options"`
	CorrectOption int          `json:"correct_option" yaml:"correct_option"`
	Triplets      []RawTriplet `json:"triplets" yaml:"triplets"`
	VisualPrompt  string       `json:"visual_prompt,omitempty" yaml:"visual_prompt,omitempty"`
	VisualTriplet string       `json:"visual_triplet,omitempty" yaml:"visual_triplet,omitempty"`
}
