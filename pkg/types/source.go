// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// SourceType identifies how a source document entered the system.
type SourceType string

const (
	SourcePDF    SourceType = "pdf"
	SourcePubMed SourceType = "pubmed"
)

// Source is an ingested document: an uploaded PDF or a PubMed record.
// SourceID is the externally stable identifier (content hash for PDFs,
// "PMID:<id>" for PubMed) and is globally unique; re-ingesting the same
// document returns the existing record unchanged.
type Source struct {
	// ID is the internal database row ID.
	ID int64 `json:"id" yaml:"id"`

	// SourceID is the stable external identifier.
	SourceID string `json:"source_id" yaml:"source_id"`

	// Type is pdf or pubmed.
	Type SourceType `json:"type" yaml:"type"`

	// Title is the document title (filename for PDFs).
	Title string `json:"title" yaml:"title"`

	// Authors is a display string, e.g. "Smith J, Doe A, et al.".
	Authors string `json:"authors,omitempty" yaml:"authors,omitempty"`

	// Year is the publication year. Zero when unknown.
	Year int `json:"year,omitempty" yaml:"year,omitempty"`

	// Content is the full extracted text.
	Content string `json:"content" yaml:"content"`

	// CreatedAt is the intake timestamp.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Article holds the structured fields returned by the PubMed client.
type Article struct {
	// PMID is the PubMed identifier without the "PMID:" prefix.
	PMID string `json:"pmid" yaml:"pmid"`

	// Title is the article title.
	Title string `json:"title" yaml:"title"`

	// Authors is a display string truncated to the first three authors.
	Authors string `json:"authors" yaml:"authors"`

	// Year is the publication year as reported by PubMed. May be a
	// MedlineDate string like "2023 Jan-Feb" or "Unknown".
	Year string `json:"year" yaml:"year"`

	// Abstract is the article abstract text.
	Abstract string `json:"abstract" yaml:"abstract"`
}

// PendingEntry is one row of the pending review queue.
type PendingEntry struct {
	SourceID   int64     `json:"source_id" yaml:"source_id"`
	ExternalID string    `json:"external_id" yaml:"external_id"`
	Title      string    `json:"title" yaml:"title"`
	QueuedAt   time.Time `json:"queued_at" yaml:"queued_at"`
}
