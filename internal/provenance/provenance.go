// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package provenance checks that claimed evidence sentences literally
// occur in the source text. Matching is verbatim modulo case and
// whitespace; there is deliberately no fuzzy or edit-distance matching,
// so a sentence either appears in the source or it does not.
package provenance

import "strings"

// SentenceResult is the verification outcome for one sentence.
type SentenceResult struct {
	Sentence string `json:"sentence" yaml:"sentence"`
	Verified bool   `json:"verified" yaml:"verified"`
}

// Report summarizes a verification run over a set of context sentences.
type Report struct {
	AllVerified   bool             `json:"all_verified" yaml:"all_verified"`
	Results       []SentenceResult `json:"results" yaml:"results"`
	VerifiedCount int              `json:"verified_count" yaml:"verified_count"`
	TotalCount    int              `json:"total_count" yaml:"total_count"`
}

// Verify checks each sentence against the source text. A sentence is
// verified when it matches as a case-insensitive substring, either
// directly or after collapsing all whitespace runs in both texts to
// single spaces. AllVerified is true iff every sentence matches.
func Verify(sentences []string, sourceText string) Report {
	report := Report{
		AllVerified: true,
		TotalCount:  len(sentences),
	}

	sourceLower := strings.ToLower(sourceText)
	var sourceCollapsed string // built lazily, sources can be large

	for _, sentence := range sentences {
		needle := strings.TrimSpace(strings.ToLower(sentence))
		found := needle != "" && strings.Contains(sourceLower, needle)

		if !found && needle != "" {
			if sourceCollapsed == "" {
				sourceCollapsed = collapseWhitespace(sourceLower)
			}
			found = strings.Contains(sourceCollapsed, collapseWhitespace(needle))
		}

		report.Results = append(report.Results, SentenceResult{
			Sentence: sentence,
			Verified: found,
		})
		if found {
			report.VerifiedCount++
		} else {
			report.AllVerified = false
		}
	}

	return report
}

// collapseWhitespace reduces every run of whitespace to a single space.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
