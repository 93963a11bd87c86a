// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package kb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// ExportSource holds the source-level fields included with each entry.
type ExportSource struct {
	ExternalID string `json:"external_id" yaml:"external_id"`
	Title      string `json:"title" yaml:"title"`
	Authors    string `json:"authors,omitempty" yaml:"authors,omitempty"`
	Year       int    `json:"year,omitempty" yaml:"year,omitempty"`
}

// ExportTriplet is an accepted triplet with source provenance.
type ExportTriplet struct {
	Subject          string       `json:"subject" yaml:"subject"`
	Action           string       `json:"action" yaml:"action"`
	Object           string       `json:"object" yaml:"object"`
	Relation         string       `json:"relation" yaml:"relation"`
	ContextSentences []string     `json:"context_sentences" yaml:"context_sentences"`
	Source           ExportSource `json:"source" yaml:"source"`
}

// ExportMCQ is a persisted MCQ record with source provenance.
type ExportMCQ struct {
	Stem          string       `json:"stem,omitempty" yaml:"stem,omitempty"`
	Question      string       `json:"question" yaml:"question"`
	Options       []string     `json:"options" yaml:"options"`
	CorrectOption int          `json:"correct_option" yaml:"correct_option"`
	Status        string       `json:"status" yaml:"status"`
	VisualPrompt  string       `json:"visual_prompt,omitempty" yaml:"visual_prompt,omitempty"`
	Source        ExportSource `json:"source" yaml:"source"`
}

// Export is the full knowledge export payload: the accepted fact corpus
// plus every persisted MCQ.
type Export struct {
	Triplets []ExportTriplet `json:"triplets" yaml:"triplets"`
	MCQs     []ExportMCQ     `json:"mcqs" yaml:"mcqs"`
}

// ExportYAML writes the accepted knowledge corpus to dataDir/export.yaml.
func (s *Store) ExportYAML(ctx context.Context) (string, error) {
	export, err := s.buildExport(ctx)
	if err != nil {
		return "", err
	}
	data, err := yaml.Marshal(export)
	if err != nil {
		return "", fmt.Errorf("marshaling YAML: %w", err)
	}
	path := filepath.Join(s.dataDir, "export.yaml")
	return path, os.WriteFile(path, data, 0o644)
}

// ExportJSON writes the accepted knowledge corpus to dataDir/export.json.
func (s *Store) ExportJSON(ctx context.Context) (string, error) {
	export, err := s.buildExport(ctx)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling JSON: %w", err)
	}
	path := filepath.Join(s.dataDir, "export.json")
	return path, os.WriteFile(path, data, 0o644)
}

func (s *Store) buildExport(ctx context.Context) (*Export, error) {
	export := &Export{}

	triplets, err := s.ListAccepted(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("querying accepted triplets: %w", err)
	}

	sources := make(map[int64]ExportSource)
	sourceFor := func(id int64) (ExportSource, error) {
		if es, ok := sources[id]; ok {
			return es, nil
		}
		src, err := s.Source(ctx, id)
		if err != nil {
			return ExportSource{}, fmt.Errorf("loading source %d: %w", id, err)
		}
		es := ExportSource{
			ExternalID: src.SourceID,
			Title:      src.Title,
			Authors:    src.Authors,
			Year:       src.Year,
		}
		sources[id] = es
		return es, nil
	}

	for _, t := range triplets {
		es, err := sourceFor(t.SourceID)
		if err != nil {
			return nil, err
		}
		export.Triplets = append(export.Triplets, ExportTriplet{
			Subject:          t.Subject,
			Action:           t.Action,
			Object:           t.Object,
			Relation:         t.Relation,
			ContextSentences: t.ContextSentences,
			Source:           es,
		})
	}

	mcqs, err := s.queryMCQs(ctx, `ORDER BY id`)
	if err != nil {
		return nil, err
	}
	for _, m := range mcqs {
		es, err := sourceFor(m.SourceID)
		if err != nil {
			return nil, err
		}
		export.MCQs = append(export.MCQs, ExportMCQ{
			Stem:          m.Stem,
			Question:      m.Question,
			Options:       m.Options,
			CorrectOption: m.CorrectOption,
			Status:        string(m.Status),
			VisualPrompt:  m.VisualPrompt,
			Source:        es,
		})
	}

	return export, nil
}
