// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "mcq-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// PubMedConfig holds settings for the PubMed search and fetch stage.
type PubMedConfig struct {
	HTTPConfig `yaml:",inline"`

	// MaxResults is the maximum number of search results (default 10).
	MaxResults int `json:"max_results" yaml:"max_results"`

	// Email is the contact address NCBI asks E-utilities callers to send.
	Email string `json:"email,omitempty" yaml:"email,omitempty"`

	// APIKey is an optional NCBI API key for higher rate limits.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
}

// StoreConfig holds settings for the knowledge base store.
type StoreConfig struct {
	// DataDir is the base directory for durable state (contains index/,
	// export files, and media/).
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// PageSize is the pending-queue page size (default 6).
	PageSize int `json:"page_size" yaml:"page_size"`
}

// AIConfig holds shared settings for stages that call a Generative AI API.
type AIConfig struct {
	// Model is the AI model identifier.
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxRetries is the number of retry attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// ExtractionConfig holds settings for the triplet extraction stage.
type ExtractionConfig struct {
	AIConfig `yaml:",inline"`

	// MaxContentChars caps how much source text is sent per extraction
	// call (default 8000).
	MaxContentChars int `json:"max_content_chars" yaml:"max_content_chars"`
}

// GenerationConfig holds settings for the MCQ generation stage.
type GenerationConfig struct {
	AIConfig `yaml:",inline"`
}

// ImageConfig holds settings for illustrative image generation.
type ImageConfig struct {
	AIConfig `yaml:",inline"`

	// Size is the requested image size specification (e.g. "1024x1024").
	Size string `json:"size" yaml:"size"`

	// MediaDir is the directory generated images are written to.
	MediaDir string `json:"media_dir" yaml:"media_dir"`
}

// WorkflowConfig holds settings for batch source processing.
type WorkflowConfig struct {
	// Concurrency bounds how many sources are processed in parallel
	// during batch runs (default 2).
	Concurrency int `json:"concurrency" yaml:"concurrency"`
}

// PipelineConfig groups all stage configurations.
type PipelineConfig struct {
	PubMed     PubMedConfig     `json:"pubmed" yaml:"pubmed"`
	Store      StoreConfig      `json:"store" yaml:"store"`
	Extraction ExtractionConfig `json:"extraction" yaml:"extraction"`
	Generation GenerationConfig `json:"generation" yaml:"generation"`
	Image      ImageConfig      `json:"image" yaml:"image"`
	Workflow   WorkflowConfig   `json:"workflow" yaml:"workflow"`
}
