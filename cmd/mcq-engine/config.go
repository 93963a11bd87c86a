// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"time"

	"github.com/spf13/viper"

	"github.com/pdiddy/mcq-engine/internal/extract"
	"github.com/pdiddy/mcq-engine/internal/generate"
	"github.com/pdiddy/mcq-engine/internal/kb"
	"github.com/pdiddy/mcq-engine/internal/pubmed"
	"github.com/pdiddy/mcq-engine/internal/workflow"
	"github.com/pdiddy/mcq-engine/pkg/types"
)

const (
	defaultDataDir    = "data"
	defaultModel      = "claude-sonnet-4-5-20250929"
	defaultImageModel = "gemini-2.5-flash-image"
	defaultTimeout    = 30 * time.Second
)

func storeConfig() types.StoreConfig {
	dataDir := viper.GetString("store.data_dir")
	if dataDir == "" {
		dataDir = defaultDataDir
	}
	return types.StoreConfig{
		DataDir:  dataDir,
		PageSize: viper.GetInt("store.page_size"),
	}
}

func openStore() (*kb.Store, error) {
	return kb.NewStore(storeConfig())
}

func pubmedClient() *pubmed.Client {
	return pubmed.NewClient(types.PubMedConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   defaultTimeout,
			UserAgent: "mcq-engine/" + version,
		},
		MaxResults: viper.GetInt("pubmed.max_results"),
		Email:      secretDefault("ncbi-email", viper.GetString("pubmed.email")),
		APIKey:     secretDefault("ncbi-api-key", viper.GetString("pubmed.api_key")),
	})
}

func aiConfig(stage string) types.AIConfig {
	model := viper.GetString(stage + ".model")
	if model == "" {
		model = defaultModel
	}
	return types.AIConfig{
		Model:      model,
		APIKey:     secretDefault("anthropic-api-key", viper.GetString(stage+".api_key")),
		MaxRetries: viper.GetInt(stage + ".max_retries"),
	}
}

func newExtractor() *extract.Extractor {
	cfg := types.ExtractionConfig{
		AIConfig:        aiConfig("extraction"),
		MaxContentChars: viper.GetInt("extraction.max_content_chars"),
	}
	backend := &extract.ClaudeBackend{APIKey: cfg.APIKey, Model: cfg.Model}
	return extract.New(backend, cfg)
}

func newGenerator() *generate.Service {
	cfg := types.GenerationConfig{AIConfig: aiConfig("generation")}
	backend := &generate.ClaudeBackend{APIKey: cfg.APIKey, Model: cfg.Model}
	return generate.NewService(backend, cfg)
}

func imageConfig() types.ImageConfig {
	model := viper.GetString("image.model")
	if model == "" {
		model = defaultImageModel
	}
	mediaDir := viper.GetString("image.media_dir")
	if mediaDir == "" {
		mediaDir = defaultDataDir + "/media"
	}
	size := viper.GetString("image.size")
	if size == "" {
		size = "512x512"
	}
	return types.ImageConfig{
		AIConfig: types.AIConfig{
			Model:  model,
			APIKey: secretDefault("google-api-key", viper.GetString("image.api_key")),
		},
		Size:     size,
		MediaDir: mediaDir,
	}
}

func newImageBackend(cfg types.ImageConfig) generate.ImageBackend {
	return &generate.GeminiImageBackend{APIKey: cfg.APIKey, Model: cfg.Model}
}

func newCoordinator(store *kb.Store) *workflow.Coordinator {
	cfg := types.WorkflowConfig{Concurrency: viper.GetInt("workflow.concurrency")}
	return workflow.NewCoordinator(store, newExtractor(), newGenerator(), workflow.NewDraftCache(), cfg)
}
