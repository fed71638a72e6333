// Package models defines data structures for configuration, source items and results.
package models

import "time"

// AppConfig is the decoded config.yaml.
type AppConfig struct {
	DataDir       string              `yaml:"data_dir"`
	Logging       LoggingConfig       `yaml:"logging"`
	Dhammatalks   ScrapeConfig        `yaml:"dhammatalks"`
	Extraction    ExtractionConfig    `yaml:"concept_extraction"`
	Normalization NormalizationConfig `yaml:"concept_normalization"`
	Ledger        LedgerConfig        `yaml:"ledger"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	OutputPaths   OutputPaths         `yaml:"output_paths"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ScrapeConfig describes where suttas are scraped from.
type ScrapeConfig struct {
	MasterURL       string        `yaml:"master_url"`
	BaseURL         string        `yaml:"base_url"`
	BooksOfInterest []string      `yaml:"books_of_interest"`
	AvoidInURL      []string      `yaml:"avoid_in_url"`
	RequestInterval time.Duration `yaml:"request_interval"`
	CacheDir        string        `yaml:"cache_dir"` // empty disables the raw HTML cache
	CacheTTL        time.Duration `yaml:"cache_ttl"`
}

// ExtractionConfig configures the concept extraction stage.
type ExtractionConfig struct {
	ModelID               string         `yaml:"model_id"`
	Provider              string         `yaml:"provider"` // optional, inferred from model_id when empty
	BaseURL               string         `yaml:"base_url"` // optional provider endpoint override
	Mode                  string         `yaml:"mode"`     // discovery, fixed
	Temperature           float64        `yaml:"temperature"`
	BasePromptBeginning   string         `yaml:"base_prompt_beginning"`
	DiscoveryInstructions string         `yaml:"discovery_instructions"`
	FixedInstructions     string         `yaml:"fixed_instructions"`
	BasePromptEnd         string         `yaml:"base_prompt_end"`
	FixedConceptTypes     []string       `yaml:"fixed_concept_types"`
	SuccessDelay          *time.Duration `yaml:"success_delay"` // nil means default, 0s disables
	ErrorDelay            *time.Duration `yaml:"error_delay"`
	RequestTimeout        time.Duration  `yaml:"request_timeout"`
	OutputPathTemplate    string         `yaml:"output_path_template"`
	LogPathTemplate       string         `yaml:"log_path_template"`
}

// NormalizationConfig configures the embedding + clustering stage.
type NormalizationConfig struct {
	EmbeddingModelID   string  `yaml:"embedding_model_id"`
	EmbeddingBaseURL   string  `yaml:"embedding_base_url"`
	EmbeddingAPIKeyEnv string  `yaml:"embedding_api_key_env"`
	BatchSize          int     `yaml:"batch_size"`
	Mode               string  `yaml:"mode"` // name, hybrid
	Threshold          float64 `yaml:"threshold"`
	MinCommunitySize   int     `yaml:"min_community_size"`
	OutputPathTemplate string  `yaml:"output_path_template"`
}

// LedgerConfig points at the SQLite run ledger.
type LedgerConfig struct {
	Path string `yaml:"path"` // empty disables the ledger
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path"` // empty disables export
}

// OutputPaths holds fixed (non-templated) data locations.
type OutputPaths struct {
	RawData string `yaml:"raw_data"`
}
