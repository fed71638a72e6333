// Package config loads config.yaml and resolves the data paths derived
// from it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dtnitsch/sutta-concepts/internal/common"
	"github.com/dtnitsch/sutta-concepts/models"
)

const DefaultPath = "config.yaml"

// DefaultFixedConceptTypes is the fixed-mode vocabulary when none is configured.
var DefaultFixedConceptTypes = []string{
	"Person", "Place", "Group", "Doctrine", "Practice", "Quality", "Simile", "Object", "Event",
}

// LoadDotEnv loads .env files without overriding variables already set.
// Missing files are not an error.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the YAML config at path, expanding ${VAR} references first.
// A .env next to the config file and one in the working directory are
// loaded before expansion.
func Load(path string) (*models.AppConfig, error) {
	if err := LoadDotEnv(filepath.Join(filepath.Dir(path), ".env"), ".env"); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg models.AppConfig
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills every unset field.
func ApplyDefaults(cfg *models.AppConfig) {
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	d := &cfg.Dhammatalks
	if d.MasterURL == "" {
		d.MasterURL = "https://www.dhammatalks.org/suttas/index_mobile.html"
	}
	if d.BaseURL == "" {
		d.BaseURL = "https://www.dhammatalks.org"
	}
	if len(d.BooksOfInterest) == 0 {
		d.BooksOfInterest = []string{"DN", "MN", "SN", "AN", "KN"}
	}
	if d.RequestInterval == 0 {
		d.RequestInterval = 100 * time.Millisecond
	}
	if d.CacheTTL == 0 {
		d.CacheTTL = 7 * 24 * time.Hour
	}

	if cfg.OutputPaths.RawData == "" {
		cfg.OutputPaths.RawData = "raw/suttas.jsonl"
	}

	e := &cfg.Extraction
	if e.Mode == "" {
		e.Mode = "discovery"
	}
	if e.SuccessDelay == nil {
		e.SuccessDelay = durationPtr(500 * time.Millisecond)
	}
	if e.ErrorDelay == nil {
		e.ErrorDelay = durationPtr(2 * time.Second)
	}
	if e.RequestTimeout == 0 {
		e.RequestTimeout = 120 * time.Second
	}
	if len(e.FixedConceptTypes) == 0 {
		e.FixedConceptTypes = DefaultFixedConceptTypes
	}
	if e.OutputPathTemplate == "" {
		e.OutputPathTemplate = "processed/concepts_{mode}_{model_id}.jsonl"
	}
	if e.LogPathTemplate == "" {
		e.LogPathTemplate = "logs/concept_extraction_skips_{mode}_{model_id}.jsonl"
	}

	n := &cfg.Normalization
	if n.Mode == "" {
		n.Mode = "name"
	}
	if n.EmbeddingModelID == "" {
		n.EmbeddingModelID = "nomic-embed-text"
	}
	if n.EmbeddingBaseURL == "" {
		n.EmbeddingBaseURL = "http://localhost:11434/v1"
	}
	if n.BatchSize == 0 {
		n.BatchSize = 64
	}
	if n.Threshold == 0 {
		n.Threshold = 0.85
	}
	if n.MinCommunitySize == 0 {
		n.MinCommunitySize = 2
	}
	if n.OutputPathTemplate == "" {
		n.OutputPathTemplate = "processed/clusters_{extraction_model_id}_{normalization_mode}_{embedding_model_id}.json"
	}
}

func durationPtr(d time.Duration) *time.Duration { return &d }

// Validate rejects configurations that cannot work for any command.
func Validate(cfg *models.AppConfig) error {
	for name, u := range map[string]string{
		"dhammatalks.master_url": cfg.Dhammatalks.MasterURL,
		"dhammatalks.base_url":   cfg.Dhammatalks.BaseURL,
	} {
		if !common.ValidURL(u) {
			return fmt.Errorf("invalid %s: %q", name, u)
		}
	}
	success, failure := *cfg.Extraction.SuccessDelay, *cfg.Extraction.ErrorDelay
	if success < 0 || failure < 0 {
		return fmt.Errorf("concept_extraction delays must not be negative")
	}
	if success > 0 && success >= failure {
		return fmt.Errorf("concept_extraction.success_delay (%s) must be shorter than error_delay (%s)",
			success, failure)
	}
	if t := cfg.Normalization.Threshold; t <= 0 || t > 1 {
		return fmt.Errorf("concept_normalization.threshold must be in (0, 1], got %v", t)
	}
	if cfg.Normalization.MinCommunitySize < 1 {
		return fmt.Errorf("concept_normalization.min_community_size must be at least 1")
	}
	return nil
}
