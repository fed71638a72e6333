package config

import (
	"path/filepath"
	"time"

	"github.com/dtnitsch/sutta-concepts/internal/common"
	"github.com/dtnitsch/sutta-concepts/models"
	"github.com/dtnitsch/sutta-concepts/pkg/pipeline"
)

// Resolve makes p absolute-or-relative to the data directory. Absolute
// paths are returned unchanged.
func Resolve(cfg *models.AppConfig, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(cfg.DataDir, p)
}

// RawDataPath is the scraper's output and the extractor's source.
func RawDataPath(cfg *models.AppConfig) string {
	return Resolve(cfg, cfg.OutputPaths.RawData)
}

func extractionValues(cfg *models.AppConfig) map[string]string {
	return map[string]string{
		"mode":     cfg.Extraction.Mode,
		"model_id": common.SanitizeModelID(cfg.Extraction.ModelID),
	}
}

// ExtractionOutputPath is the concept store for the configured model and mode.
func ExtractionOutputPath(cfg *models.AppConfig) (string, error) {
	p, err := common.ExpandTemplate(cfg.Extraction.OutputPathTemplate, extractionValues(cfg))
	if err != nil {
		return "", err
	}
	return Resolve(cfg, p), nil
}

// ExtractionLogPath is the skip log for the configured model and mode.
func ExtractionLogPath(cfg *models.AppConfig) (string, error) {
	p, err := common.ExpandTemplate(cfg.Extraction.LogPathTemplate, extractionValues(cfg))
	if err != nil {
		return "", err
	}
	return Resolve(cfg, p), nil
}

// NormalizationOutputPath is the cluster file for the configured
// extraction model, normalization mode and embedding model.
func NormalizationOutputPath(cfg *models.AppConfig) (string, error) {
	values := map[string]string{
		"extraction_model_id": common.SanitizeModelID(cfg.Extraction.ModelID),
		"normalization_mode":  cfg.Normalization.Mode,
		"embedding_model_id":  common.SanitizeEmbeddingID(cfg.Normalization.EmbeddingModelID),
		"mode":                cfg.Extraction.Mode,
	}
	p, err := common.ExpandTemplate(cfg.Normalization.OutputPathTemplate, values)
	if err != nil {
		return "", err
	}
	return Resolve(cfg, p), nil
}

// ExtractionDelays returns the between-item delays for pipeline.Options.
// A configured 0s becomes pipeline.NoDelay.
func ExtractionDelays(cfg *models.AppConfig) (success, failure time.Duration) {
	return pipelineDelay(cfg.Extraction.SuccessDelay), pipelineDelay(cfg.Extraction.ErrorDelay)
}

func pipelineDelay(d *time.Duration) time.Duration {
	switch {
	case d == nil:
		return 0
	case *d == 0:
		return pipeline.NoDelay
	default:
		return *d
	}
}
