package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/olitsch123/FOReportingv2/internal/extract"
	"github.com/olitsch123/FOReportingv2/internal/model"
	"github.com/olitsch123/FOReportingv2/internal/resilience"
	"github.com/olitsch123/FOReportingv2/internal/store"
	"github.com/olitsch123/FOReportingv2/pkg/anthropic"
)

func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	return st, nil
}

// loadLibrary returns the field library from the configured path, or the
// built-in library when none is set.
func loadLibrary() (*model.FieldLibrary, error) {
	if cfg.Extraction.FieldLibraryPath == "" {
		return model.BuiltinLibrary()
	}
	data, err := os.ReadFile(cfg.Extraction.FieldLibraryPath)
	if err != nil {
		return nil, eris.Wrap(err, "read field library")
	}
	lib, err := model.LoadFieldLibrary(data)
	if err != nil {
		return nil, err
	}
	zap.L().Info("field library loaded",
		zap.String("path", cfg.Extraction.FieldLibraryPath))
	return lib, nil
}

// buildExtractors assembles the extraction methods. The structured method is
// only wired when an API key is configured; the deterministic methods carry
// the pipeline without it.
func buildExtractors(library *model.FieldLibrary) []extract.Extractor {
	extractors := []extract.Extractor{
		extract.NewTableExtractor(cfg.Extraction.TableConfidence),
		extract.NewPatternExtractor(cfg.Extraction.PatternConfidence),
		extract.NewPositionalExtractor(
			cfg.Extraction.PositionalExactConfidence,
			cfg.Extraction.PositionalLooseConfidence,
		),
	}

	if cfg.Anthropic.Key != "" {
		client := resilience.NewGuardedClient(
			anthropic.NewClient(cfg.Anthropic.Key, cfg.Anthropic.RequestsPer),
			resilience.CircuitConfig{},
		)
		extractors = append(extractors, extract.NewStructuredExtractor(
			client,
			library,
			cfg.Anthropic.Model,
			cfg.Anthropic.MaxTokens,
			cfg.Extraction.StructuredConfidence,
			time.Duration(cfg.Extraction.StructuredTimeoutSec)*time.Second,
		))
	} else {
		zap.L().Warn("no anthropic key configured, structured extraction disabled")
	}

	return extractors
}
