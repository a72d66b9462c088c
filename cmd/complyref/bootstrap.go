package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/custodia-labs/complyref/internal/adapters/driven/ai"
	"github.com/custodia-labs/complyref/internal/adapters/driven/config/file"
	"github.com/custodia-labs/complyref/internal/adapters/driven/records/jsonl"
	"github.com/custodia-labs/complyref/internal/adapters/driven/storage/corpus"
	"github.com/custodia-labs/complyref/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/complyref/internal/adapters/driving/cli"
	"github.com/custodia-labs/complyref/internal/core/domain"
	"github.com/custodia-labs/complyref/internal/core/services"
	"github.com/custodia-labs/complyref/internal/logger"
)

// bootstrap wires adapters into services. Settings-only commands get the
// settings service alone; everything else also opens both corpus stores,
// the task journal and the AI providers.
func bootstrap(ctx context.Context, opts cli.Options) (_ *cli.Services, err error) {
	dir, err := resolveConfigDir(opts.ConfigDir)
	if err != nil {
		return nil, err
	}

	cfg, err := file.NewConfigStore(dir)
	if err != nil {
		return nil, fmt.Errorf("opening config in %s: %w", dir, err)
	}
	settingsSvc := services.NewSettingsService(cfg, ai.NewConfigValidator())

	svc := &cli.Services{
		Settings: settingsSvc,
		Records:  jsonl.NewReader(),
		Close:    func() error { return nil },
	}
	if !opts.Engine {
		return svc, nil
	}

	settings, err := settingsSvc.Get()
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	if opts.InsertOnUncertain {
		settings.Update.InsertOnUncertain = true
	}
	if settings.Store.DataDir == "" {
		settings.Store.DataDir = filepath.Join(dir, "data")
	}

	// Unwind whatever was opened if a later step fails.
	var closers []func() error
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
	defer func() {
		if err != nil {
			_ = closeAll()
		}
	}()

	aiResult, err := ai.Init(ctx, settings)
	if err != nil {
		return nil, err
	}
	closers = append(closers, aiResult.Close)
	svc.Warnings = aiResult.Warnings

	opened := make(map[domain.Corpus]*corpus.Store, 2)
	for _, c := range []domain.Corpus{domain.CorpusLaw, domain.CorpusFeature} {
		path := settings.Store.Path(c)
		logger.Debug("opening %s store at %s", c, path)
		store, err := corpus.Open(ctx, path, corpus.Options{
			Embedder:  aiResult.EmbeddingService,
			Dimension: settings.Embedding.Dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("opening %s store: %w", c, err)
		}
		closers = append(closers, store.Close)
		opened[c] = store
	}

	journal, err := sqlite.NewStore(settings.Store.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening task journal: %w", err)
	}
	closers = append(closers, journal.Close)

	prompts, err := file.NewPromptStore(filepath.Join(dir, "prompts"))
	if err != nil {
		return nil, fmt.Errorf("opening prompts: %w", err)
	}

	// The queue closes last-in-first-out, so running tasks drain before
	// the stores underneath them close.
	queue := services.NewIngestQueue(journal.TaskStore())
	closers = append(closers, queue.Close)

	svc.Tasks = queue
	svc.Compliance = services.NewComplianceService(services.ComplianceConfig{
		Laws:     opened[domain.CorpusLaw],
		Features: opened[domain.CorpusFeature],
		LLM:      aiResult.LLMService,
		Prompts:  prompts,
		Settings: *settings,
	})
	svc.Close = closeAll

	return svc, nil
}

func resolveConfigDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, file.DefaultDirName), nil
}
