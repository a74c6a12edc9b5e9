package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ecomstack/shelfsort/internal/catalog"
	"github.com/ecomstack/shelfsort/internal/config"
	"github.com/ecomstack/shelfsort/internal/engine"
	"github.com/ecomstack/shelfsort/internal/llm"
	"github.com/ecomstack/shelfsort/internal/service"
	"github.com/ecomstack/shelfsort/internal/storage"
)

// initStorage opens the database and brings the schema up to date.
func initStorage(ctx context.Context) (service.Storage, error) {
	store, err := storage.NewSQLiteStorage(config.DatabasePath())
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// pipelineDeps bundles everything a pipeline command needs, with a
// single Close for the lot.
type pipelineDeps struct {
	store      service.Storage
	engine     *engine.Engine
	classifier *llm.Classifier
}

func (d *pipelineDeps) Close() {
	if d.classifier != nil {
		_ = d.classifier.Close()
	}
	if d.store != nil {
		_ = d.store.Close()
	}
}

// initPipeline wires storage, the catalog client, the classifier, and
// the reconciler into an engine.
func initPipeline(ctx context.Context) (*pipelineDeps, error) {
	store, err := initStorage(ctx)
	if err != nil {
		return nil, err
	}

	catalogCfg, err := config.LoadCatalogConfig()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	catalogClient, err := catalog.NewClient(catalogCfg, slog.Default())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create catalog client: %w", err)
	}

	llmCfg, err := config.LoadLLMConfig()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	classifier, err := llm.NewClassifier(llmCfg, store, store, slog.Default())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create classifier: %w", err)
	}

	reconciler := catalog.NewReconciler(catalogClient, slog.Default())
	eng := engine.New(store, classifier, catalogClient, reconciler, config.LoadEngineConfig())

	return &pipelineDeps{
		store:      store,
		engine:     eng,
		classifier: classifier,
	}, nil
}
