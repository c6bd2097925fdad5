package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"devopsdash/internal/devops/azure"
	"devopsdash/internal/devops/memory"
	"devopsdash/internal/export"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var result *BackendResult
	switch config.Type {
	case AzureBackend:
		result = f.createAzureBackend(config)
	case MemoryBackend:
		r, err := f.createMemoryBackend(config)
		if err != nil {
			return nil, err
		}
		result = r
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	writer, err := f.createWriter(ctx, config)
	if err != nil {
		return nil, err
	}
	result.Writer = writer
	return result, nil
}

func (f *DefaultFactory) createAzureBackend(config Config) *BackendResult {
	factory := azure.NewFactory(azure.Config{
		BaseURL:      config.AzureBaseURL,
		AnalyticsURL: config.AzureAnalyticsURL,
		APIVersion:   config.AzureAPIVersion,
	})

	f.logger.Info("Initialized Azure DevOps backend",
		"base_url", config.AzureBaseURL,
		"analytics_url", config.AzureAnalyticsURL,
		"api_version", config.AzureAPIVersion)

	return &BackendResult{Factory: factory}
}

// createMemoryBackend loads the seed file. A missing file yields the
// built-in demo project.
func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	if config.MemorySeedPath == "" || !seedExists(config.MemorySeedPath) {
		f.logger.Warn("Seed file not found, using demo data", "seed_path", config.MemorySeedPath)
		return &BackendResult{Factory: memory.New(memory.DefaultSeed()).Factory()}, nil
	}
	store, err := memory.NewFromFile(config.MemorySeedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize memory backend: %w", err)
	}
	f.logger.Info("Initialized memory backend", "seed_path", config.MemorySeedPath)
	return &BackendResult{Factory: store.Factory()}, nil
}

func (f *DefaultFactory) createWriter(ctx context.Context, config Config) (export.Writer, error) {
	if config.GoogleSpreadsheetID == "" {
		f.logger.Info("Google Sheets disabled - release checklists are kept in memory")
		return export.NewMemoryWriter(), nil
	}
	w, err := export.NewSheetsWriter(ctx, config.GoogleSpreadsheetID)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets writer: %w", err)
	}
	f.logger.Info("Google Sheets writer initialized", "spreadsheet_id", config.GoogleSpreadsheetID)
	return w, nil
}

// seedExists reports whether path names a readable file.
func seedExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
