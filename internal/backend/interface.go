package backend

import (
	"context"

	"devopsdash/internal/devops"
	"devopsdash/internal/export"
)

// CleanupFunc releases what a backend holds open.
type CleanupFunc func() error

// BackendResult contains the work tracking client factory, the checklist
// writer and an optional cleanup function.
type BackendResult struct {
	Factory devops.Factory
	Writer  export.Writer
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// Azure DevOps specific
	AzureBaseURL      string
	AzureAnalyticsURL string
	AzureAPIVersion   string

	// Memory backend specific
	MemorySeedPath string

	// Checklist export target; empty keeps checklists in memory
	GoogleSpreadsheetID string
}

// BackendType represents the type of backend
type BackendType string

const (
	AzureBackend  BackendType = "azure"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case AzureBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
