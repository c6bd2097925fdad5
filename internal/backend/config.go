package backend

import (
	"errors"
	"fmt"

	"github.com/samber/lo"

	"devopsdash/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type: backendType,

		AzureBaseURL:      appConfig.AzureBaseURL,
		AzureAnalyticsURL: appConfig.AzureAnalyticsURL,
		AzureAPIVersion:   appConfig.AzureAPIVersion,

		MemorySeedPath: appConfig.MemorySeedPath,

		GoogleSpreadsheetID: appConfig.GoogleSpreadsheetID,
	}, nil
}

func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type %q: must be one of %v", c.Type, GetBackendTypeStrings())
	}
	if c.Type == AzureBackend && c.AzureBaseURL == "" {
		return errors.New("Azure DevOps base URL is required for azure backend")
	}
	// a missing seed file falls back to the built-in demo data
	return nil
}

func GetBackendTypes() []BackendType {
	return []BackendType{AzureBackend, MemoryBackend}
}

func GetBackendTypeStrings() []string {
	return lo.Map(GetBackendTypes(), func(t BackendType, _ int) string { return t.String() })
}
