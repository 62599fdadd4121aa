package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Settings holds the persisted CLI configuration.
type Settings struct {
	APIBaseURL string `json:"api_base_url"`
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return Settings{APIBaseURL: DefaultBaseURL}
}

// SettingsPath returns the location of the settings file.
func SettingsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config dir: %w", err)
	}
	return filepath.Join(dir, "eval-studio", "settings.json"), nil
}

// LoadSettings reads settings from path. A missing file yields defaults.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return settings, fmt.Errorf("failed to read settings: %w", err)
	}

	if err := json.Unmarshal(data, &settings); err != nil {
		return DefaultSettings(), fmt.Errorf("failed to parse settings: %w", err)
	}
	if settings.APIBaseURL == "" {
		settings.APIBaseURL = DefaultBaseURL
	}
	return settings, nil
}

// SaveSettings writes settings to path, creating parent directories and
// overwriting any existing file.
func SaveSettings(path string, settings Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings dir: %w", err)
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}
