package chatui

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Settings holds the terminal client configuration.
type Settings struct {
	ServerURL string `yaml:"server_url"`
	VideoURL  string `yaml:"video_url"`
}

// DefaultSettings returns settings pointing at a local server.
func DefaultSettings() *Settings {
	return &Settings{
		ServerURL: "http://localhost:8080",
	}
}

// DefaultSettingsPath returns ~/.tubechat/chat.yaml.
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".tubechat", "chat.yaml")
}

// LoadSettings reads settings from path. A missing file yields the defaults.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("failed to read settings: %w", err)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return s, fmt.Errorf("failed to parse settings: %w", err)
	}
	if s.ServerURL == "" {
		s.ServerURL = DefaultSettings().ServerURL
	}
	return s, nil
}

// Save writes the settings to path, creating its directory.
func (s *Settings) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}
