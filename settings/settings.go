package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"sonexa/logger"
)

// AppSettings is the full set of user-mutable settings. The JSON file on
// disk must match this shape exactly; unknown fields are rejected at load.
type AppSettings struct {
	LibraryPath        string `json:"libraryPath"`
	RemoteEndpoint     string `json:"remoteEndpoint"`
	AutoSync           bool   `json:"autoSync"`
	LastSyncAt         string `json:"lastSyncAt"`
	Theme              string `json:"theme"`
	OnboardingComplete bool   `json:"onboardingComplete"`
}

// Defaults returns the settings used before the user has configured anything.
func Defaults() AppSettings {
	return AppSettings{
		LibraryPath: "~/SonexaLibrary",
		Theme:       "system",
	}
}

// Store persists AppSettings as a JSON file.
type Store struct {
	path string

	mu      sync.RWMutex
	current AppSettings
}

// NewStore loads settings from path, falling back to defaults when the file
// does not exist yet.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, current: Defaults()}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}

	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	var loaded AppSettings
	if err := dec.Decode(&loaded); err != nil {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}
	s.current = loaded
	return s, nil
}

// Get returns a copy of the current settings.
func (s *Store) Get() AppSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set replaces the settings and persists them.
func (s *Store) Set(settings AppSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(settings); err != nil {
		return err
	}
	s.current = settings
	return nil
}

// Update applies fn to a copy of the settings and persists the result.
func (s *Store) Update(fn func(*AppSettings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := s.current
	fn(&updated)
	if err := s.write(updated); err != nil {
		return err
	}
	s.current = updated
	return nil
}

// Reset restores the defaults and persists them.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	defaults := Defaults()
	if err := s.write(defaults); err != nil {
		return err
	}
	s.current = defaults
	logger.Info("settings reset to defaults")
	return nil
}

// LibraryPath returns the configured library root with the home-directory
// shorthand expanded.
func (s *Store) LibraryPath() string {
	return ExpandHome(s.Get().LibraryPath)
}

func (s *Store) write(settings AppSettings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings file %s: %w", s.path, err)
	}
	return nil
}

// ExpandHome expands a leading ~ to the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
	}
	return path
}
