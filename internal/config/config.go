// Package config holds persistent application settings.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

const (
	configFileName  = "config.json"
	configDirName   = "lectern"
	MaxRecentlyRead = 10 // Maximum number of recently read documents to track

	DefaultTheme            = "light"
	DefaultHeaderOffset     = 2.0
	DefaultPersistThreshold = 5
	DefaultRestoreAttempts  = 60
)

// RecentlyReadEntry records where the reader last was in a document. The
// stored section id is what seeds resume resolution on the next open - the
// local analog of a section deep link.
type RecentlyReadEntry struct {
	DocumentID string    `json:"document_id"`
	Title      string    `json:"title"`
	SectionID  string    `json:"section_id,omitempty"`
	OpenedAt   time.Time `json:"opened_at"`
}

// Config holds the application configuration
type Config struct {
	Theme            string              `json:"theme"`
	HeaderOffset     float64             `json:"header_offset"`
	PersistThreshold int                 `json:"persist_threshold"`
	RestoreAttempts  int                 `json:"restore_attempts"`
	RecentlyRead     []RecentlyReadEntry `json:"recently_read,omitempty"`

	// Path to config file (not persisted)
	path string `json:"-"`
}

// Load loads configuration from the config file, falling back to defaults
// when it does not exist yet.
func Load() (*Config, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Theme:            DefaultTheme,
		HeaderOffset:     DefaultHeaderOffset,
		PersistThreshold: DefaultPersistThreshold,
		RestoreAttempts:  DefaultRestoreAttempts,
		path:             configPath,
	}

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.path = configPath
	if cfg.PersistThreshold <= 0 {
		cfg.PersistThreshold = DefaultPersistThreshold
	}
	if cfg.RestoreAttempts <= 0 {
		cfg.RestoreAttempts = DefaultRestoreAttempts
	}
	return cfg, nil
}

// Save persists the configuration to disk
func (c *Config) Save() error {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(c.path, data, 0600)
}

// SetTheme updates the theme and saves.
func (c *Config) SetTheme(theme string) error {
	c.Theme = theme
	return c.Save()
}

// LastSection returns the stored resume section for a document, if any.
func (c *Config) LastSection(documentID string) string {
	for _, e := range c.RecentlyRead {
		if e.DocumentID == documentID {
			return e.SectionID
		}
	}
	return ""
}

// SetLastSection records the current section for a document, promoting it to
// the front of the recently read list.
func (c *Config) SetLastSection(documentID, title, sectionID string) error {
	entries := make([]RecentlyReadEntry, 0, len(c.RecentlyRead)+1)
	entries = append(entries, RecentlyReadEntry{
		DocumentID: documentID,
		Title:      title,
		SectionID:  sectionID,
		OpenedAt:   time.Now(),
	})
	for _, e := range c.RecentlyRead {
		if e.DocumentID == documentID {
			continue
		}
		entries = append(entries, e)
	}
	if len(entries) > MaxRecentlyRead {
		entries = entries[:MaxRecentlyRead]
	}
	c.RecentlyRead = entries
	return c.Save()
}

func getConfigPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, configDirName, configFileName), nil
}
