package feed

import (
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// SourceConfig is one source seed file. Name is derived from the file name.
type SourceConfig struct {
	Name    string            `yaml:"-"`
	URL     string            `yaml:"url"`
	Enabled bool              `yaml:"enabled"`
	Headers map[string]string `yaml:"headers"`
}

type SourceConfigCache struct {
	sourcesDir string
	cache      map[string]*SourceConfig
	mu         sync.RWMutex
}

func NewSourceConfigCache(sourcesDir string) *SourceConfigCache {
	return &SourceConfigCache{
		sourcesDir: sourcesDir,
		cache:      make(map[string]*SourceConfig),
	}
}

func (sc *SourceConfigCache) Run() error {
	if _, err := os.Stat(sc.sourcesDir); os.IsNotExist(err) {
		return nil
	}

	var files []string
	for _, pattern := range []string{"*.yml", "*.yaml"} {
		matches, err := filepath.Glob(filepath.Join(sc.sourcesDir, pattern))
		if err != nil {
			return fmt.Errorf("failed to find source files: %w", err)
		}
		files = append(files, matches...)
	}

	for _, file := range files {
		config, err := sc.LoadFile(file)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Source configuration loaded", "name", config.Name, "url", config.URL, "enabled", config.Enabled)
	}

	return nil
}

func (sc *SourceConfigCache) LoadFile(file string) (*SourceConfig, error) {
	config, err := parseSourceConfig(file)
	if err != nil {
		return nil, err
	}

	base := filepath.Base(file)
	config.Name = strings.TrimSuffix(base, filepath.Ext(base))

	if err := validateSourceConfig(config); err != nil {
		return nil, fmt.Errorf("invalid source config %s: %w", file, err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.cache[config.Name] = config

	return config, nil
}

func (sc *SourceConfigCache) GetConfigs() map[string]*SourceConfig {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return maps.Clone(sc.cache)
}

func (sc *SourceConfigCache) GetConfigCount() int {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return len(sc.cache)
}

func parseSourceConfig(file string) (*SourceConfig, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	config := SourceConfig{Enabled: true}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	config.URL = strings.TrimSpace(config.URL)

	return &config, nil
}

func validateSourceConfig(config *SourceConfig) error {
	if config == nil {
		return fmt.Errorf("config is nil")
	}
	if config.Name == "" {
		return fmt.Errorf("source name is required")
	}
	if err := ValidateSourceURL(config.URL); err != nil {
		return err
	}
	return ValidateSourceHeaders(config.Headers)
}

// ValidateSourceHeaders rejects empty header names and Host overrides.
func ValidateSourceHeaders(headers map[string]string) error {
	for name := range headers {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("header name must not be empty")
		}
		if http.CanonicalHeaderKey(name) == "Host" {
			return fmt.Errorf("header %q cannot be overridden", name)
		}
	}
	return nil
}

// ValidateSourceURL accepts absolute http and https URLs only.
func ValidateSourceURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("source URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid source URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("source URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("source URL %q has no host", raw)
	}
	return nil
}
