package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// GlobalConfig is the persisted credential file at
// ~/.config/quill/config.json.
type GlobalConfig struct {
	APIKey string `json:"api_key"`
	APIURL string `json:"api_url"`
}

// Indirection points so tests can redirect the config location.
var (
	getConfigDirFunc  = defaultGetConfigDir
	getConfigPathFunc = defaultGetConfigPath
)

func defaultGetConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(base, "quill"), nil
}

func defaultGetConfigPath() (string, error) {
	dir, err := getConfigDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// GetConfigDir returns the quill config directory for this platform.
func GetConfigDir() (string, error) {
	return getConfigDirFunc()
}

// GetConfigPath returns the full path of config.json.
func GetConfigPath() (string, error) {
	return getConfigPathFunc()
}

// LoadGlobalConfig parses config.json. A missing file is not an error; it
// returns a nil config so callers fall through the credential cascade.
func LoadGlobalConfig() (*GlobalConfig, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg GlobalConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// SaveGlobalConfig writes config.json, creating the directory if needed.
// The file holds a credential, so it is written 0600.
func SaveGlobalConfig(config *GlobalConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	dir, err := GetConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	path, err := GetConfigPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DeleteGlobalConfig removes config.json. Deleting a missing file succeeds.
func DeleteGlobalConfig() error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete config file: %w", err)
	}
	return nil
}

var apiKeyHexRe = regexp.MustCompile("^[0-9a-fA-F]{64}$")

// IsValidAPIKey reports whether key has the expected shape: the "qll_"
// prefix followed by 64 hex characters.
func IsValidAPIKey(key string) bool {
	rest, ok := strings.CutPrefix(key, "qll_")
	if !ok {
		return false
	}
	return apiKeyHexRe.MatchString(rest)
}

// CredentialSource identifies which layer of the cascade supplied
// credentials.
type CredentialSource string

const (
	SourceFlag         CredentialSource = "flag"
	SourceEnvFile      CredentialSource = "env_file"
	SourceGlobalConfig CredentialSource = "global_config"
	SourceNone         CredentialSource = "none"
)

// GetCredentialSource walks the cascade (flags, environment, global config)
// and returns the first layer that provides both the key and the URL.
func GetCredentialSource(flagAPIKey, flagAPIURL string) (CredentialSource, string, string) {
	if flagAPIKey != "" && flagAPIURL != "" {
		return SourceFlag, flagAPIKey, flagAPIURL
	}

	key, url := os.Getenv(envAPIKey), os.Getenv(envAPIURL)
	if key != "" && url != "" {
		return SourceEnvFile, key, url
	}

	cfg, err := LoadGlobalConfig()
	if err == nil && cfg != nil && cfg.APIKey != "" && cfg.APIURL != "" {
		return SourceGlobalConfig, cfg.APIKey, cfg.APIURL
	}

	return SourceNone, "", ""
}
