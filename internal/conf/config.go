// Package conf defines the application settings and loads them with viper.
package conf

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// LogConfig contains settings for application logging
type LogConfig struct {
	Enabled bool   // true to enable file logging
	Path    string // path to log file
}

// MainSettings contains top-level application settings
type MainSettings struct {
	Name string    // instance name, used in log messages
	Log  LogConfig // log settings
}

// WebServerSettings contains settings for the HTTP server
type WebServerSettings struct {
	Enabled bool   // true to enable the web server
	Port    string // port for the web server
	Debug   bool   // true to enable debug logging for the web server
}

// SQLiteSettings contains settings for the SQLite datastore
type SQLiteSettings struct {
	Enabled bool   // true to enable SQLite database
	Path    string // path to SQLite database file
}

// MySQLSettings contains settings for the MySQL datastore
type MySQLSettings struct {
	Enabled  bool   // true to enable MySQL database
	Username string // MySQL database username
	Password string // MySQL database user password
	Database string // MySQL database name
	Host     string // MySQL database host
	Port     string // MySQL database port
}

// OutputSettings contains database output settings
type OutputSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// UploadSettings controls TSV upload processing
type UploadSettings struct {
	MaxErrorsReported int    // cap on per-row validation errors returned to the client
	DefaultOrganism   string // organism assigned to proteins created during upload
}

// ConsolidationSettings controls PTM site consolidation and display
type ConsolidationSettings struct {
	WindowRadius int // flanking residues on each side of a modification site
}

// UniProtSettings contains settings for the UniProt enrichment gateway
type UniProtSettings struct {
	Enabled        bool   // true to enable sequence/annotation enrichment
	BaseURL        string // UniProt REST base URL
	ProteinsAPIURL string // EBI Proteins API base URL for PTM features
	Timeout        int    // request timeout in seconds
	CacheTTL       int    // response cache TTL in hours
	RateLimitMS    int    // minimum milliseconds between requests
}

// Settings contains all runtime configuration
type Settings struct {
	Debug bool // true to enable debug mode

	Version   string `yaml:"-"` // build version, runtime value
	BuildDate string `yaml:"-"` // build date, runtime value

	Main          MainSettings
	WebServer     WebServerSettings
	Output        OutputSettings
	Upload        UploadSettings
	Consolidation ConsolidationSettings
	UniProt       UniProtSettings
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Setting returns the global settings instance, loading it on first use.
func Setting() *Settings {
	once.Do(func() {
		settingsInstance = &Settings{}
		if err := Load(settingsInstance); err != nil {
			log.Fatalf("Error loading settings: %v", err)
		}
	})
	return GetSettings()
}

// GetSettings returns the current global settings instance without loading.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Load reads the configuration into the provided Settings struct.
func Load(settings *Settings) error {
	if err := initViper(); err != nil {
		return fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := validateSettings(settings); err != nil {
		return err
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()

	return nil
}

// initViper configures viper with defaults and optional config file discovery.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file found, defaults apply.
	}

	return nil
}

// validateSettings checks for configuration combinations that cannot work.
func validateSettings(settings *Settings) error {
	if settings.Output.SQLite.Enabled && settings.Output.MySQL.Enabled {
		return fmt.Errorf("only one database output can be enabled at a time")
	}
	if !settings.Output.SQLite.Enabled && !settings.Output.MySQL.Enabled {
		return fmt.Errorf("no database output enabled, enable either SQLite or MySQL")
	}
	if settings.Consolidation.WindowRadius < 1 || settings.Consolidation.WindowRadius > 25 {
		return fmt.Errorf("consolidation.windowradius must be between 1 and 25, got %d",
			settings.Consolidation.WindowRadius)
	}
	return nil
}

// GetDefaultConfigPaths returns the directories searched for a config file.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error fetching user directory: %w", err)
	}

	return []string{
		".",
		filepath.Join(homeDir, ".config", "ptmscope"),
	}, nil
}

// SaveSettings writes the current settings to the given path as YAML.
func SaveSettings(settings *Settings, path string) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
