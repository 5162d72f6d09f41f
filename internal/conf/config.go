// config.go: settings struct and loading for the isotrace engine.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

//go:embed config.yaml
var configFiles embed.FS

// Log rotation types
type RotationType string

const (
	RotationDaily  RotationType = "daily"
	RotationWeekly RotationType = "weekly"
	RotationSize   RotationType = "size"
)

// LogConfig defines the configuration for a log file
type LogConfig struct {
	Enabled     bool         // true to enable this log
	Path        string       // path to log file
	Rotation    RotationType // rotation type
	MaxSize     int64        // max size in bytes for size rotation
	RotationDay string       // day of the week for weekly rotation
}

// MainSettings contains general application settings
type MainSettings struct {
	Name      string    // name of the running node
	TimeAs24h bool      `mapstructure:"timeas24h"` // true for 24-hour time format
	Log       LogConfig // main log file settings
}

// SQLiteSettings contains SQLite database settings
type SQLiteSettings struct {
	Enabled bool   // true to enable SQLite
	Path    string // path to SQLite database file
}

// MySQLSettings contains MySQL database settings
type MySQLSettings struct {
	Enabled  bool   // true to enable MySQL
	Username string // MySQL username
	Password string // MySQL password
	Database string // MySQL database name
	Host     string // MySQL server host
	Port     string // MySQL server port
}

// OutputSettings selects and configures the store backend
type OutputSettings struct {
	SQLite SQLiteSettings // SQLite settings
	MySQL  MySQLSettings  // MySQL settings
}

// WebServerSettings contains the HTTP facade settings
type WebServerSettings struct {
	Enabled bool      // true to enable the web server
	Port    string    // port to listen on
	Debug   bool      // true to enable debug logging for the web server
	Log     LogConfig // web server log settings
}

// EngineSettings contains aggregation engine behavior settings
type EngineSettings struct {
	CacheTTL        int    // seconds aggregate query results stay cached
	DefaultPageSize int    // default page size for list endpoints
	MaxPageSize     int    // upper bound for client-requested page sizes
	Timezone        string // canonical timezone for daily rollups
}

// Settings contains all application settings
type Settings struct {
	Debug bool // true to enable debug mode

	Version   string `yaml:"-"` // version number, set at build time
	BuildDate string `yaml:"-"` // build date, set at build time

	Main      MainSettings
	Output    OutputSettings
	WebServer WebServerSettings
	Engine    EngineSettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
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
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default config to the first
// config path and reads it back in.
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(getDefaultConfig()), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		log.Fatalf("Error reading embedded config file: %v", err)
	}
	return string(data)
}

// Setting returns the current settings instance, loading it on first use.
func Setting() *Settings {
	settingsMutex.RLock()
	if settingsInstance != nil {
		defer settingsMutex.RUnlock()
		return settingsInstance
	}
	settingsMutex.RUnlock()

	if _, err := Load(); err != nil {
		log.Fatalf("Error loading settings: %v", err)
	}

	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// GetSettings returns the current settings instance without loading.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// GetDefaultConfigPaths returns the config search paths in priority order:
// current directory first, then the user config directory.
func GetDefaultConfigPaths() ([]string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("error fetching user config directory: %w", err)
	}
	return []string{".", filepath.Join(configDir, "isotrace")}, nil
}

// GetBasePath expands a relative path against the directory holding the
// active config file, creating it if needed.
func GetBasePath(path string) string {
	basePath := viper.GetString("main.basepath")
	if basePath == "" {
		basePath = "."
	}
	if path != "" && !filepath.IsAbs(path) {
		path = filepath.Join(basePath, path)
	} else if path == "" {
		path = basePath
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		log.Printf("Error creating directory %s: %v", path, err)
	}
	return path
}
