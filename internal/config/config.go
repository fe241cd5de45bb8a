package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Audio backends
const (
	BackendSpeaker  = "speaker"
	BackendHeadless = "headless"
)

// Config holds application configuration
type Config struct {
	// Directory holding preferences.db and history.db
	// Default: ~/.local/share/nada
	DataDir string

	// YAML catalog file. Empty uses the built-in catalog.
	CatalogFile string

	// Directory or base URL that relative media paths resolve against
	MediaRoot string

	// Address the serve command listens on
	// Default: ":8080"
	Listen string

	// Log level (debug, info, warn, error)
	LogLevel string

	// Element backend for audio: speaker or headless
	AudioBackend string

	// Default volume when no preference is stored
	DefaultVolume float64

	// Origins allowed to call the HTTP API
	AllowedOrigins []string

	// Output format template for the now command
	// Default: "{{.Artist}} - {{.Title}}"
	OutputFormat string

	// Fixed width for the now command (0 disables padding)
	OutputWidth int

	// Scroll text wider than OutputWidth instead of truncating
	MarqueeEnabled bool

	// Marquee speed in characters per second
	MarqueeSpeed int

	// Text placed between repetitions of scrolling text
	MarqueeSeparator string

	// How long history entries are kept
	HistoryRetention time.Duration

	Preview PreviewConfig
}

// PreviewConfig holds hover preview tuning
type PreviewConfig struct {
	// Hover debounce before a preview starts
	Delay time.Duration

	// Preview loudness relative to the user volume
	VolumeScale float64
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Config file locations (in order of precedence)
	configDir := getConfigDir()
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)

	// Read config file (optional - don't fail if missing)
	_ = v.ReadInConfig()

	// Read from environment variables
	v.SetEnvPrefix("NADA")
	v.AutomaticEnv()

	return fromViper(v), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("catalog_file", "")
	v.SetDefault("media_root", ".")
	v.SetDefault("listen", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("audio_backend", BackendSpeaker)
	v.SetDefault("default_volume", 0.7)
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("output_format", "{{.Artist}} - {{.Title}}")
	v.SetDefault("output_width", 0)
	v.SetDefault("marquee_enabled", false)
	v.SetDefault("marquee_speed", 2)
	v.SetDefault("marquee_separator", " • ")
	v.SetDefault("history_retention_days", 90)
	v.SetDefault("preview.delay_ms", 300)
	v.SetDefault("preview.volume_scale", 0.6)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		DataDir:          v.GetString("data_dir"),
		CatalogFile:      v.GetString("catalog_file"),
		MediaRoot:        v.GetString("media_root"),
		Listen:           v.GetString("listen"),
		LogLevel:         v.GetString("log_level"),
		AudioBackend:     v.GetString("audio_backend"),
		DefaultVolume:    v.GetFloat64("default_volume"),
		AllowedOrigins:   v.GetStringSlice("allowed_origins"),
		OutputFormat:     v.GetString("output_format"),
		OutputWidth:      v.GetInt("output_width"),
		MarqueeEnabled:   v.GetBool("marquee_enabled"),
		MarqueeSpeed:     v.GetInt("marquee_speed"),
		MarqueeSeparator: v.GetString("marquee_separator"),
		HistoryRetention: time.Duration(v.GetInt("history_retention_days")) * 24 * time.Hour,
		Preview: PreviewConfig{
			Delay:       time.Duration(v.GetInt("preview.delay_ms")) * time.Millisecond,
			VolumeScale: v.GetFloat64("preview.volume_scale"),
		},
	}
}

// PreferencesDB is the path of the preference store
func (c *Config) PreferencesDB() string {
	return filepath.Join(c.DataDir, "preferences.db")
}

// HistoryDB is the path of the preview history journal
func (c *Config) HistoryDB() string {
	return filepath.Join(c.DataDir, "history.db")
}

// StateFile is where serve mirrors the mini player for the now command
func (c *Config) StateFile() string {
	return filepath.Join(c.DataDir, "now-playing.json")
}

// EnsureDataDir creates the data directory if needed
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}

// getConfigDir returns the configuration directory path
// Creates the directory if it doesn't exist
func getConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	configDir := filepath.Join(homeDir, ".config", "nada")

	// Create config directory if it doesn't exist
	_ = os.MkdirAll(configDir, 0755)

	return configDir
}

// GetConfigDir returns the configuration directory path (public helper)
func GetConfigDir() string {
	return getConfigDir()
}

func defaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".nada")
	}
	return filepath.Join(homeDir, ".local", "share", "nada")
}

// Save writes the user-editable settings to the config file
func (c *Config) Save() error {
	v := viper.New()

	// Set config file path
	configDir := getConfigDir()
	configFile := filepath.Join(configDir, "config.yaml")

	// Set values in viper
	v.Set("data_dir", c.DataDir)
	v.Set("catalog_file", c.CatalogFile)
	v.Set("media_root", c.MediaRoot)
	v.Set("listen", c.Listen)
	v.Set("log_level", c.LogLevel)
	v.Set("audio_backend", c.AudioBackend)
	v.Set("default_volume", c.DefaultVolume)
	v.Set("allowed_origins", c.AllowedOrigins)
	v.Set("output_format", c.OutputFormat)
	v.Set("output_width", c.OutputWidth)
	v.Set("marquee_enabled", c.MarqueeEnabled)
	v.Set("marquee_speed", c.MarqueeSpeed)
	v.Set("marquee_separator", c.MarqueeSeparator)
	v.Set("history_retention_days", int(c.HistoryRetention/(24*time.Hour)))
	v.Set("preview.delay_ms", c.Preview.Delay.Milliseconds())
	v.Set("preview.volume_scale", c.Preview.VolumeScale)

	// Write to file
	return v.WriteConfigAs(configFile)
}
