// conf/config.go settings loading and persistence
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/deeplyinc/homeaudio-go/internal/errors"
	"github.com/deeplyinc/homeaudio-go/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// Settings contains all configuration options for the application.
type Settings struct {
	Debug bool `yaml:"debug"` // true to enable debug mode

	Main struct {
		Name string `yaml:"name"` // name of the node, used as MQTT client id and in API responses
	} `yaml:"main"`

	Logging logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`

	Model ModelSettings `yaml:"model"`

	Detector DetectorSettings `yaml:"detector"`

	Audio AudioSettings `yaml:"audio"`

	WebServer WebServerSettings `yaml:"webserver"`

	Telemetry TelemetrySettings `yaml:"telemetry"`

	MQTT MQTTSettings `yaml:"mqtt"`

	Sentry SentrySettings `yaml:"sentry"`

	InputFile string `yaml:"-" mapstructure:"-"` // file to analyze in file mode
	UseStub   bool   `yaml:"-" mapstructure:"-"` // run the deterministic stub detector
}

// ModelSettings contains inference model settings.
type ModelSettings struct {
	Path       string `yaml:"path"`       // path to the .tflite model
	Threads    int    `yaml:"threads"`    // interpreter threads, 0 for auto
	UseXNNPACK bool   `yaml:"usexnnpack"` // use the XNNPACK delegate
}

// DetectorSettings mirrors DetectorConfig in config file form.
type DetectorSettings struct {
	SampleRate    int     `yaml:"samplerate"`
	WindowSeconds int     `yaml:"windowseconds"`
	NFFT          int     `yaml:"nfft"`
	HopLength     int     `yaml:"hoplength"`
	MelBins       int     `yaml:"melbins"`
	Frames        int     `yaml:"frames"`
	TensorShape   []int   `yaml:"tensorshape"`
	LogOffset     float64 `yaml:"logoffset"`
	Threshold     float64 `yaml:"threshold"`     // confidence post-filter
	HammingWindow bool    `yaml:"hammingwindow"` // whole-window Hamming before STFT
	StandardScale bool    `yaml:"standardscale"` // zero-mean unit-variance scaling before STFT
	QueueSize     int     `yaml:"queuesize"`     // audio chunks buffered between capture and inference
	MaxResults    int     `yaml:"maxresults"`    // result store cap, 0 for unbounded
}

// AudioSettings contains audio source settings.
type AudioSettings struct {
	Source       string `yaml:"source"`       // capture device name or id substring, empty for default
	ChunkSamples int    `yaml:"chunksamples"` // samples per chunk for file sources
	Realtime     bool   `yaml:"realtime"`     // pace file playback at real time
}

// WebServerSettings contains the HTTP query API settings.
type WebServerSettings struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// TelemetrySettings contains Prometheus endpoint settings.
type TelemetrySettings struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"` // empty to serve /metrics from the web server
}

// MQTTSettings contains detection publishing settings.
type MQTTSettings struct {
	Enabled   bool          `yaml:"enabled"`
	Broker    string        `yaml:"broker"`
	Topic     string        `yaml:"topic"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	Threshold float64       `yaml:"threshold"` // minimum confidence to publish
	Cooldown  time.Duration `yaml:"cooldown"`  // per-label repeat suppression
	Retain    bool          `yaml:"retain"`
}

// SentrySettings contains optional error telemetry settings.
type SentrySettings struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// DetectorConfig derives the immutable detector configuration from the settings.
func (s *Settings) DetectorConfig() DetectorConfig {
	d := s.Detector
	cfg := DetectorConfig{
		SampleRate:    d.SampleRate,
		WindowSeconds: d.WindowSeconds,
		NFFT:          d.NFFT,
		HopLength:     d.HopLength,
		MelBins:       d.MelBins,
		Frames:        d.Frames,
		TensorShape:   slices.Clone(d.TensorShape),
		LogOffset:     d.LogOffset,
		Threshold:     d.Threshold,
		HammingWindow: d.HammingWindow,
		StandardScale: d.StandardScale,
		ModelPath:     s.Model.Path,
		Threads:       s.Model.Threads,
		UseXNNPACK:    s.Model.UseXNNPACK,
	}
	if cfg.Frames == 0 {
		cfg.Frames = cfg.CenteredFrames()
	}
	return cfg
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration into the global viper instance and returns
// the validated settings. configFile may be empty to search the default paths.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings, err := LoadFrom(viper.GetViper(), configFile)
	if err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// LoadFrom reads configuration using the given viper instance.
func LoadFrom(v *viper.Viper, configFile string) (*Settings, error) {
	if err := initViper(v, configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal_config").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

// initViper sets defaults, environment overrides and reads the config file.
func initViper(v *viper.Viper, configFile string) error {
	setDefaultConfig(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.New(err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				FileContext(configFile, 0).
				Context("operation", "read_config").
				Build()
		}
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(v, configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default config and reads it back.
func createDefaultConfig(v *viper.Viper, dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded config: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil { //nolint:gosec // config is not secret by default
		return fmt.Errorf("error writing default config file: %w", err)
	}

	GetLogger().Info("Created default config file", logger.String("path", configPath))

	v.SetConfigFile(configPath)
	return v.ReadInConfig()
}

// GetDefaultConfigPaths returns the configuration search paths for the current OS.
// If a config.yaml exists in one of them, only that path is returned.
func GetDefaultConfigPaths() ([]string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategorySystem).
			Context("operation", "get-executable-path").
			Build()
	}
	exeDir := filepath.Dir(exePath)

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	var configPaths []string
	switch runtime.GOOS {
	case "windows":
		configPaths = []string{
			exeDir,
			filepath.Join(homeDir, "AppData", "Roaming", appDirName),
		}
	default:
		configPaths = []string{
			filepath.Join(homeDir, ".config", appDirName),
			"/etc/" + appDirName,
		}
	}

	for _, path := range configPaths {
		if _, err := os.Stat(filepath.Join(path, "config.yaml")); err == nil {
			return []string{path}, nil
		}
	}

	return configPaths, nil
}

// GetSettings returns the most recently loaded settings.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig writes settings to configPath atomically.
// Comments and ordering of the existing file are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempPath := tempFile.Name()
	defer func() { _ = os.Remove(tempPath) }()

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempPath, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}
