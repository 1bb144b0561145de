// Package config loads and validates the chatbridge configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	General  GeneralConfig  `json:"general"`
	Server   ServerConfig   `json:"server"`
	Line     LineConfig     `json:"line"`
	Telegram TelegramConfig `json:"telegram"`
	Gemini   GeminiConfig   `json:"gemini"`
	Video    VideoConfig    `json:"video"`
	Image    ImageConfig    `json:"image"`
	Journal  JournalConfig  `json:"journal"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel     string `json:"logLevel"`
	LogFile      string `json:"logFile,omitempty"`
	Workers      int    `json:"workers"`   // events dispatched in parallel
	BusBuffer    int    `json:"busBuffer"` // inbound queue capacity
	FailureReply string `json:"failureReply,omitempty"`
}

type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type LineConfig struct {
	Enabled            bool   `json:"enabled"`
	ChannelSecret      string `json:"channelSecret"`
	ChannelAccessToken string `json:"channelAccessToken"`
	CallbackPath       string `json:"callbackPath"`
	HistoryPath        string `json:"historyPath"`
}

type TelegramConfig struct {
	Enabled   bool           `json:"enabled"`
	Token     string         `json:"token"`
	AllowFrom FlexStringList `json:"allowFrom"`
	ParseMode string         `json:"parseMode"`
}

// FlexStringList is a []string that also accepts numbers in the JSON array,
// so ["123", 456] becomes ["123", "456"].
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

type GeminiConfig struct {
	APIKey            string           `json:"apiKey"`
	ModelName         string           `json:"modelName"`
	SystemInstruction string           `json:"systemInstruction,omitempty"`
	TimeoutSeconds    int              `json:"timeoutSeconds"`
	GenerationConfig  GenerationConfig `json:"generationConfig"`
}

type GenerationConfig struct {
	Temperature     float32 `json:"temperature"`
	TopP            float32 `json:"topP"`
	TopK            float32 `json:"topK"`
	MaxOutputTokens int32   `json:"maxOutputTokens"`
}

type VideoConfig struct {
	FrameInterval int   `json:"frameInterval"`
	MaxFrames     int   `json:"maxFrames"`
	MaxDimension  int   `json:"maxDimension"` // longest side of a kept frame; 0 keeps the source size
	MaxBytes      int64 `json:"maxBytes"`
}

type ImageConfig struct {
	MaxBytes int64 `json:"maxBytes"`
}

// JournalConfig configures the SQLite transcript. It is written to only.
type JournalConfig struct {
	Enabled bool   `json:"enabled"`
	DBPath  string `json:"dbPath"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns ~/.chatbridge.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatbridge"
	}
	return filepath.Join(home, ".chatbridge")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads a JSON or YAML file (by extension), expands environment
// variables, overlays it on Defaults and validates the result.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}
	data = []byte(ExpandEnvVars(string(data)))

	if isYAML(path) {
		if data, err = yamlToJSON(data); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Journal.DBPath = ExpandPath(cfg.Journal.DBPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Save writes cfg as JSON, or YAML when path ends in .yaml or .yml.
func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if isYAML(path) {
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		if data, err = yaml.Marshal(m); err != nil {
			return fmt.Errorf("cannot marshal config: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o600)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// yamlToJSON lets YAML files share the JSON field names and decoders.
func yamlToJSON(data []byte) ([]byte, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return json.Marshal(m)
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the variable's value. ${VAR:-default}
// falls back to default when VAR is unset or empty; a bare ${VAR} that is
// unset stays as written.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name := groups[1]
		def, hasDefault := groups[2], groups[2] != ""

		if val, ok := os.LookupEnv(name); ok && val != "" {
			return val
		}
		if hasDefault {
			return def
		}
		return match
	})
}

// Validate checks ranges and cross-field requirements.
func Validate(cfg *Config) error {
	var errs []string
	add := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		add("general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.Workers < 1 || cfg.General.Workers > 64 {
		add("general.workers must be between 1 and 64")
	}
	if cfg.General.BusBuffer < 1 {
		add("general.busBuffer must be >= 1")
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		add("server.port must be between 1 and 65535")
	}

	if cfg.Line.Enabled {
		requireResolved(add, "line.channelSecret", cfg.Line.ChannelSecret)
		requireResolved(add, "line.channelAccessToken", cfg.Line.ChannelAccessToken)
	}
	checkRoute(add, "line.callbackPath", cfg.Line.CallbackPath)
	checkRoute(add, "line.historyPath", cfg.Line.HistoryPath)
	if cfg.Line.CallbackPath == cfg.Line.HistoryPath {
		add("line.callbackPath and line.historyPath must differ")
	}

	if cfg.Telegram.Enabled {
		requireResolved(add, "telegram.token", cfg.Telegram.Token)
	}
	if cfg.Gemini.TimeoutSeconds < 1 {
		add("gemini.timeoutSeconds must be >= 1")
	}
	gen := cfg.Gemini.GenerationConfig
	if gen.Temperature < 0 || gen.Temperature > 2 {
		add("gemini.generationConfig.temperature must be between 0 and 2")
	}
	if gen.TopP < 0 || gen.TopP > 1 {
		add("gemini.generationConfig.topP must be between 0 and 1")
	}
	if gen.TopK < 0 {
		add("gemini.generationConfig.topK must be >= 0")
	}
	if gen.MaxOutputTokens < 0 {
		add("gemini.generationConfig.maxOutputTokens must be >= 0")
	}

	if cfg.Video.FrameInterval < 1 {
		add("video.frameInterval must be >= 1")
	}
	if cfg.Video.MaxFrames < 1 {
		add("video.maxFrames must be >= 1")
	}
	if cfg.Video.MaxDimension < 0 {
		add("video.maxDimension must be >= 0")
	}
	if cfg.Video.MaxBytes < 0 || cfg.Image.MaxBytes < 0 {
		add("video.maxBytes and image.maxBytes must be >= 0")
	}

	if cfg.Journal.Enabled && cfg.Journal.DBPath == "" {
		add("journal.dbPath is required when the journal is enabled")
	}

	if cfg.Metrics.Enabled {
		checkRoute(add, "metrics.endpoint", cfg.Metrics.Endpoint)
		if cfg.Metrics.Endpoint == cfg.Line.CallbackPath || cfg.Metrics.Endpoint == cfg.Line.HistoryPath {
			add("metrics.endpoint collides with a line route")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func requireResolved(add func(string, ...any), field, value string) {
	switch {
	case value == "":
		add("%s is required", field)
	case envVarPattern.MatchString(value):
		add("%s references an unset environment variable: %s", field, value)
	}
}

func checkRoute(add func(string, ...any), field, path string) {
	if !strings.HasPrefix(path, "/") || path == "/" {
		add("%s must be an absolute path other than /", field)
	}
}

// ExpandPath resolves a leading ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
