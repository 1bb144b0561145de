package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_LogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.General.LogLevel = "verbose"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown log level")
	}
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg.General.LogLevel = level
		if err := Validate(cfg); err != nil {
			t.Fatalf("level %q should be valid: %v", level, err)
		}
	}
}

func TestValidate_Workers_Boundary(t *testing.T) {
	cfg := Defaults()

	cfg.General.Workers = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for workers=0")
	}
	cfg.General.Workers = 64
	if err := Validate(cfg); err != nil {
		t.Fatalf("workers=64 should be valid: %v", err)
	}
	cfg.General.Workers = 65
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for workers=65")
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for port 0")
	}

	cfg.Server.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for port > 65535")
	}
}

func TestValidate_LineRequiresCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Line.Enabled = true
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "line.channelSecret") {
		t.Fatalf("expected missing secret error, got %v", err)
	}

	cfg.Line.ChannelSecret = "secret"
	cfg.Line.ChannelAccessToken = "${LINE_TOKEN_THAT_IS_NOT_SET}"
	err = Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "unset environment variable") {
		t.Fatalf("expected unresolved variable error, got %v", err)
	}

	cfg.Line.ChannelAccessToken = "token"
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidate_Routes(t *testing.T) {
	cfg := Defaults()
	cfg.Line.HistoryPath = cfg.Line.CallbackPath
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for identical routes")
	}

	cfg = Defaults()
	cfg.Line.CallbackPath = "callback"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for relative route")
	}

	cfg = Defaults()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Endpoint = cfg.Line.HistoryPath
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for metrics route collision")
	}
}

func TestValidate_Video(t *testing.T) {
	cfg := Defaults()
	cfg.Video.FrameInterval = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for frameInterval=0")
	}

	cfg = Defaults()
	cfg.Video.MaxFrames = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for maxFrames=0")
	}

	cfg = Defaults()
	cfg.Video.MaxDimension = -1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative maxDimension")
	}
}

func TestDefaults_VideoFramesAreBounded(t *testing.T) {
	if d := Defaults().Video.MaxDimension; d <= 0 {
		t.Fatalf("default maxDimension = %d, frames would be kept at source resolution", d)
	}
}

func TestValidate_Generation(t *testing.T) {
	cfg := Defaults()
	cfg.Gemini.GenerationConfig.TopP = 1.5
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for topP > 1")
	}

	cfg = Defaults()
	cfg.Gemini.TimeoutSeconds = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for timeoutSeconds=0")
	}
}

func TestValidate_JournalPath(t *testing.T) {
	cfg := Defaults()
	cfg.Journal.Enabled = true
	cfg.Journal.DBPath = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for empty journal path")
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	original := Defaults()
	original.Gemini.ModelName = "gemini-test"
	original.Video.MaxFrames = 60

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Gemini.ModelName != "gemini-test" || loaded.Video.MaxFrames != 60 {
		t.Fatalf("round trip lost values: %+v", loaded.Gemini)
	}
}

func TestLoadSave_YAMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	original := Defaults()
	original.Telegram.AllowFrom = FlexStringList{"42"}
	original.Gemini.GenerationConfig.Temperature = 0.5

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, _ := os.ReadFile(path)
	if strings.HasPrefix(strings.TrimSpace(string(data)), "{") {
		t.Fatalf("expected YAML output, got JSON:\n%s", data)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Telegram.AllowFrom) != 1 || loaded.Telegram.AllowFrom[0] != "42" {
		t.Fatalf("allowFrom = %v", loaded.Telegram.AllowFrom)
	}
	if loaded.Gemini.GenerationConfig.Temperature != 0.5 {
		t.Fatalf("temperature = %v", loaded.Gemini.GenerationConfig.Temperature)
	}
}

func TestLoad_YAMLOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := "video:\n  frameInterval: 15\ntelegram:\n  allowFrom: [123, \"456\"]\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Video.FrameInterval != 15 || cfg.Video.MaxFrames != 120 || cfg.Video.MaxDimension != 768 {
		t.Fatalf("video = %+v", cfg.Video)
	}
	if strings.Join(cfg.Telegram.AllowFrom, ",") != "123,456" {
		t.Fatalf("allowFrom = %v", cfg.Telegram.AllowFrom)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{not json}"), 0o644)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoad_ValidatesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"video": {"maxFrames": 0}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for maxFrames=0")
	}
}

func TestLoad_WithEnvVarSubstitution(t *testing.T) {
	t.Setenv("TEST_CHATBRIDGE_GEMINI_KEY", "key-from-env")

	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"gemini": {"apiKey": "${TEST_CHATBRIDGE_GEMINI_KEY}", "modelName": "${TEST_CHATBRIDGE_MODEL:-gemini-fallback}"},
		"server": {"port": ${TEST_CHATBRIDGE_PORT:-9000}}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Gemini.APIKey != "key-from-env" {
		t.Fatalf("apiKey = %q", cfg.Gemini.APIKey)
	}
	if cfg.Gemini.ModelName != "gemini-fallback" {
		t.Fatalf("modelName = %q", cfg.Gemini.ModelName)
	}
	if cfg.Server.Port != 9000 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
}

func TestTemplate_NeedsEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := Save(path, Template()); err != nil {
		t.Fatal(err)
	}

	t.Setenv("LINE_CHANNEL_SECRET", "")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error while LINE credentials are unset")
	}

	t.Setenv("LINE_CHANNEL_SECRET", "secret-value")
	t.Setenv("LINE_CHANNEL_ACCESS_TOKEN", "token-value")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Line.ChannelSecret != "secret-value" || !cfg.Journal.Enabled {
		t.Fatalf("unexpected template config: %+v", cfg.Line)
	}
}

// --- Accessor ---

func TestGetByPath_ValidPaths(t *testing.T) {
	cfg := Defaults()
	v, err := GetByPath(cfg, "video.maxFrames")
	if err != nil {
		t.Fatal(err)
	}
	if v != float64(120) {
		t.Fatalf("expected 120, got %v", v)
	}
	if v, _ := GetByPath(cfg, "line.callbackPath"); v != "/line/callback" {
		t.Fatalf("expected /line/callback, got %v", v)
	}
}

func TestGetByPath_InvalidPath(t *testing.T) {
	if _, err := GetByPath(Defaults(), "nonexistent.path"); err == nil {
		t.Fatal("expected error for invalid path")
	}
}

func TestSetByPath_Conversions(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "line.enabled", "true"); err != nil {
		t.Fatal(err)
	}
	if err := SetByPath(cfg, "video.frameInterval", "15"); err != nil {
		t.Fatal(err)
	}
	if err := SetByPath(cfg, "gemini.generationConfig.topP", "0.8"); err != nil {
		t.Fatal(err)
	}
	if !cfg.Line.Enabled || cfg.Video.FrameInterval != 15 || cfg.Gemini.GenerationConfig.TopP != 0.8 {
		t.Fatalf("values not applied: %v %v %v", cfg.Line.Enabled, cfg.Video.FrameInterval, cfg.Gemini.GenerationConfig.TopP)
	}
}

func TestSetByPath_Errors(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "", "x"); err == nil {
		t.Fatal("expected error for empty path")
	}
	if err := SetByPath(cfg, "video.noSuchKey", "1"); err == nil {
		t.Fatal("expected error for unknown key")
	}
	if err := SetByPath(cfg, "video.maxFrames", "many"); err == nil {
		t.Fatal("expected error for type mismatch")
	}
	if cfg.Video.MaxFrames != 120 {
		t.Fatalf("failed set modified config: %d", cfg.Video.MaxFrames)
	}
}

// --- Sanitize ---

func TestSanitize_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Telegram.Token = "123456789:ABCdefGHIjklMNOpqrSTUvwxyz"
	cfg.Gemini.APIKey = "AIzaSy1234567890abcdefghijklmnop"
	cfg.Line.ChannelAccessToken = "line-access-token-1234567890"

	sanitized := Sanitize(cfg)

	if sanitized.Telegram.Token == cfg.Telegram.Token {
		t.Fatal("telegram token should be masked")
	}
	if sanitized.Gemini.APIKey == cfg.Gemini.APIKey {
		t.Fatal("API key should be masked")
	}
	if sanitized.Line.ChannelAccessToken == cfg.Line.ChannelAccessToken {
		t.Fatal("line token should be masked")
	}
	if cfg.Telegram.Token != "123456789:ABCdefGHIjklMNOpqrSTUvwxyz" {
		t.Fatal("original config should not be modified")
	}
}

func TestSanitize_ShortSecret(t *testing.T) {
	cfg := Defaults()
	cfg.Line.ChannelSecret = "short"
	if got := Sanitize(cfg).Line.ChannelSecret; got != "***" {
		t.Fatalf("short secret should be '***', got %q", got)
	}
}

func TestSanitize_KeepsEnvReferences(t *testing.T) {
	cfg := Template()
	if got := Sanitize(cfg).Gemini.APIKey; got != "${GEMINI_API_KEY}" {
		t.Fatalf("env reference should be shown, got %q", got)
	}
}

// --- ListPaths ---

func TestListPaths_ReturnsAllLeaves(t *testing.T) {
	paths := ListPaths(Defaults())
	for _, expected := range []string{"general.logLevel", "video.frameInterval", "gemini.generationConfig.topK", "journal.enabled"} {
		if _, ok := paths[expected]; !ok {
			t.Errorf("missing expected path: %s", expected)
		}
	}

	keys := SortedPaths(paths)
	for i := 1; i < len(keys); i++ {
		if keys[i-1] > keys[i] {
			t.Fatalf("paths not sorted at %d: %q > %q", i, keys[i-1], keys[i])
		}
	}
}

// --- FlexStringList ---

func TestFlexStringList_MixedTypes(t *testing.T) {
	var f FlexStringList
	if err := f.UnmarshalJSON([]byte(`["123", 456, 7.0]`)); err != nil {
		t.Fatal(err)
	}
	if strings.Join(f, ",") != "123,456,7" {
		t.Fatalf("got %v", f)
	}
}

func TestFlexStringList_InvalidJSON(t *testing.T) {
	var f FlexStringList
	if err := f.UnmarshalJSON([]byte(`{"a":1}`)); err == nil {
		t.Fatal("expected error for object")
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars_SimpleSubstitution(t *testing.T) {
	t.Setenv("TEST_CB_VAR", "value")
	if got := ExpandEnvVars(`"${TEST_CB_VAR}"`); got != `"value"` {
		t.Fatalf("got %q", got)
	}
}

func TestExpandEnvVars_DefaultValue(t *testing.T) {
	if got := ExpandEnvVars(`${TEST_CB_UNSET_VAR:-fallback}`); got != "fallback" {
		t.Fatalf("got %q", got)
	}
}

func TestExpandEnvVars_EmptyVarUsesDefault(t *testing.T) {
	t.Setenv("TEST_CB_EMPTY", "")
	if got := ExpandEnvVars(`${TEST_CB_EMPTY:-fallback}`); got != "fallback" {
		t.Fatalf("got %q", got)
	}
}

func TestExpandEnvVars_UnsetVarNoDefault_KeepsOriginal(t *testing.T) {
	input := `${TEST_CB_DEFINITELY_UNSET}`
	if got := ExpandEnvVars(input); got != input {
		t.Fatalf("got %q", got)
	}
}

func TestExpandEnvVars_DollarSignWithoutBraces(t *testing.T) {
	input := `"$HOME is not substituted"`
	if got := ExpandEnvVars(input); got != input {
		t.Fatalf("expected no change for bare $VAR, got %q", got)
	}
}
