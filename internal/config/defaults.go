package config

const (
	defaultFailureReply = "Sorry, I couldn't answer that. Please try again."
	defaultModelName    = "gemini-2.0-flash"
)

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:     "info",
			Workers:      1,
			BusBuffer:    100,
			FailureReply: defaultFailureReply,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Line: LineConfig{
			CallbackPath: "/line/callback",
			HistoryPath:  "/line/history",
		},
		Telegram: TelegramConfig{
			ParseMode: "Markdown",
		},
		Gemini: GeminiConfig{
			ModelName:      defaultModelName,
			TimeoutSeconds: 60,
			GenerationConfig: GenerationConfig{
				Temperature:     1,
				TopP:            0.95,
				TopK:            40,
				MaxOutputTokens: 1024,
			},
		},
		Video: VideoConfig{
			FrameInterval: 30,
			MaxFrames:     120,
			MaxDimension:  768,
			MaxBytes:      200 << 20,
		},
		Image: ImageConfig{
			MaxBytes: 10 << 20,
		},
		Journal: JournalConfig{
			DBPath: "~/.chatbridge/journal.db",
		},
		Metrics: MetricsConfig{
			Endpoint: "/metrics",
		},
	}
}

// Template is the config written by `chatbridge init`: the LINE channel and
// journal enabled, with credentials read from the environment.
func Template() *Config {
	cfg := Defaults()
	cfg.Line.Enabled = true
	cfg.Line.ChannelSecret = "${LINE_CHANNEL_SECRET}"
	cfg.Line.ChannelAccessToken = "${LINE_CHANNEL_ACCESS_TOKEN}"
	cfg.Telegram.Token = "${TELEGRAM_BOT_TOKEN}"
	cfg.Gemini.APIKey = "${GEMINI_API_KEY}"
	cfg.Journal.Enabled = true
	return cfg
}
