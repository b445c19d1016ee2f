package config

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Journal     JournalConfig   `yaml:"journal"`
	Telephony   TelephonyConfig `yaml:"telephony"`
	STT         STTConfig       `yaml:"stt"`
	LLM         LLMConfig       `yaml:"llm"`
	TTS         TTSConfig       `yaml:"tts"`
	Dialog      DialogConfig    `yaml:"dialog"`
	Turn        TurnConfig      `yaml:"turn"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type JournalConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxCalls      int    `yaml:"max_calls"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// TelephonyConfig covers the media-stream leg and the REST control plane
// used to hang calls up.
type TelephonyConfig struct {
	StreamPath     string `yaml:"stream_path"`
	FrameBytes     int    `yaml:"frame_bytes"`
	EndCallDelayMS int    `yaml:"end_call_delay_ms"`
	AccountSID     string `yaml:"account_sid"`
	AuthToken      string `yaml:"auth_token"`
	APIBaseURL     string `yaml:"api_base_url"`
}

type STTConfig struct {
	Mode          string `yaml:"mode"` // mock, elevenlabs
	URL           string `yaml:"url"`
	APIKey        string `yaml:"api_key"`
	Encoding      string `yaml:"encoding"`
	SampleRate    int    `yaml:"sample_rate"`
	FlushBytes    int    `yaml:"flush_bytes"`
	DialTimeoutMS int    `yaml:"dial_timeout_ms"`
}

type LLMConfig struct {
	Mode        string  `yaml:"mode"` // mock, openrouter, ollama
	Endpoint    string  `yaml:"endpoint"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	Referer     string  `yaml:"referer"`
	Title       string  `yaml:"title"`
	TimeoutMS   int     `yaml:"timeout_ms"`
}

type TTSConfig struct {
	Mode            string  `yaml:"mode"` // mock, elevenlabs, exec
	Command         string  `yaml:"command"`
	APIKey          string  `yaml:"api_key"`
	VoiceID         string  `yaml:"voice_id"`
	ModelID         string  `yaml:"model_id"`
	Stability       float64 `yaml:"stability"`
	SimilarityBoost float64 `yaml:"similarity_boost"`
	SampleRate      int     `yaml:"sample_rate"`
	TimeoutMS       int     `yaml:"timeout_ms"`
}

type DialogConfig struct {
	AgentName    string `yaml:"agent_name"`
	Company      string `yaml:"company"`
	ClosingLine  string `yaml:"closing_line"`
	FarewellLine string `yaml:"farewell_line"`
}

type TurnConfig struct {
	SweepIntervalMS    int `yaml:"sweep_interval_ms"`
	SilenceThresholdMS int `yaml:"silence_threshold_ms"`
}

func Default() Config {
	return Config{
		RuntimeName: "voxline-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Journal: JournalConfig{
			Path:          "./data/voxline-calls.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxCalls:      10000,
		},
		Telephony: TelephonyConfig{
			StreamPath:     "/ws/media",
			FrameBytes:     160,
			EndCallDelayMS: 3500,
			APIBaseURL:     "https://api.twilio.com/2010-04-01",
		},
		STT: STTConfig{
			Mode:          "mock",
			URL:           "wss://api.elevenlabs.io/v1/speech-to-text/stream",
			Encoding:      "ulaw_8000",
			SampleRate:    8000,
			FlushBytes:    800,
			DialTimeoutMS: 5000,
		},
		LLM: LLMConfig{
			Mode:        "mock",
			Endpoint:    "https://openrouter.ai/api/v1",
			Model:       "liquid/lfm-2.5-1.2b-instruct:free",
			MaxTokens:   50,
			Temperature: 0.1,
			Title:       "AI Call Agent",
			TimeoutMS:   10000,
		},
		TTS: TTSConfig{
			Mode:            "mock",
			ModelID:         "eleven_turbo_v2_5",
			Stability:       0.5,
			SimilarityBoost: 0.8,
			SampleRate:      8000,
			TimeoutMS:       15000,
		},
		Dialog: DialogConfig{
			AgentName:    "Alex",
			Company:      "Voxline",
			ClosingLine:  "Great, we will connect you on your email address. Have a wonderful day!",
			FarewellLine: "Thanks for talking with us. Have a great day!",
		},
		Turn: TurnConfig{
			SweepIntervalMS:    300,
			SilenceThresholdMS: 800,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := ioutil.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "VOXLINE_RUNTIME_NAME")
	overrideString(&cfg.Environment, "VOXLINE_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VOXLINE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VOXLINE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "VOXLINE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOXLINE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOXLINE_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "VOXLINE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VOXLINE_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "VOXLINE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VOXLINE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VOXLINE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VOXLINE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VOXLINE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VOXLINE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Journal.Path, "VOXLINE_JOURNAL_PATH")
	overrideString(&cfg.Journal.RetentionMode, "VOXLINE_JOURNAL_RETENTION_MODE")
	overrideInt(&cfg.Journal.RetentionDays, "VOXLINE_JOURNAL_RETENTION_DAYS")
	overrideInt(&cfg.Journal.MaxCalls, "VOXLINE_JOURNAL_MAX_CALLS")
	overrideBool(&cfg.Journal.VacuumOnStart, "VOXLINE_JOURNAL_VACUUM_ON_START")
	overrideString(&cfg.Telephony.StreamPath, "VOXLINE_TELEPHONY_STREAM_PATH")
	overrideInt(&cfg.Telephony.FrameBytes, "VOXLINE_TELEPHONY_FRAME_BYTES")
	overrideInt(&cfg.Telephony.EndCallDelayMS, "VOXLINE_TELEPHONY_END_CALL_DELAY_MS")
	overrideString(&cfg.Telephony.AccountSID, "VOXLINE_TELEPHONY_ACCOUNT_SID")
	overrideString(&cfg.Telephony.AuthToken, "VOXLINE_TELEPHONY_AUTH_TOKEN")
	overrideString(&cfg.Telephony.APIBaseURL, "VOXLINE_TELEPHONY_API_BASE_URL")
	overrideString(&cfg.STT.Mode, "VOXLINE_STT_MODE")
	overrideString(&cfg.STT.URL, "VOXLINE_STT_URL")
	overrideString(&cfg.STT.APIKey, "VOXLINE_STT_API_KEY")
	overrideString(&cfg.STT.Encoding, "VOXLINE_STT_ENCODING")
	overrideInt(&cfg.STT.SampleRate, "VOXLINE_STT_SAMPLE_RATE")
	overrideInt(&cfg.STT.FlushBytes, "VOXLINE_STT_FLUSH_BYTES")
	overrideInt(&cfg.STT.DialTimeoutMS, "VOXLINE_STT_DIAL_TIMEOUT_MS")
	overrideString(&cfg.LLM.Mode, "VOXLINE_LLM_MODE")
	overrideString(&cfg.LLM.Endpoint, "VOXLINE_LLM_ENDPOINT")
	overrideString(&cfg.LLM.APIKey, "VOXLINE_LLM_API_KEY")
	overrideString(&cfg.LLM.Model, "VOXLINE_LLM_MODEL")
	overrideInt(&cfg.LLM.MaxTokens, "VOXLINE_LLM_MAX_TOKENS")
	overrideFloat(&cfg.LLM.Temperature, "VOXLINE_LLM_TEMPERATURE")
	overrideString(&cfg.LLM.Referer, "VOXLINE_LLM_REFERER")
	overrideString(&cfg.LLM.Title, "VOXLINE_LLM_TITLE")
	overrideInt(&cfg.LLM.TimeoutMS, "VOXLINE_LLM_TIMEOUT_MS")
	overrideString(&cfg.TTS.Mode, "VOXLINE_TTS_MODE")
	overrideString(&cfg.TTS.Command, "VOXLINE_TTS_COMMAND")
	overrideString(&cfg.TTS.APIKey, "VOXLINE_TTS_API_KEY")
	overrideString(&cfg.TTS.VoiceID, "VOXLINE_TTS_VOICE_ID")
	overrideString(&cfg.TTS.ModelID, "VOXLINE_TTS_MODEL_ID")
	overrideFloat(&cfg.TTS.Stability, "VOXLINE_TTS_STABILITY")
	overrideFloat(&cfg.TTS.SimilarityBoost, "VOXLINE_TTS_SIMILARITY_BOOST")
	overrideInt(&cfg.TTS.SampleRate, "VOXLINE_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.TimeoutMS, "VOXLINE_TTS_TIMEOUT_MS")
	overrideString(&cfg.Dialog.AgentName, "VOXLINE_DIALOG_AGENT_NAME")
	overrideString(&cfg.Dialog.Company, "VOXLINE_DIALOG_COMPANY")
	overrideString(&cfg.Dialog.ClosingLine, "VOXLINE_DIALOG_CLOSING_LINE")
	overrideString(&cfg.Dialog.FarewellLine, "VOXLINE_DIALOG_FAREWELL_LINE")
	overrideInt(&cfg.Turn.SweepIntervalMS, "VOXLINE_TURN_SWEEP_INTERVAL_MS")
	overrideInt(&cfg.Turn.SilenceThresholdMS, "VOXLINE_TURN_SILENCE_THRESHOLD_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Journal.Path == "" {
		return errors.New("journal.path must not be empty")
	}
	switch cfg.Journal.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("journal.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.Journal.RetentionDays < 0 {
		return errors.New("journal.retention_days must be >= 0")
	}
	if cfg.Telephony.StreamPath == "" || !strings.HasPrefix(cfg.Telephony.StreamPath, "/") {
		return errors.New("telephony.stream_path must start with /")
	}
	if cfg.Telephony.FrameBytes <= 0 {
		return errors.New("telephony.frame_bytes must be positive")
	}
	if cfg.Telephony.EndCallDelayMS < 0 {
		return errors.New("telephony.end_call_delay_ms must be >= 0")
	}
	switch cfg.STT.Mode {
	case "mock", "elevenlabs":
	default:
		return errors.New("stt.mode must be one of mock|elevenlabs")
	}
	if cfg.STT.Mode == "elevenlabs" {
		if cfg.STT.URL == "" {
			return errors.New("stt.url must be set when mode=elevenlabs")
		}
		if cfg.STT.APIKey == "" {
			return errors.New("stt.api_key must be set when mode=elevenlabs")
		}
	}
	if cfg.STT.SampleRate <= 0 {
		return errors.New("stt.sample_rate must be positive")
	}
	if cfg.STT.FlushBytes <= 0 {
		return errors.New("stt.flush_bytes must be positive")
	}
	switch cfg.LLM.Mode {
	case "mock", "openrouter", "ollama":
	default:
		return errors.New("llm.mode must be one of mock|openrouter|ollama")
	}
	if cfg.LLM.Mode != "mock" && cfg.LLM.Endpoint == "" {
		return errors.New("llm.endpoint must be set when mode=" + cfg.LLM.Mode)
	}
	if cfg.LLM.Mode == "openrouter" && cfg.LLM.APIKey == "" {
		return errors.New("llm.api_key must be set when mode=openrouter")
	}
	if cfg.LLM.MaxTokens < 0 {
		return errors.New("llm.max_tokens must be >= 0")
	}
	switch cfg.TTS.Mode {
	case "mock", "elevenlabs", "exec":
	default:
		return errors.New("tts.mode must be one of mock|elevenlabs|exec")
	}
	if cfg.TTS.Mode == "elevenlabs" {
		if cfg.TTS.APIKey == "" {
			return errors.New("tts.api_key must be set when mode=elevenlabs")
		}
		if cfg.TTS.VoiceID == "" {
			return errors.New("tts.voice_id must be set when mode=elevenlabs")
		}
	}
	if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
		return errors.New("tts.command must be set when mode=exec")
	}
	if cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	if cfg.Turn.SweepIntervalMS <= 0 {
		return errors.New("turn.sweep_interval_ms must be positive")
	}
	if cfg.Turn.SilenceThresholdMS <= cfg.Turn.SweepIntervalMS {
		return errors.New("turn.silence_threshold_ms must be greater than the sweep interval")
	}
	return nil
}
