package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"` // json, text
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
	TraceStdout  bool   `yaml:"trace_stdout"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Audio       AudioConfig      `yaml:"audio"`
	Recorder    RecorderConfig   `yaml:"recorder"`
	STT         STTConfig        `yaml:"stt"`
	Output      OutputConfig     `yaml:"output"`
	UI          UIConfig         `yaml:"ui"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type AudioConfig struct {
	Backend         string `yaml:"backend"` // synthetic, portaudio
	SampleRate      int    `yaml:"sample_rate"`
	FramesPerBuffer int    `yaml:"frames_per_buffer"`
	SourceFile      string `yaml:"source_file"`
	ToneMS          int    `yaml:"tone_ms"`
}

type RecorderConfig struct {
	MaxDurationMS     int     `yaml:"max_duration_ms"`
	SilenceDurationMS int     `yaml:"silence_duration_ms"`
	SilenceThreshold  float64 `yaml:"silence_threshold"`
	ErrorRecoveryMS   int     `yaml:"error_recovery_ms"`
	NoAudioResetMS    int     `yaml:"no_audio_reset_ms"`
	PollIntervalMS    int     `yaml:"poll_interval_ms"`
}

type STTConfig struct {
	Mode          string  `yaml:"mode"` // mock, exec, openai, whisper
	Command       string  `yaml:"command"`
	ModelPath     string  `yaml:"model_path"`
	Language      string  `yaml:"language"`
	NumThreads    int     `yaml:"num_threads"`
	Translate     bool    `yaml:"translate"`
	Temperature   float64 `yaml:"temperature"`
	TimeoutMS     int     `yaml:"timeout_ms"`
	OpenAIAPIKey  string  `yaml:"openai_api_key"`
	OpenAIBaseURL string  `yaml:"openai_base_url"`
	OpenAIModel   string  `yaml:"openai_model"`
}

type OutputConfig struct {
	Clipboard bool   `yaml:"clipboard"`
	AutoPaste bool   `yaml:"auto_paste"`
	File      string `yaml:"file"`
	Stdout    bool   `yaml:"stdout"`
	Notify    bool   `yaml:"notify"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type UIConfig struct {
	Enabled        bool   `yaml:"enabled"`
	RefreshMS      int    `yaml:"refresh_ms"`
	TriggerKeyName string `yaml:"trigger_key_name"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-dictate",
		Environment: "development",
		HTTP: HTTPConfig{
			Enabled: true,
			Bind:    "127.0.0.1",
			Port:    8765,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			LogFormat:    "json",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/dictate-events.db",
			RetentionMode: "ephemeral",
			RetentionDays: 30,
			MaxSessions:   1000,
		},
		Audio: AudioConfig{
			Backend:         "synthetic",
			SampleRate:      16000,
			FramesPerBuffer: 512,
			ToneMS:          1500,
		},
		Recorder: RecorderConfig{
			MaxDurationMS:     30000,
			SilenceDurationMS: 1000,
			SilenceThreshold:  0.01,
			ErrorRecoveryMS:   3000,
			NoAudioResetMS:    1500,
			PollIntervalMS:    10,
		},
		STT: STTConfig{
			Mode:       "mock",
			ModelPath:  "model/ggml-base.en-q5_1.bin",
			Language:   "en",
			NumThreads: 4,
			TimeoutMS:  45000,
		},
		Output: OutputConfig{
			Clipboard: true,
			Stdout:    true,
			TimeoutMS: 5000,
		},
		UI: UIConfig{
			Enabled:        true,
			RefreshMS:      100,
			TriggerKeyName: "space",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
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

// Validate checks a config assembled outside Load, e.g. after flag overrides.
func Validate(cfg Config) error {
	return validate(cfg)
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LOQA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_RUNTIME_ENVIRONMENT")
	overrideBool(&cfg.HTTP.Enabled, "LOQA_HTTP_ENABLED")
	overrideString(&cfg.HTTP.Bind, "LOQA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.LogFormat, "LOQA_TELEMETRY_LOG_FORMAT")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.TraceStdout, "LOQA_TELEMETRY_TRACE_STDOUT")
	overrideBool(&cfg.Bus.Enabled, "LOQA_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "LOQA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOQA_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "LOQA_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "LOQA_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "LOQA_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "LOQA_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "LOQA_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "LOQA_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Audio.Backend, "LOQA_AUDIO_BACKEND")
	overrideInt(&cfg.Audio.SampleRate, "LOQA_AUDIO_SAMPLE_RATE")
	overrideInt(&cfg.Audio.FramesPerBuffer, "LOQA_AUDIO_FRAMES_PER_BUFFER")
	overrideString(&cfg.Audio.SourceFile, "LOQA_AUDIO_SOURCE_FILE")
	overrideInt(&cfg.Audio.ToneMS, "LOQA_AUDIO_TONE_MS")
	overrideInt(&cfg.Recorder.MaxDurationMS, "LOQA_RECORDER_MAX_DURATION_MS")
	overrideInt(&cfg.Recorder.SilenceDurationMS, "LOQA_RECORDER_SILENCE_DURATION_MS")
	overrideFloat(&cfg.Recorder.SilenceThreshold, "LOQA_RECORDER_SILENCE_THRESHOLD")
	overrideInt(&cfg.Recorder.ErrorRecoveryMS, "LOQA_RECORDER_ERROR_RECOVERY_MS")
	overrideInt(&cfg.Recorder.NoAudioResetMS, "LOQA_RECORDER_NO_AUDIO_RESET_MS")
	overrideInt(&cfg.Recorder.PollIntervalMS, "LOQA_RECORDER_POLL_INTERVAL_MS")
	overrideString(&cfg.STT.Mode, "LOQA_STT_MODE")
	overrideString(&cfg.STT.Command, "LOQA_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "LOQA_STT_MODEL_PATH")
	overrideString(&cfg.STT.Language, "LOQA_STT_LANGUAGE")
	overrideInt(&cfg.STT.NumThreads, "LOQA_STT_NUM_THREADS")
	overrideBool(&cfg.STT.Translate, "LOQA_STT_TRANSLATE")
	overrideFloat(&cfg.STT.Temperature, "LOQA_STT_TEMPERATURE")
	overrideInt(&cfg.STT.TimeoutMS, "LOQA_STT_TIMEOUT_MS")
	overrideString(&cfg.STT.OpenAIAPIKey, "OPENAI_API_KEY")
	overrideString(&cfg.STT.OpenAIAPIKey, "LOQA_STT_OPENAI_API_KEY")
	overrideString(&cfg.STT.OpenAIBaseURL, "LOQA_STT_OPENAI_BASE_URL")
	overrideString(&cfg.STT.OpenAIModel, "LOQA_STT_OPENAI_MODEL")
	overrideBool(&cfg.Output.Clipboard, "LOQA_OUTPUT_CLIPBOARD")
	overrideBool(&cfg.Output.AutoPaste, "LOQA_OUTPUT_AUTO_PASTE")
	overrideString(&cfg.Output.File, "LOQA_OUTPUT_FILE")
	overrideBool(&cfg.Output.Stdout, "LOQA_OUTPUT_STDOUT")
	overrideBool(&cfg.Output.Notify, "LOQA_OUTPUT_NOTIFY")
	overrideInt(&cfg.Output.TimeoutMS, "LOQA_OUTPUT_TIMEOUT_MS")
	overrideBool(&cfg.UI.Enabled, "LOQA_UI_ENABLED")
	overrideInt(&cfg.UI.RefreshMS, "LOQA_UI_REFRESH_MS")
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
	if cfg.HTTP.Enabled && (cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535) {
		return errors.New("http.port must be between 1 and 65535")
	}
	switch cfg.Telemetry.LogFormat {
	case "json", "text":
	default:
		return errors.New("telemetry.log_format must be one of json|text")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionMode != "ephemeral" && cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	switch cfg.Audio.Backend {
	case "synthetic", "portaudio":
	default:
		return errors.New("audio.backend must be one of synthetic|portaudio")
	}
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Audio.FramesPerBuffer <= 0 {
		return errors.New("audio.frames_per_buffer must be positive")
	}
	if cfg.Recorder.MaxDurationMS <= 0 {
		return errors.New("recorder.max_duration_ms must be positive")
	}
	if cfg.Recorder.SilenceDurationMS <= 0 {
		return errors.New("recorder.silence_duration_ms must be positive")
	}
	if cfg.Recorder.SilenceThreshold <= 0 || cfg.Recorder.SilenceThreshold > 1 {
		return errors.New("recorder.silence_threshold must be in (0, 1]")
	}
	if cfg.Recorder.ErrorRecoveryMS <= 0 {
		return errors.New("recorder.error_recovery_ms must be positive")
	}
	if cfg.Recorder.PollIntervalMS <= 0 {
		return errors.New("recorder.poll_interval_ms must be positive")
	}
	switch cfg.STT.Mode {
	case "mock", "exec", "openai", "whisper":
	default:
		return errors.New("stt.mode must be one of mock|exec|openai|whisper")
	}
	if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
		return errors.New("stt.command must be set when mode=exec")
	}
	if cfg.STT.Mode == "whisper" && cfg.STT.ModelPath == "" {
		return errors.New("stt.model_path must be set when mode=whisper")
	}
	if cfg.STT.NumThreads <= 0 {
		return errors.New("stt.num_threads must be >= 1")
	}
	if cfg.STT.TimeoutMS <= 0 {
		return errors.New("stt.timeout_ms must be positive")
	}
	return nil
}
