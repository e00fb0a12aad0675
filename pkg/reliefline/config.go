package reliefline

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/harunnryd/reliefline/pkg/configutil"
	"github.com/harunnryd/reliefline/pkg/errorsx"
	"github.com/harunnryd/reliefline/pkg/realtime"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Twilio        TwilioConfig        `mapstructure:"twilio"`
	OpenAI        OpenAIConfig        `mapstructure:"openai"`
	Ticket        TicketConfig        `mapstructure:"ticket"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Privacy       PrivacyConfig       `mapstructure:"privacy"`
	Environment   string              `mapstructure:"environment"`
	LogLevel      string              `mapstructure:"log_level"`
	LogFormat     string              `mapstructure:"log_format"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	PublicURL      string   `mapstructure:"public_url"`
	VoicePath      string   `mapstructure:"voice_path"`
	StreamPath     string   `mapstructure:"stream_path"`
	StatusPath     string   `mapstructure:"status_path"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	DrainTimeoutMS int      `mapstructure:"drain_timeout_ms"`
}

// Addr is the listen address built from host and port.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

type TwilioConfig struct {
	AccountSID    string `mapstructure:"account_sid"`
	AuthToken     string `mapstructure:"auth_token"`
	FromNumber    string `mapstructure:"from_number"`
	VoiceGreeting string `mapstructure:"voice_greeting"`
}

type OpenAIConfig struct {
	APIKey                  string  `mapstructure:"api_key"`
	Organization            string  `mapstructure:"organization"`
	RealtimeURL             string  `mapstructure:"realtime_url"`
	Model                   string  `mapstructure:"model"`
	Voice                   string  `mapstructure:"voice"`
	AudioFormat             string  `mapstructure:"audio_format"`
	Temperature             float64 `mapstructure:"temperature"`
	Instructions            string  `mapstructure:"instructions"`
	Greeting                string  `mapstructure:"greeting"`
	InputTranscriptionModel string  `mapstructure:"input_transcription_model"`
	HandshakeTimeoutMS      int     `mapstructure:"handshake_timeout_ms"`
	WriteTimeoutMS          int     `mapstructure:"write_timeout_ms"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type TicketConfig struct {
	Classifier        VendorConfig `mapstructure:"classifier"`
	StoreDir          string       `mapstructure:"store_dir"`
	InMemory          bool         `mapstructure:"in_memory"`
	DeliveryTimeoutMS int          `mapstructure:"delivery_timeout_ms"`
}

type ObservabilityConfig struct {
	MetricsEnabled bool `mapstructure:"metrics_enabled"`
	LogEvents      bool `mapstructure:"log_events"`
	EventBuffer    int  `mapstructure:"event_buffer"`
	// SampleEvery thins per-frame events in the event log to one in n.
	SampleEvery int `mapstructure:"sample_every"`
	// TimelineDir, when set, receives one JSONL event timeline per call.
	TimelineDir string `mapstructure:"timeline_dir"`
	// JSONLPath, when set, receives every event as a JSON line.
	JSONLPath string `mapstructure:"jsonl_path"`
	Latency   bool   `mapstructure:"latency"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

// LoadConfig reads path (YAML, optional) over the defaults, applies the
// environment and validates the result. An empty path loads defaults and
// environment only.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5050)
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.voice_path", "/incoming-call")
	v.SetDefault("server.stream_path", "/media-stream")
	v.SetDefault("server.status_path", "/status")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.drain_timeout_ms", 15000)
	v.SetDefault("twilio.account_sid", "")
	v.SetDefault("twilio.auth_token", "")
	v.SetDefault("twilio.from_number", "")
	v.SetDefault("twilio.voice_greeting", "")
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.organization", "")
	v.SetDefault("openai.realtime_url", realtime.DefaultURL)
	v.SetDefault("openai.model", realtime.DefaultModel)
	v.SetDefault("openai.voice", "alloy")
	v.SetDefault("openai.audio_format", realtime.AudioFormatG711ULaw)
	v.SetDefault("openai.temperature", 0.8)
	v.SetDefault("openai.instructions", "")
	v.SetDefault("openai.greeting", "")
	v.SetDefault("openai.input_transcription_model", "")
	v.SetDefault("openai.handshake_timeout_ms", 10000)
	v.SetDefault("openai.write_timeout_ms", 5000)
	v.SetDefault("ticket.classifier.provider", "openai")
	v.SetDefault("ticket.store_dir", "./data/tickets")
	v.SetDefault("ticket.in_memory", false)
	v.SetDefault("ticket.delivery_timeout_ms", 60000)
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.log_events", false)
	v.SetDefault("observability.event_buffer", 2048)
	v.SetDefault("observability.sample_every", 50)
	v.SetDefault("observability.timeline_dir", "")
	v.SetDefault("observability.jsonl_path", "")
	v.SetDefault("observability.latency", true)
	v.SetDefault("privacy.redact_pii", true)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	_ = v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("server.public_url", "PUBLIC_URL")
	_ = v.BindEnv("twilio.account_sid", "TWILIO_ACCOUNT_SID")
	_ = v.BindEnv("twilio.auth_token", "TWILIO_AUTH_TOKEN")

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errorsx.Wrap(fmt.Errorf("read config: %w", err), errorsx.ReasonConfig)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errorsx.Wrap(fmt.Errorf("unmarshal: %w", err), errorsx.ReasonConfig)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, errorsx.Wrap(fmt.Errorf("validate config: %w", err), errorsx.ReasonConfig)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := configutil.Require(configutil.Field{Path: "openai.api_key", Value: c.OpenAI.APIKey}); err != nil {
		return err
	}
	if c.OpenAI.AudioFormat != realtime.AudioFormatG711ULaw {
		return fmt.Errorf("openai.audio_format must be %s, got %q", realtime.AudioFormatG711ULaw, c.OpenAI.AudioFormat)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	for _, p := range []struct{ path, value string }{
		{"server.voice_path", c.Server.VoicePath},
		{"server.stream_path", c.Server.StreamPath},
		{"server.status_path", c.Server.StatusPath},
	} {
		if !strings.HasPrefix(p.value, "/") {
			return fmt.Errorf("%s must start with /", p.path)
		}
	}
	if !c.Ticket.InMemory {
		if err := configutil.Require(configutil.Field{Path: "ticket.store_dir", Value: c.Ticket.StoreDir}); err != nil {
			return err
		}
	}
	return nil
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Ticket.Classifier.Settings = expandSettings(cfg.Ticket.Classifier.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = expandAny(v)
		}
		return out
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	}
}
