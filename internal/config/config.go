package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all voicebridge environment variables.
const EnvPrefix = "CONVERSALABS_"

// Config holds all embed-time inputs. The security key is loaded exclusively
// from the environment and never appears in the config file.
type Config struct {
	AgentID         string   `yaml:"agent_id"`
	TTSProvider     string   `yaml:"tts_provider"`
	APIURL          string   `yaml:"api_url"`
	WSURL           string   `yaml:"ws_url"`
	AgentImage      string   `yaml:"agent_image"`
	CalLink         string   `yaml:"cal_link"`
	DBPath          string   `yaml:"db_path"`
	SampleRate      int      `yaml:"sample_rate"`
	FrameSamples    int      `yaml:"frame_samples"`
	SuggestionDelay string   `yaml:"suggestion_delay"`
	Suggestions     []string `yaml:"suggestions"`
	LogLevel        string   `yaml:"log_level"`

	// Secret — env var only, never serialized to YAML.
	SecurityKey string `yaml:"-"`
}

func defaults() Config {
	return Config{
		TTSProvider:     "elevenlabs",
		APIURL:          "http://localhost:7860",
		WSURL:           "ws://localhost:7860",
		CalLink:         "demo-not-configured",
		DBPath:          "data/voicebridge.db",
		SampleRate:      16000,
		FrameSamples:    1024,
		SuggestionDelay: "1s",
		Suggestions: []string{
			"I'd like to book a demo for tomorrow",
			"Show me available times this week",
			"I'm available next Monday",
			"What times do you have today?",
		},
		LogLevel: "info",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads the security key, and validates the
// result. A missing agent ID is an error; everything else degrades to
// warnings.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	cfg.SecurityKey = os.Getenv(EnvPrefix + "SECURITY_KEY")

	if strings.TrimSpace(cfg.AgentID) == "" {
		return cfg, nil, errors.New("agent_id is required (set agent_id in the config file or " + EnvPrefix + "AGENT_ID)")
	}

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ControlURL resolves the control/audio channel endpoint from the configured
// WebSocket base, agent ID and security key.
func (c *Config) ControlURL() string {
	query := url.Values{}
	query.Set("agent_id", c.AgentID)
	if c.SecurityKey != "" {
		query.Set("api_key", c.SecurityKey)
	}
	return strings.TrimRight(c.WSURL, "/") + "/browser/ws?" + query.Encode()
}

// TranscriptURL resolves the transcript channel endpoint for a call.
func (c *Config) TranscriptURL(callID string) string {
	return strings.TrimRight(c.WSURL, "/") + "/transcript/" + url.PathEscape(callID)
}

// ParsedSuggestionDelay returns SuggestionDelay as a time.Duration, falling
// back to 1s if the value is invalid.
func (c *Config) ParsedSuggestionDelay() time.Duration {
	d, err := time.ParseDuration(c.SuggestionDelay)
	if err != nil {
		return time.Second
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "AGENT_ID"); v != "" {
		cfg.AgentID = v
	}
	if v := os.Getenv(EnvPrefix + "TTS_PROVIDER"); v != "" {
		cfg.TTSProvider = v
	}
	if v := os.Getenv(EnvPrefix + "API_URL"); v != "" {
		cfg.APIURL = v
	}
	if v := os.Getenv(EnvPrefix + "WS_URL"); v != "" {
		cfg.WSURL = v
	}
	if v := os.Getenv(EnvPrefix + "AGENT_IMAGE"); v != "" {
		cfg.AgentImage = v
	}
	if v := os.Getenv(EnvPrefix + "CAL_LINK"); v != "" {
		cfg.CalLink = v
	}
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvPrefix + "SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && rate > 0 {
			cfg.SampleRate = rate
		}
	}
	if v := os.Getenv(EnvPrefix + "SUGGESTION_DELAY"); v != "" {
		cfg.SuggestionDelay = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func validate(cfg *Config) []string {
	var warnings []string

	if cfg.SecurityKey == "" {
		warnings = append(warnings, "Security key not configured — the backend may reject the connection. Set "+EnvPrefix+"SECURITY_KEY.")
	}
	if !strings.HasPrefix(cfg.WSURL, "ws://") && !strings.HasPrefix(cfg.WSURL, "wss://") {
		warnings = append(warnings, fmt.Sprintf("ws_url %q does not look like a WebSocket URL.", cfg.WSURL))
	}
	if _, err := time.ParseDuration(cfg.SuggestionDelay); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid suggestion_delay %q — using default 1s.", cfg.SuggestionDelay))
	}
	if cfg.FrameSamples <= 0 {
		cfg.FrameSamples = 1024
		warnings = append(warnings, "frame_samples must be positive — using default 1024.")
	}

	return warnings
}
