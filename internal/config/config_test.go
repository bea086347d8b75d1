package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadRequiresAgentID(t *testing.T) {
	if _, _, err := Load(""); err == nil {
		t.Fatal("expected error when agent_id is missing")
	}
}

func TestLoadDefaultsAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
agent_id: agent_abc123
tts_provider: cartesia
ws_url: wss://voice.example.com
suggestion_delay: 2s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.AgentID != "agent_abc123" {
		t.Errorf("expected agent id from file, got %q", cfg.AgentID)
	}
	if cfg.TTSProvider != "cartesia" {
		t.Errorf("expected tts provider override, got %q", cfg.TTSProvider)
	}
	if cfg.SampleRate != 16000 {
		t.Errorf("expected default sample rate 16000, got %d", cfg.SampleRate)
	}
	if cfg.CalLink != "demo-not-configured" {
		t.Errorf("expected default cal link, got %q", cfg.CalLink)
	}
	if len(cfg.Suggestions) != 4 {
		t.Errorf("expected 4 default suggestions, got %d", len(cfg.Suggestions))
	}
	if cfg.ParsedSuggestionDelay() != 2*time.Second {
		t.Errorf("expected 2s suggestion delay, got %v", cfg.ParsedSuggestionDelay())
	}
}

func TestEnvOverridesAndSecret(t *testing.T) {
	t.Setenv(EnvPrefix+"AGENT_ID", "agent_env")
	t.Setenv(EnvPrefix+"WS_URL", "wss://env.example.com/")
	t.Setenv(EnvPrefix+"SECURITY_KEY", "sk-test")

	cfg, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.AgentID != "agent_env" {
		t.Errorf("expected env agent id, got %q", cfg.AgentID)
	}
	if cfg.SecurityKey != "sk-test" {
		t.Errorf("expected security key from env, got %q", cfg.SecurityKey)
	}
	for _, w := range warnings {
		if strings.Contains(w, "Security key") {
			t.Errorf("unexpected security key warning: %s", w)
		}
	}
}

func TestControlURLDerivedFromConfig(t *testing.T) {
	cfg := defaults()
	cfg.AgentID = "agent_abc123"
	cfg.WSURL = "wss://voice.example.com/"
	cfg.SecurityKey = "sk-test"

	got := cfg.ControlURL()
	want := "wss://voice.example.com/browser/ws?agent_id=agent_abc123&api_key=sk-test"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestControlURLOmitsEmptyKey(t *testing.T) {
	cfg := defaults()
	cfg.AgentID = "agent_abc123"

	if strings.Contains(cfg.ControlURL(), "api_key") {
		t.Fatalf("expected api_key omitted without a security key: %s", cfg.ControlURL())
	}
}

func TestTranscriptURL(t *testing.T) {
	cfg := defaults()
	cfg.WSURL = "wss://voice.example.com"

	got := cfg.TranscriptURL("call-42")
	if got != "wss://voice.example.com/transcript/call-42" {
		t.Fatalf("unexpected transcript url %q", got)
	}
}

func TestInvalidSuggestionDelayWarns(t *testing.T) {
	t.Setenv(EnvPrefix+"AGENT_ID", "agent_env")
	t.Setenv(EnvPrefix+"SUGGESTION_DELAY", "not-a-duration")

	cfg, warnings, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ParsedSuggestionDelay() != time.Second {
		t.Errorf("expected fallback 1s delay, got %v", cfg.ParsedSuggestionDelay())
	}

	found := false
	for _, w := range warnings {
		if strings.Contains(w, "suggestion_delay") {
			found = true
		}
	}
	if !found {
		t.Error("expected suggestion_delay warning")
	}
}
