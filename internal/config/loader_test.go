package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	content := `{
	// This is a JSONC comment
	"gateway": {
		"host": "0.0.0.0",
		"port": 9999
	},
	"inference": {
		"inference_endpoint": "http://localhost:11434",
		"planner_model": "llama3.1",
		"vision_model": "llava",
		"embedding_model": "nomic-embed-text"
	},
	"security": {
		"enable_model_screen": true,
		"security_model": "${{ .Env.SECURITY_MODEL }}"
	}
}`

	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SECURITY_MODEL", "guard-model")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Gateway.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %s", cfg.Gateway.Host)
	}
	if cfg.Gateway.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Gateway.Port)
	}
	if cfg.Inference.PlannerModel != "llama3.1" {
		t.Errorf("expected planner_model llama3.1, got %s", cfg.Inference.PlannerModel)
	}
	if cfg.Security.SecurityModel != "guard-model" {
		t.Errorf("expected security_model guard-model, got %s", cfg.Security.SecurityModel)
	}
}

func TestLoadDefaults(t *testing.T) {
	content := `{}`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Gateway.Host != "127.0.0.1" {
		t.Errorf("expected default host 127.0.0.1, got %s", cfg.Gateway.Host)
	}
	if cfg.Gateway.Port != 18420 {
		t.Errorf("expected default port 18420, got %d", cfg.Gateway.Port)
	}
	if cfg.Gateway.SubscriberBacklog != 256 {
		t.Errorf("expected default subscriber_backlog 256, got %d", cfg.Gateway.SubscriberBacklog)
	}
	if cfg.Events.BufferSize != 1024 {
		t.Errorf("expected default buffer 1024, got %d", cfg.Events.BufferSize)
	}
	if cfg.Inference.Endpoint != "http://localhost:11434" {
		t.Errorf("expected default inference endpoint, got %s", cfg.Inference.Endpoint)
	}
	if cfg.Inference.VerifyThreshold != 0.7 {
		t.Errorf("expected default verify_threshold 0.7, got %v", cfg.Inference.VerifyThreshold)
	}
	if cfg.Inference.PlanCallTimeout.Duration() != 60*time.Second {
		t.Errorf("expected default plan_call_timeout 60s, got %v", cfg.Inference.PlanCallTimeout.Duration())
	}
	if cfg.Task.MaxReplans != 10 {
		t.Errorf("expected default max_replans 10, got %d", cfg.Task.MaxReplans)
	}
	if cfg.Task.BrowseTruncateChars != 4000 {
		t.Errorf("expected default browse_truncate_chars 4000, got %d", cfg.Task.BrowseTruncateChars)
	}
	if cfg.Security.DenylistTimeout.Duration() != 10*time.Second {
		t.Errorf("expected default denylist_timeout 10s, got %v", cfg.Security.DenylistTimeout.Duration())
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	content := `{"task": {"max_replans": 3}}`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Task.MaxReplans != 3 {
		t.Errorf("expected max_replans 3, got %d", cfg.Task.MaxReplans)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Gateway.Port != 18420 {
		t.Errorf("expected default port 18420, got %d", cfg.Gateway.Port)
	}
	if cfg.Task.MaxReplans != 10 {
		t.Errorf("expected default max_replans 10, got %d", cfg.Task.MaxReplans)
	}
}

func TestExpandEnvTemplates(t *testing.T) {
	t.Setenv("TEST_KEY", "my-secret")
	result := expandEnvTemplates(`{"key": "${{ .Env.TEST_KEY }}"}`)
	expected := `{"key": "my-secret"}`
	if result != expected {
		t.Errorf("expected %s, got %s", expected, result)
	}
}
