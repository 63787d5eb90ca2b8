package config

import (
	"os"
	"testing"
	"time"
)

func TestGetEnvOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal string
		expected   string
	}{
		{"uses env value", "TEST_VAR_1", "hello", "default", "hello"},
		{"uses default when empty", "TEST_VAR_2", "", "default", "default"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				os.Setenv(tc.key, tc.envValue)
				defer os.Unsetenv(tc.key)
			}

			result := getEnvOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, result)
			}
		})
	}
}

func TestGetEnvAsIntOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal int
		expected   int
	}{
		{"parses integer", "TEST_INT_1", "42", 10, 42},
		{"uses default for empty", "TEST_INT_2", "", 10, 10},
		{"uses default for non-numeric", "TEST_INT_3", "abc", 10, 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				os.Setenv(tc.key, tc.envValue)
				defer os.Unsetenv(tc.key)
			}

			result := getEnvAsIntOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %d, got %d", tc.expected, result)
			}
		})
	}
}

func TestGetEnvAsDurationOrDefault(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected time.Duration
	}{
		{"parses duration", "45s", 45 * time.Second},
		{"parses plain seconds", "12", 12 * time.Second},
		{"uses default for garbage", "soon", 30 * time.Second},
		{"uses default for negative", "-5s", 30 * time.Second},
		{"uses default for empty", "", 30 * time.Second},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tc.envValue)

			result := getEnvAsDurationOrDefault("TEST_DURATION", 30*time.Second)
			if result != tc.expected {
				t.Errorf("Expected %s, got %s", tc.expected, result)
			}
		})
	}
}

func TestGetEnvAsBoolOrDefault(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	if !getEnvAsBoolOrDefault("TEST_BOOL", false) {
		t.Error("Expected true")
	}

	t.Setenv("TEST_BOOL", "maybe")
	if !getEnvAsBoolOrDefault("TEST_BOOL", true) {
		t.Error("Expected default for unparseable value")
	}
}

func TestMustGetEnv_Panics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for missing required env var")
		}
	}()

	os.Unsetenv("NONEXISTENT_REQUIRED_VAR")
	mustGetEnv("NONEXISTENT_REQUIRED_VAR")
}

func TestMustGetEnv_ReturnsValue(t *testing.T) {
	os.Setenv("TEST_REQUIRED", "value123")
	defer os.Unsetenv("TEST_REQUIRED")

	result := mustGetEnv("TEST_REQUIRED")
	if result != "value123" {
		t.Errorf("Expected 'value123', got %q", result)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("GEMINI_MODEL", "")
	t.Setenv("GEMINI_BACKEND", "")
	t.Setenv("CHAT_UPSTREAM_TIMEOUT", "")
	t.Setenv("CORS_ALLOWED_ORIGIN", "")
	t.Setenv("TRUST_PROXY_HEADERS", "")

	cfg := Load()

	if cfg.GeminiAPIKey != "test-key" {
		t.Errorf("Expected API key from env, got %q", cfg.GeminiAPIKey)
	}
	if cfg.GeminiBackend != BackendREST {
		t.Errorf("Expected rest backend, got %q", cfg.GeminiBackend)
	}
	if cfg.UpstreamTimeout != 30*time.Second {
		t.Errorf("Expected 30s upstream timeout, got %s", cfg.UpstreamTimeout)
	}
	if cfg.CORSAllowedOrigin != "*" {
		t.Errorf("Expected wildcard origin, got %q", cfg.CORSAllowedOrigin)
	}
	if cfg.TrustProxyHeaders {
		t.Error("Expected proxy headers to be untrusted by default")
	}
}

func TestLoad_InvalidBackendPanics(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("GEMINI_BACKEND", "grpc")

	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for unknown backend")
		}
	}()
	Load()
}

func TestGenerateURL(t *testing.T) {
	cfg := &Config{GeminiAPIBase: "https://example.test/v1beta", GeminiModel: "gemini-test"}

	want := "https://example.test/v1beta/models/gemini-test:generateContent"
	if got := cfg.GenerateURL(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}
