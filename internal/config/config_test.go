package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "CHUNK_STORE_DRIVER", "RAG_TOP_K", "CHAT_STREAM_BUFFER",
		"CHAT_REQUEST_TIMEOUT", "TELEMETRY_ENABLED", "TELEMETRY_SUBJECT", "OLLAMA_TEMPERATURE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RAGTopK != 10 {
		t.Fatalf("expected default top-k 10, got %d", cfg.RAGTopK)
	}
	if cfg.ChatStreamBuffer != 16 {
		t.Fatalf("expected default stream buffer 16, got %d", cfg.ChatStreamBuffer)
	}
	if cfg.ChatRequestTimeout != 30*time.Second {
		t.Fatalf("expected default timeout 30s, got %s", cfg.ChatRequestTimeout)
	}
	if cfg.ChunkStoreDriver != DriverPostgres || !cfg.TelemetryEnabled {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.OllamaTemperature != 0.3 {
		t.Fatalf("expected temperature 0.3, got %v", cfg.OllamaTemperature)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHUNK_STORE_DRIVER", "SQLite")
	t.Setenv("RAG_TOP_K", "25")
	t.Setenv("CHAT_REQUEST_TIMEOUT", "45")
	t.Setenv("TELEMETRY_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ChunkStoreDriver != DriverSQLite {
		t.Fatalf("expected sqlite driver, got %q", cfg.ChunkStoreDriver)
	}
	if cfg.RAGTopK != 25 {
		t.Fatalf("expected top-k 25, got %d", cfg.RAGTopK)
	}
	if cfg.ChatRequestTimeout != 45*time.Second {
		t.Fatalf("expected bare seconds to parse, got %s", cfg.ChatRequestTimeout)
	}
	if cfg.TelemetryEnabled {
		t.Fatalf("expected telemetry disabled")
	}
}

func TestLoadFileProvidesDefaultsAndEnvWins(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "rag_top_k: 7\nchat_request_timeout: 20s\ntelemetry_subject: custom.events\nchunk_store_driver: sqlite\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("RAG_TOP_K", "12")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RAGTopK != 12 {
		t.Fatalf("expected env to win with 12, got %d", cfg.RAGTopK)
	}
	if cfg.ChatRequestTimeout != 20*time.Second || cfg.TelemetrySubject != "custom.events" || cfg.ChunkStoreDriver != DriverSQLite {
		t.Fatalf("file values not applied: %+v", cfg)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("RAG_TOP_K", "80")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for top-k above 50")
	}

	clearEnv(t)
	t.Setenv("CHUNK_STORE_DRIVER", "mongo")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown driver")
	}

	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
