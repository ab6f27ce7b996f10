package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load with missing file: %v", err)
	}
	if cfg.Validation.MinQueryLength != 5 {
		t.Errorf("min_query_length = %d, want 5", cfg.Validation.MinQueryLength)
	}
	if cfg.Validation.MaxQueryLength != 1000 {
		t.Errorf("max_query_length = %d, want 1000", cfg.Validation.MaxQueryLength)
	}
	if cfg.Index.ChunkSize != 1000 || cfg.Index.ChunkOverlap != 200 {
		t.Errorf("chunk size/overlap = %d/%d, want 1000/200", cfg.Index.ChunkSize, cfg.Index.ChunkOverlap)
	}
	if cfg.Index.EmbedBatchSize != 10 {
		t.Errorf("embed_batch_size = %d, want 10", cfg.Index.EmbedBatchSize)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9999
llm:
  base_url: http://example.local:11434
  chat_model: llama3
index:
  top_k: 7
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.LLM.ChatModel != "llama3" {
		t.Errorf("chat_model = %q, want llama3", cfg.LLM.ChatModel)
	}
	if cfg.Index.TopK != 7 {
		t.Errorf("top_k = %d, want 7", cfg.Index.TopK)
	}
	// Untouched values keep defaults.
	if cfg.LLM.Timeout != 60*time.Second {
		t.Errorf("llm timeout = %v, want 60s", cfg.LLM.Timeout)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("OPSDESK_PORT", "5123")
	t.Setenv("OPSDESK_CHAT_MODEL", "phi3.5")
	t.Setenv("OPSDESK_WATCH_DOCS", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 5123 {
		t.Errorf("port = %d, want 5123", cfg.Server.Port)
	}
	if cfg.LLM.ChatModel != "phi3.5" {
		t.Errorf("chat_model = %q, want phi3.5", cfg.LLM.ChatModel)
	}
	if !cfg.Documents.Watch {
		t.Error("watch = false, want true")
	}
}

func TestLoad_InvalidBounds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
validation:
  min_query_length: 100
  max_query_length: 10
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for max < min, got nil")
	}
}

func TestLoad_InvalidOverlap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
index:
  chunk_size: 100
  chunk_overlap: 100
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for overlap >= chunk_size, got nil")
	}
}
