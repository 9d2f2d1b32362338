package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envKeys = []string{
	"ROOTCAUSE_ADDR", "ROOTCAUSE_MAX_UPLOAD_BYTES", "ROOTCAUSE_RATE_LIMIT_RPS",
	"ROOTCAUSE_RATE_LIMIT_BURST", "ROOTCAUSE_SHUTDOWN_TIMEOUT",
	"ROOTCAUSE_DISEASE_MODEL", "ROOTCAUSE_YIELD_MODEL", "ROOTCAUSE_ENCODERS",
	"ROOTCAUSE_ORT_LIB", "ROOTCAUSE_INTRA_OP_THREADS",
	"ROOTCAUSE_LOG_LEVEL", "ROOTCAUSE_LOG_JSON",
}

// clearEnv blanks every ROOTCAUSE_* variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr != ":8000" {
		t.Fatalf("expected default addr ':8000', got %q", cfg.Server.Addr)
	}
	if cfg.Server.MaxUploadBytes != 10<<20 {
		t.Fatalf("expected default MaxUploadBytes=10MiB, got %d", cfg.Server.MaxUploadBytes)
	}
	if cfg.Server.RateLimitRPS != 0 {
		t.Fatalf("expected rate limiting off by default, got %v", cfg.Server.RateLimitRPS)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Fatalf("expected default ShutdownTimeout=10s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Models.DiseaseModelPath != "models/disease_model.onnx" {
		t.Fatalf("unexpected disease model path %q", cfg.Models.DiseaseModelPath)
	}
	if cfg.Models.EncodersPath != "models/yield_encoders.json" {
		t.Fatalf("unexpected encoders path %q", cfg.Models.EncodersPath)
	}
	if cfg.Logging.Level != "info" || !cfg.Logging.JSON {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoad_Env(t *testing.T) {
	clearEnv(t)
	t.Setenv("ROOTCAUSE_ADDR", ":9000")
	t.Setenv("ROOTCAUSE_YIELD_MODEL", "/srv/yield.onnx")
	t.Setenv("ROOTCAUSE_RATE_LIMIT_RPS", "2.5")
	t.Setenv("ROOTCAUSE_SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("ROOTCAUSE_LOG_JSON", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("expected addr ':9000', got %q", cfg.Server.Addr)
	}
	if cfg.Models.YieldModelPath != "/srv/yield.onnx" {
		t.Errorf("expected yield model override, got %q", cfg.Models.YieldModelPath)
	}
	if cfg.Server.RateLimitRPS != 2.5 {
		t.Errorf("expected rps 2.5, got %v", cfg.Server.RateLimitRPS)
	}
	if cfg.Server.ShutdownTimeout != 3*time.Second {
		t.Errorf("expected 3s shutdown timeout, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Logging.JSON {
		t.Error("expected JSON logging disabled")
	}
}

func TestLoad_InvalidEnvFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("ROOTCAUSE_MAX_UPLOAD_BYTES", "lots")
	t.Setenv("ROOTCAUSE_SHUTDOWN_TIMEOUT", "soon")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.MaxUploadBytes != 10<<20 {
		t.Errorf("expected fallback upload limit, got %d", cfg.Server.MaxUploadBytes)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("expected fallback shutdown timeout, got %v", cfg.Server.ShutdownTimeout)
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  addr: ":7000"
  shutdown_timeout: 15s
models:
  disease_model: /data/disease.onnx
  intra_op_threads: 2
logging:
  level: debug
  json: false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != ":7000" {
		t.Errorf("expected addr from file, got %q", cfg.Server.Addr)
	}
	if cfg.Server.ShutdownTimeout != 15*time.Second {
		t.Errorf("expected 15s shutdown timeout, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Models.DiseaseModelPath != "/data/disease.onnx" {
		t.Errorf("expected disease model from file, got %q", cfg.Models.DiseaseModelPath)
	}
	if cfg.Models.YieldModelPath != "models/yield_model.onnx" {
		t.Errorf("expected untouched default yield path, got %q", cfg.Models.YieldModelPath)
	}
	if cfg.Models.IntraOpThreads != 2 {
		t.Errorf("expected 2 intra-op threads, got %d", cfg.Models.IntraOpThreads)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.JSON {
		t.Errorf("unexpected logging config %+v", cfg.Logging)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  addr: \":7000\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ROOTCAUSE_ADDR", ":7100")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != ":7100" {
		t.Fatalf("expected env to win, got %q", cfg.Server.Addr)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed config file")
	}
}

// --- Validation tests ---

// validConfig returns a Config with real temp files so file-existence checks pass.
func validConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"disease.onnx", "yield.onnx", "encoders.json"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cfg := Default()
	cfg.Models.DiseaseModelPath = filepath.Join(dir, "disease.onnx")
	cfg.Models.YieldModelPath = filepath.Join(dir, "yield.onnx")
	cfg.Models.EncodersPath = filepath.Join(dir, "encoders.json")
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected nil error for valid config, got: %v", err)
	}
}

func TestValidate_MissingModelFile(t *testing.T) {
	cfg := validConfig(t)
	cfg.Models.YieldModelPath = "/nonexistent/yield.onnx"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing model file")
	}
	if !strings.Contains(err.Error(), "yield model") {
		t.Fatalf("expected error to mention 'yield model', got: %v", err)
	}
}

func TestValidate_RateLimitNeedsBurst(t *testing.T) {
	cfg := validConfig(t)
	cfg.Server.RateLimitRPS = 5
	cfg.Server.RateLimitBurst = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for zero burst")
	}
	if !strings.Contains(err.Error(), "burst") {
		t.Fatalf("expected error to mention 'burst', got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := validConfig(t)
	cfg.Server.Addr = ""
	cfg.Server.MaxUploadBytes = 0
	cfg.Models.EncodersPath = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for multiple bad fields")
	}
	msg := err.Error()
	for _, want := range []string{"addr", "upload", "encoders"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected error to mention %q, got: %v", want, msg)
		}
	}
}
