package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Models  ModelsConfig  `yaml:"models"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps"` // 0 disables
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ModelsConfig holds paths of the artifacts produced by offline training.
type ModelsConfig struct {
	DiseaseModelPath string `yaml:"disease_model"`
	YieldModelPath   string `yaml:"yield_model"`
	EncodersPath     string `yaml:"encoders"`
	RuntimeLibPath   string `yaml:"runtime_lib"`
	IntraOpThreads   int    `yaml:"intra_op_threads"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8000",
			MaxUploadBytes:  10 << 20,
			RateLimitBurst:  20,
			ShutdownTimeout: 10 * time.Second,
		},
		Models: ModelsConfig{
			DiseaseModelPath: "models/disease_model.onnx",
			YieldModelPath:   "models/yield_model.onnx",
			EncodersPath:     "models/yield_encoders.json",
			RuntimeLibPath:   "models/libonnxruntime.so",
			IntraOpThreads:   4,
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  true,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// non-empty), then ROOTCAUSE_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Addr = getenv("ROOTCAUSE_ADDR", cfg.Server.Addr)
	cfg.Server.MaxUploadBytes = getenvInt64("ROOTCAUSE_MAX_UPLOAD_BYTES", cfg.Server.MaxUploadBytes)
	cfg.Server.RateLimitRPS = getenvFloat("ROOTCAUSE_RATE_LIMIT_RPS", cfg.Server.RateLimitRPS)
	cfg.Server.RateLimitBurst = getenvInt("ROOTCAUSE_RATE_LIMIT_BURST", cfg.Server.RateLimitBurst)
	cfg.Server.ShutdownTimeout = getenvDuration("ROOTCAUSE_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	cfg.Models.DiseaseModelPath = getenv("ROOTCAUSE_DISEASE_MODEL", cfg.Models.DiseaseModelPath)
	cfg.Models.YieldModelPath = getenv("ROOTCAUSE_YIELD_MODEL", cfg.Models.YieldModelPath)
	cfg.Models.EncodersPath = getenv("ROOTCAUSE_ENCODERS", cfg.Models.EncodersPath)
	cfg.Models.RuntimeLibPath = getenv("ROOTCAUSE_ORT_LIB", cfg.Models.RuntimeLibPath)
	cfg.Models.IntraOpThreads = getenvInt("ROOTCAUSE_INTRA_OP_THREADS", cfg.Models.IntraOpThreads)

	cfg.Logging.Level = getenv("ROOTCAUSE_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.JSON = getenvBool("ROOTCAUSE_LOG_JSON", cfg.Logging.JSON)
}

// Validate checks the configuration and reports every problem at once.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server addr must not be empty"))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("max upload bytes must be positive, got %d", c.Server.MaxUploadBytes))
	}
	if c.Server.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("rate limit rps must not be negative, got %v", c.Server.RateLimitRPS))
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst <= 0 {
		errs = append(errs, fmt.Errorf("rate limit burst must be positive when rate limiting is on, got %d", c.Server.RateLimitBurst))
	}
	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("shutdown timeout must not be negative, got %v", c.Server.ShutdownTimeout))
	}
	if c.Models.IntraOpThreads < 0 {
		errs = append(errs, fmt.Errorf("intra-op threads must not be negative, got %d", c.Models.IntraOpThreads))
	}

	for _, f := range []struct{ name, path string }{
		{"disease model", c.Models.DiseaseModelPath},
		{"yield model", c.Models.YieldModelPath},
		{"encoders", c.Models.EncodersPath},
	} {
		if f.path == "" {
			errs = append(errs, fmt.Errorf("%s path must not be empty", f.name))
			continue
		}
		if _, err := os.Stat(f.path); err != nil {
			errs = append(errs, fmt.Errorf("%s file: %w", f.name, err))
		}
	}

	return errors.Join(errs...)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getenvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
