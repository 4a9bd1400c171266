package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFile is read when STM_CONFIG is not set. It is optional.
const DefaultFile = "config.yaml"

// Config holds settings for both the API server and the terminal client.
type Config struct {
	Server ServerConfig `yaml:"server"`
	DB     DBConfig     `yaml:"db"`
	CORS   CORSConfig   `yaml:"cors"`
	Log    LogConfig    `yaml:"log"`
	MQ     MQConfig     `yaml:"mq"`
	Client ClientConfig `yaml:"client"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DBConfig selects the task store. An empty DSN means the SQLite file at
// db.DefaultPath().
type DBConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
	File        string `yaml:"file"`
}

// MQConfig configures task event publishing. Events are disabled when URL is empty.
type MQConfig struct {
	URL string `yaml:"url"`
}

// ClientConfig is read by the terminal client. Reconcile is "refetch" or "patch".
type ClientConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	Reconcile string        `yaml:"reconcile"`
}

// Default returns the built-in configuration used for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 30 * time.Second,
		},
		DB: DBConfig{
			MaxOpenConns: 10,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{
				"http://localhost:5173",
				"http://localhost:5175",
				"http://localhost:3000",
			},
		},
		Log: LogConfig{
			Level: "info",
		},
		Client: ClientConfig{
			BaseURL:   "http://localhost:8080",
			Timeout:   10 * time.Second,
			Reconcile: "refetch",
		},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// STM_CONFIG (or config.yaml when present), a .env file and finally the
// process environment, which wins.
func Load() (*Config, error) {
	loadDotenv()

	path := os.Getenv("STM_CONFIG")
	required := path != ""
	if path == "" {
		path = DefaultFile
	}

	cfg := Default()
	if err := mergeFile(cfg, path); err != nil {
		if required || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	OverrideFromEnv(cfg)
	return cfg, nil
}

// LoadFile reads path on top of the defaults and applies environment overrides.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := mergeFile(cfg, path); err != nil {
		return nil, err
	}
	OverrideFromEnv(cfg)
	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

// loadDotenv loads the first .env found in the working directory or its parents.
// Variables already set in the environment are left alone.
func loadDotenv() {
	for _, p := range []string{".env", filepath.Join("..", ".env"), filepath.Join("..", "..", ".env")} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}

// OverrideFromEnv applies environment variables on top of cfg.
func OverrideFromEnv(cfg *Config) {
	if dsn := firstEnv("CONNECTION_STRING", "DATABASE_URL"); dsn != "" {
		cfg.DB.DSN = dsn
	}
	if addr := os.Getenv("STM_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	} else if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Addr = ":" + port
	}
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.CORS.AllowedOrigins = splitOrigins(origins)
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if dev := os.Getenv("LOG_DEV"); dev != "" {
		cfg.Log.Development = dev == "true" || dev == "1"
	}
	if file := os.Getenv("STM_LOG_FILE"); file != "" {
		cfg.Log.File = file
	}
	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.MQ.URL = url
	}
	if url := os.Getenv("STM_API_URL"); url != "" {
		cfg.Client.BaseURL = url
	}
	if mode := os.Getenv("STM_RECONCILE"); mode != "" {
		cfg.Client.Reconcile = mode
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// splitOrigins parses a comma separated origin list, dropping blanks and
// trailing slashes.
func splitOrigins(s string) []string {
	var origins []string
	for _, p := range strings.Split(s, ",") {
		if o := strings.TrimRight(strings.TrimSpace(p), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
