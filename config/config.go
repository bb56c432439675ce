package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Config holds the application's configuration. Values come from an optional
// YAML file (ORACULO_CONFIG) with environment variables taking precedence.
type Config struct {
	PostgresDSN string `yaml:"postgres_dsn"`
	IndexDir    string `yaml:"index_dir"`
	HTTPAddr    string `yaml:"http_addr"`

	OllamaHost    string `yaml:"ollama_host"`
	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`

	Embeddings struct {
		Provider  string `yaml:"provider"`
		Model     string `yaml:"model"`
		Dimension int    `yaml:"dimension"`
	} `yaml:"embeddings"`

	LLM struct {
		Provider string `yaml:"provider"`
		Model    string `yaml:"model"`
	} `yaml:"llm"`

	WhatsApp struct {
		BaseURL         string            `yaml:"base_url"`
		Instance        string            `yaml:"instance"`
		APIKeys         map[string]string `yaml:"api_keys"`
		DebounceSeconds int               `yaml:"debounce_seconds"`
	} `yaml:"whatsapp"`

	Ingest struct {
		Workers int `yaml:"workers"`
	} `yaml:"ingest"`
}

func Load() (Config, error) {
	var cfg Config

	if path := os.Getenv("ORACULO_CONFIG"); path != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config file: %w", err)
		}
		defer file.Close()

		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config file: %w", err)
		}
	}

	cfg.PostgresDSN = getEnv("POSTGRES_DSN", defaultStr(cfg.PostgresDSN, "postgres://localhost:5432/oraculo?sslmode=disable"))
	cfg.IndexDir = getEnv("ORACULO_INDEX_DIR", defaultStr(cfg.IndexDir, "banco_faiss"))
	cfg.HTTPAddr = getEnv("ORACULO_HTTP_ADDR", defaultStr(cfg.HTTPAddr, ":8000"))

	cfg.OllamaHost = getEnv("OLLAMA_HOST", defaultStr(cfg.OllamaHost, "http://localhost:11434"))
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAIBaseURL)

	cfg.Embeddings.Provider = getEnv("EMBEDDINGS_PROVIDER", defaultStr(cfg.Embeddings.Provider, ProviderOpenAI))
	cfg.Embeddings.Model = getEnv("EMBEDDINGS_MODEL", defaultStr(cfg.Embeddings.Model, "text-embedding-3-small"))
	cfg.Embeddings.Dimension = getEnvInt("EMBEDDINGS_DIMENSION", defaultInt(cfg.Embeddings.Dimension, 1536))

	cfg.LLM.Provider = getEnv("LLM_PROVIDER", defaultStr(cfg.LLM.Provider, ProviderOpenAI))
	cfg.LLM.Model = getEnv("LLM_MODEL", defaultStr(cfg.LLM.Model, "gpt-4o-mini"))

	cfg.WhatsApp.BaseURL = getEnv("EVOLUTION_BASE_URL", defaultStr(cfg.WhatsApp.BaseURL, "http://localhost:8080"))
	cfg.WhatsApp.Instance = getEnv("EVOLUTION_INSTANCE", defaultStr(cfg.WhatsApp.Instance, "oraculo"))
	cfg.WhatsApp.DebounceSeconds = getEnvInt("WHATSAPP_DEBOUNCE_SECONDS", defaultInt(cfg.WhatsApp.DebounceSeconds, 120))
	if cfg.WhatsApp.APIKeys == nil {
		cfg.WhatsApp.APIKeys = map[string]string{}
	}
	if key := os.Getenv("EVOLUTION_API_KEY"); key != "" {
		cfg.WhatsApp.APIKeys[cfg.WhatsApp.Instance] = key
	}

	cfg.Ingest.Workers = getEnvInt("INGEST_WORKERS", defaultInt(cfg.Ingest.Workers, 2))

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func defaultStr(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func defaultInt(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}
