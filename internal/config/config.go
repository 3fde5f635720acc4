package config

import (
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"docqa/internal/apperr"
)

type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Storage  StorageConfig `yaml:"storage"`
	EmbedLLM LLMConfig     `yaml:"embed_llm"`
	ChatLLM  LLMConfig     `yaml:"chat_llm"`
	RAG      RAGConfig     `yaml:"rag"`
}

type ServerConfig struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	Debug bool   `yaml:"debug"`
}

type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	VectorDBPath string `yaml:"vectordb_path"`
	DocsPath     string `yaml:"docs_path"`
}

type LLMConfig struct {
	Provider       string `yaml:"provider"` // openai | ollama
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	Key            string `yaml:"key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type RAGConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	TopK         int `yaml:"top_k"`
}

const (
	defaultChunkSize    = 512
	defaultChunkOverlap = 50
	defaultTopK         = 5
	defaultTimeout      = 30
)

// LoadConfig reads the YAML config file, applies defaults and validates
// the result. A .env file may override the chat LLM API key via
// LLM_API_KEY so the key never has to live in the config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// .env is optional
	_ = godotenv.Load()
	if key := os.Getenv("LLM_API_KEY"); key != "" {
		cfg.ChatLLM.Key = key
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "./data/app_data.db"
	}
	if c.Storage.VectorDBPath == "" {
		c.Storage.VectorDBPath = "./data/chroma_db"
	}
	if c.Storage.DocsPath == "" {
		c.Storage.DocsPath = "./data/docs_storage"
	}
	if c.EmbedLLM.Provider == "" {
		c.EmbedLLM.Provider = "ollama"
	}
	if c.RAG.ChunkSize == 0 {
		c.RAG.ChunkSize = defaultChunkSize
	}
	if c.RAG.ChunkOverlap == 0 {
		c.RAG.ChunkOverlap = defaultChunkOverlap
	}
	if c.RAG.TopK == 0 {
		c.RAG.TopK = defaultTopK
	}
	if c.ChatLLM.TimeoutSeconds == 0 {
		c.ChatLLM.TimeoutSeconds = defaultTimeout
	}
}

// Validate rejects configurations the pipeline cannot run with. These
// are startup errors, not runtime failures.
func (c *Config) Validate() error {
	if c.RAG.ChunkSize <= 0 {
		return apperr.New(apperr.ValidationError, "chunk_size must be positive, got %d", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 {
		return apperr.New(apperr.ValidationError, "chunk_overlap must not be negative, got %d", c.RAG.ChunkOverlap)
	}
	if c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return apperr.New(apperr.ValidationError, "chunk_overlap (%d) must be strictly less than chunk_size (%d)",
			c.RAG.ChunkOverlap, c.RAG.ChunkSize)
	}
	if c.RAG.TopK <= 0 {
		return apperr.New(apperr.ValidationError, "top_k must be positive, got %d", c.RAG.TopK)
	}
	if c.ChatLLM.BaseURL == "" {
		return apperr.New(apperr.ValidationError, "chat_llm.base_url is required")
	}
	return nil
}
