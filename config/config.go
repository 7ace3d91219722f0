package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

// Cfg 全局配置，未调用 Load 时为默认值
var Cfg = Default()

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	MySQL       MySQLConfig       `yaml:"mysql"`
	JWT         JWTConfig         `yaml:"jwt"`
	OSS         OSSConfig         `yaml:"oss"`
	Model       ModelConfig       `yaml:"model"`
	Milvus      MilvusConfig      `yaml:"milvus"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	MQ          MQConfig          `yaml:"mq"`
	MCP         MCPConfig         `yaml:"mcp"`
	Upload      UploadConfig      `yaml:"upload"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	RAG         RAGConfig         `yaml:"rag"`
	Bots        BotsConfig        `yaml:"bots"`
	Timeouts    TimeoutsConfig    `yaml:"timeouts"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	// release 模式下使用 JSON 日志
	Mode           string   `yaml:"mode"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type MySQLConfig struct {
	DSN string `yaml:"dsn"`
}

type JWTConfig struct {
	SecretKey string        `yaml:"secret_key"`
	Expire    time.Duration `yaml:"expire"`
}

type OSSConfig struct {
	Region          string `yaml:"region"`
	BucketName      string `yaml:"bucket_name"`
	AccessKeyID     string `yaml:"access_key_id"`
	AccessKeySecret string `yaml:"access_key_secret"`
	// 配置后通过 STS AssumeRole 获取临时凭证
	RoleArn   string `yaml:"role_arn"`
	PublicURL string `yaml:"public_url"`
}

type ModelConfig struct {
	BaseURL             string  `yaml:"base_url"`
	APIKey              string  `yaml:"api_key"`
	ChatModel           string  `yaml:"chat_model"`
	EmbeddingModel      string  `yaml:"embedding_model"`
	EmbeddingDimensions int     `yaml:"embedding_dimensions"`
	Temperature         float64 `yaml:"temperature"`
}

type MilvusConfig struct {
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	CollectionName string `yaml:"collection_name"`
}

type VectorStoreConfig struct {
	// mysql 或 milvus
	Backend string `yaml:"backend"`
}

type MQConfig struct {
	Enabled    bool   `yaml:"enabled"`
	NameServer string `yaml:"name_server"`
}

type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

type UploadConfig struct {
	MaxSizeBytes int64 `yaml:"max_size_bytes"`
}

type ChunkingConfig struct {
	// whole 或 recursive
	Strategy     string `yaml:"strategy"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
}

type RAGConfig struct {
	TopK     int    `yaml:"top_k"`
	Language string `yaml:"language"`
}

type BotsConfig struct {
	DefaultMaxBots int `yaml:"default_max_bots"`
}

type TimeoutsConfig struct {
	Extraction time.Duration `yaml:"extraction"`
	Storage    time.Duration `yaml:"storage"`
	Embedding  time.Duration `yaml:"embedding"`
	Completion time.Duration `yaml:"completion"`
	Database   time.Duration `yaml:"database"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "8080",
			Mode: "debug",
		},
		Log: LogConfig{Level: "info"},
		JWT: JWTConfig{Expire: 24 * time.Hour},
		Model: ModelConfig{
			BaseURL:        "https://api.openai.com/v1",
			ChatModel:      "gpt-3.5-turbo",
			EmbeddingModel: "text-embedding-3-small",
			Temperature:    0.7,
		},
		Milvus:      MilvusConfig{CollectionName: "bot_document_chunk"},
		VectorStore: VectorStoreConfig{Backend: "mysql"},
		Upload:      UploadConfig{MaxSizeBytes: 5 * 1024 * 1024},
		Chunking: ChunkingConfig{
			Strategy:     "whole",
			ChunkSize:    4000,
			ChunkOverlap: 200,
		},
		RAG:  RAGConfig{TopK: 3, Language: "id"},
		Bots: BotsConfig{DefaultMaxBots: 2},
		Timeouts: TimeoutsConfig{
			Extraction: 30 * time.Second,
			Storage:    30 * time.Second,
			Embedding:  30 * time.Second,
			Completion: 60 * time.Second,
			Database:   10 * time.Second,
		},
	}
}

// Load 读取 yaml 配置文件，支持 ${ENV} 形式的环境变量
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %v", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %v", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	Cfg = cfg
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Bots.DefaultMaxBots < 1 {
		return fmt.Errorf("bots.default_max_bots must be at least 1, got %d", c.Bots.DefaultMaxBots)
	}
	if c.RAG.TopK < 1 {
		return fmt.Errorf("rag.top_k must be at least 1, got %d", c.RAG.TopK)
	}
	if c.Upload.MaxSizeBytes <= 0 {
		return fmt.Errorf("upload.max_size_bytes must be positive")
	}
	switch c.VectorStore.Backend {
	case "mysql", "milvus":
	default:
		return fmt.Errorf("unknown vector_store.backend %q", c.VectorStore.Backend)
	}
	switch c.Chunking.Strategy {
	case "whole", "recursive":
	default:
		return fmt.Errorf("unknown chunking.strategy %q", c.Chunking.Strategy)
	}
	return nil
}
