package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xxxsen/common/logger"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port           int                  `json:"port"`
	JWTSecret      string               `json:"jwt_secret"`
	JWTTTLHours    int                  `json:"jwt_ttl_hours"`
	LogConfig      logger.LogConfig     `json:"log_config"`
	CORSOrigins    []string             `json:"cors_origins"`
	Database       DatabaseConfig       `json:"database"`
	FileStore      FileStoreConfig      `json:"file_store"`
	AI             AIConfig             `json:"ai"`
	OCR            OCRConfig            `json:"ocr"`
	Ingest         IngestConfig         `json:"ingest"`
	Retrieval      RetrievalConfig      `json:"retrieval"`
	BootstrapAdmin BootstrapAdminConfig `json:"bootstrap_admin"`
}

type DatabaseConfig struct {
	Driver   string `json:"driver"`
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type AIConfig struct {
	Provider             string             `json:"provider"`
	Model                string             `json:"model"`
	Data                 interface{}        `json:"data"`
	Fallback             []AIProviderConfig `json:"fallback"`
	EmbedProvider        string             `json:"embed_provider"`
	EmbedModel           string             `json:"embed_model"`
	EmbedData            interface{}        `json:"embed_data"`
	Timeout              int                `json:"timeout"`
	MaxInputChars        int                `json:"max_input_chars"`
	EmbedCacheSize       int                `json:"embed_cache_size"`
	EmbedCacheTTLSeconds int                `json:"embed_cache_ttl_seconds"`
	AnswerCacheSize      int                `json:"answer_cache_size"`
}

type AIProviderConfig struct {
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type OCRConfig struct {
	Cloud              OCRCloudConfig `json:"cloud"`
	Local              OCRLocalConfig `json:"local"`
	PageTimeoutSeconds int            `json:"page_timeout_seconds"`
}

type OCRCloudConfig struct {
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type OCRLocalConfig struct {
	Endpoint string `json:"endpoint"`
}

type IngestConfig struct {
	MaxUploadMB           int `json:"max_upload_mb"`
	ChunkSize             int `json:"chunk_size"`
	ChunkOverlap          int `json:"chunk_overlap"`
	MinChunkSize          int `json:"min_chunk_size"`
	ExtractTimeoutSeconds int `json:"extract_timeout_seconds"`
	UploadWaitSeconds     int `json:"upload_wait_seconds"`
	Workers               int `json:"workers"`
	JobRetentionHours     int `json:"job_retention_hours"`
}

type RetrievalConfig struct {
	DefaultTopK int `json:"default_top_k"`
	MaxTopK     int `json:"max_top_k"`
}

type BootstrapAdminConfig struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Load reads a JSON or YAML (by extension) config file, applies
// DOCVAULT_* environment overrides and fills defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := decodeYAML(raw, &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	default:
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decodeYAML goes through a generic document so that the json tags stay
// the only field mapping.
func decodeYAML(raw []byte, dst *Config) error {
	var doc interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DOCVAULT_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("DOCVAULT_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("DOCVAULT_AI_API_KEY"); v != "" {
		cfg.AI.Data = withAPIKey(cfg.AI.Data, v)
		cfg.AI.EmbedData = withAPIKey(cfg.AI.EmbedData, v)
		cfg.OCR.Cloud.Data = withAPIKey(cfg.OCR.Cloud.Data, v)
	}
}

func withAPIKey(data interface{}, key string) interface{} {
	m, ok := data.(map[string]interface{})
	if !ok || m == nil {
		m = map[string]interface{}{}
	}
	m["api_key"] = key
	return m
}

func (cfg *Config) normalize() error {
	if cfg.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.JWTTTLHours == 0 {
		cfg.JWTTTLHours = 8
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	switch cfg.Database.Driver {
	case "postgres":
		if cfg.Database.DSN == "" && cfg.Database.Host == "" {
			return fmt.Errorf("database.dsn or database.host is required for postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver must be postgres or memory")
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	if cfg.AI.EmbedProvider == "" {
		cfg.AI.EmbedProvider = "hash"
	}
	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = 60
	}
	if cfg.AI.MaxInputChars == 0 {
		cfg.AI.MaxInputChars = 4000
	}
	if cfg.AI.EmbedCacheSize == 0 {
		cfg.AI.EmbedCacheSize = 4096
	}
	if cfg.AI.EmbedCacheTTLSeconds == 0 {
		cfg.AI.EmbedCacheTTLSeconds = 3600
	}
	if cfg.AI.AnswerCacheSize == 0 {
		cfg.AI.AnswerCacheSize = 256
	}
	if cfg.OCR.PageTimeoutSeconds == 0 {
		cfg.OCR.PageTimeoutSeconds = 60
	}
	in := &cfg.Ingest
	if in.MaxUploadMB == 0 {
		in.MaxUploadMB = 50
	}
	if in.ChunkSize == 0 {
		in.ChunkSize = 1500
	}
	if in.ChunkOverlap == 0 {
		in.ChunkOverlap = 300
	}
	if in.MinChunkSize == 0 {
		in.MinChunkSize = 100
	}
	if in.ChunkOverlap >= in.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap must be smaller than ingest.chunk_size")
	}
	if in.ExtractTimeoutSeconds == 0 {
		in.ExtractTimeoutSeconds = 600
	}
	if in.UploadWaitSeconds == 0 {
		in.UploadWaitSeconds = 30
	}
	if in.Workers == 0 {
		in.Workers = 2
	}
	if in.JobRetentionHours == 0 {
		in.JobRetentionHours = 24
	}
	if cfg.Retrieval.DefaultTopK == 0 {
		cfg.Retrieval.DefaultTopK = 15
	}
	if cfg.Retrieval.MaxTopK == 0 {
		cfg.Retrieval.MaxTopK = 50
	}
	return nil
}
