package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Nvidia      NvidiaConfig              `json:"nvidia"`
	Redis       RedisConfig               `json:"redis"`
	ModelParams ModelParams               `json:"model_params"`
	Memory      MemoryConfig              `json:"memory"`
	Retrieval   RetrievalConfig           `json:"retrieval"`
	Databases   map[string]DatabaseConfig `json:"databases"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
	MaxWorkers    int    `json:"max_workers"`
}

// NvidiaConfig holds credentials and endpoint for the NVIDIA integrate API.
type NvidiaConfig struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
	APIID   string `json:"api_id"`
	Model   string `json:"model"`
}

type RedisConfig struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	DB              int    `json:"db"`
	IndexName       string `json:"index_name"`
	VectorDimension int    `json:"vector_dimension"`
}

type ModelParams struct {
	MaxTokens          int     `json:"max_tokens"`
	Temperature        float64 `json:"temperature"`
	SummaryTemperature float64 `json:"summary_temperature"`
	Stream             bool    `json:"stream"`
	RequestTimeoutSecs int     `json:"request_timeout_seconds"`
}

type MemoryConfig struct {
	MaxCacheItems         int `json:"max_cache_items"`
	CacheCleanupThreshold int `json:"cache_cleanup_threshold"`
	RecentWindow          int `json:"recent_window"`
	SummaryWindow         int `json:"summary_window"`
}

type RetrievalConfig struct {
	TopK   int  `json:"top_k"`
	Strict bool `json:"strict"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	// Streaming is opt-out; decoding only overwrites keys present in the file.
	cfg := Config{ModelParams: ModelParams{Stream: true}}
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Resolve sqlite paths relative to the config file location.
	for name, db := range cfg.Databases {
		if name == "sqlite3" && db.DSN != "" && !filepath.IsAbs(db.DSN) {
			db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
			cfg.Databases[name] = db
		}
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BasicConfig.MaxWorkers == 0 {
		c.BasicConfig.MaxWorkers = 4
	}
	if c.Nvidia.BaseURL == "" {
		c.Nvidia.BaseURL = "https://integrate.api.nvidia.com/v1"
	}
	if c.Nvidia.Model == "" {
		c.Nvidia.Model = "nvidia/llama-3.1-nemotron-70b-instruct"
	}
	if c.Redis.Host == "" {
		c.Redis.Host = "127.0.0.1"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.IndexName == "" {
		c.Redis.IndexName = "default-index"
	}
	if c.Redis.VectorDimension == 0 {
		c.Redis.VectorDimension = 1536
	}
	if c.ModelParams.MaxTokens == 0 {
		c.ModelParams.MaxTokens = 1024
	}
	if c.ModelParams.Temperature == 0 {
		c.ModelParams.Temperature = 0.7
	}
	if c.ModelParams.SummaryTemperature == 0 {
		c.ModelParams.SummaryTemperature = 0.3
	}
	if c.ModelParams.RequestTimeoutSecs == 0 {
		c.ModelParams.RequestTimeoutSecs = 30
	}
	if c.Memory.MaxCacheItems == 0 {
		c.Memory.MaxCacheItems = 1000
	}
	if c.Memory.CacheCleanupThreshold == 0 {
		c.Memory.CacheCleanupThreshold = 500
	}
	if c.Memory.RecentWindow == 0 {
		c.Memory.RecentWindow = 3
	}
	if c.Memory.SummaryWindow == 0 {
		c.Memory.SummaryWindow = 10
	}
	if c.Retrieval.TopK == 0 {
		c.Retrieval.TopK = 5
	}
}

func (c *Config) validate() error {
	if c.Nvidia.APIKey == "" {
		return fmt.Errorf("nvidia.api_key must be configured")
	}
	if c.Memory.CacheCleanupThreshold > c.Memory.MaxCacheItems {
		return fmt.Errorf("memory.cache_cleanup_threshold (%d) exceeds max_cache_items (%d)",
			c.Memory.CacheCleanupThreshold, c.Memory.MaxCacheItems)
	}
	if len(c.Databases) == 0 {
		return fmt.Errorf("at least one database must be configured")
	}
	return nil
}
