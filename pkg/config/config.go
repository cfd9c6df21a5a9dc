package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Embedder struct {
		Provider  string        `yaml:"provider"`
		Model     string        `yaml:"model"`
		BaseURL   string        `yaml:"base_url"`
		APIKey    string        `yaml:"api_key"`
		Dimension int           `yaml:"dimension"`
		Timeout   time.Duration `yaml:"timeout"`
		RateLimit float64       `yaml:"rate_limit"`
		Burst     int           `yaml:"burst"`
	} `yaml:"embedder"`

	Database struct {
		Backend     string        `yaml:"backend"`
		URL         string        `yaml:"url"`
		TableName   string        `yaml:"table_name"`
		VectorDim   int           `yaml:"vector_dim"`
		Lists       int           `yaml:"lists"`
		SearchLimit int           `yaml:"search_limit"`
		Timeout     time.Duration `yaml:"timeout"`
		ChromemPath string        `yaml:"chromem_path"`
	} `yaml:"database"`

	Processor struct {
		Encoding  string `yaml:"encoding"`
		MaxTokens int    `yaml:"max_tokens"`
	} `yaml:"processor"`

	Ingest struct {
		Concurrency int `yaml:"concurrency"`
	} `yaml:"ingest"`

	Scraper struct {
		MaxDepth       int      `yaml:"max_depth"`
		RateLimit      float64  `yaml:"rate_limit"`
		IgnorePatterns []string `yaml:"ignore_patterns"`
	} `yaml:"scraper"`

	Chat struct {
		Provider    string  `yaml:"provider"`
		Model       string  `yaml:"model"`
		BaseURL     string  `yaml:"base_url"`
		Temperature float64 `yaml:"temperature"`
		MaxTokens   int     `yaml:"max_tokens"`
	} `yaml:"chat"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func LoadConfig(path string) (*Config, error) {
	// Missing .env files are fine
	_ = godotenv.Load()

	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/sectionrag/config.yaml"),
			"/etc/sectionrag/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

// embeddingDimensions lists the output sizes of common embedding models,
// keyed by model name without the ollama tag.
var embeddingDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"snowflake-arctic-embed": 1024,
	"bge-m3":                 1024,
}

func defaultDimension(model string) int {
	name, _, _ := strings.Cut(model, ":")
	if dim, ok := embeddingDimensions[name]; ok {
		return dim
	}
	return 1536
}

func applyDefaults(config *Config) {
	if config.Embedder.Provider == "" {
		config.Embedder.Provider = "openai"
	}
	if config.Embedder.Model == "" {
		switch config.Embedder.Provider {
		case "ollama":
			config.Embedder.Model = "nomic-embed-text:latest"
		default:
			config.Embedder.Model = "text-embedding-3-small"
		}
	}
	if config.Embedder.Provider == "ollama" && config.Embedder.BaseURL == "" {
		config.Embedder.BaseURL = "http://localhost:11434"
	}
	if config.Embedder.Dimension == 0 {
		config.Embedder.Dimension = defaultDimension(config.Embedder.Model)
	}
	if config.Embedder.Timeout == 0 {
		config.Embedder.Timeout = 30 * time.Second
	}
	if config.Embedder.Burst == 0 {
		config.Embedder.Burst = 1
	}

	if config.Database.Backend == "" {
		if config.Database.URL != "" {
			config.Database.Backend = "postgres"
		} else {
			config.Database.Backend = "chromem"
		}
	}
	if config.Database.TableName == "" {
		config.Database.TableName = "sections"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = config.Embedder.Dimension
	}
	if config.Database.Lists == 0 {
		config.Database.Lists = 100
	}
	if config.Database.SearchLimit == 0 {
		config.Database.SearchLimit = 5
	}
	if config.Database.Timeout == 0 {
		config.Database.Timeout = 10 * time.Second
	}
	if config.Database.ChromemPath == "" {
		config.Database.ChromemPath = filepath.Join(os.Getenv("HOME"), ".local/share/sectionrag/chromem")
	}

	if config.Processor.Encoding == "" {
		config.Processor.Encoding = "cl100k_base"
	}
	if config.Processor.MaxTokens == 0 {
		config.Processor.MaxTokens = 8000
	}

	if config.Ingest.Concurrency == 0 {
		config.Ingest.Concurrency = 5
	}

	if config.Scraper.MaxDepth == 0 {
		config.Scraper.MaxDepth = 3
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}

	if config.Chat.Provider == "" {
		config.Chat.Provider = config.Embedder.Provider
	}
	if config.Chat.Model == "" {
		switch config.Chat.Provider {
		case "ollama":
			config.Chat.Model = "mistral"
		default:
			config.Chat.Model = "gpt-4o-mini"
		}
	}
	if config.Chat.BaseURL == "" && config.Chat.Provider == config.Embedder.Provider {
		config.Chat.BaseURL = config.Embedder.BaseURL
	}
	if config.Chat.MaxTokens == 0 {
		config.Chat.MaxTokens = 2000
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "console"
	}
}

func mergeWithEnv(config *Config) {
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.Embedder.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" && config.Embedder.Provider != "ollama" {
		config.Embedder.BaseURL = baseURL
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" && config.Embedder.Provider == "ollama" {
		config.Embedder.BaseURL = baseURL
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
}
