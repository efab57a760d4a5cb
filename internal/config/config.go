package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	DriverChromem  = "chromem"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	DedupPrefix  = "prefix"
	DedupContent = "content"

	PGDriverBun = "pgdriver"
	PGDriverPQ  = "pq"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	EmbedLLM LLMConfig      `yaml:"embed_llm" envPrefix:"EMBEDDING_"`
	LLM      LLMConfig      `yaml:"llm" envPrefix:"LLM_"`
	RAG      RAGConfig      `yaml:"rag"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Store    StoreConfig    `yaml:"store"`
	Database DatabaseConfig `yaml:"database" envPrefix:"DATABASE_"`

	// OllamaBaseURL overrides the base url of both models when they run on ollama.
	OllamaBaseURL string `yaml:"-" env:"OLLAMA_BASE_URL"`
}

type ServerConfig struct {
	Host           string        `yaml:"host" env:"HOST"`
	Port           int           `yaml:"port" env:"PORT"`
	APIPrefix      string        `yaml:"api_prefix" env:"API_PREFIX"`
	ProjectName    string        `yaml:"project_name" env:"PROJECT_NAME"`
	Version        string        `yaml:"version" env:"VERSION"`
	FrontendURL    string        `yaml:"frontend_url" env:"FRONTEND_URL"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	ExposeErrors   bool          `yaml:"expose_errors" env:"EXPOSE_ERRORS"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL"`
}

type LLMConfig struct {
	Provider      string        `yaml:"provider" env:"PROVIDER"`
	BaseURL       string        `yaml:"base_url" env:"BASE_URL"`
	Model         string        `yaml:"model" env:"MODEL"`
	Key           string        `yaml:"key" env:"KEY"`
	TopP          float64       `yaml:"top_p" env:"TOP_P"`
	NumCtx        int           `yaml:"num_ctx" env:"NUM_CTX"`
	RetryAttempts uint          `yaml:"retry_attempts" env:"RETRY_ATTEMPTS"`
	RetryDelay    time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
}

type RAGConfig struct {
	ChunkSize           int           `yaml:"chunk_size" env:"CHUNK_SIZE"`
	ChunkOverlap        int           `yaml:"chunk_overlap" env:"CHUNK_OVERLAP"`
	TopK                int           `yaml:"top_k" env:"TOP_K"`
	SimilarityThreshold float64       `yaml:"similarity_threshold" env:"SIMILARITY_THRESHOLD"`
	Dedup               string        `yaml:"dedup" env:"DEDUP"`
	EmbedWorkers        int           `yaml:"embed_workers" env:"EMBED_WORKERS"`
	QueryCacheTTL       time.Duration `yaml:"query_cache_ttl" env:"QUERY_CACHE_TTL"`
	AssistantName       string        `yaml:"assistant_name" env:"ASSISTANT_NAME"`
}

type IngestConfig struct {
	MaxFileSizeMB     int      `yaml:"max_file_size_mb" env:"MAX_FILE_SIZE_MB"`
	AllowedExtensions []string `yaml:"allowed_extensions" env:"ALLOWED_EXTENSIONS"`
	DefaultSource     string   `yaml:"default_source" env:"DEFAULT_SOURCE"`
}

// MaxBytes is the upload limit in bytes.
func (i IngestConfig) MaxBytes() int64 {
	return int64(i.MaxFileSizeMB) * 1024 * 1024
}

type StoreConfig struct {
	Driver        string `yaml:"driver" env:"STORE_DRIVER"`
	Path          string `yaml:"path" env:"CHROMA_DB_PATH"`
	Collection    string `yaml:"collection" env:"COLLECTION_NAME"`
	InMemory      bool   `yaml:"in_memory" env:"STORE_IN_MEMORY"`
	VectorSize    int    `yaml:"vector_size" env:"VECTOR_SIZE"`
	EncryptionKey string `yaml:"encryption_key" env:"ENCRYPTION_KEY"`
}

type DatabaseConfig struct {
	DSN      string `yaml:"dsn" env:"DSN"`
	Password string `yaml:"password" env:"PASSWORD"`
	Driver   string `yaml:"driver" env:"DRIVER"`
	Table    string `yaml:"table" env:"TABLE"`
	Debug    bool   `yaml:"debug" env:"DEBUG"`
}

// LoadConfig reads the yaml file at path (skipped when path is empty), applies
// a local .env file and the process environment on top, then fills defaults.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return load(path, env.Options{})
}

func load(path string, opts env.Options) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.APIPrefix == "" {
		c.Server.APIPrefix = "/api"
	}
	if c.Server.ProjectName == "" {
		c.Server.ProjectName = "AI Personal Tax Assistant"
	}
	if c.Server.Version == "" {
		c.Server.Version = "0.1.0"
	}
	if c.Server.FrontendURL == "" {
		c.Server.FrontendURL = "http://localhost:8501"
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 120 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.OllamaBaseURL != "" {
		for _, l := range []*LLMConfig{&c.EmbedLLM, &c.LLM} {
			if l.Provider == "" || l.Provider == ProviderOllama {
				l.BaseURL = c.OllamaBaseURL
			}
		}
	}
	c.EmbedLLM.applyDefaults("nomic-embed-text")
	c.LLM.applyDefaults("mistral:7b")

	if c.RAG.ChunkSize == 0 {
		c.RAG.ChunkSize = 500
	}
	if c.RAG.ChunkOverlap == 0 {
		c.RAG.ChunkOverlap = 50
	}
	if c.RAG.TopK == 0 {
		c.RAG.TopK = 10
	}
	if c.RAG.Dedup == "" {
		c.RAG.Dedup = DedupPrefix
	}
	if c.RAG.EmbedWorkers == 0 {
		c.RAG.EmbedWorkers = 4
	}
	if c.RAG.AssistantName == "" {
		c.RAG.AssistantName = "Tax Assistant"
	}

	if c.Ingest.MaxFileSizeMB == 0 {
		c.Ingest.MaxFileSizeMB = 20
	}
	if len(c.Ingest.AllowedExtensions) == 0 {
		c.Ingest.AllowedExtensions = []string{".pdf"}
	}
	for i, ext := range c.Ingest.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.Ingest.AllowedExtensions[i] = ext
	}
	if c.Ingest.DefaultSource == "" {
		c.Ingest.DefaultSource = "uploaded_pdf"
	}

	if c.Store.Driver == "" {
		c.Store.Driver = DriverChromem
	}
	if c.Store.Path == "" {
		c.Store.Path = "data/vector_db"
	}
	if c.Store.Collection == "" {
		c.Store.Collection = "tax_documents"
	}
	if c.Store.VectorSize == 0 {
		c.Store.VectorSize = 768
	}

	if c.Database.Driver == "" {
		c.Database.Driver = PGDriverBun
	}
	if c.Database.Table == "" {
		c.Database.Table = "documents"
	}
}

func (l *LLMConfig) applyDefaults(model string) {
	if l.Provider == "" {
		l.Provider = ProviderOllama
	}
	if l.BaseURL == "" && l.Provider == ProviderOllama {
		l.BaseURL = "http://localhost:11434"
	}
	if l.Model == "" {
		l.Model = model
	}
	if l.TopP == 0 {
		l.TopP = 0.9
	}
	if l.NumCtx == 0 {
		l.NumCtx = 4096
	}
	if l.RetryAttempts == 0 {
		l.RetryAttempts = 1
	}
	if l.RetryDelay == 0 {
		l.RetryDelay = 500 * time.Millisecond
	}
}

// Validate checks the values that defaults cannot fix.
func (c *Config) Validate() error {
	var errs []error
	if c.RAG.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("rag.chunk_size must be positive"))
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		errs = append(errs, fmt.Errorf("rag.chunk_overlap must be in [0, chunk_size)"))
	}
	if c.RAG.TopK < 1 {
		errs = append(errs, fmt.Errorf("rag.top_k must be at least 1"))
	}
	if c.RAG.SimilarityThreshold < 0 || c.RAG.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("rag.similarity_threshold must be in [0, 1]"))
	}
	if c.RAG.Dedup != DedupPrefix && c.RAG.Dedup != DedupContent {
		errs = append(errs, fmt.Errorf("rag.dedup must be %q or %q", DedupPrefix, DedupContent))
	}
	if c.RAG.EmbedWorkers < 1 {
		errs = append(errs, fmt.Errorf("rag.embed_workers must be at least 1"))
	}
	if c.Ingest.MaxFileSizeMB < 1 {
		errs = append(errs, fmt.Errorf("ingest.max_file_size_mb must be positive"))
	}
	for _, l := range []LLMConfig{c.EmbedLLM, c.LLM} {
		if l.Provider != ProviderOllama && l.Provider != ProviderOpenAI {
			errs = append(errs, fmt.Errorf("unknown model provider %q", l.Provider))
		}
	}
	switch c.Store.Driver {
	case DriverChromem, DriverSQLite:
	case DriverPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, fmt.Errorf("database.dsn is required for the postgres store"))
		}
		if c.Database.Driver != PGDriverBun && c.Database.Driver != PGDriverPQ {
			errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if k := len(c.Store.EncryptionKey); k != 0 && k != 32 {
		errs = append(errs, fmt.Errorf("store.encryption_key must be 32 bytes, got %d", k))
	}
	if c.Store.VectorSize < 1 {
		errs = append(errs, fmt.Errorf("store.vector_size must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
