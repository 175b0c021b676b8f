package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/josinaldojr/doc-qa-rag/pkg/llm"
	"github.com/josinaldojr/doc-qa-rag/pkg/rag"
)

type Config struct {
	Provider       string `validate:"oneof=openai gemini"`
	APIKey         string `validate:"required"`
	ChatModel      string `validate:"required"`
	EmbeddingModel string `validate:"required"`
	BaseURL        string `validate:"omitempty,url"`

	RagDir       string `validate:"required"`
	IndexBackend string `validate:"oneof=file postgres qdrant"`
	DatabaseURL  string `validate:"required_if=IndexBackend postgres"`
	QdrantHost   string `validate:"required_if=IndexBackend qdrant"`
	QdrantPort   int    `validate:"gt=0,lte=65535"`
	QdrantAPIKey string
	QdrantPrefix string
	QdrantUseTLS bool

	FetchTimeout time.Duration `validate:"gt=0"`

	ChunkSize    int    `validate:"gt=0"`
	ChunkOverlap int    `validate:"gte=0,ltfield=ChunkSize"`
	TopK         int    `validate:"gt=0"`
	Lang         string `validate:"oneof=pt en auto"`

	RateLimit  float64 `validate:"gte=0"`
	RateBurst  int     `validate:"gte=1"`
	MaxRetries int     `validate:"gte=0"`

	Port     string `validate:"required,numeric"`
	LogLevel string `validate:"oneof=debug info warn error"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load lê o .env (se existir) e as variáveis de ambiente.
func Load() (*Config, error) {
	_ = godotenv.Load()

	provider := strings.ToLower(getEnv("LLM_PROVIDER", "openai"))

	cfg := &Config{
		Provider:     provider,
		BaseURL:      getEnv("CWG_LLM_OPENAI_BASE_URL", ""),
		RagDir:       getEnv("RAG_DIR", "./rag-dir"),
		IndexBackend: strings.ToLower(getEnv("RAG_INDEX_BACKEND", "file")),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		QdrantHost:   getEnv("QDRANT_HOST", "localhost"),
		QdrantAPIKey: getEnv("QDRANT_API_KEY", ""),
		QdrantPrefix: getEnv("QDRANT_COLLECTION_PREFIX", "rag_"),
		Lang:         strings.ToLower(getEnv("RAG_LANG", string(rag.LangPT))),
		Port:         getEnv("PORT", "8080"),
		LogLevel:     strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}

	switch provider {
	case "gemini":
		cfg.APIKey = firstEnv("CWG_LLM_OPENAI_KEY", "GOOGLE_API_KEY", "GEMINI_API_KEY")
		cfg.ChatModel = getEnv("CWG_LLM_OPENAI_MODEL", llm.DefaultGeminiChatModel)
		cfg.EmbeddingModel = getEnv("CWG_LLM_OPENAI_EMBEDDING", llm.DefaultGeminiEmbeddingModel)
	default:
		cfg.APIKey = firstEnv("CWG_LLM_OPENAI_KEY", "OPENAI_API_KEY")
		cfg.ChatModel = getEnv("CWG_LLM_OPENAI_MODEL", llm.DefaultOpenAIChatModel)
		cfg.EmbeddingModel = getEnv("CWG_LLM_OPENAI_EMBEDDING", llm.DefaultOpenAIEmbeddingModel)
	}

	var errs []error
	cfg.QdrantPort = getEnvInt("QDRANT_PORT", 6334, &errs)
	cfg.ChunkSize = getEnvInt("RAG_CHUNK_SIZE", rag.DefaultChunkSize, &errs)
	cfg.ChunkOverlap = getEnvInt("RAG_CHUNK_OVERLAP", rag.DefaultChunkOverlap, &errs)
	cfg.TopK = getEnvInt("RAG_TOP_K", 4, &errs)
	cfg.RateBurst = getEnvInt("LLM_RATE_BURST", 1, &errs)
	cfg.MaxRetries = getEnvInt("LLM_MAX_RETRIES", 0, &errs)
	cfg.RateLimit = getEnvFloat("LLM_RATE_LIMIT", 0, &errs)
	cfg.QdrantUseTLS = getEnvBool("QDRANT_USE_TLS", false, &errs)
	cfg.FetchTimeout = getEnvDuration("RAG_FETCH_TIMEOUT", 30*time.Second, &errs)
	if len(errs) > 0 {
		return nil, rag.Wrap(rag.ErrConfiguration, "config", errors.Join(errs...))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			}
			return rag.Errorf(rag.ErrConfiguration, "config", "invalid configuration: %s", strings.Join(msgs, ", "))
		}
		return rag.Wrap(rag.ErrConfiguration, "config", err)
	}
	return nil
}

// Options converts the retrieval settings to rag.Options.
func (c *Config) Options() rag.Options {
	opts := rag.DefaultOptions()
	opts.TopK = c.TopK
	opts.ChunkSize = c.ChunkSize
	opts.ChunkOverlap = c.ChunkOverlap
	opts.Lang = rag.Lang(c.Lang)
	return opts
}

func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := getEnv(k, ""); v != "" {
			return v
		}
	}
	return ""
}

func getEnvInt(key string, def int, errs *[]error) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func getEnvFloat(key string, def float64, errs *[]error) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not a number", key, v))
		return def
	}
	return f
}

func getEnvBool(key string, def bool, errs *[]error) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration, errs *[]error) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not a duration", key, v))
		return def
	}
	return d
}
