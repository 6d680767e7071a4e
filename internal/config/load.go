package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/paperscope/backend/internal/platform/envutil"
)

// Load reads a YAML config file, applies environment overrides, fills
// defaults, and validates. Environment variables win over file values so
// deployments can keep credentials out of the file.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Env = envutil.String("APP_ENV", cfg.Env)
	cfg.HTTP.Addr = envutil.String("HTTP_ADDR", cfg.HTTP.Addr)

	cfg.Mongo.URI = envutil.String("MONGO_URI", cfg.Mongo.URI)
	cfg.Mongo.Database = envutil.String("MONGO_DATABASE", cfg.Mongo.Database)

	cfg.Neo4j.URI = envutil.String("NEO4J_URI", cfg.Neo4j.URI)
	cfg.Neo4j.User = envutil.String("NEO4J_USER", cfg.Neo4j.User)
	cfg.Neo4j.Password = envutil.String("NEO4J_PASSWORD", cfg.Neo4j.Password)
	cfg.Neo4j.Database = envutil.String("NEO4J_DATABASE", cfg.Neo4j.Database)

	cfg.Qdrant.URL = envutil.String("QDRANT_URL", cfg.Qdrant.URL)
	cfg.Qdrant.Collection = envutil.String("QDRANT_COLLECTION", cfg.Qdrant.Collection)
	cfg.Qdrant.VectorDim = envutil.Int("QDRANT_VECTOR_DIM", cfg.Qdrant.VectorDim)

	cfg.Embedding.Provider = envutil.String("EMBEDDING_PROVIDER", cfg.Embedding.Provider)
	cfg.Embedding.BaseURL = envutil.String("EMBEDDING_BASE_URL", cfg.Embedding.BaseURL)
	cfg.Embedding.APIKey = envutil.String("EMBEDDING_API_KEY", cfg.Embedding.APIKey)
	cfg.Embedding.Model = envutil.String("EMBEDDING_MODEL", cfg.Embedding.Model)

	cfg.Redis.Addr = envutil.String("REDIS_ADDR", cfg.Redis.Addr)

	cfg.Sync.BatchSize = envutil.Int("SYNC_BATCH_SIZE", cfg.Sync.BatchSize)
	cfg.Sync.Resync = envutil.Bool("SYNC_RESYNC", cfg.Sync.Resync)
}

func applyDefaults(cfg *Config) {
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.Mongo.PapersCollection == "" {
		cfg.Mongo.PapersCollection = "papers"
	}
	if cfg.Mongo.LedgerCollection == "" {
		cfg.Mongo.LedgerCollection = "summary_processed_papers"
	}
	if cfg.Neo4j.User == "" {
		cfg.Neo4j.User = "neo4j"
	}
	if cfg.Qdrant.Distance == "" {
		cfg.Qdrant.Distance = "Cosine"
	}
	if cfg.Sync.BatchSize == 0 {
		cfg.Sync.BatchSize = 100
	}
	if cfg.Redis.LockTTLSeconds == 0 {
		cfg.Redis.LockTTLSeconds = 900
	}
}
