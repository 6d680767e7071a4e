package config

import (
	"fmt"
	"net/url"
	"strings"
)

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type MongoConfig struct {
	URI              string `yaml:"uri"`
	Database         string `yaml:"database"`
	PapersCollection string `yaml:"papers_collection"`
	LedgerCollection string `yaml:"ledger_collection"`
}

type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type QdrantConfig struct {
	URL        string `yaml:"url"`
	Collection string `yaml:"collection"`
	VectorDim  int    `yaml:"vector_dim"`
	Distance   string `yaml:"distance"`
}

type EmbeddingConfig struct {
	// Provider is a closed tag set; see embed.Providers. Unknown tags are
	// rejected at startup, not at first use.
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

type RedisConfig struct {
	Addr           string `yaml:"addr"`
	LockTTLSeconds int    `yaml:"lock_ttl_seconds"`
}

type SyncConfig struct {
	BatchSize     int      `yaml:"batch_size"`
	Categories    []string `yaml:"categories"`
	PublishedFrom string   `yaml:"published_from"`
	PublishedTo   string   `yaml:"published_to"`
	MaxPapers     int      `yaml:"max_papers"`
	// Resync rescans tracked papers too; unchanged content is skipped by
	// fingerprint comparison instead of by ledger exclusion.
	Resync bool `yaml:"resync"`
}

type Config struct {
	Env       string          `yaml:"env"`
	HTTP      HTTPConfig      `yaml:"http"`
	Mongo     MongoConfig     `yaml:"mongo"`
	Neo4j     Neo4jConfig     `yaml:"neo4j"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Redis     RedisConfig     `yaml:"redis"`
	Sync      SyncConfig      `yaml:"sync"`
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Mongo.URI) == "" {
		return fmt.Errorf("config: mongo.uri is required")
	}
	if strings.TrimSpace(c.Mongo.Database) == "" {
		return fmt.Errorf("config: mongo.database is required")
	}
	if strings.TrimSpace(c.Neo4j.URI) == "" {
		return fmt.Errorf("config: neo4j.uri is required")
	}
	if err := validateAbsoluteURL("qdrant.url", c.Qdrant.URL); err != nil {
		return err
	}
	if strings.TrimSpace(c.Qdrant.Collection) == "" {
		return fmt.Errorf("config: qdrant.collection is required")
	}
	if c.Qdrant.VectorDim <= 0 {
		return fmt.Errorf("config: qdrant.vector_dim must be a positive integer, got %d", c.Qdrant.VectorDim)
	}
	if strings.TrimSpace(c.Embedding.Provider) == "" {
		return fmt.Errorf("config: embedding.provider is required")
	}
	if err := validateAbsoluteURL("embedding.base_url", c.Embedding.BaseURL); err != nil {
		return err
	}
	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("config: sync.batch_size must be a positive integer, got %d", c.Sync.BatchSize)
	}
	return nil
}

func validateAbsoluteURL(field, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("config: %s is required", field)
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("config: invalid %s=%q; expected absolute URL like http://host:port", field, raw)
	}
	return nil
}
