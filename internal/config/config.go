// Package config holds the typed configuration surface for centroid.
//
// Loading (env + optional YAML overlay) is intentionally thin: parsing CLI
// flags and mapping config errors onto an HTTP response belongs to the
// external surface this repository does not implement.
package config

import "time"

// Config is the root configuration struct, mirroring spec.md §6.
type Config struct {
	Postgres      PostgresConfig
	Vector        VectorConfig
	Redis         RedisConfig
	Embedding     EmbeddingConfig
	Personalization PersonalizationConfig
	SemanticSearch  SemanticSearchConfig
	CoI           CoIConfig
	Ingestion     IngestionConfig
	Tenants       TenantsConfig
	Observability ObsConfig
	LogPath       string
	LogLevel      string
}

// PostgresConfig configures the metadata store connection (C6).
type PostgresConfig struct {
	DSN         string `yaml:"dsn"`
	AdminSchema string `yaml:"admin_schema"` // shared silo catalog schema
}

// VectorConfig configures the vector store adapter (C7).
type VectorConfig struct {
	DSN        string `yaml:"dsn"` // qdrant grpc endpoint, e.g. "http://localhost:6334?api_key=..."
	Dimensions int    `yaml:"dimensions"`
	Metric     string `yaml:"metric"` // cosine|l2|ip
}

// RedisConfig configures the distributed schema-cache invalidation channel.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// EmbeddingConfig configures one embedding backend (C1). Multiple named
// backends may be configured; exactly one is Default.
type EmbeddingConfig struct {
	Backends map[string]EmbeddingBackendConfig `yaml:"backends"`
	Default  string                            `yaml:"default"`
}

// EmbeddingBackendConfig is one backend's model parameters and prefixes.
type EmbeddingBackendConfig struct {
	Type          string        `yaml:"type"` // "local" | "remote"
	BaseURL       string        `yaml:"base_url"`
	Path          string        `yaml:"path"`
	Model         string        `yaml:"model"`
	APIKey        string        `yaml:"api_key"`
	APIHeader     string        `yaml:"api_header"`
	Dimensions    int           `yaml:"dimensions"`
	Timeout       time.Duration `yaml:"timeout"`
	PrefixQuery   string        `yaml:"prefix_query"`
	PrefixContent string        `yaml:"prefix_snippet"`
}

// PersonalizationConfig configures /users/{uid}/recommendations.
type PersonalizationConfig struct {
	DefaultNumberDocuments   int       `yaml:"default_number_documents"`
	MaxNumberDocuments       int       `yaml:"max_number_documents"`
	MaxNumberCandidates      int       `yaml:"max_number_candidates"`
	ScoreWeights             [3]float64 `yaml:"score_weights"` // interest, tag, search
	MaxCoIsForKNN            int       `yaml:"max_cois_for_knn"`
	StoreUserHistory         bool      `yaml:"store_user_history"`
	MaxStatelessHistoryCoIs  int       `yaml:"max_stateless_history_for_cois"`
}

// SemanticSearchConfig configures /semantic_search.
type SemanticSearchConfig struct {
	DefaultNumberDocuments int        `yaml:"default_number_documents"`
	MaxNumberDocuments     int        `yaml:"max_number_documents"`
	MinQuerySize           int        `yaml:"min_query_size"`
	MaxQuerySize           int        `yaml:"max_query_size"`
	ScoreWeights           [3]float64 `yaml:"score_weights"`
}

// CoIConfig configures the Center-of-Interest engine (C2).
type CoIConfig struct {
	ShiftFactor float64       `yaml:"shift_factor"`
	Threshold   float64       `yaml:"threshold"`
	MinCoIs     int           `yaml:"min_cois"`
	Horizon     time.Duration `yaml:"horizon"`
}

// IngestionConfig configures batch ingestion (C9) and schema growth (C10).
type IngestionConfig struct {
	MaxDocumentBatchSize int               `yaml:"max_document_batch_size"`
	MaxIndexedProperties int               `yaml:"max_indexed_properties"`
	IndexUpdate          IndexUpdateConfig `yaml:"index_update"`
}

// IndexUpdateConfig configures the background index-update worker (C10).
type IndexUpdateConfig struct {
	Method    string        `yaml:"method"` // "inline" | "background"
	BatchSize int           `yaml:"batch_size"`
	Sleep     time.Duration `yaml:"sleep"`
}

// TenantsConfig configures the silo manager (C8).
type TenantsConfig struct {
	EnableLegacyTenant bool `yaml:"enable_legacy_tenant"`
	EnableDev          bool `yaml:"enable_dev"`
	SchemaCacheTTL     time.Duration `yaml:"schema_cache_ttl"`
}

// ObsConfig configures tracing/metrics export.
type ObsConfig struct {
	OTLP           string `yaml:"otlp"`
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`
}

// Defaults returns a Config with the conservative defaults spec.md implies
// (e.g. RRF k=60 lives in the retrieve/rerank packages, not here).
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{AdminSchema: "centroid_silo"},
		Vector:   VectorConfig{Dimensions: 384, Metric: "cosine"},
		CoI: CoIConfig{
			ShiftFactor: 0.1,
			Threshold:   0.67,
			MinCoIs:     2,
			Horizon:     30 * 24 * time.Hour,
		},
		Personalization: PersonalizationConfig{
			DefaultNumberDocuments:  10,
			MaxNumberDocuments:      100,
			MaxNumberCandidates:     200,
			ScoreWeights:            [3]float64{1, 1, 1},
			MaxCoIsForKNN:           10,
			StoreUserHistory:        true,
			MaxStatelessHistoryCoIs: 10,
		},
		SemanticSearch: SemanticSearchConfig{
			DefaultNumberDocuments: 10,
			MaxNumberDocuments:     100,
			MinQuerySize:           1,
			MaxQuerySize:           1000,
			ScoreWeights:           [3]float64{1, 1, 1},
		},
		Ingestion: IngestionConfig{
			MaxDocumentBatchSize: 100,
			MaxIndexedProperties: 50,
			IndexUpdate:          IndexUpdateConfig{Method: "background", BatchSize: 200, Sleep: 50 * time.Millisecond},
		},
		Tenants: TenantsConfig{EnableLegacyTenant: false, EnableDev: false, SchemaCacheTTL: 5 * time.Minute},
		Observability: ObsConfig{ServiceName: "centroid", ServiceVersion: "dev"},
		LogLevel: "info",
	}
}
