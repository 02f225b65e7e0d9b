package config

import "time"

// Config is the root configuration.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging" json:"logging"`
	Database  DatabaseConfig  `mapstructure:"database" json:"database"`
	Embedding EmbeddingConfig `mapstructure:"embedding" json:"embedding"`
	Vector    VectorConfig    `mapstructure:"vector" json:"vector"`
	Ranking   RankingConfig   `mapstructure:"ranking" json:"ranking"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline" json:"pipeline"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level       string `mapstructure:"level" json:"level"`
	Development bool   `mapstructure:"development" json:"development"`
}

// DatabaseConfig locates the relational memory store.
type DatabaseConfig struct {
	Path string `mapstructure:"path" json:"path"`
}

// EmbeddingConfig configures the text embedding transport.
type EmbeddingConfig struct {
	// Provider is "openai", "openai_compatible" or "local".
	Provider string        `mapstructure:"provider" json:"provider"`
	BaseURL  string        `mapstructure:"base_url" json:"base_url"`
	Model    string        `mapstructure:"model" json:"model"`
	APIKey   string        `mapstructure:"api_key" json:"api_key"`
	Dim      int           `mapstructure:"dim" json:"dim"`
	Timeout  time.Duration `mapstructure:"timeout" json:"timeout"`
}

// VectorConfig selects and configures the vector index backend.
type VectorConfig struct {
	// Backend is "local" or "qdrant".
	Backend string            `mapstructure:"backend" json:"backend"`
	Local   LocalIndexConfig  `mapstructure:"local" json:"local"`
	Qdrant  QdrantIndexConfig `mapstructure:"qdrant" json:"qdrant"`
}

// LocalIndexConfig configures the in-process flat index.
type LocalIndexConfig struct {
	// IndexPath is the path of the vector slot file. The metadata bundle
	// lives next to it with a .meta extension.
	IndexPath string `mapstructure:"index_path" json:"index_path"`
	Dim       int    `mapstructure:"dim" json:"dim"`
	// SaveEvery persists the index after this many upserts.
	SaveEvery int `mapstructure:"save_every" json:"save_every"`
}

// QdrantIndexConfig configures the remote Qdrant adapter.
type QdrantIndexConfig struct {
	URL        string        `mapstructure:"url" json:"url"`
	APIKey     string        `mapstructure:"api_key" json:"api_key"`
	Collection string        `mapstructure:"collection" json:"collection"`
	Dim        int           `mapstructure:"dim" json:"dim"`
	Timeout    time.Duration `mapstructure:"timeout" json:"timeout"`
}

// RankingConfig holds the hybrid re-ranking weights.
type RankingConfig struct {
	Alpha         float64 `mapstructure:"alpha" json:"alpha"`
	Beta          float64 `mapstructure:"beta" json:"beta"`
	Gamma         float64 `mapstructure:"gamma" json:"gamma"`
	Delta         float64 `mapstructure:"delta" json:"delta"`
	HalflifeHours float64 `mapstructure:"halflife_hours" json:"halflife_hours"`
}

// PipelineConfig controls the retrieval hooks around response generation.
type PipelineConfig struct {
	PreplannerEnabled  bool    `mapstructure:"preplanner_enabled" json:"preplanner_enabled"`
	SearchScopeDays    int     `mapstructure:"search_scope_days" json:"search_scope_days"`
	SameSessionOnly    bool    `mapstructure:"same_session_only" json:"same_session_only"`
	BoundaryThreshold  float64 `mapstructure:"boundary_threshold" json:"boundary_threshold"`
	NoveltyThreshold   float64 `mapstructure:"novelty_threshold" json:"novelty_threshold"`
	HighlightCount     int     `mapstructure:"highlight_count" json:"highlight_count"`
	HighlightMaxLength int     `mapstructure:"highlight_max_length" json:"highlight_max_length"`
	SummaryMaxBytes    int     `mapstructure:"summary_max_bytes" json:"summary_max_bytes"`
}
