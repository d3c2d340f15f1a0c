// Package model defines the core data types shared across ragforge:
// documents and chunks produced while ingesting, vectors and scored
// chunks produced while retrieving, and the canonical pipeline
// configuration shape plugins are registered and resolved against.
package model

import "time"

// PluginKind is the closed set of plugin roles a pipeline composes.
type PluginKind string

const (
	KindLoader    PluginKind = "loader"
	KindEmbedder  PluginKind = "embedder"
	KindRetriever PluginKind = "retriever"
	KindLLM       PluginKind = "llm"
	KindReranker  PluginKind = "reranker"
)

// CanonicalKindOrder is the order legacy-shape config sections are
// projected into when normalized, per the configuration normalizer.
var CanonicalKindOrder = []PluginKind{KindLoader, KindEmbedder, KindRetriever, KindReranker, KindLLM}

// Document is produced by a loader and is immutable after load.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]any
	// Source records the loader-reported origin (file path, URL, etc.).
	// Not part of the plugin ABI; used only for diagnostics.
	Source string
}

// Chunk is a bounded text segment produced from a Document.
type Chunk struct {
	Text     string
	Metadata map[string]any
}

// Vector is a fixed-length sequence of 32-bit floats. All vectors
// produced by a given embedder instance must share identical length.
type Vector []float32

// ScoredChunk pairs a Chunk with its relevance score. Higher score is
// more relevant; order among equal scores is producer-defined but must
// be stable.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// SpecSource enumerates where a plugin implementation comes from.
type SpecSource string

const (
	SourceRegistry SpecSource = "registry"
	SourceLocal    SpecSource = "local"
	SourceGit      SpecSource = "git"
	SourceNPM      SpecSource = "npm"
)

// PluginSpec is the normalized (object) form of a plugin reference. A
// bare name in input config implies Version "latest" and Source
// "registry"; the normalizer always produces this struct form.
type PluginSpec struct {
	Name     string
	Version  string
	Source   SpecSource
	URL      string         `json:"url,omitempty"`
	Path     string         `json:"path,omitempty"`
	Config   map[string]any `json:"config,omitempty"`
	Enabled  bool
	Fallback string `json:"fallback,omitempty"`
}

// PipelineStage names one step of the canonical pipeline order together
// with the plugin name to use and any per-stage options.
type PipelineStage struct {
	Stage   PluginKind
	Name    string
	Options map[string]any
}

// PipelineDef is the pipeline section of a canonical PipelineConfig.
type PipelineDef struct {
	Stages  []PipelineStage
	Retries map[string]any
	Timeout time.Duration
}

// PipelineConfig is the canonical, normalized configuration shape both
// legacy and enhanced input shapes collapse into.
type PipelineConfig struct {
	Namespace     string
	Plugins       map[PluginKind]map[string]PluginSpec
	Pipeline      PipelineDef
	Performance   map[string]any
	Observability map[string]any
	Metadata      ConfigMetadata
	// Cache, Limits, Storage are preserved verbatim from known
	// top-level input fields per the normalizer's rule 5.
	Cache   map[string]any
	Limits  map[string]any
	Storage map[string]any
}

// ConfigMetadata is the metadata section of a canonical PipelineConfig,
// supplemented with timestamps external tooling relies on to round-trip
// persisted configuration.
type ConfigMetadata struct {
	Name      string
	Version   string
	Extra     map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IngestResult is the return envelope of a pipeline Ingest operation.
type IngestResult struct {
	DocumentCount int
	ChunkCount    int
	VectorCount   int
	Duration      time.Duration
	Warnings      []string
}

// QueryResult is the return envelope of a pipeline Query operation.
type QueryResult struct {
	Chunks   []ScoredChunk
	Answer   string
	Duration time.Duration
	Warnings []string
}

// InstalledPlugin records a plugin that has been successfully installed
// from the marketplace into the local cache directory.
type InstalledPlugin struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Kind        PluginKind        `json:"kind"`
	InstallPath string            `json:"installPath"`
	Checksums   map[string]string `json:"checksums"`
	InstalledAt time.Time         `json:"installedAt"`
	LastUsed    *time.Time        `json:"lastUsed,omitempty"`
}
