// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make
// network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "roundtable/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// LLMConfig holds shared settings for components that call a
// text-generation API.
type LLMConfig struct {
	// Model is the model identifier (e.g. "gpt-4.1-mini").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxRetries is the number of retry attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// MaxOutputTokens caps the response length (default 2000).
	MaxOutputTokens int `json:"max_output_tokens" yaml:"max_output_tokens"`
}

// EmbeddingProvider identifies the embedding backend.
type EmbeddingProvider string

const (
	EmbeddingOllama EmbeddingProvider = "ollama"
	EmbeddingOpenAI EmbeddingProvider = "openai"
)

// EmbeddingConfig holds settings for the embedding capability.
type EmbeddingConfig struct {
	// Provider selects the backend: ollama or openai.
	Provider EmbeddingProvider `json:"provider" yaml:"provider"`

	// OllamaEndpoint is the local Ollama server URL (default "http://localhost:11434").
	OllamaEndpoint string `json:"ollama_endpoint,omitempty" yaml:"ollama_endpoint,omitempty"`

	// OllamaModel is the Ollama embedding model (default "embeddinggemma").
	OllamaModel string `json:"ollama_model,omitempty" yaml:"ollama_model,omitempty"`

	// OpenAIModel is the OpenAI embedding model (default "text-embedding-3-small").
	OpenAIModel string `json:"openai_model,omitempty" yaml:"openai_model,omitempty"`

	// APIKey authenticates cloud embedding providers.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
}

// RetrievalConfig holds settings for the retrieval capability.
type RetrievalConfig struct {
	HTTPConfig `yaml:",inline"`

	// MaxResults is the maximum number of results per query (default 10).
	MaxResults int `json:"max_results" yaml:"max_results"`

	// EnableBing controls whether the Bing Web Search backend is used.
	EnableBing bool `json:"enable_bing" yaml:"enable_bing"`

	// BingAPIKey is the Bing Web Search subscription key.
	BingAPIKey string `json:"bing_api_key,omitempty" yaml:"bing_api_key,omitempty"`

	// EnableTavily controls whether the Tavily backend is used.
	EnableTavily bool `json:"enable_tavily" yaml:"enable_tavily"`

	// TavilyAPIKey is the Tavily API key.
	TavilyAPIKey string `json:"tavily_api_key,omitempty" yaml:"tavily_api_key,omitempty"`
}

// DiscourseConfig holds settings for the turn-policy state machine and
// the knowledge organization modules.
type DiscourseConfig struct {
	// ModeratorCheckTurns is the number of consecutive non-questioning
	// turns after which the moderator steps in (default 3).
	ModeratorCheckTurns int `json:"moderator_check_turns" yaml:"moderator_check_turns"`

	// EnableModerator controls whether the moderator ever steps in.
	EnableModerator bool `json:"enable_moderator" yaml:"enable_moderator"`

	// RAGOnly selects the baseline mode in which every turn is answered
	// by the retrieval-only agent.
	RAGOnly bool `json:"rag_only" yaml:"rag_only"`

	// NodeExpandThreshold is the content-set size at which a node is
	// split into subsections (default 10).
	NodeExpandThreshold int `json:"node_expand_threshold" yaml:"node_expand_threshold"`

	// PlacementCandidates is the size of the embedding-ranked shortlist
	// offered to the language model during placement (default 8).
	PlacementCandidates int `json:"placement_candidates" yaml:"placement_candidates"`

	// PlacementWorkers bounds the parallel placement pool (default 4).
	PlacementWorkers int `json:"placement_workers" yaml:"placement_workers"`

	// WarmStartExperts is the number of expert perspectives generated
	// during warm start (default 3).
	WarmStartExperts int `json:"warm_start_experts" yaml:"warm_start_experts"`

	// WarmStartRounds is the number of question/answer rounds per
	// warm-start interview (default 2).
	WarmStartRounds int `json:"warm_start_rounds" yaml:"warm_start_rounds"`

	// ModeratorRankTurns is the number of recent non-questioning turns
	// the moderator mines for unused snippets (default 2).
	ModeratorRankTurns int `json:"moderator_rank_turns" yaml:"moderator_rank_turns"`

	// SynthesisWorkers bounds the parallel per-node synthesis pool used
	// during report generation (default 4).
	SynthesisWorkers int `json:"synthesis_workers" yaml:"synthesis_workers"`
}

// SessionConfig holds settings for the durable session store.
type SessionConfig struct {
	// DataDir is the directory holding the session database (default "sessions").
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

// EngineConfig groups all component configurations for a discussion run.
type EngineConfig struct {
	LLM       LLMConfig       `json:"llm" yaml:"llm"`
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding"`
	Retrieval RetrievalConfig `json:"retrieval" yaml:"retrieval"`
	Discourse DiscourseConfig `json:"discourse" yaml:"discourse"`
	Session   SessionConfig   `json:"session" yaml:"session"`
}
