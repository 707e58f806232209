// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the roundtable CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/roundtable/internal/secrets"
	"github.com/pdiddy/roundtable/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// secretDefault returns the secret value for key if it exists, or fallback otherwise.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return ""
}

// rootCmd is the base command for the roundtable CLI.
var rootCmd = &cobra.Command{
	Use:   "roundtable",
	Short: "Simulated round-table discussions that curate knowledge on a topic",
	Long: `roundtable runs a simulated multi-party discussion on a topic. A panel of
generated experts, steered by a moderator, surfaces facts through web
retrieval; every cited fact is filed into a hierarchical, citation-tracked
knowledge base that can be linearized into a report.

Use "run" to hold a discussion, "report" to render a stored session's
knowledge base, and "session" to inspect stored sessions.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./roundtable.yaml or ~/.config/roundtable/config.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("roundtable")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "roundtable"))
		}
	}

	viper.SetEnvPrefix("ROUNDTABLE")
	viper.AutomaticEnv()

	viper.SetDefault("llm.model", "gpt-4.1-mini")
	viper.SetDefault("embedding.provider", "ollama")
	viper.SetDefault("retrieval.enable_bing", true)
	viper.SetDefault("retrieval.enable_tavily", true)
	viper.SetDefault("retrieval.timeout", 15*time.Second)
	viper.SetDefault("discourse.enable_moderator", true)
	viper.SetDefault("discourse.moderator_check_turns", 3)
	viper.SetDefault("session.data_dir", "sessions")

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// engineConfig assembles the full configuration from viper and secrets.
func engineConfig() types.EngineConfig {
	return types.EngineConfig{
		LLM: types.LLMConfig{
			Model:           viper.GetString("llm.model"),
			APIKey:          secretDefault("openai-api-key", viper.GetString("llm.api_key")),
			MaxRetries:      viper.GetInt("llm.max_retries"),
			MaxOutputTokens: viper.GetInt("llm.max_output_tokens"),
		},
		Embedding: types.EmbeddingConfig{
			Provider:       types.EmbeddingProvider(viper.GetString("embedding.provider")),
			OllamaEndpoint: viper.GetString("embedding.ollama_endpoint"),
			OllamaModel:    viper.GetString("embedding.ollama_model"),
			OpenAIModel:    viper.GetString("embedding.openai_model"),
			APIKey:         secretDefault("openai-api-key", viper.GetString("embedding.api_key")),
		},
		Retrieval: types.RetrievalConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   viper.GetDuration("retrieval.timeout"),
				UserAgent: "roundtable/" + version,
			},
			MaxResults:   viper.GetInt("retrieval.max_results"),
			EnableBing:   viper.GetBool("retrieval.enable_bing"),
			BingAPIKey:   secretDefault("bing-api-key", viper.GetString("retrieval.bing_api_key")),
			EnableTavily: viper.GetBool("retrieval.enable_tavily"),
			TavilyAPIKey: secretDefault("tavily-api-key", viper.GetString("retrieval.tavily_api_key")),
		},
		Discourse: types.DiscourseConfig{
			ModeratorCheckTurns: viper.GetInt("discourse.moderator_check_turns"),
			EnableModerator:     viper.GetBool("discourse.enable_moderator"),
			RAGOnly:             viper.GetBool("discourse.rag_only"),
			NodeExpandThreshold: viper.GetInt("discourse.node_expand_threshold"),
			PlacementCandidates: viper.GetInt("discourse.placement_candidates"),
			PlacementWorkers:    viper.GetInt("discourse.placement_workers"),
			WarmStartExperts:    viper.GetInt("discourse.warm_start_experts"),
			WarmStartRounds:     viper.GetInt("discourse.warm_start_rounds"),
			ModeratorRankTurns:  viper.GetInt("discourse.moderator_rank_turns"),
			SynthesisWorkers:    viper.GetInt("discourse.synthesis_workers"),
		},
		Session: types.SessionConfig{
			DataDir: viper.GetString("session.data_dir"),
		},
	}
}

// newLogger builds the CLI logger.
func newLogger() (*zap.Logger, error) {
	verbose, _ := rootCmd.PersistentFlags().GetBool("verbose")
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
