// Package config resolves runtime settings from a YAML file,
// environment variables, and CLI flags, tracking where each value came
// from. Precedence: config file < environment < CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

// ResolvedValue is a setting plus its provenance.
type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

// ResolveOptions carries CLI flag values into resolution.
type ResolveOptions struct {
	ConfigPath    string
	CLILLM        string
	CLIEmbed      string
	CLIStore      string
	CLIQdrantURL  string
	CLICollection string
	CLIDBPath     string
	CLIStream     string
}

// ResolvedConfig is the full resolved setting set.
type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	StoreBackend ResolvedValue `json:"store_backend"`
	QdrantURL    ResolvedValue `json:"qdrant_url"`
	Collection   ResolvedValue `json:"collection"`
	DBPath       ResolvedValue `json:"db_path"`

	LLMProvider      ResolvedValue `json:"llm_provider"`
	LLMExtractModel  ResolvedValue `json:"llm_extract_model"`
	LLMKeywordsModel ResolvedValue `json:"llm_keywords_model"`
	LLMStream        ResolvedValue `json:"llm_stream"`

	EmbedProvider ResolvedValue `json:"embed_provider"`
	EmbedAPIKey   ResolvedValue `json:"embed_api_key"`
	EmbedEndpoint ResolvedValue `json:"embed_endpoint"`

	LLMKeys map[string]ResolvedValue `json:"llm_keys,omitempty"`
}

type fileConfig struct {
	Store struct {
		Backend    string `yaml:"backend"`
		QdrantURL  string `yaml:"qdrant_url"`
		Collection string `yaml:"collection"`
		DBPath     string `yaml:"db_path"`
	} `yaml:"store"`
	LLM struct {
		Provider      string `yaml:"provider"`
		APIKey        string `yaml:"api_key"`
		ExtractModel  string `yaml:"extract_model"`
		KeywordsModel string `yaml:"keywords_model"`
		Stream        string `yaml:"stream"`
	} `yaml:"llm"`
	Embed struct {
		Provider string `yaml:"provider"`
		APIKey   string `yaml:"api_key"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"embed"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".vitae", "config.yaml")
}

// ResolveConfig loads the config file (missing file is not an error)
// and layers environment and CLI values over it.
func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{
		ConfigPath: path,
		LLMKeys:    map[string]ResolvedValue{},
	}

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.StoreBackend, cfg.Store.Backend, SourceConfig, path)
		apply(&out.QdrantURL, cfg.Store.QdrantURL, SourceConfig, path)
		apply(&out.Collection, cfg.Store.Collection, SourceConfig, path)
		apply(&out.DBPath, cfg.Store.DBPath, SourceConfig, path)
		apply(&out.LLMProvider, cfg.LLM.Provider, SourceConfig, path)
		apply(&out.LLMExtractModel, cfg.LLM.ExtractModel, SourceConfig, path)
		apply(&out.LLMKeywordsModel, cfg.LLM.KeywordsModel, SourceConfig, path)
		apply(&out.LLMStream, cfg.LLM.Stream, SourceConfig, path)
		apply(&out.EmbedProvider, cfg.Embed.Provider, SourceConfig, path)
		apply(&out.EmbedEndpoint, cfg.Embed.Endpoint, SourceConfig, path)

		if key := strings.TrimSpace(cfg.Embed.APIKey); key != "" {
			out.EmbedAPIKey = ResolvedValue{Value: key, Source: SourceConfig, From: path}
		}

		if key := strings.TrimSpace(cfg.LLM.APIKey); key != "" {
			providers := map[string]struct{}{}
			for _, v := range []string{cfg.LLM.Provider, cfg.LLM.ExtractModel, cfg.LLM.KeywordsModel} {
				p := providerOf(v)
				if p != "" {
					providers[p] = struct{}{}
				}
			}
			if len(providers) == 0 {
				providers["default"] = struct{}{}
			}
			for p := range providers {
				out.LLMKeys[p] = ResolvedValue{Value: key, Source: SourceConfig, From: path}
			}
		}
	}

	applyEnv(&out.StoreBackend, "VITAE_STORE")
	applyEnv(&out.QdrantURL, "VITAE_QDRANT_URL")
	applyEnv(&out.Collection, "VITAE_COLLECTION")
	applyEnv(&out.DBPath, "VITAE_DB")
	applyEnv(&out.DBPath, "VITAE_DB_PATH")

	applyEnv(&out.LLMProvider, "VITAE_LLM")
	applyEnv(&out.LLMExtractModel, "VITAE_LLM_EXTRACT")
	applyEnv(&out.LLMKeywordsModel, "VITAE_LLM_KEYWORDS")
	applyEnv(&out.LLMStream, "VITAE_LLM_STREAM")

	applyEnv(&out.EmbedProvider, "VITAE_EMBED")
	applyEnv(&out.EmbedEndpoint, "VITAE_EMBED_ENDPOINT")
	if v := strings.TrimSpace(os.Getenv("VITAE_EMBED_API_KEY")); v != "" {
		out.EmbedAPIKey = ResolvedValue{Value: v, Source: SourceEnv, From: "VITAE_EMBED_API_KEY"}
	}

	for env, provider := range map[string]string{
		"OPENROUTER_API_KEY": "openrouter",
		"OPENAI_API_KEY":     "openai",
	} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			out.LLMKeys[provider] = ResolvedValue{Value: v, Source: SourceEnv, From: env}
		}
	}

	apply(&out.LLMProvider, opts.CLILLM, SourceCLI, "--llm")
	apply(&out.LLMStream, opts.CLIStream, SourceCLI, "--stream")
	apply(&out.EmbedProvider, opts.CLIEmbed, SourceCLI, "--embed")
	apply(&out.StoreBackend, opts.CLIStore, SourceCLI, "--store")
	apply(&out.QdrantURL, opts.CLIQdrantURL, SourceCLI, "--qdrant-url")
	apply(&out.Collection, opts.CLICollection, SourceCLI, "--collection")
	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")

	if out.DBPath.Value != "" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}

	return out, nil
}

// EffectiveLLMModel picks the provider/model for a purpose (extract,
// keywords), falling back to the general provider and then to the
// built-in default.
func (r ResolvedConfig) EffectiveLLMModel(purpose, fallback string) ResolvedValue {
	purpose = strings.ToLower(strings.TrimSpace(purpose))

	candidates := []ResolvedValue{}
	switch purpose {
	case "extract":
		candidates = append(candidates, r.LLMExtractModel)
	case "keywords":
		candidates = append(candidates, r.LLMKeywordsModel)
	}
	candidates = append(candidates, r.LLMProvider)

	for _, c := range candidates {
		if strings.TrimSpace(c.Value) == "" {
			continue
		}
		if strings.Contains(c.Value, "/") {
			return c
		}
		if fallback != "" && strings.HasPrefix(strings.ToLower(fallback), strings.ToLower(strings.TrimSpace(c.Value))+"/") {
			return ResolvedValue{Value: fallback, Source: c.Source, From: c.From}
		}
	}

	if strings.TrimSpace(fallback) != "" {
		return ResolvedValue{Value: fallback, Source: SourceDefault, From: "built-in default"}
	}
	return ResolvedValue{}
}

// StreamEnabled reports whether streaming completions are on.
// Unset or unparsable values mean off.
func (r ResolvedConfig) StreamEnabled() bool {
	v, err := strconv.ParseBool(strings.TrimSpace(r.LLMStream.Value))
	return err == nil && v
}

// APIKeyForProvider returns the key for a provider name or
// provider/model string, falling back to the default key.
func (r ResolvedConfig) APIKeyForProvider(providerOrModel string) ResolvedValue {
	provider := providerOf(providerOrModel)
	if provider == "" {
		return ResolvedValue{}
	}
	if v, ok := r.LLMKeys[provider]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	if v, ok := r.LLMKeys["default"]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	return ResolvedValue{}
}

func providerOf(providerOrModel string) string {
	v := strings.ToLower(strings.TrimSpace(providerOrModel))
	if v == "" {
		return ""
	}
	if idx := strings.Index(v, "/"); idx > 0 {
		return v[:idx]
	}
	return v
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
