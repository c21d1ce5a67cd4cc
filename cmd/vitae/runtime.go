package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hurttlocker/vitae/internal/config"
	"github.com/hurttlocker/vitae/internal/embed"
	"github.com/hurttlocker/vitae/internal/engine"
	"github.com/hurttlocker/vitae/internal/extract"
	"github.com/hurttlocker/vitae/internal/llm"
	"github.com/hurttlocker/vitae/internal/store"
)

const (
	defaultLLMSpec    = "openai/gpt-4o-mini"
	defaultEmbedSpec  = "openai/text-embedding-3-small"
	defaultQdrantURL  = "http://localhost:6333"
	defaultCollection = "resume"

	// Vector size used when the collection must be created before the
	// embedder has produced a vector (text-embedding-3-small).
	defaultDimensions = 1536
)

// runtimeNeed says how much of the stack a command requires. Read-only
// commands skip LLM provider construction so they work without API keys.
type runtimeNeed int

const (
	needStore runtimeNeed = iota
	needLLM
)

type commonFlags struct {
	configPath string
	llm        string
	embed      string
	store      string
	qdrantURL  string
	collection string
	dbPath     string
	stream     string
}

// splitCommonFlags strips the flags shared by every command and
// returns the rest for the command's own loop.
func splitCommonFlags(args []string) (commonFlags, []string, error) {
	var cf commonFlags
	rest := make([]string, 0, len(args))

	take := func(dst *string, i *int, name string) (bool, error) {
		flag := "--" + name
		switch {
		case args[*i] == flag:
			if *i+1 >= len(args) {
				return false, fmt.Errorf("%s requires a value", flag)
			}
			*i = *i + 1
			*dst = args[*i]
			return true, nil
		case strings.HasPrefix(args[*i], flag+"="):
			*dst = strings.TrimPrefix(args[*i], flag+"=")
			return true, nil
		}
		return false, nil
	}

	for i := 0; i < len(args); i++ {
		// --stream is a bare boolean, unlike the valued flags below.
		if args[i] == "--stream" {
			cf.stream = "true"
			continue
		}
		if strings.HasPrefix(args[i], "--stream=") {
			cf.stream = strings.TrimPrefix(args[i], "--stream=")
			continue
		}

		matched := false
		for name, dst := range map[string]*string{
			"config":     &cf.configPath,
			"llm":        &cf.llm,
			"embed":      &cf.embed,
			"store":      &cf.store,
			"qdrant-url": &cf.qdrantURL,
			"collection": &cf.collection,
			"db":         &cf.dbPath,
		} {
			ok, err := take(dst, &i, name)
			if err != nil {
				return cf, nil, err
			}
			if ok {
				matched = true
				break
			}
		}
		if !matched {
			rest = append(rest, args[i])
		}
	}
	return cf, rest, nil
}

func resolve(cf commonFlags) (config.ResolvedConfig, error) {
	return config.ResolveConfig(config.ResolveOptions{
		ConfigPath:    cf.configPath,
		CLILLM:        cf.llm,
		CLIEmbed:      cf.embed,
		CLIStore:      cf.store,
		CLIQdrantURL:  cf.qdrantURL,
		CLICollection: cf.collection,
		CLIDBPath:     cf.dbPath,
		CLIStream:     cf.stream,
	})
}

// runtime is the assembled stack behind a single CLI invocation.
type runtime struct {
	Engine *engine.Engine
	store  store.VectorStore
}

func (rt *runtime) Close() {
	if rt.store != nil {
		rt.store.Close()
	}
}

func openRuntime(ctx context.Context, cf commonFlags, need runtimeNeed) (*runtime, error) {
	cfg, err := resolve(cf)
	if err != nil {
		return nil, err
	}

	// Read-only commands never embed, so they work without embedding
	// credentials.
	var embedder embed.Embedder = noEmbedder{}
	if need >= needLLM {
		embedder, err = buildEmbedder(cfg)
		if err != nil {
			return nil, err
		}
	}

	vs, err := openStore(ctx, cfg, embedder)
	if err != nil {
		return nil, err
	}

	var extractor *extract.Extractor
	if need >= needLLM {
		extractor, err = buildExtractor(cfg)
		if err != nil {
			vs.Close()
			return nil, err
		}
	}

	library := store.NewLibrary(vs, embedder)
	return &runtime{Engine: engine.New(library, extractor), store: vs}, nil
}

func buildEmbedder(cfg config.ResolvedConfig) (embed.Embedder, error) {
	spec := cfg.EmbedProvider.Value
	if spec == "" {
		spec = defaultEmbedSpec
	}

	ec, err := embed.ParseFlag(spec)
	if err != nil {
		return nil, err
	}
	if v := cfg.EmbedEndpoint.Value; v != "" {
		ec.Endpoint = v
	}
	if v := cfg.EmbedAPIKey.Value; v != "" {
		ec.APIKey = v
	}

	client, err := embed.NewClient(ec)
	if err != nil {
		return nil, fmt.Errorf("embedder %s: %w", spec, err)
	}
	return client, nil
}

func openStore(ctx context.Context, cfg config.ResolvedConfig, embedder embed.Embedder) (store.VectorStore, error) {
	backend := strings.ToLower(cfg.StoreBackend.Value)
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "sqlite":
		path := cfg.DBPath.Value
		if path == "" {
			path = defaultDBPath()
		}
		if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating %s: %w", dir, err)
			}
		}
		return store.NewSQLiteStore(path)

	case "qdrant":
		url := cfg.QdrantURL.Value
		if url == "" {
			url = defaultQdrantURL
		}
		collection := cfg.Collection.Value
		if collection == "" {
			collection = defaultCollection
		}
		qs := store.NewQdrantStore(url, collection)
		dims := embedder.Dimensions()
		if dims == 0 {
			dims = defaultDimensions
		}
		if err := qs.EnsureCollection(ctx, dims); err != nil {
			return nil, err
		}
		return qs, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q (supported: sqlite, qdrant)", backend)
	}
}

func buildExtractor(cfg config.ResolvedConfig) (*extract.Extractor, error) {
	spec := cfg.EffectiveLLMModel("extract", defaultLLMSpec)

	pc, err := llm.ParseProviderFlag(spec.Value)
	if err != nil {
		return nil, err
	}
	if key := cfg.APIKeyForProvider(spec.Value); key.Value != "" {
		pc.APIKey = key.Value
	}

	provider, err := llm.NewProvider(pc)
	if err != nil {
		return nil, err
	}

	extractor := extract.NewExtractor(provider, cfg.StreamEnabled())

	// Keyword calls reuse the extract provider's endpoint and key; a
	// distinct keywords model only swaps the model name per request.
	kwSpec := cfg.EffectiveLLMModel("keywords", spec.Value)
	if kwSpec.Value != spec.Value {
		kc, err := llm.ParseProviderFlag(kwSpec.Value)
		if err != nil {
			return nil, fmt.Errorf("keywords model: %w", err)
		}
		extractor.UseKeywordsModel(kc.Model)
	}

	return extractor, nil
}

type noEmbedder struct{}

func (noEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("command does not embed")
}

func (noEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("command does not embed")
}

func (noEmbedder) Dimensions() int { return 0 }

func defaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".vitae", "vitae.db")
}
