package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/hurttlocker/vitae/internal/engine"
	"github.com/hurttlocker/vitae/internal/httpapi"
	mcpserver "github.com/hurttlocker/vitae/internal/mcp"
)

const version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch os.Args[1] {
	case "update":
		err = runUpdate(os.Args[2:])
	case "replace":
		err = runReplace(os.Args[2:])
	case "get":
		err = runGet(os.Args[2:])
	case "summary":
		err = runSummary(os.Args[2:])
	case "generate":
		err = runGenerate(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "mcp":
		err = runMCP(os.Args[2:])
	case "config":
		err = runConfig(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("vitae %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runUpdate(args []string) error {
	cf, rest, err := splitCommonFlags(args)
	if err != nil {
		return err
	}

	var paths []string
	req := engine.UpdateRequest{}

	for i := 0; i < len(rest); i++ {
		switch {
		case rest[i] == "--mode" && i+1 < len(rest):
			i++
			req.Mode = rest[i]
		case strings.HasPrefix(rest[i], "--mode="):
			req.Mode = strings.TrimPrefix(rest[i], "--mode=")
		case rest[i] == "--type" && i+1 < len(rest):
			i++
			req.ContentType = rest[i]
		case strings.HasPrefix(rest[i], "--type="):
			req.ContentType = strings.TrimPrefix(rest[i], "--type=")
		case rest[i] == "--section" && i+1 < len(rest):
			i++
			req.SectionHint = rest[i]
		case strings.HasPrefix(rest[i], "--section="):
			req.SectionHint = strings.TrimPrefix(rest[i], "--section=")
		case rest[i] == "--text" && i+1 < len(rest):
			i++
			req.Content = rest[i]
		case strings.HasPrefix(rest[i], "-") && rest[i] != "-":
			return fmt.Errorf("unknown flag: %s", rest[i])
		default:
			paths = append(paths, rest[i])
		}
	}

	if req.Content == "" {
		content, err := readContent(paths)
		if err != nil {
			return fmt.Errorf("usage: vitae update <file|-> [--text <content>] [--mode merge|append|replace] [--type json|markdown|text|instruction] [--section <name>]: %w", err)
		}
		req.Content = content
	}

	ctx := context.Background()
	rt, err := openRuntime(ctx, cf, needLLM)
	if err != nil {
		return err
	}
	defer rt.Close()

	result, err := rt.Engine.Update(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("Mode: %s (content: %s)\n", result.Mode, result.ContentType)
	fmt.Printf("Entries: %d new, %d modified\n", result.Merge.NewCount, result.Merge.ModifiedCount)
	return nil
}

func runReplace(args []string) error {
	cf, rest, err := splitCommonFlags(args)
	if err != nil {
		return err
	}

	var paths []string
	content := ""
	force := false

	for i := 0; i < len(rest); i++ {
		switch {
		case rest[i] == "--text" && i+1 < len(rest):
			i++
			content = rest[i]
		case rest[i] == "--yes" || rest[i] == "-y":
			force = true
		case strings.HasPrefix(rest[i], "-") && rest[i] != "-":
			return fmt.Errorf("unknown flag: %s", rest[i])
		default:
			paths = append(paths, rest[i])
		}
	}

	if content == "" {
		content, err = readContent(paths)
		if err != nil {
			return fmt.Errorf("usage: vitae replace <file|-> [--text <content>] [--yes]: %w", err)
		}
	}

	if !force {
		fmt.Fprint(os.Stderr, "This clears all stored entries before re-inserting. Continue? [y/N] ")
		var answer string
		fmt.Fscanln(os.Stdin, &answer)
		if !strings.EqualFold(strings.TrimSpace(answer), "y") {
			fmt.Println("Aborted.")
			return nil
		}
	}

	ctx := context.Background()
	rt, err := openRuntime(ctx, cf, needLLM)
	if err != nil {
		return err
	}
	defer rt.Close()

	result, err := rt.Engine.Replace(ctx, content)
	if err != nil {
		return err
	}

	fmt.Printf("Replaced resume: %d entries\n", result.EntriesAdded)
	return nil
}

func runGet(args []string) error {
	cf, rest, err := splitCommonFlags(args)
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	ctx := context.Background()
	rt, err := openRuntime(ctx, cf, needStore)
	if err != nil {
		return err
	}
	defer rt.Close()

	result := rt.Engine.Resume(ctx)
	return printJSON(result.Document)
}

func runSummary(args []string) error {
	cf, rest, err := splitCommonFlags(args)
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	ctx := context.Background()
	rt, err := openRuntime(ctx, cf, needStore)
	if err != nil {
		return err
	}
	defer rt.Close()

	return printJSON(rt.Engine.Summary(ctx))
}

func runGenerate(args []string) error {
	cf, rest, err := splitCommonFlags(args)
	if err != nil {
		return err
	}

	var paths []string
	jobDescription := ""
	showReport := false

	for i := 0; i < len(rest); i++ {
		switch {
		case rest[i] == "--text" && i+1 < len(rest):
			i++
			jobDescription = rest[i]
		case rest[i] == "--report":
			showReport = true
		case strings.HasPrefix(rest[i], "-") && rest[i] != "-":
			return fmt.Errorf("unknown flag: %s", rest[i])
		default:
			paths = append(paths, rest[i])
		}
	}

	if jobDescription == "" {
		jobDescription, err = readContent(paths)
		if err != nil {
			return fmt.Errorf("usage: vitae generate <job-description-file|-> [--text <description>] [--report]: %w", err)
		}
	}

	ctx := context.Background()
	rt, err := openRuntime(ctx, cf, needLLM)
	if err != nil {
		return err
	}
	defer rt.Close()

	result, err := rt.Engine.Generate(ctx, jobDescription)
	if err != nil {
		return err
	}

	if result.Reasoning != "" {
		fmt.Fprintf(os.Stderr, "Reasoning: %s\n", result.Reasoning)
	}
	fmt.Fprintf(os.Stderr, "Keywords: %s\n", result.Keywords)
	if showReport {
		fmt.Fprintf(os.Stderr, "Accepted %d, rejected %d entries\n",
			len(result.Report.Accepted), len(result.Report.Rejected))
	}
	return printJSON(result.Document)
}

func runServe(args []string) error {
	cf, rest, err := splitCommonFlags(args)
	if err != nil {
		return err
	}

	addr := ":8080"
	for i := 0; i < len(rest); i++ {
		switch {
		case rest[i] == "--addr" && i+1 < len(rest):
			i++
			addr = rest[i]
		case strings.HasPrefix(rest[i], "--addr="):
			addr = strings.TrimPrefix(rest[i], "--addr=")
		default:
			return fmt.Errorf("unknown flag: %s", rest[i])
		}
	}

	ctx := context.Background()
	rt, err := openRuntime(ctx, cf, needLLM)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv := httpapi.NewServer(rt.Engine)
	fmt.Fprintf(os.Stderr, "vitae %s listening on %s\n", version, addr)
	return http.ListenAndServe(addr, srv.Handler())
}

func runMCP(args []string) error {
	cf, rest, err := splitCommonFlags(args)
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	ctx := context.Background()
	rt, err := openRuntime(ctx, cf, needLLM)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv := mcpserver.NewServer(mcpserver.ServerConfig{Engine: rt.Engine, Version: version})
	return mcpserver.ServeStdio(srv)
}

func runConfig(args []string) error {
	cf, rest, err := splitCommonFlags(args)
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	cfg, err := resolve(cf)
	if err != nil {
		return err
	}
	return printJSON(cfg)
}

// readContent reads from the single named file, or stdin when the
// path is "-" or no path is given and stdin is a pipe.
func readContent(paths []string) (string, error) {
	if len(paths) > 1 {
		return "", fmt.Errorf("expected one input file, got %d", len(paths))
	}

	if len(paths) == 0 || paths[0] == "-" {
		info, err := os.Stdin.Stat()
		if err == nil && len(paths) == 0 && (info.Mode()&os.ModeCharDevice) != 0 {
			return "", fmt.Errorf("no input file and stdin is a terminal")
		}
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(paths[0])
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", paths[0], err)
	}
	return string(data), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage() {
	fmt.Printf(`vitae %s — Resume record engine

Usage:
  vitae <command> [arguments]

Commands:
  update <file|->     Merge resume content into the stored entries
  replace <file|->    Clear the store and re-parse a full resume
  get                 Print the reconstructed JSON Resume document
  summary             Print per-section entry counts and samples
  generate <file|->   Build a resume tailored to a job description
  serve               Run the HTTP API (default :8080)
  mcp                 Run the MCP server over stdio
  config              Print the resolved configuration with provenance
  version             Print version

Update Flags:
  --text <content>    Inline content instead of a file
  --mode <mode>       merge (default), append, or replace
  --type <type>       json, markdown, text, or instruction (default: auto-detect)
  --section <name>    Hint the extractor toward one section

Common Flags:
  --config <path>     Config file (default ~/.vitae/config.yaml)
  --store <backend>   sqlite (default) or qdrant
  --db <path>         SQLite database path
  --qdrant-url <url>  Qdrant base URL
  --collection <name> Qdrant collection name
  --llm <spec>        LLM as provider/model (e.g. openai/gpt-4o-mini)
  --embed <spec>      Embedder as provider/model
  --stream            Use streaming LLM completions
  -h, --help          Show this help message
  -v, --version       Print version
`, version)
}
