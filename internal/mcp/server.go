// Package mcp provides a Model Context Protocol server for Vitae.
//
// It exposes the resume engine (update, full replace, reconstruction,
// summary, tailored generation) as MCP tools plus the reconstructed
// document as an MCP resource, over stdio transport.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hurttlocker/vitae/internal/engine"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Engine  *engine.Engine
	Version string // version string for MCP server info
}

// opMu serializes tool calls. The mcp-go library dispatches handlers
// concurrently via goroutines, and the merge path's read-then-write
// against the record store is not atomic, so interleaved updates can
// drop one side's merge.
var opMu sync.Mutex

// NewServer creates a configured MCP server with all Vitae tools and
// resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"Vitae",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerUpdateTool(s, cfg.Engine)
	registerReplaceTool(s, cfg.Engine)
	registerResumeTool(s, cfg.Engine)
	registerSummaryTool(s, cfg.Engine)
	registerGenerateTool(s, cfg.Engine)

	registerResumeResource(s, cfg.Engine)

	return s
}

// --- Tools ---

func registerUpdateTool(s *server.MCPServer, eng *engine.Engine) {
	tool := mcp.NewTool("vitae_update",
		mcp.WithDescription("Add or merge resume information from free text, markdown, or JSON. Edit instructions like 'change my email to x@y.com' modify the matching stored entry. Similar entries are merged field-by-field; use mode=append to always insert, mode=replace to rewrite the affected sections."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("The resume content to ingest"),
		),
		mcp.WithString("mode",
			mcp.Description("Write mode: merge (default), append, or replace"),
			mcp.Enum("merge", "append", "replace"),
		),
		mcp.WithString("content_type",
			mcp.Description("Content format: auto (default), json, markdown, text, or instruction"),
			mcp.Enum("auto", "json", "markdown", "text", "instruction"),
		),
		mcp.WithString("section_hint",
			mcp.Description("Optional hint about which section the content updates (e.g. 'work')"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		opMu.Lock()
		defer opMu.Unlock()

		content, err := req.RequireString("content")
		if err != nil {
			return mcp.NewToolResultError("content is required"), nil
		}

		update := engine.UpdateRequest{Content: content}
		if mode, err := req.RequireString("mode"); err == nil {
			update.Mode = mode
		}
		if ct, err := req.RequireString("content_type"); err == nil {
			update.ContentType = ct
		}
		if hint, err := req.RequireString("section_hint"); err == nil {
			update.SectionHint = hint
		}

		result, err := eng.Update(ctx, update)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("update error: %v", err)), nil
		}

		data, _ := json.MarshalIndent(result, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerReplaceTool(s *server.MCPServer, eng *engine.Engine) {
	tool := mcp.NewTool("vitae_replace",
		mcp.WithDescription("Replace the ENTIRE stored resume with new content. Clears every existing record and re-inserts from scratch. The content must describe a complete resume including a name."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("The complete resume content"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		opMu.Lock()
		defer opMu.Unlock()

		content, err := req.RequireString("content")
		if err != nil {
			return mcp.NewToolResultError("content is required"), nil
		}

		result, err := eng.Replace(ctx, content)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("replace error: %v", err)), nil
		}

		data, _ := json.MarshalIndent(result, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerResumeTool(s *server.MCPServer, eng *engine.Engine) {
	tool := mcp.NewTool("vitae_resume",
		mcp.WithDescription("Reconstruct and return the complete resume document from all stored records."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		opMu.Lock()
		defer opMu.Unlock()

		result := eng.Resume(ctx)
		data, _ := json.MarshalIndent(result, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerSummaryTool(s *server.MCPServer, eng *engine.Engine) {
	tool := mcp.NewTool("vitae_summary",
		mcp.WithDescription("Return per-section record counts and a small preview (contact, companies, positions, top skills) without the full resume."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		opMu.Lock()
		defer opMu.Unlock()

		data, _ := json.MarshalIndent(eng.Summary(ctx), "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerGenerateTool(s *server.MCPServer, eng *engine.Engine) {
	tool := mcp.NewTool("vitae_generate",
		mcp.WithDescription("Generate a tailored resume for a job description: extracts keywords, ranks stored records by relevance, and assembles a capped document with an audit report."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("job_description",
			mcp.Required(),
			mcp.Description("The job description to tailor the resume for"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		opMu.Lock()
		defer opMu.Unlock()

		jobDescription, err := req.RequireString("job_description")
		if err != nil {
			return mcp.NewToolResultError("job_description is required"), nil
		}

		result, err := eng.Generate(ctx, jobDescription)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("generate error: %v", err)), nil
		}

		data, _ := json.MarshalIndent(result, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

// --- Resources ---

func registerResumeResource(s *server.MCPServer, eng *engine.Engine) {
	resource := mcp.NewResource(
		"vitae://resume",
		"Resume",
		mcp.WithResourceDescription("The complete reconstructed resume document."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		opMu.Lock()
		defer opMu.Unlock()

		result := eng.Resume(ctx)
		data, _ := json.MarshalIndent(result, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}

// ServeStdio runs the server on stdin/stdout until the client
// disconnects.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
