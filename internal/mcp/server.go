package mcp

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/lotview/stickercheck/internal/config"
	"github.com/lotview/stickercheck/internal/extract"
	"github.com/lotview/stickercheck/internal/match"
	"github.com/lotview/stickercheck/internal/pipeline"
	"github.com/lotview/stickercheck/internal/segment"
	"github.com/lotview/stickercheck/internal/vocab"
)

// Pipeline is the verification surface the server exposes over MCP.
type Pipeline interface {
	ExtractFeatures(ctx context.Context, origin string) ([]segment.FeatureStatement, extract.ExtractedText, error)
	MapOrigin(ctx context.Context, origin string) ([]match.Result, extract.ExtractedText, error)
	VerifyRecord(ctx context.Context, origin string) (*pipeline.RunResult, error)
}

// Vocabulary is the editable canonical feature mapping.
type Vocabulary interface {
	Len() int
	Snapshot() []vocab.Entry
	AddVariant(name, text string) error
	ReplaceVariant(name, oldText, newText string) error
}

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	verifier  Pipeline
	vocab     Vocabulary
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, verifier Pipeline, vocabulary Vocabulary) (*Server, error) {
	if verifier == nil {
		return nil, fmt.Errorf("verifier cannot be nil")
	}
	if vocabulary == nil {
		return nil, fmt.Errorf("vocabulary cannot be nil")
	}

	// Create MCP server
	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false), // We don't support dynamic tool capabilities
	)

	s := &Server{
		config:    cfg,
		verifier:  verifier,
		vocab:     vocabulary,
		mcpServer: mcpServer,
	}

	// Register tools
	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	// Register sticker extract features tool
	extractFeaturesTool := mcp.NewTool(
		"sticker_extract_features",
		mcp.WithDescription("Extract feature statements from a window sticker document (URL or local path)"),
		mcp.WithString("origin",
			mcp.Required(),
			mcp.Description("Sticker URL or local file path"),
		),
	)
	s.mcpServer.AddTool(extractFeaturesTool, s.handleExtractFeatures)

	// Register sticker map features tool
	mapFeaturesTool := mcp.NewTool(
		"sticker_map_features",
		mcp.WithDescription("Extract features from a window sticker and map them onto the canonical vocabulary"),
		mcp.WithString("origin",
			mcp.Required(),
			mcp.Description("Sticker URL or local file path"),
		),
	)
	s.mcpServer.AddTool(mapFeaturesTool, s.handleMapFeatures)

	// Register sticker verify tool
	verifyTool := mcp.NewTool(
		"sticker_verify",
		mcp.WithDescription("Run the full verification pass: extract, map, and reconcile the "+
			"inventory checklist against the sticker"),
		mcp.WithString("origin",
			mcp.Required(),
			mcp.Description("Sticker URL or local file path"),
		),
	)
	s.mcpServer.AddTool(verifyTool, s.handleVerify)

	// Register vocabulary list tool
	vocabListTool := mcp.NewTool(
		"vocab_list",
		mcp.WithDescription("List the canonical feature vocabulary with all recognized variants"),
	)
	s.mcpServer.AddTool(vocabListTool, s.handleVocabList)

	// Register vocabulary add variant tool
	vocabAddVariantTool := mcp.NewTool(
		"vocab_add_variant",
		mcp.WithDescription("Add a recognized variant phrase to a canonical feature (creates the feature if missing)"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Canonical feature name"),
		),
		mcp.WithString("variant",
			mcp.Required(),
			mcp.Description("Variant phrase to recognize"),
		),
	)
	s.mcpServer.AddTool(vocabAddVariantTool, s.handleVocabAddVariant)

	// Register vocabulary replace variant tool
	vocabReplaceVariantTool := mcp.NewTool(
		"vocab_replace_variant",
		mcp.WithDescription("Replace an existing variant phrase of a canonical feature"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Canonical feature name"),
		),
		mcp.WithString("old",
			mcp.Required(),
			mcp.Description("Variant phrase to replace"),
		),
		mcp.WithString("new",
			mcp.Required(),
			mcp.Description("Replacement variant phrase"),
		),
	)
	s.mcpServer.AddTool(vocabReplaceVariantTool, s.handleVocabReplaceVariant)

	// Register server info tool
	serverInfoTool := mcp.NewTool(
		"server_info",
		mcp.WithDescription("Get server information, available tools, and usage guidance"),
	)
	s.mcpServer.AddTool(serverInfoTool, s.handleServerInfo)
}

// Handler functions
func (s *Server) handleExtractFeatures(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	origin, err := request.RequireString("origin")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	statements, text, err := s.verifier.ExtractFeatures(ctx, origin)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	responseText := s.formatExtraction(origin, text)
	if text.Empty() {
		return mcp.NewToolResultText(responseText), nil
	}

	responseText += fmt.Sprintf("\nFeature statements (%d):\n", len(statements))
	for i, st := range statements {
		responseText += fmt.Sprintf("%d. %s [%s, line %d]\n", i+1, st.Text, st.Method, st.SourceLine)
	}

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleMapFeatures(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	origin, err := request.RequireString("origin")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	results, text, err := s.verifier.MapOrigin(ctx, origin)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	responseText := s.formatExtraction(origin, text)
	responseText += "\n" + s.formatMatches(results)
	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleVerify(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	origin, err := request.RequireString("origin")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.verifier.VerifyRecord(ctx, origin)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	responseText := s.formatVerifyResult(result)
	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleVocabList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entries := s.vocab.Snapshot()

	responseText := fmt.Sprintf("Canonical feature vocabulary (%d features)\n\n", len(entries))
	for _, entry := range entries {
		responseText += fmt.Sprintf("• %s\n", entry.Name)
		responseText += fmt.Sprintf("  Variants: %s\n", strings.Join(entry.Variants, ", "))
	}

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleVocabAddVariant(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	variant, err := request.RequireString("variant")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.vocab.AddVariant(name, variant); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	responseText := fmt.Sprintf("Added variant %q to canonical feature %q", variant, name)
	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleVocabReplaceVariant(ctx context.Context, request mcp.CallToolRequest) (
	*mcp.CallToolResult, error,
) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	oldVariant, err := request.RequireString("old")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	newVariant, err := request.RequireString("new")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.vocab.ReplaceVariant(name, oldVariant, newVariant); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	responseText := fmt.Sprintf("Replaced variant %q with %q on canonical feature %q", oldVariant, newVariant, name)
	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleServerInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	responseText := fmt.Sprintf("%s v%s - Server Information\n", s.config.ServerName, s.config.Version)
	responseText += fmt.Sprintf("Vocabulary: %s (%d features)\n", s.config.VocabPath, s.vocab.Len())
	responseText += fmt.Sprintf("Cache directory: %s\n", s.config.CacheDir)
	responseText += fmt.Sprintf("Confidence threshold: %.2f\n", s.config.ConfidenceThreshold)
	responseText += fmt.Sprintf("OCR: %s at %d DPI\n\n", s.config.OCRLanguage, s.config.OCRDPI)

	responseText += "Available Tools:\n"
	tools := []struct {
		name        string
		description string
	}{
		{"sticker_extract_features", "Extract feature statements from a sticker document"},
		{"sticker_map_features", "Map extracted features onto the canonical vocabulary"},
		{"sticker_verify", "Full verification pass including checklist reconciliation"},
		{"vocab_list", "List the canonical vocabulary"},
		{"vocab_add_variant", "Add a variant phrase to a canonical feature"},
		{"vocab_replace_variant", "Replace a variant phrase"},
		{"server_info", "This information"},
	}
	for _, tool := range tools {
		responseText += fmt.Sprintf("\n• %s\n", tool.name)
		responseText += fmt.Sprintf("  Description: %s\n", tool.description)
	}

	responseText += "\nStart with sticker_map_features to preview the match vector before " +
		"running sticker_verify against a live inventory record."

	return mcp.NewToolResultText(responseText), nil
}

// Formatting methods
func (s *Server) formatExtraction(origin string, text extract.ExtractedText) string {
	out := fmt.Sprintf("Sticker: %s\n", origin)
	out += fmt.Sprintf("Extraction method: %s\n", text.Method)
	out += fmt.Sprintf("Pages: %d\n", text.PageCount)
	out += fmt.Sprintf("Status: %s\n", text.Status)
	if text.Reason != "" {
		out += fmt.Sprintf("Reason: %s\n", text.Reason)
	}
	return out
}

func (s *Server) formatMatches(results []match.Result) string {
	matched := 0
	for _, r := range results {
		if r.Matched {
			matched++
		}
	}

	out := fmt.Sprintf("Canonical matches: %d of %d features present\n\n", matched, len(results))
	for _, r := range results {
		marker := " "
		if r.Matched {
			marker = "x"
		}
		out += fmt.Sprintf("[%s] %s", marker, r.CanonicalName)
		if r.Matched {
			out += fmt.Sprintf(" (%s, confidence %.2f)", r.Method, r.Confidence)
		}
		out += "\n"
	}
	return out
}

func (s *Server) formatVerifyResult(result *pipeline.RunResult) string {
	out := s.formatExtraction(result.Origin, result.Extraction)

	if result.NoFeatures && len(result.Matches) == 0 {
		out += "\nNo features found; checklist left untouched.\n"
		return out
	}

	out += "\n" + s.formatMatches(result.Matches)

	if result.Outcome == nil {
		out += "\nDry run: no checklist attached.\n"
		return out
	}

	out += fmt.Sprintf("\nReconciliation: %d item(s) out of sync, %d updated, committed: %t\n",
		result.Outcome.AttemptedItems, result.Outcome.UpdatedItems, result.Outcome.Committed)
	for _, item := range result.Outcome.Items {
		if !item.Applied {
			out += fmt.Sprintf("  FAILED %s: %s\n", item.CanonicalName, item.Error)
			continue
		}
		out += fmt.Sprintf("  updated %s\n", item.CanonicalName)
	}
	return out
}

// Run starts the MCP server in the configured mode
func (s *Server) Run(ctx context.Context) error {
	if s.config.IsServerMode() {
		return s.runServerMode(ctx)
	}
	return s.runStdioMode(ctx)
}

// runStdioMode runs the server in stdio mode
func (s *Server) runStdioMode(_ context.Context) error {
	if s.config.IsDebug() {
		log.Printf("Starting sticker verification MCP server in stdio mode")
		log.Printf("Vocabulary: %s", s.config.VocabPath)
	}

	// Use the mark3labs/mcp-go server.ServeStdio function
	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}

// runServerMode runs the server in HTTP server mode
func (s *Server) runServerMode(ctx context.Context) error {
	// For now, we'll just use stdio mode since the mark3labs library
	// handles the transport differently
	log.Printf("Server mode not yet implemented with mark3labs/mcp-go")
	log.Printf("Falling back to stdio mode")
	return s.runStdioMode(ctx)
}
