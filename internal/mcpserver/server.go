// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the reading tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/dastan/internal/apperr"
	"github.com/starford/dastan/internal/models"
	"github.com/starford/dastan/internal/reader"
	"github.com/starford/dastan/internal/schema"
)

const schemaURIPrefix = "dastan://schemas/"

// SettingsStore reads and updates the reader preferences.
type SettingsStore interface {
	Get() models.Settings
	Update(ctx context.Context, patch models.SettingsPatch) (models.Settings, error)
}

// Server wraps the MCP server with the reading tools.
type Server struct {
	mcp      *server.MCPServer
	reader   *reader.Service
	settings SettingsStore
}

// New creates a new MCP server with all tools and schema resources registered.
func New(svc *reader.Service, settings SettingsStore, version string) *Server {
	s := &Server{reader: svc, settings: settings}

	s.mcp = server.NewMCPServer(
		"Dastan",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("lookup_word",
		mcp.WithDescription("Explain a Persian word as used in the surrounding text. Returns a WordInfo JSON object."),
		mcp.WithString("word", mcp.Required(), mcp.Description("The word to look up")),
		mcp.WithString("context", mcp.Description("Text the word appeared in")),
		mcp.WithBoolean("heritage_mode", mcp.Description("Answer for a heritage speaker; defaults to the saved setting")),
	), s.lookupWord)

	s.mcp.AddTool(mcp.NewTool("paraphrase_sentence",
		mcp.WithDescription("Paraphrase one Persian sentence in simpler Persian and in English."),
		mcp.WithString("sentence", mcp.Required(), mcp.Description("The sentence to paraphrase")),
		mcp.WithBoolean("heritage_mode", mcp.Description("Answer for a heritage speaker; defaults to the saved setting")),
	), s.paraphraseSentence)

	s.mcp.AddTool(mcp.NewTool("summarize_text",
		mcp.WithDescription("Summarize a Persian text at the requested length."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to summarize")),
		mcp.WithString("length", mcp.Required(), mcp.Enum(schema.Lengths...), mcp.Description("Summary length")),
	), s.summarizeText)

	s.mcp.AddTool(mcp.NewTool("analyze_narrative",
		mcp.WithDescription("Analyze structure, themes, tone and symbolism of a Persian narrative."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Narrative text")),
	), s.textTool(s.reader.Analyze))

	s.mcp.AddTool(mcp.NewTool("generate_questions",
		mcp.WithDescription("Generate multiple-choice comprehension questions for a Persian text."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Source text")),
	), s.textTool(s.reader.Questions))

	s.mcp.AddTool(mcp.NewTool("build_timeline",
		mcp.WithDescription("List the events of a Persian text in order."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Source text")),
	), s.textTool(s.reader.Timeline))

	s.mcp.AddTool(mcp.NewTool("get_settings",
		mcp.WithDescription("Return the saved reader settings."),
	), s.getSettings)

	s.mcp.AddTool(mcp.NewTool("update_settings",
		mcp.WithDescription("Change reader settings. Omitted fields are kept."),
		mcp.WithBoolean("heritage_mode", mcp.Description("Heritage speaker mode")),
		mcp.WithBoolean("show_translations", mcp.Description("Show English translations")),
	), s.updateSettings)

	// Resources: one JSON Schema per response shape.
	for _, d := range schema.All() {
		s.mcp.AddResource(
			mcp.NewResource(schemaURIPrefix+d.Name, d.Name+" schema",
				mcp.WithResourceDescription("JSON Schema every "+d.Name+" response is validated against."),
				mcp.WithMIMEType("application/schema+json"),
			),
			s.readSchemaResource,
		)
	}

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) lookupWord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	word, err := req.RequireString("word")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return result(s.reader.Lookup(ctx, reader.LookupInput{
		Word:         word,
		Context:      req.GetString("context", ""),
		HeritageMode: optionalBool(req, "heritage_mode"),
	}))
}

func (s *Server) paraphraseSentence(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sentence, err := req.RequireString("sentence")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return result(s.reader.Paraphrase(ctx, reader.ParaphraseInput{
		Sentence:     sentence,
		HeritageMode: optionalBool(req, "heritage_mode"),
	}))
}

func (s *Server) summarizeText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	length, err := req.RequireString("length")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return result(s.reader.Summarize(ctx, reader.SummarizeInput{Text: text, Length: length}))
}

func (s *Server) textTool(fn func(context.Context, reader.TextInput) (json.RawMessage, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return result(fn(ctx, reader.TextInput{Text: text}))
	}
}

func (s *Server) getSettings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.settings.Get()), nil
}

func (s *Server) updateSettings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	patch := models.SettingsPatch{
		HeritageMode:     optionalBool(req, "heritage_mode"),
		ShowTranslations: optionalBool(req, "show_translations"),
	}
	if patch.Empty() {
		return mcp.NewToolResultError("no settings to update"), nil
	}
	next, err := s.settings.Update(ctx, patch)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(next), nil
}

// jsonResult renders v as indented JSON text.
func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err))
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) readSchemaResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	name, _ := strings.CutPrefix(uri, schemaURIPrefix)
	d, ok := schema.ByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperr.ErrNotFound, uri)
	}
	out, err := json.MarshalIndent(d.JSONSchema(), "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/schema+json",
			Text:     string(out),
		},
	}, nil
}

// result turns a tool outcome into an MCP result. Tool failures are reported
// to the client as error results without provider text.
func result(out json.RawMessage, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(toolMessage(err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func toolMessage(err error) string {
	var invalid *apperr.InvalidRequestError
	switch {
	case errors.As(err, &invalid):
		return "invalid request: " + invalid.Error()
	case errors.Is(err, apperr.ErrMalformedJSON):
		return "model response was not valid JSON"
	case errors.Is(err, apperr.ErrSchemaMismatch):
		return "model response failed validation"
	case errors.Is(err, apperr.ErrTransport):
		return "model provider unreachable"
	case errors.Is(err, apperr.ErrProvider):
		return "model provider error"
	default:
		return "internal error"
	}
}

func optionalBool(req mcp.CallToolRequest, key string) *bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return nil
	}
	return &v
}
