// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Folio tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/doccache"
	"github.com/starford/folio/internal/noteservice"
	"github.com/starford/folio/internal/parser"
	"github.com/starford/folio/internal/resolver"
	"github.com/starford/folio/internal/storage"
)

const directivesURI = "folio://pdf-directives"

// Server wraps the MCP server with Folio tools.
type Server struct {
	mcp      *server.MCPServer
	svc      *noteservice.Service
	store    storage.Provider
	resolver *resolver.Resolver
	cache    *doccache.Cache
}

// New creates a new MCP server with all Folio tools registered.
func New(svc *noteservice.Service, store storage.Provider, res *resolver.Resolver, cache *doccache.Cache) *Server {
	s := &Server{svc: svc, store: store, resolver: res, cache: cache}

	s.mcp = server.NewMCPServer(
		"Folio",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through note content, titles and fields."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the raw Markdown of a note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. folder/note.md)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List all notes or notes in a specific folder."),
		mcp.WithString("folder", mcp.Description("Optional folder to list (empty for all)")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all notes that link to the specified note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the note to find backlinks for")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("render_note",
		mcp.WithDescription("Render a note to HTML with its PDF directives expanded. "+
			"Page counts are filled in; thumbnails appear as placeholder elements. "+
			"See the "+directivesURI+" resource for the directive syntax."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note")),
	), s.renderNote)

	s.mcp.AddTool(mcp.NewTool("pdf_page_count",
		mcp.WithDescription("Resolve a PDF reference the way a directive would and return its page count."),
		mcp.WithString("reference", mcp.Required(), mcp.Description("File name, path, wiki link, or field name")),
		mcp.WithString("note", mcp.Description("Note whose frontmatter and fields are consulted")),
	), s.pdfPageCount)

	s.mcp.AddResource(
		mcp.NewResource(directivesURI, "PDF Directive Syntax",
			mcp.WithResourceDescription("Inline directives that embed PDF pages and page counts in notes."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readDirectivesResource,
	)

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

func toolJSON(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return toolJSON(results), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.svc.ReadFile(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metas, err := s.store.List(req.GetString("folder", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	paths := make([]string, 0, len(metas))
	for _, m := range metas {
		paths = append(paths, m.Path)
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl, err := s.svc.Backlinks(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return mcp.NewToolResultText(strings.Join(bl, "\n")), nil
}

// renderNote renders in a throwaway session: there is no client to report
// sizes, so the session is closed before returning.
func (s *Server) renderNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := s.svc.RenderNote(ctx, path, "")
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	_ = s.svc.Sessions().Close(out.Session)

	return toolJSON(map[string]any{
		"path":  out.Path,
		"title": out.Title,
		"html":  out.HTML,
		"stats": out.Stats,
	}), nil
}

func (s *Server) pdfPageCount(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := req.RequireString("reference")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note := req.GetString("note", "")

	var fm map[string]any
	if note != "" {
		data, err := s.svc.ReadFile(ctx, note)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", note)), nil
		}
		if res, err := parser.Parse(data); err == nil {
			fm = res.Frontmatter
		}
	}

	path, err := s.resolver.Resolve(ctx, ref, note, fm)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	fut := s.cache.Acquire(path)
	defer s.cache.Release(path)
	doc, err := fut.Wait(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("open %s: %v", path, err)), nil
	}
	return toolJSON(map[string]any{
		"path":  path,
		"pages": doc.PageCount(),
	}), nil
}

func (s *Server) readDirectivesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      directivesURI,
			MIMEType: "text/markdown",
			Text:     DirectiveSyntax,
		},
	}, nil
}
