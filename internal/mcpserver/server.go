// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the knowledge-base pipeline to LLM clients over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/kbsync/internal/apperr"
	"github.com/starford/kbsync/internal/catalog"
	"github.com/starford/kbsync/internal/deletion"
	"github.com/starford/kbsync/internal/kbservice"
	"github.com/starford/kbsync/internal/models"
)

const noteFormatURI = "kbsync://note-format"

// Server wraps the MCP server with pipeline tools.
type Server struct {
	mcp *server.MCPServer
	svc *kbservice.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *kbservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"kbsync",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_catalog",
		mcp.WithDescription("List stored documents and notes across all partitions."),
		mcp.WithString("query", mcp.Description("Case-insensitive name or category substring")),
		mcp.WithString("kind", mcp.Description("document, note or all")),
		mcp.WithString("category", mcp.Description("Locations/Rooms, Scheduling, General Tips, Preps, Other or all")),
	), s.listCatalog)

	s.mcp.AddTool(mcp.NewTool("save_note",
		mcp.WithDescription("Save a structured note and index it. Read the "+noteFormatURI+
			" resource or call get_note_format first."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Note title")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Note body")),
		mcp.WithString("category", mcp.Required(), mcp.Description("Catalog category")),
		mcp.WithString("location", mcp.Description("Site, required for Scheduling notes")),
		mcp.WithString("start_date", mcp.Description("First day the note applies, YYYY-MM-DD")),
		mcp.WithString("end_date", mcp.Description("Last day the note applies, YYYY-MM-DD")),
		mcp.WithBoolean("overwrite", mcp.Description("Replace an existing note with the same name")),
	), s.saveNote)

	s.mcp.AddTool(mcp.NewTool("upload_document",
		mcp.WithDescription("Store a document fetched from an http(s) URL or a base64 data URI."),
		mcp.WithString("source", mcp.Required(), mcp.Description("http(s) URL or data: URI")),
		mcp.WithString("category", mcp.Required(), mcp.Description("Catalog category")),
		mcp.WithString("filename", mcp.Description("Object name; derived from the source when empty")),
		mcp.WithNumber("priority", mcp.Description("Search priority 1 (highest) to 3")),
		mcp.WithBoolean("overwrite", mcp.Description("Replace an existing object")),
	), s.uploadDocument)

	s.mcp.AddTool(mcp.NewTool("delete_artifact",
		mcp.WithDescription("Remove an artifact from the search index, then from the store."),
		mcp.WithString("bucket", mcp.Required(), mcp.Description("Bucket, e.g. other-content")),
		mcp.WithString("folder", mcp.Required(), mcp.Description("Folder, e.g. Preps")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Object name")),
	), s.deleteArtifact)

	s.mcp.AddTool(mcp.NewTool("search_index",
		mcp.WithDescription("Search indexed documents and notes. Notes outside their date window are excluded."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
		mcp.WithNumber("limit", mcp.Description("Max results, default 20")),
	), s.searchIndex)

	s.mcp.AddTool(mcp.NewTool("job_status",
		mcp.WithDescription("Report a conversion job, or every tracked job when id is empty."),
		mcp.WithString("id", mcp.Description("Job ID returned by an upload")),
	), s.jobStatus)

	s.mcp.AddTool(mcp.NewTool("get_note_format",
		mcp.WithDescription("Returns the canonical note JSON format."),
	), s.getNoteFormat)

	s.mcp.AddResource(
		mcp.NewResource(noteFormatURI, "Note Format",
			mcp.WithResourceDescription("Canonical note JSON stored by the pipeline."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
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

func toolError(err error) *mcp.CallToolResult {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", ae.Kind.Code(), err.Error()))
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listCatalog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f, err := catalog.NewFilter(req.GetString("query", ""), req.GetString("kind", ""), req.GetString("category", ""))
	if err != nil {
		return toolError(err), nil
	}
	view, err := s.svc.Catalog(ctx, f)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(view), nil
}

func (s *Server) saveNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rawCat, err := req.RequireString("category")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	n := &models.Note{Title: title, Content: content, Location: req.GetString("location", "")}
	n.Category = models.Category(rawCat)
	if cat, ok := models.ParseCategory(rawCat); ok {
		n.Category = cat
	}
	if n.EffectiveStart, err = optionalDate(req.GetString("start_date", "")); err != nil {
		return mcp.NewToolResultError("start_date: " + err.Error()), nil
	}
	if n.EffectiveEnd, err = optionalDate(req.GetString("end_date", "")); err != nil {
		return mcp.NewToolResultError("end_date: " + err.Error()), nil
	}

	res, err := s.svc.SaveNote(ctx, n, req.GetBool("overwrite", false))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res), nil
}

func (s *Server) deleteArtifact(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.svc.Delete(ctx, deletion.Request{
		Bucket: req.GetString("bucket", ""),
		Folder: req.GetString("folder", ""),
		Name:   req.GetString("name", ""),
	})
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res), nil
}

func (s *Server) searchIndex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, req.GetInt("limit", 20))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(results), nil
}

func (s *Server) jobStatus(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return jsonResult(s.svc.Jobs()), nil
	}
	job, err := s.svc.Job(id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(job), nil
}

func (s *Server) getNoteFormat(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      noteFormatURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}

func optionalDate(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, errors.New("must be YYYY-MM-DD")
	}
	return &t, nil
}
