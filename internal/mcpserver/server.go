// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes gitnotes tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/gitnotes/internal/apperr"
	"github.com/starford/gitnotes/internal/notes"
	"github.com/starford/gitnotes/internal/noteservice"
	"github.com/starford/gitnotes/internal/query"
)

const (
	contractURI   = "gitnotes://note-format"
	noteURIPrefix = "gitnotes://notes/"
)

// Server wraps the MCP server with gitnotes tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all gitnotes tools registered.
func New(svc *noteservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"gitnotes",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note's content, tags and checksum."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Note path (e.g. work/todo) or five digit id")),
		mcp.WithString("history", mcp.Description("Optional git revision to read the note at (e.g. HEAD~1)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("list_tree",
		mcp.WithDescription("List the note tree, one path per line."),
		mcp.WithString("prefix", mcp.Description("Optional directory to list (empty for all)")),
	), s.listTree)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Regular expression search through note content."),
		mcp.WithString("pattern", mcp.Required(), mcp.Description("Regular expression")),
		mcp.WithBoolean("case_sensitive", mcp.Description("Match case (default false)")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("find_notes",
		mcp.WithDescription("Find notes by tags and path pattern."),
		mcp.WithString("tags", mcp.Description("Comma separated tags; notes must carry all of them")),
		mcp.WithString("path", mcp.Description("Regular expression matched against the note path")),
	), s.findNotes)

	s.mcp.AddTool(mcp.NewTool("add_note",
		mcp.WithDescription("Create a new note and commit it. Read the note format contract "+
			"first via get_note_contract or the "+contractURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path for the new note, without extension")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content")),
		mcp.WithString("tags", mcp.Description("Comma separated tags; suggested from content when empty")),
	), s.addNote)

	s.mcp.AddTool(mcp.NewTool("update_note",
		mcp.WithDescription("Replace a note's content and commit it."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Note path or id")),
		mcp.WithString("content", mcp.Required(), mcp.Description("New Markdown content")),
		mcp.WithString("checksum", mcp.Description("Checksum returned by read_note; the update fails if the note changed since")),
	), s.updateNote)

	s.mcp.AddTool(mcp.NewTool("move_note",
		mcp.WithDescription("Move a note, a directory or the notes matching a glob."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Note, directory or glob pattern")),
		mcp.WithString("destination", mcp.Required(), mcp.Description("Destination path")),
		mcp.WithBoolean("force", mcp.Description("Replace existing notes at the destination")),
	), s.moveNote)

	s.mcp.AddTool(mcp.NewTool("remove_note",
		mcp.WithDescription("Remove a note, a directory or the notes matching a glob."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Note, directory or glob pattern")),
		mcp.WithBoolean("recursive", mcp.Description("Required to remove directories")),
	), s.removeNote)

	s.mcp.AddTool(mcp.NewTool("note_log",
		mcp.WithDescription("Show recent commits."),
		mcp.WithNumber("count", mcp.Description("Number of commits (default 20)")),
	), s.noteLog)

	s.mcp.AddTool(mcp.NewTool("upload_resource",
		mcp.WithDescription("Store an image or document under resources/ from an http(s) URL or a base64 data URI."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:<mime>;base64,<data>")),
		mcp.WithString("filename", mcp.Description("Optional file name; derived from the URL when empty")),
	), s.uploadResource)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the gitnotes note format contract. "+
			"Call this before creating or updating notes."),
	), s.getNoteContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Note Format Contract",
			mcp.WithResourceDescription("How notes are addressed and written."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(noteURIPrefix+"{path}", "Note",
			mcp.WithTemplateDescription("Content of the note at path."),
			mcp.WithTemplateMIMEType("text/markdown"),
		),
		s.readNoteResource,
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
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(out)), nil
}

func splitTags(raw string) []string {
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func (s *Server) readNote(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.Note(path)
	if err != nil {
		return toolError(err), nil
	}
	if history := req.GetString("history", ""); history != "" {
		content, err := s.svc.Content(path, noteservice.ContentOptions{History: history})
		if err != nil {
			return toolError(err), nil
		}
		note.Content = content
	}
	return jsonResult(note)
}

func (s *Server) listTree(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tree, err := s.svc.Tree(query.TreeOptions{Prefix: req.GetString("prefix", "")})
	if err != nil {
		return toolError(err), nil
	}
	var paths []string
	tree.Walk(func(e notes.WalkEntry) bool {
		if e.Node.IsLeaf() {
			paths = append(paths, e.Node.Note.Path)
		}
		return true
	})
	if len(paths) == 0 {
		return mcp.NewToolResultText("no notes found"), nil
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) searchNotes(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pattern, err := req.RequireString("pattern")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(noteservice.SearchRequest{
		Pattern:       pattern,
		CaseSensitive: req.GetBool("case_sensitive", false),
	})
	if err != nil {
		return toolError(err), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no matches found"), nil
	}
	var b strings.Builder
	for _, m := range results {
		fmt.Fprintf(&b, "%s:%d: %s\n", m.Note.Path, m.Line, m.Text)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) findNotes(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := query.FindQuery{Tags: splitTags(req.GetString("tags", ""))}
	if p := req.GetString("path", ""); p != "" {
		re, err := query.CompilePattern(p, true)
		if err != nil {
			return toolError(err), nil
		}
		q.Path = re
	}
	items, err := s.svc.ListItems(q)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(items)
}

func (s *Server) addNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	m, err := s.svc.Add(ctx, noteservice.AddRequest{
		Path:    path,
		Tags:    splitTags(req.GetString("tags", "")),
		Content: &content,
	})
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s (%s)", m.Path, m.ID)), nil
}

func (s *Server) updateNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	m, err := s.svc.Edit(ctx, noteservice.EditRequest{
		Path:    path,
		Content: &content,
		IfMatch: req.GetString("checksum", ""),
	})
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %s", m.Path)), nil
}

func (s *Server) moveNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	destination, err := req.RequireString("destination")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.Move(ctx, source, destination, req.GetBool("force", false)); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("moved: %s -> %s", source, destination)), nil
}

func (s *Server) removeNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.Remove(ctx, path, req.GetBool("recursive", false)); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("removed: %s", path)), nil
}

func (s *Server) noteLog(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	count := req.GetInt("count", 20)
	if count <= 0 {
		return mcp.NewToolResultError("count must be positive"), nil
	}
	commits, err := s.svc.Log(count)
	if err != nil {
		return toolError(err), nil
	}
	if len(commits) == 0 {
		return mcp.NewToolResultText("no commits"), nil
	}
	var b strings.Builder
	for _, c := range commits {
		fmt.Fprintf(&b, "%s %s %s\n", c.ShortID, c.When.Format("2006-01-02 15:04"), c.Summary())
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) getNoteContract(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}

func (s *Server) readNoteResource(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	path := strings.TrimPrefix(req.Params.URI, noteURIPrefix)
	if path == "" || path == req.Params.URI {
		return nil, apperr.Validation("invalid note URI: %s", req.Params.URI)
	}
	content, err := s.svc.Content(path, noteservice.ContentOptions{})
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "text/markdown",
			Text:     content,
		},
	}, nil
}
