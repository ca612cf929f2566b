// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes annotree tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/annotree/internal/models"
	"github.com/starford/annotree/internal/session"
)

// Server wraps the MCP server with annotree tools.
type Server struct {
	mcp  *server.MCPServer
	sess *session.Session
}

// New creates a new MCP server with all annotree tools registered.
func New(sess *session.Session) *Server {
	s := &Server{sess: sess}

	s.mcp = server.NewMCPServer(
		"annotree",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	pathArg := func(desc string) mcp.ToolOption {
		return mcp.WithString("path", mcp.Required(), mcp.Description(desc))
	}
	fieldsOpt := mcp.WithObject("fields", mcp.Required(),
		mcp.Description("Annotation fields. Must contain a \"type\" key. A JSON object encoded as a string keeps key order."))

	s.mcp.AddTool(mcp.NewTool("list_children",
		mcp.WithDescription("List the rows under a tree path. Paths are slash-separated row numbers (\"1/0\"); an empty path is the top level."),
		mcp.WithString("path", mcp.Description("Parent row path (empty for the file list)")),
	), s.listChildren)

	s.mcp.AddTool(mcp.NewTool("get_node",
		mcp.WithDescription("Describe one row: kind, label, value and child count."),
		pathArg("Row path"),
	), s.getNode)

	s.mcp.AddTool(mcp.NewTool("get_data",
		mcp.WithDescription("Return the backing record of a row as JSON (file, frame or annotation)."),
		pathArg("Row path"),
	), s.getData)

	s.mcp.AddTool(mcp.NewTool("next_media",
		mcp.WithDescription("Path of the image file or frame after the one enclosing the given row. Stays put at the end."),
		pathArg("Any row path inside an image file or frame"),
	), s.nextMedia)

	s.mcp.AddTool(mcp.NewTool("previous_media",
		mcp.WithDescription("Path of the image file or frame before the one enclosing the given row. Stays put at the start."),
		pathArg("Any row path inside an image file or frame"),
	), s.previousMedia)

	s.mcp.AddTool(mcp.NewTool("add_annotation",
		mcp.WithDescription("Append an annotation under an image file or frame. Read the annotree://corpus-format resource first."),
		pathArg("Path of the image file or frame"),
		fieldsOpt,
	), s.addAnnotation)

	s.mcp.AddTool(mcp.NewTool("update_annotation",
		mcp.WithDescription("Replace the fields of an annotation. Keys missing from fields are removed."),
		pathArg("Path of the annotation"),
		fieldsOpt,
	), s.updateAnnotation)

	s.mcp.AddTool(mcp.NewTool("set_annotation_value",
		mcp.WithDescription("Set one key of an annotation. A new key is appended after the existing ones."),
		pathArg("Path of the annotation"),
		mcp.WithString("key", mcp.Required(), mcp.Description("Field name, e.g. label")),
		mcp.WithString("value", mcp.Required(), mcp.Description("Field value")),
	), s.setAnnotationValue)

	s.mcp.AddTool(mcp.NewTool("remove_annotation",
		mcp.WithDescription("Delete an annotation. Rows after it shift up by one."),
		pathArg("Path of the annotation"),
	), s.removeAnnotation)

	s.mcp.AddTool(mcp.NewTool("insert_file",
		mcp.WithDescription("Append a media file record to the project."),
		mcp.WithString("filename", mcp.Required(), mcp.Description("File name relative to the base directory")),
		mcp.WithString("type", mcp.Required(), mcp.Enum("image", "video"), mcp.Description("Media type")),
	), s.insertFile)

	s.mcp.AddTool(mcp.NewTool("status",
		mcp.WithDescription("Summarize the loaded project: file, base directory, file count and unsaved edits."),
	), s.status)

	s.mcp.AddTool(mcp.NewTool("get_corpus_contract",
		mcp.WithDescription("Returns the project document format and the row path conventions."),
	), s.getCorpusContract)

	// Resource: corpus format contract.
	s.mcp.AddResource(
		mcp.NewResource("annotree://corpus-format", "Corpus Format Contract",
			mcp.WithResourceDescription("Project document layout and row path conventions."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readCorpusFormatResource,
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

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

// fieldsArg reads the annotation fields, given either as an object or as
// a JSON string.
func fieldsArg(req mcp.CallToolRequest) (*models.Annotation, error) {
	raw, ok := req.GetArguments()["fields"]
	if !ok || raw == nil {
		return nil, fmt.Errorf("required argument \"fields\" not found")
	}
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	default:
		var err error
		if data, err = json.Marshal(v); err != nil {
			return nil, err
		}
	}
	a := models.NewAnnotation()
	if err := json.Unmarshal(data, a); err != nil {
		return nil, fmt.Errorf("fields: %w", err)
	}
	if a.Type() == "" {
		return nil, fmt.Errorf("fields: must contain a type key")
	}
	return a, nil
}

func (s *Server) listChildren(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodes, err := s.sess.Children(ctx, req.GetString("path", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(nodes), nil
}

func (s *Server) getNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.sess.Node(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(n), nil
}

func (s *Server) getData(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := s.sess.Data(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(raw)), nil
}

func (s *Server) nextMedia(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	next, err := s.sess.Next(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(next), nil
}

func (s *Server) previousMedia(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	prev, err := s.sess.Previous(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(prev), nil
}

func (s *Server) addAnnotation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fields, err := fieldsArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	added, err := s.sess.AddAnnotation(ctx, path, fields)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("added: %s", added)), nil
}

func (s *Server) updateAnnotation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fields, err := fieldsArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.sess.UpdateAnnotation(ctx, path, fields); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %s", path)), nil
}

func (s *Server) setAnnotationValue(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value, err := req.RequireString("value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.sess.SetAnnotationValue(ctx, path, key, value); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("set %s: %s", key, path)), nil
}

func (s *Server) removeAnnotation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.sess.RemoveAnnotation(ctx, path); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("removed: %s", path)), nil
}

func (s *Server) insertFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filename, err := req.RequireString("filename")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	typ, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := s.sess.InsertFile(ctx, filename, models.MediaType(typ))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if path == "" {
		return mcp.NewToolResultText("inserted: hidden by the current filter"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("inserted: %s", path)), nil
}

func (s *Server) status(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.sess.Status(ctx)), nil
}

func (s *Server) getCorpusContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(CorpusFormatContract), nil
}

func (s *Server) readCorpusFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "annotree://corpus-format",
			MIMEType: "text/markdown",
			Text:     CorpusFormatContract,
		},
	}, nil
}
