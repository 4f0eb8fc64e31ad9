// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes lockchime tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/lockchime/internal/apperr"
	"github.com/starford/lockchime/internal/models"
	"github.com/starford/lockchime/internal/soundservice"
)

const (
	catalogStatsURI = "lockchime://catalog-stats"
	requirementsURI = "lockchime://lock-sound-requirements"
)

// Server wraps the MCP server with lockchime tools.
type Server struct {
	mcp *server.MCPServer
	svc *soundservice.Service
}

// New creates a new MCP server with all lockchime tools registered.
func New(svc *soundservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Lockchime",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_sounds",
		mcp.WithDescription("Search bundled and external lock sounds. All filters are optional and combined with AND."),
		mcp.WithString("query", mcp.Description("Case-insensitive text matched against name, description and tags")),
		mcp.WithString("category", mcp.Description("Exact category, e.g. movies")),
		mcp.WithString("source", mcp.Description("Source id; applies to external sounds only")),
		mcp.WithBoolean("featured", mcp.Description("Only featured sounds")),
		mcp.WithBoolean("tesla_compatible", mcp.Description("Only sounds usable without conversion")),
	), s.searchSounds)

	s.mcp.AddTool(mcp.NewTool("get_sound",
		mcp.WithDescription("Get a sound's metadata and cache status by id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Sound id (bundled ids are 1 to 10)")),
	), s.getSound)

	s.mcp.AddTool(mcp.NewTool("list_categories",
		mcp.WithDescription("List the distinct categories of the external catalog."),
	), s.listCategories)

	s.mcp.AddTool(mcp.NewTool("download_sound",
		mcp.WithDescription("Download an external sound into the local cache and return its local path. "+
			"Concurrent requests for the same sound share one transfer."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Sound id")),
	), s.downloadSound)

	s.mcp.AddTool(mcp.NewTool("cache_status",
		mcp.WithDescription("List cached sounds, their total size and downloads in progress."),
	), s.cacheStatus)

	s.mcp.AddTool(mcp.NewTool("get_lock_sound_requirements",
		mcp.WithDescription("Returns the file requirements a sound must meet to be used as the lock chime."),
	), s.getRequirements)

	s.mcp.AddResource(
		mcp.NewResource(catalogStatsURI, "Catalog Statistics",
			mcp.WithResourceDescription("Sound counts by category and source for the loaded catalog."),
			mcp.WithMIMEType("application/json"),
		),
		s.readCatalogStats,
	)

	s.mcp.AddResource(
		mcp.NewResource(requirementsURI, "Lock Sound Requirements",
			mcp.WithResourceDescription("File name, format and size rules for a custom lock sound."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRequirements,
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

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func toolError(id string, err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("sound not found: %s", id))
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) searchSounds(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := models.SoundFilter{
		Query:               strings.TrimSpace(req.GetString("query", "")),
		Category:            req.GetString("category", ""),
		SourceID:            req.GetString("source", ""),
		FeaturedOnly:        req.GetBool("featured", false),
		TeslaCompatibleOnly: req.GetBool("tesla_compatible", false),
	}
	items := s.svc.ListSounds(ctx, f)
	if len(items) == 0 {
		return mcp.NewToolResultText("no sounds found"), nil
	}
	return jsonResult(items)
}

func (s *Server) getSound(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	item, err := s.svc.GetSound(ctx, id)
	if err != nil {
		return toolError(id, err), nil
	}
	return jsonResult(item)
}

func (s *Server) listCategories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.svc.Catalog().Err(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(strings.Join(s.svc.Catalog().Categories(), "\n")), nil
}

func (s *Server) downloadSound(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	item, err := s.svc.Download(ctx, id)
	if err != nil {
		return toolError(id, err), nil
	}
	return jsonResult(item)
}

func (s *Server) cacheStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sum, err := s.svc.CacheStatus(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(struct {
		*soundservice.CacheSummary
		Active []models.DownloadProgress `json:"active"`
	}{sum, s.svc.ActiveDownloads()})
}

func (s *Server) getRequirements(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(LockSoundRequirements), nil
}

func (s *Server) readCatalogStats(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	c, err := s.svc.Catalog().Load(ctx)
	if err != nil {
		return nil, err
	}
	out, err := json.MarshalIndent(struct {
		Version string `json:"version"`
		models.Statistics
	}{c.Version, s.svc.Catalog().Statistics()}, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      catalogStatsURI,
			MIMEType: "application/json",
			Text:     string(out),
		},
	}, nil
}

func (s *Server) readRequirements(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      requirementsURI,
			MIMEType: "text/markdown",
			Text:     LockSoundRequirements,
		},
	}, nil
}
