// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes the daily problem rotation and annotation tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Cartooli/math-boredgames-sub001/internal/apperr"
	"github.com/Cartooli/math-boredgames-sub001/internal/models"
	"github.com/Cartooli/math-boredgames-sub001/internal/problemservice"
)

// SourceFormatURI is the resource holding the source document grammar.
const SourceFormatURI = "daily://source-format"

// Server wraps the MCP server with the daily problem tools.
type Server struct {
	mcp *server.MCPServer
	svc *problemservice.Service
}

func profileOption() mcp.ToolOption {
	return mcp.WithString("profile", mcp.Description("Profile id (omit for the default profile)"))
}

func problemIDOption() mcp.ToolOption {
	return mcp.WithNumber("problem_id", mcp.Required(), mcp.Description("1-based problem id"))
}

// New creates a new MCP server with all tools registered.
func New(svc *problemservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Daily Problem",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_problem",
		mcp.WithDescription("Get the problem of the day, or of a day relative to today, "+
			"together with the profile's rating, note, vote and verification state."),
		mcp.WithNumber("offset", mcp.Description("Days from today; negative for past days (default 0)")),
		profileOption(),
	), s.getProblem)

	s.mcp.AddTool(mcp.NewTool("list_problems",
		mcp.WithDescription("List every problem in the catalogue with its id and date heading."),
	), s.listProblems)

	s.mcp.AddTool(mcp.NewTool("get_problem_image",
		mcp.WithDescription("Return the image attached to a problem."),
		problemIDOption(),
	), s.getProblemImage)

	s.mcp.AddTool(mcp.NewTool("get_annotations",
		mcp.WithDescription("Get the profile's rating aggregate, note, vote and verification flag for a problem."),
		problemIDOption(),
		profileOption(),
	), s.getAnnotations)

	s.mcp.AddTool(mcp.NewTool("rate_problem",
		mcp.WithDescription("Add a 1 to 5 star rating to a problem."),
		problemIDOption(),
		mcp.WithNumber("stars", mcp.Required(), mcp.Min(1), mcp.Max(5), mcp.Description("Rating from 1 to 5")),
		profileOption(),
	), s.rateProblem)

	s.mcp.AddTool(mcp.NewTool("save_note",
		mcp.WithDescription("Replace the note on a problem. An empty text removes the note."),
		problemIDOption(),
		mcp.WithString("text", mcp.Required(), mcp.Description("Note text")),
		profileOption(),
	), s.saveNote)

	s.mcp.AddTool(mcp.NewTool("toggle_vote",
		mcp.WithDescription("Toggle an up or down vote. Repeating the current vote clears it."),
		problemIDOption(),
		mcp.WithString("direction", mcp.Required(), mcp.Enum("up", "down"), mcp.Description("Vote direction")),
		profileOption(),
	), s.toggleVote)

	s.mcp.AddTool(mcp.NewTool("toggle_verification",
		mcp.WithDescription("Flip the verified flag of a problem."),
		problemIDOption(),
		profileOption(),
	), s.toggleVerification)

	s.mcp.AddTool(mcp.NewTool("get_streak",
		mcp.WithDescription("Get the profile's visit streak statistics."),
		profileOption(),
	), s.getStreak)

	s.mcp.AddTool(mcp.NewTool("record_view",
		mcp.WithDescription("Record that the profile viewed today's problem. Views of other days do not count."),
		mcp.WithNumber("offset", mcp.Description("Offset of the viewed problem (default 0)")),
		profileOption(),
	), s.recordView)

	s.mcp.AddTool(mcp.NewTool("get_source_format",
		mcp.WithDescription("Returns the source document grammar. "+
			"Read it before editing the problem list so new entries are picked up."),
	), s.getSourceFormat)

	s.mcp.AddResource(
		mcp.NewResource(SourceFormatURI, "Source Document Format",
			mcp.WithResourceDescription("Grammar of the Markdown export problems are read from."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readSourceFormatResource,
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

func errorResult(err error) (*mcp.CallToolResult, error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("not found: " + err.Error()), nil
	case errors.Is(err, apperr.ErrFetch), errors.Is(err, apperr.ErrExtraction):
		return mcp.NewToolResultError("problem source unavailable: " + err.Error()), nil
	}
	return mcp.NewToolResultError(err.Error()), nil
}

// dailyProblem is the get_problem payload; the image is left to
// get_problem_image.
type dailyProblem struct {
	ID              int                `json:"id"`
	Date            string             `json:"date"`
	HasImage        bool               `json:"has_image"`
	PositionInCycle int                `json:"position_in_cycle"`
	Total           int                `json:"total"`
	Offset          int                `json:"offset"`
	CalendarDate    string             `json:"calendar_date"`
	Annotations     models.Annotations `json:"annotations"`
}

func (s *Server) getProblem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	offset := req.GetInt("offset", 0)
	dp, err := s.svc.DailyProblem(ctx, req.GetString("profile", ""), offset)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(dailyProblem{
		ID:              dp.Record.ID,
		Date:            dp.Record.Date,
		HasImage:        dp.Record.HasImage(),
		PositionInCycle: dp.PositionInCycle,
		Total:           dp.Total,
		Offset:          dp.Offset,
		CalendarDate:    dp.Date,
		Annotations:     dp.Annotations,
	})
}

func (s *Server) listProblems(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.svc.ListProblems(ctx)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(items)
}

func (s *Server) getAnnotations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("problem_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	a, err := s.svc.Annotations(ctx, req.GetString("profile", ""), id)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(a)
}

func (s *Server) rateProblem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("problem_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	stars, err := req.RequireInt("stars")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	a, err := s.svc.Rate(ctx, req.GetString("profile", ""), id, stars)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(a)
}

func (s *Server) saveNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("problem_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	a, err := s.svc.SaveNote(ctx, req.GetString("profile", ""), id, text)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(a)
}

func (s *Server) toggleVote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("problem_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("direction")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dir, err := models.ParseVote(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	a, err := s.svc.ToggleVote(ctx, req.GetString("profile", ""), id, dir)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(a)
}

func (s *Server) toggleVerification(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("problem_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	a, err := s.svc.ToggleVerification(ctx, req.GetString("profile", ""), id)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(a)
}

func (s *Server) getStreak(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.svc.Streak(req.GetString("profile", ""))
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(st)
}

func (s *Server) recordView(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.svc.RecordView(req.GetString("profile", ""), req.GetInt("offset", 0))
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(st)
}

func (s *Server) getSourceFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(SourceFormatContract), nil
}

func (s *Server) readSourceFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      SourceFormatURI,
			MIMEType: "text/markdown",
			Text:     SourceFormatContract,
		},
	}, nil
}
