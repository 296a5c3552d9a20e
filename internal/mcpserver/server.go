// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes itinera tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/itinera/internal/planner"
	"github.com/starford/itinera/internal/timeline"
)

const contractURI = "itinera://timeline-format"

// Server wraps the MCP server with itinera tools.
type Server struct {
	mcp *server.MCPServer
	svc *planner.Service
}

// New creates a new MCP server with all itinera tools registered.
func New(svc *planner.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"itinera",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	room := mcp.WithString("room", mcp.Required(), mcp.Description("Room ID"))
	day := mcp.WithNumber("day", mcp.Required(), mcp.Description("Day number, starting at 1"))

	s.mcp.AddTool(mcp.NewTool("get_day_timeline",
		mcp.WithDescription("Get the timeline of one day: visits, travel legs and computed times. "+
			"See the itinera://timeline-format resource for the layout."),
		room, day,
	), s.getDayTimeline)

	s.mcp.AddTool(mcp.NewTool("move_spot",
		mcp.WithDescription("Move the visit at index from to drop point to."),
		room, day,
		mcp.WithNumber("from", mcp.Required(), mcp.Description("Index of the visit to move")),
		mcp.WithNumber("to", mcp.Required(), mcp.Description("Drop point, 0 to timeline length")),
	), s.moveSpot)

	s.mcp.AddTool(mcp.NewTool("set_stay_time",
		mcp.WithDescription("Set how long the visit at index lasts. Omit minutes to mark it unknown."),
		room, day,
		mcp.WithNumber("index", mcp.Required(), mcp.Description("Index of the visit")),
		mcp.WithNumber("minutes", mcp.Description("Stay in minutes")),
	), s.setStayTime)

	s.mcp.AddTool(mcp.NewTool("set_leg",
		mcp.WithDescription("Change the transport mode and/or duration of the travel leg at index."),
		room, day,
		mcp.WithNumber("index", mcp.Required(), mcp.Description("Index of the travel leg")),
		mcp.WithString("mode", mcp.Description("car, train, walk, bus, plane or ship")),
		mcp.WithNumber("minutes", mcp.Description("Travel time in minutes")),
	), s.setLeg)

	s.mcp.AddTool(mcp.NewTool("optimize_day",
		mcp.WithDescription("Ask the route optimizer for the best order of the day's visits."),
		room, day,
	), s.optimizeDay)

	s.mcp.AddTool(mcp.NewTool("list_spots",
		mcp.WithDescription("List every spot in a room with its day, order and status."),
		room,
	), s.listSpots)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Day Timeline Format",
			mcp.WithResourceDescription("How day timelines are laid out and indexed."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
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

func roomDay(req mcp.CallToolRequest) (string, int, error) {
	room, err := req.RequireString("room")
	if err != nil {
		return "", 0, err
	}
	day, err := req.RequireInt("day")
	if err != nil {
		return "", 0, err
	}
	return room, day, nil
}

// render prints a day compactly, one segment per line.
func render(v planner.View) string {
	var b strings.Builder
	fmt.Fprintf(&b, "room %s, day %d of %d", v.Room, v.Day, v.DayCount)
	if v.StartTime != nil {
		fmt.Fprintf(&b, ", start %s", v.StartTime)
	}
	b.WriteString("\n")
	for i, seg := range v.Timeline {
		if seg.IsVisit() {
			vis := seg.Visit
			fmt.Fprintf(&b, "[%d] %s (%s) stay %s", i, vis.Name, vis.SpotID, vis.Stay)
			if vis.Arrival != nil && vis.Departure != nil {
				fmt.Fprintf(&b, " %s-%s", vis.Arrival, vis.Departure)
			}
			if v.Labels[i] == planner.CarryOverLabel {
				b.WriteString(" [" + planner.CarryOverLabel + "]")
			}
		} else {
			fmt.Fprintf(&b, "[%d]   -> %s %s min", i, seg.Leg.Mode, seg.Leg.Duration)
		}
		if seg.Flag != timeline.FlagNone {
			fmt.Fprintf(&b, " !%s", seg.Flag)
		}
		b.WriteString("\n")
	}
	if len(v.Unused) > 0 {
		names := make([]string, len(v.Unused))
		for i, sp := range v.Unused {
			names[i] = sp.Name
		}
		fmt.Fprintf(&b, "unused: %s\n", strings.Join(names, ", "))
	}
	return b.String()
}

func viewResult(v planner.View, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(render(v)), nil
}

func (s *Server) getDayTimeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	room, day, err := roomDay(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return viewResult(s.svc.DayView(ctx, room, day))
}

func (s *Server) moveSpot(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	room, day, err := roomDay(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	from, err := req.RequireInt("from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	to, err := req.RequireInt("to")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return viewResult(s.svc.Reorder(ctx, room, day, from, to))
}

func (s *Server) setStayTime(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	room, day, err := roomDay(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	index, err := req.RequireInt("index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	stay := timeline.Unset()
	if n, err := req.RequireInt("minutes"); err == nil {
		stay = timeline.MinutesOf(n)
	}
	return viewResult(s.svc.EditSegment(ctx, room, day, index, timeline.SegmentEdit{Stay: &stay}))
}

func (s *Server) setLeg(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	room, day, err := roomDay(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	index, err := req.RequireInt("index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var edit timeline.SegmentEdit
	if m, err := req.RequireString("mode"); err == nil && m != "" {
		mode := timeline.ParseMode(m)
		edit.Mode = &mode
	}
	if n, err := req.RequireInt("minutes"); err == nil {
		d := timeline.MinutesOf(n)
		edit.Duration = &d
	}
	if edit.Mode == nil && edit.Duration == nil {
		return mcp.NewToolResultError("nothing to change: pass mode and/or minutes"), nil
	}
	return viewResult(s.svc.EditSegment(ctx, room, day, index, edit))
}

func (s *Server) optimizeDay(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	room, day, err := roomDay(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return viewResult(s.svc.Optimize(ctx, room, day))
}

func (s *Server) listSpots(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	room, err := req.RequireString("room")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	spots, err := s.svc.ListSpots(ctx, room)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(spots, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     TimelineContract,
		},
	}, nil
}
