package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	"file-manager-server/internal/dispatcher"
	"file-manager-server/internal/errors"
	"file-manager-server/internal/models"
)

const (
	protocolVersion = "2024-11-05"
	serverName      = "file-manager"
	serverVersion   = "1.0.0"
)

// ToolCallParams represents the parameters for a tools/call request.
type ToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Processor routes JSON-RPC methods onto the dispatcher and renders tool
// results as MCP text content.
type Processor struct {
	dispatcher dispatcher.Dispatcher
}

// NewProcessor creates a new Processor.
func NewProcessor(d dispatcher.Dispatcher) *Processor {
	return &Processor{dispatcher: d}
}

// ProcessRequest handles a JSON-RPC request and returns the method result or
// a JSONRPCError. Tool-level failures are not protocol errors: they come
// back as an MCPToolResult with IsError set, so the host always receives a
// readable message instead of a crash.
func (p *Processor) ProcessRequest(req models.JSONRPCRequest) (interface{}, *models.JSONRPCError) {
	switch req.Method {
	case "initialize":
		return &models.InitializeResponse{
			ProtocolVersion: protocolVersion,
			Capabilities:    models.Capabilities{Tools: models.ToolsCapabilities{}},
			ServerInfo: models.ServerInfo{
				Name:        serverName,
				Version:     serverVersion,
				Description: "File operations over the Downloads and Documents directories: list, find latest, unzip, move.",
			},
		}, nil
	case "tools/list":
		return &models.ToolsListResponse{Tools: toolCatalog()}, nil
	case "tools/call":
		var params ToolCallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, errors.ToJSONRPCError(errors.NewInvalidParamsError(
				"Invalid parameters for tools/call: "+err.Error(), "", "tools/call"))
		}
		return p.handleToolCall(params.Name, params.Arguments), nil
	default:
		return nil, errors.ToJSONRPCError(errors.NewMethodNotFoundError(req.Method))
	}
}

func (p *Processor) handleToolCall(toolName string, toolArgs json.RawMessage) *models.MCPToolResult {
	if len(toolArgs) == 0 {
		toolArgs = json.RawMessage("{}")
	}
	switch toolName {
	case "list_files":
		var req models.ListFilesRequest
		if result := unmarshalArgs(toolArgs, toolName, &req); result != nil {
			return result
		}
		resp, errDetail := p.dispatcher.ListFiles(req)
		if errDetail != nil {
			return toolError(errDetail)
		}
		return toolText(formatListFiles(resp, req.Filter))
	case "list_recent":
		var req models.ListFilesRequest
		if result := unmarshalArgs(toolArgs, toolName, &req); result != nil {
			return result
		}
		if req.Limit == 0 {
			req.Limit = 10
		}
		resp, errDetail := p.dispatcher.ListFiles(req)
		if errDetail != nil {
			return toolError(errDetail)
		}
		return toolText(formatListRecent(resp, req.Filter))
	case "find_latest":
		var req models.FindLatestRequest
		if result := unmarshalArgs(toolArgs, toolName, &req); result != nil {
			return result
		}
		resp, errDetail := p.dispatcher.FindLatest(req)
		if errDetail != nil {
			return toolError(errDetail)
		}
		return toolText(fmt.Sprintf("Latest %s file in %s: %s (%s, modified %s)",
			displayFilter(req.Filter), resp.Directory, resp.File.Name,
			formatSize(resp.File.Size), resp.File.Modified))
	case "unzip_archive":
		var req models.UnzipArchiveRequest
		if result := unmarshalArgs(toolArgs, toolName, &req); result != nil {
			return result
		}
		resp, errDetail := p.dispatcher.UnzipArchive(req)
		if errDetail != nil {
			return toolError(errDetail)
		}
		return toolText(formatUnzip(resp, false))
	case "move_files":
		var req models.MoveFilesRequest
		if result := unmarshalArgs(toolArgs, toolName, &req); result != nil {
			return result
		}
		resp, errDetail := p.dispatcher.MoveFiles(req)
		if errDetail != nil {
			return toolError(errDetail)
		}
		return toolText(formatMove(resp, req.Filter))
	case "unzip_latest":
		var req models.UnzipLatestRequest
		if result := unmarshalArgs(toolArgs, toolName, &req); result != nil {
			return result
		}
		resp, errDetail := p.dispatcher.UnzipLatest(req)
		if errDetail != nil {
			return toolError(errDetail)
		}
		return toolText(formatUnzip(resp, true))
	case "unzip_and_move":
		var req models.UnzipAndMoveRequest
		if result := unmarshalArgs(toolArgs, toolName, &req); result != nil {
			return result
		}
		resp, errDetail := p.dispatcher.UnzipAndMove(req)
		if errDetail != nil {
			return toolError(errDetail)
		}
		return toolText(formatUnzipAndMove(resp))
	case "unzip_latest_and_move":
		var req models.UnzipLatestAndMoveRequest
		if result := unmarshalArgs(toolArgs, toolName, &req); result != nil {
			return result
		}
		resp, errDetail := p.dispatcher.UnzipLatestAndMove(req)
		if errDetail != nil {
			return toolError(errDetail)
		}
		return toolText(formatUnzipAndMove(resp))
	default:
		return &models.MCPToolResult{
			Content: []models.MCPToolContent{{Type: "text", Text: "Error: Unknown tool '" + toolName + "'."}},
			IsError: true,
		}
	}
}

func unmarshalArgs(args json.RawMessage, toolName string, target interface{}) *models.MCPToolResult {
	if err := json.Unmarshal(args, target); err != nil {
		return toolError(errors.NewInvalidParamsError(
			fmt.Sprintf("Invalid parameters for %s: %v", toolName, err), "", toolName))
	}
	return nil
}

func toolText(text string) *models.MCPToolResult {
	return &models.MCPToolResult{
		Content: []models.MCPToolContent{{Type: "text", Text: text}},
		IsError: false,
	}
}

func toolError(errDetail *models.ErrorDetail) *models.MCPToolResult {
	text := "Error: An unexpected error occurred, but no details were provided."
	if errDetail != nil {
		text = fmt.Sprintf("Error: %s (Code: %d)", errDetail.Message, errDetail.Code)
	}
	return &models.MCPToolResult{
		Content: []models.MCPToolContent{{Type: "text", Text: text}},
		IsError: true,
	}
}

func displayFilter(filter string) string {
	if filter == "" {
		return "any"
	}
	return strings.TrimPrefix(strings.ToLower(filter), ".")
}

func formatSize(size int64) string {
	if size >= 1024*1024 {
		return fmt.Sprintf("%.2f MB", float64(size)/(1024*1024))
	}
	return fmt.Sprintf("%.2f KB", float64(size)/1024)
}

func formatListFiles(resp *models.ListFilesResponse, filter string) string {
	if len(resp.Files) == 0 {
		if filter == "" {
			return fmt.Sprintf("No files found in %s", resp.Directory)
		}
		return fmt.Sprintf("No %s files found in %s", displayFilter(filter), resp.Directory)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d file(s) in %s (showing %d most recent):\n\n", resp.TotalCount, resp.Directory, len(resp.Files))
	for _, f := range resp.Files {
		fmt.Fprintf(&b, "%s (%s) - %s\n", f.Name, formatSize(f.Size), f.Modified)
	}
	return b.String()
}

func formatListRecent(resp *models.ListFilesResponse, filter string) string {
	if len(resp.Files) == 0 {
		typeMsg := ""
		if filter != "" {
			typeMsg = fmt.Sprintf(" of type '%s'", displayFilter(filter))
		}
		return fmt.Sprintf("No files%s found in %s", typeMsg, resp.Directory)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Recent files in %s (showing %d of %d):\n\n", resp.Directory, len(resp.Files), resp.TotalCount)
	for i, f := range resp.Files {
		badge := ""
		if i == 0 {
			badge = " [LATEST]"
		}
		fmt.Fprintf(&b, "%s%s\n  Size: %s | Modified: %s\n\n", f.Name, badge, formatSize(f.Size), f.Modified)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatUnzip(resp *models.UnzipArchiveResponse, latest bool) string {
	var b strings.Builder
	if latest {
		fmt.Fprintf(&b, "Successfully unzipped the latest download: %s to %s\n", resp.Archive, resp.Destination)
	} else {
		fmt.Fprintf(&b, "Successfully unzipped %s to %s\n", resp.Archive, resp.Destination)
	}
	fmt.Fprintf(&b, "\nExtracted %d file(s)", resp.ExtractedCount)
	if len(resp.Extracted) > 0 {
		fmt.Fprintf(&b, ":\n%s", strings.Join(resp.Extracted, "\n"))
	}
	if len(resp.Skipped) > 0 {
		fmt.Fprintf(&b, "\n\nSkipped %d existing file(s):\n%s", len(resp.Skipped), strings.Join(resp.Skipped, "\n"))
	}
	if len(resp.Failed) > 0 {
		fmt.Fprintf(&b, "\n\n%d entr%s failed:", len(resp.Failed), pluralY(len(resp.Failed)))
		for _, f := range resp.Failed {
			fmt.Fprintf(&b, "\n%s: %s", f.Name, f.Reason)
		}
	}
	return b.String()
}

func formatMove(resp *models.MoveFilesResponse, filter string) string {
	if resp.MovedCount == 0 && len(resp.Failed) == 0 {
		if filter == "" {
			return fmt.Sprintf("No files found in %s", resp.Source)
		}
		return fmt.Sprintf("No %s files found in %s", displayFilter(filter), resp.Source)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Successfully moved %d file(s) from %s to %s\n", resp.MovedCount, resp.Source, resp.Destination)
	if len(resp.Moved) > 0 {
		fmt.Fprintf(&b, "\nMoved files:\n%s", strings.Join(resp.Moved, "\n"))
	}
	if len(resp.Failed) > 0 {
		fmt.Fprintf(&b, "\n\n%d file(s) could not be moved:", len(resp.Failed))
		for _, f := range resp.Failed {
			fmt.Fprintf(&b, "\n%s: %s", f.Name, f.Reason)
		}
	}
	return b.String()
}

func formatUnzipAndMove(resp *models.UnzipAndMoveResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "1. Unzipped %s (%d file(s)) to %s\n", resp.Unzip.Archive, resp.Unzip.ExtractedCount, resp.Unzip.Destination)
	if resp.Move.MovedCount == 0 && len(resp.Move.Failed) == 0 {
		fmt.Fprintf(&b, "2. No matching files were found in the archive.")
		return b.String()
	}
	fmt.Fprintf(&b, "2. Moved %d file(s) to %s\n", resp.Move.MovedCount, resp.Move.Destination)
	if len(resp.Move.Moved) > 0 {
		fmt.Fprintf(&b, "\nMoved files:\n%s", strings.Join(resp.Move.Moved, "\n"))
	}
	if len(resp.Move.Failed) > 0 {
		fmt.Fprintf(&b, "\n\n%d file(s) could not be moved:", len(resp.Move.Failed))
		for _, f := range resp.Move.Failed {
			fmt.Fprintf(&b, "\n%s: %s", f.Name, f.Reason)
		}
	}
	return b.String()
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
