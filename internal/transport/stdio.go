package transport

import (
	"bufio"
	"bytes"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"

	"file-manager-server/internal/errors"
	"file-manager-server/internal/mcp"
	"file-manager-server/internal/models"

	"github.com/rs/xid"
	"go.uber.org/zap"
)

// maxLineBytes bounds a single JSON-RPC line on stdin.
const maxLineBytes = 4 * 1024 * 1024

var errLineTooLong = stdErrors.New("request line exceeds the size limit")

// StdioHandler handles JSON-RPC communication over standard input/output.
// Responses go to the output writer; all logging stays on the logger so
// stdout carries nothing but protocol traffic.
type StdioHandler struct {
	processor *mcp.Processor
	logger    *zap.Logger
}

// NewStdioHandler creates a new StdioHandler.
func NewStdioHandler(processor *mcp.Processor, logger *zap.Logger) *StdioHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StdioHandler{processor: processor, logger: logger}
}

func (h *StdioHandler) writeResponse(writer io.Writer, response models.JSONRPCResponse) {
	responseBytes, err := json.Marshal(response)
	if err != nil {
		h.logger.Error("failed to marshal response", zap.Any("id", response.ID), zap.Error(err))
		fallback := models.JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      response.ID,
			Error:   errors.ToJSONRPCError(errors.NewInternalError("Server error: failed to marshal response.")),
		}
		responseBytes, _ = json.Marshal(fallback)
	}
	if _, err := fmt.Fprintln(writer, string(responseBytes)); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// Start processes newline-delimited JSON-RPC requests from input until EOF.
// An oversized line is answered with a Parse error and the loop keeps
// serving; only a real read failure stops it.
func (h *StdioHandler) Start(input io.Reader, output io.Writer) error {
	h.logger.Info("stdio transport started")
	reader := bufio.NewReaderSize(input, 64*1024)

	for {
		lineBytes, err := readLine(reader)
		if stdErrors.Is(err, errLineTooLong) {
			h.logger.Warn("request line too long", zap.Int("limit_bytes", maxLineBytes))
			h.writeResponse(output, models.JSONRPCResponse{
				JSONRPC: "2.0",
				ID:      nil,
				Error: errors.ToJSONRPCError(errors.NewParseError(
					fmt.Sprintf("Request exceeds the %d byte line limit.", maxLineBytes))),
			})
			continue
		}
		if len(bytes.TrimSpace(lineBytes)) > 0 {
			h.handleLine(lineBytes, output)
		}
		if err == io.EOF {
			h.logger.Info("stdio transport finished")
			return nil
		}
		if err != nil {
			h.logger.Error("error reading from stdin", zap.Error(err))
			return err
		}
	}
}

func (h *StdioHandler) handleLine(lineBytes []byte, output io.Writer) {
	reqID := xid.New().String()

	var jsonReq models.JSONRPCRequest
	if err := json.Unmarshal(lineBytes, &jsonReq); err != nil {
		h.logger.Warn("invalid JSON received", zap.String("request_id", reqID), zap.Error(err))
		h.writeResponse(output, models.JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      nil,
			Error:   errors.ToJSONRPCError(errors.NewParseError(fmt.Sprintf("Invalid JSON received: %v", err))),
		})
		return
	}

	resp := models.JSONRPCResponse{JSONRPC: "2.0", ID: jsonReq.ID}

	if jsonReq.JSONRPC != "2.0" {
		resp.Error = errors.ToJSONRPCError(errors.NewInvalidRequestError("Invalid JSON-RPC version. Must be '2.0'."))
		h.writeResponse(output, resp)
		return
	}
	if jsonReq.Method == "" {
		resp.Error = errors.ToJSONRPCError(errors.NewInvalidRequestError("Method not specified."))
		h.writeResponse(output, resp)
		return
	}

	result, rpcErr := h.processor.ProcessRequest(jsonReq)
	if rpcErr != nil {
		resp.Error = rpcErr
		h.logger.Warn("request failed",
			zap.String("request_id", reqID),
			zap.String("method", jsonReq.Method),
			zap.Int("code", rpcErr.Code))
	} else {
		resp.Result = result
		h.logger.Debug("request handled",
			zap.String("request_id", reqID),
			zap.String("method", jsonReq.Method))
	}
	h.writeResponse(output, resp)
}

// readLine reads one newline-delimited line. When the line exceeds
// maxLineBytes the remainder is discarded up to the next newline and
// errLineTooLong is returned, leaving the reader positioned at the start of
// the following line.
func readLine(r *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)
		if err == bufio.ErrBufferFull {
			if len(line) > maxLineBytes {
				if err := discardLine(r); err != nil && err != io.EOF {
					return nil, err
				}
				return nil, errLineTooLong
			}
			continue
		}
		if err != nil && err != io.EOF {
			return nil, err
		}
		content := bytes.TrimSuffix(line, []byte("\n"))
		if len(content) > maxLineBytes {
			return nil, errLineTooLong
		}
		return content, err
	}
}

// discardLine drops input up to and including the next newline.
func discardLine(r *bufio.Reader) error {
	for {
		_, err := r.ReadSlice('\n')
		if err == bufio.ErrBufferFull {
			continue
		}
		return err
	}
}
