package errors

import (
	"fmt"
	"net/http"
	"time"

	"file-manager-server/internal/models"
)

// JSON-RPC Error Codes (as per JSON-RPC 2.0 Specification)
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Application Specific Error Codes
const (
	// CodeIOError covers permission and disk failures during filesystem
	// operations. The data field carries a "type" discriminator.
	CodeIOError = -32001

	// CodeNotFound indicates a missing directory, file, or an empty result
	// where one entry was required.
	CodeNotFound = -32002

	// CodeCorruptArchive indicates malformed archive data.
	CodeCorruptArchive = -32003

	// CodeSecurityViolation indicates an archive entry whose resolved path
	// would escape the destination directory.
	CodeSecurityViolation = -32004

	// CodeOperationLockFailed indicates that a lock on the destination
	// directory could not be acquired in time.
	CodeOperationLockFailed = -32005
)

// NewErrorDetail creates a new ErrorDetail.
func NewErrorDetail(code int, message string, data interface{}) *models.ErrorDetail {
	return &models.ErrorDetail{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// NewParseError creates an ErrorDetail for JSON parsing errors.
func NewParseError(details string) *models.ErrorDetail {
	return NewErrorDetail(CodeParseError, "Parse error", map[string]interface{}{"details": details})
}

// NewInvalidRequestError creates an ErrorDetail for invalid JSON-RPC Request objects.
func NewInvalidRequestError(details string) *models.ErrorDetail {
	return NewErrorDetail(CodeInvalidRequest, "Invalid Request", map[string]interface{}{"details": details})
}

// NewMethodNotFoundError creates an ErrorDetail when a JSON-RPC method is not found.
func NewMethodNotFoundError(methodName string) *models.ErrorDetail {
	return NewErrorDetail(CodeMethodNotFound, "Method not found", map[string]interface{}{"details": methodName})
}

// NewInvalidParamsError creates an ErrorDetail for invalid or unsupported
// command arguments (bad filter, malformed path, missing required field).
func NewInvalidParamsError(message, path, operation string) *models.ErrorDetail {
	if message == "" {
		message = "Invalid params"
	}
	return NewErrorDetail(CodeInvalidParams, message, map[string]interface{}{
		"path":      path,
		"operation": operation,
		"type":      "invalid_argument",
	})
}

// NewInternalError creates an ErrorDetail for unexpected server errors.
func NewInternalError(details string) *models.ErrorDetail {
	return NewErrorDetail(CodeInternalError, "Internal error", map[string]interface{}{"details": details})
}

// NewNotFoundError creates an ErrorDetail for a missing directory or file.
func NewNotFoundError(path, operation string) *models.ErrorDetail {
	return NewErrorDetail(CodeNotFound, fmt.Sprintf("Not found: %s", path), map[string]interface{}{
		"path":      path,
		"operation": operation,
		"type":      "not_found",
	})
}

// NewEmptyResultError creates an ErrorDetail for queries that required at
// least one matching file but found none.
func NewEmptyResultError(filter, directory, operation string) *models.ErrorDetail {
	msg := fmt.Sprintf("No files matching '%s' found in %s", filter, directory)
	if filter == "" {
		msg = fmt.Sprintf("No files found in %s", directory)
	}
	return NewErrorDetail(CodeNotFound, msg, map[string]interface{}{
		"path":      directory,
		"operation": operation,
		"type":      "empty_result",
	})
}

// NewCorruptArchiveError creates an ErrorDetail for malformed archive data.
func NewCorruptArchiveError(archive, details string) *models.ErrorDetail {
	return NewErrorDetail(CodeCorruptArchive, fmt.Sprintf("Archive '%s' is not a valid zip file", archive), map[string]interface{}{
		"path":      archive,
		"operation": "unzip",
		"details":   details,
		"type":      "corrupt_archive",
	})
}

// NewSecurityError creates an ErrorDetail for a path-traversal attempt.
func NewSecurityError(entry, operation string) *models.ErrorDetail {
	return NewErrorDetail(CodeSecurityViolation, fmt.Sprintf("Entry '%s' resolves outside the destination directory", entry), map[string]interface{}{
		"path":      entry,
		"operation": operation,
		"type":      "path_traversal",
	})
}

// NewIOError creates an ErrorDetail for a generic filesystem failure.
func NewIOError(path, operation, details string) *models.ErrorDetail {
	return NewErrorDetail(CodeIOError, "File system error", map[string]interface{}{
		"path":      path,
		"operation": operation,
		"details":   details,
		"type":      "io_error",
	})
}

// NewPermissionDeniedError creates an ErrorDetail for permission failures.
func NewPermissionDeniedError(path, operation string) *models.ErrorDetail {
	return NewErrorDetail(CodeIOError, fmt.Sprintf("Permission denied for '%s'", path), map[string]interface{}{
		"path":      path,
		"operation": operation,
		"type":      "permission_denied",
	})
}

// NewInsufficientSpaceError creates an ErrorDetail when the destination
// partition does not have room for the declared archive contents.
func NewInsufficientSpaceError(path string, required, free uint64) *models.ErrorDetail {
	return NewErrorDetail(CodeIOError,
		fmt.Sprintf("Not enough free space at '%s': need %d bytes, have %d", path, required, free),
		map[string]interface{}{
			"path":      path,
			"operation": "unzip",
			"type":      "insufficient_space",
		})
}

// NewOperationLockFailedError creates an ErrorDetail for failures to acquire
// the destination directory lock.
func NewOperationLockFailedError(path, operation, details string) *models.ErrorDetail {
	return NewErrorDetail(CodeOperationLockFailed,
		fmt.Sprintf("Could not acquire lock for operation '%s' on '%s'", operation, path),
		map[string]interface{}{
			"path":      path,
			"operation": operation,
			"details":   details,
			"type":      "lock_failed",
		})
}

// ToJSONRPCError converts an ErrorDetail to a models.JSONRPCError,
// flattening the known data fields.
func ToJSONRPCError(errDetail *models.ErrorDetail) *models.JSONRPCError {
	if errDetail == nil {
		return nil
	}
	rpcErr := &models.JSONRPCError{
		Code:    errDetail.Code,
		Message: errDetail.Message,
	}
	if errDetail.Data != nil {
		data := &models.JSONRPCErrorData{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if dataMap, ok := errDetail.Data.(map[string]interface{}); ok {
			if v, ok := dataMap["path"].(string); ok {
				data.Path = v
			}
			if v, ok := dataMap["operation"].(string); ok {
				data.Operation = v
			}
			if v, ok := dataMap["details"].(string); ok {
				data.Details = v
			}
		} else {
			data.Details = fmt.Sprintf("%v", errDetail.Data)
		}
		rpcErr.Data = data
	}
	return rpcErr
}

// ErrorType extracts the "type" discriminator from an ErrorDetail's data,
// or an empty string when absent.
func ErrorType(errDetail *models.ErrorDetail) string {
	if errDetail == nil {
		return ""
	}
	if dataMap, ok := errDetail.Data.(map[string]interface{}); ok {
		if v, ok := dataMap["type"].(string); ok {
			return v
		}
	}
	return ""
}

// MapErrorToHTTPStatus maps an internal error code to an HTTP status code
// for the HTTP transport's envelope-level failures.
func MapErrorToHTTPStatus(errorCode int) int {
	switch errorCode {
	case CodeParseError, CodeInvalidRequest, CodeInvalidParams:
		return http.StatusBadRequest
	case CodeMethodNotFound:
		return http.StatusNotFound
	case CodeNotFound:
		return http.StatusNotFound
	case CodeSecurityViolation:
		return http.StatusForbidden
	case CodeOperationLockFailed:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
