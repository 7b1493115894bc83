package ipc

import "encoding/json"

// Error codes returned by the daemon.
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeMalformedXML     = "MALFORMED_XML"
	CodeNoDocument       = "NO_DOCUMENT"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeIOError          = "IO_ERROR"
	CodeStorageError     = "STORAGE_ERROR"
	CodeVCSError         = "VCS_ERROR"
	CodeInternal         = "INTERNAL"
)

// Request models RPC requests.
type Request struct {
	ID     string          `json:"id,omitempty"`
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response models RPC responses. Frames pushed on a stream carry Event and
// reuse the ID of the request that opened it.
type Response struct {
	ID      string          `json:"id,omitempty"`
	OK      bool            `json:"ok"`
	Event   string          `json:"event,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	TraceID string          `json:"traceId,omitempty"`
}

// Error follows the API contract for structured failures.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Message + " (" + e.Code + ")"
}
