package tools

import (
	"encoding/json"
	"errors"

	"github.com/nextlevelbuilder/memoria/internal/store"
	"github.com/nextlevelbuilder/memoria/pkg/protocol"
)

// Result is the unified return type from tool execution.
type Result struct {
	Content string `json:"content"`        // JSON payload returned to the caller
	IsError bool   `json:"is_error"`       // the operation failed
	Code    string `json:"code,omitempty"` // protocol error code; also set for NOT_FOUND
	Err     error  `json:"-"`              // internal error (not serialized)
}

func NewResult(content string) *Result {
	return &Result{Content: content}
}

// JSONResult marshals v as the result content.
func JSONResult(v any) *Result {
	data, err := json.Marshal(v)
	if err != nil {
		return ErrorResult(protocol.ErrInternal, "encode result: "+err.Error())
	}
	return &Result{Content: string(data)}
}

// ErrorResult builds a failed result carrying code and a human-readable message.
func ErrorResult(code, message string) *Result {
	data, _ := json.Marshal(errorPayload{
		Success: false,
		Error:   errorBody{Code: code, Message: message},
	})
	return &Result{Content: string(data), IsError: true, Code: code}
}

// FromError maps a service error to a failed result.
func FromError(err error) *Result {
	return ErrorResult(ErrorCode(err), err.Error()).WithError(err)
}

func (r *Result) WithError(err error) *Result {
	r.Err = err
	return r
}

// ErrorCode classifies err into a protocol error code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case store.IsValidation(err):
		return protocol.ErrInvalidRequest
	case store.IsEmbedding(err):
		return protocol.ErrUnavailable
	}
	if se, ok := store.AsStorage(err); ok {
		if se.Retryable {
			return protocol.ErrUnavailable
		}
		return protocol.ErrFailedPrecondition
	}
	if errors.Is(err, store.ErrDimensionMismatch) || errors.Is(err, store.ErrSchemaMissing) {
		return protocol.ErrFailedPrecondition
	}
	return protocol.ErrInternal
}

type errorPayload struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
