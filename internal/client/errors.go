package client

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

// Failure kinds. Match them with errors.Is on a *GenerationError.
var (
	ErrSubmission      = errors.New("generation request rejected")
	ErrPoll            = errors.New("generation status refresh failed")
	ErrOperationFailed = errors.New("generation job failed")
	ErrEmptyResult     = errors.New("generation completed but no output location was returned")
	ErrTimeout         = errors.New("generation timed out")
	ErrCanceled        = errors.New("generation canceled")
)

var errNoCredential = errors.New("no API key configured")

// GenerationError carries the failure kind and the remote status, if any.
type GenerationError struct {
	Kind       error
	StatusCode int    // HTTP status reported by the service, 0 if unknown
	Status     string // remote status name, e.g. PERMISSION_DENIED
	Operation  string
	Attempt    int
	Err        error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsAuthFailure reports whether the service refused the credential.
func (e *GenerationError) IsAuthFailure() bool {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

// Code is the stable identifier surfaced to API clients.
func (e *GenerationError) Code() string {
	switch e.Kind {
	case ErrSubmission:
		return "SUBMISSION_FAILED"
	case ErrPoll:
		return "POLL_FAILED"
	case ErrOperationFailed:
		return "OPERATION_FAILED"
	case ErrEmptyResult:
		return "EMPTY_RESULT"
	case ErrTimeout:
		return "TIMEOUT"
	case ErrCanceled:
		return "CANCELED"
	}
	return "GENERATION_FAILED"
}

// IsAuthFailure reports whether err is a GenerationError caused by a
// rejected credential.
func IsAuthFailure(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge) && ge.IsAuthFailure()
}

func newGenerationError(kind error, err error) *GenerationError {
	ge := &GenerationError{Kind: kind, Err: err}

	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		ge.StatusCode, ge.Status = apiErr.Code, apiErr.Status
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		ge.StatusCode, ge.Status = apiErrPtr.Code, apiErrPtr.Status
	}
	return ge
}

// grpcToHTTP maps the google.rpc.Code of a failed operation onto HTTP.
var grpcToHTTP = map[int]int{
	3:  http.StatusBadRequest,          // INVALID_ARGUMENT
	4:  http.StatusGatewayTimeout,      // DEADLINE_EXCEEDED
	5:  http.StatusNotFound,            // NOT_FOUND
	7:  http.StatusForbidden,           // PERMISSION_DENIED
	8:  http.StatusTooManyRequests,     // RESOURCE_EXHAUSTED
	13: http.StatusInternalServerError, // INTERNAL
	14: http.StatusServiceUnavailable,  // UNAVAILABLE
	16: http.StatusUnauthorized,        // UNAUTHENTICATED
}

// operationError converts the error map of a finished operation.
func operationError(op *genai.GenerateVideosOperation, attempt int) *GenerationError {
	msg, _ := op.Error["message"].(string)
	if msg == "" {
		msg = "unknown error"
	}
	ge := &GenerationError{
		Kind:      ErrOperationFailed,
		Operation: op.Name,
		Attempt:   attempt,
		Err:       errors.New(msg),
	}
	if status, ok := op.Error["status"].(string); ok {
		ge.Status = status
	}

	var code int
	switch v := op.Error["code"].(type) {
	case float64:
		code = int(v)
	case int:
		code = v
	case int32:
		code = int(v)
	case int64:
		code = int(v)
	}
	if httpCode, ok := grpcToHTTP[code]; ok {
		ge.StatusCode = httpCode
	}
	return ge
}
