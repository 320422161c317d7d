package errors

import "fmt"

// ErrorCode represents a PromptBoost error code.
type ErrorCode string

const (
	// User input errors: the job never starts, or aborts before any side effect.
	ErrEmptyDraft  ErrorCode = "EMPTY_DRAFT"  // 422
	ErrNoTemplate  ErrorCode = "NO_TEMPLATE"  // 422
	ErrEmptyAppend ErrorCode = "EMPTY_APPEND" // 422

	// Configuration errors: user must visit settings; no partial state change.
	ErrMissingCredential ErrorCode = "MISSING_CREDENTIAL" // 401
	ErrMissingEndpoint   ErrorCode = "MISSING_ENDPOINT"   // 400

	// Transport errors: the generation service call failed; draft untouched.
	ErrTransport   ErrorCode = "TRANSPORT"    // 502
	ErrEmptyResult ErrorCode = "EMPTY_RESULT" // 502

	// Integration errors: the host page structure went missing mid-job.
	ErrSurfaceNotFound ErrorCode = "SURFACE_NOT_FOUND" // 409
	ErrSubmitNotFound  ErrorCode = "SUBMIT_NOT_FOUND"  // 409

	// Busy: a rewrite job is already in flight; request rejected, not queued.
	ErrBusy ErrorCode = "BUSY" // 409

	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrConflict       ErrorCode = "CONFLICT"        // 409
	ErrInternal       ErrorCode = "INTERNAL"        // 500
)

// BoostError represents a structured error with code, status, and details.
type BoostError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *BoostError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewEmptyDraft creates an error for a rewrite request with no draft text.
func NewEmptyDraft() *BoostError {
	return &BoostError{
		Code:    ErrEmptyDraft,
		Status:  422,
		Message: "draft is empty; type a message before boosting",
	}
}

// NewNoTemplate creates an error for a rewrite request with no active template.
func NewNoTemplate() *BoostError {
	return &BoostError{
		Code:    ErrNoTemplate,
		Status:  422,
		Message: "no template selected",
	}
}

// NewEmptyAppend creates an error for an append template with an empty body.
func NewEmptyAppend(label string) *BoostError {
	return &BoostError{
		Code:    ErrEmptyAppend,
		Status:  422,
		Message: fmt.Sprintf("template %q has an empty append body", label),
		Details: map[string]any{"label": label},
	}
}

// NewMissingCredential creates an error for a missing API key.
func NewMissingCredential() *BoostError {
	return &BoostError{
		Code:    ErrMissingCredential,
		Status:  401,
		Message: "no API key configured; open settings to add one",
	}
}

// NewMissingEndpoint creates an error for a missing service endpoint.
func NewMissingEndpoint() *BoostError {
	return &BoostError{
		Code:    ErrMissingEndpoint,
		Status:  400,
		Message: "no service endpoint configured; open settings to add one",
	}
}

// NewTransport creates an error for a failed generation service call.
// status is the upstream HTTP status, or 0 for network-level failures.
func NewTransport(status int, detail string) *BoostError {
	msg := "rewrite service request failed"
	if status > 0 {
		msg = fmt.Sprintf("rewrite service returned status %d", status)
	}
	return &BoostError{
		Code:    ErrTransport,
		Status:  502,
		Message: msg,
		Details: map[string]any{"upstream_status": status, "detail": detail},
	}
}

// NewEmptyResult creates an error for a service response with no usable text.
func NewEmptyResult() *BoostError {
	return &BoostError{
		Code:    ErrEmptyResult,
		Status:  502,
		Message: "rewrite service returned no text",
	}
}

// NewSurfaceNotFound creates an error for a missing editable surface.
func NewSurfaceNotFound() *BoostError {
	return &BoostError{
		Code:    ErrSurfaceNotFound,
		Status:  409,
		Message: "could not find the message input on the page",
	}
}

// NewSubmitNotFound creates an error for a missing submit affordance.
func NewSubmitNotFound() *BoostError {
	return &BoostError{
		Code:    ErrSubmitNotFound,
		Status:  409,
		Message: "could not find the send control on the page",
	}
}

// NewBusy creates an error for a rewrite requested while one is in flight.
func NewBusy() *BoostError {
	return &BoostError{
		Code:    ErrBusy,
		Status:  409,
		Message: "a rewrite is already in progress",
	}
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *BoostError {
	return &BoostError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing template.
func NewNotFound(identifier string) *BoostError {
	return &BoostError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("template not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewConflict creates a 409 error for general conflicts.
func NewConflict(msg string) *BoostError {
	return &BoostError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *BoostError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &BoostError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is a BoostError with the given code.
func Is(err error, code ErrorCode) bool {
	if bErr, ok := err.(*BoostError); ok {
		return bErr.Code == code
	}
	return false
}

// Notice converts any failure into the single user-visible notice string.
// Configuration errors point the user at settings; everything else shows
// the message as-is.
func Notice(err error) string {
	bErr, ok := err.(*BoostError)
	if !ok {
		return "something went wrong"
	}
	return bErr.Message
}
