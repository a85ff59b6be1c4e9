package ttypes

import (
	"errors"
	"fmt"
)

// Common radio errors
var (
	// ErrFetchInFlight indicates a fetch was requested while another is outstanding
	ErrFetchInFlight = errors.New("segment fetch already in flight")

	// ErrMissingInstructions indicates a fetch was requested without instructions
	ErrMissingInstructions = errors.New("instructions are required")

	// ErrMissingText indicates synthesis was requested without text
	ErrMissingText = errors.New("text is required")

	// ErrEmptyAudio indicates the speech collaborator returned no audio
	ErrEmptyAudio = errors.New("speech synthesis returned no audio")

	// ErrSessionClosed indicates an operation on a closed session
	ErrSessionClosed = errors.New("radio session is closed")

	// ErrSessionNotStarted indicates a control used before the session started
	ErrSessionNotStarted = errors.New("radio session is not started")
)

// ErrorKind identifies the error taxonomy of the fetch path
type ErrorKind string

const (
	// KindValidation is a missing required input, surfaced immediately
	KindValidation ErrorKind = "VALIDATION"

	// KindConfiguration is a missing secret or credential
	KindConfiguration ErrorKind = "CONFIGURATION"

	// KindUpstream is a collaborator that returned an error or could not be reached
	KindUpstream ErrorKind = "UPSTREAM"
)

// Step identifies which collaborator call of a fetch failed
type Step string

const (
	StepScript Step = "script"
	StepSpeech Step = "speech"
)

// Error represents a radio-specific error with additional context
type Error struct {
	Kind    ErrorKind
	Step    Step
	Status  int // HTTP status returned by a collaborator, if any
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Step != "" {
		prefix += "(" + string(e.Step) + ")"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewValidationError creates an error for missing required input.
func NewValidationError(step Step, cause error) *Error {
	return &Error{Kind: KindValidation, Step: step, Message: cause.Error(), Cause: cause}
}

// NewConfigurationError creates an error for a missing credential.
func NewConfigurationError(message string) *Error {
	return &Error{Kind: KindConfiguration, Message: message}
}

// NewUpstreamError creates an error for a failed collaborator call.
func NewUpstreamError(step Step, message string, cause error) *Error {
	return &Error{Kind: KindUpstream, Step: step, Message: message, Cause: cause}
}

// WithStatus records the HTTP status returned by the collaborator.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// IsKind reports whether err is a radio error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind == kind
	}
	return false
}

// KindOf returns the kind of a radio error, or an empty kind.
func KindOf(err error) ErrorKind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}
