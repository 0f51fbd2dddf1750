package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool     = errors.New("external tool error")
	ErrValidation       = errors.New("validation error")
	ErrConfiguration    = errors.New("configuration error")
	ErrNotFound         = errors.New("not found")
	ErrTimeout          = errors.New("timeout")
	ErrTransient        = errors.New("transient failure")
	ErrUnsupportedInput = errors.New("unsupported input")
	ErrBarrierAborted   = errors.New("barrier aborted")
)

// ErrorKind is a coarse classification surfaced in structured failure logs.
type ErrorKind string

const (
	ErrorKindExternal      ErrorKind = "external"
	ErrorKindValidation    ErrorKind = "validation"
	ErrorKindConfiguration ErrorKind = "configuration"
	ErrorKindNotFound      ErrorKind = "not_found"
	ErrorKindTimeout       ErrorKind = "timeout"
	ErrorKindTransient     ErrorKind = "transient"
	ErrorKindUnsupported   ErrorKind = "unsupported_input"
	ErrorKindBarrier       ErrorKind = "barrier"
)

// ServiceError carries the stage context attached by Wrap.
type ServiceError struct {
	Marker    error
	Stage     string
	Operation string
	Message   string
	Hint      string
	Cause     error
}

func (e *ServiceError) Error() string {
	detail := buildDetail(e.Stage, e.Operation, e.Message)
	marker := e.Marker
	if marker == nil {
		marker = ErrTransient
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", marker, detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", marker, detail)
}

// Unwrap exposes both the classification marker and the underlying cause.
func (e *ServiceError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Marker != nil {
		out = append(out, e.Marker)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

// Wrap builds an error that includes stage context while tagging it with the
// provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &ServiceError{
		Marker:    marker,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Cause:     err,
	}
}

// WithHint attaches an operator-facing remediation hint to a wrapped error.
func WithHint(err error, hint string) error {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		svcErr.Hint = strings.TrimSpace(hint)
		return err
	}
	return err
}

// Retryable reports whether a failure may be retried from the state in which
// it occurred. Unsupported inputs and validation failures require operator
// intervention.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrUnsupportedInput), errors.Is(err, ErrValidation):
		return false
	default:
		return true
	}
}

// ErrorDetails is the structured view of a failure used by log records.
type ErrorDetails struct {
	Kind      ErrorKind
	Stage     string
	Operation string
	Message   string
	Hint      string
	Cause     error
}

// Details extracts structured failure information from err.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Kind: kindOf(err), Message: strings.TrimSpace(err.Error())}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		details.Stage = svcErr.Stage
		details.Operation = svcErr.Operation
		details.Hint = svcErr.Hint
		details.Cause = svcErr.Cause
		if msg := buildDetail("", svcErr.Operation, svcErr.Message); msg != "service failure" {
			if svcErr.Cause != nil {
				msg = msg + ": " + strings.TrimSpace(svcErr.Cause.Error())
			}
			details.Message = msg
		}
	}
	if details.Hint == "" {
		details.Hint = defaultHint(details.Kind)
	}
	return details
}

func kindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrUnsupportedInput):
		return ErrorKindUnsupported
	case errors.Is(err, ErrBarrierAborted):
		return ErrorKindBarrier
	case errors.Is(err, ErrValidation):
		return ErrorKindValidation
	case errors.Is(err, ErrConfiguration):
		return ErrorKindConfiguration
	case errors.Is(err, ErrNotFound):
		return ErrorKindNotFound
	case errors.Is(err, ErrTimeout):
		return ErrorKindTimeout
	case errors.Is(err, ErrExternalTool):
		return ErrorKindExternal
	default:
		return ErrorKindTransient
	}
}

func defaultHint(kind ErrorKind) string {
	switch kind {
	case ErrorKindUnsupported:
		return "convert or remove the file, then recover the session"
	case ErrorKindConfiguration:
		return "check the roundtable config file"
	case ErrorKindBarrier:
		return "recover failed files to retry them"
	case ErrorKindExternal, ErrorKindTransient, ErrorKindTimeout:
		return "retry the session; check provider status if it persists"
	default:
		return "check logs for details"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
