package model

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed or missing caller input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NotFoundError reports an absent candidate or asset
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

// ToolKind names the external tool stage that failed
type ToolKind string

const (
	ToolKindSearch   ToolKind = "search"
	ToolKindDownload ToolKind = "download"
	ToolKindProbe    ToolKind = "probe"
	ToolKindMix      ToolKind = "mix"
	ToolKindExtract  ToolKind = "extract"
)

// ToolError wraps a failed external tool invocation.
// Detail is for logs only and never reaches the caller.
type ToolError struct {
	Kind   ToolKind
	Detail string
	Err    error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s failed", e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// PublicMessage is the generic text sent to callers for this failure
func (e *ToolError) PublicMessage() string {
	switch e.Kind {
	case ToolKindDownload:
		return "Download failed"
	case ToolKindProbe:
		return "Could not read media"
	case ToolKindMix:
		return "Export failed"
	case ToolKindExtract:
		return "Audio extraction failed"
	default:
		return "Search failed"
	}
}

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func NewNotFoundError(format string, args ...interface{}) error {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

func NewDownloadError(detail string, err error) error {
	return &ToolError{Kind: ToolKindDownload, Detail: detail, Err: err}
}

func NewProbeError(detail string, err error) error {
	return &ToolError{Kind: ToolKindProbe, Detail: detail, Err: err}
}

func NewMixError(detail string, err error) error {
	return &ToolError{Kind: ToolKindMix, Detail: detail, Err: err}
}

func NewExtractError(detail string, err error) error {
	return &ToolError{Kind: ToolKindExtract, Detail: detail, Err: err}
}

// IsNotFound reports whether err is, or wraps, a NotFoundError
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err is, or wraps, a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// PublicMessage maps any pipeline error to the text a caller may see.
func PublicMessage(err error) string {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nf.Message
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te.PublicMessage()
	}
	return "Processing failed"
}
