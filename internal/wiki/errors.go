package wiki

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code is a stable machine-readable error identifier.
type Code string

const (
	CodeEmptyFileTree            Code = "EMPTY_FILE_TREE"
	CodeInvalidSignalPaths       Code = "INVALID_SIGNAL_PATHS"
	CodeInvalidSubsystemNames    Code = "INVALID_SUBSYSTEM_NAMES"
	CodeEmptyEvidenceContext     Code = "EMPTY_EVIDENCE_CONTEXT"
	CodeMissingSubsystemEvidence Code = "MISSING_SUBSYSTEM_EVIDENCE"
	CodeMissingWikiCitations     Code = "MISSING_WIKI_CITATIONS"
	CodeFetchFailed              Code = "FETCH_FAILED"
	CodeGenerationFailed         Code = "GENERATION_FAILED"
	CodeInvalidGenerationOutput  Code = "INVALID_GENERATION_OUTPUT"
	CodeInvalidRepository        Code = "INVALID_REPOSITORY"
)

// Error is the structured error every pipeline stage returns.
type Error struct {
	Code    Code
	Message string
	Details map[string]string
	Err     error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Code))
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s=%s", k, e.Details[k])
		}
		sb.WriteString(")")
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError builds an Error. details is a flat key/value list.
func NewError(code Code, message string, details ...string) *Error {
	e := &Error{Code: code, Message: message}
	for i := 0; i+1 < len(details); i += 2 {
		if e.Details == nil {
			e.Details = make(map[string]string)
		}
		e.Details[details[i]] = details[i+1]
	}
	return e
}

// Wrap attaches cause to a new Error.
func Wrap(code Code, cause error, message string, details ...string) *Error {
	e := NewError(code, message, details...)
	e.Err = cause
	return e
}

// Sentinels for errors.Is.
var (
	ErrEmptyFileTree            = &Error{Code: CodeEmptyFileTree}
	ErrInvalidSignalPaths       = &Error{Code: CodeInvalidSignalPaths}
	ErrInvalidSubsystemNames    = &Error{Code: CodeInvalidSubsystemNames}
	ErrEmptyEvidenceContext     = &Error{Code: CodeEmptyEvidenceContext}
	ErrMissingSubsystemEvidence = &Error{Code: CodeMissingSubsystemEvidence}
	ErrMissingWikiCitations     = &Error{Code: CodeMissingWikiCitations}
	ErrFetchFailed              = &Error{Code: CodeFetchFailed}
	ErrGenerationFailed         = &Error{Code: CodeGenerationFailed}
	ErrInvalidGenerationOutput  = &Error{Code: CodeInvalidGenerationOutput}
	ErrInvalidRepository        = &Error{Code: CodeInvalidRepository}
)

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
