package snaperr

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies a failure.
type Code string

const (
	// CodeMissingManifest indicates the manifest file could not be opened.
	CodeMissingManifest Code = "missing-manifest"
	// CodeMissingFile indicates a manifest entry names a file that cannot be read.
	CodeMissingFile Code = "missing-file"
	// CodeMalformed indicates the snapshot is not well-formed XML.
	CodeMalformed Code = "malformed-document"
	// CodeMissingRoot indicates the snapshot lacks the wrapper root element.
	CodeMissingRoot Code = "missing-root"
	// CodeUnexpectedEntity indicates a top-level element that is not the declared entity type.
	CodeUnexpectedEntity Code = "unexpected-entity"

	// CodeMissingIdentity indicates an entity element without an identity attribute.
	CodeMissingIdentity Code = "missing-identity"
	// CodeIdentityCollision indicates a public-id already bound to an entity of another type.
	CodeIdentityCollision Code = "identity-collision"
	// CodeDuplicateIdentity indicates two siblings with the same identity in one parent occurrence.
	CodeDuplicateIdentity Code = "duplicate-identity"

	// CodeOutOfOrder indicates a version append that violates manifest order.
	CodeOutOfOrder Code = "out-of-order"
)

// Structural reports whether the code aborts a run because of its input shape.
func (c Code) Structural() bool {
	switch c {
	case CodeMissingManifest, CodeMissingFile, CodeMalformed, CodeMissingRoot, CodeUnexpectedEntity:
		return true
	}
	return false
}

// Identity reports whether the code is an identity resolution failure.
func (c Code) Identity() bool {
	switch c {
	case CodeMissingIdentity, CodeIdentityCollision, CodeDuplicateIdentity:
		return true
	}
	return false
}

// Error is a located failure raised while reading or ingesting snapshots.
type Error struct {
	Code    Code
	Message string
	File    string
	Path    string
	Offset  int64
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(e.Code))
	b.WriteString("] ")
	b.WriteString(e.Message)
	if e.File != "" {
		b.WriteString(" in ")
		b.WriteString(e.File)
		if e.Offset > 0 {
			fmt.Fprintf(&b, " (offset %d)", e.Offset)
		}
	}
	if e.Path != "" {
		b.WriteString(" at ")
		b.WriteString(e.Path)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an Error with the given code and message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an Error with the given code wrapping err.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// In sets the file location and returns e.
func (e *Error) In(file string, offset int64) *Error {
	e.File = file
	e.Offset = offset
	return e
}

// At sets the element path and returns e.
func (e *Error) At(path string) *Error {
	e.Path = path
	return e
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
