package service

import (
	"fmt"
)

// Kind classifies a submission failure for the caller.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindValidation    Kind = "validation"
	KindUpload        Kind = "upload"
	KindPersistence   Kind = "persistence"
)

// Error is returned by SubmissionService for every failure it surfaces.
// Message is safe to show to a user; Err holds the underlying cause.
type Error struct {
	Kind    Kind
	Stage   Stage
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Kind, e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Stage, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }
