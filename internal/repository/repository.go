// Package repository contains data access layer abstractions.
// Implementations live in subpackages (e.g. postgres) inside this directory.
package repository

import (
	"context"
	"errors"

	"bookintake/internal/model"
)

// ErrNotConfigured is returned when no database connection settings were provided.
var ErrNotConfigured = errors.New("database is not configured")

// ListFilter narrows a listing by exact match. Empty fields are ignored.
// Limit <= 0 returns every matching row.
type ListFilter struct {
	DeviceSerial string
	PhoneNumber  string
	ISBN         string
	Limit        int
}

// Unconfigured returns a SubmissionRepository whose every call fails with ErrNotConfigured.
func Unconfigured() SubmissionRepository { return unconfigured{} }

type unconfigured struct{}

func (unconfigured) Create(context.Context, *model.Submission) (*model.Submission, error) {
	return nil, ErrNotConfigured
}

func (unconfigured) List(context.Context, ListFilter) ([]model.Submission, error) {
	return nil, ErrNotConfigured
}
