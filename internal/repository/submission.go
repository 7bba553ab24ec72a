package repository

import (
	"context"

	"bookintake/internal/model"
)

// SubmissionRepository defines data access for submissions using SQL queries only.
type SubmissionRepository interface {
	// Create inserts a submission and returns the stored row, including the
	// database-assigned id.
	Create(ctx context.Context, s *model.Submission) (*model.Submission, error)

	// List returns submissions newest first.
	List(ctx context.Context, f ListFilter) ([]model.Submission, error)
}
