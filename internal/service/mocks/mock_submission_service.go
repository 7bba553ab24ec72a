package mocks

import (
	"context"
	"io"

	"bookintake/internal/export"
	"bookintake/internal/model"
	"bookintake/internal/repository"
	"bookintake/internal/service"

	"github.com/stretchr/testify/mock"
)

type MockSubmissionService struct {
	mock.Mock
}

func (m *MockSubmissionService) Submit(ctx context.Context, in service.SubmissionInput) (*model.Submission, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Submission), args.Error(1)
}

func (m *MockSubmissionService) List(ctx context.Context, f repository.ListFilter) (*service.SubmissionListResult, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SubmissionListResult), args.Error(1)
}

func (m *MockSubmissionService) Export(ctx context.Context, format export.Format, f repository.ListFilter, w io.Writer) error {
	args := m.Called(ctx, format, f, w)
	if fn, ok := args.Get(0).(func(io.Writer) error); ok {
		return fn(w)
	}
	return args.Error(0)
}
