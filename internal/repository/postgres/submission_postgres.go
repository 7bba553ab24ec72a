package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"bookintake/internal/model"
	"bookintake/internal/repository"
)

// SubmissionPostgres is a PostgreSQL implementation of repository.SubmissionRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type SubmissionPostgres struct {
	db *sql.DB
}

// NewSubmissionPostgres creates a new SubmissionPostgres repository.
func NewSubmissionPostgres(db *sql.DB) *SubmissionPostgres {
	return &SubmissionPostgres{db: db}
}

var _ repository.SubmissionRepository = (*SubmissionPostgres)(nil)

const submissionColumns = `id, device_serial, phone_number, isbn, cover_image_url, copyright_image_url, created_at`

// Create inserts a new submission row and returns the stored record.
func (r *SubmissionPostgres) Create(ctx context.Context, s *model.Submission) (*model.Submission, error) {
	const q = `
		INSERT INTO submissions (device_serial, phone_number, isbn, cover_image_url, copyright_image_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + submissionColumns

	row := r.db.QueryRowContext(ctx, q,
		s.DeviceSerial,
		s.PhoneNumber,
		s.ISBN,
		s.CoverImageURL,
		nullString(s.CopyrightImageURL),
		s.CreatedAt,
	)
	out, err := scanSubmission(row)
	if err != nil {
		return nil, fmt.Errorf("insert submission: %w", err)
	}
	return out, nil
}

// List returns submissions ordered by created_at DESC, id DESC.
func (r *SubmissionPostgres) List(ctx context.Context, f repository.ListFilter) ([]model.Submission, error) {
	var (
		conds []string
		args  []any
	)
	eq := func(col, v string) {
		if v == "" {
			return
		}
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	eq("device_serial", f.DeviceSerial)
	eq("phone_number", f.PhoneNumber)
	eq("isbn", f.ISBN)

	var b strings.Builder
	b.WriteString("SELECT " + submissionColumns + " FROM submissions")
	if len(conds) > 0 {
		b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id DESC")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	items := make([]model.Submission, 0)
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		items = append(items, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubmission(sc scanner) (*model.Submission, error) {
	var (
		s         model.Submission
		copyright sql.NullString
	)
	if err := sc.Scan(
		&s.ID,
		&s.DeviceSerial,
		&s.PhoneNumber,
		&s.ISBN,
		&s.CoverImageURL,
		&copyright,
		&s.CreatedAt,
	); err != nil {
		return nil, err
	}
	if copyright.Valid {
		v := copyright.String
		s.CopyrightImageURL = &v
	}
	return &s, nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}
