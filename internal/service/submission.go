package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bookintake/internal/export"
	"bookintake/internal/logging"
	"bookintake/internal/model"
	"bookintake/internal/normalize"
	"bookintake/internal/repository"
	"bookintake/internal/storage"
	"bookintake/internal/validation"
)

const tracerName = "bookintake/internal/service"

// Stage is a step of a single submission attempt.
type Stage string

const (
	StageValidating         Stage = "validating"
	StageUploadingCover     Stage = "uploading_cover"
	StageUploadingCopyright Stage = "uploading_copyright"
	StageInsertingRecord    Stage = "inserting_record"
	StageDone               Stage = "done"
	StageFailed             Stage = "failed"
)

// SubmissionInput is what a client sends. CopyrightImage may be nil.
type SubmissionInput struct {
	DeviceSerial   string
	PhoneNumber    string
	ISBN           string
	CoverImage     *model.UploadedImage
	CopyrightImage *model.UploadedImage
}

// SubmissionListResult is the service-level DTO for listings.
type SubmissionListResult struct {
	Items []model.Submission `json:"data"`
	Count int                `json:"count"`
}

// SubmissionService defines the use cases for collected submissions.
type SubmissionService interface {
	// Submit validates the input, uploads the images and records the row.
	// The cover upload must succeed; the copyright image is best-effort.
	// Every error returned is a *Error.
	Submit(ctx context.Context, in SubmissionInput) (*model.Submission, error)

	// List returns stored submissions newest first.
	List(ctx context.Context, f repository.ListFilter) (*SubmissionListResult, error)

	// Export writes the filtered listing to w in the given format.
	Export(ctx context.Context, format export.Format, f repository.ListFilter, w io.Writer) error
}

// Option configures a SubmissionService.
type Option func(*submissionService)

// WithNormalizer enables server-side image normalization before upload.
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(s *submissionService) { s.normalizer = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *submissionService) { s.logger = l }
}

func WithMetrics(m *Metrics) Option {
	return func(s *submissionService) { s.metrics = m }
}

// WithLocation sets the zone used for exported timestamps.
func WithLocation(loc *time.Location) Option {
	return func(s *submissionService) { s.loc = loc }
}

func WithClock(now func() time.Time) Option {
	return func(s *submissionService) { s.now = now }
}

// WithTokenSource replaces the random suffix generator used in storage keys.
func WithTokenSource(token func() string) Option {
	return func(s *submissionService) { s.token = token }
}

// WithStageObserver is called on every stage transition of Submit.
func WithStageObserver(fn func(Stage)) Option {
	return func(s *submissionService) { s.observe = fn }
}

// submissionService is the concrete implementation of SubmissionService.
type submissionService struct {
	store      storage.Storage
	repo       repository.SubmissionRepository
	validator  *validation.Validator
	normalizer *normalize.Normalizer
	logger     *slog.Logger
	metrics    *Metrics
	tracer     trace.Tracer
	loc        *time.Location
	now        func() time.Time
	token      func() string
	observe    func(Stage)
}

// NewSubmissionService constructs a new SubmissionService.
func NewSubmissionService(store storage.Storage, repo repository.SubmissionRepository, opts ...Option) SubmissionService {
	s := &submissionService{
		store:     store,
		repo:      repo,
		validator: validation.New(),
		logger:    logging.Discard(),
		tracer:    otel.Tracer(tracerName),
		loc:       time.UTC,
		now:       time.Now,
		token:     randomToken,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// prepared is an image ready for upload.
type prepared struct {
	data        []byte
	contentType string
	ext         string
}

func (s *submissionService) Submit(ctx context.Context, in SubmissionInput) (*model.Submission, error) {
	ctx, span := s.tracer.Start(ctx, "SubmissionService.Submit")
	defer span.End()

	in.DeviceSerial = strings.TrimSpace(in.DeviceSerial)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	in.ISBN = strings.TrimSpace(in.ISBN)
	span.SetAttributes(
		attribute.String("submission.device_serial", in.DeviceSerial),
		attribute.Bool("submission.has_copyright_image", hasData(in.CopyrightImage)),
	)

	log := s.logger.With(
		"component", "submission",
		"request_id", logging.RequestID(ctx),
		"device_serial", in.DeviceSerial,
	)

	s.enter(span, StageValidating)
	if e := s.validate(in); e != nil {
		return nil, s.fail(ctx, span, log, e)
	}

	// Both objects of one submission share the timestamp and token.
	suffix := fmt.Sprintf("%d_%s", s.now().UnixMilli(), s.token())

	s.enter(span, StageUploadingCover)
	cover, err := s.prepare(ctx, log, in.CoverImage)
	if err != nil {
		return nil, s.fail(ctx, span, log, prepareError(err, StageUploadingCover, model.FieldCoverImage, "cover image"))
	}
	coverURL, err := s.upload(ctx, model.CategoryCover, suffix, cover)
	if err != nil {
		return nil, s.fail(ctx, span, log, s.uploadError(err))
	}

	var copyrightURL *string
	if hasData(in.CopyrightImage) {
		s.enter(span, StageUploadingCopyright)
		copyrightURL = s.uploadOptional(ctx, span, log, in.CopyrightImage, suffix)
	}

	s.enter(span, StageInsertingRecord)
	stored, err := s.repo.Create(ctx, &model.Submission{
		DeviceSerial:      in.DeviceSerial,
		PhoneNumber:       in.PhoneNumber,
		ISBN:              in.ISBN,
		CoverImageURL:     coverURL,
		CopyrightImageURL: copyrightURL,
		CreatedAt:         s.now().UTC(),
	})
	if err != nil {
		log.Error("submission insert failed; uploaded objects left in place",
			"event", "submission_orphaned_objects",
			"cover_image_url", coverURL,
			"copyright_image_url", deref(copyrightURL),
		)
		return nil, s.fail(ctx, span, log, persistError(err, StageInsertingRecord, "failed to save submission"))
	}

	s.enter(span, StageDone)
	s.metrics.outcome("success")
	span.SetAttributes(attribute.Int64("submission.id", stored.ID))
	log.Info("submission stored",
		"event", "submission_stored",
		"submission_id", stored.ID,
		"isbn", stored.ISBN,
		"has_copyright_image", stored.CopyrightImageURL != nil,
	)
	return stored, nil
}

func (s *submissionService) validate(in SubmissionInput) *Error {
	err := s.validator.Validate(validation.Candidate{
		DeviceSerial:       in.DeviceSerial,
		PhoneNumber:        in.PhoneNumber,
		ISBN:               in.ISBN,
		CoverImageType:     imageType(in.CoverImage),
		CopyrightImageType: imageType(in.CopyrightImage),
	})
	if err != nil {
		e := &Error{Kind: KindValidation, Stage: StageValidating, Message: "submission is invalid", Err: err}
		var fields validation.Errors
		if errors.As(err, &fields) {
			e.Fields = map[string]string(fields)
		}
		return e
	}

	fields := make(map[string]string)
	if tooLarge(in.CoverImage) {
		fields[model.FieldCoverImage] = "cover image must be 10 MB or smaller"
	}
	if tooLarge(in.CopyrightImage) {
		fields[model.FieldCopyrightImage] = "copyright page image must be 10 MB or smaller"
	}
	if len(fields) > 0 {
		return &Error{Kind: KindValidation, Stage: StageValidating, Message: "image is too large", Fields: fields, Err: normalize.ErrTooLarge}
	}
	return nil
}

// prepare normalizes img when a normalizer is configured. The extension follows
// the output format, or the original filename when the bytes were not re-encoded.
func (s *submissionService) prepare(ctx context.Context, log *slog.Logger, img *model.UploadedImage) (*prepared, error) {
	if s.normalizer == nil {
		return &prepared{
			data:        img.Data,
			contentType: normalize.ContentType(img.ContentType, img.Data),
			ext:         extOf(img.Filename),
		}, nil
	}

	res, err := s.normalizer.Normalize(ctx, img.Data, img.ContentType)
	if err != nil {
		return nil, err
	}
	if res.Passthrough {
		log.Warn("image could not be decoded; uploading original bytes",
			"event", "image_passthrough",
			"content_type", res.ContentType,
			"bytes", len(res.Data),
		)
		return &prepared{data: res.Data, contentType: res.ContentType, ext: extOf(img.Filename)}, nil
	}
	log.Debug("image normalized",
		"event", "image_normalized",
		"bytes_in", len(img.Data),
		"bytes_out", len(res.Data),
		"quality", res.Quality,
		"attempts", res.Attempts,
		"width", res.Width,
		"height", res.Height,
	)
	return &prepared{data: res.Data, contentType: res.ContentType, ext: res.Ext}, nil
}

// upload stores p under <category>/<suffix><ext> and returns its public URL.
func (s *submissionService) upload(ctx context.Context, category, suffix string, p *prepared) (string, error) {
	key := category + "/" + suffix + p.ext
	info, err := s.store.Put(ctx, key, bytes.NewReader(p.data), storage.PutObjectOptions{
		Size:         int64(len(p.data)),
		ContentType:  p.contentType,
		CacheControl: "3600",
	})
	if err != nil {
		return "", err
	}
	if info.URL != "" {
		return info.URL, nil
	}
	return s.store.PublicURL(key), nil
}

// uploadOptional never fails the submission: any error is logged and counted
// and the URL stays nil.
func (s *submissionService) uploadOptional(ctx context.Context, span trace.Span, log *slog.Logger, img *model.UploadedImage, suffix string) *string {
	drop := func(err error) *string {
		s.metrics.optionalFailure()
		span.AddEvent("copyright_image_dropped", trace.WithAttributes(attribute.String("error", err.Error())))
		log.Warn("copyright image dropped",
			"event", "optional_image_failed",
			"bucket", s.store.Bucket(),
			"error_message", err.Error(),
		)
		return nil
	}

	p, err := s.prepare(ctx, log, img)
	if err != nil {
		return drop(err)
	}
	url, err := s.upload(ctx, model.CategoryCopyright, suffix, p)
	if err != nil {
		return drop(err)
	}
	return &url
}

func (s *submissionService) uploadError(err error) *Error {
	bucket := s.store.Bucket()
	switch {
	case errors.Is(err, storage.ErrNotConfigured):
		return &Error{Kind: KindConfiguration, Stage: StageUploadingCover, Message: "object storage is not configured", Err: err}
	case errors.Is(err, storage.ErrBucketNotFound):
		return &Error{
			Kind:    KindConfiguration,
			Stage:   StageUploadingCover,
			Message: fmt.Sprintf("storage bucket %q does not exist; create it as a public bucket", bucket),
			Err:     err,
		}
	}
	return &Error{
		Kind:    KindUpload,
		Stage:   StageUploadingCover,
		Message: fmt.Sprintf("failed to upload cover image to bucket %q", bucket),
		Err:     err,
	}
}

func prepareError(err error, stage Stage, field, label string) *Error {
	switch {
	case errors.Is(err, normalize.ErrTooManyPixels):
		return &Error{Kind: KindValidation, Stage: stage, Message: "image is too large",
			Fields: map[string]string{field: label + " has too many pixels"}, Err: err}
	case errors.Is(err, normalize.ErrTooLarge):
		return &Error{Kind: KindValidation, Stage: stage, Message: "image is too large",
			Fields: map[string]string{field: label + " must be 10 MB or smaller"}, Err: err}
	case errors.Is(err, normalize.ErrNotImage):
		return &Error{Kind: KindValidation, Stage: stage, Message: "submission is invalid",
			Fields: map[string]string{field: label + " must be an image file"}, Err: err}
	}
	return &Error{Kind: KindUpload, Stage: stage, Message: "failed to process " + label, Err: err}
}

func persistError(err error, stage Stage, msg string) *Error {
	if errors.Is(err, repository.ErrNotConfigured) {
		return &Error{Kind: KindConfiguration, Stage: stage, Message: "database is not configured", Err: err}
	}
	return &Error{Kind: KindPersistence, Stage: stage, Message: msg, Err: err}
}

func (s *submissionService) enter(span trace.Span, st Stage) {
	span.AddEvent(string(st))
	if s.observe != nil {
		s.observe(st)
	}
}

func (s *submissionService) fail(ctx context.Context, span trace.Span, log *slog.Logger, e *Error) error {
	s.enter(span, StageFailed)
	s.metrics.outcome(string(e.Kind))
	span.RecordError(e)
	span.SetStatus(codes.Error, e.Message)

	level := slog.LevelError
	if e.Kind == KindValidation {
		level = slog.LevelInfo
	}
	log.Log(ctx, level, "submission failed",
		"event", "submission_failed",
		"kind", string(e.Kind),
		"stage", string(e.Stage),
		"error_message", e.Error(),
	)
	return e
}

func (s *submissionService) List(ctx context.Context, f repository.ListFilter) (*SubmissionListResult, error) {
	f.DeviceSerial = strings.TrimSpace(f.DeviceSerial)
	f.PhoneNumber = strings.TrimSpace(f.PhoneNumber)
	f.ISBN = strings.TrimSpace(f.ISBN)

	items, err := s.repo.List(ctx, f)
	if err != nil {
		e := persistError(err, "", "failed to load submissions")
		s.logger.ErrorContext(ctx, "listing submissions failed",
			"component", "submission",
			"request_id", logging.RequestID(ctx),
			"kind", string(e.Kind),
			"error_message", err.Error(),
		)
		return nil, e
	}
	return &SubmissionListResult{Items: items, Count: len(items)}, nil
}

func (s *submissionService) Export(ctx context.Context, format export.Format, f repository.ListFilter, w io.Writer) error {
	res, err := s.List(ctx, f)
	if err != nil {
		return err
	}
	if err := export.Write(w, format, res.Items, s.loc); err != nil {
		return fmt.Errorf("export %s: %w", format, err)
	}
	return nil
}

func hasData(img *model.UploadedImage) bool {
	return img != nil && len(img.Data) > 0
}

func imageType(img *model.UploadedImage) string {
	if !hasData(img) {
		return ""
	}
	return normalize.ContentType(img.ContentType, img.Data)
}

func tooLarge(img *model.UploadedImage) bool {
	return img != nil && int64(len(img.Data)) > model.MaxImageBytes
}

// extOf returns the lower-cased extension of name, or ".jpg" when it has none
// or it contains anything other than ASCII letters and digits.
func extOf(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) < 2 {
		return ".jpg"
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ".jpg"
		}
	}
	return ext
}

func randomToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
