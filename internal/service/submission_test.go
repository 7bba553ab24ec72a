package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"bookintake/internal/export"
	"bookintake/internal/model"
	"bookintake/internal/normalize"
	"bookintake/internal/repository"
	repoMocks "bookintake/internal/repository/mocks"
	"bookintake/internal/storage"
	storeMocks "bookintake/internal/storage/mocks"
)

var fixedNow = time.UnixMilli(1700000000000).UTC()

type harness struct {
	store   *storeMocks.MockStorage
	repo    *repoMocks.MockSubmissionRepository
	metrics *Metrics
	stages  []Stage
	svc     SubmissionService
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		store: new(storeMocks.MockStorage),
		repo:  new(repoMocks.MockSubmissionRepository),
	}
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	h.metrics = m

	h.store.On("Bucket").Return("images").Maybe()

	base := []Option{
		WithMetrics(m),
		WithClock(func() time.Time { return fixedNow }),
		WithTokenSource(func() string { return "abc123" }),
		WithStageObserver(func(s Stage) { h.stages = append(h.stages, s) }),
	}
	h.svc = NewSubmissionService(h.store, h.repo, append(base, opts...)...)
	return h
}

func image1(name, contentType string) *model.UploadedImage {
	return &model.UploadedImage{Data: []byte("fake-image-bytes"), ContentType: contentType, Filename: name}
}

func validInput() SubmissionInput {
	return SubmissionInput{
		DeviceSerial:   "DEV001",
		PhoneNumber:    "13800138000",
		ISBN:           "9787111111111",
		CoverImage:     image1("IMG_0001.PNG", "image/png"),
		CopyrightImage: image1("copyright.jpeg", "image/jpeg"),
	}
}

func requireServiceError(t *testing.T, err error) *Error {
	t.Helper()
	var se *Error
	require.ErrorAs(t, err, &se)
	return se
}

func TestSubmissionService_Submit_HappyPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.store.On("Put", mock.Anything, "covers/1700000000000_abc123.png", mock.Anything,
		storage.PutObjectOptions{Size: 16, ContentType: "image/png", CacheControl: "3600"}).
		Return(storage.ObjectInfo{URL: "https://x/images/covers/1700000000000_abc123.png"}, nil).Once()
	h.store.On("Put", mock.Anything, "copyrights/1700000000000_abc123.jpeg", mock.Anything, mock.Anything).
		Return(storage.ObjectInfo{}, nil).Once()
	h.store.On("PublicURL", "copyrights/1700000000000_abc123.jpeg").
		Return("https://x/images/copyrights/1700000000000_abc123.jpeg").Once()

	h.repo.On("Create", mock.Anything, mock.MatchedBy(func(s *model.Submission) bool {
		return s.DeviceSerial == "DEV001" &&
			s.PhoneNumber == "13800138000" &&
			s.ISBN == "9787111111111" &&
			s.CoverImageURL == "https://x/images/covers/1700000000000_abc123.png" &&
			s.CopyrightImageURL != nil &&
			*s.CopyrightImageURL == "https://x/images/copyrights/1700000000000_abc123.jpeg" &&
			s.CreatedAt.Equal(fixedNow)
	})).Return(func() *model.Submission {
		url := "https://x/images/copyrights/1700000000000_abc123.jpeg"
		return &model.Submission{
			ID:                1,
			DeviceSerial:      "DEV001",
			PhoneNumber:       "13800138000",
			ISBN:              "9787111111111",
			CoverImageURL:     "https://x/images/covers/1700000000000_abc123.png",
			CopyrightImageURL: &url,
			CreatedAt:         fixedNow,
		}
	}(), nil).Once()

	in := validInput()
	in.DeviceSerial = "  DEV001 "
	got, err := h.svc.Submit(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, int64(1), got.ID)
	assert.Equal(t, "DEV001", got.DeviceSerial)
	require.NotNil(t, got.CopyrightImageURL)
	assert.Equal(t, []Stage{StageValidating, StageUploadingCover, StageUploadingCopyright, StageInsertingRecord, StageDone}, h.stages)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.submissions.WithLabelValues("success")))

	h.store.AssertExpectations(t)
	h.repo.AssertExpectations(t)
}

func TestSubmissionService_Submit_WithoutCopyright(t *testing.T) {
	h := newHarness(t)

	h.store.On("Put", mock.Anything, "covers/1700000000000_abc123.png", mock.Anything, mock.Anything).
		Return(storage.ObjectInfo{URL: "https://x/c.png"}, nil).Once()
	h.repo.On("Create", mock.Anything, mock.MatchedBy(func(s *model.Submission) bool {
		return s.CopyrightImageURL == nil
	})).Return(&model.Submission{ID: 2}, nil).Once()

	in := validInput()
	in.CopyrightImage = nil
	_, err := h.svc.Submit(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, []Stage{StageValidating, StageUploadingCover, StageInsertingRecord, StageDone}, h.stages)
	h.store.AssertNumberOfCalls(t, "Put", 1)
}

func TestSubmissionService_Submit_ValidationFailures(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*SubmissionInput)
		wantFields []string
		wantMsg    map[string]string
	}{
		{
			name: "everything missing",
			mutate: func(in *SubmissionInput) {
				*in = SubmissionInput{}
			},
			wantFields: []string{model.FieldDeviceSerial, model.FieldPhoneNumber, model.FieldISBN, model.FieldCoverImage},
		},
		{
			name:       "blank device serial",
			mutate:     func(in *SubmissionInput) { in.DeviceSerial = "   " },
			wantFields: []string{model.FieldDeviceSerial},
		},
		{
			name:       "malformed phone",
			mutate:     func(in *SubmissionInput) { in.PhoneNumber = "12345" },
			wantFields: []string{model.FieldPhoneNumber},
			wantMsg:    map[string]string{model.FieldPhoneNumber: "phone number must be a valid 11-digit mobile number"},
		},
		{
			name:       "cover not an image",
			mutate:     func(in *SubmissionInput) { in.CoverImage = image1("notes.txt", "text/plain") },
			wantFields: []string{model.FieldCoverImage},
		},
		{
			name:       "empty cover file",
			mutate:     func(in *SubmissionInput) { in.CoverImage = &model.UploadedImage{ContentType: "image/jpeg"} },
			wantFields: []string{model.FieldCoverImage},
			wantMsg:    map[string]string{model.FieldCoverImage: "cover image is required"},
		},
		{
			name: "oversized cover",
			mutate: func(in *SubmissionInput) {
				in.CoverImage = &model.UploadedImage{Data: make([]byte, model.MaxImageBytes+1), ContentType: "image/jpeg"}
			},
			wantFields: []string{model.FieldCoverImage},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			in := validInput()
			tt.mutate(&in)

			got, err := h.svc.Submit(context.Background(), in)
			assert.Nil(t, got)

			se := requireServiceError(t, err)
			assert.Equal(t, KindValidation, se.Kind)
			assert.Equal(t, StageValidating, se.Stage)
			for _, f := range tt.wantFields {
				assert.Contains(t, se.Fields, f)
			}
			assert.Len(t, se.Fields, len(tt.wantFields))
			for f, msg := range tt.wantMsg {
				assert.Equal(t, msg, se.Fields[f])
			}

			assert.Equal(t, []Stage{StageValidating, StageFailed}, h.stages)
			h.store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			h.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
			assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.submissions.WithLabelValues("validation")))
		})
	}
}

func TestSubmissionService_Submit_OversizedIsTooLarge(t *testing.T) {
	h := newHarness(t)
	in := validInput()
	in.CopyrightImage = &model.UploadedImage{Data: make([]byte, model.MaxImageBytes+1), ContentType: "image/jpeg"}

	_, err := h.svc.Submit(context.Background(), in)
	assert.ErrorIs(t, err, normalize.ErrTooLarge)
	se := requireServiceError(t, err)
	assert.Contains(t, se.Fields, model.FieldCopyrightImage)
}

func TestSubmissionService_Submit_OptionalImageFailure(t *testing.T) {
	h := newHarness(t)

	h.store.On("Put", mock.Anything, "covers/1700000000000_abc123.png", mock.Anything, mock.Anything).
		Return(storage.ObjectInfo{URL: "https://x/c.png"}, nil).Once()
	h.store.On("Put", mock.Anything, "copyrights/1700000000000_abc123.jpeg", mock.Anything, mock.Anything).
		Return(storage.ObjectInfo{}, errors.New("503 slow down")).Once()
	h.repo.On("Create", mock.Anything, mock.MatchedBy(func(s *model.Submission) bool {
		return s.CoverImageURL == "https://x/c.png" && s.CopyrightImageURL == nil
	})).Return(&model.Submission{ID: 3, CoverImageURL: "https://x/c.png"}, nil).Once()

	got, err := h.svc.Submit(context.Background(), validInput())
	require.NoError(t, err)
	assert.Nil(t, got.CopyrightImageURL)

	assert.Equal(t, []Stage{StageValidating, StageUploadingCover, StageUploadingCopyright, StageInsertingRecord, StageDone}, h.stages)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.optionalFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.submissions.WithLabelValues("success")))
	h.repo.AssertExpectations(t)
}

func TestSubmissionService_Submit_CoverUploadFailures(t *testing.T) {
	tests := []struct {
		name     string
		putErr   error
		wantKind Kind
		wantMsg  string
	}{
		{"backend error", errors.New("connection reset"), KindUpload, `failed to upload cover image to bucket "images"`},
		{"bucket missing", storage.ErrBucketNotFound, KindConfiguration, `storage bucket "images" does not exist`},
		{"storage unconfigured", storage.ErrNotConfigured, KindConfiguration, "object storage is not configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.store.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
				Return(storage.ObjectInfo{}, tt.putErr).Once()

			got, err := h.svc.Submit(context.Background(), validInput())
			assert.Nil(t, got)

			se := requireServiceError(t, err)
			assert.Equal(t, tt.wantKind, se.Kind)
			assert.Equal(t, StageUploadingCover, se.Stage)
			assert.Contains(t, se.Message, tt.wantMsg)
			assert.ErrorIs(t, err, tt.putErr)

			assert.Equal(t, []Stage{StageValidating, StageUploadingCover, StageFailed}, h.stages)
			h.store.AssertNumberOfCalls(t, "Put", 1)
			h.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestSubmissionService_Submit_PersistFailure(t *testing.T) {
	tests := []struct {
		name     string
		repoErr  error
		wantKind Kind
	}{
		{"insert error", errors.New("duplicate key"), KindPersistence},
		{"database unconfigured", repository.ErrNotConfigured, KindConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.store.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
				Return(storage.ObjectInfo{URL: "https://x/u"}, nil).Twice()
			h.repo.On("Create", mock.Anything, mock.Anything).Return(nil, tt.repoErr).Once()

			got, err := h.svc.Submit(context.Background(), validInput())
			assert.Nil(t, got)

			se := requireServiceError(t, err)
			assert.Equal(t, tt.wantKind, se.Kind)
			assert.Equal(t, StageInsertingRecord, se.Stage)
			assert.Equal(t, []Stage{StageValidating, StageUploadingCover, StageUploadingCopyright, StageInsertingRecord, StageFailed}, h.stages)

			// Uploaded objects stay where they are.
			h.store.AssertNumberOfCalls(t, "Put", 2)
		})
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w; i++ {
		img.Set(i, i%h, color.NRGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSubmissionService_Submit_NormalizesImages(t *testing.T) {
	h := newHarness(t, WithNormalizer(normalize.New(normalize.DefaultOptions())))

	h.store.On("Put", mock.Anything, "covers/1700000000000_abc123.jpg", mock.Anything,
		mock.MatchedBy(func(o storage.PutObjectOptions) bool {
			return o.ContentType == "image/jpeg" && o.Size > 0
		})).
		Return(storage.ObjectInfo{URL: "https://x/c.jpg"}, nil).Once()
	h.repo.On("Create", mock.Anything, mock.Anything).Return(&model.Submission{ID: 4}, nil).Once()

	in := validInput()
	in.CoverImage = &model.UploadedImage{Data: pngBytes(t, 64, 48), ContentType: "image/png", Filename: "cover.png"}
	in.CopyrightImage = nil

	_, err := h.svc.Submit(context.Background(), in)
	require.NoError(t, err)
	h.store.AssertExpectations(t)
}

func TestSubmissionService_Submit_CoverWithTooManyPixels(t *testing.T) {
	opts := normalize.DefaultOptions()
	opts.MaxPixels = 1000
	h := newHarness(t, WithNormalizer(normalize.New(opts)))

	in := validInput()
	in.CoverImage = &model.UploadedImage{Data: pngBytes(t, 20, 100), ContentType: "image/png", Filename: "cover.png"}
	in.CopyrightImage = nil

	_, err := h.svc.Submit(context.Background(), in)
	require.Error(t, err)
	assert.ErrorIs(t, err, normalize.ErrTooLarge)

	se := requireServiceError(t, err)
	assert.Equal(t, KindValidation, se.Kind)
	assert.Equal(t, "cover image has too many pixels", se.Fields[model.FieldCoverImage])
	h.store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	h.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSubmissionService_Submit_UndecodableCoverPassesThrough(t *testing.T) {
	h := newHarness(t, WithNormalizer(normalize.New(normalize.DefaultOptions())))

	h.store.On("Put", mock.Anything, "covers/1700000000000_abc123.heic", mock.Anything,
		storage.PutObjectOptions{Size: 16, ContentType: "image/heic", CacheControl: "3600"}).
		Return(storage.ObjectInfo{URL: "https://x/c.heic"}, nil).Once()
	h.repo.On("Create", mock.Anything, mock.Anything).Return(&model.Submission{ID: 5}, nil).Once()

	in := validInput()
	in.CoverImage = image1("photo.HEIC", "image/heic")
	in.CopyrightImage = nil

	_, err := h.svc.Submit(context.Background(), in)
	require.NoError(t, err)
	h.store.AssertExpectations(t)
}

func TestSubmissionService_List(t *testing.T) {
	h := newHarness(t)
	rows := []model.Submission{{ID: 2}, {ID: 1}}
	h.repo.On("List", mock.Anything, repository.ListFilter{DeviceSerial: "DEV001"}).Return(rows, nil).Once()

	res, err := h.svc.List(context.Background(), repository.ListFilter{DeviceSerial: " DEV001 "})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, rows, res.Items)
}

func TestSubmissionService_ListErrors(t *testing.T) {
	tests := []struct {
		name     string
		repoErr  error
		wantKind Kind
	}{
		{"query failure", errors.New("boom"), KindPersistence},
		{"unconfigured", repository.ErrNotConfigured, KindConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.repo.On("List", mock.Anything, mock.Anything).Return(nil, tt.repoErr).Once()

			_, err := h.svc.List(context.Background(), repository.ListFilter{})
			se := requireServiceError(t, err)
			assert.Equal(t, tt.wantKind, se.Kind)
		})
	}
}

func TestSubmissionService_Export(t *testing.T) {
	h := newHarness(t, WithLocation(time.UTC))
	h.repo.On("List", mock.Anything, repository.ListFilter{}).Return([]model.Submission{
		{ID: 1, DeviceSerial: "DEV001", PhoneNumber: "13800138000", ISBN: "978", CoverImageURL: "https://x/c", CreatedAt: fixedNow},
	}, nil).Once()

	var buf bytes.Buffer
	require.NoError(t, h.svc.Export(context.Background(), export.FormatXLSX, repository.ListFilter{}, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(export.SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "DEV001", rows[1][1])
}

func TestExtOf(t *testing.T) {
	tests := map[string]string{
		"IMG_0001.PNG":   ".png",
		"photo.jpeg":     ".jpeg",
		"noext":          ".jpg",
		"":               ".jpg",
		"weird.j p g":    ".jpg",
		"archive.tar.GZ": ".gz",
	}
	for in, want := range tests {
		assert.Equal(t, want, extOf(in), in)
	}
}

func TestError(t *testing.T) {
	cause := errors.New("cause")
	e := &Error{Kind: KindUpload, Stage: StageUploadingCover, Message: "failed", Err: cause}
	assert.ErrorIs(t, e, cause)
	assert.Equal(t, "upload (uploading_cover): failed: cause", e.Error())
}
