package handler

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"bookintake/internal/export"
	"bookintake/internal/model"
	"bookintake/internal/repository"
	"bookintake/internal/service"
)

type submitResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    *model.Submission `json:"data"`
}

type listResponse struct {
	Success bool               `json:"success"`
	Data    []model.Submission `json:"data"`
	Count   int                `json:"count"`
}

// tooLargeError marks a multipart file over model.MaxImageBytes.
type tooLargeError struct{ field string }

func (e tooLargeError) Error() string { return e.field + " exceeds size limit" }

var imageLabels = map[string]string{
	model.FieldCoverImage:     "cover image",
	model.FieldCopyrightImage: "copyright page image",
}

// Submit godoc
// @Summary      Submit a book
// @Description  Uploads the cover (required) and copyright page (optional) photos and records the submission.
// @Tags         submissions
// @Accept       multipart/form-data
// @Produce      json
// @Param        deviceSerial    formData  string  true   "Device serial number"
// @Param        phoneNumber     formData  string  true   "11-digit mobile number"
// @Param        isbn            formData  string  true   "ISBN"
// @Param        coverImage      formData  file    true   "Cover photo"
// @Param        copyrightImage  formData  file    false  "Copyright page photo"
// @Success      201  {object}  submitResponse
// @Failure      400  {object}  errorPayload
// @Failure      413  {object}  errorPayload
// @Failure      429  {object}  errorPayload
// @Failure      500  {object}  errorPayload
// @Failure      502  {object}  errorPayload
// @Failure      503  {object}  errorPayload
// @Router       /submit [post]
func Submit(svc service.SubmissionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		in := service.SubmissionInput{
			DeviceSerial: strings.TrimSpace(c.FormValue(model.FieldDeviceSerial)),
			PhoneNumber:  strings.TrimSpace(c.FormValue(model.FieldPhoneNumber)),
			ISBN:         strings.TrimSpace(c.FormValue(model.FieldISBN)),
		}

		var err error
		if in.CoverImage, err = readImage(c, model.FieldCoverImage); err != nil {
			return writeImageError(c, err)
		}
		if in.CopyrightImage, err = readImage(c, model.FieldCopyrightImage); err != nil {
			return writeImageError(c, err)
		}

		sub, err := svc.Submit(c.UserContext(), in)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(submitResponse{
			Success: true,
			Message: "submission received",
			Data:    sub,
		})
	}
}

// readImage returns nil when the form has no such file.
func readImage(c *fiber.Ctx, field string) (*model.UploadedImage, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, nil
	}
	if fh.Size > model.MaxImageBytes {
		return nil, tooLargeError{field: field}
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", field, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, model.MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	if int64(len(data)) > model.MaxImageBytes {
		return nil, tooLargeError{field: field}
	}

	return &model.UploadedImage{
		Data:        data,
		ContentType: fh.Header.Get("Content-Type"),
		Filename:    fh.Filename,
	}, nil
}

func writeImageError(c *fiber.Ctx, err error) error {
	if tl, ok := err.(tooLargeError); ok {
		return writeFieldErrors(c, fiber.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "image is too large",
			map[string]string{tl.field: imageLabels[tl.field] + " must be 10 MB or smaller"})
	}
	return writeError(c, fiber.StatusBadRequest, "INVALID_FILE", "cannot read uploaded file")
}

// filterFromQuery reads the optional exact-match filters.
func filterFromQuery(c *fiber.Ctx) (repository.ListFilter, error) {
	f := repository.ListFilter{
		DeviceSerial: strings.TrimSpace(c.Query(model.FieldDeviceSerial)),
		PhoneNumber:  strings.TrimSpace(c.Query(model.FieldPhoneNumber)),
		ISBN:         strings.TrimSpace(c.Query(model.FieldISBN)),
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, fmt.Errorf("invalid limit %q", raw)
		}
		f.Limit = n
	}
	return f, nil
}

// ListSubmissions godoc
// @Summary      List submissions
// @Description  Newest first. Filters are exact matches.
// @Tags         submissions
// @Produce      json
// @Param        deviceSerial  query  string  false  "Device serial"
// @Param        phoneNumber   query  string  false  "Phone number"
// @Param        isbn          query  string  false  "ISBN"
// @Param        limit         query  int     false  "Maximum rows (0 = all)"
// @Success      200  {object}  listResponse
// @Failure      400  {object}  errorPayload
// @Failure      500  {object}  errorPayload
// @Failure      503  {object}  errorPayload
// @Router       /submissions [get]
func ListSubmissions(svc service.SubmissionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f, err := filterFromQuery(c)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}

		res, err := svc.List(c.UserContext(), f)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(listResponse{Success: true, Data: res.Items, Count: res.Count})
	}
}

// ExportSubmissions godoc
// @Summary      Export submissions
// @Description  Streams the filtered listing as an attachment. /export-excel yields xlsx, /export-parquet yields parquet.
// @Tags         submissions
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Produce      application/vnd.apache.parquet
// @Param        deviceSerial  query  string  false  "Device serial"
// @Param        phoneNumber   query  string  false  "Phone number"
// @Param        isbn          query  string  false  "ISBN"
// @Success      200  {file}    file
// @Failure      500  {object}  errorPayload
// @Failure      503  {object}  errorPayload
// @Router       /export-excel [get]
// @Router       /export-parquet [get]
func ExportSubmissions(svc service.SubmissionService, format export.Format, loc *time.Location) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f, err := filterFromQuery(c)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}

		// Buffered so a failure can still be reported as JSON.
		var buf bytes.Buffer
		if err := svc.Export(c.UserContext(), format, f, &buf); err != nil {
			return writeServiceError(c, err)
		}

		c.Set(fiber.HeaderContentType, format.ContentType())
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, export.Filename(format, time.Now(), loc)))
		return c.Send(buf.Bytes())
	}
}
