// Package normalize turns camera photos into upload-sized images.
//
// The pipeline is decode, downscale to fit the configured bounds, then lossy
// re-encode starting at an initial quality and stepping down until the output
// fits the target size, the quality floor is reached, or the attempt budget runs out.
// Images that cannot be decoded are passed through untouched.
package normalize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"

	"bookintake/internal/config"
	"bookintake/internal/model"
)

// Format is the output encoding.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatWebP Format = "webp"
)

var (
	ErrTooLarge = errors.New("image exceeds size limit")
	ErrNotImage = errors.New("file is not an image")
	// ErrTooManyPixels is an ErrTooLarge raised from the header dimensions, before decoding.
	ErrTooManyPixels = fmt.Errorf("%w: too many pixels", ErrTooLarge)
)

// Options tune the pipeline. Qualities are fractions in (0, 1].
type Options struct {
	Format         Format
	MaxWidth       int
	MaxHeight      int
	TargetBytes    int
	InitialQuality float64
	MinQuality     float64
	QualityStep    float64
	MaxAttempts    int
	MaxInputBytes  int64
	// MaxPixels bounds width*height of the decoded raster. Zero disables the check.
	MaxPixels      int64
}

// DefaultOptions returns the bounds used for portrait book photos.
func DefaultOptions() Options {
	return Options{
		Format:         FormatJPEG,
		MaxWidth:       1920,
		MaxHeight:      2560,
		TargetBytes:    800 * 1024,
		InitialQuality: 0.8,
		MinQuality:     0.6,
		QualityStep:    0.1,
		MaxAttempts:    5,
		MaxInputBytes:  model.MaxImageBytes,
		MaxPixels:      50_000_000,
	}
}

// OptionsFromConfig maps env-driven image settings onto Options.
func OptionsFromConfig(c config.ImageConfig) Options {
	o := DefaultOptions()
	if c.Format == string(FormatWebP) {
		o.Format = FormatWebP
	}
	if c.MaxWidth > 0 {
		o.MaxWidth = c.MaxWidth
	}
	if c.MaxHeight > 0 {
		o.MaxHeight = c.MaxHeight
	}
	if c.TargetKB > 0 {
		o.TargetBytes = c.TargetKB * 1024
	}
	if c.InitialQuality > 0 {
		o.InitialQuality = c.InitialQuality
	}
	if c.MinQuality > 0 {
		o.MinQuality = c.MinQuality
	}
	if c.QualityStep > 0 {
		o.QualityStep = c.QualityStep
	}
	if c.MaxAttempts > 0 {
		o.MaxAttempts = c.MaxAttempts
	}
	if c.MaxMegapixels > 0 {
		o.MaxPixels = int64(c.MaxMegapixels) * 1_000_000
	}
	return o
}

// Result is the normalized image plus what it took to get there.
type Result struct {
	Data        []byte
	ContentType string
	// Ext is the extension matching Data, or "" when the input was passed through.
	Ext         string
	Quality     float64
	Attempts    int
	Width       int
	Height      int
	Passthrough bool
}

type encodeFunc func(w io.Writer, img image.Image, quality int) error

// Normalizer is stateless apart from its options and safe for concurrent use.
type Normalizer struct {
	opts   Options
	encode encodeFunc
}

// New builds a Normalizer for the given options.
func New(opts Options) *Normalizer {
	n := &Normalizer{opts: opts}
	switch opts.Format {
	case FormatWebP:
		n.encode = encodeWebP
	default:
		n.opts.Format = FormatJPEG
		n.encode = encodeJPEG
	}
	return n
}

// ContentType returns the declared MIME type, or the sniffed one when the
// declaration is missing or generic.
func ContentType(declared string, data []byte) string {
	declared = strings.TrimSpace(strings.ToLower(declared))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if len(data) == 0 {
		return declared
	}
	return mimetype.Detect(data).String()
}

// Normalize runs the pipeline over data. It fails only for oversized (bytes or
// header dimensions) or non-image input and for a cancelled ctx; undecodable images come back with Passthrough set.
func (n *Normalizer) Normalize(ctx context.Context, data []byte, contentType string) (*Result, error) {
	if n.opts.MaxInputBytes > 0 && int64(len(data)) > n.opts.MaxInputBytes {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(data), n.opts.MaxInputBytes)
	}
	ct := ContentType(contentType, data)
	if !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("%w: %s", ErrNotImage, ct)
	}

	passthrough := &Result{Data: data, ContentType: ct, Passthrough: true}

	cfg, srcFormat, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return passthrough, nil
	}
	if px := int64(cfg.Width) * int64(cfg.Height); n.opts.MaxPixels > 0 && px > n.opts.MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d (max %d)", ErrTooManyPixels, cfg.Width, cfg.Height, n.opts.MaxPixels)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return passthrough, nil
	}

	resized := false
	if b := img.Bounds(); b.Dx() > n.opts.MaxWidth || b.Dy() > n.opts.MaxHeight {
		img = imaging.Fit(img, n.opts.MaxWidth, n.opts.MaxHeight, imaging.Lanczos)
		resized = true
	}

	q := percent(n.opts.InitialQuality)
	floor := percent(n.opts.MinQuality)
	step := percent(n.opts.QualityStep)
	if step < 1 {
		step = 1
	}
	maxAttempts := n.opts.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var (
		buf      bytes.Buffer
		attempts int
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		buf.Reset()
		if err := n.encode(&buf, img, q); err != nil {
			return nil, fmt.Errorf("encode %s q=%d: %w", n.opts.Format, q, err)
		}
		attempts++

		if buf.Len() <= n.opts.TargetBytes || q <= floor || attempts >= maxAttempts {
			break
		}
		q -= step
		if q < floor {
			q = floor
		}
	}

	out := append([]byte(nil), buf.Bytes()...)
	b := img.Bounds()
	res := &Result{
		Data:        out,
		ContentType: "image/" + string(n.opts.Format),
		Ext:         ext(n.opts.Format),
		Quality:     float64(q) / 100,
		Attempts:    attempts,
		Width:       b.Dx(),
		Height:      b.Dy(),
	}

	// Re-normalizing an already normalized image must never grow it.
	if !resized && srcFormat == string(n.opts.Format) && len(out) > len(data) {
		res.Data = data
	}
	return res, nil
}

func percent(f float64) int {
	return int(math.Round(f * 100))
}

func ext(f Format) string {
	if f == FormatWebP {
		return ".webp"
	}
	return ".jpg"
}

func encodeJPEG(w io.Writer, img image.Image, quality int) error {
	return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
}

func encodeWebP(w io.Writer, img image.Image, quality int) error {
	return webp.Encode(w, img, &webp.Options{Quality: float32(quality)})
}
