// Package mediasvc validates uploaded files, post-processes images & stores everything
// on the configured backend (local disk or Google Cloud Storage).
package mediasvc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/eduplatform/backend/core"
)

const mb = 1 << 20

type imageMode int

const (
	imageKeep imageMode = iota
	imageFit            // fit within the bounds, keeping the aspect ratio
	imageFill           // center crop to the exact bounds
)

// Category groups the rules of one kind of upload.
type Category struct {
	Dir        string   // storage folder
	Field      string   // form field, reported in validation errors
	NamePrefix string   // replaces the original base name when set
	MaxSize    int64    // bytes
	Allowed    []string // detected MIME types, parameters ignored
	MaxFiles   int

	image         imageMode
	width, height int
	probeDuration bool
}

// images imaging can decode. SVG is left out: it is served as active content.
var rasterImages = []string{"image/jpeg", "image/png", "image/gif", "image/bmp", "image/tiff"}

var (
	CourseImage = Category{
		Dir: "courses", Field: "image", MaxSize: 5 * mb, Allowed: rasterImages, MaxFiles: 1,
		image: imageFit, width: 1280, height: 720,
	}
	Avatar = Category{
		Dir: "user", Field: "avatar", NamePrefix: "avatar", MaxSize: 2 * mb, Allowed: rasterImages, MaxFiles: 1,
		image: imageFill, width: 256, height: 256,
	}
	KYCDocument = Category{
		Dir: "kyc", Field: "documents", MaxSize: 5 * mb, Allowed: append([]string{"image/webp", "application/pdf"}, rasterImages...), MaxFiles: 5,
	}
	Video = Category{
		Dir: "videos", Field: "video", MaxSize: 100 * mb, MaxFiles: 1,
		Allowed: []string{
			"video/mp4", "video/mpeg", "video/quicktime", "video/x-msvideo", "video/x-matroska",
		},
		probeDuration: true,
	}
	Notes = Category{
		Dir: "notes", Field: "notes", MaxSize: 100 * mb, MaxFiles: 5,
		Allowed: []string{
			"application/pdf",
			"application/msword",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"text/plain",
		},
	}
)

// allows matches the detected type only. Parents are not walked: text/html and
// image/svg+xml both descend from text/plain.
func (c Category) allows(m *mimetype.MIME) bool {
	for _, a := range c.Allowed {
		if m.Is(a) {
			return true
		}
	}
	return false
}

func (c Category) fieldErr(msg string, args ...interface{}) error {
	return core.NewValidationError(nil, core.FieldError{Field: c.Field, Error: fmt.Sprintf(msg, args...)})
}

// Storage persists uploaded files.
type Storage interface {
	// Save stores r under key ("<category>/<file>") & returns its public URL.
	Save(ctx context.Context, key, contentType string, r io.Reader) (string, error)
}

// DurationProber reads the duration of a video file, in seconds.
type DurationProber interface {
	Probe(ctx context.Context, path string) (float64, error)
}

// Stored describes a saved upload.
type Stored struct {
	URL         string
	Name        string
	ContentType string
	Size        int64
	Duration    float64 // minutes, videos only
}

type Uploader struct {
	storage Storage
	prober  DurationProber
	nowFunc func() time.Time
}

func NewUploader(storage Storage, prober DurationProber) *Uploader {
	vala.BeginValidation().Validate(
		vala.IsNotNil(storage, "storage"),
		vala.IsNotNil(prober, "prober"),
	).CheckAndPanic()

	return &Uploader{storage: storage, prober: prober, nowFunc: time.Now}
}

// Upload checks r against the category's rules, processes & stores it.
// The content type & extension are sniffed from the bytes; filename only provides the base name.
func (u *Uploader) Upload(ctx context.Context, cat Category, filename string, r io.Reader) (Stored, error) {
	tmp, err := os.CreateTemp("", "upload-*")
	if err != nil {
		return Stored{}, errors.Wrap(err, "creating temp file")
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	size, err := io.Copy(tmp, io.LimitReader(r, cat.MaxSize+1))
	if err != nil {
		return Stored{}, errors.Wrap(err, "buffering upload")
	}
	if size > cat.MaxSize {
		return Stored{}, cat.fieldErr("file too large, max %dMB", cat.MaxSize/mb)
	}
	if size == 0 {
		return Stored{}, cat.fieldErr("file is empty")
	}

	mtype, err := mimetype.DetectFile(tmp.Name())
	if err != nil {
		return Stored{}, errors.Wrap(err, "detecting content type")
	}
	if !cat.allows(mtype) {
		return Stored{}, cat.fieldErr("file type %s is not allowed", mtype.String())
	}

	ext := mtype.Extension()
	stored := Stored{ContentType: mtype.String(), Size: size}

	if cat.probeDuration {
		secs, err := u.prober.Probe(ctx, tmp.Name())
		if err != nil {
			return Stored{}, cat.fieldErr("could not read the video duration")
		}
		stored.Duration = core.Round2(secs / 60)
	}

	var body io.Reader
	if cat.image != imageKeep {
		buf, newExt, err := processImage(tmp.Name(), ext, cat)
		if err != nil {
			return Stored{}, cat.fieldErr("invalid image")
		}
		ext = newExt
		stored.Size = int64(buf.Len())
		body = buf
	} else {
		if _, err = tmp.Seek(0, io.SeekStart); err != nil {
			return Stored{}, errors.Wrap(err, "rewinding upload")
		}
		body = tmp
	}

	stored.Name = FileName(cat, filename, ext, u.nowFunc())
	stored.URL, err = u.storage.Save(ctx, cat.Dir+"/"+stored.Name, stored.ContentType, body)
	if err != nil {
		return Stored{}, errors.Wrap(err, "storing upload")
	}
	return stored, nil
}

// processImage re-encodes the image after resizing it. Formats imaging can't write fall back to JPEG.
func processImage(path, ext string, cat Category) (*bytes.Buffer, string, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", err
	}
	switch cat.image {
	case imageFit:
		img = imaging.Fit(img, cat.width, cat.height, imaging.Lanczos)
	case imageFill:
		img = imaging.Fill(img, cat.width, cat.height, imaging.Center, imaging.Lanczos)
	}

	format, err := imaging.FormatFromExtension(ext)
	if err != nil {
		format, ext = imaging.JPEG, ".jpg"
	}
	buf := new(bytes.Buffer)
	if err = imaging.Encode(buf, img, format); err != nil {
		return nil, "", err
	}
	return buf, ext, nil
}

var spaces = regexp.MustCompile(`\s+`)

// FileName builds "<base>-<unix millis><ext>", runs of whitespace in base becoming "-".
func FileName(cat Category, original, ext string, now time.Time) string {
	base := cat.NamePrefix
	if base == "" {
		base = strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
		base = spaces.ReplaceAllString(strings.TrimSpace(base), "-")
	}
	if base == "" || base == "." {
		base = cat.Dir
	}
	return base + "-" + strconv.FormatInt(now.UnixMilli(), 10) + ext
}
