package echoapi

import (
	"context"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/eduplatform/backend/core"
	mediasvc "github.com/eduplatform/backend/services/media"
)

type (
	SuccessResponse struct {
		Success string      `json:"success"`
		Data    interface{} `json:"data,omitempty"`
	}

	PageResponse struct {
		Data       interface{}     `json:"data"`
		Pagination core.Pagination `json:"pagination"`
	}
)

// bindPage reads the `page` & `limit` query params; invalid values fall back to the defaults.
func bindPage(ctx echo.Context) core.Page {
	var p core.Page
	p.Page, _ = strconv.Atoi(ctx.QueryParam("page"))
	p.Limit, _ = strconv.Atoi(ctx.QueryParam("limit"))
	p.Clean()
	return p
}

// bindBool reads an optional boolean query param.
func bindBool(ctx echo.Context, name string) *bool {
	v, err := strconv.ParseBool(ctx.QueryParam(name))
	if err != nil {
		return nil
	}
	return &v
}

// formFiles returns the files uploaded under field, nil if none.
func formFiles(ctx echo.Context, field string) []*multipart.FileHeader {
	form, err := ctx.MultipartForm()
	if err != nil || form.File == nil {
		return nil
	}
	return form.File[field]
}

func tooManyFiles(cat mediasvc.Category) error {
	return core.NewValidationError(nil, core.FieldError{
		Field: cat.Field,
		Error: "at most " + strconv.Itoa(cat.MaxFiles) + " files are allowed",
	})
}

func upload(ctx context.Context, uploader *mediasvc.Uploader, cat mediasvc.Category, fh *multipart.FileHeader) (mediasvc.Stored, error) {
	f, err := fh.Open()
	if err != nil {
		return mediasvc.Stored{}, errors.Wrapf(err, "opening %s", fh.Filename)
	}
	defer func() { _ = f.Close() }()
	return uploader.Upload(ctx, cat, fh.Filename, f)
}

// uploadOne stores the single file of cat.Field, if any. ok is false when none was sent.
func uploadOne(ctx echo.Context, uploader *mediasvc.Uploader, cat mediasvc.Category) (stored mediasvc.Stored, ok bool, err error) {
	files := formFiles(ctx, cat.Field)
	if len(files) == 0 {
		return mediasvc.Stored{}, false, nil
	}
	if len(files) > 1 {
		return mediasvc.Stored{}, false, tooManyFiles(cat)
	}
	stored, err = upload(ctx.Request().Context(), uploader, cat, files[0])
	return stored, err == nil, err
}

// uploadMany stores every file of cat.Field, up to cat.MaxFiles.
func uploadMany(ctx echo.Context, uploader *mediasvc.Uploader, cat mediasvc.Category) ([]mediasvc.Stored, error) {
	files := formFiles(ctx, cat.Field)
	if cat.MaxFiles > 0 && len(files) > cat.MaxFiles {
		return nil, tooManyFiles(cat)
	}
	stored := make([]mediasvc.Stored, 0, len(files))
	for _, fh := range files {
		s, err := upload(ctx.Request().Context(), uploader, cat, fh)
		if err != nil {
			return nil, err
		}
		stored = append(stored, s)
	}
	return stored, nil
}

func isMultipart(ctx echo.Context) bool {
	return strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
}

// formStrings returns the values sent under name, nil if the field is absent.
func formStrings(ctx echo.Context, name string) []string {
	form, err := ctx.MultipartForm()
	if err != nil {
		return nil
	}
	return form.Value[name]
}

// formString returns the first value sent under name, nil if the field is absent.
func formString(ctx echo.Context, name string) *string {
	if vals := formStrings(ctx, name); len(vals) > 0 {
		return &vals[0]
	}
	return nil
}

func formBool(ctx echo.Context, name string) (*bool, error) {
	s := formString(ctx, name)
	if s == nil {
		return nil, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(*s))
	if err != nil {
		return nil, core.NewValidationError(nil, core.FieldError{Field: name, Error: "must be a boolean"})
	}
	return &v, nil
}

func formInt(ctx echo.Context, name string) (*int, error) {
	s := formString(ctx, name)
	if s == nil {
		return nil, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(*s))
	if err != nil {
		return nil, core.NewValidationError(nil, core.FieldError{Field: name, Error: "must be an integer"})
	}
	return &v, nil
}
