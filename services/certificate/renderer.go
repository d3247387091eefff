// Package certsvc draws completion certificates with gg & the Go fonts.
package certsvc

import (
	"image/color"
	"io"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/eduplatform/backend/core/certificate"
)

const (
	width  = 1600
	height = 1130 // landscape A4
	margin = 40.0

	notice = "This is a digitally generated certificate and does not require a signature."
)

var (
	background = color.RGBA{R: 255, G: 253, B: 245, A: 255}
	accent     = color.RGBA{R: 31, G: 64, B: 122, A: 255}
	ink        = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	muted      = color.RGBA{R: 110, G: 110, B: 110, A: 255}
)

type faces struct {
	title, heading, name, body, small font.Face
}

// Renderer renders certificates as PNG images.
type Renderer struct {
	faces faces
}

var _ certificate.Renderer = (*Renderer)(nil)

func NewRenderer() (*Renderer, error) {
	regular, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, errors.Wrap(err, "parsing regular font")
	}
	bold, err := truetype.Parse(gobold.TTF)
	if err != nil {
		return nil, errors.Wrap(err, "parsing bold font")
	}
	face := func(f *truetype.Font, size float64) font.Face {
		return truetype.NewFace(f, &truetype.Options{Size: size, Hinting: font.HintingNone})
	}
	return &Renderer{faces: faces{
		title:   face(bold, 40),
		heading: face(bold, 72),
		name:    face(bold, 64),
		body:    face(regular, 32),
		small:   face(regular, 22),
	}}, nil
}

func (r *Renderer) Render(w io.Writer, cert certificate.Certificate) error {
	dc := gg.NewContext(width, height)

	dc.SetColor(background)
	dc.Clear()

	// double border
	dc.SetColor(accent)
	dc.SetLineWidth(8)
	dc.DrawRectangle(margin, margin, width-2*margin, height-2*margin)
	dc.Stroke()
	dc.SetLineWidth(2)
	dc.DrawRectangle(margin+20, margin+20, width-2*margin-40, height-2*margin-40)
	dc.Stroke()

	cx := float64(width) / 2
	text := func(face font.Face, c color.Color, s string, y float64) {
		dc.SetFontFace(face)
		dc.SetColor(c)
		dc.DrawStringAnchored(s, cx, y, 0.5, 0.5)
	}

	text(r.faces.title, accent, cert.Platform, 180)
	text(r.faces.heading, ink, "Certificate of Completion", 300)
	text(r.faces.body, muted, "This is to certify that", 420)
	text(r.faces.name, accent, cert.StudentName, 520)

	dc.SetColor(accent)
	dc.SetLineWidth(2)
	dc.DrawLine(cx-360, 570, cx+360, 570)
	dc.Stroke()

	text(r.faces.body, muted, "has successfully completed the course", 640)
	dc.SetFontFace(r.faces.title)
	dc.SetColor(ink)
	dc.DrawStringWrapped(cert.CourseTitle, cx, 720, 0.5, 0.5, width-400, 1.4, gg.AlignCenter)

	text(r.faces.body, ink, "Completed on "+cert.CompletedAt.Format("January 2, 2006"), 860)
	text(r.faces.small, muted, notice, float64(height)-margin-70)

	return errors.Wrap(dc.EncodePNG(w), "encoding certificate")
}
