// Package annotate draws labeled defect boxes onto images.
package annotate

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/carvision/defect-api/internal/domain"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const borderWidth = 2

// Class palette. Kept stable so visual regressions are comparable.
var palette = map[string]color.RGBA{
	"dent":         {R: 255, G: 192, B: 203, A: 255}, // light pink
	"scratch":      {R: 0, G: 0, B: 255, A: 255},     // blue
	"lamp_broken":  {R: 255, G: 255, B: 0, A: 255},   // yellow
	"glass_broken": {R: 128, G: 0, B: 128, A: 255},   // purple
	"tire_flat":    {R: 255, G: 0, B: 0, A: 255},     // red
}

var defaultColor = color.RGBA{R: 0, G: 255, B: 0, A: 255} // green

// ClassColor returns the palette color for a defect class.
func ClassColor(class string) color.RGBA {
	if c, ok := palette[class]; ok {
		return c
	}
	return defaultColor
}

// File decodes the image at path, draws every defect box with its label,
// and writes the annotated image back to the same path.
func File(path string, defects []domain.Defect) error {
	f, err := os.Open(path)
	if err != nil {
		return &domain.ErrStorage{Op: "open image for annotation", Err: err}
	}
	src, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return &domain.ErrImageUnreadable{Path: path, Err: err}
	}

	rgba := image.NewRGBA(src.Bounds())
	draw.Draw(rgba, rgba.Bounds(), src, src.Bounds().Min, draw.Src)

	for i := range defects {
		drawDefect(rgba, &defects[i])
	}

	out, err := os.Create(path)
	if err != nil {
		return &domain.ErrStorage{Op: "write annotated image", Err: err}
	}
	defer out.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		err = png.Encode(out, rgba)
	default:
		err = jpeg.Encode(out, rgba, &jpeg.Options{Quality: 90})
	}
	if err != nil {
		return &domain.ErrStorage{Op: "encode annotated image", Err: err}
	}
	return nil
}

// drawDefect renders one box border plus its "<class> | <conf>" label.
func drawDefect(img *image.RGBA, d *domain.Defect) {
	col := ClassColor(d.Class)
	x1, y1, x2, y2 := d.BBox[0], d.BBox[1], d.BBox[2], d.BBox[3]

	drawRect(img, x1, y1, x2, y2, col)

	label := fmt.Sprintf("%s | %.2f", d.Class, d.Confidence)
	drawLabel(img, x1, y1-8, label, col)
}

// drawRect draws a rectangle border of borderWidth pixels.
func drawRect(img *image.RGBA, x1, y1, x2, y2 int, col color.RGBA) {
	for w := 0; w < borderWidth; w++ {
		hline(img, x1, x2, y1+w, col)
		hline(img, x1, x2, y2-w, col)
		vline(img, x1+w, y1, y2, col)
		vline(img, x2-w, y1, y2, col)
	}
}

func hline(img *image.RGBA, x1, x2, y int, col color.RGBA) {
	for x := x1; x <= x2; x++ {
		if (image.Point{X: x, Y: y}).In(img.Bounds()) {
			img.SetRGBA(x, y, col)
		}
	}
}

func vline(img *image.RGBA, x, y1, y2 int, col color.RGBA) {
	for y := y1; y <= y2; y++ {
		if (image.Point{X: x, Y: y}).In(img.Bounds()) {
			img.SetRGBA(x, y, col)
		}
	}
}

// drawLabel rasterizes text at (x, y) using the built-in bitmap face.
func drawLabel(img *image.RGBA, x, y int, text string, col color.RGBA) {
	if y < basicfont.Face7x13.Ascent {
		y = basicfont.Face7x13.Ascent
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
