package annotate_test

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/carvision/defect-api/internal/domain"
	"github.com/carvision/defect-api/internal/infra/annotate"
)

func writePNG(t *testing.T, width, height int) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 10, G: 10, B: 10, A: 255})
		}
	}

	path := filepath.Join(t.TempDir(), "car.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return path
}

func decodePNG(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return img
}

func TestFile_DrawsBoxBorder(t *testing.T) {
	path := writePNG(t, 100, 100)

	err := annotate.File(path, []domain.Defect{
		{Class: "scratch", Confidence: 0.9, BBox: [4]int{20, 30, 80, 70}},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	img := decodePNG(t, path)
	want := annotate.ClassColor("scratch")

	// Top-left corner of the border carries the class color.
	r, g, b, _ := img.At(20, 30).RGBA()
	got := color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 255}
	if got.R != want.R || got.G != want.G || got.B != want.B {
		t.Errorf("border pixel: expected %v, got %v", want, got)
	}

	// Pixel well inside the box stays untouched.
	r, g, b, _ = img.At(50, 50).RGBA()
	if uint8(r>>8) != 10 || uint8(g>>8) != 10 || uint8(b>>8) != 10 {
		t.Errorf("interior pixel changed: %d %d %d", r>>8, g>>8, b>>8)
	}
}

func TestFile_BoxAtImageEdge(t *testing.T) {
	path := writePNG(t, 60, 60)

	// Label position would fall above the image; must not panic or error.
	err := annotate.File(path, []domain.Defect{
		{Class: "dent", Confidence: 0.5, BBox: [4]int{0, 0, 59, 59}},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	decodePNG(t, path)
}

func TestFile_NoDefectsRewritesCleanImage(t *testing.T) {
	path := writePNG(t, 40, 40)

	if err := annotate.File(path, nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	img := decodePNG(t, path)
	if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 40 {
		t.Errorf("unexpected bounds %v", img.Bounds())
	}
}

func TestFile_UnreadableInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.png")
	if err := os.WriteFile(path, []byte("junk"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := annotate.File(path, nil); err == nil {
		t.Fatal("expected error for unreadable image")
	}
}

func TestClassColor_KnownAndDefault(t *testing.T) {
	if c := annotate.ClassColor("tire_flat"); c.R != 255 || c.G != 0 || c.B != 0 {
		t.Errorf("tire_flat: expected red, got %v", c)
	}
	if c := annotate.ClassColor("unknown_class"); c.G != 255 || c.R != 0 {
		t.Errorf("unknown class: expected green fallback, got %v", c)
	}
}
