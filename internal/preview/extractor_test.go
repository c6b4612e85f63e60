package preview

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/claims-review/constants"
	"github.com/joseph-ayodele/claims-review/internal/common"
)

// fakePdftoppm writes a w x h page where each row's red channel encodes its y.
type fakePdftoppm struct {
	w, h  int
	err   error
	calls [][]string
}

func (f *fakePdftoppm) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.err != nil {
		return nil, []byte("Syntax Error: Couldn't read xref table"), f.err
	}
	img := image.NewRGBA(image.Rect(0, 0, f.w, f.h))
	for y := 0; y < f.h; y++ {
		for x := 0; x < f.w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(y), A: 255})
		}
	}
	out, err := os.Create(args[len(args)-1] + ".png")
	if err != nil {
		return nil, nil, err
	}
	defer out.Close()
	return nil, nil, png.Encode(out, img)
}

func writePDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "claim-1.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n%%EOF\n"), 0o644))
	return path
}

func newTestExtractor(r Runner, cfg Config) *Extractor {
	e := NewExtractor(cfg, nil)
	e.runner = r
	return e
}

func decode(t *testing.T, b []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	return img
}

func TestRenderRegionBands(t *testing.T) {
	doc := writePDF(t)
	runner := &fakePdftoppm{w: 100, h: 200}
	e := newTestExtractor(runner, Config{})

	cases := []struct {
		region    string
		height    int
		topPixelY uint8
	}{
		{"header", 50, 0},
		{"line_items", 90, 70},
		{"footer", 40, 160},
	}
	for _, tc := range cases {
		out, err := e.RenderRegion(context.Background(), doc, tc.region)
		require.NoError(t, err, tc.region)
		require.NotEmpty(t, out)

		img := decode(t, out)
		assert.Equal(t, 100, img.Bounds().Dx(), tc.region)
		assert.Equal(t, tc.height, img.Bounds().Dy(), tc.region)
		r, _, _, _ := img.At(img.Bounds().Min.X, img.Bounds().Min.Y).RGBA()
		assert.Equal(t, tc.topPixelY, uint8(r>>8), tc.region)
	}

	require.NotEmpty(t, runner.calls)
	assert.Equal(t, []string{"pdftoppm", "-f", "1", "-l", "1", "-r", "110", "-png", "-singlefile", doc}, runner.calls[0][:10])
}

func TestRenderRegionInvalidName(t *testing.T) {
	e := newTestExtractor(&fakePdftoppm{w: 10, h: 10}, Config{})
	for _, name := range []string{"", "Header", "body", "line-items", "footer "} {
		_, err := e.RenderRegion(context.Background(), writePDF(t), name)
		assert.ErrorIs(t, err, ErrInvalidRegion, name)
		assert.ErrorIs(t, err, common.ErrInvalidInput, name)
	}
	_, err := e.RenderRegion(context.Background(), "/nonexistent.pdf", "nope")
	assert.ErrorIs(t, err, ErrInvalidRegion, "region is checked before the document")
}

func TestRenderRegionDocumentNotFound(t *testing.T) {
	runner := &fakePdftoppm{w: 10, h: 10}
	e := newTestExtractor(runner, Config{})

	_, err := e.RenderRegion(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"), "header")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	notPDF := filepath.Join(t.TempDir(), "x.pdf")
	require.NoError(t, os.WriteFile(notPDF, []byte("hello"), 0o644))
	_, err = e.RenderRegion(context.Background(), notPDF, "header")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	_, err = e.RenderRegion(context.Background(), t.TempDir(), "header")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	assert.Empty(t, runner.calls, "rasterizer is not invoked for unusable documents")
}

func TestRenderRegionCorruptDocument(t *testing.T) {
	e := newTestExtractor(&fakePdftoppm{err: errors.New("exit status 1")}, Config{})
	_, err := e.RenderRegion(context.Background(), writePDF(t), "footer")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	e = newTestExtractor(&fakePdftoppm{w: 10, h: 0}, Config{})
	_, err = e.RenderRegion(context.Background(), writePDF(t), "footer")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestRenderRegionScalesToMaxWidth(t *testing.T) {
	e := newTestExtractor(&fakePdftoppm{w: 100, h: 200}, Config{MaxWidth: 50, DPI: 72})
	out, err := e.RenderRegion(context.Background(), writePDF(t), "header")
	require.NoError(t, err)
	img := decode(t, out)
	assert.Equal(t, 50, img.Bounds().Dx())
	assert.Equal(t, 25, img.Bounds().Dy())
}

func TestCropBandCoversPage(t *testing.T) {
	page := image.NewGray(image.Rect(0, 0, 10, 1000))
	_, header, _ := constants.LookupRegion("header")
	_, footer, _ := constants.LookupRegion("footer")
	assert.Equal(t, image.Rect(0, 0, 10, 250), cropBand(page, header).Bounds())
	assert.Equal(t, image.Rect(0, 800, 10, 1000), cropBand(page, footer).Bounds())
}
