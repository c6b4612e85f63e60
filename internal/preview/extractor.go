package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/image/draw"

	"github.com/joseph-ayodele/claims-review/constants"
)

type Config struct {
	Pdftoppm string        // binary name or absolute path; if empty -> "pdftoppm"
	DPI      int           // rasterization DPI, default 110
	MaxWidth int           // downscale wider crops to this width; 0 = keep native size
	Timeout  time.Duration // per render; 0 = no limit beyond ctx
}

// Extractor renders named bands of a document's first page to PNG.
type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 110
	}
	return &Extractor{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
}

// RenderRegion rasterizes region of page one of the PDF at documentPath and returns PNG bytes
// of exactly that band. It never writes next to the document.
func (e *Extractor) RenderRegion(ctx context.Context, documentPath, region string) ([]byte, error) {
	r, band, ok := constants.LookupRegion(region)
	if !ok {
		return nil, fmt.Errorf("%w: %q (want one of %v)", ErrInvalidRegion, region, constants.RegionsAsStringSlice())
	}
	if err := checkDocument(documentPath); err != nil {
		e.logger.Warn("preview.document_unavailable", "path", documentPath, "error", err)
		return nil, err
	}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	page, err := e.renderFirstPage(ctx, documentPath)
	if err != nil {
		return nil, err
	}

	crop := cropBand(page, band)
	if crop.Bounds().Empty() {
		return nil, fmt.Errorf("%w: page one of %s has no area", ErrDocumentNotFound, documentPath)
	}
	if e.cfg.MaxWidth > 0 && crop.Bounds().Dx() > e.cfg.MaxWidth {
		crop = scaleToWidth(crop, e.cfg.MaxWidth)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, crop); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	e.logger.Debug("preview.render.ok",
		"path", documentPath,
		"region", string(r),
		"width", crop.Bounds().Dx(),
		"height", crop.Bounds().Dy(),
		"bytes", buf.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// checkDocument rejects missing files and files that do not carry a PDF header
// within the first KiB.
func checkDocument(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDocumentNotFound, err)
	}
	defer func(f *os.File) { _ = f.Close() }(f)

	fi, err := f.Stat()
	if err != nil || !fi.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrDocumentNotFound, path)
	}
	head := make([]byte, 1024)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrDocumentNotFound, err)
	}
	if !bytes.Contains(head[:n], []byte("%PDF-")) {
		return fmt.Errorf("%w: %s has no PDF header", ErrDocumentNotFound, path)
	}
	return nil
}

func (e *Extractor) renderFirstPage(ctx context.Context, path string) (image.Image, error) {
	tmpDir, err := os.MkdirTemp("", "cr-preview-*")
	if err != nil {
		return nil, err
	}
	defer func(path string) {
		if err := os.RemoveAll(path); err != nil {
			e.logger.Warn("failed to remove temp dir", "path", path, "error", err)
		}
	}(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -f 1 -l 1 -r <dpi> -png -singlefile <in.pdf> <tmp/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm,
		"-f", "1", "-l", "1",
		"-r", strconv.Itoa(e.cfg.DPI),
		"-png", "-singlefile",
		path, prefix,
	)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrRendererUnavailable, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("render %s: %w", path, ctxErr)
		}
		return nil, fmt.Errorf("%w: render page one: %v: %s", ErrDocumentNotFound, err, truncate(string(errb), 512))
	}

	f, err := os.Open(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("%w: rasterizer produced no page: %v", ErrDocumentNotFound, err)
	}
	defer func(f *os.File) { _ = f.Close() }(f)

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decode rendered page: %v", ErrDocumentNotFound, err)
	}
	return img, nil
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// cropBand clips img to the full-width band [Top*H, Bottom*H).
func cropBand(img image.Image, band constants.Band) image.Image {
	b := img.Bounds()
	h := float64(b.Dy())
	y0 := b.Min.Y + int(math.Round(band.Top*h))
	y1 := b.Min.Y + int(math.Round(band.Bottom*h))
	rect := image.Rect(b.Min.X, y0, b.Max.X, y1).Intersect(b)

	if si, ok := img.(subImager); ok {
		return si.SubImage(rect)
	}
	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
	return dst
}

func scaleToWidth(img image.Image, width int) image.Image {
	b := img.Bounds()
	height := int(math.Max(1, math.Round(float64(b.Dy())*float64(width)/float64(b.Dx()))))
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
