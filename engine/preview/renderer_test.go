package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"image/jpeg"
	"strings"
	"testing"
	"time"
)

func pdfFile(data string) *SourceFile {
	return NewSourceFile("test.pdf", PDFMediaType, []byte(data))
}

func TestRequestValidationOrder(t *testing.T) {
	tests := []struct {
		name string
		file *SourceFile
		want ErrorKind
	}{
		{"missing file", nil, KindMissingFile},
		{"wrong type", NewSourceFile("a.png", "image/png", []byte("x")), KindUnsupportedType},
		{"wrong type and empty", NewSourceFile("a.txt", "text/plain", nil), KindUnsupportedType},
		{"case differs", NewSourceFile("a.pdf", "Application/PDF", []byte("x")), KindUnsupportedType},
		{"no media type", NewSourceFile("a.pdf", "", []byte("x")), KindUnsupportedType},
		{"empty pdf", NewSourceFile("a.pdf", PDFMediaType, []byte{}), KindEmptyFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newFakeEngine(3)
			renderer := NewRenderer(engine, DefaultConfig(), nil)

			_, err := renderer.Request(context.Background(), tt.file, 1)
			if got := KindOf(err); got != tt.want {
				t.Fatalf("Expected %s, got %s (%v)", tt.want, got, err)
			}
			if engine.opened.Load() != 0 {
				t.Errorf("Expected no decode attempt, engine opened %d documents", engine.opened.Load())
			}
			if IsRetryable(err) {
				t.Errorf("Validation failures must not be retryable")
			}
		})
	}
}

func TestRequestReturnsPageCount(t *testing.T) {
	const pages = 5
	engine := newFakeEngine(pages)
	renderer := NewRenderer(engine, DefaultConfig(), nil)

	for page := 1; page <= pages; page++ {
		result, err := renderer.Request(context.Background(), pdfFile("%PDF"), page)
		if err != nil {
			t.Fatalf("Page %d: unexpected error: %v", page, err)
		}
		if result.PageCount != pages {
			t.Errorf("Page %d: expected page count %d, got %d", page, pages, result.PageCount)
		}
		if result.PageNumber != page {
			t.Errorf("Expected page number %d, got %d", page, result.PageNumber)
		}
		if result.MediaType != JPEGMediaType {
			t.Errorf("Expected media type %s, got %s", JPEGMediaType, result.MediaType)
		}
	}
}

func TestRequestInvalidPage(t *testing.T) {
	const pages = 4
	for _, page := range []int{0, -1, pages + 1, 100} {
		t.Run(fmt.Sprintf("page %d", page), func(t *testing.T) {
			engine := newFakeEngine(pages)
			renderer := NewRenderer(engine, DefaultConfig(), nil)

			_, err := renderer.Request(context.Background(), pdfFile("%PDF"), page)
			var previewErr *Error
			if !errors.As(err, &previewErr) {
				t.Fatalf("Expected *Error, got %v", err)
			}
			if previewErr.Kind != KindInvalidPage {
				t.Fatalf("Expected InvalidPage, got %s", previewErr.Kind)
			}
			if previewErr.TotalPages != pages {
				t.Errorf("Expected totalPages %d, got %d", pages, previewErr.TotalPages)
			}
			if !strings.Contains(previewErr.Error(), "document has 4 pages") {
				t.Errorf("Unexpected message: %s", previewErr.Error())
			}
			if engine.loadedPages.Load() != 0 {
				t.Errorf("No page should be loaded for an out-of-range request")
			}
			if !engine.balanced() {
				t.Errorf("Document was not released")
			}
		})
	}
}

func TestRequestReleasesHandlesOnEveryPath(t *testing.T) {
	tests := []struct {
		name      string
		configure func(e *fakeEngine)
		page      int
		want      ErrorKind
	}{
		{"success", func(e *fakeEngine) {}, 1, ""},
		{"invalid page", func(e *fakeEngine) {}, 9, KindInvalidPage},
		{"page load failure", func(e *fakeEngine) { e.loadErr = errors.New("bad page tree") }, 1, KindDecodeFailure},
		{"render failure", func(e *fakeEngine) { e.renderErr = errors.New("unsupported shading") }, 1, KindRenderFailure},
		{"empty raster", func(e *fakeEngine) { e.emptyImage = true }, 1, KindRenderFailure},
		{"bad page size", func(e *fakeEngine) { e.width = 0 }, 1, KindRenderFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newFakeEngine(2)
			tt.configure(engine)
			renderer := NewRenderer(engine, DefaultConfig(), nil)

			_, err := renderer.Request(context.Background(), pdfFile("%PDF"), tt.page)
			if got := KindOf(err); got != tt.want {
				t.Fatalf("Expected kind %q, got %q (%v)", tt.want, got, err)
			}
			if engine.opened.Load() != 1 || engine.closedDocs.Load() != 1 {
				t.Errorf("Expected exactly one document release, opened=%d closed=%d",
					engine.opened.Load(), engine.closedDocs.Load())
			}
			if engine.loadedPages.Load() != engine.closedPages.Load() {
				t.Errorf("Expected page releases to match loads, loaded=%d closed=%d",
					engine.loadedPages.Load(), engine.closedPages.Load())
			}
			if engine.closedPages.Load() > 1 {
				t.Errorf("Page released more than once")
			}
		})
	}
}

func TestRequestDecodeFailures(t *testing.T) {
	t.Run("malformed", func(t *testing.T) {
		engine := newFakeEngine(1)
		engine.openErr = fmt.Errorf("%w: no xref", ErrMalformedDocument)
		renderer := NewRenderer(engine, DefaultConfig(), nil)

		_, err := renderer.Request(context.Background(), pdfFile("garbage"), 1)
		if KindOf(err) != KindDecodeFailure {
			t.Fatalf("Expected DecodeFailure, got %v", err)
		}
		if !IsRetryable(err) {
			t.Errorf("Decode failures should be retryable")
		}
		if !errors.Is(err, ErrMalformedDocument) {
			t.Errorf("Expected the engine error to be wrapped")
		}
	})

	t.Run("password protected", func(t *testing.T) {
		engine := newFakeEngine(1)
		engine.openErr = fmt.Errorf("open: %w", ErrPasswordProtected)
		renderer := NewRenderer(engine, DefaultConfig(), nil)

		_, err := renderer.Request(context.Background(), pdfFile("%PDF"), 1)
		var previewErr *Error
		if !errors.As(err, &previewErr) || previewErr.Kind != KindUnsupportedType {
			t.Fatalf("Expected UnsupportedType, got %v", err)
		}
		if previewErr.Message != "password protected documents not supported" {
			t.Errorf("Unexpected message %q", previewErr.Message)
		}
		if IsRetryable(err) {
			t.Errorf("Password protected documents must not be retried")
		}
	})
}

func TestRequestRendersOnWhiteSurface(t *testing.T) {
	engine := newFakeEngine(1)
	renderer := NewRenderer(engine, DefaultConfig(), nil)

	result, err := renderer.Request(context.Background(), pdfFile("%PDF"), 1)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	img, err := jpeg.Decode(bytes.NewReader(result.Image))
	if err != nil {
		t.Fatalf("Result is not a JPEG: %v", err)
	}
	// 200x100 points at scale 2.0 and ratio 1.0
	if img.Bounds().Dx() != 400 || img.Bounds().Dy() != 200 {
		t.Errorf("Expected 400x200, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
	if result.Width != 400 || result.Height != 200 {
		t.Errorf("Expected result size 400x200, got %dx%d", result.Width, result.Height)
	}

	// the fake raster is fully transparent, so only the background shows
	r, g, b, _ := img.At(200, 100).RGBA()
	if r>>8 < 250 || g>>8 < 250 || b>>8 < 250 {
		t.Errorf("Expected white background, got rgb(%d,%d,%d)", r>>8, g>>8, b>>8)
	}

	if got := engine.dpis(); len(got) != 1 || got[0] != 144 {
		t.Errorf("Expected one render at 144 dpi, got %v", got)
	}
	if !strings.HasPrefix(result.DataURL(), "data:image/jpeg;base64,") {
		t.Errorf("Unexpected data URL prefix")
	}
}

func TestRequestAppliesPixelRatio(t *testing.T) {
	engine := newFakeEngine(1)
	engine.renderFill = color.Black
	config := DefaultConfig()
	config.PixelRatio = 2
	renderer := NewRenderer(engine, config, nil)

	result, err := renderer.Request(context.Background(), pdfFile("%PDF"), 1)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.LogicalWidth != 400 || result.LogicalHeight != 200 {
		t.Errorf("Expected logical 400x200, got %dx%d", result.LogicalWidth, result.LogicalHeight)
	}
	if result.Width != 800 || result.Height != 400 {
		t.Errorf("Expected physical 800x400, got %dx%d", result.Width, result.Height)
	}
	if got := engine.dpis(); len(got) != 1 || got[0] != 288 {
		t.Errorf("Expected one render at 288 dpi, got %v", got)
	}

	img, err := jpeg.Decode(bytes.NewReader(result.Image))
	if err != nil {
		t.Fatalf("Result is not a JPEG: %v", err)
	}
	r, _, _, _ := img.At(400, 200).RGBA()
	if r>>8 > 10 {
		t.Errorf("Expected the page content to cover the surface, got red=%d", r>>8)
	}
}

func TestRequestMaxWidth(t *testing.T) {
	engine := newFakeEngine(1)
	config := DefaultConfig()
	config.MaxWidth = 100
	renderer := NewRenderer(engine, config, nil)

	result, err := renderer.Request(context.Background(), pdfFile("%PDF"), 1)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Width != 100 || result.Height != 50 {
		t.Errorf("Expected 100x50 after downscale, got %dx%d", result.Width, result.Height)
	}
}

func TestRequestIsRepeatable(t *testing.T) {
	engine := newFakeEngine(3)
	renderer := NewRenderer(engine, DefaultConfig(), nil)
	file := pdfFile("%PDF")

	first, err := renderer.Request(context.Background(), file, 2)
	if err != nil {
		t.Fatalf("First request failed: %v", err)
	}
	second, err := renderer.Request(context.Background(), file, 2)
	if err != nil {
		t.Fatalf("Second request failed: %v", err)
	}

	if first.PageCount != second.PageCount {
		t.Errorf("Page counts differ: %d vs %d", first.PageCount, second.PageCount)
	}
	if first.Width != second.Width || first.Height != second.Height {
		t.Errorf("Dimensions differ: %dx%d vs %dx%d", first.Width, first.Height, second.Width, second.Height)
	}
	// every navigation decodes the document again
	if engine.opened.Load() != 2 {
		t.Errorf("Expected two decodes, got %d", engine.opened.Load())
	}
}

func TestRequestCancellation(t *testing.T) {
	t.Run("already canceled", func(t *testing.T) {
		engine := newFakeEngine(1)
		renderer := NewRenderer(engine, DefaultConfig(), nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := renderer.Request(ctx, pdfFile("%PDF"), 1)
		if KindOf(err) != KindCanceled {
			t.Fatalf("Expected Canceled, got %v", err)
		}
		if IsRetryable(err) {
			t.Errorf("Canceled requests must not be retried")
		}
		if engine.opened.Load() != 0 {
			t.Errorf("No decode expected after cancellation")
		}
	})

	t.Run("deadline during render", func(t *testing.T) {
		engine := newFakeEngine(1)
		engine.block = true
		config := DefaultConfig()
		config.Timeout = 20 * time.Millisecond
		renderer := NewRenderer(engine, config, nil)

		_, err := renderer.Request(context.Background(), pdfFile("%PDF"), 1)
		if KindOf(err) != KindTimeout {
			t.Fatalf("Expected Timeout, got %v", err)
		}
		if !IsRetryable(err) {
			t.Errorf("Timeouts should be retryable")
		}
		if !engine.balanced() {
			t.Errorf("Handles leaked after timeout: opened=%d closed=%d loaded=%d closedPages=%d",
				engine.opened.Load(), engine.closedDocs.Load(), engine.loadedPages.Load(), engine.closedPages.Load())
		}
	})
}

func TestConfigNormalized(t *testing.T) {
	renderer := NewRenderer(newFakeEngine(1), Config{JPEGQuality: 400, PixelRatio: -1, MaxRetries: -3}, nil)
	config := renderer.Config()

	if config.Scale != DefaultScale {
		t.Errorf("Expected default scale, got %v", config.Scale)
	}
	if config.JPEGQuality != DefaultJPEGQuality {
		t.Errorf("Expected default quality, got %d", config.JPEGQuality)
	}
	if config.PixelRatio != DefaultPixelRatio {
		t.Errorf("Expected default pixel ratio, got %v", config.PixelRatio)
	}
	if config.MaxRetries != 0 {
		t.Errorf("Expected negative retries to clamp to 0, got %d", config.MaxRetries)
	}
	if policy := DefaultConfig().Policy(); policy != DefaultPolicy() {
		t.Errorf("Expected default policy, got %+v", policy)
	}
}
