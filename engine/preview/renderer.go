package preview

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// JPEGMediaType is the media type of every encoded preview
const JPEGMediaType = "image/jpeg"

// Result is one rendered page. It is immutable once returned.
type Result struct {
	Image      []byte `json:"-"`
	MediaType  string `json:"mediaType"`
	PageNumber int    `json:"page"`
	PageCount  int    `json:"pageCount"`
	// Width and Height are the physical pixel size of Image.
	Width  int `json:"width"`
	Height int `json:"height"`
	// LogicalWidth and LogicalHeight are the viewport size before the pixel ratio.
	LogicalWidth  int `json:"logicalWidth"`
	LogicalHeight int `json:"logicalHeight"`
}

// DataURL returns the image as a self-contained data URL
func (r *Result) DataURL() string {
	return "data:" + r.MediaType + ";base64," + base64.StdEncoding.EncodeToString(r.Image)
}

// Renderer converts one page of one PDF into a JPEG. It is single-shot and
// keeps no state between requests: every call decodes the file again, so page
// navigation costs a full decode. Retries are the caller's job (see Controller).
type Renderer struct {
	engine Engine
	config Config
	logger *slog.Logger
}

// NewRenderer creates a renderer over engine. A nil logger discards output.
func NewRenderer(engine Engine, config Config, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Renderer{
		engine: engine,
		config: config.normalized(),
		logger: logger,
	}
}

// Config returns the normalized configuration in use
func (r *Renderer) Config() Config {
	return r.config
}

// Request renders pageNumber (1-based) of file. Page and document handles are
// released before it returns on every path, including cancellation.
func (r *Renderer) Request(ctx context.Context, file *SourceFile, pageNumber int) (*Result, error) {
	if err := Validate(file); err != nil {
		r.logger.Debug("Preview request rejected", "page", pageNumber, "error", err)
		return nil, err
	}

	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}

	started := time.Now()
	logger := r.logger.With("file", file.Name, "page", pageNumber)
	logger.Debug("Decoding document", "bytes", len(file.Data))

	doc, err := r.engine.Open(ctx, file.Data)
	if err != nil {
		failure := classifyDecode(ctx, err)
		logger.Warn("Unable to decode document", "kind", failure.Kind, "error", err)
		return nil, failure
	}
	defer func() {
		if err := doc.Close(); err != nil {
			logger.Warn("Failed to release document", "error", err)
		}
	}()

	totalPages := doc.PageCount()
	if pageNumber < 1 || pageNumber > totalPages {
		failure := newError(KindInvalidPage, fmt.Sprintf("invalid page number, document has %d pages", totalPages), nil)
		failure.TotalPages = totalPages
		logger.Debug("Page out of range", "totalPages", totalPages)
		return nil, failure
	}
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}

	page, err := doc.LoadPage(ctx, pageNumber)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, contextError(ctxErr)
		}
		logger.Warn("Unable to load page", "error", err)
		return nil, newError(KindDecodeFailure, fmt.Sprintf("failed to load page %d", pageNumber), err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			logger.Warn("Failed to release page", "error", err)
		}
	}()

	result, err := r.render(ctx, page)
	if err != nil {
		logger.Warn("Unable to render page", "kind", KindOf(err), "error", err)
		return nil, err
	}
	result.PageNumber = pageNumber
	result.PageCount = totalPages

	logger.Debug("Rendered page",
		"width", result.Width,
		"height", result.Height,
		"bytes", len(result.Image),
		"duration", time.Since(started))
	return result, nil
}

// render rasterizes a loaded page onto a white surface and encodes it
func (r *Renderer) render(ctx context.Context, page Page) (*Result, error) {
	pageWidth, pageHeight := page.Size()
	v, err := newViewport(pageWidth, pageHeight, r.config.Scale, r.config.PixelRatio)
	if err != nil {
		return nil, newError(KindRenderFailure, "failed to render PDF page", err)
	}

	raster, err := page.Render(ctx, v.dpi)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, contextError(ctxErr)
		}
		return nil, newError(KindRenderFailure, "failed to render PDF page", err)
	}
	if raster == nil || raster.Bounds().Empty() {
		return nil, newError(KindRenderFailure, "failed to render PDF page", errors.New("engine returned an empty image"))
	}
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}

	surface := paint(v, raster)
	data, bounds, err := encodeJPEG(surface, r.config.JPEGQuality, r.config.MaxWidth)
	if err != nil {
		return nil, newError(KindRenderFailure, "failed to encode PDF page", err)
	}

	return &Result{
		Image:         data,
		MediaType:     JPEGMediaType,
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
		LogicalWidth:  int(v.width),
		LogicalHeight: int(v.height),
	}, nil
}

// classifyDecode maps an engine open failure onto the error taxonomy
func classifyDecode(ctx context.Context, err error) *Error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return contextError(ctxErr)
	}
	if errors.Is(err, ErrPasswordProtected) {
		return newError(KindUnsupportedType, ErrPasswordProtected.Error(), err)
	}
	return newError(KindDecodeFailure, "failed to load PDF document", err)
}
