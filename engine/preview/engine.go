package preview

import (
	"context"
	"image"
)

// Engine decodes PDF bytes. Implementations live in engine/pdfrenderer.
type Engine interface {
	Open(ctx context.Context, data []byte) (Document, error)
}

// Document is a decoded PDF owned by exactly one request. Close must be
// called once the request is done with it.
type Document interface {
	PageCount() int
	// LoadPage fetches a page by its 1-based number.
	LoadPage(ctx context.Context, number int) (Page, error)
	Close() error
}

// Page is one decoded page. It is closed before its document.
type Page interface {
	// Size returns the intrinsic page size in PDF points.
	Size() (width, height float64)
	// Render rasterizes the page at the given resolution.
	Render(ctx context.Context, dpi float64) (image.Image, error)
	Close() error
}
