package pdfrenderer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/gen2brain/go-fitz"

	"github.com/drummonds/docpreview/engine/preview"
)

// FitzEngine renders with go-fitz (requires CGo and MuPDF). MuPDF contexts are
// not thread-safe, so open documents are bounded by a worker channel.
type FitzEngine struct {
	workers chan struct{}
}

// NewFitzEngine creates a Fitz-based engine allowing workers open documents
func NewFitzEngine(workers int) *FitzEngine {
	return &FitzEngine{workers: make(chan struct{}, workers)}
}

func (e *FitzEngine) Name() string {
	return EngineFitz
}

func (e *FitzEngine) Open(ctx context.Context, data []byte) (preview.Document, error) {
	select {
	case e.workers <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		<-e.workers
		if errors.Is(err, fitz.ErrNeedsPassword) {
			return nil, fmt.Errorf("%w: %v", preview.ErrPasswordProtected, err)
		}
		return nil, fmt.Errorf("%w: %v", preview.ErrMalformedDocument, err)
	}
	return &fitzDocument{doc: doc, release: func() { <-e.workers }}, nil
}

// Close is a no-op; documents are closed per request
func (e *FitzEngine) Close() error {
	return nil
}

type fitzDocument struct {
	mu      sync.Mutex
	doc     *fitz.Document
	release func()
	closed  bool
}

func (d *fitzDocument) PageCount() int {
	return d.doc.NumPage()
}

func (d *fitzDocument) LoadPage(ctx context.Context, number int) (preview.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	bounds, err := d.doc.Bound(number - 1)
	if err != nil {
		return nil, fmt.Errorf("unable to load page %d: %w", number, err)
	}
	return &fitzPage{doc: d, index: number - 1, bounds: bounds}, nil
}

func (d *fitzDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	defer d.release()
	return d.doc.Close()
}

// fitzPage has no native handle of its own; MuPDF loads the page per call
type fitzPage struct {
	doc    *fitzDocument
	index  int
	bounds image.Rectangle
}

func (p *fitzPage) Size() (float64, float64) {
	return float64(p.bounds.Dx()), float64(p.bounds.Dy())
}

func (p *fitzPage) Render(ctx context.Context, dpi float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.doc.mu.Lock()
	defer p.doc.mu.Unlock()
	if p.doc.closed {
		return nil, errors.New("document already closed")
	}
	return p.doc.doc.ImageDPI(p.index, dpi)
}

func (p *fitzPage) Close() error {
	return nil
}
