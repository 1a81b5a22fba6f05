package pdfrenderer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/klippa-app/go-pdfium"
	pdfium_errors "github.com/klippa-app/go-pdfium/errors"
	"github.com/klippa-app/go-pdfium/references"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/webassembly"

	"github.com/drummonds/docpreview/engine/preview"
)

// instanceTimeout bounds the wait for a free worker when ctx has no deadline
const instanceTimeout = 30 * time.Second

// PDFiumEngine renders with go-pdfium on WebAssembly (pure Go, no CGo). Each
// open document holds one worker instance from the pool until it is closed.
type PDFiumEngine struct {
	pool pdfium.Pool
}

// NewPDFiumEngine initializes a WebAssembly pool of at most workers instances
func NewPDFiumEngine(workers int) (*PDFiumEngine, error) {
	pool, err := webassembly.Init(webassembly.Config{
		MinIdle:  1,       // Keep one worker warm
		MaxIdle:  workers, // Idle workers kept alive for reuse
		MaxTotal: workers, // Upper bound on concurrent documents
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PDFium WebAssembly: %w", err)
	}
	return &PDFiumEngine{pool: pool}, nil
}

func (e *PDFiumEngine) Name() string {
	return EnginePDFium
}

// Open parses data in a dedicated instance
func (e *PDFiumEngine) Open(ctx context.Context, data []byte) (preview.Document, error) {
	instance, err := e.getInstance(ctx)
	if err != nil {
		return nil, err
	}

	doc, err := instance.OpenDocument(&requests.OpenDocument{
		File: &data,
	})
	if err != nil {
		instance.Close()
		if errors.Is(err, pdfium_errors.ErrPassword) {
			return nil, fmt.Errorf("%w: %v", preview.ErrPasswordProtected, err)
		}
		return nil, fmt.Errorf("%w: %v", preview.ErrMalformedDocument, err)
	}

	pageCount, err := instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{
		Document: doc.Document,
	})
	if err != nil {
		instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: doc.Document})
		instance.Close()
		return nil, fmt.Errorf("%w: unable to get page count: %v", preview.ErrMalformedDocument, err)
	}

	return &pdfiumDocument{
		instance:  instance,
		document:  doc.Document,
		pageCount: pageCount.PageCount,
	}, nil
}

type instanceResult struct {
	instance pdfium.Pdfium
	err      error
}

// getInstance waits for a free worker until ctx is done. The pool only takes a
// timeout, so the wait runs aside and an instance that arrives after ctx has
// finished goes straight back to the pool.
func (e *PDFiumEngine) getInstance(ctx context.Context) (pdfium.Pdfium, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timeout := instanceTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return nil, context.DeadlineExceeded
		}
	}

	pool := e.pool
	got := make(chan instanceResult, 1)
	go func() {
		instance, err := pool.GetInstance(timeout)
		got <- instanceResult{instance: instance, err: err}
	}()

	select {
	case r := <-got:
		if r.err != nil {
			return nil, fmt.Errorf("failed to get PDFium instance: %w", r.err)
		}
		return r.instance, nil
	case <-ctx.Done():
		go func() {
			if r := <-got; r.err == nil {
				r.instance.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// Close cleans up resources used by the PDFium engine
func (e *PDFiumEngine) Close() error {
	if e.pool != nil {
		err := e.pool.Close()
		e.pool = nil
		return err
	}
	return nil
}

type pdfiumDocument struct {
	mu        sync.Mutex
	instance  pdfium.Pdfium
	document  references.FPDF_DOCUMENT
	pageCount int
	closed    bool
}

func (d *pdfiumDocument) PageCount() int {
	return d.pageCount
}

func (d *pdfiumDocument) LoadPage(ctx context.Context, number int) (preview.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errors.New("document already closed")
	}

	loaded, err := d.instance.FPDF_LoadPage(&requests.FPDF_LoadPage{
		Document: d.document,
		Index:    number - 1,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to load page %d: %w", number, err)
	}
	page := &pdfiumPage{doc: d, page: loaded.Page}

	size, err := d.instance.GetPageSize(&requests.GetPageSize{
		Page: page.ref(),
	})
	if err != nil {
		d.instance.FPDF_ClosePage(&requests.FPDF_ClosePage{Page: loaded.Page})
		return nil, fmt.Errorf("unable to get size of page %d: %w", number, err)
	}
	page.width = size.Width
	page.height = size.Height
	return page, nil
}

// Close releases the document and returns the instance to the pool
func (d *pdfiumDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	_, closeErr := d.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{
		Document: d.document,
	})
	if err := d.instance.Close(); err != nil && closeErr == nil {
		closeErr = err
	}
	return closeErr
}

type pdfiumPage struct {
	doc    *pdfiumDocument
	page   references.FPDF_PAGE
	width  float64
	height float64
	closed bool
}

func (p *pdfiumPage) ref() requests.Page {
	return requests.Page{ByReference: &p.page}
}

func (p *pdfiumPage) Size() (float64, float64) {
	return p.width, p.height
}

func (p *pdfiumPage) Render(ctx context.Context, dpi float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.doc.mu.Lock()
	defer p.doc.mu.Unlock()

	rendered, err := p.doc.instance.RenderPageInDPI(&requests.RenderPageInDPI{
		DPI:  int(math.Round(dpi)),
		Page: p.ref(),
	})
	if err != nil {
		return nil, err
	}
	// the bitmap lives in worker memory until Cleanup
	defer rendered.Cleanup()
	return imaging.Clone(rendered.Result.Image), nil
}

func (p *pdfiumPage) Close() error {
	p.doc.mu.Lock()
	defer p.doc.mu.Unlock()
	if p.closed || p.doc.closed {
		return nil
	}
	p.closed = true
	_, err := p.doc.instance.FPDF_ClosePage(&requests.FPDF_ClosePage{
		Page: p.page,
	})
	return err
}
