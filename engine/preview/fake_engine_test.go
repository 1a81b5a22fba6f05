package preview

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"time"
)

// fakeEngine hands out documents of fixed-size pages and counts every
// acquisition and release so tests can check nothing leaks.
type fakeEngine struct {
	pages      int
	width      float64
	height     float64
	openErr    error
	loadErr    error
	renderErr  error
	emptyImage bool
	// renderFill is the colour of rendered pixels; transparent leaves the
	// white background visible.
	renderFill color.Color
	// block makes Render wait for the context to finish.
	block bool

	opened       atomic.Int32
	closedDocs   atomic.Int32
	loadedPages  atomic.Int32
	closedPages  atomic.Int32
	mu           sync.Mutex
	renderedDPIs []float64
}

func newFakeEngine(pages int) *fakeEngine {
	return &fakeEngine{pages: pages, width: 200, height: 100, renderFill: color.Transparent}
}

func (e *fakeEngine) Open(ctx context.Context, data []byte) (Document, error) {
	if e.openErr != nil {
		return nil, e.openErr
	}
	e.opened.Add(1)
	return &fakeDocument{engine: e}, nil
}

func (e *fakeEngine) balanced() bool {
	return e.opened.Load() == e.closedDocs.Load() && e.loadedPages.Load() == e.closedPages.Load()
}

func (e *fakeEngine) dpis() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]float64(nil), e.renderedDPIs...)
}

type fakeDocument struct {
	engine *fakeEngine
}

func (d *fakeDocument) PageCount() int {
	return d.engine.pages
}

func (d *fakeDocument) LoadPage(ctx context.Context, number int) (Page, error) {
	if d.engine.loadErr != nil {
		return nil, d.engine.loadErr
	}
	d.engine.loadedPages.Add(1)
	return &fakePage{engine: d.engine}, nil
}

func (d *fakeDocument) Close() error {
	d.engine.closedDocs.Add(1)
	return nil
}

type fakePage struct {
	engine *fakeEngine
}

func (p *fakePage) Size() (float64, float64) {
	return p.engine.width, p.engine.height
}

func (p *fakePage) Render(ctx context.Context, dpi float64) (image.Image, error) {
	p.engine.mu.Lock()
	p.engine.renderedDPIs = append(p.engine.renderedDPIs, dpi)
	p.engine.mu.Unlock()

	if p.engine.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if p.engine.renderErr != nil {
		return nil, p.engine.renderErr
	}
	if p.engine.emptyImage {
		return image.NewNRGBA(image.Rect(0, 0, 0, 0)), nil
	}
	w := int(p.engine.width * dpi / pointsPerInch)
	h := int(p.engine.height * dpi / pointsPerInch)
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, p.engine.renderFill)
		}
	}
	return img, nil
}

func (p *fakePage) Close() error {
	p.engine.closedPages.Add(1)
	return nil
}

var errFlaky = errors.New("flaky")

// manualClock releases a waiter only when the test ticks it
type manualClock struct {
	mu      sync.Mutex
	waiters []chan time.Time
	delays  []time.Duration
	waiting chan struct{}
}

func newManualClock() *manualClock {
	return &manualClock{waiting: make(chan struct{}, 16)}
}

func (c *manualClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.mu.Lock()
	c.waiters = append(c.waiters, ch)
	c.delays = append(c.delays, d)
	c.mu.Unlock()
	c.waiting <- struct{}{}
	return ch
}

// tick releases the oldest waiter
func (c *manualClock) tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.waiters) == 0 {
		return
	}
	c.waiters[0] <- time.Now()
	c.waiters = c.waiters[1:]
}

func (c *manualClock) requested() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

// instantClock never waits
type instantClock struct{}

func (instantClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}
