package preview

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
)

// PageLoader performs one single-shot render of a page
type PageLoader func(ctx context.Context, page int) (*Result, error)

// View is what a preview UI shows for its slot
type View struct {
	State     State
	Page      int
	PageCount int
	Attempt   int
	Result    *Result
	Err       error
}

// Loading reports whether a request is outstanding
func (v View) Loading() bool {
	return v.State == StateInFlight
}

// Navigator returns the page position of the view
func (v View) Navigator() Navigator {
	return Navigator{Page: v.Page, PageCount: v.PageCount}
}

// Viewer is the caller side of an open preview: it runs every page request
// through a Controller, keeps only the latest request's outcome and handles
// navigation, manual retry and clamping after an out-of-range page.
type Viewer struct {
	load   PageLoader
	policy Policy
	clock  Clock
	logger *slog.Logger
	slot   Slot

	mu       sync.Mutex
	view     View
	onChange func(View)
}

// NewViewer creates a viewer positioned on page 1
func NewViewer(load PageLoader, policy Policy, clock Clock, logger *slog.Logger) *Viewer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Viewer{
		load:   load,
		policy: policy,
		clock:  clock,
		logger: logger,
		view:   View{State: StateIdle, Page: 1, PageCount: 1},
	}
}

// OnChange registers a callback for every visible change. It runs while the
// slot is locked and must not call back into the viewer.
func (v *Viewer) OnChange(fn func(View)) {
	v.mu.Lock()
	v.onChange = fn
	v.mu.Unlock()
}

// View returns the current view
func (v *Viewer) View() View {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.view
}

// Show loads page, superseding any request still in flight. Results of
// superseded requests are returned to their caller but never reach the view.
func (v *Viewer) Show(ctx context.Context, page int) (*Result, error) {
	return v.show(ctx, page, false)
}

// Retry reloads the current page with a fresh retry budget
func (v *Viewer) Retry(ctx context.Context) (*Result, error) {
	return v.show(ctx, v.View().Page, true)
}

// Next moves to the following page; at the last page it is a no-op
func (v *Viewer) Next(ctx context.Context) (*Result, error) {
	current := v.View()
	if !current.Navigator().CanNext() {
		return current.Result, nil
	}
	return v.Show(ctx, current.Navigator().Next())
}

// Prev moves to the preceding page; at the first page it is a no-op
func (v *Viewer) Prev(ctx context.Context) (*Result, error) {
	current := v.View()
	if !current.Navigator().CanPrev() {
		return current.Result, nil
	}
	return v.Show(ctx, current.Navigator().Prev())
}

// Close abandons any in-flight request
func (v *Viewer) Close() {
	v.slot.Close()
}

func (v *Viewer) show(ctx context.Context, page int, manual bool) (*Result, error) {
	seq, loadCtx := v.slot.Begin(ctx)
	defer v.slot.Finish(seq)

	v.slot.Commit(seq, func() {
		v.update(func(view *View) {
			view.State = StateInFlight
			view.Page = page
			view.Attempt = 0
			view.Result = nil
			view.Err = nil
		})
	})

	controller := NewController(v.policy, v.clock, v.logger.With("sequence", seq, "page", page))
	controller.OnChange(func(status Status) {
		v.slot.Commit(seq, func() {
			v.update(func(view *View) {
				view.State = status.State
				view.Attempt = status.Attempt
				view.Err = status.Err
				if status.Result != nil {
					view.Result = status.Result
					view.PageCount = status.Result.PageCount
				}
			})
		})
	})

	attempt := func(ctx context.Context) (*Result, error) {
		return v.load(ctx, page)
	}
	run := controller.Load
	if manual {
		run = controller.Retry
	}
	result, err := run(loadCtx, attempt)
	if err == nil {
		return result, nil
	}

	var clamped int
	var previewErr *Error
	if errors.As(err, &previewErr) && previewErr.Kind == KindInvalidPage && previewErr.TotalPages > 0 {
		clamped = Clamp(page, previewErr.TotalPages)
	}
	if clamped != 0 && clamped != page && v.slot.IsLatest(seq) {
		v.logger.Info("Clamping out-of-range page", "requested", page, "page", clamped, "totalPages", previewErr.TotalPages)
		v.slot.Commit(seq, func() {
			v.update(func(view *View) { view.PageCount = previewErr.TotalPages })
		})
		return v.show(ctx, clamped, false)
	}
	return nil, err
}

func (v *Viewer) update(change func(view *View)) {
	v.mu.Lock()
	change(&v.view)
	view := v.view
	onChange := v.onChange
	v.mu.Unlock()
	if onChange != nil {
		onChange(view)
	}
}
