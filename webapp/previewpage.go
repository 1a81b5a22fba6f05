package webapp

import (
	"context"
	"errors"
	"fmt"

	"github.com/maxence-charriere/go-app/v10/pkg/app"

	"github.com/drummonds/docpreview/engine/preview"
	"github.com/drummonds/docpreview/engine/previewclient"
)

// DocumentPreview shows one page of an open session at a time with
// navigation, retry and download controls
type DocumentPreview struct {
	app.Compo
	sessionID string
	fileName  string
	view      preview.View
	client    *previewclient.Client
	viewer    *preview.Viewer
	loadCtx   context.Context
	cancel    context.CancelFunc
	error     string
}

// OnMount opens the session named in the URL and loads its first page
func (d *DocumentPreview) OnMount(ctx app.Context) {
	d.sessionID = app.Window().URL().Query().Get("id")
	if d.sessionID == "" {
		d.error = "No document selected"
		return
	}

	d.loadCtx, d.cancel = context.WithCancel(context.Background())
	loadCtx := d.loadCtx
	d.client = previewclient.New(GetAPIBaseURL())
	d.viewer = preview.NewViewer(d.client.PageLoader(d.sessionID), preview.DefaultPolicy(), nil, nil)
	d.view = d.viewer.View()
	d.viewer.OnChange(func(view preview.View) {
		ctx.Dispatch(func(ctx app.Context) {
			d.view = view
		})
	})

	ctx.Async(func() {
		session, err := d.client.Session(loadCtx, d.sessionID)
		if err != nil {
			ctx.Dispatch(func(ctx app.Context) {
				d.error = errorText(err)
			})
			return
		}
		ctx.Dispatch(func(ctx app.Context) {
			d.fileName = session.FileName
		})
		d.viewer.Show(loadCtx, 1)
	})
}

// OnDismount abandons any request still in flight
func (d *DocumentPreview) OnDismount() {
	if d.viewer != nil {
		d.viewer.Close()
	}
	if d.cancel != nil {
		d.cancel()
	}
}

// Render renders the preview
func (d *DocumentPreview) Render() app.UI {
	return app.Div().
		Class("preview-page").
		Body(
			d.renderHeader(),
			app.Div().Class("preview-body").Body(
				d.renderContent(),
				d.renderNavigation(),
			),
		)
}

func (d *DocumentPreview) renderHeader() app.UI {
	label := pageLabel(d.view)
	return app.Div().Class("preview-header").Body(
		app.Div().Class("preview-title").Body(
			app.H3().Text(d.fileName),
			app.If(label != "", func() app.UI {
				return app.P().Class("preview-page-label").Text(label)
			}),
		),
		app.Div().Class("preview-actions").Body(
			app.If(d.client != nil, func() app.UI {
				return app.A().
					Class("btn-icon").
					Href(d.client.DownloadURL(d.sessionID)).
					Title("Download document").
					Attr("download", "").
					Text("⬇")
			}),
			app.Button().
				Class("btn-icon").
				Title("Close preview").
				OnClick(d.onClose).
				Text("✕"),
		),
	)
}

// renderContent renders the spinner, error panel or page image
func (d *DocumentPreview) renderContent() app.UI {
	if d.error != "" {
		return app.Div().Class("preview-error").Body(
			app.P().Class("error").Text(d.error),
			app.A().Href("/").Class("btn-secondary").Text("Back"),
		)
	}

	if d.view.Loading() {
		return app.Div().Class("preview-loading").Body(
			app.Div().Class("spinner"),
			app.If(d.view.Err != nil, func() app.UI {
				return app.P().Class("preview-retrying").Text(fmt.Sprintf("Retrying (attempt %d)...", d.view.Attempt+1))
			}),
		)
	}

	if d.view.State == preview.StateFailedPermanently {
		return app.Div().Class("preview-error").Body(
			app.P().Class("error").Text(errorText(d.view.Err)),
			app.Button().
				Class("btn-primary").
				OnClick(d.onRetry).
				Text("Retry Loading"),
			app.If(d.client != nil, func() app.UI {
				return app.A().
					Class("btn-secondary").
					Href(d.client.DownloadURL(d.sessionID)).
					Attr("download", "").
					Text("Download Instead")
			}),
		)
	}

	if d.view.Result != nil {
		return app.Img().
			Class("preview-image").
			Src(d.view.Result.DataURL()).
			Alt(fmt.Sprintf("Document preview - Page %d", d.view.Page))
	}

	return app.Div()
}

// renderNavigation shows the page controls for multi-page documents
func (d *DocumentPreview) renderNavigation() app.UI {
	nav := d.view.Navigator()
	if !nav.ShowControls() || d.view.State == preview.StateFailedPermanently {
		return app.Div()
	}
	return app.Div().Class("preview-nav").Body(
		app.If(nav.CanPrev(), func() app.UI {
			return app.Button().
				Class("btn-nav btn-prev").
				Disabled(d.view.Loading()).
				OnClick(d.onPrev).
				Text("‹")
		}),
		app.If(nav.CanNext(), func() app.UI {
			return app.Button().
				Class("btn-nav btn-next").
				Disabled(d.view.Loading()).
				OnClick(d.onNext).
				Text("›")
		}),
	)
}

func (d *DocumentPreview) onPrev(ctx app.Context, e app.Event) {
	d.run(ctx, d.viewer.Prev)
}

func (d *DocumentPreview) onNext(ctx app.Context, e app.Event) {
	d.run(ctx, d.viewer.Next)
}

func (d *DocumentPreview) onRetry(ctx app.Context, e app.Event) {
	d.run(ctx, d.viewer.Retry)
}

// run starts a viewer action off the UI goroutine; the viewer reports back
// through OnChange
func (d *DocumentPreview) run(ctx app.Context, action func(context.Context) (*preview.Result, error)) {
	if d.viewer == nil {
		return
	}
	loadCtx := d.loadCtx
	ctx.Async(func() {
		action(loadCtx)
	})
}

// onClose deletes the session and returns to the upload page
func (d *DocumentPreview) onClose(ctx app.Context, e app.Event) {
	if d.viewer != nil {
		d.viewer.Close()
	}
	client, id := d.client, d.sessionID
	if client != nil {
		ctx.Async(func() {
			if err := client.CloseSession(context.Background(), id); err != nil {
				app.Log("Failed to close preview session:", err)
			}
		})
	}
	ctx.Navigate("/")
}

// pageLabel is "Page X of N" once a multi-page document has loaded
func pageLabel(view preview.View) string {
	if view.PageCount <= 1 {
		return ""
	}
	return fmt.Sprintf("Page %d of %d", view.Page, view.PageCount)
}

// errorText is the message shown for a failed preview
func errorText(err error) string {
	if err == nil {
		return ""
	}
	var previewErr *preview.Error
	if !errors.As(err, &previewErr) {
		return "Failed to load preview"
	}
	switch previewErr.Kind {
	case preview.KindUnavailable:
		return "Could not connect to the preview service"
	case preview.KindTimeout:
		return "The preview took too long to load"
	case preview.KindMissingFile:
		if previewErr.Message == "Session not found" {
			return "This preview has expired, please upload the document again"
		}
	}
	if previewErr.Message != "" {
		return previewErr.Message
	}
	return "Failed to load preview"
}
