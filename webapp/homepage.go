package webapp

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// SessionInfo is the response to opening a preview session
type SessionInfo struct {
	ID        string `json:"id"`
	FileName  string `json:"fileName"`
	MediaType string `json:"mediaType"`
	Size      int64  `json:"size"`
	ExpiresAt string `json:"expiresAt"`
}

// HomePage uploads a document and opens its preview
type HomePage struct {
	app.Compo
	uploading bool
	fileName  string
	error     string
}

// Render renders the home page
func (h *HomePage) Render() app.UI {
	return app.Div().
		Class("home-page").
		Body(
			app.H2().Text("Preview a Document"),
			app.P().Text("Choose a PDF to see it page by page before you send it anywhere."),

			app.Div().Class("upload-controls").Body(
				app.Label().Class("btn-primary upload-label").Body(
					app.Text(h.buttonText()),
					app.Input().
						Type("file").
						Accept("application/pdf,.pdf").
						Class("upload-input").
						Disabled(h.uploading).
						OnChange(h.onFileChosen),
				),
			),

			h.renderStatus(),
		)
}

func (h *HomePage) buttonText() string {
	if h.uploading {
		return "Uploading..."
	}
	return "Choose File"
}

// renderStatus renders the status section
func (h *HomePage) renderStatus() app.UI {
	if h.uploading {
		return app.Div().Class("loading").Body(
			app.Text("Uploading " + h.fileName + "..."),
		)
	}

	if h.error != "" {
		return app.Div().Class("error").Body(
			app.Text("Error: " + h.error),
		)
	}

	return app.Div()
}

// onFileChosen uploads the selected file as a new session
func (h *HomePage) onFileChosen(ctx app.Context, e app.Event) {
	files := ctx.JSSrc().Get("files")
	if !files.Truthy() || files.Length() == 0 {
		return
	}
	file := files.Index(0)

	h.uploading = true
	h.fileName = file.Get("name").String()
	h.error = ""

	h.upload(ctx, file)
}

// upload posts the file to the sessions API and navigates to its preview
func (h *HomePage) upload(ctx app.Context, file app.Value) {
	ctx.Async(func() {
		form := app.Window().Get("FormData").New()
		form.Call("append", "file", file)

		res := app.Window().Call("fetch", BuildAPIURL("/api/sessions"), map[string]interface{}{
			"method": "POST",
			"body":   form,
		})

		res.Call("then", app.FuncOf(func(this app.Value, args []app.Value) interface{} {
			if len(args) == 0 {
				return nil
			}
			response := args[0]

			status := response.Get("status").Int()

			response.Call("text").Call("then", app.FuncOf(func(this app.Value, args []app.Value) interface{} {
				if len(args) == 0 {
					return nil
				}

				text := args[0].String()

				ctx.Dispatch(func(ctx app.Context) {
					h.uploading = false
					if status < 200 || status > 299 {
						h.error = fmt.Sprintf("Upload failed (status: %d): %s", status, errorMessageFromBody(text))
						return
					}
					var session SessionInfo
					if err := json.Unmarshal([]byte(text), &session); err != nil || session.ID == "" {
						h.error = "Unexpected response from server"
						return
					}
					ctx.Navigate(previewPath(session.ID))
				})

				return nil
			}))

			return nil
		})).Call("catch", app.FuncOf(func(this app.Value, args []app.Value) interface{} {
			ctx.Dispatch(func(ctx app.Context) {
				h.uploading = false
				h.error = "Network error: Could not connect to server"
			})
			return nil
		}))
	})
}

// previewPath is the page that shows session id
func previewPath(id string) string {
	return "/preview?id=" + url.QueryEscape(id)
}

// errorMessageFromBody picks the message out of a JSON error body
func errorMessageFromBody(text string) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(text), &body); err != nil {
		return text
	}
	if body.Message != "" {
		return body.Message
	}
	if body.Error != "" {
		return body.Error
	}
	return text
}
