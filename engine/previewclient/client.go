// Package previewclient talks to the preview API over HTTP. It has no
// server-side dependencies so the WASM frontend can use it as well as the CLI.
package previewclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/drummonds/docpreview/engine/preview"
)

// Client holds the HTTP client for one preview backend
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New creates a client for the API at baseURL, "" means same origin
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Session mirrors the session metadata returned by the API
type Session struct {
	ID        string    `json:"id"`
	FileName  string    `json:"fileName"`
	MediaType string    `json:"mediaType"`
	Size      int64     `json:"size"`
	PageCount int       `json:"pageCount"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// pageResponse is the body of a rendered page
type pageResponse struct {
	Image     string `json:"image"`
	PageCount int    `json:"pageCount"`
	Page      int    `json:"page"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// errorResponse is the body of a failed render
type errorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	TotalPages int    `json:"totalPages"`
}

// CreateSession uploads data and opens a preview session for it
func (c *Client) CreateSession(ctx context.Context, file *preview.SourceFile) (*Session, error) {
	body, contentType, err := multipartBody(file, nil)
	if err != nil {
		return nil, err
	}

	var session Session
	if err := c.do(ctx, http.MethodPost, "/api/sessions", body, contentType, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Session fetches the metadata of an open session
func (c *Client) Session(ctx context.Context, id string) (*Session, error) {
	var session Session
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(id), nil, "", &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Page renders one page of a session
func (c *Client) Page(ctx context.Context, id string, page int) (*preview.Result, error) {
	var resp pageResponse
	path := fmt.Sprintf("/api/sessions/%s/pages/%d", url.PathEscape(id), page)
	if err := c.do(ctx, http.MethodGet, path, nil, "", &resp); err != nil {
		return nil, err
	}
	return resp.result()
}

// Preview renders one page of file without opening a session
func (c *Client) Preview(ctx context.Context, file *preview.SourceFile, page int) (*preview.Result, error) {
	body, contentType, err := multipartBody(file, map[string]string{"page": fmt.Sprint(page)})
	if err != nil {
		return nil, err
	}

	var resp pageResponse
	if err := c.do(ctx, http.MethodPost, "/api/preview", body, contentType, &resp); err != nil {
		return nil, err
	}
	return resp.result()
}

// CloseSession deletes a session on the server
func (c *Client) CloseSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(id), nil, "", nil)
}

// DownloadURL is the link that returns the original upload as an attachment
func (c *Client) DownloadURL(id string) string {
	return c.BaseURL + "/api/sessions/" + url.PathEscape(id) + "/download"
}

// PageLoader adapts a session to the loader a preview.Viewer drives
func (c *Client) PageLoader(id string) preview.PageLoader {
	return func(ctx context.Context, page int) (*preview.Result, error) {
		return c.Page(ctx, id, page)
	}
}

// do sends one request and decodes a 2xx body into out. Failures come back
// as *preview.Error so callers can apply the retry policy.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &preview.Error{Kind: preview.KindUnavailable, Message: "unreadable response from preview service", Err: err}
	}
	return nil
}

// transportError classifies a request that never got a response
func transportError(ctx context.Context, err error) *preview.Error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return &preview.Error{Kind: preview.KindCanceled, Message: "preview request canceled", Err: err}
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &preview.Error{Kind: preview.KindTimeout, Message: "preview request timed out", Err: err}
	}
	return &preview.Error{Kind: preview.KindUnavailable, Message: "could not connect to preview service", Err: err}
}

// statusError turns an error response back into the server's typed failure
func statusError(resp *http.Response) *preview.Error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	statusErr := fmt.Errorf("preview service returned status %d", resp.StatusCode)

	var body errorResponse
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		kind := preview.ErrorKind(body.Error)
		if !knownKind(kind) {
			kind = kindForStatus(resp.StatusCode)
		}
		message := body.Message
		if message == "" {
			message = body.Error
		}
		return &preview.Error{Kind: kind, Message: message, TotalPages: body.TotalPages, Err: statusErr}
	}

	message := strings.TrimSpace(string(data))
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return &preview.Error{Kind: kindForStatus(resp.StatusCode), Message: message, Err: statusErr}
}

func knownKind(kind preview.ErrorKind) bool {
	switch kind {
	case preview.KindMissingFile, preview.KindUnsupportedType, preview.KindEmptyFile,
		preview.KindDecodeFailure, preview.KindInvalidPage, preview.KindRenderFailure,
		preview.KindTimeout, preview.KindCanceled, preview.KindUnavailable:
		return true
	}
	return false
}

// kindForStatus classifies responses that carry no kind, such as a proxy error
// page or a session that has expired
func kindForStatus(status int) preview.ErrorKind {
	switch {
	case status == http.StatusNotFound, status == http.StatusBadRequest:
		return preview.KindMissingFile
	case status == http.StatusRequestEntityTooLarge, status == http.StatusUnsupportedMediaType:
		return preview.KindUnsupportedType
	case status == http.StatusGatewayTimeout, status == http.StatusRequestTimeout:
		return preview.KindTimeout
	case status >= 500:
		return preview.KindUnavailable
	default:
		return preview.KindRenderFailure
	}
}

// result decodes the data URL back into image bytes
func (p pageResponse) result() (*preview.Result, error) {
	mediaType, encoded, ok := strings.Cut(strings.TrimPrefix(p.Image, "data:"), ";base64,")
	if !ok {
		return nil, &preview.Error{Kind: preview.KindRenderFailure, Message: "preview image is not a data URL"}
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &preview.Error{Kind: preview.KindRenderFailure, Message: "preview image is not valid base64", Err: err}
	}
	return &preview.Result{
		Image:      data,
		MediaType:  mediaType,
		PageNumber: p.Page,
		PageCount:  p.PageCount,
		Width:      p.Width,
		Height:     p.Height,
	}, nil
}

// multipartBody encodes file as the "file" field plus any extra fields
func multipartBody(file *preview.SourceFile, fields map[string]string) (io.Reader, string, error) {
	if file == nil {
		return nil, "", &preview.Error{Kind: preview.KindMissingFile, Message: "no file provided"}
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Name))
	if file.MediaType != "" {
		header.Set("Content-Type", file.MediaType)
	}
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, "", fmt.Errorf("failed to copy file data: %w", err)
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("failed to write form field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close writer: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}
