package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image/jpeg"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"

	config "github.com/drummonds/docpreview/config"
	database "github.com/drummonds/docpreview/database"
	engine "github.com/drummonds/docpreview/engine"
	"github.com/drummonds/docpreview/engine/pdfrenderer"
	"github.com/drummonds/docpreview/engine/preview"
	"github.com/drummonds/docpreview/engine/previewclient"
	"github.com/drummonds/docpreview/internal/testpdf"
)

// setupTestServer builds the full app over a private sqlite store and the
// PDFium engine
func setupTestServer(t *testing.T) (*echo.Echo, *engine.ServerHandler) {
	t.Helper()
	injectGlobals(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn})))

	serverConfig := config.ServerConfig{
		DatabaseType:       "sqlite",
		DatabaseDbname:     "file:api_" + ulid.Make().String() + "?mode=memory&cache=shared",
		PreviewEngine:      pdfrenderer.EnginePDFium,
		PreviewScale:       1,
		PreviewJPEGQuality: 90,
		PreviewPixelRatio:  1,
		PreviewMaxRetries:  2,
		PreviewTimeout:     30 * time.Second,
		PreviewMaxUploadMB: 2,
		PreviewConcurrency: 1,
		SessionTTL:         time.Hour,
		JobRetention:       time.Hour,
	}

	db, err := database.NewRepository(serverConfig)
	if err != nil {
		t.Fatalf("Failed to setup database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	pdfEngine, err := pdfrenderer.NewEngine(serverConfig.PreviewEngine, serverConfig.PreviewConcurrency)
	if err != nil {
		t.Fatalf("Failed to start PDF engine: %v", err)
	}
	t.Cleanup(func() { pdfEngine.Close() })

	return newApp(serverConfig, db, pdfEngine)
}

func uploadRequest(t *testing.T, target, fileName string, data []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	part.Write(data)
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	return req
}

func doRequest(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// TestSessionRendering runs a three page document through the session API
func TestSessionRendering(t *testing.T) {
	e, _ := setupTestServer(t)

	rec := doRequest(e, uploadRequest(t, "/api/sessions", "letter.pdf", testpdf.Build(3)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var session struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &session); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	t.Run("Render page 2", func(t *testing.T) {
		rec := doRequest(e, httptest.NewRequest(http.MethodGet, "/api/sessions/"+session.ID+"/pages/2", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var page struct {
			Image     string `json:"image"`
			Page      int    `json:"page"`
			PageCount int    `json:"pageCount"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
			t.Fatalf("Failed to parse response: %v", err)
		}
		if page.Page != 2 || page.PageCount != 3 {
			t.Errorf("Expected page 2 of 3, got %d of %d", page.Page, page.PageCount)
		}
		// US Letter at scale 1 and pixel ratio 1
		if page.Width != 612 || page.Height != 792 {
			t.Errorf("Expected 612x792, got %dx%d", page.Width, page.Height)
		}

		encoded := strings.TrimPrefix(page.Image, "data:image/jpeg;base64,")
		if encoded == page.Image {
			t.Fatalf("Image is not a JPEG data URL: %.40s", page.Image)
		}
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			t.Fatalf("Image is not base64: %v", err)
		}
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("Image is not a JPEG: %v", err)
		}
		if img.Bounds().Dx() != 612 {
			t.Errorf("Decoded width %d, expected 612", img.Bounds().Dx())
		}
	})

	t.Run("Page past the end", func(t *testing.T) {
		rec := doRequest(e, httptest.NewRequest(http.MethodGet, "/api/sessions/"+session.ID+"/pages/4", nil))
		if rec.Code != http.StatusRequestedRangeNotSatisfiable {
			t.Fatalf("Expected status 416, got %d", rec.Code)
		}
		var body map[string]interface{}
		json.Unmarshal(rec.Body.Bytes(), &body)
		if body["error"] != string(preview.KindInvalidPage) || body["totalPages"] != float64(3) {
			t.Errorf("Unexpected error body: %v", body)
		}
	})

	t.Run("Inspect", func(t *testing.T) {
		rec := doRequest(e, httptest.NewRequest(http.MethodGet, "/api/sessions/"+session.ID+"/info", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var info pdfrenderer.Info
		json.Unmarshal(rec.Body.Bytes(), &info)
		if info.PageCount != 3 {
			t.Errorf("Expected 3 pages, got %d", info.PageCount)
		}
	})

	t.Run("Close", func(t *testing.T) {
		rec := doRequest(e, httptest.NewRequest(http.MethodDelete, "/api/sessions/"+session.ID, nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("Expected status 204, got %d", rec.Code)
		}
		rec = doRequest(e, httptest.NewRequest(http.MethodGet, "/api/sessions/"+session.ID+"/pages/1", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected status 404 after close, got %d", rec.Code)
		}
	})
}

func TestPreviewUploadErrors(t *testing.T) {
	e, _ := setupTestServer(t)

	tests := []struct {
		name       string
		fileName   string
		data       []byte
		wantStatus int
		wantKind   preview.ErrorKind
	}{
		{"malformed pdf", "broken.pdf", testpdf.Malformed(), http.StatusUnprocessableEntity, preview.KindDecodeFailure},
		{"empty pdf", "empty.pdf", nil, http.StatusBadRequest, preview.KindEmptyFile},
		{"not a pdf", "notes.txt", []byte("plain text"), http.StatusUnsupportedMediaType, preview.KindUnsupportedType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(e, uploadRequest(t, "/api/preview", tt.fileName, tt.data))
			if rec.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			var body map[string]interface{}
			json.Unmarshal(rec.Body.Bytes(), &body)
			if body["error"] != string(tt.wantKind) {
				t.Errorf("Expected kind %s, got %v", tt.wantKind, body["error"])
			}
		})
	}
}

func TestUploadOverBodyLimit(t *testing.T) {
	e, _ := setupTestServer(t)

	// the app allows the 2MB upload limit plus 1MB of framing
	rec := doRequest(e, uploadRequest(t, "/api/sessions", "huge.pdf", bytes.Repeat([]byte("x"), 4<<20)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status 413, got %d", rec.Code)
	}
}

func TestUnknownAPIRoute(t *testing.T) {
	e, _ := setupTestServer(t)

	rec := doRequest(e, httptest.NewRequest(http.MethodGet, "/api/does-not-exist", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Expected JSON 404 body: %v", err)
	}
	if body["path"] != "/api/does-not-exist" {
		t.Errorf("Unexpected path in 404 body: %q", body["path"])
	}
}

func TestHealthEndpoint(t *testing.T) {
	e, _ := setupTestServer(t)

	rec := doRequest(e, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["engine"] != pdfrenderer.EnginePDFium {
		t.Errorf("Expected pdfium engine, got %v", body["engine"])
	}
}

func TestStartupChecksWithPDFium(t *testing.T) {
	_, serverHandler := setupTestServer(t)
	if err := serverHandler.StartupChecks(); err != nil {
		t.Fatalf("Startup checks failed: %v", err)
	}
}

// TestViewerAgainstServer drives the same client and viewer the UI uses
func TestViewerAgainstServer(t *testing.T) {
	e, _ := setupTestServer(t)
	server := httptest.NewServer(e)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client := previewclient.New(server.URL)
	session, err := client.CreateSession(ctx, preview.NewSourceFile("two.pdf", preview.PDFMediaType, testpdf.Build(2)))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	viewer := preview.NewViewer(client.PageLoader(session.ID), preview.Policy{MaxRetries: 1}, nil, nil)
	defer viewer.Close()

	result, err := viewer.Show(ctx, 1)
	if err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	if result.PageCount != 2 {
		t.Errorf("Expected 2 pages, got %d", result.PageCount)
	}

	if _, err := viewer.Next(ctx); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	view := viewer.View()
	if view.Page != 2 || view.Navigator().CanNext() {
		t.Errorf("Expected to be on the last page, got %+v", view.Navigator())
	}

	if err := client.CloseSession(ctx, session.ID); err != nil {
		t.Fatalf("CloseSession failed: %v", err)
	}
	if _, err := client.Page(ctx, session.ID, 1); preview.KindOf(err) != preview.KindMissingFile {
		t.Errorf("Expected MissingFile after close, got %v", err)
	}

	resp, err := http.Get(client.DownloadURL(session.ID))
	if err != nil {
		t.Fatalf("Download request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected download of a closed session to 404, got %d", resp.StatusCode)
	}
}
