package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
)

// getBrowser finds a Chrome or Chromium binary for chromedp
func getBrowser() (string, error) {
	browsers := []string{"chromium", "chromium-browser", "google-chrome", "chrome"}
	for _, browser := range browsers {
		if path, err := exec.LookPath(browser); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no suitable browser found")
}

func get(t *testing.T, url string) (int, string, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", url, err)
	}
	return resp.StatusCode, resp.Header.Get("Content-Type"), string(body)
}

// TestRootEndpoint checks the shell page and the assets the WASM app loads
func TestRootEndpoint(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	e, _ := setupTestServer(t)
	server := httptest.NewServer(e)
	defer server.Close()

	status, _, body := get(t, server.URL+"/")
	if status != http.StatusOK {
		t.Errorf("Expected status code 200, got %d", status)
	}
	if !strings.Contains(strings.ToLower(body), "<html") {
		t.Errorf("Root did not return HTML: %.200s", body)
	}
	if strings.Contains(body, "Go is not defined") {
		t.Error("Page contains 'Go is not defined' error - WebAssembly not loading correctly")
	}

	status, contentType, body := get(t, server.URL+"/webapp/webapp.css")
	if status != http.StatusOK || !strings.HasPrefix(contentType, "text/css") {
		t.Errorf("Expected embedded CSS, got %d %q", status, contentType)
	}
	if !strings.Contains(body, ".preview-image") {
		t.Error("Stylesheet is missing the preview styles")
	}

	status, _, body = get(t, server.URL+"/config.js")
	if status != http.StatusOK || !strings.Contains(body, "window.docpreviewConfig") {
		t.Errorf("Unexpected config.js (%d): %s", status, body)
	}
}

func TestConfigJS(t *testing.T) {
	js := configJS(`http://backend:8000"; alert(1); "`)
	if !strings.Contains(js, `apiURL: "http://backend:8000\"; alert(1); \""`) {
		t.Errorf("API URL not quoted safely:\n%s", js)
	}
}

func TestIsAddressInUse(t *testing.T) {
	if isAddressInUse(nil) {
		t.Error("nil error reported as address in use")
	}
	if !isAddressInUse(errors.New("listen tcp :8000: bind: address already in use")) {
		t.Error("bind failure not recognised")
	}
	if isAddressInUse(errors.New("permission denied")) {
		t.Error("unrelated error reported as address in use")
	}
}

// TestWasmFileValid checks a built app.wasm when one is present
func TestWasmFileValid(t *testing.T) {
	wasmPath := "web/app.wasm"

	info, err := os.Stat(wasmPath)
	if err != nil {
		t.Skipf("WASM file not found at %s, run 'task build:wasm' first", wasmPath)
	}
	if info.Size() == 0 {
		t.Fatal("WASM file is empty")
	}

	file, err := os.Open(wasmPath)
	if err != nil {
		t.Fatalf("Failed to open WASM file: %v", err)
	}
	defer file.Close()

	magicNumber := make([]byte, 4)
	if _, err := io.ReadFull(file, magicNumber); err != nil {
		t.Fatalf("Failed to read WASM magic number: %v", err)
	}

	// WASM magic number should be: 0x00 0x61 0x73 0x6d ("\0asm")
	expectedMagic := []byte{0x00, 0x61, 0x73, 0x6d}
	if !bytes.Equal(magicNumber, expectedMagic) {
		t.Errorf("Invalid WASM magic number. Got %v, expected %v", magicNumber, expectedMagic)
	}
}

// TestUploadPageWithChromedp loads the upload page in a headless browser that
// runs the WASM app
func TestUploadPageWithChromedp(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	browserPath, err := getBrowser()
	if err != nil {
		t.Skip("No Chrome/Chromium browser found, skipping chromedp test")
	}
	if _, err := os.Stat("web/app.wasm"); err != nil {
		t.Skip("web/app.wasm not built, skipping chromedp test")
	}

	e, _ := setupTestServer(t)
	server := httptest.NewServer(e)
	defer server.Close()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(browserPath),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Headless,
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	defer cancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var pageTitle, heading string
	err = chromedp.Run(ctx,
		chromedp.Navigate(server.URL+"/"),
		chromedp.WaitVisible(".home-page h2", chromedp.ByQuery),
		chromedp.Title(&pageTitle),
		chromedp.Text(".home-page h2", &heading, chromedp.ByQuery),
	)
	if err != nil {
		t.Fatalf("Failed to load upload page: %v", err)
	}
	if pageTitle == "" {
		t.Error("Page title is empty")
	}
	if heading != "Preview a Document" {
		t.Errorf("Unexpected heading %q", heading)
	}

	var notFound string
	err = chromedp.Run(ctx,
		chromedp.Navigate(server.URL+"/preview"),
		chromedp.WaitVisible(".preview-error", chromedp.ByQuery),
		chromedp.Text(".preview-error .error", &notFound, chromedp.ByQuery),
	)
	if err != nil {
		t.Fatalf("Failed to load preview page: %v", err)
	}
	if notFound != "No document selected" {
		t.Errorf("Expected the empty preview message, got %q", notFound)
	}
}
