package webapp

import (
	"errors"
	"testing"

	"github.com/drummonds/docpreview/engine/preview"
)

func TestPageLabel(t *testing.T) {
	tests := []struct {
		view preview.View
		want string
	}{
		{preview.View{Page: 1, PageCount: 1}, ""},
		{preview.View{Page: 1, PageCount: 0}, ""},
		{preview.View{Page: 2, PageCount: 3}, "Page 2 of 3"},
	}
	for _, tt := range tests {
		if got := pageLabel(tt.view); got != tt.want {
			t.Errorf("pageLabel(%d of %d) = %q, want %q", tt.view.Page, tt.view.PageCount, got, tt.want)
		}
	}
}

func TestErrorText(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain error", errors.New("boom"), "Failed to load preview"},
		{"renderer message", &preview.Error{Kind: preview.KindUnsupportedType, Message: "invalid file type, only PDF files are supported"}, "invalid file type, only PDF files are supported"},
		{"unreachable", &preview.Error{Kind: preview.KindUnavailable, Message: "could not connect to preview service"}, "Could not connect to the preview service"},
		{"expired", &preview.Error{Kind: preview.KindMissingFile, Message: "Session not found"}, "This preview has expired, please upload the document again"},
		{"no message", &preview.Error{Kind: preview.KindRenderFailure}, "Failed to load preview"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorText(tt.err); got != tt.want {
				t.Errorf("errorText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorMessageFromBody(t *testing.T) {
	tests := map[string]string{
		`{"error":"MissingFile","message":"no file provided"}`: "no file provided",
		`{"error":"Session not found"}`:                        "Session not found",
		`not json`:                                             "not json",
	}
	for body, want := range tests {
		if got := errorMessageFromBody(body); got != want {
			t.Errorf("errorMessageFromBody(%q) = %q, want %q", body, got, want)
		}
	}
}

func TestPreviewPath(t *testing.T) {
	if got := previewPath("01HZX5Q7J6K3V0R2M8N4P9T1WS"); got != "/preview?id=01HZX5Q7J6K3V0R2M8N4P9T1WS" {
		t.Errorf("Unexpected preview path %q", got)
	}
}

func TestJobFormatting(t *testing.T) {
	if got := countRunning([]Job{{Status: "running"}, {Status: "completed"}, {Status: "running"}}); got != 2 {
		t.Errorf("Expected 2 running jobs, got %d", got)
	}
	if got := formatDuration(250); got != "250 ms" {
		t.Errorf("Unexpected duration %q", got)
	}
	if got := formatDuration(1500); got != "1.5 s" {
		t.Errorf("Unexpected duration %q", got)
	}

	page := &JobsPage{}
	if got := page.formatJobType(&Job{Type: "render", Page: 3}); got != "Render Page 3" {
		t.Errorf("Unexpected job type %q", got)
	}
	if got := page.formatJobType(&Job{Type: "sweep"}); got != "Session Cleanup" {
		t.Errorf("Unexpected job type %q", got)
	}
}
