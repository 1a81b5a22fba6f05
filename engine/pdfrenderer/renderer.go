package pdfrenderer

import (
	"fmt"
	"strings"

	"github.com/drummonds/docpreview/engine/preview"
)

// Engine names accepted by NewEngine
const (
	EnginePDFium = "pdfium"
	EngineFitz   = "fitz"
)

// DefaultWorkers is the number of documents that may be decoded at once
const DefaultWorkers = 2

// Engine is a preview.Engine that holds process-wide resources
type Engine interface {
	preview.Engine

	// Name identifies the backend in logs and the health endpoint
	Name() string

	// Close cleans up any resources used by the engine
	Close() error
}

// NewEngine creates the named engine. PDFium runs as WebAssembly (pure Go, no
// CGo) and is the default; fitz needs CGo and MuPDF.
func NewEngine(name string, workers int) (Engine, error) {
	if workers < 1 {
		workers = DefaultWorkers
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", EnginePDFium:
		return NewPDFiumEngine(workers)
	case EngineFitz:
		return NewFitzEngine(workers), nil
	default:
		return nil, fmt.Errorf("unknown PDF engine %q (expected %s or %s)", name, EnginePDFium, EngineFitz)
	}
}
